package app

import (
	"context"
	"errors"
	"strings"

	"librarydesk/pkg/session"
	"librarydesk/pkg/stats"
)

// Statistics is the dashboard view: overall totals plus an optional range report.
type Statistics struct {
	Totals stats.Totals
	Range  stats.Range
	Report *stats.Report
	// Notice explains why a requested report was not produced.
	Notice string
}

// Statistics fetches every borrow once and derives both the totals and, when a
// range was entered, the daily report. A half-filled range yields the prompt.
func (a *App) Statistics(ctx context.Context, sess session.Session, r stats.Range) (Statistics, error) {
	if err := requireStaff(sess); err != nil {
		return Statistics{}, err
	}
	records, err := a.client.ListBorrows(ctx, sess)
	if err != nil {
		return Statistics{}, err
	}
	out := Statistics{Totals: stats.Summarize(records), Range: r}
	if strings.TrimSpace(r.Start) == "" && strings.TrimSpace(r.End) == "" {
		return out, nil
	}
	report, err := stats.BuildReport(records, r, a.loc)
	switch {
	case err == nil:
		out.Report = &report
	case errors.Is(err, stats.ErrRangeRequired):
		out.Notice = stats.RangePrompt
	case errors.Is(err, stats.ErrInvalidRange):
		out.Notice = "Invalid date range" + strings.TrimPrefix(err.Error(), stats.ErrInvalidRange.Error())
	default:
		return Statistics{}, err
	}
	return out, nil
}

// Report builds the range report for export. Range problems are returned as errors.
func (a *App) Report(ctx context.Context, sess session.Session, r stats.Range) (stats.Report, error) {
	if err := requireStaff(sess); err != nil {
		return stats.Report{}, err
	}
	if err := r.Validate(); err != nil {
		return stats.Report{}, err
	}
	records, err := a.client.ListBorrows(ctx, sess)
	if err != nil {
		return stats.Report{}, err
	}
	return stats.BuildReport(records, r, a.loc)
}
