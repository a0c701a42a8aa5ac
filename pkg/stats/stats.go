// Package stats aggregates borrow activity for the dashboard and exported reports.
package stats

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"librarydesk/pkg/domain"
)

var (
	// ErrRangeRequired means start or end was left empty; no report is produced.
	ErrRangeRequired = errors.New("stats: start and end dates are required")
	ErrInvalidRange  = errors.New("stats: invalid date range")
)

// RangePrompt is shown when a report is requested without a full range.
const RangePrompt = "Please choose both a start and an end date."

type Totals struct {
	Borrowed int `json:"borrowed"`
	Returned int `json:"returned"`
}

// Day is one calendar day of activity.
type Day struct {
	Date     string `json:"date"`
	Borrowed int    `json:"borrowed"`
	Returned int    `json:"returned"`
}

type Report struct {
	Start    string `json:"start"`
	End      string `json:"end"`
	Location string `json:"location"`
	Days     []Day  `json:"days"`
	Totals   Totals `json:"totals"`
}

// Range is a report request as typed into the dashboard.
type Range struct {
	Start string `validate:"required,datetime=2006-01-02"`
	End   string `validate:"required,datetime=2006-01-02"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Summarize counts records currently borrowed and returned.
func Summarize(records []domain.BorrowRecord) Totals {
	var t Totals
	for _, rec := range records {
		switch rec.Status {
		case domain.BorrowBorrowed:
			t.Borrowed++
		case domain.BorrowReturned:
			t.Returned++
		}
	}
	return t
}

// Validate checks that both dates are present, well formed and ordered.
func (r Range) Validate() error {
	r.Start, r.End = strings.TrimSpace(r.Start), strings.TrimSpace(r.End)
	if err := validate.Struct(r); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				if fe.Tag() == "required" {
					return ErrRangeRequired
				}
			}
			return fmt.Errorf("%w: %s must be a date (YYYY-MM-DD)", ErrInvalidRange, strings.ToLower(verrs[0].Field()))
		}
		return fmt.Errorf("%w: %v", ErrInvalidRange, err)
	}
	if r.End < r.Start {
		return fmt.Errorf("%w: end is before start", ErrInvalidRange)
	}
	return nil
}

// BuildReport keeps records created between the start of start and the end of end
// (both inclusive calendar days in loc), groups them by local day and counts
// borrowed and returned records. Days are in chronological order.
func BuildReport(records []domain.BorrowRecord, r Range, loc *time.Location) (Report, error) {
	if err := r.Validate(); err != nil {
		return Report{}, err
	}
	if loc == nil {
		loc = time.Local
	}
	start, err := time.ParseInLocation(time.DateOnly, strings.TrimSpace(r.Start), loc)
	if err != nil {
		return Report{}, fmt.Errorf("%w: %v", ErrInvalidRange, err)
	}
	endDay, err := time.ParseInLocation(time.DateOnly, strings.TrimSpace(r.End), loc)
	if err != nil {
		return Report{}, fmt.Errorf("%w: %v", ErrInvalidRange, err)
	}
	end := endDay.AddDate(0, 0, 1)

	buckets := map[string]*Day{}
	for _, rec := range records {
		if rec.CreatedAt.IsZero() {
			continue
		}
		created := rec.CreatedAt.In(loc)
		if created.Before(start) || !created.Before(end) {
			continue
		}
		key := created.Format(time.DateOnly)
		day, ok := buckets[key]
		if !ok {
			day = &Day{Date: key}
			buckets[key] = day
		}
		switch rec.Status {
		case domain.BorrowBorrowed:
			day.Borrowed++
		case domain.BorrowReturned:
			day.Returned++
		}
	}

	report := Report{Start: start.Format(time.DateOnly), End: endDay.Format(time.DateOnly), Location: loc.String(), Days: make([]Day, 0, len(buckets))}
	for _, day := range buckets {
		report.Days = append(report.Days, *day)
		report.Totals.Borrowed += day.Borrowed
		report.Totals.Returned += day.Returned
	}
	sort.Slice(report.Days, func(i, j int) bool { return report.Days[i].Date < report.Days[j].Date })
	return report, nil
}

// WriteCSV writes the daily table followed by a total row.
func (r Report) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	rows := [][]string{{"date", "borrowed", "returned"}}
	for _, d := range r.Days {
		rows = append(rows, []string{d.Date, strconv.Itoa(d.Borrowed), strconv.Itoa(d.Returned)})
	}
	rows = append(rows, []string{"total", strconv.Itoa(r.Totals.Borrowed), strconv.Itoa(r.Totals.Returned)})
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}
