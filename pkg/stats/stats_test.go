package stats

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"librarydesk/pkg/domain"
)

func created(status domain.BorrowStatus, at time.Time) domain.BorrowRecord {
	return domain.BorrowRecord{Status: status, CreatedAt: domain.NewTimestamp(at)}
}

func day(y int, m time.Month, d, hour int, loc *time.Location) time.Time {
	return time.Date(y, m, d, hour, 0, 0, 0, loc)
}

func TestBuildReportDailyBuckets(t *testing.T) {
	records := []domain.BorrowRecord{
		created(domain.BorrowBorrowed, day(2024, 1, 1, 9, time.UTC)),
		created(domain.BorrowReturned, day(2024, 1, 1, 15, time.UTC)),
		created(domain.BorrowBorrowed, day(2024, 1, 2, 10, time.UTC)),
	}
	report, err := BuildReport(records, Range{Start: "2024-01-01", End: "2024-01-02"}, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, []Day{
		{Date: "2024-01-01", Borrowed: 1, Returned: 1},
		{Date: "2024-01-02", Borrowed: 1, Returned: 0},
	}, report.Days)
	assert.Equal(t, Totals{Borrowed: 2, Returned: 1}, report.Totals)
}

func TestBuildReportRequiresBothDates(t *testing.T) {
	for _, r := range []Range{{Start: "2024-01-01"}, {End: "2024-01-02"}, {Start: " ", End: "2024-01-02"}} {
		report, err := BuildReport(nil, r, time.UTC)
		assert.ErrorIs(t, err, ErrRangeRequired)
		assert.Equal(t, Report{}, report)
	}
}

func TestBuildReportRejectsMalformedRange(t *testing.T) {
	_, err := BuildReport(nil, Range{Start: "2024-13-01", End: "2024-12-31"}, time.UTC)
	assert.ErrorIs(t, err, ErrInvalidRange)
	_, err = BuildReport(nil, Range{Start: "2024-02-01", End: "2024-01-01"}, time.UTC)
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestBuildReportUsesLocalCalendarDays(t *testing.T) {
	jakarta := time.FixedZone("WIB", 7*60*60)
	records := []domain.BorrowRecord{
		// 2024-01-01 20:00 UTC is already 2024-01-02 in UTC+7.
		created(domain.BorrowBorrowed, day(2024, 1, 1, 20, time.UTC)),
		// 2024-01-02 23:00 local is the last hour of the range.
		created(domain.BorrowReturned, day(2024, 1, 2, 23, jakarta)),
		// 2024-01-03 00:00 local is outside.
		created(domain.BorrowBorrowed, day(2024, 1, 3, 0, jakarta)),
		// 2023-12-31 23:00 local is outside.
		created(domain.BorrowBorrowed, day(2023, 12, 31, 23, jakarta)),
	}
	report, err := BuildReport(records, Range{Start: "2024-01-01", End: "2024-01-02"}, jakarta)
	require.NoError(t, err)
	assert.Equal(t, []Day{{Date: "2024-01-02", Borrowed: 1, Returned: 1}}, report.Days)
	assert.Equal(t, "WIB", report.Location)
}

func TestBuildReportSortsChronologically(t *testing.T) {
	records := []domain.BorrowRecord{
		created(domain.BorrowBorrowed, day(2024, 3, 9, 8, time.UTC)),
		created(domain.BorrowPending, day(2024, 3, 1, 8, time.UTC)),
		created(domain.BorrowReturned, day(2024, 3, 5, 8, time.UTC)),
	}
	report, err := BuildReport(records, Range{Start: "2024-03-01", End: "2024-03-31"}, time.UTC)
	require.NoError(t, err)
	require.Len(t, report.Days, 3)
	assert.Equal(t, []string{"2024-03-01", "2024-03-05", "2024-03-09"},
		[]string{report.Days[0].Date, report.Days[1].Date, report.Days[2].Date})
	assert.Equal(t, Day{Date: "2024-03-01"}, report.Days[0], "pending records open a day without counting")
}

func TestSummarize(t *testing.T) {
	records := []domain.BorrowRecord{
		{Status: domain.BorrowBorrowed}, {Status: domain.BorrowBorrowed},
		{Status: domain.BorrowReturned}, {Status: domain.BorrowPending}, {Status: domain.BorrowRejected},
	}
	assert.Equal(t, Totals{Borrowed: 2, Returned: 1}, Summarize(records))
}

func TestWriteCSV(t *testing.T) {
	report := Report{
		Days:   []Day{{Date: "2024-01-01", Borrowed: 1, Returned: 1}, {Date: "2024-01-02", Borrowed: 1}},
		Totals: Totals{Borrowed: 2, Returned: 1},
	}
	var buf bytes.Buffer
	require.NoError(t, report.WriteCSV(&buf))
	assert.Equal(t, "date,borrowed,returned\n2024-01-01,1,1\n2024-01-02,1,0\ntotal,2,1\n", buf.String())
}

func TestBuildReportKeepsAPIDatesOutsideUTC(t *testing.T) {
	payload := `[
		{"id": 1, "userId": 1, "bookId": 1, "status": "borrowed", "createdAt": "2024-01-01"},
		{"id": 2, "userId": 1, "bookId": 2, "status": "returned", "createdAt": "2024-01-01 10:00:00"},
		{"id": 3, "userId": 2, "bookId": 1, "status": "borrowed", "createdAt": "2024-01-02T00:30:00"}
	]`
	var records []domain.BorrowRecord
	require.NoError(t, json.Unmarshal([]byte(payload), &records))

	for _, name := range []string{"UTC", "America/New_York", "Asia/Tokyo"} {
		loc, err := time.LoadLocation(name)
		require.NoError(t, err)
		report, err := BuildReport(records, Range{Start: "2024-01-01", End: "2024-01-02"}, loc)
		require.NoError(t, err, name)
		assert.Equal(t, []Day{
			{Date: "2024-01-01", Borrowed: 1, Returned: 1},
			{Date: "2024-01-02", Borrowed: 1, Returned: 0},
		}, report.Days, name)
		assert.Equal(t, Totals{Borrowed: 2, Returned: 1}, report.Totals, name)
	}
}

func TestBuildReportConvertsZonedTimes(t *testing.T) {
	var records []domain.BorrowRecord
	require.NoError(t, json.Unmarshal([]byte(`[{"id": 1, "status": "borrowed", "createdAt": "2024-01-02T03:00:00Z"}]`), &records))
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	report, err := BuildReport(records, Range{Start: "2024-01-01", End: "2024-01-02"}, ny)
	require.NoError(t, err)
	assert.Equal(t, []Day{{Date: "2024-01-01", Borrowed: 1}}, report.Days)
}
