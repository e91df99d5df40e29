package ingest

import (
	"fmt"
	"path"
	"strings"
	"time"
)

// DateLayout is the wire format for request dates and fetched days.
const DateLayout = "2006-01-02"

// requestDateLayout also accepts unpadded months and days ("2024-3-1").
const requestDateLayout = "2006-1-2"

// ParseDate parses a YYYY-MM-DD date. Leading zeros on month and day are optional.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(requestDateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q must be YYYY-MM-DD", ErrInvalidRequest, s)
	}
	return t, nil
}

// DateRange lists every day from start to end inclusive. It is empty when
// start is after end.
func DateRange(start, end time.Time) []string {
	var days []string
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		days = append(days, d.Format(DateLayout))
	}
	return days
}

// MonthKey maps "2024-03-07" to "2024_03".
func MonthKey(day string) string {
	if len(day) < 7 {
		return strings.ReplaceAll(day, "-", "_")
	}
	return strings.ReplaceAll(day[:7], "-", "_")
}

// Layout places monthly artifacts inside the bucket.
type Layout struct {
	StagingPrefix string
	BronzePrefix  string
}

// DefaultLayout matches the historical container layout.
var DefaultLayout = Layout{StagingPrefix: "Staging", BronzePrefix: "Bronze"}

// JSONPath returns <staging>/<keyword>/<keyword><month>.json.
func (l Layout) JSONPath(keyword, month string) string {
	return path.Join(l.StagingPrefix, keyword, keyword+month+".json")
}

// ParquetPath returns <bronze>/<keyword>/<keyword><month>.parquet.
func (l Layout) ParquetPath(keyword, month string) string {
	return path.Join(l.BronzePrefix, keyword, keyword+month+".parquet")
}

func (l Layout) withDefaults() Layout {
	if l.StagingPrefix == "" {
		l.StagingPrefix = DefaultLayout.StagingPrefix
	}
	if l.BronzePrefix == "" {
		l.BronzePrefix = DefaultLayout.BronzePrefix
	}
	return l
}
