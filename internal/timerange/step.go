package timerange

import (
	"fmt"
	"strings"
	"time"
)

// Unit is the calendar unit a series is bucketed by.
type Unit int

const (
	Day Unit = iota + 1
	Week
	Month
	Year
)

var unitNames = map[string]Unit{
	"day":   Day,
	"week":  Week,
	"month": Month,
	"year":  Year,
}

// ParseUnit accepts the unit name in singular or plural form.
func ParseUnit(s string) (Unit, error) {
	name := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), "s")
	if u, ok := unitNames[name]; ok {
		return u, nil
	}
	return 0, fmt.Errorf("unknown step unit %q", s)
}

func (u Unit) String() string {
	switch u {
	case Day:
		return "day"
	case Week:
		return "week"
	case Month:
		return "month"
	case Year:
		return "year"
	default:
		return "invalid"
	}
}

// Truncate returns the start of the unit containing t. Weeks start on Monday.
func (u Unit) Truncate(t time.Time) time.Time {
	y, m, d := t.Date()
	loc := t.Location()
	switch u {
	case Week:
		back := (int(t.Weekday()) + 6) % 7
		return time.Date(y, m, d-back, 0, 0, 0, 0, loc)
	case Month:
		return time.Date(y, m, 1, 0, 0, 0, 0, loc)
	case Year:
		return time.Date(y, time.January, 1, 0, 0, 0, 0, loc)
	default:
		return time.Date(y, m, d, 0, 0, 0, 0, loc)
	}
}

// Add moves t by n units. t is expected to be unit-aligned.
func (u Unit) Add(t time.Time, n int) time.Time {
	switch u {
	case Week:
		return t.AddDate(0, 0, 7*n)
	case Month:
		return t.AddDate(0, n, 0)
	case Year:
		return t.AddDate(n, 0, 0)
	default:
		return t.AddDate(0, 0, n)
	}
}

// Step is the aggregation spec for series endpoints. Trail counts steps per
// window; Cumulative windows start at the beginning of the dataset instead.
type Step struct {
	Unit       Unit
	N          int
	Trail      int
	Cumulative bool
}

// DefaultStep is one calendar month per bucket with no trail.
func DefaultStep() Step {
	return Step{Unit: Month, N: 1, Trail: 1}
}

// MaxBuckets bounds the length of a series. Buckets stops one past it so
// callers can tell a truncated series from a complete one.
const MaxBuckets = 10000

// Bucket is one entry of a series. Window is the range that is counted for
// the bucket, which differs from [Start, End) when a trail or cumulative
// aggregation is in effect.
type Bucket struct {
	Start  time.Time
	End    time.Time
	Window Range
	Desc   string
}

// Buckets cuts span into consecutive unit-aligned buckets. Unbounded sides of
// span default to datasetStart and now. No buckets are produced when there is
// no lower bound at all.
func Buckets(span Range, step Step, datasetStart, now time.Time) []Bucket {
	from := datasetStart
	if span.From != nil {
		from = *span.From
	}
	to := now
	if span.To != nil {
		to = *span.To
	}
	if from.IsZero() || step.N < 1 {
		return nil
	}

	trail := step.Trail
	if trail < 1 {
		trail = 1
	}

	var buckets []Bucket
	for start := step.Unit.Truncate(from); start.Before(to) && len(buckets) <= MaxBuckets; start = step.Unit.Add(start, step.N) {
		end := step.Unit.Add(start, step.N)
		window := Between(step.Unit.Add(end, -trail*step.N), end)
		if step.Cumulative {
			window = Between(datasetStart, end)
		}
		buckets = append(buckets, Bucket{
			Start:  start,
			End:    end,
			Window: window,
			Desc:   describe(step.Unit, start, end, step.N),
		})
	}
	return buckets
}

func describe(u Unit, start, end time.Time, n int) string {
	label := func(t time.Time) string {
		switch u {
		case Year:
			return t.Format("2006")
		case Month:
			return t.Format("2006/01")
		case Week:
			y, w := t.ISOWeek()
			return fmt.Sprintf("%d/W%02d", y, w)
		default:
			return t.Format("2006/01/02")
		}
	}
	if n == 1 {
		return label(start)
	}
	return label(start) + " - " + label(u.Add(end, -1))
}
