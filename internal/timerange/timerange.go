// Package timerange turns the fuzzy time expressions accepted by the API
// ("2022/08", "2022/W42", "thismonth", "monday", ...) into concrete half-open
// ranges, and cuts ranges into series buckets.
package timerange

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ademuri/scrobble-server/internal/apperr"
)

// Parameter aliases for each slot, in lookup order.
var (
	FromKeys  = []string{"from", "since", "start"}
	UntilKeys = []string{"until", "to", "end"}
	InKeys    = []string{"in", "within", "during"}
)

// Range is a half-open interval [From, To). A nil bound is unbounded.
type Range struct {
	From *time.Time
	To   *time.Time
}

// Between returns the bounded range [from, to).
func Between(from, to time.Time) Range {
	return Range{From: &from, To: &to}
}

// Contains reports whether t falls inside the range.
func (r Range) Contains(t time.Time) bool {
	if r.From != nil && t.Before(*r.From) {
		return false
	}
	if r.To != nil && !t.Before(*r.To) {
		return false
	}
	return true
}

// Equal compares bounds by instant.
func (r Range) Equal(o Range) bool {
	return sameBound(r.From, o.From) && sameBound(r.To, o.To)
}

func sameBound(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

// Unix returns the bounds as unix seconds, using 0 and max int64 for
// unbounded sides.
func (r Range) Unix() (int64, int64) {
	from, to := int64(0), int64(1<<63-1)
	if r.From != nil {
		from = r.From.Unix()
	}
	if r.To != nil {
		to = r.To.Unix()
	}
	return from, to
}

// Values is the read side of a request parameter map.
type Values interface {
	Get(key string) (string, bool)
}

// Parse resolves the from/until/in slots of v against now.
func Parse(v Values, now time.Time) (Range, error) {
	inKey, inVal, hasIn := lookup(v, InKeys)
	fromKey, fromVal, hasFrom := lookup(v, FromKeys)
	untilKey, untilVal, hasUntil := lookup(v, UntilKeys)

	if hasIn {
		if hasFrom || hasUntil {
			return Range{}, apperr.Malformedf(inKey, inVal, "cannot be combined with from/until")
		}
		r, err := ParseToken(inVal, now)
		if err != nil {
			return Range{}, apperr.Malformed(inKey, inVal, err)
		}
		return r, nil
	}

	var r Range
	if hasFrom {
		tr, err := ParseToken(fromVal, now)
		if err != nil {
			return Range{}, apperr.Malformed(fromKey, fromVal, err)
		}
		r.From = tr.From
	}
	if hasUntil {
		tr, err := ParseToken(untilVal, now)
		if err != nil {
			return Range{}, apperr.Malformed(untilKey, untilVal, err)
		}
		r.To = tr.To
	}
	if r.From != nil && r.To != nil && !r.From.Before(*r.To) {
		return Range{}, apperr.Malformedf(fromKey, fromVal, "start is not before end %q", untilVal)
	}
	return r, nil
}

func lookup(v Values, keys []string) (string, string, bool) {
	for _, k := range keys {
		if val, ok := v.Get(k); ok {
			return k, val, true
		}
	}
	return "", "", false
}

var (
	yearPattern  = regexp.MustCompile(`^(\d{4})$`)
	monthPattern = regexp.MustCompile(`^(\d{4})[/-](\d{1,2})$`)
	dayPattern   = regexp.MustCompile(`^(\d{4})[/-](\d{1,2})[/-](\d{1,2})$`)
	weekPattern  = regexp.MustCompile(`^(\d{4})[/-][wW](\d{1,2})$`)
)

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

var months = map[string]time.Month{
	"january":   time.January,
	"february":  time.February,
	"march":     time.March,
	"april":     time.April,
	"may":       time.May,
	"june":      time.June,
	"july":      time.July,
	"august":    time.August,
	"september": time.September,
	"october":   time.October,
	"november":  time.November,
	"december":  time.December,
}

// ParseToken resolves a single time expression to the interval it names.
// Calendar tokens are interpreted in now's location.
func ParseToken(token string, now time.Time) (Range, error) {
	tok := strings.ToLower(strings.TrimSpace(token))
	loc := now.Location()

	if m := dayPattern.FindStringSubmatch(tok); m != nil {
		y, mo, d := atoi(m[1]), atoi(m[2]), atoi(m[3])
		start := time.Date(y, time.Month(mo), d, 0, 0, 0, 0, loc)
		if start.Year() != y || int(start.Month()) != mo || start.Day() != d {
			return Range{}, fmt.Errorf("no such date: %q", token)
		}
		return Between(start, Day.Add(start, 1)), nil
	}
	if m := monthPattern.FindStringSubmatch(tok); m != nil {
		y, mo := atoi(m[1]), atoi(m[2])
		if mo < 1 || mo > 12 {
			return Range{}, fmt.Errorf("no such month: %q", token)
		}
		start := time.Date(y, time.Month(mo), 1, 0, 0, 0, 0, loc)
		return Between(start, Month.Add(start, 1)), nil
	}
	if m := yearPattern.FindStringSubmatch(tok); m != nil {
		start := time.Date(atoi(m[1]), time.January, 1, 0, 0, 0, 0, loc)
		return Between(start, Year.Add(start, 1)), nil
	}
	if m := weekPattern.FindStringSubmatch(tok); m != nil {
		start, err := isoWeekStart(atoi(m[1]), atoi(m[2]), loc)
		if err != nil {
			return Range{}, fmt.Errorf("%q: %w", token, err)
		}
		return Between(start, Week.Add(start, 1)), nil
	}

	today := Day.Truncate(now)
	switch tok {
	case "today", "thisday":
		return Between(today, Day.Add(today, 1)), nil
	case "yesterday":
		return Between(Day.Add(today, -1), today), nil
	case "thisweek":
		start := Week.Truncate(now)
		return Between(start, Week.Add(start, 1)), nil
	case "thismonth":
		start := Month.Truncate(now)
		return Between(start, Month.Add(start, 1)), nil
	case "thisyear":
		start := Year.Truncate(now)
		return Between(start, Year.Add(start, 1)), nil
	case "alltime":
		return Range{}, nil
	}

	if wd, ok := weekdays[tok]; ok {
		back := (int(now.Weekday()) - int(wd) + 7) % 7
		start := Day.Add(today, -back)
		return Between(start, Day.Add(start, 1)), nil
	}
	if mo, ok := months[tok]; ok {
		y := now.Year()
		if mo > now.Month() {
			y--
		}
		start := time.Date(y, mo, 1, 0, 0, 0, 0, loc)
		return Between(start, Month.Add(start, 1)), nil
	}

	return Range{}, fmt.Errorf("invalid format: %q", token)
}

// isoWeekStart returns the Monday that starts ISO week w of year y.
func isoWeekStart(y, w int, loc *time.Location) (time.Time, error) {
	if w < 1 || w > 53 {
		return time.Time{}, fmt.Errorf("no such week %d", w)
	}
	jan4 := time.Date(y, time.January, 4, 0, 0, 0, 0, loc)
	week1 := Week.Truncate(jan4)
	start := Day.Add(week1, (w-1)*7)
	if iy, iw := start.ISOWeek(); iy != y || iw != w {
		return time.Time{}, fmt.Errorf("year %d has no week %d", y, w)
	}
	return start, nil
}

func atoi(s string) int {
	// Only called on regexp digit groups.
	n, _ := strconv.Atoi(s)
	return n
}
