package timerange

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ademuri/scrobble-server/internal/apperr"
)

// Wednesday.
var testNow = time.Date(2022, time.August, 17, 15, 4, 5, 0, time.UTC)

type values map[string]string

func (v values) Get(key string) (string, bool) {
	s, ok := v[key]
	return s, ok
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestParseToken(t *testing.T) {
	tests := []struct {
		token string
		start time.Time
		end   time.Time
	}{
		{"2020", date(2020, 1, 1), date(2021, 1, 1)},
		{"2020/02", date(2020, 2, 1), date(2020, 3, 1)},
		{"2020-02", date(2020, 2, 1), date(2020, 3, 1)},
		{"2020/1/31", date(2020, 1, 31), date(2020, 2, 1)},
		{"2020-12-31", date(2020, 12, 31), date(2021, 1, 1)},
		{"2022/W01", date(2022, 1, 3), date(2022, 1, 10)},
		{"2020/w53", date(2020, 12, 28), date(2021, 1, 4)},
		{"today", date(2022, 8, 17), date(2022, 8, 18)},
		{"yesterday", date(2022, 8, 16), date(2022, 8, 17)},
		{"thisweek", date(2022, 8, 15), date(2022, 8, 22)},
		{"thismonth", date(2022, 8, 1), date(2022, 9, 1)},
		{"thisyear", date(2022, 1, 1), date(2023, 1, 1)},
		{"Monday", date(2022, 8, 15), date(2022, 8, 16)},
		{"wednesday", date(2022, 8, 17), date(2022, 8, 18)},
		{"thursday", date(2022, 8, 11), date(2022, 8, 12)},
		{"august", date(2022, 8, 1), date(2022, 9, 1)},
		{"september", date(2021, 9, 1), date(2021, 10, 1)},
	}

	for _, tc := range tests {
		t.Run(tc.token, func(t *testing.T) {
			r, err := ParseToken(tc.token, testNow)
			if err != nil {
				t.Fatalf("ParseToken(%q): %v", tc.token, err)
			}
			if r.From == nil || r.To == nil {
				t.Fatalf("ParseToken(%q) = %+v, want both bounds", tc.token, r)
			}
			if !r.From.Equal(tc.start) {
				t.Errorf("start = %v, want %v", r.From, tc.start)
			}
			if !r.To.Equal(tc.end) {
				t.Errorf("end = %v, want %v", r.To, tc.end)
			}
		})
	}
}

func TestParseTokenAlltime(t *testing.T) {
	r, err := ParseToken("alltime", testNow)
	if err != nil {
		t.Fatalf("ParseToken(alltime): %v", err)
	}
	if r.From != nil || r.To != nil {
		t.Errorf("alltime should be unbounded, got %+v", r)
	}
}

func TestParseTokenInvalid(t *testing.T) {
	for _, token := range []string{"not_real", "2020-01-0123", "2020/13", "2021/02/30", "2021/W53", "2020/W0", ""} {
		if _, err := ParseToken(token, testNow); err == nil {
			t.Errorf("ParseToken(%q) should have failed", token)
		}
	}
}

func TestParseTokenErrorText(t *testing.T) {
	_, err := ParseToken("not_real", testNow)
	if err == nil {
		t.Fatalf("ParseToken(not_real) should have failed")
	}
	if got, want := err.Error(), `invalid format: "not_real"`; got != want {
		t.Errorf("error = %q, want %q", got, want)
	}
}

func TestParseSlots(t *testing.T) {
	tests := []struct {
		name string
		v    values
		want Range
	}{
		{"empty", values{}, Range{}},
		{"from only", values{"from": "2020"}, Range{From: ptr(date(2020, 1, 1))}},
		{"since alias", values{"since": "2020/06"}, Range{From: ptr(date(2020, 6, 1))}},
		{"until is end of token", values{"until": "2020"}, Range{To: ptr(date(2021, 1, 1))}},
		{"merged", values{"start": "2020", "end": "2020/03"}, Between(date(2020, 1, 1), date(2020, 4, 1))},
		{"same token", values{"from": "2020", "to": "2020"}, Between(date(2020, 1, 1), date(2021, 1, 1))},
		{"in", values{"in": "2021/W02"}, Between(date(2021, 1, 11), date(2021, 1, 18))},
		{"during", values{"during": "thismonth"}, Between(date(2022, 8, 1), date(2022, 9, 1))},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Parse(tc.v, testNow)
			if err != nil {
				t.Fatalf("Parse(%v): %v", tc.v, err)
			}
			if !got.Equal(tc.want) {
				t.Errorf("Parse(%v) = %s, want %s", tc.v, show(got), show(tc.want))
			}
		})
	}
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name  string
		v     values
		param string
	}{
		{"bad token", values{"from": "derp"}, "from"},
		{"swapped", values{"from": "2021", "until": "2020"}, "from"},
		{"adjacent swapped", values{"from": "2020/03", "until": "2020/02"}, "from"},
		{"adjacent days", values{"since": "2020/03/02", "to": "2020/03/01"}, "since"},
		{"in with from", values{"within": "2020", "since": "2019"}, "within"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(tc.v, testNow)
			if err == nil {
				t.Fatalf("Parse(%v) should have failed", tc.v)
			}
			var mi *apperr.MalformedInputError
			if !errors.As(err, &mi) {
				t.Fatalf("expected MalformedInputError, got %T: %v", err, err)
			}
			if mi.Param != tc.param {
				t.Errorf("Param = %q, want %q", mi.Param, tc.param)
			}
		})
	}
}

func TestParseIsDeterministic(t *testing.T) {
	v := values{"from": "monday", "until": "today"}
	a, err := Parse(v, testNow)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	b, err := Parse(v, testNow)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !a.Equal(b) {
		t.Errorf("Parse not deterministic: %s vs %s", show(a), show(b))
	}
}

func TestBuckets(t *testing.T) {
	span := Between(date(2022, 1, 15), date(2022, 4, 1))
	step := Step{Unit: Month, N: 1, Trail: 2}
	buckets := Buckets(span, step, date(2021, 6, 3), testNow)
	if len(buckets) != 3 {
		t.Fatalf("got %d buckets, want 3", len(buckets))
	}
	if !buckets[0].Start.Equal(date(2022, 1, 1)) {
		t.Errorf("first bucket starts %v, want aligned to 2022-01-01", buckets[0].Start)
	}
	feb := buckets[1]
	if !feb.Window.Equal(Between(date(2022, 1, 1), date(2022, 3, 1))) {
		t.Errorf("trail window = %s", show(feb.Window))
	}
	if feb.Desc != "2022/02" {
		t.Errorf("Desc = %q, want 2022/02", feb.Desc)
	}
}

func TestBucketsCumulativeIgnoresTrail(t *testing.T) {
	datasetStart := time.Date(2021, 6, 3, 12, 0, 0, 0, time.UTC)
	span := Between(date(2022, 1, 1), date(2022, 1, 29))
	step := Step{Unit: Week, N: 1, Trail: 5, Cumulative: true}

	for _, b := range Buckets(span, step, datasetStart, testNow) {
		if !b.Window.Equal(Between(datasetStart, b.End)) {
			t.Errorf("bucket %s window = %s, want [datasetStart, end)", b.Desc, show(b.Window))
		}
	}
}

func TestBucketsMultiStep(t *testing.T) {
	span := Between(date(2020, 1, 1), date(2022, 1, 1))
	buckets := Buckets(span, Step{Unit: Year, N: 2, Trail: 1}, time.Time{}, testNow)
	if len(buckets) != 1 {
		t.Fatalf("got %d buckets, want 1", len(buckets))
	}
	if buckets[0].Desc != "2020 - 2021" {
		t.Errorf("Desc = %q", buckets[0].Desc)
	}
}

func TestBucketsStopsPastMax(t *testing.T) {
	span := Between(date(1900, 1, 1), testNow)
	buckets := Buckets(span, Step{Unit: Day, N: 1, Trail: 1}, time.Time{}, testNow)
	if len(buckets) != MaxBuckets+1 {
		t.Fatalf("got %d buckets, want %d", len(buckets), MaxBuckets+1)
	}
}

func TestBucketsEmptyDataset(t *testing.T) {
	if b := Buckets(Range{}, DefaultStep(), time.Time{}, testNow); b != nil {
		t.Errorf("expected no buckets without a lower bound, got %d", len(b))
	}
}

func TestParseUnit(t *testing.T) {
	for in, want := range map[string]Unit{"day": Day, "Weeks": Week, "month": Month, "years": Year} {
		got, err := ParseUnit(in)
		if err != nil || got != want {
			t.Errorf("ParseUnit(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseUnit("fortnight"); err == nil || !strings.Contains(err.Error(), "unknown step unit") {
		t.Errorf("ParseUnit(fortnight) error = %v", err)
	}
}

func ptr(t time.Time) *time.Time {
	return &t
}

func show(r Range) string {
	f, t := "-inf", "+inf"
	if r.From != nil {
		f = r.From.Format(time.RFC3339)
	}
	if r.To != nil {
		t = r.To.Format(time.RFC3339)
	}
	return "[" + f + ", " + t + ")"
}
