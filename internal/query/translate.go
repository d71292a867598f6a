package query

import (
	"time"

	"github.com/ademuri/scrobble-server/internal/timerange"
)

// Capabilities declares which parameter groups an endpoint understands.
type Capabilities struct {
	NeedsFilter      bool
	NeedsTimeRange   bool
	NeedsAggregation bool
	NeedsPagination  bool
	ForceArtist      bool
	ForceTrack       bool
	RequireEntity    bool
}

// Query is the backend-facing form of a request. Groups the endpoint did not
// ask for keep their zero (or "everything") values.
type Query struct {
	Filter FilterSpec
	Range  timerange.Range
	Step   timerange.Step
	Page   Page
}

// Translate resolves p for an endpoint with the given capabilities. now
// anchors relative time expressions.
func Translate(p Params, caps Capabilities, now time.Time) (Query, error) {
	q := Query{Page: AllEntries}

	if caps.NeedsFilter || caps.ForceArtist || caps.ForceTrack || caps.RequireEntity {
		f, err := BuildFilter(p, caps)
		if err != nil {
			return Query{}, err
		}
		q.Filter = f
	}
	if caps.NeedsTimeRange {
		r, err := timerange.Parse(p, now)
		if err != nil {
			return Query{}, err
		}
		q.Range = r
	}
	if caps.NeedsAggregation {
		s, err := ResolveStep(p)
		if err != nil {
			return Query{}, err
		}
		q.Step = s
	}
	if caps.NeedsPagination {
		pg, err := ResolvePage(p)
		if err != nil {
			return Query{}, err
		}
		q.Page = pg
	}
	return q, nil
}
