package query

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/ademuri/scrobble-server/internal/apperr"
	"github.com/ademuri/scrobble-server/internal/timerange"
)

// Unbounded is the Limit of a page that takes every remaining entry.
const Unbounded = -1

// Page is an offset/limit pair.
type Page struct {
	Offset int
	Limit  int
}

// AllEntries is the page used when no pagination was requested.
var AllEntries = Page{Offset: 0, Limit: Unbounded}

func (p Page) Bounded() bool {
	return p.Limit != Unbounded
}

// Apply slices list according to the page.
func Apply[T any](p Page, list []T) []T {
	if p.Offset < 0 || p.Offset >= len(list) {
		return list[:0]
	}
	list = list[p.Offset:]
	if p.Bounded() && p.Limit < len(list) {
		list = list[:p.Limit]
	}
	return list
}

// ResolvePage reads page/perpage and the legacy max parameter.
func ResolvePage(p Params) (Page, error) {
	perpage, hasPerpage, err := positiveInt(p, "perpage")
	if err != nil {
		return Page{}, err
	}
	if !hasPerpage {
		n, hasMax, err := positiveInt(p, "max")
		if err != nil {
			return Page{}, err
		}
		if hasMax {
			return Page{Offset: 0, Limit: n}, nil
		}
	}

	page := 0
	if v, ok := p.Get("page"); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return Page{}, apperr.Malformed("page", v, err)
		}
		if n < 0 {
			return Page{}, apperr.Malformedf("page", v, "must not be negative")
		}
		page = n
	}

	if !hasPerpage {
		return AllEntries, nil
	}
	if page > math.MaxInt/perpage {
		return Page{}, apperr.Malformedf("page", strconv.Itoa(page), "offset overflows with perpage %d", perpage)
	}
	return Page{Offset: page * perpage, Limit: perpage}, nil
}

// ResolveStep reads step/stepn/trail/cumulative.
func ResolveStep(p Params) (timerange.Step, error) {
	step := timerange.DefaultStep()

	if v, ok := p.Get("step"); ok {
		u, err := timerange.ParseUnit(v)
		if err != nil {
			return step, apperr.Malformed("step", v, err)
		}
		step.Unit = u
	}
	if n, ok, err := positiveInt(p, "stepn"); err != nil {
		return step, err
	} else if ok {
		step.N = n
	}
	if v, ok := p.Get("trail"); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return step, apperr.Malformed("trail", v, err)
		}
		if n < 0 {
			return step, apperr.Malformedf("trail", v, "must not be negative")
		}
		step.Trail = n
	}
	if v, ok := p.Get("cumulative"); ok {
		b, err := parseFlag(v)
		if err != nil {
			return step, apperr.Malformed("cumulative", v, err)
		}
		step.Cumulative = b
	}
	if step.Cumulative {
		step.Trail = 0
	}
	return step, nil
}

func positiveInt(p Params, key string) (int, bool, error) {
	v, ok := p.Get(key)
	if !ok {
		return 0, false, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, true, apperr.Malformed(key, v, err)
	}
	if n <= 0 {
		return 0, true, apperr.Malformedf(key, v, "must be positive")
	}
	return n, true, nil
}

// parseFlag treats a bare flag ("?associated") as true.
func parseFlag(v string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("not a boolean")
	}
}
