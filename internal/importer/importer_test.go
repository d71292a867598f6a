package importer

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/ademuri/lastfm-go/lastfm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/ademuri/scrobble-server/internal/query"
	"github.com/ademuri/scrobble-server/internal/store"
	"github.com/ademuri/scrobble-server/internal/timerange"
)

func createTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// history returns pages of two scrobbles each, one day apart, newest first.
func history(pages int) []Page {
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC).Unix()
	var out []Page
	ts := base
	for i := 0; i < pages; i++ {
		p := Page{TotalPages: pages}
		for j := 0; j < 2; j++ {
			p.Scrobbles = append(p.Scrobbles, store.RawScrobble{
				Artists: []string{"Artist"},
				Title:   "Song",
				Time:    ts,
			})
			ts -= 24 * 60 * 60
		}
		out = append(out, p)
	}
	return out
}

func fakeFetch(pages []Page, calls *int) FetchFunc {
	return func(user string, page int) (Page, error) {
		*calls++
		if page < 1 || page > len(pages) {
			return Page{TotalPages: len(pages)}, nil
		}
		return pages[page-1], nil
	}
}

func TestImportAllPages(t *testing.T) {
	s := createTestStore(t)
	calls := 0
	im := NewWithFetcher(fakeFetch(history(3), &calls), s, rate.NewLimiter(rate.Inf, 1))

	res, err := im.Import(context.Background(), "Someone", Options{})
	require.NoError(t, err)
	assert.Equal(t, Result{Pages: 3, Fetched: 6, Added: 6}, res)
	assert.Equal(t, 3, calls)

	n, err := s.CountScrobbles(context.Background(), query.FilterSpec{}, timerange.Range{})
	require.NoError(t, err)
	assert.Equal(t, 6, n)
}

func TestImportStopsAtExistingData(t *testing.T) {
	s := createTestStore(t)
	calls := 0
	pages := history(3)
	im := NewWithFetcher(fakeFetch(pages, &calls), s, rate.NewLimiter(rate.Inf, 1))

	_, err := im.Import(context.Background(), "someone", Options{})
	require.NoError(t, err)

	calls = 0
	res, err := im.Import(context.Background(), "someone", Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, res.Added)

	calls = 0
	res, err = im.Import(context.Background(), "someone", Options{Force: true})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 0, res.Added)
}

func TestImportAfter(t *testing.T) {
	s := createTestStore(t)
	calls := 0
	im := NewWithFetcher(fakeFetch(history(5), &calls), s, rate.NewLimiter(rate.Inf, 1))

	// The second page ends on May 29.
	after := time.Date(2024, 5, 30, 0, 0, 0, 0, time.UTC)
	res, err := im.Import(context.Background(), "someone", Options{After: after})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 4, res.Added)
}

func TestImportRetriesServerErrors(t *testing.T) {
	s := createTestStore(t)
	pages := history(1)
	calls := 0
	fetch := func(user string, page int) (Page, error) {
		calls++
		if calls < 3 {
			return Page{}, &lastfm.LastfmError{Code: 500, Message: "unavailable"}
		}
		return pages[0], nil
	}
	im := NewWithFetcher(fetch, s, rate.NewLimiter(rate.Inf, 1))

	res, err := im.Import(context.Background(), "someone", Options{})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 2, res.Added)
}

func TestImportDoesNotRetryClientErrors(t *testing.T) {
	s := createTestStore(t)
	calls := 0
	fetch := func(user string, page int) (Page, error) {
		calls++
		return Page{}, errors.New("user not found")
	}
	im := NewWithFetcher(fetch, s, rate.NewLimiter(rate.Inf, 1))

	_, err := im.Import(context.Background(), "someone", Options{})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestImportRequiresUser(t *testing.T) {
	im := NewWithFetcher(nil, nil, rate.NewLimiter(rate.Inf, 1))
	_, err := im.Import(context.Background(), "  ", Options{})
	assert.Error(t, err)
}
