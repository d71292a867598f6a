// Package importer pulls scrobble history from last.fm into the store.
package importer

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ademuri/lastfm-go/lastfm"
	"github.com/avast/retry-go"
	"golang.org/x/time/rate"

	"github.com/ademuri/scrobble-server/internal/logging"
	"github.com/ademuri/scrobble-server/internal/store"
)

// Origin tags imported scrobbles.
const Origin = "import:lastfm"

// Page is one page of a user's history, newest first.
type Page struct {
	TotalPages int
	Scrobbles  []store.RawScrobble
}

// FetchFunc fetches one page of a user's history. Pages start at 1.
type FetchFunc func(user string, page int) (Page, error)

// Sink receives converted scrobbles.
type Sink interface {
	AddScrobbles(ctx context.Context, raws []store.RawScrobble, origin string) (int, error)
}

type Options struct {
	// Stop once a page reaches scrobbles older than After.
	After time.Time
	// Keep paging even when a whole page was already present.
	Force bool
}

type Result struct {
	Pages   int
	Fetched int
	Added   int
}

type Importer struct {
	fetch   FetchFunc
	sink    Sink
	limiter *rate.Limiter
}

// New returns an importer using the last.fm API with the given credentials,
// limited to one request per second.
func New(apiKey, secret string, sink Sink) *Importer {
	client := lastfm.New(apiKey, secret)
	client.SetUserAgent("scrobble-server/1.0")
	fetch := func(user string, page int) (Page, error) {
		recent, err := client.User.GetRecentTracks(lastfm.P{
			"limit": 200,
			"page":  page,
			"user":  user,
		})
		if err != nil {
			return Page{}, err
		}
		return convert(recent), nil
	}
	return NewWithFetcher(fetch, sink, rate.NewLimiter(rate.Every(time.Second), 1))
}

func NewWithFetcher(fetch FetchFunc, sink Sink, limiter *rate.Limiter) *Importer {
	return &Importer{fetch: fetch, sink: sink, limiter: limiter}
}

// Import pages backwards through the user's history.
func (im *Importer) Import(ctx context.Context, user string, opts Options) (Result, error) {
	user = strings.ToLower(strings.TrimSpace(user))
	if user == "" {
		return Result{}, errors.New("no last.fm user given")
	}
	logger := logging.Component("importer").WithField("user", user)

	var res Result
	page := 1 // First page is 1
	pages := 0
	for {
		var current Page
		err := retry.Do(
			func() error {
				var err error
				current, err = im.fetch(user, page)
				return err
			},
			retry.Context(ctx),
			retry.Attempts(5),
			retry.RetryIf(func(err error) bool {
				var lerr *lastfm.LastfmError
				if errors.As(err, &lerr) && lerr.Code/100 == 5 {
					logger.WithError(lerr).Warn("last.fm errored, retrying")
					return true
				}
				return false
			}),
		)
		if err != nil {
			return res, fmt.Errorf("fetching recent tracks (page %d): %w", page, err)
		}

		if pages == 0 {
			pages = current.TotalPages
		}
		res.Pages++
		res.Fetched += len(current.Scrobbles)

		added, err := im.sink.AddScrobbles(ctx, current.Scrobbles, Origin)
		if err != nil {
			return res, fmt.Errorf("inserting recent tracks (page %d): %w", page, err)
		}
		res.Added += added

		oldest := oldestOf(current.Scrobbles)
		logger.Infof("Downloaded page %d of %d (oldest: %s, %d new)", page, pages, oldest.Format("2006-01-02"), added)
		page++

		if page > pages || len(current.Scrobbles) == 0 {
			break
		}
		if !opts.After.IsZero() && oldest.Before(opts.After) {
			break
		}
		if !opts.Force && added == 0 {
			logger.Info("Refreshed back to existing data")
			break
		}

		if err := im.limiter.Wait(ctx); err != nil {
			return res, err
		}
	}
	return res, nil
}

func oldestOf(raws []store.RawScrobble) time.Time {
	var oldest time.Time
	for _, r := range raws {
		if ts := time.Unix(r.Time, 0); oldest.IsZero() || ts.Before(oldest) {
			oldest = ts
		}
	}
	return oldest
}

// convert skips the now-playing entry, which has no timestamp.
func convert(recent lastfm.UserGetRecentTracks) Page {
	p := Page{TotalPages: recent.TotalPages}
	for _, t := range recent.Tracks {
		uts, err := strconv.ParseInt(t.Date.Uts, 10, 64)
		if err != nil || uts <= 0 {
			continue
		}
		raw := store.RawScrobble{
			Title: t.Name,
			Album: t.Album.Name,
			Time:  uts,
		}
		if t.Artist.Name != "" {
			raw.Artists = []string{t.Artist.Name}
		}
		p.Scrobbles = append(p.Scrobbles, raw)
	}
	return p
}
