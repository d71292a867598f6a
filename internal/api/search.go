package api

import (
	"net/url"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/ademuri/scrobble-server/internal/images"
	"github.com/ademuri/scrobble-server/internal/store"
)

type ArtistResult struct {
	Artist string `json:"artist"`
	Link   string `json:"link"`
	Image  string `json:"image"`
}

type TrackResult struct {
	Track store.Track `json:"track"`
	Link  string      `json:"link"`
	Image string      `json:"image"`
}

// matchRank is 0 when candidate starts with q, 1 when a later word does and
// 2 otherwise. q must already be lowercase.
func matchRank(candidate, q string) int {
	c := strings.ToLower(candidate)
	switch {
	case strings.HasPrefix(c, q):
		return 0
	case strings.Contains(c, " "+q):
		return 1
	default:
		return 2
	}
}

// SortByMatch orders items by match rank, then by name length. Equal keys
// keep their input order.
func SortByMatch[T any](items []T, q string, name func(T) string) {
	q = strings.ToLower(q)
	sort.SliceStable(items, func(i, j int) bool {
		a, b := name(items[i]), name(items[j])
		ra, rb := matchRank(a, q), matchRank(b, q)
		if ra != rb {
			return ra < rb
		}
		return utf8.RuneCountInString(a) < utf8.RuneCountInString(b)
	})
}

func artistLink(name string) string {
	return "/artist?" + url.Values{"artist": {name}}.Encode()
}

func trackLink(t store.Track) string {
	v := url.Values{"artist": t.Artists, "title": {t.Title}}
	return "/track?" + v.Encode()
}

// rankSearch sorts and decorates backend search results. limit < 0 keeps
// every entry.
func rankSearch(q string, artists []string, tracks []store.Track, img *images.Store, limit int) ([]ArtistResult, []TrackResult) {
	SortByMatch(artists, q, func(a string) string { return a })
	SortByMatch(tracks, q, func(t store.Track) string { return t.Title })

	if limit >= 0 {
		artists = artists[:min(limit, len(artists))]
		tracks = tracks[:min(limit, len(tracks))]
	}

	ar := make([]ArtistResult, 0, len(artists))
	for _, a := range artists {
		r := ArtistResult{Artist: a, Link: artistLink(a)}
		if img != nil {
			r.Image = img.ArtistURL(a)
		}
		ar = append(ar, r)
	}
	tr := make([]TrackResult, 0, len(tracks))
	for _, t := range tracks {
		r := TrackResult{Track: t, Link: trackLink(t)}
		if img != nil {
			r.Image = img.TrackURL(t.Artists, t.Title)
		}
		tr = append(tr, r)
	}
	return ar, tr
}
