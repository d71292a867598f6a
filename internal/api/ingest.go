package api

import (
	"strconv"
	"strings"

	"github.com/ademuri/scrobble-server/internal/apperr"
	"github.com/ademuri/scrobble-server/internal/query"
	"github.com/ademuri/scrobble-server/internal/store"
)

// Scrobble is a submitted scrobble after parameter normalization.
type Scrobble struct {
	Artists      []string
	Title        string
	Album        string
	AlbumArtists []string
	Duration     int
	Length       int
	Time         int64
	// Fix is false when the client asked to skip server-side cleanup.
	Fix bool
}

var scrobbleKeys = map[string]bool{
	"artist":       true,
	"artists":      true,
	"title":        true,
	"album":        true,
	"albumartists": true,
	"duration":     true,
	"length":       true,
	"time":         true,
	"nofix":        true,
	"key":          true,
}

// NormalizeScrobble reads a newscrobble request. Unknown keys are dropped
// with a warning each; empty values are treated as absent.
func NormalizeScrobble(p query.Params) (Scrobble, []Warning, error) {
	var warnings []Warning
	for _, k := range p.Keys() {
		if !scrobbleKeys[k] {
			warnings = append(warnings, Warning{
				Type:  "invalid_keyword_ignored",
				Value: k,
				Desc:  "This key was not recognized by the server and has been discarded.",
			})
		}
	}

	artist, artists := nonEmpty(p.All("artist")), nonEmpty(p.All("artists"))
	if len(artist) > 0 && len(artists) > 0 {
		warnings = append(warnings, Warning{
			Type:  "mixed_schema",
			Value: []string{"artist", "artists"},
			Desc:  "These two fields are meant as alternative methods to submit information. Use of both is discouraged, but works at the moment.",
		})
	}

	s := Scrobble{
		Artists:      append(artist, artists...),
		Title:        strings.TrimSpace(firstValue(p, "title")),
		Album:        strings.TrimSpace(firstValue(p, "album")),
		AlbumArtists: nonEmpty(p.All("albumartists")),
		Fix:          !p.Has("nofix"),
	}

	var err error
	if s.Duration, err = optionalInt(p, "duration"); err != nil {
		return Scrobble{}, nil, err
	}
	if s.Length, err = optionalInt(p, "length"); err != nil {
		return Scrobble{}, nil, err
	}
	if v := firstValue(p, "time"); v != "" {
		if s.Time, err = strconv.ParseInt(strings.TrimSpace(v), 10, 64); err != nil || s.Time < 0 {
			return Scrobble{}, nil, apperr.Malformedf("time", v, "not a unix timestamp")
		}
	}
	return s, warnings, nil
}

func (s Scrobble) Raw() store.RawScrobble {
	return store.RawScrobble{
		Artists:      s.Artists,
		Title:        s.Title,
		Album:        s.Album,
		AlbumArtists: s.AlbumArtists,
		Duration:     s.Duration,
		Length:       s.Length,
		Time:         s.Time,
	}
}

func firstValue(p query.Params, key string) string {
	v, _ := p.Get(key)
	return v
}

func nonEmpty(values []string) []string {
	var out []string
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	return out
}

func optionalInt(p query.Params, key string) (int, error) {
	v := strings.TrimSpace(firstValue(p, key))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, apperr.Malformed(key, v, err)
	}
	if n < 0 {
		return 0, apperr.Malformedf(key, v, "must not be negative")
	}
	return n, nil
}
