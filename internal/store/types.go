package store

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/ademuri/scrobble-server/internal/apperr"
)

// ErrNotFound is wrapped by lookups of unknown entities. It reaches the
// client as a 404.
var ErrNotFound = errors.New("not found")

func notFound(format string, args ...any) error {
	return &apperr.StatusError{
		Status: http.StatusNotFound,
		Err:    fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrNotFound),
	}
}

type Album struct {
	Name    string   `json:"albumtitle"`
	Artists []string `json:"artists,omitempty"`
}

type Track struct {
	ID      int64    `json:"id,omitempty"`
	Artists []string `json:"artists"`
	Title   string   `json:"title"`
	Album   *Album   `json:"album,omitempty"`
	Length  int      `json:"length,omitempty"`
}

type Scrobble struct {
	Time     int64  `json:"time"`
	Track    Track  `json:"track"`
	Duration int    `json:"duration,omitempty"`
	Origin   string `json:"origin,omitempty"`
}

// RawScrobble is a scrobble as submitted, before cleanup. It is stored
// alongside the scrobble so it can be reparsed later.
type RawScrobble struct {
	Artists      []string `json:"track_artists,omitempty"`
	Title        string   `json:"track_title,omitempty"`
	Album        string   `json:"album_name,omitempty"`
	AlbumArtists []string `json:"album_artists,omitempty"`
	Duration     int      `json:"scrobble_duration,omitempty"`
	Length       int      `json:"track_length,omitempty"`
	Time         int64    `json:"scrobble_time,omitempty"`
}

// Artist is an artist row, used by the admin endpoints.
type Artist struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// normalize is the identity used for artist, album and track matching.
func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func entityKey(name string, artists []string) string {
	norm := make([]string, 0, len(artists))
	seen := make(map[string]bool, len(artists))
	for _, a := range artists {
		n := normalize(a)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		norm = append(norm, n)
	}
	sort.Strings(norm)
	return strings.Join(norm, "\x1f") + "\x1e" + normalize(name)
}

func trackKey(title string, artists []string) string {
	return entityKey(title, artists)
}

func albumKey(name string, artists []string) string {
	return entityKey(name, artists)
}

// cleanup is the server-side fixing pass. With fix unset only surrounding
// whitespace is removed.
func cleanup(raw RawScrobble, fix bool) RawScrobble {
	clean := strings.TrimSpace
	if fix {
		clean = func(s string) string {
			return strings.Join(strings.Fields(s), " ")
		}
	}
	out := raw
	out.Title = clean(raw.Title)
	out.Album = clean(raw.Album)
	out.Artists = cleanNames(raw.Artists, clean)
	out.AlbumArtists = cleanNames(raw.AlbumArtists, clean)
	if out.Duration < 0 {
		out.Duration = 0
	}
	if out.Length < 0 {
		out.Length = 0
	}
	return out
}

func cleanNames(names []string, clean func(string) string) []string {
	var out []string
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		n = clean(n)
		key := normalize(n)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, n)
	}
	return out
}
