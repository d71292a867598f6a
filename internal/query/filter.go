package query

import (
	"strings"

	"github.com/ademuri/scrobble-server/internal/apperr"
)

// Mode says which entity, if any, a filter selects.
type Mode int

const (
	NoFilter Mode = iota
	ArtistFilter
	TrackFilter
)

// TrackRef identifies a track by its credited artists and title.
type TrackRef struct {
	Artists []string `json:"artists"`
	Title   string   `json:"title"`
}

// FilterSpec is the resolved entity filter. Artists keep submission order
// and are unique case-insensitively.
type FilterSpec struct {
	Artists           []string
	Track             *TrackRef
	IncludeAssociated bool
}

func (f FilterSpec) Mode() Mode {
	switch {
	case f.Track != nil:
		return TrackFilter
	case len(f.Artists) > 0:
		return ArtistFilter
	default:
		return NoFilter
	}
}

// Artist returns the first filtered artist, or "" when there is none.
func (f FilterSpec) Artist() string {
	if len(f.Artists) == 0 {
		return ""
	}
	return f.Artists[0]
}

// BuildFilter resolves the artist/title/associated parameters.
func BuildFilter(p Params, caps Capabilities) (FilterSpec, error) {
	artists := UniqueArtists(p.All("artist"))
	title := strings.TrimSpace(first(p, "title"))

	associated := false
	if v, ok := p.Get("associated"); ok {
		b, err := parseFlag(v)
		if err != nil {
			return FilterSpec{}, apperr.Malformed("associated", v, err)
		}
		associated = b
	}

	var f FilterSpec
	switch {
	case caps.ForceTrack:
		if title == "" || len(artists) == 0 {
			return FilterSpec{}, &apperr.MissingEntityParameterError{Reason: "track requires title and artist"}
		}
		f = trackFilter(artists, title)
	case caps.ForceArtist:
		f.Artists = artists
		f.IncludeAssociated = associated && len(artists) > 0
	case title != "":
		if len(artists) == 0 {
			return FilterSpec{}, &apperr.MissingEntityParameterError{Reason: "title given without artist"}
		}
		f = trackFilter(artists, title)
	default:
		f.Artists = artists
		f.IncludeAssociated = associated && len(artists) > 0
	}

	if caps.RequireEntity && f.Mode() == NoFilter {
		return FilterSpec{}, &apperr.MissingEntityParameterError{}
	}
	return f, nil
}

func trackFilter(artists []string, title string) FilterSpec {
	return FilterSpec{
		Artists: artists,
		Track:   &TrackRef{Artists: artists, Title: title},
	}
}

// UniqueArtists trims names, drops blanks and removes case-insensitive
// duplicates while keeping the first spelling and the original order.
func UniqueArtists(names []string) []string {
	seen := make(map[string]bool, len(names))
	var out []string
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		key := strings.ToLower(n)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, n)
	}
	return out
}

func first(p Params, key string) string {
	v, _ := p.Get(key)
	return v
}
