package api

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ademuri/scrobble-server/internal/store"
)

func TestSortByMatch(t *testing.T) {
	tests := []struct {
		q     string
		items []string
		want  []string
	}{
		{"lo", []string{"Hello", "Lola", "Low"}, []string{"Low", "Lola", "Hello"}},
		{"LO", []string{"Hello", "Lola", "Low"}, []string{"Low", "Lola", "Hello"}},
		{"the", []string{"Bathe", "Into the Void", "The Cure", "Theo"}, []string{"Theo", "The Cure", "Into the Void", "Bathe"}},
		{"x", []string{"ab", "cd"}, []string{"ab", "cd"}},
	}
	for _, tt := range tests {
		items := append([]string(nil), tt.items...)
		SortByMatch(items, tt.q, func(s string) string { return s })
		assert.Equal(t, tt.want, items, tt.q)
	}
}

func TestRankSearch(t *testing.T) {
	tracks := []store.Track{
		{Artists: []string{"Someone"}, Title: "Fallow Ground"},
		{Artists: []string{"A", "B"}, Title: "Low Tide"},
	}
	artists, tr := rankSearch("low", []string{"Yellow", "Low"}, tracks, nil, 1)

	assert.Equal(t, []ArtistResult{{Artist: "Low", Link: "/artist?artist=Low"}}, artists)
	if assert.Len(t, tr, 1) {
		assert.Equal(t, "Low Tide", tr[0].Track.Title)
		assert.Equal(t, "/track?artist=A&artist=B&title=Low+Tide", tr[0].Link)
	}

	artists, tr = rankSearch("low", []string{"Yellow", "Low"}, tracks, nil, -1)
	assert.Len(t, artists, 2)
	assert.Len(t, tr, 2)
}
