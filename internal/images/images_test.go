package images

import (
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ademuri/scrobble-server/internal/apperr"
	"github.com/ademuri/scrobble-server/internal/query"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func TestDecode(t *testing.T) {
	plain := base64.StdEncoding.EncodeToString(pngHeader)
	tests := []struct {
		name    string
		in      string
		wantExt string
		wantErr bool
	}{
		{"plain", plain, "png", false},
		{"data uri", "data:image/png;base64," + plain, "png", false},
		{"unpadded", strings.TrimRight(plain, "="), "png", false},
		{"not base64", "!!!", "", true},
		{"not an image", base64.StdEncoding.EncodeToString([]byte("hello world")), "", true},
		{"uri without payload", "data:image/png;base64", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ext, err := Decode(tt.in)
			if tt.wantErr {
				var mi *apperr.MalformedInputError
				if !errors.As(err, &mi) || mi.Kind != "malformed_b64" {
					t.Fatalf("Decode() error = %v, want malformed_b64", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Decode() error: %v", err)
			}
			if ext != tt.wantExt {
				t.Errorf("Decode() ext = %q, want %q", ext, tt.wantExt)
			}
		})
	}
}

func TestSet(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	b64 := base64.StdEncoding.EncodeToString(pngHeader)

	url, err := s.Set(b64, query.FilterSpec{Artists: []string{"Some Artist"}})
	if err != nil {
		t.Fatalf("Set() error: %v", err)
	}
	if !strings.HasPrefix(url, "/images/artists/") || !strings.HasSuffix(url, ".png") {
		t.Errorf("Set() url = %q", url)
	}
	if got := s.ArtistURL("some   ARTIST"); got != url {
		t.Errorf("ArtistURL() = %q, want %q", got, url)
	}
	if _, err := os.Stat(filepath.Join(dir, "artists", filepath.Base(url))); err != nil {
		t.Errorf("image file missing: %v", err)
	}

	track := query.FilterSpec{Track: &query.TrackRef{Artists: []string{"B", "A"}, Title: "Song"}}
	url, err = s.Set(b64, track)
	if err != nil {
		t.Fatalf("Set(track) error: %v", err)
	}
	if got := s.TrackURL([]string{"a", "b"}, "song"); got != url {
		t.Errorf("TrackURL() = %q, want %q", got, url)
	}
	if got := s.TrackURL([]string{"a"}, "song"); got != "" {
		t.Errorf("TrackURL(unknown) = %q, want empty", got)
	}

	_, err = s.Set(b64, query.FilterSpec{})
	if apperr.Classify(err) != apperr.MissingEntityParameter {
		t.Errorf("Set() without entity error = %v, want missing entity", err)
	}
}
