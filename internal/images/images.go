// Package images stores uploaded artist and track pictures on disk.
package images

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ademuri/scrobble-server/internal/apperr"
	"github.com/ademuri/scrobble-server/internal/query"
)

// URLPrefix is where the server exposes the image directory.
const URLPrefix = "/images"

var extensions = map[string]string{
	"image/png":  "png",
	"image/jpeg": "jpeg",
	"image/gif":  "gif",
	"image/webp": "webp",
}

type Store struct {
	dir string
}

func New(dir string) (*Store, error) {
	for _, sub := range []string{"artists", "tracks"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("creating image directory: %w", err)
		}
	}
	return &Store{dir: dir}, nil
}

func (s *Store) Dir() string {
	return s.dir
}

func malformed(err error) error {
	return &apperr.MalformedInputError{Param: "b64", Kind: "malformed_b64", Err: err}
}

// Decode accepts plain base64 as well as a data URI.
func Decode(b64 string) ([]byte, string, error) {
	b64 = strings.TrimSpace(b64)
	if rest, ok := strings.CutPrefix(b64, "data:"); ok {
		_, payload, found := strings.Cut(rest, ",")
		if !found {
			return nil, "", malformed(fmt.Errorf("data URI without payload"))
		}
		b64 = payload
	}

	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		if data, err = base64.RawStdEncoding.DecodeString(b64); err != nil {
			return nil, "", malformed(err)
		}
	}
	ext, ok := extensions[http.DetectContentType(data)]
	if !ok {
		return nil, "", malformed(fmt.Errorf("not a supported image"))
	}
	return data, ext, nil
}

// Set stores the image for the artist or track selected by f and returns
// its URL.
func (s *Store) Set(b64 string, f query.FilterSpec) (string, error) {
	kind, key, err := entity(f)
	if err != nil {
		return "", err
	}
	data, ext, err := Decode(b64)
	if err != nil {
		return "", err
	}

	if err := s.remove(kind, key); err != nil {
		return "", err
	}
	name := key + "." + ext
	if err := os.WriteFile(filepath.Join(s.dir, kind, name), data, 0o644); err != nil {
		return "", fmt.Errorf("writing image: %w", err)
	}
	return path.Join(URLPrefix, kind, name), nil
}

func (s *Store) ArtistURL(name string) string {
	return s.lookup("artists", hash(normalize(name)))
}

func (s *Store) TrackURL(artists []string, title string) string {
	return s.lookup("tracks", trackHash(artists, title))
}

func (s *Store) lookup(kind, key string) string {
	matches, _ := filepath.Glob(filepath.Join(s.dir, kind, key+".*"))
	if len(matches) == 0 {
		return ""
	}
	return path.Join(URLPrefix, kind, filepath.Base(matches[0]))
}

func (s *Store) remove(kind, key string) error {
	matches, err := filepath.Glob(filepath.Join(s.dir, kind, key+".*"))
	if err != nil {
		return err
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil {
			return fmt.Errorf("removing old image: %w", err)
		}
	}
	return nil
}

func entity(f query.FilterSpec) (string, string, error) {
	switch f.Mode() {
	case query.TrackFilter:
		return "tracks", trackHash(f.Track.Artists, f.Track.Title), nil
	case query.ArtistFilter:
		return "artists", hash(normalize(f.Artist())), nil
	default:
		return "", "", &apperr.MissingEntityParameterError{Reason: "image needs an artist or track"}
	}
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func hash(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(sum[:12])
}

func trackHash(artists []string, title string) string {
	parts := make([]string, 0, len(artists)+1)
	for _, a := range artists {
		parts = append(parts, normalize(a))
	}
	sort.Strings(parts)
	return hash(append(parts, "\x1e"+normalize(title))...)
}
