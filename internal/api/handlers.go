package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/ademuri/scrobble-server/internal/analysis"
	"github.com/ademuri/scrobble-server/internal/apperr"
	"github.com/ademuri/scrobble-server/internal/query"
)

func (s *Server) test(r *request) (any, error) {
	r.c.Header("Access-Control-Allow-Origin", "*")
	if key, ok := r.params.Get("key"); ok {
		if _, valid := s.keys.Check(key); !valid {
			r.c.JSON(http.StatusForbidden, Envelope{"status": "error", "error": "Wrong API key"})
			return nil, nil
		}
	}
	return Envelope{"status": "ok"}, nil
}

func (s *Server) serverInfo(r *request) (any, error) {
	r.c.Header("Access-Control-Allow-Origin", "*")
	name := s.cfg.Name
	if s.settings != nil && s.settings.IsSet("name") {
		name = s.settings.GetString("name")
	}
	return Envelope{
		"name":          name,
		"version":       strings.Split(Version, "."),
		"versionstring": Version,
		"db_status":     s.store.Status(),
	}, nil
}

func (s *Server) scrobbles(r *request) (any, error) {
	q := r.query
	list, err := s.store.Scrobbles(r.ctx(), q.Filter, q.Range, q.Page)
	if err != nil {
		return nil, err
	}
	return okList(list), nil
}

func (s *Server) numScrobbles(r *request) (any, error) {
	n, err := s.store.CountScrobbles(r.ctx(), r.query.Filter, r.query.Range)
	if err != nil {
		return nil, err
	}
	return okMap(Envelope{"amount": n}), nil
}

func (s *Server) tracks(r *request) (any, error) {
	list, err := s.store.Tracks(r.ctx(), r.query.Filter)
	if err != nil {
		return nil, err
	}
	return okList(list), nil
}

func (s *Server) artists(r *request) (any, error) {
	list, err := s.store.Artists(r.ctx())
	if err != nil {
		return nil, err
	}
	return okList(list), nil
}

func (s *Server) chartsArtists(r *request) (any, error) {
	list, err := s.store.ChartsArtists(r.ctx(), r.query.Range)
	if err != nil {
		return nil, err
	}
	return okList(list), nil
}

func (s *Server) chartsTracks(r *request) (any, error) {
	list, err := s.store.ChartsTracks(r.ctx(), r.query.Filter, r.query.Range)
	if err != nil {
		return nil, err
	}
	return okList(list), nil
}

func (s *Server) pulse(r *request) (any, error) {
	q := r.query
	list, err := s.store.Pulse(r.ctx(), q.Filter, q.Range, q.Step, q.Page)
	if err != nil {
		return nil, err
	}
	return okList(list), nil
}

func (s *Server) performance(r *request) (any, error) {
	q := r.query
	list, err := s.store.Performance(r.ctx(), q.Filter, q.Range, q.Step, q.Page)
	if err != nil {
		return nil, err
	}
	return okList(list), nil
}

func (s *Server) topArtists(r *request) (any, error) {
	list, err := s.store.TopArtists(r.ctx(), r.query.Range, r.query.Step)
	if err != nil {
		return nil, err
	}
	return okList(list), nil
}

func (s *Server) topTracks(r *request) (any, error) {
	list, err := s.store.TopTracks(r.ctx(), r.query.Range, r.query.Step)
	if err != nil {
		return nil, err
	}
	return okList(list), nil
}

type artistInfoResponse struct {
	Status string `json:"status"`
	analysis.ArtistInfo
}

func (s *Server) artistInfo(r *request) (any, error) {
	info, err := analysis.GetArtistInfo(r.ctx(), s.store, r.query.Filter.Artist())
	if err != nil {
		return nil, err
	}
	return artistInfoResponse{Status: "ok", ArtistInfo: info}, nil
}

type trackInfoResponse struct {
	Status string `json:"status"`
	analysis.TrackInfo
}

func (s *Server) trackInfo(r *request) (any, error) {
	info, err := analysis.GetTrackInfo(r.ctx(), s.store, *r.query.Filter.Track, s.cfg.Certification)
	if err != nil {
		return nil, err
	}
	return trackInfoResponse{Status: "ok", TrackInfo: info}, nil
}

func (s *Server) newScrobble(r *request) (any, error) {
	sc, warnings, err := NormalizeScrobble(r.params)
	if err != nil {
		return nil, err
	}
	r.warnings = append(r.warnings, warnings...)

	result, err := s.store.IncomingScrobble(r.ctx(), sc.Raw(), r.client, sc.Fix)
	if err != nil {
		return nil, err
	}
	t := result.Track
	return success(Envelope{
		"track": query.TrackRef{Artists: t.Artists, Title: t.Title},
		"desc":  fmt.Sprintf("Scrobbled %s by %s", t.Title, strings.Join(t.Artists, ", ")),
	}), nil
}

func (s *Server) search(r *request) (any, error) {
	q, ok := r.params.Get("query")
	if !ok || strings.TrimSpace(q) == "" {
		return nil, apperr.Malformedf("query", q, "a search query is required")
	}
	limit := -1
	if v, ok := r.params.Get("max"); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || n < 0 {
			return nil, apperr.Malformedf("max", v, "not a non-negative integer")
		}
		limit = n
	}

	artists, tracks, err := s.store.Search(r.ctx(), q)
	if err != nil {
		return nil, err
	}
	ar, tr := rankSearch(q, artists, tracks, s.images, limit)
	return Envelope{"artists": ar, "tracks": tr}, nil
}

func (s *Server) addPicture(r *request) (any, error) {
	b64, _ := r.params.Get("b64")
	url, err := s.images.Set(b64, r.query.Filter)
	if err != nil {
		return nil, err
	}
	return success(Envelope{"url": url}), nil
}
