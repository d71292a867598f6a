package store

import (
	"context"
	"fmt"

	"github.com/ademuri/scrobble-server/internal/apperr"
	"github.com/ademuri/scrobble-server/internal/query"
	"github.com/ademuri/scrobble-server/internal/timerange"
)

type ArtistChartEntry struct {
	Artist    string `json:"artist"`
	Scrobbles int    `json:"scrobbles"`
	Rank      int    `json:"rank"`
}

type TrackChartEntry struct {
	Track     Track `json:"track"`
	Scrobbles int   `json:"scrobbles"`
	Rank      int   `json:"rank"`
}

// Span describes one bucket of a series.
type Span struct {
	Desc string `json:"desc"`
	From int64  `json:"from"`
	To   int64  `json:"to"`
}

func spanOf(b timerange.Bucket) Span {
	return Span{Desc: b.Desc, From: b.Start.Unix(), To: b.End.Unix()}
}

type PulseEntry struct {
	Range     Span `json:"range"`
	Scrobbles int  `json:"scrobbles"`
}

// PerformanceEntry has a nil Rank for buckets where the entity did not chart.
type PerformanceEntry struct {
	Range Span `json:"range"`
	Rank  *int `json:"rank"`
}

type TopArtistEntry struct {
	Range     Span    `json:"range"`
	Artist    *string `json:"artist"`
	Scrobbles int     `json:"scrobbles"`
}

type TopTrackEntry struct {
	Range     Span   `json:"range"`
	Track     *Track `json:"track"`
	Scrobbles int    `json:"scrobbles"`
}

// competitionRanks assigns ranks to counts sorted in descending order. Ties
// share a rank and the following rank is skipped.
func competitionRanks(counts []int) []int {
	ranks := make([]int, len(counts))
	for i, c := range counts {
		if i > 0 && c == counts[i-1] {
			ranks[i] = ranks[i-1]
		} else {
			ranks[i] = i + 1
		}
	}
	return ranks
}

func (s *Store) ChartsArtists(ctx context.Context, r timerange.Range) ([]ArtistChartEntry, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.chartsArtists(ctx, r)
}

func (s *Store) chartsArtists(ctx context.Context, r timerange.Range) ([]ArtistChartEntry, error) {
	rc, args := rangeClause(r)
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.name, COUNT(*) AS n
		FROM Scrobble s
		JOIN TrackArtist ta ON ta.track = s.track
		JOIN Artist a ON a.id = ta.artist
		WHERE `+rc+`
		GROUP BY a.id
		ORDER BY n DESC, a.name_normalized
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying artist charts: %w", err)
	}
	defer rows.Close()

	var (
		entries []ArtistChartEntry
		counts  []int
	)
	for rows.Next() {
		var e ArtistChartEntry
		if err := rows.Scan(&e.Artist, &e.Scrobbles); err != nil {
			return nil, err
		}
		entries = append(entries, e)
		counts = append(counts, e.Scrobbles)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, rank := range competitionRanks(counts) {
		entries[i].Rank = rank
	}
	return entries, nil
}

// ChartsTracks ranks tracks, optionally restricted to the filtered artists.
func (s *Store) ChartsTracks(ctx context.Context, f query.FilterSpec, r timerange.Range) ([]TrackChartEntry, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.chartsTracks(ctx, f, r)
}

func (s *Store) chartsTracks(ctx context.Context, f query.FilterSpec, r timerange.Range) ([]TrackChartEntry, error) {
	cond, args := where(f, r)
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.track, COUNT(*) AS n
		FROM Scrobble s
		`+cond+`
		GROUP BY s.track
		ORDER BY n DESC, s.track
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying track charts: %w", err)
	}

	var (
		entries []TrackChartEntry
		counts  []int
		ids     []int64
	)
	for rows.Next() {
		var e TrackChartEntry
		if err := rows.Scan(&e.Track.ID, &e.Scrobbles); err != nil {
			rows.Close()
			return nil, err
		}
		entries = append(entries, e)
		counts = append(counts, e.Scrobbles)
		ids = append(ids, e.Track.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	tracks, err := loadTracks(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}
	for i, rank := range competitionRanks(counts) {
		entries[i].Rank = rank
		entries[i].Track = tracks[entries[i].Track.ID]
	}
	return entries, nil
}

func (s *Store) buckets(ctx context.Context, r timerange.Range, step timerange.Step) ([]timerange.Bucket, error) {
	start, err := s.datasetStart(ctx)
	if err != nil {
		return nil, err
	}
	buckets := timerange.Buckets(r, step, start, s.Now())
	if len(buckets) > timerange.MaxBuckets {
		return nil, apperr.Malformedf("step", step.Unit.String(), "range spans more than %d buckets", timerange.MaxBuckets)
	}
	return buckets, nil
}

// Pulse counts the filtered scrobbles in each bucket.
func (s *Store) Pulse(ctx context.Context, f query.FilterSpec, r timerange.Range, step timerange.Step, p query.Page) ([]PulseEntry, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	buckets, err := s.buckets(ctx, r, step)
	if err != nil {
		return nil, err
	}

	entries := []PulseEntry{}
	for _, b := range query.Apply(p, buckets) {
		n, err := s.countScrobbles(ctx, f, b.Window)
		if err != nil {
			return nil, err
		}
		entries = append(entries, PulseEntry{Range: spanOf(b), Scrobbles: n})
	}
	return entries, nil
}

// Performance reports the chart position of the filtered artist or track in
// each bucket.
func (s *Store) Performance(ctx context.Context, f query.FilterSpec, r timerange.Range, step timerange.Step, p query.Page) ([]PerformanceEntry, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	buckets, err := s.buckets(ctx, r, step)
	if err != nil {
		return nil, err
	}

	var rankIn func(timerange.Range) (*int, error)
	switch f.Mode() {
	case query.TrackFilter:
		key := trackKey(f.Track.Title, f.Track.Artists)
		rankIn = func(w timerange.Range) (*int, error) {
			charts, err := s.chartsTracks(ctx, query.FilterSpec{}, w)
			if err != nil {
				return nil, err
			}
			for _, e := range charts {
				if trackKey(e.Track.Title, e.Track.Artists) == key {
					return &e.Rank, nil
				}
			}
			return nil, nil
		}
	case query.ArtistFilter:
		name := normalize(f.Artist())
		rankIn = func(w timerange.Range) (*int, error) {
			charts, err := s.chartsArtists(ctx, w)
			if err != nil {
				return nil, err
			}
			for _, e := range charts {
				if normalize(e.Artist) == name {
					return &e.Rank, nil
				}
			}
			return nil, nil
		}
	default:
		return nil, &apperr.MissingEntityParameterError{Reason: "performance needs an artist or track"}
	}

	entries := []PerformanceEntry{}
	for _, b := range query.Apply(p, buckets) {
		rank, err := rankIn(b.Window)
		if err != nil {
			return nil, err
		}
		entries = append(entries, PerformanceEntry{Range: spanOf(b), Rank: rank})
	}
	return entries, nil
}

// TopArtists returns the number one artist of each bucket.
func (s *Store) TopArtists(ctx context.Context, r timerange.Range, step timerange.Step) ([]TopArtistEntry, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	buckets, err := s.buckets(ctx, r, step)
	if err != nil {
		return nil, err
	}

	entries := []TopArtistEntry{}
	for _, b := range buckets {
		charts, err := s.chartsArtists(ctx, b.Window)
		if err != nil {
			return nil, err
		}
		e := TopArtistEntry{Range: spanOf(b)}
		if len(charts) > 0 {
			e.Artist = &charts[0].Artist
			e.Scrobbles = charts[0].Scrobbles
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// TopTracks returns the number one track of each bucket.
func (s *Store) TopTracks(ctx context.Context, r timerange.Range, step timerange.Step) ([]TopTrackEntry, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	buckets, err := s.buckets(ctx, r, step)
	if err != nil {
		return nil, err
	}

	entries := []TopTrackEntry{}
	for _, b := range buckets {
		charts, err := s.chartsTracks(ctx, query.FilterSpec{}, b.Window)
		if err != nil {
			return nil, err
		}
		e := TopTrackEntry{Range: spanOf(b)}
		if len(charts) > 0 {
			e.Track = &charts[0].Track
			e.Scrobbles = charts[0].Scrobbles
		}
		entries = append(entries, e)
	}
	return entries, nil
}
