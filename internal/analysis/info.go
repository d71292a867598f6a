// Package analysis derives the per-entity statistics shown on artist and
// track pages: chart position, yearly medals, weeks at number one and
// certifications.
package analysis

import (
	"context"
	"fmt"
	"time"

	"github.com/ademuri/scrobble-server/internal/query"
	"github.com/ademuri/scrobble-server/internal/store"
	"github.com/ademuri/scrobble-server/internal/timerange"
)

// Source is the part of the store the statistics are computed from.
type Source interface {
	FindArtist(ctx context.Context, name string) (store.Artist, error)
	FindTrack(ctx context.Context, ref query.TrackRef) (store.Track, error)
	Associated(ctx context.Context, name string) ([]string, error)
	CountScrobbles(ctx context.Context, f query.FilterSpec, r timerange.Range) (int, error)
	ChartsArtists(ctx context.Context, r timerange.Range) ([]store.ArtistChartEntry, error)
	ChartsTracks(ctx context.Context, f query.FilterSpec, r timerange.Range) ([]store.TrackChartEntry, error)
	DatasetStart(ctx context.Context) (time.Time, error)
	Now() time.Time
}

// rankFunc returns the entity's rank in r, or 0 when it did not chart.
type rankFunc func(ctx context.Context, r timerange.Range) (int, error)

func GetArtistInfo(ctx context.Context, src Source, name string) (ArtistInfo, error) {
	artist, err := src.FindArtist(ctx, name)
	if err != nil {
		return ArtistInfo{}, err
	}

	scrobbles, err := src.CountScrobbles(ctx, query.FilterSpec{Artists: []string{artist.Name}, IncludeAssociated: true}, timerange.Range{})
	if err != nil {
		return ArtistInfo{}, fmt.Errorf("counting scrobbles of %q: %w", artist.Name, err)
	}
	associated, err := src.Associated(ctx, artist.Name)
	if err != nil {
		return ArtistInfo{}, err
	}
	if associated == nil {
		associated = []string{}
	}

	rank := func(ctx context.Context, r timerange.Range) (int, error) {
		charts, err := src.ChartsArtists(ctx, r)
		if err != nil {
			return 0, err
		}
		for _, e := range charts {
			if e.Artist == artist.Name {
				return e.Rank, nil
			}
		}
		return 0, nil
	}

	info := ArtistInfo{
		Artist:     artist.Name,
		ID:         artist.ID,
		Scrobbles:  scrobbles,
		Associated: associated,
	}
	if info.Position, info.Medals, info.TopWeeks, err = history(ctx, src, rank); err != nil {
		return ArtistInfo{}, err
	}
	return info, nil
}

func GetTrackInfo(ctx context.Context, src Source, ref query.TrackRef, thresholds Thresholds) (TrackInfo, error) {
	track, err := src.FindTrack(ctx, ref)
	if err != nil {
		return TrackInfo{}, err
	}

	filter := query.FilterSpec{Artists: track.Artists, Track: &query.TrackRef{Artists: track.Artists, Title: track.Title}}
	scrobbles, err := src.CountScrobbles(ctx, filter, timerange.Range{})
	if err != nil {
		return TrackInfo{}, fmt.Errorf("counting scrobbles of %q: %w", track.Title, err)
	}

	rank := func(ctx context.Context, r timerange.Range) (int, error) {
		charts, err := src.ChartsTracks(ctx, query.FilterSpec{}, r)
		if err != nil {
			return 0, err
		}
		for _, e := range charts {
			if e.Track.ID == track.ID {
				return e.Rank, nil
			}
		}
		return 0, nil
	}

	info := TrackInfo{
		Track:         track,
		Scrobbles:     scrobbles,
		Certification: thresholds.Certification(scrobbles),
	}
	if info.Position, info.Medals, info.TopWeeks, err = history(ctx, src, rank); err != nil {
		return TrackInfo{}, err
	}
	return info, nil
}

// history computes the all-time position, the medals of every completed
// year and the number of completed weeks the entity spent at number one.
func history(ctx context.Context, src Source, rank rankFunc) (*int, Medals, int, error) {
	medals := Medals{Gold: []int{}, Silver: []int{}, Bronze: []int{}}

	pos, err := rank(ctx, timerange.Range{})
	if err != nil {
		return nil, medals, 0, err
	}
	var position *int
	if pos > 0 {
		position = &pos
	}

	start, err := src.DatasetStart(ctx)
	if err != nil {
		return nil, medals, 0, err
	}
	if start.IsZero() {
		return position, medals, 0, nil
	}
	now := src.Now()

	years := timerange.Buckets(timerange.Range{}, timerange.Step{Unit: timerange.Year, N: 1, Trail: 1}, start, now)
	for _, b := range years {
		if b.End.After(now) {
			break
		}
		r, err := rank(ctx, b.Window)
		if err != nil {
			return nil, medals, 0, err
		}
		switch r {
		case 1:
			medals.Gold = append(medals.Gold, b.Start.Year())
		case 2:
			medals.Silver = append(medals.Silver, b.Start.Year())
		case 3:
			medals.Bronze = append(medals.Bronze, b.Start.Year())
		}
	}

	topWeeks := 0
	weeks := timerange.Buckets(timerange.Range{}, timerange.Step{Unit: timerange.Week, N: 1, Trail: 1}, start, now)
	for _, b := range weeks {
		if b.End.After(now) {
			break
		}
		r, err := rank(ctx, b.Window)
		if err != nil {
			return nil, medals, 0, err
		}
		if r == 1 {
			topWeeks++
		}
	}

	return position, medals, topWeeks, nil
}
