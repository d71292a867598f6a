package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ademuri/scrobble-server/internal/query"
	"github.com/ademuri/scrobble-server/internal/timerange"
)

// Placeholder lists are split so a single statement stays well under
// SQLite's variable limit.
const chunkSize = 500

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func chunks[T any](list []T) [][]T {
	var out [][]T
	for len(list) > chunkSize {
		out = append(out, list[:chunkSize])
		list = list[chunkSize:]
	}
	if len(list) > 0 {
		out = append(out, list)
	}
	return out
}

func stringArgs(list []string) []any {
	args := make([]any, len(list))
	for i, v := range list {
		args[i] = v
	}
	return args
}

// filterClause returns a condition on the track id column col selecting the
// rows matched by f.
func filterClause(col string, f query.FilterSpec) (string, []any) {
	switch f.Mode() {
	case query.TrackFilter:
		return col + " IN (SELECT id FROM Track WHERE track_key = ?)", []any{trackKey(f.Track.Title, f.Track.Artists)}
	case query.ArtistFilter:
		names := make([]string, len(f.Artists))
		for i, a := range f.Artists {
			names[i] = normalize(a)
		}
		cond := "a.name_normalized IN (" + placeholders(len(names)) + ")"
		args := stringArgs(names)
		if f.IncludeAssociated {
			cond += " OR a.name_normalized IN (SELECT source FROM ArtistAssociation WHERE target IN (" + placeholders(len(names)) + "))"
			args = append(args, stringArgs(names)...)
		}
		return col + " IN (SELECT ta.track FROM TrackArtist ta JOIN Artist a ON a.id = ta.artist WHERE " + cond + ")", args
	default:
		return "1 = 1", nil
	}
}

func rangeClause(r timerange.Range) (string, []any) {
	from, to := r.Unix()
	return "s.timestamp >= ? AND s.timestamp < ?", []any{from, to}
}

func where(f query.FilterSpec, r timerange.Range) (string, []any) {
	fc, fargs := filterClause("s.track", f)
	rc, rargs := rangeClause(r)
	return "WHERE " + fc + " AND " + rc, append(fargs, rargs...)
}

// Scrobbles lists matching scrobbles, newest first.
func (s *Store) Scrobbles(ctx context.Context, f query.FilterSpec, r timerange.Range, p query.Page) ([]Scrobble, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	cond, args := where(f, r)
	q := `SELECT s.timestamp, s.track, COALESCE(s.duration, 0), s.origin FROM Scrobble s ` + cond +
		` ORDER BY s.timestamp DESC LIMIT ? OFFSET ?`
	rows, err := s.db.QueryContext(ctx, q, append(args, p.Limit, p.Offset)...)
	if err != nil {
		return nil, fmt.Errorf("querying scrobbles: %w", err)
	}

	var (
		scrobbles []Scrobble
		trackIDs  []int64
	)
	for rows.Next() {
		var sc Scrobble
		if err := rows.Scan(&sc.Time, &sc.Track.ID, &sc.Duration, &sc.Origin); err != nil {
			rows.Close()
			return nil, err
		}
		scrobbles = append(scrobbles, sc)
		trackIDs = append(trackIDs, sc.Track.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	tracks, err := loadTracks(ctx, s.db, trackIDs)
	if err != nil {
		return nil, err
	}
	for i := range scrobbles {
		scrobbles[i].Track = tracks[scrobbles[i].Track.ID]
	}
	return scrobbles, nil
}

func (s *Store) CountScrobbles(ctx context.Context, f query.FilterSpec, r timerange.Range) (int, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	return s.countScrobbles(ctx, f, r)
}

func (s *Store) countScrobbles(ctx context.Context, f query.FilterSpec, r timerange.Range) (int, error) {
	cond, args := where(f, r)
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM Scrobble s "+cond, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting scrobbles: %w", err)
	}
	return n, nil
}

// Tracks lists every track, or the tracks of the filtered artists.
func (s *Store) Tracks(ctx context.Context, f query.FilterSpec) ([]Track, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	fc, args := filterClause("t.id", query.FilterSpec{Artists: f.Artists, IncludeAssociated: f.IncludeAssociated})
	rows, err := s.db.QueryContext(ctx, "SELECT t.id FROM Track t WHERE "+fc+" ORDER BY t.title, t.id", args...)
	if err != nil {
		return nil, fmt.Errorf("querying tracks: %w", err)
	}
	ids, err := scanIDs(rows)
	if err != nil {
		return nil, err
	}

	byID, err := loadTracks(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}
	tracks := make([]Track, 0, len(ids))
	for _, id := range ids {
		tracks = append(tracks, byID[id])
	}
	return tracks, nil
}

func (s *Store) Artists(ctx context.Context) ([]string, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, "SELECT name FROM Artist ORDER BY name_normalized")
	if err != nil {
		return nil, fmt.Errorf("querying artists: %w", err)
	}
	return scanStrings(rows)
}

// DatasetStart is the time of the first scrobble, or the zero time for an
// empty database.
func (s *Store) DatasetStart(ctx context.Context) (time.Time, error) {
	if err := s.ready(); err != nil {
		return time.Time{}, err
	}
	return s.datasetStart(ctx)
}

func (s *Store) datasetStart(ctx context.Context) (time.Time, error) {
	var ts sql.NullInt64
	if err := s.db.QueryRowContext(ctx, "SELECT MIN(timestamp) FROM Scrobble").Scan(&ts); err != nil {
		return time.Time{}, fmt.Errorf("querying first scrobble: %w", err)
	}
	if !ts.Valid {
		return time.Time{}, nil
	}
	return time.Unix(ts.Int64, 0).In(s.loc), nil
}

// FindArtist looks an artist up by name, ignoring case and spacing.
func (s *Store) FindArtist(ctx context.Context, name string) (Artist, error) {
	if err := s.ready(); err != nil {
		return Artist{}, err
	}
	var a Artist
	err := s.db.QueryRowContext(ctx, "SELECT id, name FROM Artist WHERE name_normalized = ?", normalize(name)).Scan(&a.ID, &a.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return Artist{}, notFound("artist %q", name)
	}
	if err != nil {
		return Artist{}, fmt.Errorf("looking up artist %q: %w", name, err)
	}
	return a, nil
}

// FindTrack looks a track up by its artists and title.
func (s *Store) FindTrack(ctx context.Context, ref query.TrackRef) (Track, error) {
	if err := s.ready(); err != nil {
		return Track{}, err
	}
	var id int64
	err := s.db.QueryRowContext(ctx, "SELECT id FROM Track WHERE track_key = ?", trackKey(ref.Title, ref.Artists)).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return Track{}, notFound("track %q by %s", ref.Title, strings.Join(ref.Artists, ", "))
	}
	if err != nil {
		return Track{}, fmt.Errorf("looking up track %q: %w", ref.Title, err)
	}
	tracks, err := loadTracks(ctx, s.db, []int64{id})
	if err != nil {
		return Track{}, err
	}
	return tracks[id], nil
}

// Associated lists the artists that count as the given one.
func (s *Store) Associated(ctx context.Context, name string) ([]string, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.name
		FROM ArtistAssociation aa
		JOIN Artist a ON a.name_normalized = aa.source
		WHERE aa.target = ?
		ORDER BY a.name_normalized
	`, normalize(name))
	if err != nil {
		return nil, fmt.Errorf("querying associated artists: %w", err)
	}
	return scanStrings(rows)
}

// Search returns the artists and tracks whose name contains q, ignoring
// case. Ordering is left to the caller.
func (s *Store) Search(ctx context.Context, q string) ([]string, []Track, error) {
	if err := s.ready(); err != nil {
		return nil, nil, err
	}
	needle := strings.ToLower(q)

	rows, err := s.db.QueryContext(ctx, "SELECT name FROM Artist WHERE instr(lower(name), ?) > 0", needle)
	if err != nil {
		return nil, nil, fmt.Errorf("searching artists: %w", err)
	}
	artists, err := scanStrings(rows)
	if err != nil {
		return nil, nil, err
	}

	rows, err = s.db.QueryContext(ctx, "SELECT id FROM Track WHERE instr(lower(title), ?) > 0 ORDER BY id", needle)
	if err != nil {
		return nil, nil, fmt.Errorf("searching tracks: %w", err)
	}
	ids, err := scanIDs(rows)
	if err != nil {
		return nil, nil, err
	}
	byID, err := loadTracks(ctx, s.db, ids)
	if err != nil {
		return nil, nil, err
	}
	tracks := make([]Track, 0, len(ids))
	for _, id := range ids {
		tracks = append(tracks, byID[id])
	}
	return artists, tracks, nil
}

// loadTracks resolves track ids to full tracks including artists and album.
func loadTracks(ctx context.Context, q querier, ids []int64) (map[int64]Track, error) {
	tracks := make(map[int64]Track, len(ids))
	unique := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := tracks[id]; !ok {
			tracks[id] = Track{ID: id}
			unique = append(unique, id)
		}
	}

	albumOf := make(map[int64]int64)
	for _, chunk := range chunks(unique) {
		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}
		in := placeholders(len(chunk))

		rows, err := q.QueryContext(ctx, `
			SELECT t.id, t.title, COALESCE(t.length, 0), COALESCE(t.album, 0), COALESCE(al.name, '')
			FROM Track t
			LEFT JOIN Album al ON al.id = t.album
			WHERE t.id IN (`+in+`)`, args...)
		if err != nil {
			return nil, fmt.Errorf("loading tracks: %w", err)
		}
		for rows.Next() {
			var (
				t         Track
				albumID   int64
				albumName string
			)
			if err := rows.Scan(&t.ID, &t.Title, &t.Length, &albumID, &albumName); err != nil {
				rows.Close()
				return nil, err
			}
			if albumID != 0 {
				t.Album = &Album{Name: albumName}
				albumOf[t.ID] = albumID
			}
			tracks[t.ID] = t
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}

		rows, err = q.QueryContext(ctx, `
			SELECT ta.track, a.name
			FROM TrackArtist ta
			JOIN Artist a ON a.id = ta.artist
			WHERE ta.track IN (`+in+`)
			ORDER BY ta.track, ta.position`, args...)
		if err != nil {
			return nil, fmt.Errorf("loading track artists: %w", err)
		}
		for rows.Next() {
			var (
				id   int64
				name string
			)
			if err := rows.Scan(&id, &name); err != nil {
				rows.Close()
				return nil, err
			}
			t := tracks[id]
			t.Artists = append(t.Artists, name)
			tracks[id] = t
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}

	if len(albumOf) == 0 {
		return tracks, nil
	}
	seen := make(map[int64]bool, len(albumOf))
	var albumIDs []int64
	for _, id := range albumOf {
		if !seen[id] {
			seen[id] = true
			albumIDs = append(albumIDs, id)
		}
	}
	albumArtists, err := loadAlbumArtists(ctx, q, albumIDs)
	if err != nil {
		return nil, err
	}
	for trackID, albumID := range albumOf {
		tracks[trackID].Album.Artists = albumArtists[albumID]
	}
	return tracks, nil
}

func loadAlbumArtists(ctx context.Context, q querier, ids []int64) (map[int64][]string, error) {
	out := make(map[int64][]string, len(ids))
	for _, chunk := range chunks(ids) {
		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}
		rows, err := q.QueryContext(ctx, `
			SELECT aa.album, a.name
			FROM AlbumArtist aa
			JOIN Artist a ON a.id = aa.artist
			WHERE aa.album IN (`+placeholders(len(chunk))+`)
			ORDER BY aa.album, aa.rowid`, args...)
		if err != nil {
			return nil, fmt.Errorf("loading album artists: %w", err)
		}
		for rows.Next() {
			var (
				id   int64
				name string
			)
			if err := rows.Scan(&id, &name); err != nil {
				rows.Close()
				return nil, err
			}
			out[id] = append(out[id], name)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func scanIDs(rows *sql.Rows) ([]int64, error) {
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanStrings(rows *sql.Rows) ([]string, error) {
	defer rows.Close()
	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
