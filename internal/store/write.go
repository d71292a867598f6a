package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ademuri/scrobble-server/internal/apperr"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// IncomingScrobble validates, cleans and stores one scrobble. A scrobble
// whose timestamp is already taken is moved forward one second at a time.
func (s *Store) IncomingScrobble(ctx context.Context, raw RawScrobble, client string, fix bool) (Scrobble, error) {
	if err := s.ready(); err != nil {
		return Scrobble{}, err
	}

	origin := ""
	if client != "" {
		origin = "client:" + client
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Scrobble{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	sc, _, err := s.addScrobble(ctx, tx, raw, origin, fix, false)
	if err != nil {
		return Scrobble{}, err
	}

	if err := tx.Commit(); err != nil {
		return Scrobble{}, fmt.Errorf("committing transaction: %w", err)
	}
	return sc, nil
}

// AddScrobbles inserts a batch of scrobbles transactionally. Scrobbles that
// already exist with the same timestamp and track are skipped, so importing
// the same history twice is harmless. It returns the number of new rows.
func (s *Store) AddScrobbles(ctx context.Context, raws []RawScrobble, origin string) (int, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	added := 0
	for _, raw := range raws {
		_, inserted, err := s.addScrobble(ctx, tx, raw, origin, true, true)
		if err != nil {
			return 0, err
		}
		if inserted {
			added++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing transaction: %w", err)
	}
	return added, nil
}

func (s *Store) addScrobble(ctx context.Context, tx *sql.Tx, raw RawScrobble, origin string, fix, dedupe bool) (Scrobble, bool, error) {
	clean := cleanup(raw, fix)

	var missing []string
	if len(clean.Artists) == 0 {
		missing = append(missing, "artists")
	}
	if clean.Title == "" {
		missing = append(missing, "title")
	}
	if len(missing) > 0 {
		return Scrobble{}, false, &apperr.MissingScrobbleParametersError{Params: missing}
	}

	ts := clean.Time
	if ts == 0 {
		ts = s.now().Unix()
	}

	rawJSON, err := json.Marshal(raw)
	if err != nil {
		return Scrobble{}, false, fmt.Errorf("encoding raw scrobble: %w", err)
	}

	track, err := createTrack(ctx, tx, clean)
	if err != nil {
		return Scrobble{}, false, err
	}

	ts, inserted, err := createScrobble(ctx, tx, ts, track.ID, clean.Duration, origin, string(rawJSON), dedupe)
	if err != nil {
		return Scrobble{}, false, err
	}

	return Scrobble{Time: ts, Track: track, Duration: clean.Duration, Origin: origin}, inserted, nil
}

func createArtist(ctx context.Context, q querier, name string) (int64, error) {
	var id int64
	err := q.QueryRowContext(ctx, "SELECT id FROM Artist WHERE name_normalized = ?", normalize(name)).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("checking artist %q: %w", name, err)
	}

	res, err := q.ExecContext(ctx, "INSERT INTO Artist (name, name_normalized) VALUES (?, ?)", name, normalize(name))
	if err != nil {
		return 0, fmt.Errorf("inserting artist %q: %w", name, err)
	}
	return res.LastInsertId()
}

func createArtists(ctx context.Context, q querier, names []string) ([]int64, error) {
	ids := make([]int64, 0, len(names))
	for _, name := range names {
		id, err := createArtist(ctx, q, name)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func createAlbum(ctx context.Context, q querier, name string, artists []string) (int64, error) {
	key := albumKey(name, artists)

	var id int64
	err := q.QueryRowContext(ctx, "SELECT id FROM Album WHERE album_key = ?", key).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("checking album %q: %w", name, err)
	}

	res, err := q.ExecContext(ctx, "INSERT INTO Album (name, album_key) VALUES (?, ?)", name, key)
	if err != nil {
		return 0, fmt.Errorf("inserting album %q: %w", name, err)
	}
	id, err = res.LastInsertId()
	if err != nil {
		return 0, err
	}

	artistIDs, err := createArtists(ctx, q, artists)
	if err != nil {
		return 0, err
	}
	for _, a := range artistIDs {
		if _, err := q.ExecContext(ctx, "INSERT OR IGNORE INTO AlbumArtist (album, artist) VALUES (?, ?)", id, a); err != nil {
			return 0, fmt.Errorf("linking album %q: %w", name, err)
		}
	}
	return id, nil
}

// createTrack finds or creates the track of a cleaned scrobble and fills in
// album and length if the track did not have them yet.
func createTrack(ctx context.Context, q querier, clean RawScrobble) (Track, error) {
	key := trackKey(clean.Title, clean.Artists)

	var id int64
	err := q.QueryRowContext(ctx, "SELECT id FROM Track WHERE track_key = ?", key).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		res, err := q.ExecContext(ctx, "INSERT INTO Track (title, track_key) VALUES (?, ?)", clean.Title, key)
		if err != nil {
			return Track{}, fmt.Errorf("inserting track %q: %w", clean.Title, err)
		}
		if id, err = res.LastInsertId(); err != nil {
			return Track{}, err
		}

		artistIDs, err := createArtists(ctx, q, clean.Artists)
		if err != nil {
			return Track{}, err
		}
		for pos, a := range artistIDs {
			if _, err := q.ExecContext(ctx, "INSERT OR IGNORE INTO TrackArtist (track, artist, position) VALUES (?, ?, ?)", id, a, pos); err != nil {
				return Track{}, fmt.Errorf("linking track %q: %w", clean.Title, err)
			}
		}
	} else if err != nil {
		return Track{}, fmt.Errorf("checking track %q: %w", clean.Title, err)
	}

	if clean.Album != "" {
		albumArtists := clean.AlbumArtists
		if len(albumArtists) == 0 {
			albumArtists = clean.Artists
		}
		albumID, err := createAlbum(ctx, q, clean.Album, albumArtists)
		if err != nil {
			return Track{}, err
		}
		if _, err := q.ExecContext(ctx, "UPDATE Track SET album = ? WHERE id = ? AND album IS NULL", albumID, id); err != nil {
			return Track{}, fmt.Errorf("setting album of track %d: %w", id, err)
		}
	}
	if clean.Length > 0 {
		if _, err := q.ExecContext(ctx, "UPDATE Track SET length = ? WHERE id = ? AND length IS NULL", clean.Length, id); err != nil {
			return Track{}, fmt.Errorf("setting length of track %d: %w", id, err)
		}
	}

	tracks, err := loadTracks(ctx, q, []int64{id})
	if err != nil {
		return Track{}, err
	}
	return tracks[id], nil
}

// createScrobble inserts at the first free timestamp at or after ts. With
// dedupe set, an existing scrobble of the same track at ts counts as already
// inserted.
func createScrobble(ctx context.Context, tx *sql.Tx, ts, trackID int64, duration int, origin, raw string, dedupe bool) (int64, bool, error) {
	for ; ; ts++ {
		var existing int64
		err := tx.QueryRowContext(ctx, "SELECT track FROM Scrobble WHERE timestamp = ?", ts).Scan(&existing)
		if errors.Is(err, sql.ErrNoRows) {
			break
		}
		if err != nil {
			return 0, false, fmt.Errorf("checking scrobble at %d: %w", ts, err)
		}
		if dedupe && existing == trackID {
			return ts, false, nil
		}
	}

	dur := sql.NullInt64{Int64: int64(duration), Valid: duration > 0}
	_, err := tx.ExecContext(ctx, "INSERT INTO Scrobble (timestamp, track, duration, origin, raw) VALUES (?, ?, ?, ?, ?)", ts, trackID, dur, origin, raw)
	if err != nil {
		return 0, false, fmt.Errorf("inserting scrobble at %d: %w", ts, err)
	}
	return ts, true, nil
}
