package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"

	"github.com/ademuri/scrobble-server/internal/apperr"
	"github.com/ademuri/scrobble-server/internal/query"
	"github.com/ademuri/scrobble-server/internal/timerange"
)

// Association makes Source count as Target when filtering with associated
// artists.
type Association struct {
	Source string
	Target string
}

func (s *Store) RemoveScrobble(ctx context.Context, ts int64) error {
	if err := s.ready(); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, "DELETE FROM Scrobble WHERE timestamp = ?", ts)
	if err != nil {
		return fmt.Errorf("deleting scrobble %d: %w", ts, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return notFound("scrobble %d", ts)
	}
	return nil
}

// EditArtist renames an artist. Renaming onto another existing artist is
// refused; use MergeArtists for that.
func (s *Store) EditArtist(ctx context.Context, id int64, name string) error {
	if err := s.ready(); err != nil {
		return err
	}
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		return apperr.Malformedf("name", name, "must not be empty")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := requireRow(ctx, tx, "Artist", id); err != nil {
		return err
	}

	var other int64
	err = tx.QueryRowContext(ctx, "SELECT id FROM Artist WHERE name_normalized = ? AND id <> ?", normalize(name), id).Scan(&other)
	if err == nil {
		return &apperr.EntityExistsError{Entity: map[string]any{"artist": name}}
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("checking artist %q: %w", name, err)
	}

	if _, err := tx.ExecContext(ctx, "UPDATE Artist SET name = ?, name_normalized = ? WHERE id = ?", name, normalize(name), id); err != nil {
		return fmt.Errorf("renaming artist %d: %w", id, err)
	}
	if err := rekeyArtist(ctx, tx, id); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) EditTrack(ctx context.Context, id int64, title string) error {
	if err := s.ready(); err != nil {
		return err
	}
	title = strings.Join(strings.Fields(title), " ")
	if title == "" {
		return apperr.Malformedf("title", title, "must not be empty")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := requireRow(ctx, tx, "Track", id); err != nil {
		return err
	}
	tracks, err := loadTracks(ctx, tx, []int64{id})
	if err != nil {
		return err
	}
	artists := tracks[id].Artists
	key := trackKey(title, artists)

	var other int64
	err = tx.QueryRowContext(ctx, "SELECT id FROM Track WHERE track_key = ? AND id <> ?", key, id).Scan(&other)
	if err == nil {
		return &apperr.EntityExistsError{Entity: map[string]any{
			"track": query.TrackRef{Artists: artists, Title: title},
		}}
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("checking track %q: %w", title, err)
	}

	if _, err := tx.ExecContext(ctx, "UPDATE Track SET title = ?, track_key = ? WHERE id = ?", title, key, id); err != nil {
		return fmt.Errorf("renaming track %d: %w", id, err)
	}
	return tx.Commit()
}

// MergeTracks moves every scrobble of the source tracks to target and
// deletes the sources.
func (s *Store) MergeTracks(ctx context.Context, target int64, sources []int64) error {
	if err := s.ready(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := requireRow(ctx, tx, "Track", target); err != nil {
		return err
	}
	for _, src := range sources {
		if src == target {
			continue
		}
		if err := requireRow(ctx, tx, "Track", src); err != nil {
			return err
		}
		if err := mergeTrack(ctx, tx, target, src); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// MergeArtists credits everything of the source artists to target and
// deletes the sources. Tracks that become identical are merged.
func (s *Store) MergeArtists(ctx context.Context, target int64, sources []int64) error {
	if err := s.ready(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := requireRow(ctx, tx, "Artist", target); err != nil {
		return err
	}
	for _, src := range sources {
		if src == target {
			continue
		}
		if err := requireRow(ctx, tx, "Artist", src); err != nil {
			return err
		}
		stmts := []string{
			"INSERT OR IGNORE INTO TrackArtist (track, artist, position) SELECT track, ?, position FROM TrackArtist WHERE artist = ?",
			"INSERT OR IGNORE INTO AlbumArtist (album, artist) SELECT album, ? FROM AlbumArtist WHERE artist = ?",
		}
		for _, stmt := range stmts {
			if _, err := tx.ExecContext(ctx, stmt, target, src); err != nil {
				return fmt.Errorf("moving artist %d to %d: %w", src, target, err)
			}
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM Artist WHERE id = ?", src); err != nil {
			return fmt.Errorf("deleting artist %d: %w", src, err)
		}
	}
	if err := rekeyArtist(ctx, tx, target); err != nil {
		return err
	}
	return tx.Commit()
}

// ReparseScrobble runs the fixing pass over the stored raw submission
// again. It returns nil when the scrobble did not change.
func (s *Store) ReparseScrobble(ctx context.Context, ts int64) (*Scrobble, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.reparse(ctx, ts)
}

func (s *Store) reparse(ctx context.Context, ts int64) (*Scrobble, error) {
	var (
		current  int64
		raw      sql.NullString
		duration int
		origin   string
	)
	err := s.db.QueryRowContext(ctx, "SELECT track, raw, COALESCE(duration, 0), origin FROM Scrobble WHERE timestamp = ?", ts).
		Scan(&current, &raw, &duration, &origin)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("scrobble %d", ts)
	}
	if err != nil {
		return nil, fmt.Errorf("loading scrobble %d: %w", ts, err)
	}
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}

	var rs RawScrobble
	if err := json.Unmarshal([]byte(raw.String), &rs); err != nil {
		return nil, fmt.Errorf("decoding raw scrobble %d: %w", ts, err)
	}
	clean := cleanup(rs, true)
	if len(clean.Artists) == 0 || clean.Title == "" {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	track, err := createTrack(ctx, tx, clean)
	if err != nil {
		return nil, err
	}
	if track.ID == current {
		return nil, nil
	}
	if _, err := tx.ExecContext(ctx, "UPDATE Scrobble SET track = ? WHERE timestamp = ?", track.ID, ts); err != nil {
		return nil, fmt.Errorf("updating scrobble %d: %w", ts, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}
	return &Scrobble{Time: ts, Track: track, Duration: duration, Origin: origin}, nil
}

// Rebuild reparses every scrobble and prunes unused entities in the
// background. Until it finishes every other call fails with NotReady.
func (s *Store) Rebuild(ctx context.Context) error {
	if !s.rebuilding.CompareAndSwap(false, true) {
		return apperr.NotReady
	}
	s.rebuilt.Store(false)

	s.Background("rebuild", func() error {
		defer s.rebuilding.Store(false)
		if err := s.rebuild(context.WithoutCancel(ctx)); err != nil {
			return err
		}
		s.rebuilt.Store(true)
		return nil
	})
	return nil
}

func (s *Store) rebuild(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, "SELECT timestamp FROM Scrobble WHERE raw IS NOT NULL ORDER BY timestamp")
	if err != nil {
		return fmt.Errorf("listing scrobbles: %w", err)
	}
	timestamps, err := scanIDs(rows)
	if err != nil {
		return err
	}

	changed := 0
	for _, ts := range timestamps {
		sc, err := s.reparse(ctx, ts)
		if err != nil {
			return err
		}
		if sc != nil {
			changed++
		}
	}

	prune := []string{
		"DELETE FROM Track WHERE id NOT IN (SELECT track FROM Scrobble)",
		"DELETE FROM Album WHERE id NOT IN (SELECT album FROM Track WHERE album IS NOT NULL)",
		"DELETE FROM Artist WHERE id NOT IN (SELECT artist FROM TrackArtist) AND id NOT IN (SELECT artist FROM AlbumArtist)",
	}
	for _, stmt := range prune {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("pruning: %w", err)
		}
	}

	log.WithField("component", "store").Infof("Rebuild reparsed %s scrobbles, %s changed",
		humanize.Comma(int64(len(timestamps))), humanize.Comma(int64(changed)))
	return nil
}

// SetAssociations replaces all artist associations.
func (s *Store) SetAssociations(ctx context.Context, assocs []Association) error {
	if err := s.ready(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM ArtistAssociation"); err != nil {
		return fmt.Errorf("clearing associations: %w", err)
	}
	for _, a := range assocs {
		if _, err := tx.ExecContext(ctx, "INSERT OR IGNORE INTO ArtistAssociation (source, target) VALUES (?, ?)", normalize(a.Source), normalize(a.Target)); err != nil {
			return fmt.Errorf("inserting association %q -> %q: %w", a.Source, a.Target, err)
		}
	}
	return tx.Commit()
}

// Export writes every scrobble as a JSON document, oldest first.
func (s *Store) Export(ctx context.Context, w io.Writer) error {
	scrobbles, err := s.Scrobbles(ctx, query.FilterSpec{}, timerange.Range{}, query.AllEntries)
	if err != nil {
		return err
	}
	for i, j := 0, len(scrobbles)-1; i < j; i, j = i+1, j-1 {
		scrobbles[i], scrobbles[j] = scrobbles[j], scrobbles[i]
	}
	if scrobbles == nil {
		scrobbles = []Scrobble{}
	}

	doc := struct {
		ExportTime int64      `json:"export_time"`
		Scrobbles  []Scrobble `json:"scrobbles"`
	}{
		ExportTime: s.now().Unix(),
		Scrobbles:  scrobbles,
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "\t")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encoding export: %w", err)
	}
	return nil
}

// Snapshot writes a consistent copy of the database to path.
func (s *Store) Snapshot(ctx context.Context, path string) error {
	if err := s.ready(); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, "VACUUM INTO ?", path); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	return nil
}

// ExportName is the file name offered for exports and backups.
func ExportName(prefix, ext string, now time.Time) string {
	return fmt.Sprintf("%s_%s.%s", prefix, now.Format("2006_01_02"), ext)
}

func requireRow(ctx context.Context, q querier, table string, id int64) error {
	var found int64
	err := q.QueryRowContext(ctx, "SELECT id FROM "+table+" WHERE id = ?", id).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return notFound("%s %d", strings.ToLower(table), id)
	}
	if err != nil {
		return fmt.Errorf("looking up %s %d: %w", strings.ToLower(table), id, err)
	}
	return nil
}

func mergeTrack(ctx context.Context, tx *sql.Tx, target, src int64) error {
	if _, err := tx.ExecContext(ctx, "UPDATE Scrobble SET track = ? WHERE track = ?", target, src); err != nil {
		return fmt.Errorf("moving scrobbles of track %d: %w", src, err)
	}
	if _, err := tx.ExecContext(ctx, "UPDATE Track SET album = (SELECT album FROM Track WHERE id = ?) WHERE id = ? AND album IS NULL", src, target); err != nil {
		return fmt.Errorf("moving album of track %d: %w", src, err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM Track WHERE id = ?", src); err != nil {
		return fmt.Errorf("deleting track %d: %w", src, err)
	}
	return nil
}

// rekeyArtist recomputes the keys of everything credited to an artist after
// its name or identity changed.
func rekeyArtist(ctx context.Context, tx *sql.Tx, artist int64) error {
	rows, err := tx.QueryContext(ctx, "SELECT track FROM TrackArtist WHERE artist = ? ORDER BY track", artist)
	if err != nil {
		return fmt.Errorf("listing tracks of artist %d: %w", artist, err)
	}
	trackIDs, err := scanIDs(rows)
	if err != nil {
		return err
	}
	for _, id := range trackIDs {
		if err := rekeyTrack(ctx, tx, id); err != nil {
			return err
		}
	}

	rows, err = tx.QueryContext(ctx, "SELECT album FROM AlbumArtist WHERE artist = ? ORDER BY album", artist)
	if err != nil {
		return fmt.Errorf("listing albums of artist %d: %w", artist, err)
	}
	albumIDs, err := scanIDs(rows)
	if err != nil {
		return err
	}
	for _, id := range albumIDs {
		if err := rekeyAlbum(ctx, tx, id); err != nil {
			return err
		}
	}
	return nil
}

func rekeyTrack(ctx context.Context, tx *sql.Tx, id int64) error {
	tracks, err := loadTracks(ctx, tx, []int64{id})
	if err != nil {
		return err
	}
	t := tracks[id]
	key := trackKey(t.Title, t.Artists)

	var other int64
	err = tx.QueryRowContext(ctx, "SELECT id FROM Track WHERE track_key = ? AND id <> ?", key, id).Scan(&other)
	if errors.Is(err, sql.ErrNoRows) {
		if _, err := tx.ExecContext(ctx, "UPDATE Track SET track_key = ? WHERE id = ?", key, id); err != nil {
			return fmt.Errorf("rekeying track %d: %w", id, err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("checking track key: %w", err)
	}
	return mergeTrack(ctx, tx, other, id)
}

func rekeyAlbum(ctx context.Context, tx *sql.Tx, id int64) error {
	var name string
	if err := tx.QueryRowContext(ctx, "SELECT name FROM Album WHERE id = ?", id).Scan(&name); err != nil {
		return fmt.Errorf("loading album %d: %w", id, err)
	}
	artists, err := loadAlbumArtists(ctx, tx, []int64{id})
	if err != nil {
		return err
	}
	key := albumKey(name, artists[id])

	var other int64
	err = tx.QueryRowContext(ctx, "SELECT id FROM Album WHERE album_key = ? AND id <> ?", key, id).Scan(&other)
	if errors.Is(err, sql.ErrNoRows) {
		if _, err := tx.ExecContext(ctx, "UPDATE Album SET album_key = ? WHERE id = ?", key, id); err != nil {
			return fmt.Errorf("rekeying album %d: %w", id, err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("checking album key: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "UPDATE Track SET album = ? WHERE album = ?", other, id); err != nil {
		return fmt.Errorf("moving tracks of album %d: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM Album WHERE id = ?", id); err != nil {
		return fmt.Errorf("deleting album %d: %w", id, err)
	}
	return nil
}
