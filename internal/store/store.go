package store

import (
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/mattn/go-sqlite3"
	log "github.com/sirupsen/logrus"

	"github.com/ademuri/scrobble-server/internal/apperr"
)

type Store struct {
	db   *sql.DB
	path string
	loc  *time.Location
	now  func() time.Time

	rebuilding atomic.Bool
	rebuilt    atomic.Bool
	bg         sync.WaitGroup
}

// Option configures a Store.
type Option func(*Store)

// WithLocation sets the timezone used for calendar arithmetic.
func WithLocation(loc *time.Location) Option {
	return func(s *Store) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

func New(dbPath string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating tables: %w", err)
	}

	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensuring schema: %w", err)
	}

	s := &Store{db: db, path: dbPath, loc: time.Local, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Close waits for background jobs and closes the database.
func (s *Store) Close() error {
	s.bg.Wait()
	return s.db.Close()
}

// Wait blocks until background jobs such as a rebuild have finished.
func (s *Store) Wait() {
	s.bg.Wait()
}

// Location is the timezone calendar ranges are computed in.
func (s *Store) Location() *time.Location {
	return s.loc
}

// Now returns the current time in the store's location.
func (s *Store) Now() time.Time {
	return s.now().In(s.loc)
}

// Status mirrors the database state reported by serverinfo.
type Status struct {
	Healthy           bool `json:"healthy"`
	RebuildInProgress bool `json:"rebuildinprogress"`
	Complete          bool `json:"complete"`
}

func (s *Store) Status() Status {
	busy := s.rebuilding.Load()
	return Status{
		Healthy:           true,
		RebuildInProgress: busy,
		Complete:          !busy && s.rebuilt.Load(),
	}
}

func (s *Store) ready() error {
	if s.rebuilding.Load() {
		return apperr.NotReady
	}
	return nil
}

// Background runs fn on its own goroutine, tracked by Wait and Close.
func (s *Store) Background(name string, fn func() error) {
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		start := time.Now()
		if err := fn(); err != nil {
			log.WithField("component", "store").WithError(err).Errorf("%s failed", name)
			return
		}
		log.WithField("component", "store").Infof("%s finished in %s", name, time.Since(start).Round(time.Millisecond))
	}()
}

const schema = `
CREATE TABLE IF NOT EXISTS Artist (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  name TEXT NOT NULL,
  name_normalized TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS Album (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  name TEXT NOT NULL,
  album_key TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS AlbumArtist (
  album INTEGER NOT NULL,
  artist INTEGER NOT NULL,
  FOREIGN KEY (album) REFERENCES Album(id) ON DELETE CASCADE,
  FOREIGN KEY (artist) REFERENCES Artist(id) ON DELETE CASCADE,
  PRIMARY KEY (album, artist)
);

CREATE TABLE IF NOT EXISTS Track (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  title TEXT NOT NULL,
  track_key TEXT NOT NULL UNIQUE,
  album INTEGER,
  FOREIGN KEY (album) REFERENCES Album(id) ON DELETE SET NULL
);

CREATE TABLE IF NOT EXISTS TrackArtist (
  track INTEGER NOT NULL,
  artist INTEGER NOT NULL,
  position INTEGER NOT NULL DEFAULT 0,
  FOREIGN KEY (track) REFERENCES Track(id) ON DELETE CASCADE,
  FOREIGN KEY (artist) REFERENCES Artist(id) ON DELETE CASCADE,
  PRIMARY KEY (track, artist)
);

CREATE TABLE IF NOT EXISTS Scrobble (
  timestamp INTEGER PRIMARY KEY,
  track INTEGER NOT NULL,
  duration INTEGER,
  origin TEXT NOT NULL DEFAULT '',
  FOREIGN KEY (track) REFERENCES Track(id)
);

CREATE INDEX IF NOT EXISTS ScrobbleTrack ON Scrobble(track);
CREATE INDEX IF NOT EXISTS TrackArtistArtist ON TrackArtist(artist);

CREATE TABLE IF NOT EXISTS ArtistAssociation (
  source TEXT NOT NULL,
  target TEXT NOT NULL,
  PRIMARY KEY (source, target)
);
`

func createTables(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}
	return nil
}

// Columns added after the first schema version.
func ensureSchema(db *sql.DB) error {
	if err := addColumnIfNotExists(db, "Track", "length", "INTEGER"); err != nil {
		return err
	}
	if err := addColumnIfNotExists(db, "Scrobble", "raw", "TEXT"); err != nil {
		return err
	}
	return nil
}

func addColumnIfNotExists(db *sql.DB, table, column, typeDef string) error {
	exists, err := columnExists(db, table, column)
	if err != nil {
		return fmt.Errorf("checking column %s.%s: %w", table, column, err)
	}
	if !exists {
		query := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, typeDef)
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("adding column %s.%s: %w", table, column, err)
		}
	}
	return nil
}

func columnExists(db *sql.DB, tableName string, columnName string) (bool, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid       int
			name      string
			ctype     string
			notnull   int
			dfltValue any
			pk        int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return false, err
		}
		if name == columnName {
			return true, nil
		}
	}
	return false, rows.Err()
}
