package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/ademuri/scrobble-server/internal/apperr"
	"github.com/ademuri/scrobble-server/internal/query"
	"github.com/ademuri/scrobble-server/internal/timerange"
)

var testNow = time.Date(2024, time.June, 15, 12, 0, 0, 0, time.UTC)

func createTestDb(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "scrobbles.db")

	store, err := New(dbPath, WithLocation(time.UTC), WithClock(func() time.Time { return testNow }))
	if err != nil {
		t.Fatalf("New(%s) error: %v", dbPath, err)
	}
	t.Cleanup(func() { store.Close() })

	return store
}

func mustAdd(t *testing.T, s *Store, raws ...RawScrobble) {
	t.Helper()
	if _, err := s.AddScrobbles(context.Background(), raws, "test"); err != nil {
		t.Fatalf("AddScrobbles failed: %v", err)
	}
}

func raw(artist, title string, when time.Time) RawScrobble {
	return RawScrobble{Artists: []string{artist}, Title: title, Time: when.Unix()}
}

func TestIncomingScrobble(t *testing.T) {
	s := createTestDb(t)
	ctx := context.Background()

	in := RawScrobble{
		Artists: []string{"  Artist   A ", "artist a", "Artist B"},
		Title:   " Some   Title ",
		Album:   "Album",
		Time:    1700000000,
	}
	sc, err := s.IncomingScrobble(ctx, in, "phone", true)
	if err != nil {
		t.Fatalf("IncomingScrobble failed: %v", err)
	}
	if sc.Time != 1700000000 || sc.Origin != "client:phone" {
		t.Errorf("got time %d origin %q, want 1700000000 client:phone", sc.Time, sc.Origin)
	}
	if sc.Track.Title != "Some Title" {
		t.Errorf("Title = %q, want cleaned title", sc.Track.Title)
	}
	if len(sc.Track.Artists) != 2 || sc.Track.Artists[0] != "Artist A" || sc.Track.Artists[1] != "Artist B" {
		t.Errorf("Artists = %v, want [Artist A Artist B]", sc.Track.Artists)
	}
	if sc.Track.Album == nil || sc.Track.Album.Name != "Album" {
		t.Errorf("Album = %v, want Album", sc.Track.Album)
	}

	// Same timestamp moves forward.
	second, err := s.IncomingScrobble(ctx, in, "phone", true)
	if err != nil {
		t.Fatalf("IncomingScrobble (repeat) failed: %v", err)
	}
	if second.Time != 1700000001 {
		t.Errorf("second scrobble at %d, want 1700000001", second.Time)
	}
	if second.Track.ID != sc.Track.ID {
		t.Errorf("second scrobble has track %d, want %d", second.Track.ID, sc.Track.ID)
	}
}

func TestIncomingScrobbleDefaultsToNow(t *testing.T) {
	s := createTestDb(t)
	sc, err := s.IncomingScrobble(context.Background(), RawScrobble{Artists: []string{"A"}, Title: "T"}, "", false)
	if err != nil {
		t.Fatalf("IncomingScrobble failed: %v", err)
	}
	if sc.Time != testNow.Unix() {
		t.Errorf("Time = %d, want %d", sc.Time, testNow.Unix())
	}
	if sc.Origin != "" {
		t.Errorf("Origin = %q, want empty", sc.Origin)
	}
}

func TestIncomingScrobbleMissingParameters(t *testing.T) {
	s := createTestDb(t)
	_, err := s.IncomingScrobble(context.Background(), RawScrobble{Artists: []string{"   "}}, "", true)

	var missing *apperr.MissingScrobbleParametersError
	if !errors.As(err, &missing) {
		t.Fatalf("IncomingScrobble error = %v, want MissingScrobbleParametersError", err)
	}
	if len(missing.Params) != 2 || missing.Params[0] != "artists" || missing.Params[1] != "title" {
		t.Errorf("Params = %v, want [artists title]", missing.Params)
	}
}

func TestAddScrobblesIsIdempotent(t *testing.T) {
	s := createTestDb(t)
	ctx := context.Background()
	when := time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)
	batch := []RawScrobble{raw("Artist", "One", when), raw("Artist", "Two", when.Add(time.Minute))}

	added, err := s.AddScrobbles(ctx, batch, "import:test")
	if err != nil {
		t.Fatalf("AddScrobbles failed: %v", err)
	}
	if added != 2 {
		t.Errorf("AddScrobbles added %d, want 2", added)
	}

	added, err = s.AddScrobbles(ctx, batch, "import:test")
	if err != nil {
		t.Fatalf("AddScrobbles (repeat) failed: %v", err)
	}
	if added != 0 {
		t.Errorf("AddScrobbles (repeat) added %d, want 0", added)
	}

	count, err := s.CountScrobbles(ctx, query.FilterSpec{}, timerange.Range{})
	if err != nil {
		t.Fatalf("CountScrobbles failed: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected 2 scrobbles, got %d", count)
	}
}

func TestScrobblesFilterAndOrder(t *testing.T) {
	s := createTestDb(t)
	ctx := context.Background()
	base := time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)
	mustAdd(t, s,
		raw("Artist A", "One", base),
		raw("Artist B", "Two", base.Add(time.Hour)),
		raw("Artist A", "Three", base.Add(2*time.Hour)),
		raw("Artist A", "Four", base.AddDate(0, 1, 0)),
	)

	march, err := timerange.ParseToken("2024/03", testNow)
	if err != nil {
		t.Fatalf("ParseToken failed: %v", err)
	}
	got, err := s.Scrobbles(ctx, query.FilterSpec{Artists: []string{"artist a"}}, march, query.AllEntries)
	if err != nil {
		t.Fatalf("Scrobbles failed: %v", err)
	}
	if len(got) != 2 || got[0].Track.Title != "Three" || got[1].Track.Title != "One" {
		t.Errorf("Scrobbles = %+v, want Three then One", got)
	}

	page, err := s.Scrobbles(ctx, query.FilterSpec{}, timerange.Range{}, query.Page{Offset: 1, Limit: 2})
	if err != nil {
		t.Fatalf("Scrobbles failed: %v", err)
	}
	if len(page) != 2 || page[0].Track.Title != "Three" || page[1].Track.Title != "Two" {
		t.Errorf("second page = %+v, want Three then Two", page)
	}

	track := query.FilterSpec{Track: &query.TrackRef{Artists: []string{"Artist B"}, Title: "two"}}
	n, err := s.CountScrobbles(ctx, track, timerange.Range{})
	if err != nil {
		t.Fatalf("CountScrobbles failed: %v", err)
	}
	if n != 1 {
		t.Errorf("CountScrobbles(track) = %d, want 1", n)
	}
}

func TestAssociatedArtists(t *testing.T) {
	s := createTestDb(t)
	ctx := context.Background()
	base := time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)
	mustAdd(t, s, raw("Band", "One", base), raw("Band Member", "Two", base.Add(time.Hour)))

	if err := s.SetAssociations(ctx, []Association{{Source: "Band Member", Target: "Band"}}); err != nil {
		t.Fatalf("SetAssociations failed: %v", err)
	}

	assoc, err := s.Associated(ctx, "band")
	if err != nil {
		t.Fatalf("Associated failed: %v", err)
	}
	if len(assoc) != 1 || assoc[0] != "Band Member" {
		t.Errorf("Associated = %v, want [Band Member]", assoc)
	}

	plain, err := s.CountScrobbles(ctx, query.FilterSpec{Artists: []string{"Band"}}, timerange.Range{})
	if err != nil {
		t.Fatalf("CountScrobbles failed: %v", err)
	}
	withAssoc, err := s.CountScrobbles(ctx, query.FilterSpec{Artists: []string{"Band"}, IncludeAssociated: true}, timerange.Range{})
	if err != nil {
		t.Fatalf("CountScrobbles failed: %v", err)
	}
	if plain != 1 || withAssoc != 2 {
		t.Errorf("counts = %d, %d, want 1, 2", plain, withAssoc)
	}
}

func TestChartsRanks(t *testing.T) {
	s := createTestDb(t)
	ctx := context.Background()
	base := time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)
	mustAdd(t, s,
		raw("A", "One", base),
		raw("A", "One", base.Add(time.Minute)),
		raw("B", "Two", base.Add(2*time.Minute)),
		raw("B", "Two", base.Add(3*time.Minute)),
		raw("C", "Three", base.Add(4*time.Minute)),
	)

	charts, err := s.ChartsArtists(ctx, timerange.Range{})
	if err != nil {
		t.Fatalf("ChartsArtists failed: %v", err)
	}
	wantRanks := []int{1, 1, 3}
	if len(charts) != len(wantRanks) {
		t.Fatalf("ChartsArtists returned %d entries, want %d", len(charts), len(wantRanks))
	}
	for i, want := range wantRanks {
		if charts[i].Rank != want {
			t.Errorf("entry %d (%s) rank = %d, want %d", i, charts[i].Artist, charts[i].Rank, want)
		}
	}
}

func TestPulseAndPerformance(t *testing.T) {
	s := createTestDb(t)
	ctx := context.Background()
	mustAdd(t, s,
		raw("A", "One", time.Date(2024, time.January, 10, 0, 0, 0, 0, time.UTC)),
		raw("B", "Two", time.Date(2024, time.January, 11, 0, 0, 0, 0, time.UTC)),
		raw("B", "Two", time.Date(2024, time.January, 12, 0, 0, 0, 0, time.UTC)),
		raw("A", "One", time.Date(2024, time.March, 10, 0, 0, 0, 0, time.UTC)),
	)

	pulse, err := s.Pulse(ctx, query.FilterSpec{}, timerange.Range{}, timerange.DefaultStep(), query.AllEntries)
	if err != nil {
		t.Fatalf("Pulse failed: %v", err)
	}
	wantCounts := []int{3, 0, 1, 0, 0, 0}
	if len(pulse) != len(wantCounts) {
		t.Fatalf("Pulse returned %d buckets, want %d", len(pulse), len(wantCounts))
	}
	for i, want := range wantCounts {
		if pulse[i].Scrobbles != want {
			t.Errorf("bucket %d (%s) = %d, want %d", i, pulse[i].Range.Desc, pulse[i].Scrobbles, want)
		}
	}

	perf, err := s.Performance(ctx, query.FilterSpec{Artists: []string{"A"}}, timerange.Range{}, timerange.DefaultStep(), query.Page{Offset: 0, Limit: 3})
	if err != nil {
		t.Fatalf("Performance failed: %v", err)
	}
	if len(perf) != 3 {
		t.Fatalf("Performance returned %d buckets, want 3", len(perf))
	}
	if perf[0].Rank == nil || *perf[0].Rank != 2 {
		t.Errorf("January rank = %v, want 2", perf[0].Rank)
	}
	if perf[1].Rank != nil {
		t.Errorf("February rank = %v, want nil", *perf[1].Rank)
	}
	if perf[2].Rank == nil || *perf[2].Rank != 1 {
		t.Errorf("March rank = %v, want 1", perf[2].Rank)
	}

	_, err = s.Performance(ctx, query.FilterSpec{}, timerange.Range{}, timerange.DefaultStep(), query.AllEntries)
	if apperr.Classify(err) != apperr.MissingEntityParameter {
		t.Errorf("Performance without a filter error = %v, want missing entity", err)
	}

	daily := timerange.Step{Unit: timerange.Day, N: 1, Trail: 1}
	wide := timerange.Between(time.Date(1900, time.January, 1, 0, 0, 0, 0, time.UTC), testNow)
	if _, err := s.Pulse(ctx, query.FilterSpec{}, wide, daily, query.AllEntries); apperr.Classify(err) != apperr.MalformedInput {
		t.Errorf("Pulse over too many buckets error = %v, want malformed input", err)
	}

	top, err := s.TopArtists(ctx, timerange.Range{}, timerange.DefaultStep())
	if err != nil {
		t.Fatalf("TopArtists failed: %v", err)
	}
	if top[0].Artist == nil || *top[0].Artist != "B" {
		t.Errorf("January top artist = %v, want B", top[0].Artist)
	}
	if top[1].Artist != nil {
		t.Errorf("February top artist = %q, want none", *top[1].Artist)
	}
}

func TestEditAndMerge(t *testing.T) {
	s := createTestDb(t)
	ctx := context.Background()
	base := time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)
	mustAdd(t, s,
		raw("Artist", "Song", base),
		raw("Artst", "Song", base.Add(time.Minute)),
		raw("Artist", "Other", base.Add(2*time.Minute)),
	)

	typo, err := s.FindArtist(ctx, "artst")
	if err != nil {
		t.Fatalf("FindArtist failed: %v", err)
	}
	err = s.EditArtist(ctx, typo.ID, "ARTIST")
	var exists *apperr.EntityExistsError
	if !errors.As(err, &exists) {
		t.Fatalf("EditArtist onto an existing name error = %v, want EntityExistsError", err)
	}

	target, err := s.FindArtist(ctx, "Artist")
	if err != nil {
		t.Fatalf("FindArtist failed: %v", err)
	}
	if err := s.MergeArtists(ctx, target.ID, []int64{typo.ID}); err != nil {
		t.Fatalf("MergeArtists failed: %v", err)
	}
	if _, err := s.FindArtist(ctx, "artst"); !errors.Is(err, ErrNotFound) {
		t.Errorf("FindArtist(merged) error = %v, want ErrNotFound", err)
	}

	charts, err := s.ChartsTracks(ctx, query.FilterSpec{}, timerange.Range{})
	if err != nil {
		t.Fatalf("ChartsTracks failed: %v", err)
	}
	if len(charts) != 2 || charts[0].Track.Title != "Song" || charts[0].Scrobbles != 2 {
		t.Errorf("ChartsTracks = %+v, want Song with 2 scrobbles first", charts)
	}

	song, err := s.FindTrack(ctx, query.TrackRef{Artists: []string{"Artist"}, Title: "Song"})
	if err != nil {
		t.Fatalf("FindTrack failed: %v", err)
	}
	if err := s.EditTrack(ctx, song.ID, "Other"); err == nil {
		t.Errorf("EditTrack onto an existing title succeeded")
	}
	other, err := s.FindTrack(ctx, query.TrackRef{Artists: []string{"Artist"}, Title: "Other"})
	if err != nil {
		t.Fatalf("FindTrack failed: %v", err)
	}
	if err := s.MergeTracks(ctx, song.ID, []int64{other.ID}); err != nil {
		t.Fatalf("MergeTracks failed: %v", err)
	}
	n, err := s.CountScrobbles(ctx, query.FilterSpec{Track: &query.TrackRef{Artists: []string{"Artist"}, Title: "Song"}}, timerange.Range{})
	if err != nil {
		t.Fatalf("CountScrobbles failed: %v", err)
	}
	if n != 3 {
		t.Errorf("Song has %d scrobbles after merging, want 3", n)
	}

	if err := s.EditTrack(ctx, song.ID, "Renamed"); err != nil {
		t.Fatalf("EditTrack failed: %v", err)
	}
	if _, err := s.FindTrack(ctx, query.TrackRef{Artists: []string{"artist"}, Title: "renamed"}); err != nil {
		t.Errorf("FindTrack(renamed) failed: %v", err)
	}
}

func TestRemoveAndReparse(t *testing.T) {
	s := createTestDb(t)
	ctx := context.Background()
	when := time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)

	sc, err := s.IncomingScrobble(ctx, RawScrobble{Artists: []string{"Spaced   Out"}, Title: "Song", Time: when.Unix()}, "", false)
	if err != nil {
		t.Fatalf("IncomingScrobble failed: %v", err)
	}
	if sc.Track.Artists[0] != "Spaced   Out" {
		t.Fatalf("unfixed artist = %q", sc.Track.Artists[0])
	}

	reparsed, err := s.ReparseScrobble(ctx, sc.Time)
	if err != nil {
		t.Fatalf("ReparseScrobble failed: %v", err)
	}
	// Both spellings normalize to the same artist, so the track is unchanged.
	if reparsed != nil {
		t.Errorf("ReparseScrobble = %+v, want no change", reparsed)
	}

	if err := s.RemoveScrobble(ctx, sc.Time); err != nil {
		t.Fatalf("RemoveScrobble failed: %v", err)
	}
	err = s.RemoveScrobble(ctx, sc.Time)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("RemoveScrobble(removed) error = %v, want ErrNotFound", err)
	}
	var status interface{ HTTPStatus() int }
	if !errors.As(err, &status) || status.HTTPStatus() != 404 {
		t.Errorf("RemoveScrobble(removed) error does not carry a 404")
	}
	if _, err := s.ReparseScrobble(ctx, sc.Time); !errors.Is(err, ErrNotFound) {
		t.Errorf("ReparseScrobble(removed) error = %v, want ErrNotFound", err)
	}
}

func TestRebuild(t *testing.T) {
	s := createTestDb(t)
	ctx := context.Background()
	mustAdd(t, s, raw("A", "One", time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)))

	if err := s.Rebuild(ctx); err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}
	s.Wait()

	status := s.Status()
	if !status.Complete || status.RebuildInProgress {
		t.Errorf("Status = %+v, want complete", status)
	}
	n, err := s.CountScrobbles(ctx, query.FilterSpec{}, timerange.Range{})
	if err != nil {
		t.Fatalf("CountScrobbles failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 scrobble after rebuild, got %d", n)
	}
}

func TestNotReadyWhileRebuilding(t *testing.T) {
	s := createTestDb(t)
	s.rebuilding.Store(true)
	defer s.rebuilding.Store(false)

	_, err := s.Scrobbles(context.Background(), query.FilterSpec{}, timerange.Range{}, query.AllEntries)
	if apperr.Classify(err) != apperr.BackendNotReady {
		t.Errorf("Scrobbles error = %v, want not ready", err)
	}
	if err := s.Rebuild(context.Background()); apperr.Classify(err) != apperr.BackendNotReady {
		t.Errorf("second Rebuild error = %v, want not ready", err)
	}
}

func TestExport(t *testing.T) {
	s := createTestDb(t)
	base := time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)
	mustAdd(t, s, raw("A", "Second", base.Add(time.Hour)), raw("A", "First", base))

	var buf bytes.Buffer
	if err := s.Export(context.Background(), &buf); err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	var doc struct {
		ExportTime int64      `json:"export_time"`
		Scrobbles  []Scrobble `json:"scrobbles"`
	}
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("decoding export: %v", err)
	}
	if doc.ExportTime != testNow.Unix() {
		t.Errorf("export_time = %d, want %d", doc.ExportTime, testNow.Unix())
	}
	if len(doc.Scrobbles) != 2 || doc.Scrobbles[0].Track.Title != "First" {
		t.Errorf("Scrobbles = %+v, want oldest first", doc.Scrobbles)
	}

	if got := ExportName("scrobble-server_export", "json", testNow); got != "scrobble-server_export_2024_06_15.json" {
		t.Errorf("ExportName = %q", got)
	}
}

func TestSearch(t *testing.T) {
	s := createTestDb(t)
	base := time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)
	mustAdd(t, s, raw("Lola Young", "Hello", base), raw("Other", "Low", base.Add(time.Minute)))

	artists, tracks, err := s.Search(context.Background(), "LO")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(artists) != 1 || artists[0] != "Lola Young" {
		t.Errorf("artists = %v, want [Lola Young]", artists)
	}
	if len(tracks) != 2 {
		t.Errorf("tracks = %+v, want Hello and Low", tracks)
	}
}

func TestCompetitionRanks(t *testing.T) {
	got := competitionRanks([]int{5, 5, 3, 2, 2, 1})
	want := []int{1, 1, 3, 4, 4, 6}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("competitionRanks = %v, want %v", got, want)
		}
	}
}
