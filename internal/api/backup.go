package api

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/ademuri/scrobble-server/internal/config"
	"github.com/ademuri/scrobble-server/internal/store"
)

// writeBackup snapshots the database into tmp and zips it together with the
// active rule files and the settings and key files into archive.
func writeBackup(ctx context.Context, st *store.Store, cfg config.Config, tmp, archive string) error {
	snapshot := filepath.Join(tmp, "scrobbles.db")
	if err := st.Snapshot(ctx, snapshot); err != nil {
		return err
	}

	files := []struct{ name, path string }{
		{"scrobbles.db", snapshot},
		{"settings.yaml", cfg.SettingsFile()},
		{"apikeys.yaml", cfg.KeysFile()},
	}
	ruleFiles, err := filepath.Glob(filepath.Join(cfg.RulesDir(), "*.tsv"))
	if err != nil {
		return fmt.Errorf("listing rule files: %w", err)
	}
	for _, p := range ruleFiles {
		files = append(files, struct{ name, path string }{"rules/" + filepath.Base(p), p})
	}

	out, err := os.Create(archive)
	if err != nil {
		return fmt.Errorf("creating backup: %w", err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	for _, f := range files {
		if err := addFile(zw, f.name, f.path); err != nil {
			return err
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finishing backup: %w", err)
	}
	return out.Close()
}

// addFile skips files that do not exist.
func addFile(zw *zip.Writer, name, path string) error {
	src, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer src.Close()

	w, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("adding %s to backup: %w", name, err)
	}
	if _, err := io.Copy(w, src); err != nil {
		return fmt.Errorf("adding %s to backup: %w", name, err)
	}
	return nil
}
