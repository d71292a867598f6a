// Package rules reads the TSV rule files kept in the data directory and
// manages the predefined rule sets that can be switched on and off.
package rules

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/ademuri/scrobble-server/internal/apperr"
	"github.com/ademuri/scrobble-server/internal/store"
)

// PredefinedDir is the subdirectory holding rule sets shipped with the
// server. Activating one links it into the rules directory.
const PredefinedDir = "predefined"

const validChars = "-_abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// SanitizeName strips everything but letters, digits, '-' and '_'.
func SanitizeName(name string) string {
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(validChars, r) {
			return r
		}
		return -1
	}, name)
}

// Load reads the countas rules of every active rule file in dir.
func Load(dir string) ([]store.Association, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.tsv"))
	if err != nil {
		return nil, fmt.Errorf("listing rule files: %w", err)
	}
	sort.Strings(paths)

	var assocs []store.Association
	for _, path := range paths {
		a, err := loadFile(path)
		if err != nil {
			return nil, err
		}
		assocs = append(assocs, a...)
	}
	return assocs, nil
}

func loadFile(path string) ([]store.Association, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening rule file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = '\t'
	r.Comment = '#'
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var assocs []store.Association
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		if len(rec) < 3 || strings.TrimSpace(rec[0]) != "countas" {
			continue
		}
		source, target := strings.TrimSpace(rec[1]), strings.TrimSpace(rec[2])
		if source == "" || target == "" {
			continue
		}
		assocs = append(assocs, store.Association{Source: source, Target: target})
	}
	return assocs, nil
}

// Activate links the predefined rule set name into dir.
func Activate(dir, filename string) error {
	name := SanitizeName(filename)
	if name == "" {
		return apperr.Malformedf("filename", filename, "no valid characters")
	}
	src := filepath.Join(dir, PredefinedDir, name+".tsv")
	if _, err := os.Stat(src); err != nil {
		return fmt.Errorf("predefined rule file %q: %w", name, err)
	}
	log.WithField("component", "rules").Infof("Importing predefined rulefile %s", name)
	if err := os.Symlink(src, filepath.Join(dir, name+".tsv")); err != nil {
		return fmt.Errorf("activating rule file %q: %w", name, err)
	}
	return nil
}

// Deactivate removes the active rule file name from dir.
func Deactivate(dir, filename string) error {
	name := SanitizeName(filename)
	if name == "" {
		return apperr.Malformedf("filename", filename, "no valid characters")
	}
	log.WithField("component", "rules").Infof("Deactivating predefined rulefile %s", name)
	if err := os.Remove(filepath.Join(dir, name+".tsv")); err != nil {
		return fmt.Errorf("deactivating rule file %q: %w", name, err)
	}
	return nil
}

type associationSetter interface {
	SetAssociations(ctx context.Context, assocs []store.Association) error
}

// Apply loads the active rule files in dir and replaces the associations
// held by st.
func Apply(ctx context.Context, dir string, st associationSetter) error {
	assocs, err := Load(dir)
	if err != nil {
		return err
	}
	if err := st.SetAssociations(ctx, assocs); err != nil {
		return fmt.Errorf("applying rules: %w", err)
	}
	log.WithField("component", "rules").Infof("Loaded %d artist associations", len(assocs))
	return nil
}
