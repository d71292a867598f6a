// Package settings is the runtime-editable settings store behind the
// settings endpoint. Values are persisted to a YAML file.
package settings

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/viper"
)

type Store struct {
	mu   sync.RWMutex
	v    *viper.Viper
	path string
}

func New(path string) (*Store, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading settings: %w", err)
		}
	}
	return &Store{v: v, path: path}, nil
}

func (s *Store) GetString(key string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.v.GetString(key)
}

func (s *Store) IsSet(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.v.IsSet(key)
}

// Update sets every key and persists the result. Readers see either none or
// all of the new values, and none of them if the file cannot be written.
func (s *Store) Update(values map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := viper.New()
	next.SetConfigFile(s.path)
	next.SetConfigType("yaml")
	if err := next.MergeConfigMap(s.v.AllSettings()); err != nil {
		return fmt.Errorf("copying settings: %w", err)
	}
	for k, raw := range values {
		next.Set(strings.ToLower(k), parseValue(raw))
	}
	if err := next.WriteConfigAs(s.path); err != nil {
		return fmt.Errorf("writing settings: %w", err)
	}
	s.v = next
	return nil
}

// parseValue keeps form values typed in the YAML file.
func parseValue(raw string) any {
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	switch strings.ToLower(raw) {
	case "true", "yes", "on":
		return true
	case "false", "no", "off":
		return false
	}
	return raw
}
