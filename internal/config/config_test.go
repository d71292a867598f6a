package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestLoadDefaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	dir := t.TempDir()
	v.Set("data_dir", dir)
	v.Set("timezone", "UTC")

	c, err := Load(v)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if c.Database != filepath.Join(dir, "scrobbles.db") {
		t.Errorf("Database = %q", c.Database)
	}
	if c.Location != time.UTC {
		t.Errorf("Location = %v, want UTC", c.Location)
	}
	if c.Addr() != ":42010" {
		t.Errorf("Addr() = %q, want :42010", c.Addr())
	}
	if c.Certification.Gold != 250 || c.Certification.Diamond != 1000 {
		t.Errorf("Certification = %+v", c.Certification)
	}
	if c.KeysFile() != filepath.Join(dir, "apikeys.yaml") {
		t.Errorf("KeysFile() = %q", c.KeysFile())
	}
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("SCROBBLE_LASTFM_API_KEY", "abc")
	t.Setenv("SCROBBLE_PORT", "8080")

	v := viper.New()
	SetDefaults(v)
	BindEnv(v)
	v.Set("data_dir", t.TempDir())

	c, err := Load(v)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if c.LastFM.APIKey != "abc" {
		t.Errorf("LastFM.APIKey = %q, want abc", c.LastFM.APIKey)
	}
	if c.Port != 8080 {
		t.Errorf("Port = %d, want 8080", c.Port)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := map[string]any{
		"timezone":              "Mars/Olympus",
		"port":                  70000,
		"certification.gold":    0,
		"certification.diamond": 100,
	}
	for key, value := range tests {
		v := viper.New()
		SetDefaults(v)
		v.Set("data_dir", t.TempDir())
		v.Set(key, value)
		if _, err := Load(v); err == nil {
			t.Errorf("Load() with %s=%v succeeded, want error", key, value)
		}
	}
}
