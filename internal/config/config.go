// Package config holds the server configuration assembled by viper from
// flags, the config file, .env and SCROBBLE_* environment variables.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"

	"github.com/ademuri/scrobble-server/internal/analysis"
)

// EnvPrefix is prepended to every environment variable viper looks up.
const EnvPrefix = "SCROBBLE"

type LastFM struct {
	APIKey string `mapstructure:"api_key"`
	Secret string `mapstructure:"secret"`
}

type Config struct {
	Name          string              `mapstructure:"name"`
	DataDir       string              `mapstructure:"data_dir"`
	Database      string              `mapstructure:"database"`
	Host          string              `mapstructure:"host"`
	Port          int                 `mapstructure:"port"`
	Timezone      string              `mapstructure:"timezone"`
	LogLevel      string              `mapstructure:"log_level"`
	AdminPassword string              `mapstructure:"admin_password"`
	SentryDSN     string              `mapstructure:"sentry_dsn"`
	LastFM        LastFM              `mapstructure:"lastfm"`
	Certification analysis.Thresholds `mapstructure:"certification"`

	Location *time.Location `mapstructure:"-"`
}

// SetDefaults registers the default for every key.
func SetDefaults(v *viper.Viper) {
	thresholds := analysis.DefaultThresholds()
	v.SetDefault("name", "Scrobble Server")
	v.SetDefault("data_dir", "~/.local/share/scrobble-server")
	v.SetDefault("database", "")
	v.SetDefault("host", "")
	v.SetDefault("port", 42010)
	v.SetDefault("timezone", "Local")
	v.SetDefault("log_level", "info")
	v.SetDefault("admin_password", "")
	v.SetDefault("sentry_dsn", "")
	v.SetDefault("lastfm.api_key", "")
	v.SetDefault("lastfm.secret", "")
	v.SetDefault("certification.gold", thresholds.Gold)
	v.SetDefault("certification.platinum", thresholds.Platinum)
	v.SetDefault("certification.diamond", thresholds.Diamond)
}

// BindEnv makes viper consult SCROBBLE_* variables, with nested keys
// using '_' (SCROBBLE_LASTFM_API_KEY).
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

func Load(v *viper.Viper) (Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}

	dir, err := homedir.Expand(c.DataDir)
	if err != nil {
		return Config{}, fmt.Errorf("data_dir: %w", err)
	}
	c.DataDir = dir
	if c.Database == "" {
		c.Database = filepath.Join(c.DataDir, "scrobbles.db")
	} else if c.Database, err = homedir.Expand(c.Database); err != nil {
		return Config{}, fmt.Errorf("database: %w", err)
	}

	if c.Location, err = time.LoadLocation(c.Timezone); err != nil {
		return Config{}, fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return Config{}, fmt.Errorf("port %d out of range", c.Port)
	}
	t := c.Certification
	if t.Gold <= 0 || t.Platinum < t.Gold || t.Diamond < t.Platinum {
		return Config{}, fmt.Errorf("certification thresholds must be positive and increasing, got %d/%d/%d", t.Gold, t.Platinum, t.Diamond)
	}
	return c, nil
}

func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c Config) RulesDir() string {
	return filepath.Join(c.DataDir, "rules")
}

func (c Config) ImagesDir() string {
	return filepath.Join(c.DataDir, "images")
}

func (c Config) SettingsFile() string {
	return filepath.Join(c.DataDir, "settings.yaml")
}

func (c Config) KeysFile() string {
	return filepath.Join(c.DataDir, "apikeys.yaml")
}
