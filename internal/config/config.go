// Package config loads crate's settings from defaults, a YAML file, .env
// files and CRATE_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the complete runtime configuration.
type Config struct {
	Library   LibraryConfig   `mapstructure:"library" yaml:"library"`
	Sync      SyncConfig      `mapstructure:"sync" yaml:"sync"`
	Providers ProvidersConfig `mapstructure:"providers" yaml:"providers"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`

	// File is the config file that was read, if any.
	File string `mapstructure:"-" yaml:"-"`
}

// LibraryConfig locates the local catalog.
type LibraryConfig struct {
	Path  string `mapstructure:"path" yaml:"path" validate:"required"`
	Blobs string `mapstructure:"blobs" yaml:"blobs" validate:"required"`
	// Actor overrides the replica id stored in a new database.
	Actor string `mapstructure:"actor" yaml:"actor,omitempty"`
}

// SyncConfig locates the shared folder replicas exchange snapshots through.
type SyncConfig struct {
	Share    string        `mapstructure:"share" yaml:"share,omitempty"`
	Prefix   string        `mapstructure:"prefix" yaml:"prefix" validate:"required,excludesall=\\"`
	Interval time.Duration `mapstructure:"interval" yaml:"interval" validate:"min=1s"`
}

// ProvidersConfig controls metadata lookups.
type ProvidersConfig struct {
	Mode        string        `mapstructure:"mode" yaml:"mode" validate:"oneof=online offline"`
	MinInterval time.Duration `mapstructure:"min_interval" yaml:"min_interval" validate:"min=0s"`
	Burst       int           `mapstructure:"burst" yaml:"burst" validate:"min=1"`
	CacheTTL    time.Duration `mapstructure:"cache_ttl" yaml:"cache_ttl" validate:"min=0s"`
	// Catalogs are other crate databases consulted as read-only providers.
	Catalogs []string `mapstructure:"catalogs" yaml:"catalogs,omitempty" validate:"dive,required"`
}

// LogConfig selects the log handler.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" yaml:"format" validate:"oneof=text json"`
}

// EnvPrefix prefixes every environment variable crate reads.
const EnvPrefix = "CRATE"

// FileName is the config file searched for when none is given.
const FileName = "crate"

var defaults = map[string]any{
	"library.path":           "crate.db",
	"library.blobs":          "blobs",
	"library.actor":          "",
	"sync.share":             "",
	"sync.prefix":            "crate",
	"sync.interval":          5 * time.Minute,
	"providers.mode":         "online",
	"providers.min_interval": time.Second,
	"providers.burst":        1,
	"providers.cache_ttl":    time.Hour,
	"providers.catalogs":     []string{},
	"log.level":              "info",
	"log.format":             "text",
}

// Options control where Load looks.
type Options struct {
	// File is an explicit config file. It must exist.
	File string
	// SearchPaths are directories searched for crate.yaml when File is
	// empty. Defaults to the working directory and ~/.config/crate.
	SearchPaths []string
	// EnvFiles are loaded into the environment first. Missing files are
	// ignored. Defaults to .env and .env.local.
	EnvFiles []string
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads the configuration.
func Load(opts Options) (*Config, error) {
	envFiles := opts.EnvFiles
	if envFiles == nil {
		envFiles = []string{".env", ".env.local"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if opts.File != "" {
		v.SetConfigFile(opts.File)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", opts.File, err)
		}
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		for _, dir := range searchPaths(opts.SearchPaths) {
			v.AddConfigPath(dir)
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func searchPaths(given []string) []string {
	if given != nil {
		return given
	}
	paths := []string{"."}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "crate"))
	}
	return paths
}

// Validate checks every field constraint.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return validationError(err)
	}
	return nil
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msg := "invalid config:"
	for _, fe := range verrs {
		msg += fmt.Sprintf("\n • %s: rule '%s' expected '%s', got '%v'", fe.Namespace(), fe.Tag(), fe.Param(), fe.Value())
	}
	return errors.New(msg)
}
