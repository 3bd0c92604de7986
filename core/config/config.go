package config

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strings"

	"bulkmerge/core/database"
	"bulkmerge/core/dialect"
	"bulkmerge/core/logger"
	"bulkmerge/core/merge"
	"bulkmerge/core/server"
	"bulkmerge/core/storage"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	// Server holds configuration for the HTTP server.
	Server server.Config `mapstructure:"server"`
	// Storage holds configuration for the object storage holding record files.
	Storage storage.Config `mapstructure:"storage"`
	// Log holds configuration for the logger.
	Log logger.Config `mapstructure:"log"`
	// Database holds configuration for the target database.
	Database database.Config `mapstructure:"database"`
	// Merge holds the bulk engine defaults.
	Merge merge.Config `mapstructure:"merge"`
}

// LoadConfig reads the .env file under dir, if any, then the environment.
func LoadConfig(dir string) (*Config, error) {
	// A missing .env is fine, the environment may carry everything
	_ = godotenv.Overload(filepath.Join(dir, ".env"))

	v := viper.New()
	registerDefaults(v, reflect.TypeOf(Config{}), "")

	// DATABASE_DRIVER -> database.driver
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	if _, err := dialect.Parse(c.Database.Driver); err != nil {
		return fmt.Errorf("invalid database.driver: %w", err)
	}
	if c.Merge.BatchSize < 0 {
		return fmt.Errorf("invalid merge.batch_size %d", c.Merge.BatchSize)
	}
	if c.Merge.TimeoutSeconds < 0 {
		return fmt.Errorf("invalid merge.timeout_seconds %d", c.Merge.TimeoutSeconds)
	}
	return nil
}

// registerDefaults walks t and sets the default tag of every mapstructure key.
func registerDefaults(v *viper.Viper, t reflect.Type, prefix string) {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("mapstructure")
		if tag == "" {
			continue
		}

		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}

		if field.Type.Kind() == reflect.Struct {
			registerDefaults(v, field.Type, key)
			continue
		}

		// Empty defaults still register the key so AutomaticEnv can see it
		v.SetDefault(key, field.Tag.Get("default"))
	}
}
