// Package config loads layered configuration: struct defaults, then an
// optional YAML file, then BOXOFFICE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"boxoffice/internal/catalog"
	"boxoffice/internal/reconcile"
	"boxoffice/internal/storage"
	"boxoffice/pkg/database"
	"boxoffice/pkg/logging"
)

const (
	EnvPrefix = "BOXOFFICE_"
	// PathEnvVar overrides the config file location.
	PathEnvVar = "BOXOFFICE_CONFIG"
)

// DefaultPaths are searched in order when no path is given.
var DefaultPaths = []string{
	"./config.yaml",
	"./config.yml",
	"/etc/boxoffice/config.yaml",
}

type Config struct {
	Storage   StorageConfig    `koanf:"storage"`
	Uploads   UploadsConfig    `koanf:"uploads"`
	Reconcile reconcile.Config `koanf:"reconcile"`
	Server    ServerConfig     `koanf:"server"`
	Auth      AuthConfig       `koanf:"auth"`
	Logging   logging.Config   `koanf:"logging"`
}

// StorageConfig selects where the canonical dataset and dictionaries live.
type StorageConfig struct {
	Backend           string           `koanf:"backend" validate:"oneof=sqlite file s3 memory"`
	SQLite            database.Config  `koanf:"sqlite"`
	Dir               string           `koanf:"dir" validate:"required_if=Backend file"`
	S3                storage.S3Config `koanf:"s3"`
	Tables            catalog.Names    `koanf:"tables"`
	RetainGenerations int              `koanf:"retain_generations" validate:"gte=2"`
}

// UploadsConfig selects where raw upload batches are read from.
type UploadsConfig struct {
	Backend string           `koanf:"backend" validate:"oneof=file s3 memory"`
	Dir     string           `koanf:"dir" validate:"required_if=Backend file"`
	S3      storage.S3Config `koanf:"s3"`
}

type ServerConfig struct {
	Addr              string        `koanf:"addr" validate:"required"`
	EventsAddr        string        `koanf:"events_addr"` // raw TCP event feed, empty disables
	TrustedProxies    []string      `koanf:"trusted_proxies"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout" validate:"gt=0"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
}

type AuthConfig struct {
	JWTSecret string        `koanf:"jwt_secret" validate:"required,min=16"`
	JWTIssuer string        `koanf:"jwt_issuer" validate:"required"`
	JWTTTL    time.Duration `koanf:"jwt_ttl" validate:"gt=0"`
}

func defaultConfig() Config {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	return Config{
		Storage: StorageConfig{
			Backend:           "sqlite",
			SQLite:            database.DefaultConfig(),
			Dir:               home + "/.boxoffice/canonical",
			S3:                storage.S3Config{Region: "us-east-1", Prefix: "canonical/"},
			Tables:            catalog.DefaultNames(),
			RetainGenerations: 3,
		},
		Uploads: UploadsConfig{
			Backend: "file",
			Dir:     home + "/.boxoffice/uploads",
			S3:      storage.S3Config{Region: "us-east-1", Prefix: "uploads/"},
		},
		Reconcile: reconcile.DefaultConfig(),
		Server: ServerConfig{
			Addr:              ":8080",
			ReadHeaderTimeout: 10 * time.Second,
			ShutdownTimeout:   15 * time.Second,
		},
		Auth: AuthConfig{
			// dev default, override with BOXOFFICE_AUTH_JWT_SECRET
			JWTSecret: "dev-secret-change-me-please",
			JWTIssuer: "boxoffice",
			JWTTTL:    24 * time.Hour,
		},
		Logging: logging.Config{Level: "info", Format: "json"},
	}
}

// Load builds the configuration. path may be empty, in which case
// PathEnvVar and DefaultPaths are consulted and a missing file is fine.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(PathEnvVar); p != "" {
		return p
	}
	for _, p := range DefaultPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// sections whose second path element is itself a struct
var subsections = map[string][]string{
	"storage": {"sqlite", "s3", "tables"},
	"uploads": {"s3"},
}

// envTransformFunc maps BOXOFFICE_STORAGE_S3_BUCKET to storage.s3.bucket
// and BOXOFFICE_RECONCILE_CLEAR_UPLOADS to reconcile.clear_uploads.
// Returning "" drops the variable.
func envTransformFunc(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))

	// legacy name read by database.DefaultConfig
	if key == "db_path" {
		return "storage.sqlite.path"
	}
	if key == "config" {
		return ""
	}

	section, rest, ok := strings.Cut(key, "_")
	if !ok || rest == "" {
		return ""
	}
	for _, sub := range subsections[section] {
		if field, ok := strings.CutPrefix(rest, sub+"_"); ok {
			return section + "." + sub + "." + field
		}
	}
	return section + "." + rest
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks struct tags and the rules that span fields.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	var errs []error
	if c.Storage.Backend == "s3" && c.Storage.S3.Bucket == "" {
		errs = append(errs, errors.New("storage.s3.bucket is required when storage.backend=s3"))
	}
	if c.Uploads.Backend == "s3" && c.Uploads.S3.Bucket == "" {
		errs = append(errs, errors.New("uploads.s3.bucket is required when uploads.backend=s3"))
	}
	if c.Storage.Backend == "sqlite" && c.Storage.SQLite.Path == "" {
		errs = append(errs, errors.New("storage.sqlite.path is required when storage.backend=sqlite"))
	}
	return errors.Join(errs...)
}
