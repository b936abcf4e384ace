// Package config loads client settings from defaults, an optional YAML file,
// a .env file and MASTOFY_* environment variables, in that order.
package config

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/kimhsiao/mastofy/internal/errors"
	"github.com/kimhsiao/mastofy/internal/logging"
)

const (
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "MASTOFY_"
	// FileName is the config file looked up in the data directory.
	FileName = "config.yaml"
	// MaxPageLimit is the largest page the server hands out.
	MaxPageLimit = 40
)

// Config holds client settings.
type Config struct {
	DataDir           string        `yaml:"data_dir"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	RequestTimeout    time.Duration `yaml:"request_timeout"`
	PageLimit         int           `yaml:"page_limit"`
	LogLevel          string        `yaml:"log_level"`
	MaxImageDimension int           `yaml:"max_image_dimension"`
	CredentialTTL     time.Duration `yaml:"credential_ttl"`

	// TokenKey encrypts the stored access token. Environment only.
	TokenKey string `yaml:"-"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		DataDir:           defaultDataDir(),
		PollInterval:      10 * time.Second,
		RequestTimeout:    30 * time.Second,
		PageLimit:         20,
		LogLevel:          "info",
		MaxImageDimension: 1920,
		CredentialTTL:     time.Hour,
	}
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "mastofy")
	}
	return ".mastofy"
}

// Load builds the configuration. An explicit path must exist; without one
// the file in the default data directory is used when present. A .env file
// in the working directory fills in variables not already set.
func Load(path string) (*Config, error) {
	cfg := Default()

	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	if path == "" {
		candidate := filepath.Join(dataDirFromEnv(cfg.DataDir), FileName)
		if _, err := os.Stat(candidate); err == nil {
			path = candidate
		}
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); stderrors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return errors.Wrap(errors.ErrConfig, "failed to read "+path, err)
	}
	logging.Debug("Loaded environment file", map[string]interface{}{"path": path})
	return nil
}

func dataDirFromEnv(fallback string) string {
	if v, ok := os.LookupEnv(EnvPrefix + "DATA_DIR"); ok && v != "" {
		return v
	}
	return fallback
}

// loadFile overlays the YAML file at path. Unknown keys are rejected.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(errors.ErrConfig, "failed to read config file", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !stderrors.Is(err, io.EOF) {
		return errors.Wrap(errors.ErrConfig, "invalid config file "+path, err)
	}
	return nil
}

// applyEnv overlays MASTOFY_* variables read through lookup.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	get := func(name string) (string, bool) {
		v, ok := lookup(EnvPrefix + name)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	if v, ok := get("DATA_DIR"); ok {
		c.DataDir = v
	}
	if v, ok := get("LOG_LEVEL"); ok {
		c.LogLevel = v
	}
	if v, ok := get("TOKEN_KEY"); ok {
		c.TokenKey = v
	}

	durations := []struct {
		name string
		dst  *time.Duration
	}{
		{"POLL_INTERVAL", &c.PollInterval},
		{"REQUEST_TIMEOUT", &c.RequestTimeout},
		{"CREDENTIAL_TTL", &c.CredentialTTL},
	}
	for _, d := range durations {
		v, ok := get(d.name)
		if !ok {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return errors.Wrap(errors.ErrConfig, EnvPrefix+d.name+" is not a duration", err)
		}
		*d.dst = parsed
	}

	ints := []struct {
		name string
		dst  *int
	}{
		{"PAGE_LIMIT", &c.PageLimit},
		{"MAX_IMAGE_DIMENSION", &c.MaxImageDimension},
	}
	for _, n := range ints {
		v, ok := get(n.name)
		if !ok {
			continue
		}
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrap(errors.ErrConfig, EnvPrefix+n.name+" is not a number", err)
		}
		*n.dst = parsed
	}
	return nil
}

// Validate checks that every setting is usable.
func (c *Config) Validate() error {
	var problems []string

	if strings.TrimSpace(c.DataDir) == "" {
		problems = append(problems, "data_dir is empty")
	}
	if c.PollInterval < time.Second {
		problems = append(problems, fmt.Sprintf("poll_interval %s is below 1s", c.PollInterval))
	}
	if c.RequestTimeout <= 0 {
		problems = append(problems, "request_timeout must be positive")
	}
	if c.PageLimit < 1 || c.PageLimit > MaxPageLimit {
		problems = append(problems, fmt.Sprintf("page_limit %d is outside 1..%d", c.PageLimit, MaxPageLimit))
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		problems = append(problems, err.Error())
	}
	if c.MaxImageDimension < 0 {
		problems = append(problems, "max_image_dimension must not be negative")
	}
	if c.CredentialTTL <= 0 {
		problems = append(problems, "credential_ttl must be positive")
	}

	if len(problems) > 0 {
		return errors.New(errors.ErrConfig, "invalid configuration: "+strings.Join(problems, "; "))
	}
	return nil
}
