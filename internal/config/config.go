package config

import (
	"bytes"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

// Version is the tablelog release version.
const Version = "0.2.0"

// Config holds all tablelog configuration.
type Config struct {
	Sink     SinkConfig    `yaml:"sink"`
	Table    TableConfig   `yaml:"table"`
	Handler  HandlerConfig `yaml:"handler"`
	LogLevel string        `yaml:"log_level"` // diagnostic logging on stderr

	ShowVersion bool `yaml:"-"`
	DryRun      bool `yaml:"-"`
}

// SinkConfig selects and configures the row sink.
type SinkConfig struct {
	Name            string            `yaml:"name"` // "bigquery", "webhook", "stdout", "file"; comma-separated to fan out
	Endpoint        string            `yaml:"endpoint"`
	Token           string            `yaml:"token"`
	CredentialsFile string            `yaml:"credentials"`
	Gzip            bool              `yaml:"gzip"`
	Format          string            `yaml:"format"` // "json", "cbor"
	Path            string            `yaml:"path"`
	MaxSize         int64             `yaml:"max_size"` // file rotation threshold in bytes, 0 = never
	Timeout         time.Duration     `yaml:"timeout"`  // webhook request timeout
	Pretty          bool              `yaml:"pretty"`
	Headers         map[string]string `yaml:"headers"`
}

// TableConfig names the destination table.
type TableConfig struct {
	Project string `yaml:"project"`
	Dataset string `yaml:"dataset"`
	Table   string `yaml:"table"`
}

// HandlerConfig holds buffering handler settings.
type HandlerConfig struct {
	Capacity   int    `yaml:"capacity"`
	Level      string `yaml:"level"`
	LoggerName string `yaml:"logger_name"`
	InsertIDs  bool   `yaml:"insert_ids"`
}

var (
	validSinks   = []string{"bigquery", "webhook", "stdout", "file"}
	validFormats = []string{"json", "cbor"}
	validLevels  = []string{"debug", "info", "warn", "warning", "error"}
)

func defaults() Config {
	return Config{
		Sink:     SinkConfig{Name: "bigquery", Format: "json"},
		Handler:  HandlerConfig{Capacity: 200, Level: "info", LoggerName: "root"},
		LogLevel: "info",
	}
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	cfg := defaults()
	cfg.applyEnv()
	return cfg
}

// LoadFile reads a YAML config file and then applies environment variables
// on top of it. Unknown keys are rejected.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "config")
	}
	cfg := defaults()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, errors.Wrapf(err, "config: parse %s", path)
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Sink.Name = getenv("TABLELOG_SINK", c.Sink.Name)
	c.Sink.Endpoint = getenv("TABLELOG_ENDPOINT", c.Sink.Endpoint)
	c.Sink.Token = getenv("TABLELOG_TOKEN", c.Sink.Token)
	c.Sink.CredentialsFile = getenv("TABLELOG_CREDENTIALS", c.Sink.CredentialsFile)
	c.Sink.Gzip = getenvBool("TABLELOG_GZIP", c.Sink.Gzip)
	c.Sink.Format = getenv("TABLELOG_FORMAT", c.Sink.Format)
	c.Sink.Path = getenv("TABLELOG_FILE", c.Sink.Path)
	c.Sink.MaxSize = int64(getenvInt("TABLELOG_FILE_MAX_SIZE", int(c.Sink.MaxSize)))
	c.Sink.Timeout = getenvDuration("TABLELOG_TIMEOUT", c.Sink.Timeout)
	c.Sink.Pretty = getenvBool("TABLELOG_OUTPUT_PRETTY", c.Sink.Pretty)
	if h := loadHeaders(); h != nil {
		if c.Sink.Headers == nil {
			c.Sink.Headers = make(map[string]string, len(h))
		}
		for k, v := range h {
			c.Sink.Headers[k] = v
		}
	}

	c.Table.Project = getenv("TABLELOG_PROJECT", c.Table.Project)
	c.Table.Dataset = getenv("TABLELOG_DATASET", c.Table.Dataset)
	c.Table.Table = getenv("TABLELOG_TABLE", c.Table.Table)

	c.Handler.Capacity = getenvInt("TABLELOG_CAPACITY", c.Handler.Capacity)
	c.Handler.Level = getenv("TABLELOG_LEVEL", c.Handler.Level)
	c.Handler.LoggerName = getenv("TABLELOG_LOGGER_NAME", c.Handler.LoggerName)
	c.Handler.InsertIDs = getenvBool("TABLELOG_INSERT_IDS", c.Handler.InsertIDs)

	c.LogLevel = getenv("TABLELOG_LOG_LEVEL", c.LogLevel)
}

// Validate checks the configuration for invalid values.
// Returns all problems at once, joined.
func (c Config) Validate() error {
	var errs []error

	for _, name := range c.SinkNames() {
		if !slices.Contains(validSinks, name) {
			errs = append(errs, errors.Newf("sink must be one of %s, got %q", strings.Join(validSinks, "|"), name))
			continue
		}
		if c.DryRun {
			continue
		}
		switch name {
		case "webhook":
			if c.Sink.Endpoint == "" {
				errs = append(errs, errors.New("TABLELOG_ENDPOINT is required for the webhook sink"))
			}
		case "file":
			if c.Sink.Path == "" {
				errs = append(errs, errors.New("TABLELOG_FILE is required for the file sink"))
			}
		}
	}
	if !slices.Contains(validFormats, c.Sink.Format) {
		errs = append(errs, errors.Newf("format must be json or cbor, got %q", c.Sink.Format))
	}
	if c.Sink.MaxSize < 0 {
		errs = append(errs, errors.Newf("file max size must not be negative, got %d", c.Sink.MaxSize))
	}
	if c.Sink.Timeout < 0 {
		errs = append(errs, errors.Newf("timeout must not be negative, got %v", c.Sink.Timeout))
	}
	if !c.DryRun {
		if c.Sink.CredentialsFile != "" {
			if _, err := os.Stat(c.Sink.CredentialsFile); err != nil {
				errs = append(errs, errors.Newf("credentials file: %s", c.Sink.CredentialsFile))
			}
		}
	}

	for _, f := range []struct{ env, val string }{
		{"TABLELOG_PROJECT", c.Table.Project},
		{"TABLELOG_DATASET", c.Table.Dataset},
		{"TABLELOG_TABLE", c.Table.Table},
	} {
		if f.val == "" {
			errs = append(errs, errors.Newf("%s is required", f.env))
		}
	}

	if c.Handler.Capacity <= 0 {
		errs = append(errs, errors.Newf("capacity must be positive, got %d", c.Handler.Capacity))
	}
	if !slices.Contains(validLevels, strings.ToLower(c.Handler.Level)) {
		errs = append(errs, errors.Newf("level must be debug, info, warn or error, got %q", c.Handler.Level))
	}
	if !slices.Contains(validLevels, strings.ToLower(c.LogLevel)) {
		errs = append(errs, errors.Newf("log level must be debug, info, warn or error, got %q", c.LogLevel))
	}

	return errors.Join(errs...)
}

// SinkNames splits a comma-separated sink setting such as "bigquery,file".
func (c Config) SinkNames() []string {
	var names []string
	for _, n := range strings.Split(c.Sink.Name, ",") {
		names = append(names, strings.TrimSpace(n))
	}
	return names
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// loadHeaders reads TABLELOG_HEADERS ("Key=value,Key2=value2") into a map.
func loadHeaders() map[string]string {
	v := os.Getenv("TABLELOG_HEADERS")
	if v == "" {
		return nil
	}
	var m map[string]string
	for _, pair := range strings.Split(v, ",") {
		k, val, ok := strings.Cut(pair, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			continue
		}
		if m == nil {
			m = make(map[string]string)
		}
		m[k] = strings.TrimSpace(val)
	}
	return m
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getenvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
