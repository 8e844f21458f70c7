// Package config loads dbgen settings from an optional YAML file.
//
// Settings are layered: Default, then the file, then command-line flags
// (applied by the caller), then Validate.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/roach88/dbgen/internal/eval"
)

// NowLayout is the accepted layout of the Now setting, in UTC.
const NowLayout = "2006-01-02 15:04:05"

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config holds every dbgen setting.
type Config struct {
	Template       string `yaml:"template"`
	Output         string `yaml:"output"`
	Format         string `yaml:"format" validate:"oneof=csv sql"`
	Files          int    `yaml:"files" validate:"gte=1"`
	TotalRows      int64  `yaml:"total_rows" validate:"gte=0"`
	RowsPerBatch   int64  `yaml:"rows_per_batch" validate:"gte=1"`
	Seed           string `yaml:"seed" validate:"omitempty,len=64,hexadecimal"`
	Now            string `yaml:"now" validate:"omitempty,datetime=2006-01-02 15:04:05"`
	Qualified      bool   `yaml:"qualified"`
	Jobs           int    `yaml:"jobs" validate:"gte=0"` // 0 means one per CPU
	MaxOccurrences int64  `yaml:"max_occurrences" validate:"gte=0"`
	SQLite         string `yaml:"sqlite"`

	Serve     ServeConfig     `yaml:"serve"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServeConfig configures the S3 front end.
type ServeConfig struct {
	Listen        string  `yaml:"listen" validate:"required"`
	MetricsListen string  `yaml:"metrics_listen"` // empty disables the metrics listener
	Bucket        string  `yaml:"bucket" validate:"required,min=3,max=63"`
	RateLimit     float64 `yaml:"rate_limit" validate:"gte=0"` // requests per second, 0 disables
	RateBurst     int     `yaml:"rate_burst" validate:"gte=0"`
}

// TelemetryConfig configures trace export.
type TelemetryConfig struct {
	Exporter     string `yaml:"exporter" validate:"oneof=none stdout otlp"`
	OTLPEndpoint string `yaml:"otlp_endpoint" validate:"required_if=Exporter otlp"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Format:       "csv",
		Files:        1,
		TotalRows:    1000,
		RowsPerBatch: 100,
		Serve: ServeConfig{
			Listen: "127.0.0.1:9000",
			Bucket: "dbgen",
		},
		Telemetry: TelemetryConfig{
			Exporter: "none",
		},
	}
}

// Load returns Default overlaid with the YAML file at path. An empty path
// returns Default. Unknown fields are rejected. The result is not
// validated.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return cfg, nil
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks every setting. Errors wrap ErrInvalid and name each
// offending field by its YAML key.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	msgs := make([]string, len(verrs))
	for i, fe := range verrs {
		msgs[i] = describe(fe)
	}
	return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	field := yamlKey(fe.StructNamespace())
	switch fe.Tag() {
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", field, fe.Param(), fe.Value())
	case "gte":
		return fmt.Sprintf("%s must be at least %s, got %v", field, fe.Param(), fe.Value())
	case "len", "hexadecimal":
		return fmt.Sprintf("%s must be %d hex characters", field, 2*eval.SeedSize)
	case "datetime":
		return fmt.Sprintf("%s must have the form %q, got %q", field, NowLayout, fe.Value())
	case "required", "required_if":
		return fmt.Sprintf("%s is required", field)
	default:
		return fmt.Sprintf("%s failed %s check", field, fe.Tag())
	}
}

// yamlKey converts a struct namespace such as Config.Serve.RateLimit into
// serve.rate_limit.
func yamlKey(namespace string) string {
	parts := strings.Split(namespace, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	for i, p := range parts {
		parts[i] = snake(p)
	}
	return strings.Join(parts, ".")
}

func snake(s string) string {
	switch s {
	case "SQLite":
		return "sqlite"
	case "OTLPEndpoint":
		return "otlp_endpoint"
	case "OTLPInsecure":
		return "otlp_insecure"
	}
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SeedBytes decodes Seed. An empty seed is all zeros.
func (c *Config) SeedBytes() ([eval.SeedSize]byte, error) {
	return eval.ParseSeed(c.Seed)
}

// NowTime parses Now as UTC. An empty Now yields fallback.
func (c *Config) NowTime(fallback time.Time) (time.Time, error) {
	if c.Now == "" {
		return fallback.UTC(), nil
	}
	t, err := time.ParseInLocation(NowLayout, c.Now, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: now: %v", ErrInvalid, err)
	}
	return t, nil
}
