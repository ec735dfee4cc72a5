package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/tradeguard/download"
	"github.com/rustyeddy/tradeguard/risk"
)

// Config is the complete tradeguard configuration.
type Config struct {
	Risk     risk.Config    `json:"risk" yaml:"risk"`
	Security SecurityConfig `json:"security" yaml:"security"`
	Download DownloadConfig `json:"download" yaml:"download"`
	Journal  JournalConfig  `json:"journal" yaml:"journal"`
	Log      LogConfig      `json:"log" yaml:"log"`
	Metrics  MetricsConfig  `json:"metrics" yaml:"metrics"`
}

// SecurityConfig scopes where strategy files may live.
type SecurityConfig struct {
	BaseDir    string   `json:"base_dir" yaml:"base_dir"` // empty means the executable's directory
	ExtraRoots []string `json:"extra_roots,omitempty" yaml:"extra_roots,omitempty"`
}

// DownloadConfig contains secure downloader parameters
type DownloadConfig struct {
	Timeout      string   `json:"timeout" yaml:"timeout" validate:"duration"` // e.g. "60s"
	AllowedHosts []string `json:"allowed_hosts" yaml:"allowed_hosts" validate:"min=1,dive,hostname_rfc1123"`
}

// ParseTimeout converts the timeout string to time.Duration
func (d DownloadConfig) ParseTimeout() (time.Duration, error) {
	if d.Timeout == "" {
		return download.DefaultTimeout, nil
	}
	return time.ParseDuration(d.Timeout)
}

// JournalConfig contains journaling parameters
type JournalConfig struct {
	Type   string `json:"type" yaml:"type" validate:"oneof=none sqlite"`
	DBPath string `json:"db_path,omitempty" yaml:"db_path,omitempty" validate:"required_if=Type sqlite"`
}

type LogConfig struct {
	Level  string `json:"level" yaml:"level" validate:"oneof=debug info warn error"`
	Format string `json:"format" yaml:"format" validate:"oneof=json console"`
}

// MetricsConfig names a node_exporter textfile to write after each command.
type MetricsConfig struct {
	Textfile string `json:"textfile,omitempty" yaml:"textfile,omitempty"`
}

// LoadFromFile loads configuration from a file (YAML or JSON). Fields the
// file leaves out keep their defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()

	// Try YAML first, fall back to JSON
	if err := yaml.Unmarshal(data, cfg); err != nil {
		cfg = Default()
		if jerr := json.Unmarshal(data, cfg); jerr != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", jerr)
		}
	}
	cfg.Risk = cfg.Risk.WithDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// SaveToFile saves configuration to a file (YAML or JSON based on extension)
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

var validate = newValidate()

func newValidate() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("duration", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		if s == "" {
			return true
		}
		d, err := time.ParseDuration(s)
		return err == nil && d > 0
	})
	return v
}

// Validate checks if the configuration is valid. Every violated field is
// reported, keyed by its YAML path.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		field := fe.Namespace()
		if i := strings.IndexByte(field, '.'); i >= 0 {
			field = field[i+1:]
		}
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		msgs = append(msgs, fmt.Sprintf("%s: failed %s", field, rule))
	}
	return errors.New(strings.Join(msgs, "; "))
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Risk: risk.DefaultConfig(),
		Download: DownloadConfig{
			Timeout:      download.DefaultTimeout.String(),
			AllowedHosts: append([]string(nil), download.DefaultAllowedHosts...),
		},
		Journal: JournalConfig{
			Type: "none",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
