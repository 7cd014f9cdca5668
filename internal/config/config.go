package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// ErrInvalidConfig marks every configuration failure.  Callers treat it as fatal and
// abort before touching any device or store.
var ErrInvalidConfig = errors.New("invalid configuration")

// ConfigPathEnv overrides the config file search.
const ConfigPathEnv = "BIOLEDGER_CONFIG"

// DefaultConfigPaths are searched in order when no path is given.
var DefaultConfigPaths = []string{
	"bioledger.yaml",
	"/etc/bioledger/bioledger.yaml",
}

type Config struct {
	Env          string `koanf:"env" validate:"oneof=dev prod"`
	LogDirectory string `koanf:"log_directory"`

	Log        LogConfig        `koanf:"log"`
	Legacy     StoreConfig      `koanf:"legacy"`
	Primary    StoreConfig      `koanf:"primary"`
	Breaker    BreakerConfig    `koanf:"breaker"`
	Ingest     IngestConfig     `koanf:"ingest"`
	Devices    DevicesConfig    `koanf:"devices"`
	Reconciler ReconcilerConfig `koanf:"reconciler"`
	Journal    JournalConfig    `koanf:"journal"`
	Metrics    MetricsConfig    `koanf:"metrics"`
	Serve      ServeConfig      `koanf:"serve"`

	// File is the config file that was loaded, empty when none was found.
	File string `koanf:"-"`
}

type LogConfig struct {
	Level  string `koanf:"level" validate:"omitempty,oneof=trace debug info warn warning error off"`
	Format string `koanf:"format" validate:"omitempty,oneof=console json"`
}

type StoreConfig struct {
	Path string `koanf:"path" validate:"required"`
}

type BreakerConfig struct {
	FailureThreshold uint32        `koanf:"failure_threshold" validate:"gte=1"`
	OpenTimeout      time.Duration `koanf:"open_timeout" validate:"gt=0"`
}

type IngestConfig struct {
	// EarliestYear drops events stamped before it.
	EarliestYear int `koanf:"earliest_year" validate:"gte=1970,lte=9999"`
}

type DevicesConfig struct {
	File    string `koanf:"file" validate:"required"`
	Driver  string `koanf:"driver" validate:"oneof=simulated"`
	Fixture string `koanf:"fixture" validate:"required_if=Driver simulated"`
}

type ReconcilerConfig struct {
	Isolated bool   `koanf:"isolated"`
	Binary   string `koanf:"binary" validate:"required_if=Isolated true"`
}

type JournalConfig struct {
	// Path is the badger directory.  Empty disables the journal.
	Path string `koanf:"path"`
	Keep int    `koanf:"keep" validate:"gte=0"`
}

type MetricsConfig struct {
	Textfile string `koanf:"textfile"`
}

type ServeConfig struct {
	Interval time.Duration `koanf:"interval" validate:"gt=0"`
	Addr     string        `koanf:"addr" validate:"required"`
}

func Defaults() Config {
	return Config{
		Env:          "dev",
		LogDirectory: "./logs",
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Legacy:  StoreConfig{Path: "./data/legacy.duckdb"},
		Primary: StoreConfig{Path: "./data/primary.db"},
		Breaker: BreakerConfig{
			FailureThreshold: 3,
			OpenTimeout:      5 * time.Minute,
		},
		Ingest: IngestConfig{EarliestYear: 2023},
		Devices: DevicesConfig{
			File:   "./devices.yaml",
			Driver: "simulated",
		},
		Reconciler: ReconcilerConfig{Binary: "bioledger-reconciler"},
		Journal: JournalConfig{
			Path: "./data/journal",
			Keep: 500,
		},
		Serve: ServeConfig{
			Interval: 15 * time.Minute,
			Addr:     "127.0.0.1:9310",
		},
	}
}

// Load builds the configuration from defaults, then the YAML file, then BIOLEDGER_*
// environment variables.  A .env file in the working directory is loaded into the
// environment first.  The result is validated.
func Load(path string) (*Config, error) {
	// Missing .env is normal.
	_ = godotenv.Load()

	k := koanf.New(".")

	defaults := Defaults()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("%w: load defaults: %v", ErrInvalidConfig, err)
	}

	explicit := path != "" || os.Getenv(ConfigPathEnv) != ""
	configPath := findConfigFile(path)
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: load %s: %v", ErrInvalidConfig, configPath, err)
		}
	} else if explicit {
		return nil, fmt.Errorf("%w: config file not found", ErrInvalidConfig)
	}

	if err := k.Load(env.Provider("BIOLEDGER_", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("%w: load environment: %v", ErrInvalidConfig, err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("%w: unmarshal: %v", ErrInvalidConfig, err)
	}
	cfg.File = configPath
	cfg.Env = strings.ToLower(strings.TrimSpace(cfg.Env))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func findConfigFile(path string) string {
	if path == "" {
		path = os.Getenv(ConfigPathEnv)
	}
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return path
		}
		return ""
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// envTransformFunc maps BIOLEDGER_* variables onto koanf keys.  Unmapped variables
// are ignored.
func envTransformFunc(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, "BIOLEDGER_"))

	envMappings := map[string]string{
		"env":           "env",
		"log_level":     "log.level",
		"log_format":    "log.format",
		"log_directory": "log_directory",

		"legacy_path":  "legacy.path",
		"primary_path": "primary.path",

		"breaker_failure_threshold": "breaker.failure_threshold",
		"breaker_open_timeout":      "breaker.open_timeout",

		"ingest_earliest_year": "ingest.earliest_year",

		"devices_file":    "devices.file",
		"devices_driver":  "devices.driver",
		"devices_fixture": "devices.fixture",

		"reconciler_isolated": "reconciler.isolated",
		"reconciler_binary":   "reconciler.binary",

		"journal_path": "journal.path",
		"journal_keep": "journal.keep",

		"metrics_textfile": "metrics.textfile",

		"serve_interval": "serve.interval",
		"serve_addr":     "serve.addr",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}
	return ""
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field rules and the files a run depends on.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if err := fileExists(c.Devices.File); err != nil {
		return fmt.Errorf("%w: device table: %v", ErrInvalidConfig, err)
	}
	if c.Devices.Driver == "simulated" {
		if err := fileExists(c.Devices.Fixture); err != nil {
			return fmt.Errorf("%w: device fixture: %v", ErrInvalidConfig, err)
		}
	}
	// dev creates the legacy store on first open; prod must find the existing one.
	if c.Env == "prod" {
		if err := fileExists(c.Legacy.Path); err != nil {
			return fmt.Errorf("%w: legacy store: %v", ErrInvalidConfig, err)
		}
	}
	return nil
}

func fileExists(path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		return err
	}
	if fi.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	return nil
}
