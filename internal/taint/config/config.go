// Package config holds the runtime configuration for the tracer.
//
// Configuration resolves in three layers: compiled-in defaults, an
// optional yaml file, and TAINT_* environment variables, each layer
// overriding the one below. Instrumented binaries usually run unattended,
// so the environment layer is the practical knob: point TAINT_CONFIG at a
// file once, flip individual switches per run.
package config

import (
	"os"
	"strconv"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Environment variable names recognized by FromEnv and LoadFromEnv.
const (
	// EnvConfig points at a yaml config file.
	EnvConfig = "TAINT_CONFIG"

	// EnvEnabled toggles all recording.
	EnvEnabled = "TAINT_ENABLED"

	// EnvTraceAccesses toggles taint-access events in the per-thread
	// history (the last-usage maps are always maintained).
	EnvTraceAccesses = "TAINT_TRACE_ACCESSES"

	// EnvCallGraph toggles call/return edge recording.
	EnvCallGraph = "TAINT_CALL_GRAPH"

	// EnvStartFunc names the function whose first entry starts
	// recording.
	EnvStartFunc = "TAINT_START_FUNC"

	// EnvStopFunc names the function whose first entry stops recording.
	EnvStopFunc = "TAINT_STOP_FUNC"

	// EnvLogLevel sets the logger level (zerolog level names).
	EnvLogLevel = "TAINT_LOG_LEVEL"

	// EnvLogJSON switches the logger from console to JSON output.
	EnvLogJSON = "TAINT_LOG_JSON"
)

// Config is the runtime configuration. Zero value is NOT the default;
// use Default as the base for every resolution path.
type Config struct {
	// Enabled gates all recording. When false every entry point returns
	// immediately.
	Enabled bool `yaml:"enabled"`

	// TraceTaintAccesses records a taint-access event in the thread
	// history on every label touch, in addition to the last-usage maps.
	TraceTaintAccesses bool `yaml:"trace-taint-accesses"`

	// RecordCallGraph records caller → callee and return edges.
	RecordCallGraph bool `yaml:"record-call-graph"`

	// StartFunction delays recording until this function is first
	// entered. Empty means record from Init.
	StartFunction string `yaml:"start-function"`

	// StopFunction stops recording when this function is first entered.
	// Empty means record until Fini.
	StopFunction string `yaml:"stop-function"`

	// LogLevel is a zerolog level name ("debug", "info", ...). Empty
	// means "info".
	LogLevel string `yaml:"log-level"`

	// LogJSON selects JSON log output instead of the console writer.
	LogJSON bool `yaml:"log-json"`
}

// Default returns the compiled-in configuration: recording on, access
// events off, call-graph edges on, info-level console logging.
func Default() Config {
	return Config{
		Enabled:         true,
		RecordCallGraph: true,
		LogLevel:        "info",
	}
}

// Load reads and validates a yaml config file layered over Default.
func Load(path string) (Config, error) {
	cfg := Default()

	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "could not read config file")
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "could not parse config file %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, errors.Wrapf(err, "invalid config file %s", path)
	}
	return cfg, nil
}

// FromEnv returns base with TAINT_* environment overrides applied.
//
// Unset variables leave the base value untouched. Malformed boolean
// values are ignored rather than failing the run: an instrumented
// production binary must start even with a typo in its environment.
func FromEnv(base Config) Config {
	base.Enabled = envBool(EnvEnabled, base.Enabled)
	base.TraceTaintAccesses = envBool(EnvTraceAccesses, base.TraceTaintAccesses)
	base.RecordCallGraph = envBool(EnvCallGraph, base.RecordCallGraph)
	base.LogJSON = envBool(EnvLogJSON, base.LogJSON)

	if v, ok := os.LookupEnv(EnvStartFunc); ok {
		base.StartFunction = v
	}
	if v, ok := os.LookupEnv(EnvStopFunc); ok {
		base.StopFunction = v
	}
	if v, ok := os.LookupEnv(EnvLogLevel); ok {
		base.LogLevel = v
	}
	return base
}

// LoadFromEnv resolves the full three-layer configuration: defaults,
// then the TAINT_CONFIG file when set, then environment overrides.
func LoadFromEnv() (Config, error) {
	cfg := Default()

	if path, ok := os.LookupEnv(EnvConfig); ok && path != "" {
		loaded, err := Load(path)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}

	cfg = FromEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, errors.Wrap(err, "invalid environment configuration")
	}
	return cfg, nil
}

// Validate checks the configuration for contradictions.
func (c Config) Validate() error {
	if c.LogLevel != "" {
		if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
			return errors.Wrapf(err, "unknown log level %q", c.LogLevel)
		}
	}
	if c.StartFunction != "" && c.StartFunction == c.StopFunction {
		return errors.Errorf("start and stop function are both %q", c.StartFunction)
	}
	return nil
}

// Level returns the parsed logger level, defaulting to info when the
// level is empty or unparseable.
func (c Config) Level() zerolog.Level {
	if c.LogLevel == "" {
		return zerolog.InfoLevel
	}
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}

func envBool(key string, fallback bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}
