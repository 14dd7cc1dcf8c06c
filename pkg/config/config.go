package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"triggergate/pkg/model"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "TRIGGERGATE_"

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds the specific configuration for the TriggerGate instance.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Redis    RedisConfig    `yaml:"redis"`
	Filter   FilterConfig   `yaml:"filter"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Log      LogConfig      `yaml:"log"`
	Outputs  []OutputConfig `yaml:"outputs"`
}

type ServerConfig struct {
	TCPPort  int `yaml:"tcp_port" env:"TCP_PORT"`
	UDPPort  int `yaml:"udp_port" env:"UDP_PORT"`
	HTTPPort int `yaml:"http_port" env:"HTTP_PORT"` // metrics
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled" env:"REDIS_ENABLED"`
	Address  string `yaml:"address" env:"REDIS_ADDRESS"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB"`
	Channel  string `yaml:"channel" env:"REDIS_CHANNEL"` // PubSub channel for menu announcements
	Prefix   string `yaml:"prefix" env:"REDIS_PREFIX"`
}

// FilterConfig is the trigger filter configuration: where the trigger
// results live and how configured trigger names are classified.
//
// The trigger lists are either given directly or taken from the profile
// matching Year and Dataset. Simulated samples (MC) always use the profile
// of dataset "MC" for their year.
type FilterConfig struct {
	TriggerResults model.InputTag `yaml:"trigger_results" env:"TRIGGER_RESULTS"`
	PassTriggers   []string       `yaml:"pass_triggers" env:"PASS_TRIGGERS"`
	VetoTriggers   []string       `yaml:"veto_triggers" env:"VETO_TRIGGERS"`
	IgnoreTriggers []string       `yaml:"ignore_triggers" env:"IGNORE_TRIGGERS"`

	Year     int              `yaml:"year" env:"YEAR"`
	Dataset  string           `yaml:"dataset" env:"DATASET"`
	MC       bool             `yaml:"mc" env:"MC"`
	Profiles []TriggerProfile `yaml:"profiles" env:"-"`
}

// MCDataset is the profile dataset used for simulated samples.
const MCDataset = "MC"

// TriggerProfile holds the trigger lists of one data-taking year and dataset.
type TriggerProfile struct {
	Year           int      `yaml:"year"`
	Dataset        string   `yaml:"dataset"`
	PassTriggers   []string `yaml:"pass_triggers"`
	VetoTriggers   []string `yaml:"veto_triggers"`
	IgnoreTriggers []string `yaml:"ignore_triggers"`
}

// Selected reports whether a profile is requested.
func (f *FilterConfig) Selected() bool {
	return f.Year != 0 || f.Dataset != "" || f.MC
}

// ProfileDataset is the dataset whose profile is used.
func (f *FilterConfig) ProfileDataset() string {
	if f.MC {
		return MCDataset
	}
	return f.Dataset
}

// Describe names the selection, e.g. "year 2016 on dataset SingleMuon (data)".
func (f *FilterConfig) Describe() string {
	kind := "data"
	if f.MC {
		kind = "MC"
	}
	return fmt.Sprintf("year %d on dataset %s (%s)", f.Year, f.Dataset, kind)
}

// resolveProfile copies the selected profile's lists over the direct ones.
func (f *FilterConfig) resolveProfile() error {
	if !f.Selected() {
		return nil
	}
	dataset := f.ProfileDataset()
	for _, p := range f.Profiles {
		if p.Year == f.Year && p.Dataset == dataset {
			f.PassTriggers = slices.Clone(p.PassTriggers)
			f.VetoTriggers = slices.Clone(p.VetoTriggers)
			f.IgnoreTriggers = slices.Clone(p.IgnoreTriggers)
			return nil
		}
	}
	return fmt.Errorf("%w: no trigger profile for year %d dataset %q", ErrInvalidConfig, f.Year, dataset)
}

type PipelineConfig struct {
	Workers       int           `yaml:"workers" env:"WORKERS"`
	BatchSize     int           `yaml:"batch_size" env:"BATCH_SIZE"`
	BufferSize    uint64        `yaml:"buffer_size" env:"BUFFER_SIZE"`
	FlushInterval time.Duration `yaml:"flush_interval" env:"FLUSH_INTERVAL"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`
	Format string `yaml:"format" env:"LOG_FORMAT"`
}

// OutputConfig selects one destination for accepted events.
type OutputConfig struct {
	Type    string            `yaml:"type"` // console, http, postgres
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers"`
	DSN     string            `yaml:"dsn"`
	Table   string            `yaml:"table"`
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			TCPPort:  8081,
			UDPPort:  8082,
			HTTPPort: 8080,
		},
		Redis: RedisConfig{
			Address: "localhost:6379",
			Channel: "triggergate_menus",
			Prefix:  "triggergate",
		},
		Filter: FilterConfig{
			TriggerResults: model.DefaultTriggerResults,
		},
		Pipeline: PipelineConfig{
			Workers:       4,
			BatchSize:     100,
			BufferSize:    65536,
			FlushInterval: 100 * time.Millisecond,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Outputs: []OutputConfig{{Type: "console"}},
	}
}

// Load reads the YAML file at path (if any) over the defaults, applies
// environment overrides, then the given overrides (command line flags),
// resolves the trigger profile and validates the result.
func Load(path string, overrides ...func(*Config)) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := cfg.decodeYAML(b); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	for _, o := range overrides {
		o(cfg)
	}
	if err := cfg.Filter.resolveProfile(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decodeYAML(b []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// applyEnv overrides scalar settings from TRIGGERGATE_* variables. Outputs and
// trigger profiles are only configurable from the file.
func (c *Config) applyEnv() error {
	for _, section := range []any{&c.Server, &c.Redis, &c.Filter, &c.Pipeline, &c.Log} {
		if err := env.ParseWithOptions(section, env.Options{Prefix: EnvPrefix}); err != nil {
			return fmt.Errorf("parse env: %w", err)
		}
	}
	return nil
}

// Validate reports every problem found, wrapped in ErrInvalidConfig.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	for _, p := range []struct {
		name string
		port int
	}{{"tcp_port", c.Server.TCPPort}, {"udp_port", c.Server.UDPPort}, {"http_port", c.Server.HTTPPort}} {
		check(p.port >= 0 && p.port <= 65535, "server.%s %d out of range", p.name, p.port)
	}

	check(c.Filter.TriggerResults.Label != "", "filter.trigger_results is required")
	for _, list := range []struct {
		name  string
		names []string
	}{{"pass_triggers", c.Filter.PassTriggers}, {"veto_triggers", c.Filter.VetoTriggers}, {"ignore_triggers", c.Filter.IgnoreTriggers}} {
		for i, n := range list.names {
			check(strings.TrimSpace(n) != "", "filter.%s[%d] is empty", list.name, i)
		}
	}

	seen := make(map[[2]string]bool, len(c.Filter.Profiles))
	for i, p := range c.Filter.Profiles {
		check(p.Dataset != "", "filter.profiles[%d]: dataset is required", i)
		key := [2]string{strconv.Itoa(p.Year), p.Dataset}
		check(!seen[key], "filter.profiles[%d]: duplicate profile for year %d dataset %q", i, p.Year, p.Dataset)
		seen[key] = true
	}

	check(c.Pipeline.Workers >= 1, "pipeline.workers must be at least 1")
	check(c.Pipeline.BatchSize >= 1, "pipeline.batch_size must be at least 1")
	size := c.Pipeline.BufferSize
	check(size != 0 && size&(size-1) == 0, "pipeline.buffer_size %d must be a power of 2", size)
	check(c.Pipeline.FlushInterval > 0, "pipeline.flush_interval must be positive")

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		check(false, "log.level %q unknown", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		check(false, "log.format %q unknown", c.Log.Format)
	}

	if c.Redis.Enabled {
		check(c.Redis.Address != "", "redis.address is required when redis is enabled")
		check(c.Redis.Channel != "", "redis.channel is required when redis is enabled")
	}

	for i, o := range c.Outputs {
		switch o.Type {
		case "console":
		case "http":
			check(o.URL != "", "outputs[%d]: http output needs a url", i)
		case "postgres":
			check(o.DSN != "", "outputs[%d]: postgres output needs a dsn", i)
		default:
			check(false, "outputs[%d]: unknown type %q", i, o.Type)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}
