// Package config loads the daemon configuration from a YAML or TOML file with
// environment overrides on top.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"availsync/internal/remote"
	"availsync/internal/types"

	"github.com/goccy/go-yaml"
	toml "github.com/pelletier/go-toml/v2"
)

// Duration accepts "1500ms", "15s" and the like in both file formats.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

type Backend struct {
	URL              string        `yaml:"url" toml:"url"`
	AvailabilityPath string        `yaml:"availability_path" toml:"availability_path"`
	AuthToken        string        `yaml:"auth_token" toml:"auth_token"`
	Timeout          Duration      `yaml:"timeout" toml:"timeout"`
	Fields           remote.Fields `yaml:"fields" toml:"fields"`
}

type Toggle struct {
	Cooldown Duration `yaml:"cooldown" toml:"cooldown"`
}

type Queue struct {
	MaxRetries    int      `yaml:"max_retries" toml:"max_retries"`
	Capacity      int      `yaml:"capacity" toml:"capacity"`
	Pacing        Duration `yaml:"pacing" toml:"pacing"`
	EnqueueDelay  Duration `yaml:"enqueue_delay" toml:"enqueue_delay"`
	DeadLetterARN string   `yaml:"dead_letter_arn" toml:"dead_letter_arn"`
}

type Connectivity struct {
	Debounce      Duration `yaml:"debounce" toml:"debounce"`
	ProbeURL      string   `yaml:"probe_url" toml:"probe_url"`
	ProbeInterval Duration `yaml:"probe_interval" toml:"probe_interval"`
	BackoffMin    Duration `yaml:"backoff_min" toml:"backoff_min"`
	BackoffMax    Duration `yaml:"backoff_max" toml:"backoff_max"`
	// StartOnline seeds the observer before the first probe completes.
	StartOnline bool `yaml:"start_online" toml:"start_online"`
}

type Listen struct {
	Host string `yaml:"host" toml:"host"`
	Port int    `yaml:"port" toml:"port"`
}

type Log struct {
	Level string `yaml:"level" toml:"level"`
	JSON  bool   `yaml:"json" toml:"json"`
}

type Config struct {
	Backend      Backend      `yaml:"backend" toml:"backend"`
	Toggle       Toggle       `yaml:"toggle" toml:"toggle"`
	Queue        Queue        `yaml:"queue" toml:"queue"`
	Connectivity Connectivity `yaml:"connectivity" toml:"connectivity"`
	Listen       Listen       `yaml:"listen" toml:"listen"`
	Log          Log          `yaml:"log" toml:"log"`
}

const (
	MinTimeout = 1 * time.Second
	MaxTimeout = 60 * time.Second
)

func Default() Config {
	return Config{
		Backend: Backend{
			AvailabilityPath: remote.DefaultAvailabilityPath,
			Timeout:          Duration(remote.DefaultTimeout),
		},
		Toggle: Toggle{Cooldown: Duration(2000 * time.Millisecond)},
		Queue: Queue{
			MaxRetries:   types.DefaultMaxRetries,
			Capacity:     500,
			Pacing:       Duration(100 * time.Millisecond),
			EnqueueDelay: Duration(250 * time.Millisecond),
		},
		Connectivity: Connectivity{
			Debounce:      Duration(2000 * time.Millisecond),
			ProbeInterval: Duration(10 * time.Second),
			BackoffMin:    Duration(1 * time.Second),
			BackoffMax:    Duration(30 * time.Second),
		},
		Listen: Listen{Host: "127.0.0.1", Port: 8787},
		Log:    Log{Level: "info"},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates. An empty or missing path yields defaults plus environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if err := cfg.readFile(path); err != nil {
		return Config{}, err
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) readFile(path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return types.Err(types.ErrInvalidConfig, err, "read config")
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(raw, c)
	case ".toml":
		err = toml.Unmarshal(raw, c)
	default:
		return types.Err(types.ErrInvalidConfig, nil, "unsupported config format %q", filepath.Ext(path))
	}
	if err != nil {
		return types.Err(types.ErrInvalidConfig, err, "parse config %s", path)
	}
	return nil
}

// ApplyEnv overlays AVAIL_* variables.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv("AVAIL_BACKEND_URL"); v != "" {
		c.Backend.URL = v
	}
	if v := getenv("AVAIL_AUTH_TOKEN"); v != "" {
		c.Backend.AuthToken = v
	}
	if v := getenv("AVAIL_LISTEN_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return types.Err(types.ErrInvalidConfig, err, "AVAIL_LISTEN_PORT")
		}
		c.Listen.Port = port
	}
	if v := getenv("AVAIL_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := getenv("AVAIL_DEAD_LETTER_ARN"); v != "" {
		c.Queue.DeadLetterARN = v
	}
	return nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Backend.URL) == "" {
		return types.Err(types.ErrInvalidConfig, nil, "backend.url is required")
	}
	if t := c.Backend.Timeout.Std(); t < MinTimeout || t > MaxTimeout {
		return types.Err(types.ErrInvalidConfig, nil, "backend.timeout %s outside [%s, %s]", t, MinTimeout, MaxTimeout)
	}
	durations := map[string]Duration{
		"toggle.cooldown":             c.Toggle.Cooldown,
		"queue.pacing":                c.Queue.Pacing,
		"queue.enqueue_delay":         c.Queue.EnqueueDelay,
		"connectivity.debounce":       c.Connectivity.Debounce,
		"connectivity.probe_interval": c.Connectivity.ProbeInterval,
		"connectivity.backoff_min":    c.Connectivity.BackoffMin,
		"connectivity.backoff_max":    c.Connectivity.BackoffMax,
	}
	for name, d := range durations {
		if d < 0 {
			return types.Err(types.ErrInvalidConfig, nil, "%s must not be negative", name)
		}
	}
	if c.Queue.MaxRetries < 0 {
		return types.Err(types.ErrInvalidConfig, nil, "queue.max_retries must not be negative")
	}
	if c.Queue.Capacity < 0 {
		return types.Err(types.ErrInvalidConfig, nil, "queue.capacity must not be negative")
	}
	if c.Listen.Port < 0 || c.Listen.Port > 65535 {
		return types.Err(types.ErrInvalidConfig, nil, "listen.port %d out of range", c.Listen.Port)
	}
	return nil
}

func (c Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Listen.Host, c.Listen.Port)
}

// ProbeURL defaults to the backend base URL.
func (c Config) ProbeURL() string {
	if c.Connectivity.ProbeURL != "" {
		return c.Connectivity.ProbeURL
	}
	return c.Backend.URL
}
