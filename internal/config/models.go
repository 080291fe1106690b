package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bryanchriswhite/InfinitePIP/internal/logger"
	"gopkg.in/yaml.v3"
)

// DefaultRemoteAddress is the loopback listener used by the remote trigger.
const DefaultRemoteAddress = "127.0.0.1:38474"

// ErrUnknownKey is returned by Set/Lookup for keys the config does not carry.
var ErrUnknownKey = errors.New("unknown config key")

// Config is the on-disk configuration
type Config struct {
	ServerPort    int    `json:"server_port" yaml:"server_port"`
	ServerEnabled bool   `json:"server_enabled" yaml:"server_enabled"`
	LogLevel      string `json:"log_level" yaml:"log_level"`
	LogPretty     bool   `json:"log_pretty" yaml:"log_pretty"`
	Notifications bool   `json:"notifications" yaml:"notifications"`

	Capture CaptureConfig `json:"capture" yaml:"capture"`
	Overlay OverlayConfig `json:"overlay" yaml:"overlay"`
	Remote  RemoteConfig  `json:"remote" yaml:"remote"`
	MJPEG   MJPEGConfig   `json:"mjpeg" yaml:"mjpeg"`
}

// CaptureConfig controls capture loop pacing
type CaptureConfig struct {
	IntervalMS int `json:"interval_ms" yaml:"interval_ms"`
	BackoffMS  int `json:"backoff_ms" yaml:"backoff_ms"`
}

// Interval returns the capture pacing as a duration.
func (c CaptureConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMS) * time.Millisecond
}

// Backoff returns the pause after a failed iteration.
func (c CaptureConfig) Backoff() time.Duration {
	return time.Duration(c.BackoffMS) * time.Millisecond
}

// OverlayConfig holds the initial per-session overlay settings
type OverlayConfig struct {
	Enabled             bool    `json:"enabled" yaml:"enabled"`
	Opacity             float64 `json:"opacity" yaml:"opacity"`
	Topmost             bool    `json:"topmost" yaml:"topmost"`
	MaintainAspectRatio bool    `json:"maintain_aspect_ratio" yaml:"maintain_aspect_ratio"`
	AutoResize          bool    `json:"auto_resize_on_source_change" yaml:"auto_resize_on_source_change"`
}

// RemoteConfig configures the loopback remote trigger
type RemoteConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Address string `json:"address" yaml:"address"`
}

// MJPEGConfig configures the per-session MJPEG mirror
type MJPEGConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
	Quality int  `json:"quality" yaml:"quality"`
}

// Manager handles configuration
type Manager struct {
	configPath string
	config     *Config
	mu         sync.RWMutex
}

// DefaultPath returns $HOME/.config/infinitepip/config.yaml
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "infinitepip", "config.yaml"), nil
}

// NewManager creates a new configuration manager
func NewManager(configFile string) (*Manager, error) {
	actualConfigPath := configFile
	if actualConfigPath == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		actualConfigPath = p
	}

	if err := os.MkdirAll(filepath.Dir(actualConfigPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	m := &Manager{
		configPath: actualConfigPath,
	}

	if err := m.load(); err != nil {
		if os.IsNotExist(err) {
			logger.WithComponent("config").Info().
				Str("path", m.configPath).
				Msg("Config file not found, creating new config")
			m.config = Defaults()
			if err := m.Save(); err != nil {
				return nil, fmt.Errorf("failed to create default config: %w", err)
			}
		} else {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	logger.WithComponent("config").Info().
		Str("path", m.configPath).
		Int("interval_ms", m.config.Capture.IntervalMS).
		Msg("Config loaded")

	return m, nil
}

// Defaults returns the built-in configuration
func Defaults() *Config {
	return &Config{
		ServerPort:    8080,
		ServerEnabled: true,
		LogLevel:      "info",
		LogPretty:     true,
		Notifications: true,
		Capture: CaptureConfig{
			IntervalMS: 33,
			BackoffMS:  100,
		},
		Overlay: OverlayConfig{
			Enabled:             true,
			Opacity:             1.0,
			Topmost:             true,
			MaintainAspectRatio: true,
			AutoResize:          true,
		},
		Remote: RemoteConfig{
			Enabled: true,
			Address: DefaultRemoteAddress,
		},
		MJPEG: MJPEGConfig{
			Enabled: true,
			Quality: 90,
		},
	}
}

func (m *Manager) load() error {
	data, err := os.ReadFile(m.configPath)
	if err != nil {
		return err
	}

	// Missing keys keep their defaults
	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.normalize()

	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
	return nil
}

// normalize repairs values that would break the capture loop or overlay.
func (c *Config) normalize() {
	d := Defaults()
	if c.Capture.IntervalMS <= 0 {
		c.Capture.IntervalMS = d.Capture.IntervalMS
	}
	if c.Capture.BackoffMS <= 0 {
		c.Capture.BackoffMS = d.Capture.BackoffMS
	}
	if c.Overlay.Opacity < 0.1 {
		c.Overlay.Opacity = 0.1
	}
	if c.Overlay.Opacity > 1.0 {
		c.Overlay.Opacity = 1.0
	}
	if c.MJPEG.Quality <= 0 || c.MJPEG.Quality > 100 {
		c.MJPEG.Quality = d.MJPEG.Quality
	}
	if c.Remote.Address == "" {
		c.Remote.Address = d.Remote.Address
	}
}

// Get returns a copy of the current configuration
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.config == nil {
		return Defaults()
	}

	cfg := *m.config
	return &cfg
}

// Save writes the configuration to disk
func (m *Manager) Save() error {
	m.mu.RLock()
	cfg := m.config
	m.mu.RUnlock()

	if cfg == nil {
		cfg = Defaults()
	}

	logger.WithComponent("config").Debug().
		Str("path", m.configPath).
		Msg("Saving config")

	configDir := filepath.Dir(m.configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0644); err != nil {
		logger.WithComponent("config").Error().
			Err(err).
			Str("path", m.configPath).
			Msg("Failed to write config")
		return err
	}

	logger.WithComponent("config").Info().
		Str("path", m.configPath).
		Msg("Config saved successfully")
	return nil
}

// GetConfigPath returns the path to the config file
func (m *Manager) GetConfigPath() string {
	return m.configPath
}

type field struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

func boolField(p func(c *Config) *bool) field {
	return field{
		get: func(c *Config) string { return strconv.FormatBool(*p(c)) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return err
			}
			*p(c) = b
			return nil
		},
	}
}

func intField(p func(c *Config) *int) field {
	return field{
		get: func(c *Config) string { return strconv.Itoa(*p(c)) },
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return err
			}
			*p(c) = n
			return nil
		},
	}
}

func stringField(p func(c *Config) *string) field {
	return field{
		get: func(c *Config) string { return *p(c) },
		set: func(c *Config, v string) error {
			*p(c) = v
			return nil
		},
	}
}

var fields = map[string]field{
	"server_port":    intField(func(c *Config) *int { return &c.ServerPort }),
	"server_enabled": boolField(func(c *Config) *bool { return &c.ServerEnabled }),
	"log_level":      stringField(func(c *Config) *string { return &c.LogLevel }),
	"log_pretty":     boolField(func(c *Config) *bool { return &c.LogPretty }),
	"notifications":  boolField(func(c *Config) *bool { return &c.Notifications }),

	"capture.interval_ms": intField(func(c *Config) *int { return &c.Capture.IntervalMS }),
	"capture.backoff_ms":  intField(func(c *Config) *int { return &c.Capture.BackoffMS }),

	"overlay.enabled": boolField(func(c *Config) *bool { return &c.Overlay.Enabled }),
	"overlay.opacity": {
		get: func(c *Config) string { return strconv.FormatFloat(c.Overlay.Opacity, 'f', -1, 64) },
		set: func(c *Config, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return err
			}
			c.Overlay.Opacity = f
			return nil
		},
	},
	"overlay.topmost":                      boolField(func(c *Config) *bool { return &c.Overlay.Topmost }),
	"overlay.maintain_aspect_ratio":        boolField(func(c *Config) *bool { return &c.Overlay.MaintainAspectRatio }),
	"overlay.auto_resize_on_source_change": boolField(func(c *Config) *bool { return &c.Overlay.AutoResize }),

	"remote.enabled": boolField(func(c *Config) *bool { return &c.Remote.Enabled }),
	"remote.address": stringField(func(c *Config) *string { return &c.Remote.Address }),

	"mjpeg.enabled": boolField(func(c *Config) *bool { return &c.MJPEG.Enabled }),
	"mjpeg.quality": intField(func(c *Config) *int { return &c.MJPEG.Quality }),
}

// Keys lists every settable key in sorted order.
func Keys() []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Lookup returns the string form of a single key.
func (m *Manager) Lookup(key string) (string, error) {
	f, ok := fields[strings.ToLower(key)]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return f.get(m.config), nil
}

// Set parses value into key, normalizes the result and saves.
func (m *Manager) Set(key, value string) error {
	f, ok := fields[strings.ToLower(key)]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}

	m.mu.Lock()
	next := *m.config
	if err := f.set(&next, value); err != nil {
		m.mu.Unlock()
		return fmt.Errorf("invalid value %q for %s: %w", value, key, err)
	}
	next.normalize()
	m.config = &next
	m.mu.Unlock()

	return m.Save()
}
