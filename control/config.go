// control/config.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// YAML configuration and a thread-safe store with hot-reload propagation.

package control

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"os"
	"sync"

	"github.com/momentics/hioload-sockets/api"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

// LogConfig selects the zap logger flavour.
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
	Encoding    string `yaml:"encoding"`
}

// RunloopConfig tunes the event loop.
type RunloopConfig struct {
	// Backend forces a reactor backend by name. Empty picks the platform default.
	Backend string `yaml:"backend"`
	// BatchSize is the maximum number of events taken per poll cycle.
	BatchSize int `yaml:"batch_size"`
	// CPU pins the loop thread to one logical CPU when set.
	CPU *int `yaml:"cpu"`
}

// DNSConfig describes the UDP responder.
type DNSConfig struct {
	Listen string `yaml:"listen"`
	TTL    uint32 `yaml:"ttl"`
	// Records maps an owner name to its addresses. IPv4 values produce A
	// records, IPv6 values AAAA.
	Records map[string][]string `yaml:"records"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

// Config is the root configuration document.
type Config struct {
	Log     LogConfig     `yaml:"log"`
	Runloop RunloopConfig `yaml:"runloop"`
	DNS     DNSConfig     `yaml:"dns"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Level:    "info",
			Encoding: "console",
		},
		Runloop: RunloopConfig{
			BatchSize: 128,
		},
		DNS: DNSConfig{
			Listen:  "127.0.0.1:5353",
			TTL:     60,
			Records: map[string][]string{},
		},
	}
}

// ParseConfig decodes a YAML document over the defaults and validates it.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, api.NewError(api.ErrCodeInvalidArgument, "decode config").Wrap(err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfig reads and parses the file at path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, api.SystemError("read config", err).WithContext("path", path)
	}
	return ParseConfig(data)
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var err error
	if c.Runloop.BatchSize <= 0 {
		err = multierr.Append(err, fmt.Errorf("runloop.batch_size must be positive, got %d", c.Runloop.BatchSize))
	}
	if c.Runloop.CPU != nil && *c.Runloop.CPU < 0 {
		err = multierr.Append(err, fmt.Errorf("runloop.cpu must not be negative, got %d", *c.Runloop.CPU))
	}
	switch c.Log.Encoding {
	case "", "console", "json":
	default:
		err = multierr.Append(err, fmt.Errorf("log.encoding %q is not console or json", c.Log.Encoding))
	}
	if _, perr := netip.ParseAddrPort(c.DNS.Listen); perr != nil {
		err = multierr.Append(err, fmt.Errorf("dns.listen: %w", perr))
	}
	for name, addrs := range c.DNS.Records {
		if name == "" {
			err = multierr.Append(err, fmt.Errorf("dns.records: empty owner name"))
		}
		for _, a := range addrs {
			if _, perr := netip.ParseAddr(a); perr != nil {
				err = multierr.Append(err, fmt.Errorf("dns.records[%s]: %w", name, perr))
			}
		}
	}
	if err != nil {
		return api.NewError(api.ErrCodeInvalidArgument, "invalid config").Wrap(err)
	}
	return nil
}

// ConfigStore holds the active configuration and notifies listeners on change.
type ConfigStore struct {
	mu        sync.RWMutex
	config    *Config
	listeners []func(*Config)
}

// NewConfigStore initializes a store with cfg, or the defaults when cfg is nil.
func NewConfigStore(cfg *Config) *ConfigStore {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &ConfigStore{config: cfg}
}

// Get returns the current configuration. Callers must not mutate it.
func (cs *ConfigStore) Get() *Config {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.config
}

// Set replaces the configuration and dispatches reload listeners.
func (cs *ConfigStore) Set(cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	cs.mu.Lock()
	cs.config = cfg
	listeners := append([]func(*Config){}, cs.listeners...)
	cs.mu.Unlock()
	for _, fn := range listeners {
		go fn(cfg)
	}
	return nil
}

// Reload re-reads path and installs the result.
func (cs *ConfigStore) Reload(path string) error {
	cfg, err := LoadConfig(path)
	if err != nil {
		return err
	}
	return cs.Set(cfg)
}

// OnReload registers a listener hook called on config changes.
func (cs *ConfigStore) OnReload(fn func(*Config)) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.listeners = append(cs.listeners, fn)
}
