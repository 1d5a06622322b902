package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// Keys consumed by the runtime.
const (
	KeyParser   = "parser"
	KeyManager  = "manager"
	KeyLauncher = "launcher"
	KeyLogLevel = "log.level"
	KeyTick     = "tick"
)

const DefaultPath = "config"

var (
	ErrMissingKey   = errors.New("config: key is missing")
	ErrInvalidValue = errors.New("config: invalid value")
)

// Config is a newline-delimited "key: value" document. Repeated keys
// accumulate their values joined by a newline.
type Config struct {
	path string
	data map[string]string
}

// Load reads the configuration file at path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	defer f.Close()

	cfg, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.path = path
	return cfg, nil
}

// Parse reads a configuration document from r.
func Parse(r io.Reader) (*Config, error) {
	cfg := New()
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, found := strings.Cut(line, ":")
		key = strings.TrimSpace(key)
		if found {
			value = strings.TrimSpace(value)
		}
		cfg.Add(key, value)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// New returns an empty configuration.
func New() *Config {
	return &Config{data: make(map[string]string)}
}

// FromMap builds a configuration from explicit key/value pairs.
func FromMap(values map[string]string) *Config {
	cfg := New()
	for k, v := range values {
		cfg.data[k] = v
	}
	return cfg
}

// Add appends value under key, joining with any existing value by a newline.
func (c *Config) Add(key, value string) {
	if existing, ok := c.data[key]; ok {
		value = existing + "\n" + value
	}
	c.data[key] = value
}

// Path returns the file the configuration was loaded from, if any.
func (c *Config) Path() string {
	return c.path
}

func (c *Config) Has(key string) bool {
	_, ok := c.data[key]
	return ok
}

func (c *Config) Get(key, defaultValue string) string {
	if v, ok := c.data[key]; ok {
		return v
	}
	return defaultValue
}

func (c *Config) Require(key string) (string, error) {
	v, ok := c.data[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrMissingKey, key)
	}
	return v, nil
}

// Fields splits a required key's value on whitespace.
func (c *Config) Fields(key string) ([]string, error) {
	v, err := c.Require(key)
	if err != nil {
		return nil, err
	}
	return strings.Fields(v), nil
}

func (c *Config) Bool(key string, defaultValue bool) (bool, error) {
	v, ok := c.data[key]
	if !ok {
		return defaultValue, nil
	}
	switch strings.ToLower(v) {
	case "true":
		return true, nil
	case "false":
		return false, nil
	default:
		return false, fmt.Errorf("%w: %s isn't a boolean", ErrInvalidValue, key)
	}
}

func (c *Config) Int(key string, defaultValue int) (int, error) {
	v, ok := c.data[key]
	if !ok {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s isn't an int", ErrInvalidValue, key)
	}
	return n, nil
}

func (c *Config) Float(key string, defaultValue float64) (float64, error) {
	v, ok := c.data[key]
	if !ok {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s isn't a float", ErrInvalidValue, key)
	}
	return f, nil
}

func (c *Config) Duration(key string, defaultValue time.Duration) (time.Duration, error) {
	v, ok := c.data[key]
	if !ok {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s isn't a duration", ErrInvalidValue, key)
	}
	return d, nil
}
