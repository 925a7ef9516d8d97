// Package config loads relay settings from a TOML file, DEVMEET_* environment
// variables and command line overrides, in increasing order of priority.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pion/webrtc/v4"
)

const envPrefix = "DEVMEET_"

const (
	DefaultListenAddr      = ":5000"
	DefaultStaticDir       = "./static"
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "console"
	DefaultShutdownTimeout = 5 * time.Second
	DefaultSTUN            = "stun:stun.l.google.com:19302"
)

type Config struct {
	ListenAddr      string        `toml:"listen_addr"`
	StaticDir       string        `toml:"static_dir"`
	AllowedOrigins  []string      `toml:"allowed_origins"`
	LogLevel        string        `toml:"log_level"`
	LogFormat       string        `toml:"log_format"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout"`

	WebSocket WebSocket `toml:"websocket"`
	ICE       ICE       `toml:"ice"`

	// Parsed from ICE by Load.
	ICEServers []webrtc.ICEServer `toml:"-"`
}

type WebSocket struct {
	ReadLimit  int64         `toml:"read_limit"`
	WriteWait  time.Duration `toml:"write_wait"`
	PongWait   time.Duration `toml:"pong_wait"`
	SendBuffer int           `toml:"send_buffer"`
	// Inbound frames per second allowed per connection; 0 disables limiting.
	MessagesPerSecond float64 `toml:"messages_per_second"`
	Burst             int     `toml:"burst"`
}

type ICE struct {
	STUNURLs       []string `toml:"stun_urls"`
	TURNURLs       []string `toml:"turn_urls"`
	TURNUsername   string   `toml:"turn_username"`
	TURNCredential string   `toml:"turn_credential"`
}

// Overrides carries command line flags. Zero values mean "not set".
type Overrides struct {
	ListenAddr     string
	StaticDir      string
	AllowedOrigins []string
	LogLevel       string
	LogFormat      string
}

func Default() Config {
	return Config{
		ListenAddr:      DefaultListenAddr,
		StaticDir:       DefaultStaticDir,
		AllowedOrigins:  []string{"*"},
		LogLevel:        DefaultLogLevel,
		LogFormat:       DefaultLogFormat,
		ShutdownTimeout: DefaultShutdownTimeout,
		WebSocket: WebSocket{
			ReadLimit:         64 * 1024,
			WriteWait:         10 * time.Second,
			PongWait:          60 * time.Second,
			SendBuffer:        256,
			MessagesPerSecond: 50,
			Burst:             100,
		},
		ICE: ICE{
			STUNURLs: []string{DefaultSTUN},
		},
	}
}

// Load builds the effective configuration. path may be empty.
func Load(path string, o Overrides) (*Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	applyOverrides(&cfg, o)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	servers, err := cfg.ICE.Servers()
	if err != nil {
		return nil, err
	}
	cfg.ICEServers = servers
	return &cfg, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	var errs []error

	str := func(key string, dst *string) {
		if v, ok := lookup(envPrefix + key); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	list := func(key string, dst *[]string) {
		if v, ok := lookup(envPrefix + key); ok {
			*dst = splitList(v)
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(envPrefix + key); ok {
			d, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
				return
			}
			*dst = d
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(envPrefix + key); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
				return
			}
			*dst = n
		}
	}

	str("LISTEN_ADDR", &cfg.ListenAddr)
	str("STATIC_DIR", &cfg.StaticDir)
	list("ALLOWED_ORIGINS", &cfg.AllowedOrigins)
	str("LOG_LEVEL", &cfg.LogLevel)
	str("LOG_FORMAT", &cfg.LogFormat)
	dur("SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout)

	if v, ok := lookup(envPrefix + "WS_READ_LIMIT"); ok {
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sWS_READ_LIMIT: %w", envPrefix, err))
		} else {
			cfg.WebSocket.ReadLimit = n
		}
	}
	dur("WS_WRITE_WAIT", &cfg.WebSocket.WriteWait)
	dur("WS_PONG_WAIT", &cfg.WebSocket.PongWait)
	integer("WS_SEND_BUFFER", &cfg.WebSocket.SendBuffer)
	if v, ok := lookup(envPrefix + "WS_MESSAGES_PER_SECOND"); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sWS_MESSAGES_PER_SECOND: %w", envPrefix, err))
		} else {
			cfg.WebSocket.MessagesPerSecond = f
		}
	}
	integer("WS_BURST", &cfg.WebSocket.Burst)

	list("STUN_URLS", &cfg.ICE.STUNURLs)
	list("TURN_URLS", &cfg.ICE.TURNURLs)
	str("TURN_USERNAME", &cfg.ICE.TURNUsername)
	str("TURN_CREDENTIAL", &cfg.ICE.TURNCredential)

	return errors.Join(errs...)
}

func applyOverrides(cfg *Config, o Overrides) {
	if o.ListenAddr != "" {
		cfg.ListenAddr = o.ListenAddr
	}
	if o.StaticDir != "" {
		cfg.StaticDir = o.StaticDir
	}
	if len(o.AllowedOrigins) > 0 {
		cfg.AllowedOrigins = o.AllowedOrigins
	}
	if o.LogLevel != "" {
		cfg.LogLevel = o.LogLevel
	}
	if o.LogFormat != "" {
		cfg.LogFormat = o.LogFormat
	}
}

func (c *Config) Validate() error {
	var errs []error

	if c.ListenAddr == "" {
		errs = append(errs, errors.New("listen_addr is required"))
	}
	switch strings.ToLower(c.LogLevel) {
	case "trace", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log_level %q: want trace, debug, info, warn or error", c.LogLevel))
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("log_format %q: want console or json", c.LogFormat))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("shutdown_timeout must be positive"))
	}

	ws := c.WebSocket
	if ws.ReadLimit <= 0 {
		errs = append(errs, errors.New("websocket.read_limit must be positive"))
	}
	if ws.WriteWait <= 0 || ws.PongWait <= 0 {
		errs = append(errs, errors.New("websocket.write_wait and websocket.pong_wait must be positive"))
	}
	if ws.SendBuffer <= 0 {
		errs = append(errs, errors.New("websocket.send_buffer must be positive"))
	}
	if ws.MessagesPerSecond < 0 {
		errs = append(errs, errors.New("websocket.messages_per_second cannot be negative"))
	}
	if ws.MessagesPerSecond > 0 && ws.Burst <= 0 {
		errs = append(errs, errors.New("websocket.burst must be positive when rate limiting is on"))
	}

	return errors.Join(errs...)
}

// AllowsAnyOrigin reports whether the origin list contains "*".
func (c *Config) AllowsAnyOrigin() bool {
	for _, o := range c.AllowedOrigins {
		if o == "*" {
			return true
		}
	}
	return false
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
