// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	Browser  BrowserConfig  `mapstructure:"browser" yaml:"browser"`
	Network  NetworkConfig  `mapstructure:"network" yaml:"network"`
	DevTools DevToolsConfig `mapstructure:"devtools" yaml:"devtools"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// WindowRect describes the desired browser window geometry. A zero value
// leaves the browser's own default untouched.
type WindowRect struct {
	X      int `mapstructure:"x" yaml:"x"`
	Y      int `mapstructure:"y" yaml:"y"`
	Width  int `mapstructure:"width" yaml:"width"`
	Height int `mapstructure:"height" yaml:"height"`
}

// IsZero reports whether no geometry was requested.
func (r WindowRect) IsZero() bool {
	return r.X == 0 && r.Y == 0 && r.Width == 0 && r.Height == 0
}

// BrowserConfig holds settings for the browser instance being driven.
type BrowserConfig struct {
	// Kind selects which installed browser to discover ("chrome", "edge",
	// "yandex", "firefox", "chromium", "brave"). Empty means the platform
	// default.
	Kind string `mapstructure:"kind" yaml:"kind"`
	// Binary overrides discovery with an explicit executable path.
	Binary         string     `mapstructure:"binary" yaml:"binary"`
	Headless       bool       `mapstructure:"headless" yaml:"headless"`
	MuteAudio      bool       `mapstructure:"mute_audio" yaml:"mute_audio"`
	HideAutomation bool       `mapstructure:"hide_automation" yaml:"hide_automation"`
	ProfileDir     string     `mapstructure:"profile_dir" yaml:"profile_dir"`
	DebuggingPort  int        `mapstructure:"debugging_port" yaml:"debugging_port"`
	// Proxy is a single proxy address, or several from which one is picked
	// at random on each launch.
	Proxy      []string   `mapstructure:"proxy" yaml:"proxy"`
	UserAgent  string     `mapstructure:"user_agent" yaml:"user_agent"`
	WindowRect WindowRect `mapstructure:"window_rect" yaml:"window_rect"`
	StartPage  string     `mapstructure:"start_page" yaml:"start_page"`
	ExtraArgs  []string   `mapstructure:"extra_args" yaml:"extra_args"`
}

// NetworkConfig tunes timeouts around driver startup and navigation.
type NetworkConfig struct {
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	ReadyTimeout      time.Duration `mapstructure:"ready_timeout" yaml:"ready_timeout"`
	ReadyPollInterval time.Duration `mapstructure:"ready_poll_interval" yaml:"ready_poll_interval"`
}

// HeaderRuleConfig mirrors devtools.HeaderRule for file-based configuration.
type HeaderRuleConfig struct {
	Value       string `mapstructure:"value" yaml:"value"`
	Instruction string `mapstructure:"instruction" yaml:"instruction"`
}

// DevToolsConfig configures the network interception listener.
type DevToolsConfig struct {
	Enabled     bool                        `mapstructure:"enabled" yaml:"enabled"`
	URLPatterns []string                    `mapstructure:"url_patterns" yaml:"url_patterns"`
	HeaderRules map[string]HeaderRuleConfig `mapstructure:"header_rules" yaml:"header_rules"`
	BufferSize  int                         `mapstructure:"buffer_size" yaml:"buffer_size"`
}

var knownKinds = map[string]bool{
	"":         true,
	"chrome":   true,
	"chromium": true,
	"edge":     true,
	"yandex":   true,
	"brave":    true,
	"firefox":  true,
}

var knownInstructions = map[string]bool{
	"set":       true,
	"set_exist": true,
	"remove":    true,
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "chauffeur")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.kind", "")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.mute_audio", true)
	v.SetDefault("browser.hide_automation", false)
	v.SetDefault("browser.start_page", "about:blank")

	// -- Network --
	v.SetDefault("network.navigation_timeout", "90s")
	v.SetDefault("network.ready_timeout", "30s")
	v.SetDefault("network.ready_poll_interval", "200ms")

	// -- DevTools --
	v.SetDefault("devtools.enabled", false)
	v.SetDefault("devtools.url_patterns", []string{"*"})
	v.SetDefault("devtools.buffer_size", 256)
}

// NewDefaultConfig creates a configuration populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Cannot happen with the defaults above.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// NewConfigFromViper creates a validated configuration from a viper instance.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for sane values.
func (c *Config) Validate() error {
	if !knownKinds[strings.ToLower(c.Browser.Kind)] {
		return fmt.Errorf("browser.kind %q is not a supported browser", c.Browser.Kind)
	}
	if p := c.Browser.DebuggingPort; p < 0 || p > 65535 {
		return fmt.Errorf("browser.debugging_port must be in [0, 65535], got %d", p)
	}
	if r := c.Browser.WindowRect; r.Width < 0 || r.Height < 0 {
		return fmt.Errorf("browser.window_rect dimensions must be non-negative")
	}
	if c.Network.ReadyTimeout <= 0 {
		return fmt.Errorf("network.ready_timeout must be a positive duration")
	}
	if c.Network.ReadyPollInterval <= 0 {
		return fmt.Errorf("network.ready_poll_interval must be a positive duration")
	}
	if err := c.DevTools.Validate(); err != nil {
		return fmt.Errorf("devtools configuration invalid: %w", err)
	}
	return nil
}

// Validate checks the DevTools section. Header rules are checked even when
// the section is disabled: a malformed rule is a config error either way.
func (d *DevToolsConfig) Validate() error {
	for name, rule := range d.HeaderRules {
		if !knownInstructions[rule.Instruction] {
			return fmt.Errorf("header_rules[%q].instruction %q must be one of set, set_exist, remove", name, rule.Instruction)
		}
	}
	if !d.Enabled {
		return nil
	}
	if d.BufferSize <= 0 {
		return fmt.Errorf("buffer_size must be greater than 0")
	}
	return nil
}
