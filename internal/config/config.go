package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Bridge          BridgeConfig   `yaml:"bridge"`
	MQTT            MQTTConfig     `yaml:"mqtt"`
	Rules           []RuleConfig   `yaml:"rules"`
	Database        DatabaseConfig `yaml:"database"`
	Ledger          LedgerConfig   `yaml:"ledger"`
	Log             LogConfig      `yaml:"log"`
	EventBus        EventBusConfig `yaml:"eventbus"`
	ShutdownTimeout Duration       `yaml:"shutdown_timeout"` // General shutdown timeout for graceful stops
}

// BridgeConfig contains Hue bridge connection settings
type BridgeConfig struct {
	IP             string   `yaml:"ip"`              // Bridge IPv4 address, dotted quad
	ID             string   `yaml:"id"`              // 16 hex digit bridge identifier
	ApplicationKey string   `yaml:"application_key"` // 40 character CLIP v2 application key
	RetryAttempts  int      `yaml:"retry_attempts"`  // Extra attempts after the first (default: 2)
	RequestTimeout Duration `yaml:"request_timeout"` // Per-attempt HTTP timeout (default: 5s)
	CACertPath     string   `yaml:"ca_cert"`         // Optional PEM file to pin the bridge certificate
}

// MQTTConfig contains presence broker settings
type MQTTConfig struct {
	Broker         string   `yaml:"broker"`
	ClientID       string   `yaml:"client_id"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	PresenceTopic  string   `yaml:"presence_topic"`
	ConnectTimeout Duration `yaml:"connect_timeout"`
}

// RuleConfig maps a presence transition to a Hue command.
type RuleConfig struct {
	Subject  string `yaml:"subject"`  // Presence subject the rule reacts to
	On       string `yaml:"on"`       // "arrive" or "depart"
	Resource string `yaml:"resource"` // light | grouped_light | smart_scene
	ID       string `yaml:"id"`       // CLIP v2 resource id

	// Light and grouped light fields. Nil power means leave the default (on).
	Power      *bool `yaml:"power"`
	Brightness *int  `yaml:"brightness"` // percent, set action
	ColorTemp  *int  `yaml:"color_temp"` // mirek, set action

	// Smart scene field
	Deactivate bool `yaml:"deactivate"`
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LedgerConfig contains dispatch ledger settings
type LedgerConfig struct {
	CleanupInterval Duration `yaml:"cleanup_interval"`
	RetentionDays   int      `yaml:"retention_days"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level   string `yaml:"level"`
	UseJSON bool   `yaml:"json"`
	Colors  bool   `yaml:"colors"`
}

// GetLevel returns the log level with default
func (c *LogConfig) GetLevel() string {
	if c.Level == "" {
		return "info"
	}
	return c.Level
}

// EventBusConfig contains event bus settings
type EventBusConfig struct {
	Workers   int `yaml:"workers"`    // Number of worker goroutines (default: 4)
	QueueSize int `yaml:"queue_size"` // Event queue size (default: 100)
}

// GetWorkers returns worker count with default
func (c *EventBusConfig) GetWorkers() int {
	if c.Workers <= 0 {
		return 4
	}
	return c.Workers
}

// GetQueueSize returns queue size with default
func (c *EventBusConfig) GetQueueSize() int {
	if c.QueueSize <= 0 {
		return 100
	}
	return c.QueueSize
}

// Duration is a wrapper around time.Duration for YAML unmarshalling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	// Set defaults
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "./huepresenced.sqlite"
	}

	// Bridge defaults
	if cfg.Bridge.RetryAttempts == 0 {
		cfg.Bridge.RetryAttempts = 2
	}
	if cfg.Bridge.RequestTimeout == 0 {
		cfg.Bridge.RequestTimeout = Duration(5 * time.Second)
	}

	// MQTT defaults
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = "huepresenced"
	}
	if cfg.MQTT.PresenceTopic == "" {
		cfg.MQTT.PresenceTopic = "presence/#"
	}
	if cfg.MQTT.ConnectTimeout == 0 {
		cfg.MQTT.ConnectTimeout = Duration(10 * time.Second)
	}

	// Ledger defaults
	if cfg.Ledger.CleanupInterval == 0 {
		cfg.Ledger.CleanupInterval = Duration(24 * time.Hour)
	}
	if cfg.Ledger.RetentionDays == 0 {
		cfg.Ledger.RetentionDays = 30
	}

	// General shutdown timeout
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = Duration(5 * time.Second)
	}

	if err := validateRules(cfg.Rules); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// validateRules rejects rules the rule engine could never fire. Bridge
// credential validation happens in the session, not here.
func validateRules(rules []RuleConfig) error {
	for i, r := range rules {
		if r.Subject == "" {
			return fmt.Errorf("rule %d: subject is required", i)
		}
		switch r.On {
		case "arrive", "depart":
		default:
			return fmt.Errorf("rule %d: on must be \"arrive\" or \"depart\", got %q", i, r.On)
		}
		switch r.Resource {
		case "light", "grouped_light", "smart_scene":
		default:
			return fmt.Errorf("rule %d: unsupported resource %q", i, r.Resource)
		}
		if r.ID == "" {
			return fmt.Errorf("rule %d: id is required", i)
		}
	}
	return nil
}

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}
func expandEnvVars(input string) string {
	// Match ${VAR} or ${VAR:default}
	re := regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

	return re.ReplaceAllStringFunc(input, func(match string) string {
		parts := re.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultVal := ""
		if len(parts) >= 3 {
			defaultVal = parts[2]
		}

		if val := os.Getenv(varName); val != "" {
			return val
		}
		return defaultVal
	})
}

// ExpandEnvString expands a single string with environment variables
func ExpandEnvString(s string) string {
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		return expandEnvVars(s)
	}
	return s
}
