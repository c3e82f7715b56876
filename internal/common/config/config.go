package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/amoylab/inboxhub/pkg/helper"
	"github.com/amoylab/inboxhub/pkg/trace"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type (
	// HubServerConfig represents the realtime hub server configuration
	HubServerConfig struct {
		Port    int           `yaml:"port" toml:"port" validate:"min=0,max=65535"`
		PID     string        `yaml:"pid" toml:"pid"`
		Logger  LoggerConfig  `yaml:"logger" toml:"logger"`
		Hub     HubConfig     `yaml:"hub" toml:"hub"`
		Bus     BusConfig     `yaml:"bus" toml:"bus"`
		Auth    AuthConfig    `yaml:"auth" toml:"auth"`
		Metrics MetricsConfig `yaml:"metrics" toml:"metrics"`
		Tracing trace.Config  `yaml:"tracing" toml:"tracing"`
		CORS    *CORSConfig   `yaml:"cors,omitempty" toml:"cors"`
	}

	// OutboxClientConfig represents the configuration of the client action outbox
	OutboxClientConfig struct {
		Logger  LoggerConfig  `yaml:"logger" toml:"logger"`
		Outbox  OutboxConfig  `yaml:"outbox" toml:"outbox"`
		Storage StorageConfig `yaml:"storage" toml:"storage"`
		Monitor MonitorConfig `yaml:"monitor" toml:"monitor"`
		Tracing trace.Config  `yaml:"tracing" toml:"tracing"`
	}

	// LoggerConfig represents the logger configuration
	LoggerConfig struct {
		Level      string `yaml:"level" toml:"level"`             // debug, info, warn, error
		Format     string `yaml:"format" toml:"format"`           // json, console
		Output     string `yaml:"output" toml:"output"`           // stdout, file
		FilePath   string `yaml:"file_path" toml:"file_path"`     // path to log file when output is file
		MaxSize    int    `yaml:"max_size" toml:"max_size"`       // max size of log file in MB
		MaxBackups int    `yaml:"max_backups" toml:"max_backups"` // max number of backup files
		MaxAge     int    `yaml:"max_age" toml:"max_age"`         // max age of backup files in days
		Compress   bool   `yaml:"compress" toml:"compress"`       // whether to compress backup files
		Color      bool   `yaml:"color" toml:"color"`             // whether to use color in console output
		Stacktrace bool   `yaml:"stacktrace" toml:"stacktrace"`   // whether to include stacktrace in error logs
		TimeZone   string `yaml:"time_zone" toml:"time_zone"`     // time zone for log timestamps, e.g., "UTC", default is local
		TimeFormat string `yaml:"time_format" toml:"time_format"` // time format for log timestamps, default is "2006-01-02 15:04:05"
	}

	// AuthConfig configures how stream and publish requests are admitted
	AuthConfig struct {
		JWT JWTConfig `yaml:"jwt" toml:"jwt"`
		// QueryParam is the query parameter carrying the token for clients
		// that cannot set headers (EventSource).
		QueryParam string `yaml:"query_param" toml:"query_param"`
		AdminRole  string `yaml:"admin_role" toml:"admin_role"`
	}

	JWTConfig struct {
		SecretKey string        `yaml:"secret_key" toml:"secret_key" validate:"required,min=32"`
		Duration  time.Duration `yaml:"duration" toml:"duration"`
	}

	// MetricsConfig represents the prometheus metrics configuration
	MetricsConfig struct {
		Enabled   bool      `yaml:"enabled" toml:"enabled"`
		Path      string    `yaml:"path" toml:"path"`
		Namespace string    `yaml:"namespace" toml:"namespace"`
		Buckets   []float64 `yaml:"buckets" toml:"buckets"`
	}

	// CORSConfig represents the CORS configuration
	CORSConfig struct {
		AllowOrigins     []string `yaml:"allowOrigins,omitempty" toml:"allowOrigins"`
		AllowMethods     []string `yaml:"allowMethods,omitempty" toml:"allowMethods"`
		AllowHeaders     []string `yaml:"allowHeaders,omitempty" toml:"allowHeaders"`
		ExposeHeaders    []string `yaml:"exposeHeaders,omitempty" toml:"exposeHeaders"`
		AllowCredentials bool     `yaml:"allowCredentials" toml:"allowCredentials"`
	}
)

type Type interface {
	HubServerConfig | OutboxClientConfig
}

var validate = validator.New()

// LoadConfig loads configuration from a YAML or TOML file with environment variable support
func LoadConfig[T Type](filename string) (*T, string, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	cfgPath, err := helper.GetCfgPath(filename)
	if err != nil {
		return nil, "", err
	}
	data, err := os.ReadFile(cfgPath)
	if err != nil {
		return nil, cfgPath, err
	}

	cfg, err := Parse[T](cfgPath, data)
	if err != nil {
		return nil, cfgPath, withLocation(err, cfgPath)
	}
	return cfg, cfgPath, nil
}

// Parse decodes raw configuration bytes. The format is chosen by the file
// extension of name; anything that is not .toml is treated as YAML.
func Parse[T Type](name string, data []byte) (*T, error) {
	// Resolve environment variables
	data = resolveEnv(data)

	var cfg T
	switch strings.ToLower(filepath.Ext(name)) {
	case ".toml":
		if _, err := toml.NewDecoder(bytes.NewReader(data)).Decode(&cfg); err != nil {
			return nil, fmt.Errorf("failed to decode toml config: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to decode yaml config: %w", err)
		}
	}

	switch c := any(&cfg).(type) {
	case *HubServerConfig:
		c.SetDefaults()
		if err := c.Validate(); err != nil {
			return nil, err
		}
	case *OutboxClientConfig:
		c.SetDefaults()
		if err := c.Validate(); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

// SetDefaults fills in zero values of the hub server configuration
func (c *HubServerConfig) SetDefaults() {
	if c.Port == 0 {
		c.Port = 5235
	}
	if c.Auth.QueryParam == "" {
		c.Auth.QueryParam = "access_token"
	}
	if c.Auth.AdminRole == "" {
		c.Auth.AdminRole = "admin"
	}
	if c.Auth.JWT.Duration <= 0 {
		c.Auth.JWT.Duration = 24 * time.Hour
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "inboxhub"
	}
	c.Hub.setDefaults()
	c.Bus.setDefaults()
}

// Validate checks struct tags and cross-field constraints
func (c *HubServerConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return &ValidationError{Message: err.Error()}
	}
	return c.Hub.validate()
}

// SetDefaults fills in zero values of the outbox client configuration
func (c *OutboxClientConfig) SetDefaults() {
	c.Outbox.setDefaults()
	c.Storage.setDefaults()
	c.Monitor.setDefaults()
}

// Validate checks struct tags of the outbox client configuration
func (c *OutboxClientConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return &ValidationError{Message: err.Error()}
	}
	return nil
}

var envPattern = regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

// resolveEnv replaces environment variable placeholders in config content
func resolveEnv(content []byte) []byte {
	return envPattern.ReplaceAllFunc(content, func(match []byte) []byte {
		matches := envPattern.FindSubmatch(match)
		envKey := string(matches[1])
		var defaultValue string

		if len(matches) > 2 {
			defaultValue = string(matches[2])
		}

		if value, exists := os.LookupEnv(envKey); exists {
			return []byte(value)
		}
		return []byte(defaultValue)
	})
}
