package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

type (
	// OutboxConfig represents the replay policy of the client action outbox
	OutboxConfig struct {
		// ClientErrorPolicy decides what a non-retryable 4xx does to a flush:
		// "halt" keeps the entry at the head of the queue, "drop" discards it.
		ClientErrorPolicy string        `yaml:"client_error_policy" toml:"client_error_policy" validate:"omitempty,oneof=halt drop"`
		MaxEntries        int           `yaml:"max_entries" toml:"max_entries" validate:"min=0"`
		EntryTTL          time.Duration `yaml:"entry_ttl" toml:"entry_ttl"`
		RequestTimeout    time.Duration `yaml:"request_timeout" toml:"request_timeout"`
		BaseURL           string        `yaml:"base_url" toml:"base_url" validate:"omitempty,url"`
	}

	StorageConfig struct {
		Type     string            `yaml:"type" toml:"type" validate:"omitempty,oneof=disk db"` // disk or db
		Disk     DiskStorageConfig `yaml:"disk" toml:"disk"`                                    // disk configuration for disk type
		Database DatabaseConfig    `yaml:"database" toml:"database"`                            // database configuration for db type
	}

	DiskStorageConfig struct {
		Path string `yaml:"path" toml:"path"` // directory holding outbox.json
	}

	DatabaseConfig struct {
		Type     string `yaml:"type" toml:"type" validate:"omitempty,oneof=sqlite postgres mysql"`
		Host     string `yaml:"host" toml:"host"`         // localhost
		Port     int    `yaml:"port" toml:"port"`         // 3306 (for mysql), 5432 (for postgres)
		User     string `yaml:"user" toml:"user"`         // root (for mysql), postgres (for postgres)
		Password string `yaml:"password" toml:"password"` // password
		DBName   string `yaml:"dbname" toml:"dbname"`     // database name, file path for sqlite
		SSLMode  string `yaml:"sslmode" toml:"sslmode"`   // disable (for postgres)
	}

	// MonitorConfig represents the connectivity probe configuration
	MonitorConfig struct {
		ProbeURL     string        `yaml:"probe_url" toml:"probe_url" validate:"omitempty,url"`
		Interval     time.Duration `yaml:"interval" toml:"interval"`
		ProbeTimeout time.Duration `yaml:"probe_timeout" toml:"probe_timeout"`
		// RetryMaxInterval caps the backoff between retries of a halted queue
		RetryMaxInterval time.Duration `yaml:"retry_max_interval" toml:"retry_max_interval"`
		// ManualOnly stops the monitor from flushing on reconnect
		ManualOnly bool `yaml:"manual_only" toml:"manual_only"`
	}
)

func (c *OutboxConfig) setDefaults() {
	if c.ClientErrorPolicy == "" {
		c.ClientErrorPolicy = "halt"
	}
	if c.MaxEntries == 0 {
		c.MaxEntries = 1000
	}
	if c.EntryTTL == 0 {
		c.EntryTTL = 7 * 24 * time.Hour
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 15 * time.Second
	}
}

func (c *StorageConfig) setDefaults() {
	if c.Type == "" {
		c.Type = "disk"
	}
	if c.Disk.Path == "" {
		c.Disk.Path = "./data/outbox"
	}
	if c.Database.Type == "" {
		c.Database.Type = "sqlite"
	}
	if c.Database.Type == "sqlite" && c.Database.DBName == "" {
		c.Database.DBName = "./data/outbox.db"
	}
}

func (c *MonitorConfig) setDefaults() {
	if c.Interval <= 0 {
		c.Interval = 5 * time.Second
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = 3 * time.Second
	}
	if c.RetryMaxInterval <= 0 {
		c.RetryMaxInterval = 5 * time.Minute
	}
}

// GetDSN returns the database connection string
func (c *DatabaseConfig) GetDSN() string {
	switch c.Type {
	case "postgres":
		return c.getPostgresDSN()
	case "mysql":
		return c.getMySQLDSN()
	case "sqlite":
		// Ensure the directory for the SQLite database exists.
		// If the directory cannot be created, it's a fatal error.
		if err := os.MkdirAll(filepath.Dir(c.DBName), 0755); err != nil {
			panic(fmt.Errorf("failed to create directory for sqlite database: %w", err))
		}
		return c.DBName // For SQLite, DBName is the file path
	default:
		return ""
	}
}

// getPostgresDSN returns PostgreSQL connection string
func (c *DatabaseConfig) getPostgresDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode)
}

// getMySQLDSN returns MySQL connection string
func (c *DatabaseConfig) getMySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.User, c.Password, c.Host, c.Port, c.DBName)
}
