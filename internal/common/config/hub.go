package config

import (
	"fmt"
	"time"

	"github.com/amoylab/inboxhub/internal/common/cnst"
)

// IdleProxyTimeout is the idle-connection timeout of the intermediaries the
// hub runs behind. Keep-alive pings must be emitted more often than this.
const IdleProxyTimeout = 30 * time.Second

type (
	// HubConfig represents the stream session configuration
	HubConfig struct {
		KeepAliveInterval  time.Duration `yaml:"keepalive_interval" toml:"keepalive_interval"`
		MaxSessionDuration time.Duration `yaml:"max_session_duration" toml:"max_session_duration"`
		ChannelBuffer      int           `yaml:"channel_buffer" toml:"channel_buffer" validate:"min=0"`
	}

	// BusConfig selects the publisher backend used for cross-process fan-out
	BusConfig struct {
		Type string `yaml:"type" toml:"type" validate:"omitempty,oneof=memory redis nats"`
		// Role limits a process to publishing (sender), relaying to its own
		// sessions (receiver) or both.
		Role  string         `yaml:"role" toml:"role" validate:"omitempty,oneof=sender receiver both"`
		Redis BusRedisConfig `yaml:"redis" toml:"redis"`
		NATS  BusNATSConfig  `yaml:"nats" toml:"nats"`
	}

	// BusRedisConfig represents the Redis pub/sub configuration
	BusRedisConfig struct {
		ClusterType string `yaml:"cluster_type" toml:"cluster_type"` // single, sentinel, cluster
		Addr        string `yaml:"addr" toml:"addr"`                 // multiple addresses separated by ; or ,
		MasterName  string `yaml:"master_name" toml:"master_name"`
		Username    string `yaml:"username" toml:"username"`
		Password    string `yaml:"password" toml:"password"`
		DB          int    `yaml:"db" toml:"db"`
		Topic       string `yaml:"topic" toml:"topic"`
	}

	// BusNATSConfig represents the NATS connection configuration
	BusNATSConfig struct {
		URL            string        `yaml:"url" toml:"url"`
		Subject        string        `yaml:"subject" toml:"subject"`
		ConnectTimeout time.Duration `yaml:"connect_timeout" toml:"connect_timeout"`
		MaxReconnects  int           `yaml:"max_reconnects" toml:"max_reconnects"` // -1 means infinite
		ReconnectWait  time.Duration `yaml:"reconnect_wait" toml:"reconnect_wait"`
	}
)

func (c *HubConfig) setDefaults() {
	if c.KeepAliveInterval <= 0 {
		c.KeepAliveInterval = 25 * time.Second
	}
	if c.MaxSessionDuration <= 0 {
		c.MaxSessionDuration = 4 * time.Minute
	}
	if c.ChannelBuffer == 0 {
		c.ChannelBuffer = 64
	}
}

func (c *HubConfig) validate() error {
	if c.KeepAliveInterval >= IdleProxyTimeout {
		return &ValidationError{
			Message: fmt.Sprintf("hub.keepalive_interval %s must stay below the %s idle timeout", c.KeepAliveInterval, IdleProxyTimeout),
		}
	}
	if c.MaxSessionDuration <= c.KeepAliveInterval {
		return &ValidationError{
			Message: fmt.Sprintf("hub.max_session_duration %s must exceed hub.keepalive_interval %s", c.MaxSessionDuration, c.KeepAliveInterval),
		}
	}
	return nil
}

func (c *BusConfig) setDefaults() {
	if c.Type == "" {
		c.Type = string(cnst.BusTypeMemory)
	}
	if c.Role == "" {
		c.Role = string(cnst.BusRoleBoth)
	}
	if c.Redis.ClusterType == "" {
		c.Redis.ClusterType = cnst.RedisClusterTypeSingle
	}
	if c.Redis.Topic == "" {
		c.Redis.Topic = "inboxhub:events"
	}
	if c.NATS.Subject == "" {
		c.NATS.Subject = "inboxhub.events"
	}
	if c.NATS.ConnectTimeout <= 0 {
		c.NATS.ConnectTimeout = 10 * time.Second
	}
	if c.NATS.MaxReconnects == 0 {
		c.NATS.MaxReconnects = -1
	}
	if c.NATS.ReconnectWait <= 0 {
		c.NATS.ReconnectWait = 2 * time.Second
	}
}
