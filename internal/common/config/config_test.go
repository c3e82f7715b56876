package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "this-is-a-very-long-secret-key-for-testing"

func TestResolveEnv(t *testing.T) {
	t.Setenv("X_A", "va")
	in := []byte("a: ${X_A:da}\nb: ${X_B:db}")
	out := resolveEnv(in)
	assert.Contains(t, string(out), "a: va")
	assert.Contains(t, string(out), "b: db")
}

func TestLoadConfig_HubServerYAML(t *testing.T) {
	tmp := t.TempDir()
	old, _ := os.Getwd()
	t.Cleanup(func() { _ = os.Chdir(old) })
	_ = os.Chdir(tmp)

	t.Setenv("X_SECRET", testSecret)
	yaml := `
port: 1234
hub:
  keepalive_interval: 10s
  max_session_duration: 2m
bus:
  type: redis
  redis:
    addr: 127.0.0.1:6379
auth:
  jwt:
    secret_key: ${X_SECRET}
`
	file := filepath.Join(tmp, "inboxhub.yaml")
	require.NoError(t, os.WriteFile(file, []byte(yaml), 0o644))

	cfg, path, err := LoadConfig[HubServerConfig]("inboxhub.yaml")
	require.NoError(t, err)
	realFile, _ := filepath.EvalSymlinks(file)
	realPath, _ := filepath.EvalSymlinks(path)
	assert.Equal(t, realFile, realPath)
	assert.Equal(t, 1234, cfg.Port)
	assert.Equal(t, 10*time.Second, cfg.Hub.KeepAliveInterval)
	assert.Equal(t, 2*time.Minute, cfg.Hub.MaxSessionDuration)
	assert.Equal(t, 64, cfg.Hub.ChannelBuffer)
	assert.Equal(t, "redis", cfg.Bus.Type)
	assert.Equal(t, "inboxhub:events", cfg.Bus.Redis.Topic)
	assert.Equal(t, testSecret, cfg.Auth.JWT.SecretKey)
	assert.Equal(t, "access_token", cfg.Auth.QueryParam)
}

func TestParse_HubServerDefaults(t *testing.T) {
	cfg, err := Parse[HubServerConfig]("inboxhub.yaml", []byte("auth:\n  jwt:\n    secret_key: "+testSecret+"\n"))
	require.NoError(t, err)
	assert.Equal(t, 25*time.Second, cfg.Hub.KeepAliveInterval)
	assert.Equal(t, 4*time.Minute, cfg.Hub.MaxSessionDuration)
	assert.Equal(t, "memory", cfg.Bus.Type)
	assert.Equal(t, -1, cfg.Bus.NATS.MaxReconnects)
}

func TestParse_HubServerTOML(t *testing.T) {
	toml := `
port = 9000

[hub]
keepalive_interval = "5s"

[bus]
type = "nats"

[bus.nats]
url = "nats://127.0.0.1:4222"

[auth.jwt]
secret_key = "` + testSecret + `"
`
	cfg, err := Parse[HubServerConfig]("inboxhub.toml", []byte(toml))
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, 5*time.Second, cfg.Hub.KeepAliveInterval)
	assert.Equal(t, "nats", cfg.Bus.Type)
	assert.Equal(t, "nats://127.0.0.1:4222", cfg.Bus.NATS.URL)
}

func TestParse_HubServerValidation(t *testing.T) {
	t.Run("weak secret", func(t *testing.T) {
		_, err := Parse[HubServerConfig]("x.yaml", []byte("auth:\n  jwt:\n    secret_key: short\n"))
		var validationErr *ValidationError
		assert.ErrorAs(t, err, &validationErr)
	})

	t.Run("keepalive above idle timeout", func(t *testing.T) {
		_, err := Parse[HubServerConfig]("x.yaml", []byte("hub:\n  keepalive_interval: 30s\nauth:\n  jwt:\n    secret_key: "+testSecret+"\n"))
		var validationErr *ValidationError
		require.ErrorAs(t, err, &validationErr)
		assert.Contains(t, validationErr.Message, "keepalive_interval")
	})

	t.Run("max duration below keepalive", func(t *testing.T) {
		_, err := Parse[HubServerConfig]("x.yaml", []byte("hub:\n  keepalive_interval: 20s\n  max_session_duration: 10s\nauth:\n  jwt:\n    secret_key: "+testSecret+"\n"))
		assert.Error(t, err)
	})

	t.Run("unknown bus", func(t *testing.T) {
		_, err := Parse[HubServerConfig]("x.yaml", []byte("bus:\n  type: kafka\nauth:\n  jwt:\n    secret_key: "+testSecret+"\n"))
		assert.Error(t, err)
	})
}

func TestParse_OutboxClient(t *testing.T) {
	cfg, err := Parse[OutboxClientConfig]("outbox.yaml", []byte("outbox:\n  base_url: http://localhost:8080\n"))
	require.NoError(t, err)
	assert.Equal(t, "halt", cfg.Outbox.ClientErrorPolicy)
	assert.Equal(t, 1000, cfg.Outbox.MaxEntries)
	assert.Equal(t, 7*24*time.Hour, cfg.Outbox.EntryTTL)
	assert.Equal(t, "disk", cfg.Storage.Type)
	assert.Equal(t, "sqlite", cfg.Storage.Database.Type)
	assert.Equal(t, 5*time.Second, cfg.Monitor.Interval)
	assert.Equal(t, 5*time.Minute, cfg.Monitor.RetryMaxInterval)

	_, err = Parse[OutboxClientConfig]("outbox.yaml", []byte("outbox:\n  client_error_policy: skip\n"))
	assert.Error(t, err)
}

func TestLoadConfig_ValidationCarriesLocation(t *testing.T) {
	tmp := t.TempDir()
	file := filepath.Join(tmp, "bad.yaml")
	require.NoError(t, os.WriteFile(file, []byte("bus:\n  type: kafka\n"), 0o644))

	_, _, err := LoadConfig[HubServerConfig](file)
	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	require.Len(t, validationErr.Locations, 1)
	assert.Equal(t, file, validationErr.Locations[0].File)
	assert.Contains(t, err.Error(), "--> "+file)
}

func TestDatabaseConfig_GetDSN(t *testing.T) {
	pg := &DatabaseConfig{Type: "postgres", User: "u", Password: "p", Host: "h", Port: 5432, DBName: "d", SSLMode: "disable"}
	assert.Equal(t, "postgres://u:p@h:5432/d?sslmode=disable", pg.GetDSN())

	my := &DatabaseConfig{Type: "mysql", User: "u", Password: "p", Host: "h", Port: 3306, DBName: "d"}
	assert.Contains(t, my.GetDSN(), "u:p@tcp(h:3306)/d")

	dbPath := filepath.Join(t.TempDir(), "nested", "outbox.db")
	lite := &DatabaseConfig{Type: "sqlite", DBName: dbPath}
	assert.Equal(t, dbPath, lite.GetDSN())
	_, err := os.Stat(filepath.Dir(dbPath))
	assert.NoError(t, err)

	assert.Equal(t, "", (&DatabaseConfig{Type: "oracle"}).GetDSN())
}
