// 配置加载器与默认配置测试。
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- 默认配置测试 ---

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, 9091, cfg.Server.MetricsPort)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 90*time.Second, cfg.Server.WriteTimeout)

	assert.Equal(t, "memory", cfg.Store.Type)
	assert.Equal(t, "agentdesk:interaction:", cfg.Store.KeyPrefix)
	assert.Equal(t, 10*time.Minute, cfg.Store.OutcomeRetention)

	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 0, cfg.Redis.DB)

	assert.False(t, cfg.History.Enabled)
	assert.Equal(t, "sqlite", cfg.History.Driver)

	assert.Equal(t, 2*time.Second, cfg.Delivery.PollInterval)
	assert.Equal(t, 10*time.Second, cfg.Delivery.RequestTimeout)
	assert.True(t, cfg.Delivery.PushEnabled)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, []string{"stdout"}, cfg.Log.OutputPaths)

	assert.False(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "agentdesk", cfg.Telemetry.ServiceName)

	assert.NoError(t, cfg.Validate())
}

// --- Loader 测试 ---

func TestLoader_LoadDefaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, "memory", cfg.Store.Type)
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoader_LoadFromYAML(t *testing.T) {
	path := writeConfig(t, `
server:
  http_port: 8888
  read_timeout: 60s
  cors_allowed_origins: ["https://desk.example.com"]

store:
  type: redis
  key_prefix: "test:"

redis:
  addr: "redis.example.com:6379"
  password: "secret"
  db: 1

history:
  enabled: true
  driver: postgres
  name: agentdesk

delivery:
  server_url: "http://desk:8080"
  poll_interval: 500ms
  push_enabled: false

log:
  level: debug
  format: console
`)

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 8888, cfg.Server.HTTPPort)
	assert.Equal(t, 60*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, []string{"https://desk.example.com"}, cfg.Server.CORSAllowedOrigins)

	assert.Equal(t, "redis", cfg.Store.Type)
	assert.Equal(t, "test:", cfg.Store.KeyPrefix)
	assert.Equal(t, 10*time.Minute, cfg.Store.OutcomeRetention, "unset fields keep defaults")

	assert.Equal(t, "redis.example.com:6379", cfg.Redis.Addr)
	assert.Equal(t, "secret", cfg.Redis.Password)
	assert.Equal(t, 1, cfg.Redis.DB)

	assert.True(t, cfg.History.Enabled)
	assert.Equal(t, "postgres", cfg.History.Driver)

	assert.Equal(t, "http://desk:8080", cfg.Delivery.ServerURL)
	assert.Equal(t, 500*time.Millisecond, cfg.Delivery.PollInterval)
	assert.False(t, cfg.Delivery.PushEnabled)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestLoader_LoadFromEnv(t *testing.T) {
	t.Setenv("AGENTDESK_SERVER_HTTP_PORT", "7777")
	t.Setenv("AGENTDESK_SERVER_RATE_LIMIT_RPS", "2.5")
	t.Setenv("AGENTDESK_SERVER_CORS_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")
	t.Setenv("AGENTDESK_STORE_TYPE", "redis")
	t.Setenv("AGENTDESK_REDIS_ADDR", "env-redis:6379")
	t.Setenv("AGENTDESK_HISTORY_ENABLED", "true")
	t.Setenv("AGENTDESK_DELIVERY_POLL_INTERVAL", "3s")
	t.Setenv("AGENTDESK_LOG_LEVEL", "warn")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 7777, cfg.Server.HTTPPort)
	assert.Equal(t, 2.5, cfg.Server.RateLimitRPS)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.Server.CORSAllowedOrigins)
	assert.Equal(t, "redis", cfg.Store.Type)
	assert.Equal(t, "env-redis:6379", cfg.Redis.Addr)
	assert.True(t, cfg.History.Enabled)
	assert.Equal(t, 3*time.Second, cfg.Delivery.PollInterval)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoader_InvalidEnvValue(t *testing.T) {
	t.Setenv("AGENTDESK_DELIVERY_POLL_INTERVAL", "often")

	_, err := NewLoader().Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AGENTDESK_DELIVERY_POLL_INTERVAL")
}

func TestLoader_EnvOverridesYAML(t *testing.T) {
	path := writeConfig(t, `
server:
  http_port: 8888
log:
  level: debug
  format: console
`)
	t.Setenv("AGENTDESK_SERVER_HTTP_PORT", "9999")
	t.Setenv("AGENTDESK_LOG_LEVEL", "error")

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.HTTPPort)
	assert.Equal(t, "error", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestLoader_CustomEnvPrefix(t *testing.T) {
	t.Setenv("MYDESK_SERVER_HTTP_PORT", "6666")
	t.Setenv("MYDESK_STORE_KEY_PREFIX", "custom:")

	cfg, err := NewLoader().WithEnvPrefix("MYDESK").Load()
	require.NoError(t, err)

	assert.Equal(t, 6666, cfg.Server.HTTPPort)
	assert.Equal(t, "custom:", cfg.Store.KeyPrefix)
}

func TestLoader_WithValidator(t *testing.T) {
	t.Setenv("AGENTDESK_SERVER_HTTP_PORT", "80")

	_, err := NewLoader().
		WithValidator(func(cfg *Config) error {
			if cfg.Server.HTTPPort < 1024 {
				return assert.AnError
			}
			return nil
		}).
		Load()
	assert.ErrorIs(t, err, assert.AnError)
}

func TestLoader_NonExistentFile(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath("/non/existent/path/config.yaml").Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
}

func TestLoader_InvalidYAML(t *testing.T) {
	path := writeConfig(t, `
server:
  http_port: [invalid
  this is not valid yaml
`)

	_, err := NewLoader().WithConfigPath(path).Load()
	assert.Error(t, err)
}

// --- Config 方法测试 ---

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{name: "valid default config", modify: func(c *Config) {}},
		{
			name:    "invalid HTTP port",
			modify:  func(c *Config) { c.Server.HTTPPort = 70000 },
			wantErr: "invalid HTTP port",
		},
		{
			name:    "metrics port clashes",
			modify:  func(c *Config) { c.Server.MetricsPort = c.Server.HTTPPort },
			wantErr: "metrics port must differ",
		},
		{
			name:    "unknown store type",
			modify:  func(c *Config) { c.Store.Type = "etcd" },
			wantErr: `unknown store type "etcd"`,
		},
		{
			name: "redis store without addr",
			modify: func(c *Config) {
				c.Store.Type = "redis"
				c.Redis.Addr = ""
			},
			wantErr: "redis.addr is required",
		},
		{
			name: "history with unknown driver",
			modify: func(c *Config) {
				c.History.Enabled = true
				c.History.Driver = "oracle"
			},
			wantErr: `unknown history driver "oracle"`,
		},
		{
			name: "disabled history is not validated",
			modify: func(c *Config) {
				c.History.Driver = "oracle"
			},
		},
		{
			name:    "zero poll interval",
			modify:  func(c *Config) { c.Delivery.PollInterval = 0 },
			wantErr: "delivery.poll_interval must be positive",
		},
		{
			name:    "sample rate out of range",
			modify:  func(c *Config) { c.Telemetry.SampleRate = 1.5 },
			wantErr: "telemetry.sample_rate",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_ValidateCollectsAllErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.HTTPPort = 0
	cfg.Store.Type = "nope"
	cfg.Delivery.RequestTimeout = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid HTTP port")
	assert.Contains(t, err.Error(), "unknown store type")
	assert.Contains(t, err.Error(), "delivery.request_timeout")
}

func TestHistoryConfig_DSN(t *testing.T) {
	tests := []struct {
		name     string
		config   HistoryConfig
		expected string
	}{
		{
			name: "postgres DSN",
			config: HistoryConfig{
				Driver: "postgres", Host: "localhost", Port: 5432,
				User: "user", Password: "pass", Name: "dbname", SSLMode: "disable",
			},
			expected: "host=localhost port=5432 user=user password=pass dbname=dbname sslmode=disable",
		},
		{
			name: "mysql DSN",
			config: HistoryConfig{
				Driver: "mysql", Host: "localhost", Port: 3306,
				User: "user", Password: "pass", Name: "dbname",
			},
			expected: "user:pass@tcp(localhost:3306)/dbname?parseTime=true",
		},
		{
			name:     "sqlite DSN",
			config:   HistoryConfig{Driver: "sqlite", Name: "/path/to/db.sqlite"},
			expected: "/path/to/db.sqlite",
		},
		{
			name:     "unknown driver",
			config:   HistoryConfig{Driver: "unknown"},
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.config.DSN())
		})
	}
}

// --- MustLoad 测试 ---

func TestMustLoad(t *testing.T) {
	valid := writeConfig(t, "server:\n  http_port: 8181\n")
	assert.NotPanics(t, func() {
		assert.Equal(t, 8181, MustLoad(valid).Server.HTTPPort)
	})

	invalid := writeConfig(t, "invalid: [yaml")
	assert.Panics(t, func() { MustLoad(invalid) })
}
