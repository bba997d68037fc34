// 配置加载器测试。
package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Loader 测试 ---

func TestLoader_LoadDefaults(t *testing.T) {
	// 不指定配置文件，应该返回默认值
	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, "memory", cfg.Store.Type)
	assert.Equal(t, "memory", cfg.Checkpoint.Backend)
	assert.NoError(t, cfg.Validate())
}

func TestLoader_LoadFromYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")

	yamlContent := `
server:
  http_port: 8888
  read_timeout: 60s

store:
  type: redis
  key_prefix: "tenant-a:"

redis:
  addr: "redis.example.com:6379"
  password: "secret"
  db: 1

database:
  driver: postgres
  host: db.internal
  port: 5433

checkpoint:
  backend: sql
  ttl: 24h
  cleanup_interval: 30m

notification:
  workers: 8
  rate_limit: 12.5
  signing_key: "k"

log:
  level: "debug"
  format: "console"
  output_paths: ["stderr"]
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0644))

	cfg, err := NewLoader().
		WithConfigPath(configPath).
		Load()
	require.NoError(t, err)

	// YAML 覆盖默认值
	assert.Equal(t, 8888, cfg.Server.HTTPPort)
	assert.Equal(t, 60*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout)

	assert.Equal(t, "redis", cfg.Store.Type)
	assert.Equal(t, "tenant-a:", cfg.Store.KeyPrefix)
	assert.Equal(t, "redis.example.com:6379", cfg.Redis.Addr)
	assert.Equal(t, 1, cfg.Redis.DB)

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 5433, cfg.Database.Port)

	assert.Equal(t, "sql", cfg.Checkpoint.Backend)
	assert.Equal(t, 24*time.Hour, cfg.Checkpoint.TTL)
	assert.Equal(t, 30*time.Minute, cfg.Checkpoint.CleanupInterval)
	assert.True(t, cfg.Checkpoint.CleanupEnabled)

	assert.Equal(t, 8, cfg.Notification.Workers)
	assert.InDelta(t, 12.5, cfg.Notification.RateLimit, 0.0001)
	assert.Equal(t, "k", cfg.Notification.SigningKey)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, []string{"stderr"}, cfg.Log.OutputPaths)
	assert.NoError(t, cfg.Validate())
}

func TestLoader_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := NewLoader().
		WithConfigPath(filepath.Join(t.TempDir(), "absent.yaml")).
		Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoader_InvalidYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("server: [unclosed"), 0644))

	_, err := NewLoader().WithConfigPath(configPath).Load()
	assert.Error(t, err)
}

func TestLoader_EnvOverridesYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("server:\n  http_port: 8888\n"), 0644))

	t.Setenv("A2AENGINE_SERVER_HTTP_PORT", "9999")
	t.Setenv("A2AENGINE_CHECKPOINT_TTL", "90m")
	t.Setenv("A2AENGINE_CHECKPOINT_CLEANUP_ENABLED", "false")
	t.Setenv("A2AENGINE_NOTIFICATION_RATE_LIMIT", "2.5")
	t.Setenv("A2AENGINE_LOG_OUTPUT_PATHS", "stdout, /var/log/a2a.log")

	cfg, err := NewLoader().WithConfigPath(configPath).Load()
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.HTTPPort)
	assert.Equal(t, 90*time.Minute, cfg.Checkpoint.TTL)
	assert.False(t, cfg.Checkpoint.CleanupEnabled)
	assert.InDelta(t, 2.5, cfg.Notification.RateLimit, 0.0001)
	assert.Equal(t, []string{"stdout", "/var/log/a2a.log"}, cfg.Log.OutputPaths)
}

func TestLoader_CustomEnvPrefix(t *testing.T) {
	t.Setenv("CUSTOM_STORE_TYPE", "redis")

	cfg, err := NewLoader().WithEnvPrefix("CUSTOM").Load()
	require.NoError(t, err)
	assert.Equal(t, "redis", cfg.Store.Type)
}

func TestLoader_InvalidEnvValue(t *testing.T) {
	t.Setenv("A2AENGINE_CHECKPOINT_TTL", "not-a-duration")

	_, err := NewLoader().Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "A2AENGINE_CHECKPOINT_TTL")
}

func TestLoader_Validators(t *testing.T) {
	sentinel := errors.New("rejected")

	_, err := NewLoader().
		WithValidator(func(c *Config) error { return nil }).
		WithValidator(func(c *Config) error { return sentinel }).
		Load()
	assert.ErrorIs(t, err, sentinel)

	_, err = NewLoader().WithValidator((*Config).Validate).Load()
	assert.NoError(t, err)
}

func TestMustLoad_Panics(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("::"), 0644))

	assert.Panics(t, func() { MustLoad(configPath) })
}

// --- Validate 测试 ---

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "bad port", mutate: func(c *Config) { c.Server.HTTPPort = 0 }, wantErr: "invalid HTTP port"},
		{name: "unknown store", mutate: func(c *Config) { c.Store.Type = "cassandra" }, wantErr: "unknown store type"},
		{
			name:    "database store without driver",
			mutate:  func(c *Config) { c.Store.Type = "database"; c.Database.Driver = "" },
			wantErr: "database.driver",
		},
		{name: "unknown checkpoint backend", mutate: func(c *Config) { c.Checkpoint.Backend = "s3" }, wantErr: "unknown checkpoint backend"},
		{name: "negative ttl", mutate: func(c *Config) { c.Checkpoint.TTL = -time.Second }, wantErr: "ttl"},
		{
			name:    "cleanup without interval",
			mutate:  func(c *Config) { c.Checkpoint.CleanupInterval = 0 },
			wantErr: "cleanup_interval",
		},
		{name: "no workers", mutate: func(c *Config) { c.Notification.Workers = 0 }, wantErr: "workers"},
		{name: "negative rate", mutate: func(c *Config) { c.Notification.RateLimit = -1 }, wantErr: "rate_limit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
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

// --- DSN 测试 ---

func TestDatabaseConfig_DSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  DatabaseConfig
		want string
	}{
		{
			name: "postgres",
			cfg:  DatabaseConfig{Driver: "postgres", Host: "h", Port: 5432, User: "u", Password: "p", Name: "d", SSLMode: "disable"},
			want: "host=h port=5432 user=u password=p dbname=d sslmode=disable",
		},
		{
			name: "mysql",
			cfg:  DatabaseConfig{Driver: "mysql", Host: "h", Port: 3306, User: "u", Password: "p", Name: "d"},
			want: "u:p@tcp(h:3306)/d?parseTime=true",
		},
		{
			name: "sqlite",
			cfg:  DatabaseConfig{Driver: "sqlite", Name: "/tmp/a2a.db"},
			want: "/tmp/a2a.db",
		},
		{
			name: "unknown",
			cfg:  DatabaseConfig{Driver: "oracle"},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cfg.DSN())
		})
	}
}
