package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// --- 差异计算 ---

func TestDiffConfig(t *testing.T) {
	oldCfg := DefaultConfig()
	newCfg := DefaultConfig()
	newCfg.Log.Level = "debug"
	newCfg.Server.HTTPPort = 9090
	newCfg.Log.OutputPaths = []string{"stderr"}

	changes := DiffConfig(oldCfg, newCfg)
	require.Len(t, changes, 3)

	assert.Equal(t, "log.level", changes[0].Path)
	assert.Equal(t, "info", changes[0].OldValue)
	assert.Equal(t, "debug", changes[0].NewValue)
	assert.False(t, changes[0].RequiresRestart)

	assert.Equal(t, "log.output_paths", changes[1].Path)
	assert.True(t, changes[1].RequiresRestart)

	assert.Equal(t, "server.http_port", changes[2].Path)
	assert.True(t, changes[2].RequiresRestart)

	assert.Empty(t, DiffConfig(oldCfg, DefaultConfig()))
}

func TestIsHotReloadable(t *testing.T) {
	assert.True(t, IsHotReloadable("log.level"))
	assert.True(t, IsHotReloadable("notification.rate_limit"))
	assert.False(t, IsHotReloadable("store.type"))
}

func TestRedact(t *testing.T) {
	assert.Equal(t, "***", redact("database.password", "pw"))
	assert.Equal(t, "***", redact("notification.signing_key", "k"))
	assert.Equal(t, "a2a:", redact("store.key_prefix", "a2a:"))
	assert.Equal(t, 5, redact("notification.burst", 5))
}

// --- 重载 ---

func writeConfig(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestReloader_Reload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, "log:\n  level: info\n")

	initial, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	r, err := NewReloader(path, initial, zaptest.NewLogger(t))
	require.NoError(t, err)

	var got []ConfigChange
	r.OnReload(func(oldConfig, newConfig *Config, changes []ConfigChange) {
		assert.Equal(t, "info", oldConfig.Log.Level)
		assert.Equal(t, "warn", newConfig.Log.Level)
		got = changes
	})

	// 无变化时不回调
	changes, err := r.Reload()
	require.NoError(t, err)
	assert.Empty(t, changes)
	assert.Nil(t, got)

	writeConfig(t, path, "log:\n  level: warn\n")
	changes, err = r.Reload()
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, changes, got)
	assert.Equal(t, "warn", r.Current().Log.Level)
}

func TestReloader_InvalidConfigKeepsCurrent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, "log:\n  level: info\n")

	initial, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)
	r, err := NewReloader(path, initial, nil)
	require.NoError(t, err)

	called := false
	r.OnReload(func(*Config, *Config, []ConfigChange) { called = true })

	writeConfig(t, path, "store:\n  type: cassandra\n")
	_, err = r.Reload()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
	assert.False(t, called)
	assert.Same(t, initial, r.Current())

	writeConfig(t, path, "log: [unclosed\n")
	_, err = r.Reload()
	assert.Error(t, err)
}

func TestNewReloader_RequiresConfig(t *testing.T) {
	_, err := NewReloader("config.yaml", nil, nil)
	assert.Error(t, err)
}
