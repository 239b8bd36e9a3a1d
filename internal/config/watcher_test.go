package config

import (
	"context"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"chatsend/internal/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestNewWatcher(t *testing.T) {
	logger := quietLogger()
	watcher := NewWatcher("/path/to/config.json", logger)

	assert.Equal(t, "/path/to/config.json", watcher.configPath)
	assert.Equal(t, logger, watcher.logger)
	assert.Equal(t, 5*time.Second, watcher.pollInterval)
	assert.Empty(t, watcher.callbacks)
	assert.Nil(t, watcher.GetConfig())
}

func TestWatcher_SetPollInterval(t *testing.T) {
	watcher := NewWatcher("config.json", quietLogger())
	watcher.SetPollInterval(0)
	assert.Equal(t, 5*time.Second, watcher.pollInterval)
	watcher.SetPollInterval(time.Second)
	assert.Equal(t, time.Second, watcher.pollInterval)
}

func TestWatcher_Start_InvalidPath(t *testing.T) {
	watcher := NewWatcher("/nonexistent/config.json", quietLogger())
	assert.Error(t, watcher.Start(context.Background()))
}

func TestWatcher_ReloadsOnChange(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "config.json", validJSON)

	watcher := NewWatcher(path, quietLogger())
	watcher.SetPollInterval(10 * time.Millisecond)

	var mu sync.Mutex
	var levels []string
	watcher.OnConfigChange(func(cfg *models.Config) {
		mu.Lock()
		defer mu.Unlock()
		levels = append(levels, cfg.LogLevel)
	})
	watcher.OnConfigChange(func(*models.Config) { panic("callback failure") })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- watcher.Start(ctx) }()

	require.Eventually(t, func() bool { return watcher.GetConfig() != nil }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, "warn", watcher.GetConfig().LogLevel)

	updated := `{
		"remote": {"server_url": "https://chat.example.com"},
		"database": {"path": "/var/lib/chatsend/outbox.db"},
		"log_level": "error"
	}`
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o600))
	future := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, future, future))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(levels) == 1
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, "error", watcher.GetConfig().LogLevel)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestWatcher_InvalidReloadKeepsConfig(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "config.json", validJSON)
	watcher := NewWatcher(path, quietLogger())

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	watcher.config = cfg

	require.NoError(t, os.WriteFile(path, []byte(`{"remote": {}}`), 0o600))
	watcher.reloadConfig()

	assert.Same(t, cfg, watcher.GetConfig())
}
