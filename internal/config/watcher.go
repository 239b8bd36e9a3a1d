package config

import (
	"context"
	"os"
	"sync"
	"time"

	"chatsend/internal/constants"
	"chatsend/internal/models"

	"github.com/sirupsen/logrus"
)

// Watcher polls the configuration file and reloads it when it changes.
// Settings that can change at runtime (log level, sweep interval) are handed
// to registered callbacks; everything else needs a restart.
type Watcher struct {
	configPath   string
	pollInterval time.Duration
	logger       *logrus.Logger
	mu           sync.RWMutex
	config       *models.Config
	callbacks    []func(*models.Config)
}

// NewWatcher creates a new configuration watcher
func NewWatcher(configPath string, logger *logrus.Logger) *Watcher {
	return &Watcher{
		configPath:   configPath,
		pollInterval: constants.DefaultConfigPollIntervalSec * time.Second,
		logger:       logger,
		callbacks:    make([]func(*models.Config), 0),
	}
}

// SetPollInterval changes how often the file is checked. It must be called
// before Start.
func (w *Watcher) SetPollInterval(d time.Duration) {
	if d > 0 {
		w.pollInterval = d
	}
}

// Start loads the configuration and then watches the file until ctx is done.
func (w *Watcher) Start(ctx context.Context) error {
	config, err := LoadConfig(w.configPath)
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.config = config
	w.mu.Unlock()

	stat, err := os.Stat(w.configPath)
	if err != nil {
		return err
	}
	lastModTime := stat.ModTime()

	w.logger.WithField("path", w.configPath).Info("Configuration watcher started")

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Configuration watcher stopping")
			return nil

		case <-ticker.C:
			stat, err := os.Stat(w.configPath)
			if err != nil {
				w.logger.WithError(err).Error("Failed to stat configuration file")
				continue
			}

			if stat.ModTime().After(lastModTime) {
				w.logger.Debug("Configuration file changed")
				lastModTime = stat.ModTime()
				w.reloadConfig()
			}
		}
	}
}

// GetConfig returns the current configuration (thread-safe)
func (w *Watcher) GetConfig() *models.Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.config
}

// OnConfigChange registers a callback to be called when configuration changes
func (w *Watcher) OnConfigChange(callback func(*models.Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, callback)
}

func (w *Watcher) reloadConfig() {
	newConfig, err := LoadConfig(w.configPath)
	if err != nil {
		w.logger.WithError(err).Error("Failed to reload configuration")
		return
	}

	w.mu.Lock()
	oldConfig := w.config
	w.config = newConfig
	callbacks := make([]func(*models.Config), len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mu.Unlock()

	w.logger.Info("Configuration reloaded successfully")

	for _, callback := range callbacks {
		func(cb func(*models.Config)) {
			defer func() {
				if r := recover(); r != nil {
					w.logger.WithField("panic", r).Error("Config change callback panicked")
				}
			}()
			cb(newConfig)
		}(callback)
	}

	w.logConfigChanges(oldConfig, newConfig)
}

// logConfigChanges logs notable configuration changes
func (w *Watcher) logConfigChanges(old, new *models.Config) {
	if old == nil {
		return
	}

	if old.LogLevel != new.LogLevel {
		w.logger.WithFields(logrus.Fields{
			"old": old.LogLevel,
			"new": new.LogLevel,
		}).Info("Log level changed")
	}

	if old.Sweep.IntervalSec != new.Sweep.IntervalSec {
		w.logger.WithFields(logrus.Fields{
			"old": old.Sweep.IntervalSec,
			"new": new.Sweep.IntervalSec,
		}).Info("Sweep interval changed (applies after restart)")
	}

	if old.Remote.ServerURL != new.Remote.ServerURL {
		w.logger.Warn("Remote server URL changed; restart to apply")
	}

	if len(old.E2E.Rooms) != len(new.E2E.Rooms) {
		w.logger.WithFields(logrus.Fields{
			"old_count": len(old.E2E.Rooms),
			"new_count": len(new.E2E.Rooms),
		}).Info("Number of e2e rooms changed")
	}
}
