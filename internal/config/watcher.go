package config

import (
	"context"
	"os"
	"time"

	"github.com/MRamiBalles/zpvip/internal/platform/logger"
)

// DefaultPollInterval is how often the config file mtime is checked.
const DefaultPollInterval = 2 * time.Second

// Watcher reloads the config file into a Holder when it changes.
// A document that fails to parse leaves the previous config in place.
type Watcher struct {
	path     string
	holder   *Holder
	logger   *logger.Logger
	interval time.Duration
	modTime  time.Time
	onReload func(*Config)
}

// NewWatcher creates a watcher for path publishing into holder.
func NewWatcher(path string, holder *Holder, log *logger.Logger, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	w := &Watcher{
		path:     path,
		holder:   holder,
		logger:   log,
		interval: interval,
	}
	if info, err := os.Stat(path); err == nil {
		w.modTime = info.ModTime()
	}
	return w
}

// OnReload installs a callback run after each successful swap.
func (w *Watcher) OnReload(fn func(*Config)) {
	w.onReload = fn
}

// Start polls until ctx is cancelled. Call in a goroutine.
func (w *Watcher) Start(ctx context.Context) {
	w.logger.Infof("Config watcher started for %s (every %s)", w.path, w.interval)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Config watcher stopped.")
			return
		case <-ticker.C:
			w.Check()
		}
	}
}

// Check reloads the file if its modification time moved. It reports whether
// a new config was installed.
func (w *Watcher) Check() bool {
	info, err := os.Stat(w.path)
	if err != nil {
		return false
	}
	if !info.ModTime().After(w.modTime) {
		return false
	}
	w.modTime = info.ModTime()

	cfg, warnings, err := Load(w.path)
	if err != nil {
		w.logger.Errorf("Config reload failed, keeping previous config: %v", err)
		return false
	}
	for _, warn := range warnings {
		w.logger.Warn("config: " + warn)
	}
	w.holder.Swap(cfg)
	w.logger.Info("Config reloaded from " + w.path)
	if w.onReload != nil {
		w.onReload(cfg)
	}
	return true
}
