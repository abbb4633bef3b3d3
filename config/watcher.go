package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/najoast/skyrt/log"
)

// DefaultDebounce is how long the watcher waits after the last write before
// reloading.
const DefaultDebounce = 500 * time.Millisecond

// LevelChangeCallback is called when a reload changes the log level.
type LevelChangeCallback func(oldLevel, newLevel LogLevel)

// Watcher watches the configuration file and hot-reloads the log level.
// Every other setting is fixed at start; changes to them on disk are logged
// and ignored.
type Watcher struct {
	configFile string
	loader     *Loader
	logger     log.Logger
	debounce   time.Duration

	config   *Config
	configMu sync.RWMutex

	fsWatcher *fsnotify.Watcher

	callbacks   []LevelChangeCallback
	callbacksMu sync.RWMutex

	done chan struct{}
	wg   sync.WaitGroup
}

// NewWatcher creates a watcher for configFile, loading it once.
func NewWatcher(configFile string, loader *Loader, logger log.Logger) (*Watcher, error) {
	if logger == nil {
		logger = log.DiscardLogger
	}

	config, err := loader.LoadFromFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load initial config: %w", err)
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file system watcher: %w", err)
	}

	return &Watcher{
		configFile: filepath.Clean(configFile),
		loader:     loader,
		logger:     logger,
		debounce:   DefaultDebounce,
		config:     config,
		fsWatcher:  fsWatcher,
		done:       make(chan struct{}),
	}, nil
}

// SetDebounce changes the reload delay. Call before Start.
func (w *Watcher) SetDebounce(d time.Duration) {
	w.debounce = d
}

// Start starts watching. The parent directory is watched so that editors
// replacing the file by rename are noticed.
func (w *Watcher) Start() error {
	if err := w.fsWatcher.Add(filepath.Dir(w.configFile)); err != nil {
		return fmt.Errorf("failed to watch config file: %w", err)
	}

	w.wg.Add(1)
	go w.watchLoop()
	return nil
}

// Stop stops watching the configuration file
func (w *Watcher) Stop() error {
	close(w.done)
	err := w.fsWatcher.Close()
	w.wg.Wait()
	return err
}

// Config returns the current configuration
func (w *Watcher) Config() *Config {
	w.configMu.RLock()
	defer w.configMu.RUnlock()
	return w.config
}

// OnLevelChange registers a callback for log level changes
func (w *Watcher) OnLevelChange(callback LevelChangeCallback) {
	w.callbacksMu.Lock()
	defer w.callbacksMu.Unlock()
	w.callbacks = append(w.callbacks, callback)
}

// Reload manually reloads the configuration
func (w *Watcher) Reload() error {
	return w.reloadConfig()
}

func (w *Watcher) watchLoop() {
	defer w.wg.Done()

	// Debounce timer to avoid multiple reloads for rapid file changes
	var debounceTimer *time.Timer
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.configFile {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(w.debounce, func() {
				if err := w.reloadConfig(); err != nil {
					w.logger.Warnf("failed to reload config: %v", err)
				}
			})

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Warnf("config watcher error: %v", err)
		}
	}
}

func (w *Watcher) reloadConfig() error {
	loaded, err := w.loader.LoadFromFile(w.configFile)
	if err != nil {
		return fmt.Errorf("failed to reload config: %w", err)
	}

	w.configMu.Lock()
	old := w.config
	next := *old
	next.Log.Level = loaded.Log.Level
	w.config = &next
	w.configMu.Unlock()

	if !engineEqual(old.Engine, loaded.Engine) || old.Gate != loaded.Gate {
		w.logger.Warnf("engine or gate settings in %s changed; restart to apply", w.configFile)
	}

	if old.Log.Level == next.Log.Level {
		return nil
	}
	w.logger.Infof("log level changed from %s to %s", old.Log.Level, next.Log.Level)

	w.callbacksMu.RLock()
	callbacks := append([]LevelChangeCallback(nil), w.callbacks...)
	w.callbacksMu.RUnlock()

	for _, callback := range callbacks {
		callback(old.Log.Level, next.Log.Level)
	}
	return nil
}

func engineEqual(a, b EngineConfig) bool {
	if len(a.Weights) != len(b.Weights) {
		return false
	}
	for i := range a.Weights {
		if a.Weights[i] != b.Weights[i] {
			return false
		}
	}
	return a.Threads == b.Threads &&
		a.StallInterval == b.StallInterval &&
		a.OverloadThreshold == b.OverloadThreshold &&
		a.MailboxCapacity == b.MailboxCapacity &&
		a.WakeBusy == b.WakeBusy &&
		a.Harbor == b.Harbor &&
		a.ExitWhenIdle == b.ExitWhenIdle
}
