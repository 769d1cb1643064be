package am

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/teranos/autoboat/errors"
	"github.com/teranos/autoboat/logger"
)

// DefaultDebouncePeriod collapses the burst of events an editor save produces
const DefaultDebouncePeriod = 500 * time.Millisecond

// ConfigWatcher watches a config file for changes and triggers reload callbacks
type ConfigWatcher struct {
	configPath      string
	explicitPath    string // passed back to Load so precedence is unchanged on reload
	watcher         *fsnotify.Watcher
	callbacks       []ReloadCallback
	mu              sync.RWMutex
	debounceTimer   *time.Timer
	debouncePeriod  time.Duration
	isOwnWrite      bool // Flag to prevent reload loops
	isOwnWriteMutex sync.Mutex
	done            chan struct{}
	stopOnce        sync.Once
	load            func(string) (*Config, error)
}

// ReloadCallback is called when config is reloaded
// Receives the new, validated config and returns any error
type ReloadCallback func(*Config) error

// globalWatcher holds the singleton config watcher instance
var (
	globalWatcher   *ConfigWatcher
	globalWatcherMu sync.Mutex
)

// NewConfigWatcher creates a watcher for configPath. explicitPath is the
// --config value (may be empty) used when reloading.
//
// The parent directory is watched rather than the file itself, so editors
// that save by rename-and-replace keep triggering reloads.
func NewConfigWatcher(configPath, explicitPath string) (*ConfigWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create fsnotify watcher")
	}

	if err := watcher.Add(filepath.Dir(configPath)); err != nil {
		watcher.Close()
		return nil, errors.Wrapf(err, "failed to watch config file %s", configPath)
	}

	cw := &ConfigWatcher{
		configPath:     filepath.Clean(configPath),
		explicitPath:   explicitPath,
		watcher:        watcher,
		callbacks:      make([]ReloadCallback, 0),
		debouncePeriod: DefaultDebouncePeriod,
		done:           make(chan struct{}),
		load:           loadValidated,
	}

	return cw, nil
}

// Path returns the watched file
func (cw *ConfigWatcher) Path() string {
	return cw.configPath
}

// OnReload registers a callback to be called when config is reloaded
func (cw *ConfigWatcher) OnReload(callback ReloadCallback) {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	cw.callbacks = append(cw.callbacks, callback)
}

// MarkOwnWrite marks the next write as coming from us (prevents reload loops)
func (cw *ConfigWatcher) MarkOwnWrite() {
	cw.isOwnWriteMutex.Lock()
	defer cw.isOwnWriteMutex.Unlock()
	cw.isOwnWrite = true
}

// checkOwnWrite checks and clears the own-write flag
func (cw *ConfigWatcher) checkOwnWrite() bool {
	cw.isOwnWriteMutex.Lock()
	defer cw.isOwnWriteMutex.Unlock()

	if cw.isOwnWrite {
		cw.isOwnWrite = false
		return true
	}
	return false
}

// Start begins watching for config file changes
func (cw *ConfigWatcher) Start() {
	go cw.watchLoop()
}

// watchLoop monitors file system events
func (cw *ConfigWatcher) watchLoop() {
	log := logger.AddAMSymbol(logger.ComponentLogger("am.watcher"))
	for {
		select {
		case <-cw.done:
			return

		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != cw.configPath {
				continue
			}

			// Only reload on Write, Create or Rename-into-place events
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			// Check if this is our own write
			if cw.checkOwnWrite() {
				log.Debugw("Config watcher ignoring own write",
					"file", event.Name)
				continue
			}

			log.Infow("Config watcher detected change",
				"file", event.Name,
				"op", event.Op.String())
			cw.scheduleReload()

		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			log.Warnw("Config watcher error",
				logger.FieldError, err)
		}
	}
}

// scheduleReload debounces rapid file changes and triggers reload
func (cw *ConfigWatcher) scheduleReload() {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	// Cancel existing timer if any
	if cw.debounceTimer != nil {
		cw.debounceTimer.Stop()
	}

	cw.debounceTimer = time.AfterFunc(cw.debouncePeriod, func() {
		select {
		case <-cw.done:
			return
		default:
		}
		if err := cw.reload(); err != nil {
			// Keep running on the previous config
			logger.AddAMSymbol(logger.ComponentLogger("am.watcher")).Errorw("Config reload failed, keeping previous configuration",
				logger.FieldError, err)
		}
	})
}

// reload reloads the configuration and calls all callbacks
func (cw *ConfigWatcher) reload() error {
	newConfig, err := cw.load(cw.explicitPath)
	if err != nil {
		return err
	}

	logger.AddAMSymbol(logger.ComponentLogger("am.watcher")).Infow("Config reloaded",
		"path", cw.configPath)

	cw.mu.RLock()
	callbacks := make([]ReloadCallback, len(cw.callbacks))
	copy(callbacks, cw.callbacks)
	cw.mu.RUnlock()

	for _, callback := range callbacks {
		if err := callback(newConfig); err != nil {
			logger.Warnw("Config reload callback error",
				logger.FieldError, err)
			// Continue calling other callbacks even if one fails
		}
	}

	return nil
}

// Stop stops watching for config changes. Safe to call more than once.
func (cw *ConfigWatcher) Stop() error {
	var err error
	cw.stopOnce.Do(func() {
		close(cw.done)
		cw.mu.Lock()
		if cw.debounceTimer != nil {
			cw.debounceTimer.Stop()
		}
		cw.mu.Unlock()
		err = cw.watcher.Close()
	})
	return err
}

func loadValidated(explicitPath string) (*Config, error) {
	cfg, err := Load(explicitPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SetGlobalWatcher sets the global watcher instance (used to prevent reload loops)
func SetGlobalWatcher(watcher *ConfigWatcher) {
	globalWatcherMu.Lock()
	defer globalWatcherMu.Unlock()
	globalWatcher = watcher
}

// GetGlobalWatcher returns the global watcher instance
func GetGlobalWatcher() *ConfigWatcher {
	globalWatcherMu.Lock()
	defer globalWatcherMu.Unlock()
	return globalWatcher
}
