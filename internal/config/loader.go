package config

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Loader reads Config from a YAML file and, once started, watches the
// file for changes and invokes OnChange with the newly parsed and
// defaulted Config. It exists for embeddings that run the pipeline
// outside a RoadRunner container, where there is no Configurer to hand
// the struct to.
type Loader struct {
	path     string
	logger   *zap.Logger
	watcher  *fsnotify.Watcher
	onChange func(*Config)

	mu  sync.Mutex
	cur *Config
}

// NewLoader creates a loader for the file at path. It does not read the
// file yet — call Load for that.
func NewLoader(path string, logger *zap.Logger) *Loader {
	return &Loader{path: path, logger: logger}
}

// Load reads and parses the config file once, applying defaults and
// validation. It does not start watching.
func (l *Loader) Load() (*Config, error) {
	raw, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("errwebhook: read config %q: %w", l.path, err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("errwebhook: parse config %q: %w", l.path, err)
	}

	cfg.InitDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("errwebhook: validate config %q: %w", l.path, err)
	}

	l.mu.Lock()
	l.cur = cfg
	l.mu.Unlock()

	return cfg, nil
}

// Current returns the most recently loaded config, or nil if Load has
// never succeeded.
func (l *Loader) Current() *Config {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cur
}

// Watch starts watching the config file for writes and calls onChange
// with the freshly reloaded Config on every write that parses and
// validates successfully. It returns once the watcher is set up; the
// watch loop runs in its own goroutine until ctx is cancelled. A reload that fails to parse or validate is logged once and
// the previous config keeps running unchanged.
func (l *Loader) Watch(ctx context.Context, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("errwebhook: create config watcher: %w", err)
	}
	l.watcher = watcher
	l.onChange = onChange

	if err := watcher.Add(l.path); err != nil {
		watcher.Close()
		return fmt.Errorf("errwebhook: watch config %q: %w", l.path, err)
	}

	go l.loop(ctx)
	return nil
}

func (l *Loader) loop(ctx context.Context) {
	defer l.watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			cfg, err := l.Load()
			if err != nil {
				l.logger.Warn("config reload failed, keeping previous config",
					zap.String("path", l.path), zap.Error(err))
				continue
			}

			l.logger.Info("config reloaded", zap.String("path", l.path))
			if l.onChange != nil {
				l.onChange(cfg)
			}

		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			l.logger.Warn("config watcher error", zap.Error(err))
		}
	}
}
