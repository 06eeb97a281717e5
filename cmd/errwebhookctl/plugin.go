package main

import (
	"go.uber.org/zap"

	"github.com/relayforge/errwebhook"
	"github.com/relayforge/errwebhook/internal/config"
)

// fileConfigurer satisfies errwebhook.Configurer over a Config already
// loaded from disk, so the CLI can hand Plugin.Init the same shape of
// dependency a RoadRunner Configurer plugin would.
type fileConfigurer struct {
	cfg *config.Config
}

func (f *fileConfigurer) Has(name string) bool { return name == errwebhook.PluginName }

func (f *fileConfigurer) UnmarshalKey(name string, out interface{}) error {
	dst, ok := out.(*config.Config)
	if !ok {
		return nil
	}
	*dst = *f.cfg
	return nil
}

// stderrLogger satisfies errwebhook.Logger with a single shared
// zap.Logger, since the CLI has no named-logger registry of its own.
type stderrLogger struct {
	log *zap.Logger
}

func (s stderrLogger) NamedLogger(name string) *zap.Logger { return s.log.Named(name) }

// buildPlugin loads the config at configPath and initializes a Plugin
// from it, the way RoadRunner's container would on boot.
func buildPlugin() (*errwebhook.Plugin, error) {
	log, err := zap.NewDevelopment()
	if err != nil {
		return nil, err
	}

	cfg, err := config.NewLoader(configPath, log).Load()
	if err != nil {
		return nil, err
	}

	p := &errwebhook.Plugin{}
	if err := p.Init(&fileConfigurer{cfg: cfg}, stderrLogger{log: log}); err != nil {
		return nil, err
	}
	return p, nil
}
