// Package plugins loads extra statistics providers built as Go plugins.
package plugins

import (
	"encoding/json"
	"fmt"
	"os"
	"plugin"
	"sync"

	"github.com/EchoPBX/gbstats/pkg/sdk"
	"go.uber.org/zap"
)

// Manifest is the plugins.json file.
type Manifest struct {
	Plugins []Entry `json:"plugins"`
}

type Entry struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Path    string `json:"path"`
	// Symbol defaults to "Plugin"
	Symbol string         `json:"symbol"`
	Config map[string]any `json:"config"`
}

// Registry receives the providers of loaded plugins.
type Registry interface {
	AddProvider(p sdk.StatisticsProvider)
}

type opener func(path, symbol string) (sdk.Plugin, error)

// Manager owns the loaded plugins. Init and the registry calls run on
// the caller's goroutine, so call it from the app loop.
type Manager struct {
	log  *zap.Logger
	bus  sdk.Bus
	reg  Registry
	open opener

	mu      sync.RWMutex
	plugins map[string]sdk.Plugin
	order   []string
}

func NewManager(log *zap.Logger, bus sdk.Bus, reg Registry) *Manager {
	return &Manager{
		log:     log,
		bus:     bus,
		reg:     reg,
		open:    openGoPlugin,
		plugins: make(map[string]sdk.Plugin),
	}
}

// LoadManifest loads every entry not loaded yet. An entry that fails is
// logged and skipped.
func (m *Manager) LoadManifest(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	for _, e := range manifest.Plugins {
		if m.loaded(e.Name) {
			continue
		}
		if err := m.load(e); err != nil {
			m.log.Error("failed to load plugin", zap.String("name", e.Name), zap.Error(err))
		}
	}
	return nil
}

func (m *Manager) load(e Entry) error {
	if e.Name == "" {
		return fmt.Errorf("%s: missing name", e.Path)
	}
	sym := e.Symbol
	if sym == "" {
		sym = "Plugin"
	}
	p, err := m.open(e.Path, sym)
	if err != nil {
		return err
	}
	return m.register(e.Name, e.Version, e.Config, p)
}

// Register initializes a plugin linked into the binary and adds it to the
// report.
func (m *Manager) Register(name string, p sdk.Plugin, cfg map[string]any) error {
	if m.loaded(name) {
		return fmt.Errorf("plugin %q already loaded", name)
	}
	return m.register(name, "builtin", cfg, p)
}

func (m *Manager) register(name, version string, cfg map[string]any, p sdk.Plugin) error {
	ctx := newPluginContext(m.log.With(zap.String("plugin", name)), m.bus, cfg)
	if err := p.Init(ctx); err != nil {
		return fmt.Errorf("init %s: %w", name, err)
	}

	m.mu.Lock()
	m.plugins[name] = p
	m.order = append(m.order, name)
	m.mu.Unlock()

	m.reg.AddProvider(p)
	m.log.Info("plugin loaded",
		zap.String("name", name),
		zap.String("version", version),
		zap.String("provider", p.Name()))
	return nil
}

func (m *Manager) loaded(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.plugins[name]
	return ok
}

// Loaded returns the plugin names in load order.
func (m *Manager) Loaded() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.order...)
}

// Reload picks up entries added to the manifest since the last load. Go
// plugins can't be unloaded, so removed entries stay active.
func (m *Manager) Reload(path string) {
	if err := m.LoadManifest(path); err != nil {
		m.log.Warn("plugin reload failed", zap.Error(err))
	}
}

func (m *Manager) Shutdown() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, name := range m.order {
		if err := m.plugins[name].Stop(); err != nil {
			m.log.Warn("plugin stop failed", zap.String("name", name), zap.Error(err))
		}
	}
}

func openGoPlugin(path, symbol string) (sdk.Plugin, error) {
	p, err := plugin.Open(path)
	if err != nil {
		return nil, err
	}
	sym, err := p.Lookup(symbol)
	if err != nil {
		return nil, err
	}
	// an exported "var Plugin sdk.Plugin" looks up as *sdk.Plugin
	switch v := sym.(type) {
	case *sdk.Plugin:
		return *v, nil
	case sdk.Plugin:
		return v, nil
	}
	return nil, fmt.Errorf("%s: symbol %s is %T, not sdk.Plugin", path, symbol, sym)
}
