package plugins

import (
	"github.com/EchoPBX/gbstats/pkg/sdk"
	"go.uber.org/zap"
)

type pluginContext struct {
	log    *zap.Logger
	bus    sdk.Bus
	config map[string]any
}

func newPluginContext(log *zap.Logger, bus sdk.Bus, cfg map[string]any) sdk.Context {
	if cfg == nil {
		cfg = map[string]any{}
	}
	return &pluginContext{log: log, bus: bus, config: cfg}
}

func (c *pluginContext) Log() *zap.Logger       { return c.log }
func (c *pluginContext) Bus() sdk.Bus           { return c.bus }
func (c *pluginContext) Config() map[string]any { return c.config }
