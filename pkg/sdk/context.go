package sdk

import "go.uber.org/zap"

// Context is handed to Plugin.Init. Config holds the plugin's entry from
// the manifest.
type Context interface {
	Log() *zap.Logger
	Bus() Bus
	Config() map[string]any
}
