package sdk

// Plugin is the symbol a statistics plugin exports.
type Plugin interface {
	StatisticsProvider
	Init(ctx Context) error
	Stop() error
}
