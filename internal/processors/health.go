package processors

import (
	"github.com/EchoPBX/gbstats/pkg/sdk"
	"go.uber.org/zap"
)

const defaultMaxHealth = 100

type HealthMonitor struct {
	log       *zap.Logger
	current   int
	max       int
	damage    int
	healing   int
	knockouts int
	// down is set once a faint has been counted, until the next heal
	down bool
}

type HealthOption func(*HealthMonitor)

// WithMaxHealth sets both the starting and the maximum HP.
func WithMaxHealth(hp int) HealthOption {
	return func(p *HealthMonitor) {
		p.max = hp
		p.current = hp
	}
}

func NewHealthMonitor(bus sdk.Bus, log *zap.Logger, opts ...HealthOption) *HealthMonitor {
	p := &HealthMonitor{log: log, current: defaultMaxHealth, max: defaultMaxHealth}
	for _, opt := range opts {
		opt(p)
	}
	bus.Subscribe(sdk.PlayerDamaged, p.onPlayerDamaged)
	bus.Subscribe(sdk.PlayerHealed, p.onPlayerHealed)
	bus.Subscribe(sdk.PlayerFainted, p.onPlayerFainted)
	return p
}

func (p *HealthMonitor) Name() string { return "health_monitor" }

func (p *HealthMonitor) onPlayerDamaged(ev sdk.Event) error {
	damage, _ := ev.Int("damage")
	if damage < 0 {
		damage = 0
	}
	p.damage += damage
	wasUp := p.current > 0
	p.current = max(0, p.current-damage)
	if wasUp && p.current == 0 {
		p.knockout()
	}
	p.log.Debug("player damaged", zap.Int("damage", damage), zap.Int("current", p.current))
	return nil
}

func (p *HealthMonitor) onPlayerHealed(ev sdk.Event) error {
	healing, _ := ev.Int("healing")
	if healing < 0 {
		healing = 0
	}
	p.healing += healing
	p.current = min(p.max, p.current+healing)
	if p.current > 0 {
		p.down = false
	}
	p.log.Debug("player healed", zap.Int("healing", healing), zap.Int("current", p.current))
	return nil
}

func (p *HealthMonitor) onPlayerFainted(sdk.Event) error {
	p.current = 0
	if !p.down {
		p.knockout()
	}
	return nil
}

func (p *HealthMonitor) knockout() {
	p.down = true
	p.knockouts++
	p.log.Info("player fainted", zap.Int("knockouts", p.knockouts))
}

func (p *HealthMonitor) Statistics() sdk.Statistics {
	return sdk.Statistics{
		"current_health":         p.current,
		"max_health":             p.max,
		"total_damage_taken":     p.damage,
		"total_healing_received": p.healing,
		"knockouts":              p.knockouts,
		"net_damage":             p.damage - p.healing,
	}
}
