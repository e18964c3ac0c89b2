package processors

import (
	"github.com/EchoPBX/gbstats/pkg/sdk"
	"go.uber.org/zap"
)

// stepLogEvery is how often StepCounter logs its running total.
const stepLogEvery = 100

var directions = []string{"up", "down", "left", "right"}

type StepCounter struct {
	log         *zap.Logger
	total       int
	byDirection map[string]int
}

func NewStepCounter(bus sdk.Bus, log *zap.Logger) *StepCounter {
	p := &StepCounter{log: log, byDirection: make(map[string]int, len(directions))}
	for _, d := range directions {
		p.byDirection[d] = 0
	}
	bus.Subscribe(sdk.PlayerMoved, p.onPlayerMoved)
	return p
}

func (p *StepCounter) Name() string { return "step_counter" }

func (p *StepCounter) onPlayerMoved(ev sdk.Event) error {
	p.total++
	dir, _ := ev.String("direction")
	if _, ok := p.byDirection[dir]; ok {
		p.byDirection[dir]++
	}
	if p.total%stepLogEvery == 0 {
		p.log.Info("steps taken", zap.Int("total", p.total))
	}
	return nil
}

func (p *StepCounter) Statistics() sdk.Statistics {
	by := make(map[string]int, len(p.byDirection))
	for k, v := range p.byDirection {
		by[k] = v
	}
	return sdk.Statistics{
		"total_steps":        p.total,
		"steps_by_direction": by,
	}
}
