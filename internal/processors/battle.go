package processors

import (
	"time"

	"github.com/EchoPBX/gbstats/pkg/sdk"
	"go.uber.org/zap"
)

type BattleCounter struct {
	log        *zap.Logger
	total      int
	won        int
	lost       int
	lastBattle time.Time
}

func NewBattleCounter(bus sdk.Bus, log *zap.Logger) *BattleCounter {
	p := &BattleCounter{log: log}
	bus.Subscribe(sdk.BattleStarted, p.onBattleStarted)
	bus.Subscribe(sdk.BattleEnded, p.onBattleEnded)
	return p
}

func (p *BattleCounter) Name() string { return "battle_counter" }

func (p *BattleCounter) onBattleStarted(ev sdk.Event) error {
	p.total++
	p.lastBattle = ev.Timestamp
	p.log.Info("battle started", zap.Int("battle", p.total))
	return nil
}

func (p *BattleCounter) onBattleEnded(ev sdk.Event) error {
	result, _ := ev.String("result")
	if won, ok := ev.Payload["won"].(bool); ok {
		result = "lost"
		if won {
			result = "won"
		}
	}
	switch result {
	case "won":
		p.won++
	case "lost":
		p.lost++
	default:
		result = "unknown"
	}
	p.log.Info("battle ended", zap.String("result", result))
	return nil
}

func (p *BattleCounter) Statistics() sdk.Statistics {
	rate := 0.0
	if p.total > 0 {
		rate = float64(p.won) / float64(p.total)
	}
	var last any
	if !p.lastBattle.IsZero() {
		last = p.lastBattle
	}
	return sdk.Statistics{
		"total_battles":    p.total,
		"battles_won":      p.won,
		"battles_lost":     p.lost,
		"win_rate":         rate,
		"last_battle_time": last,
	}
}
