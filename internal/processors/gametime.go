package processors

import (
	"time"

	"github.com/EchoPBX/gbstats/pkg/sdk"
	"go.uber.org/zap"
)

// GameTimeTracker measures session length from the timestamps of the
// lifecycle events.
type GameTimeTracker struct {
	log *zap.Logger
	now func() time.Time

	start      time.Time
	end        time.Time
	pauseStart time.Time
	paused     time.Duration
	pauses     int
}

func NewGameTimeTracker(bus sdk.Bus, log *zap.Logger, now func() time.Time) *GameTimeTracker {
	if now == nil {
		now = time.Now
	}
	p := &GameTimeTracker{log: log, now: now}
	bus.Subscribe(sdk.GameStarted, p.onGameStarted)
	bus.Subscribe(sdk.GameEnded, p.onGameEnded)
	bus.Subscribe(sdk.GamePaused, p.onGamePaused)
	bus.Subscribe(sdk.GameResumed, p.onGameResumed)
	return p
}

func (p *GameTimeTracker) Name() string { return "game_time" }

func (p *GameTimeTracker) onGameStarted(ev sdk.Event) error {
	p.start = ev.Timestamp
	p.log.Info("game started", zap.Time("at", p.start))
	return nil
}

func (p *GameTimeTracker) onGameEnded(ev sdk.Event) error {
	p.end = ev.Timestamp
	if !p.pauseStart.IsZero() {
		p.closePause(p.end)
	}
	p.log.Info("game ended", zap.Time("at", p.end))
	return nil
}

func (p *GameTimeTracker) onGamePaused(ev sdk.Event) error {
	if !p.pauseStart.IsZero() {
		return nil
	}
	p.pauseStart = ev.Timestamp
	p.log.Info("game paused")
	return nil
}

func (p *GameTimeTracker) onGameResumed(ev sdk.Event) error {
	if p.pauseStart.IsZero() {
		return nil
	}
	d := p.closePause(ev.Timestamp)
	p.log.Info("game resumed", zap.Duration("pause", d))
	return nil
}

func (p *GameTimeTracker) closePause(at time.Time) time.Duration {
	d := at.Sub(p.pauseStart)
	p.paused += d
	p.pauses++
	p.pauseStart = time.Time{}
	return d
}

func (p *GameTimeTracker) Statistics() sdk.Statistics {
	if p.start.IsZero() {
		return sdk.Statistics{"status": "not_started"}
	}

	end := p.end
	var endTime any
	if end.IsZero() {
		end = p.now()
	} else {
		endTime = p.end
	}
	paused := p.paused
	if !p.pauseStart.IsZero() {
		paused += end.Sub(p.pauseStart)
	}
	total := end.Sub(p.start)

	return sdk.Statistics{
		"start_time":                   p.start,
		"end_time":                     endTime,
		"total_duration_seconds":       total.Seconds(),
		"active_duration_seconds":      (total - paused).Seconds(),
		"pause_count":                  p.pauses,
		"total_pause_duration_seconds": paused.Seconds(),
	}
}
