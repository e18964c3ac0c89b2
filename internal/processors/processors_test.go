package processors

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/EchoPBX/gbstats/internal/events"
	"github.com/EchoPBX/gbstats/pkg/sdk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type fakeClock struct{ t time.Time }

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newBus(c *fakeClock) *events.Bus {
	return events.NewBus(events.WithClock(c.now))
}

func TestBattleCounter(t *testing.T) {
	clk := newFakeClock()
	bus := newBus(clk)
	p := NewBattleCounter(bus, zap.NewNop())

	stats := p.Statistics()
	assert.Equal(t, 0, stats["total_battles"])
	assert.Equal(t, 0.0, stats["win_rate"])
	assert.Nil(t, stats["last_battle_time"])

	bus.Publish(sdk.BattleStarted, nil)
	bus.Publish(sdk.BattleEnded, map[string]any{"won": true})

	stats = p.Statistics()
	assert.Equal(t, 1, stats["total_battles"])
	assert.Equal(t, 1, stats["battles_won"])
	assert.Equal(t, 0, stats["battles_lost"])
	assert.Equal(t, 1.0, stats["win_rate"])
	assert.Equal(t, clk.t, stats["last_battle_time"])
}

func TestBattleCounterResults(t *testing.T) {
	bus := newBus(newFakeClock())
	p := NewBattleCounter(bus, zap.NewNop())

	for _, result := range []string{"won", "lost", "unknown", "won"} {
		bus.Publish(sdk.BattleStarted, nil)
		bus.Publish(sdk.BattleEnded, map[string]any{"result": result})
	}
	bus.Publish(sdk.BattleEnded, map[string]any{"won": false})

	stats := p.Statistics()
	assert.Equal(t, 4, stats["total_battles"])
	assert.Equal(t, 2, stats["battles_won"])
	assert.Equal(t, 2, stats["battles_lost"])
	assert.Equal(t, 0.5, stats["win_rate"])
}

func TestStepCounter(t *testing.T) {
	bus := newBus(newFakeClock())
	p := NewStepCounter(bus, zap.NewNop())

	for _, d := range []string{"up", "up", "down", "left"} {
		bus.Publish(sdk.PlayerMoved, map[string]any{"direction": d})
	}

	stats := p.Statistics()
	assert.Equal(t, 4, stats["total_steps"])
	assert.Equal(t, map[string]int{"up": 2, "down": 1, "left": 1, "right": 0}, stats["steps_by_direction"])

	// the snapshot is a copy
	stats["steps_by_direction"].(map[string]int)["up"] = 99
	assert.Equal(t, 2, p.Statistics()["steps_by_direction"].(map[string]int)["up"])
}

func TestStepCounterUnknownDirection(t *testing.T) {
	bus := newBus(newFakeClock())
	p := NewStepCounter(bus, zap.NewNop())

	bus.Publish(sdk.PlayerMoved, map[string]any{"direction": "sideways"})
	bus.Publish(sdk.PlayerMoved, nil)

	stats := p.Statistics()
	assert.Equal(t, 2, stats["total_steps"])
	assert.Equal(t, map[string]int{"up": 0, "down": 0, "left": 0, "right": 0}, stats["steps_by_direction"])
}

func TestStepCounterLogsEveryHundred(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	bus := newBus(newFakeClock())
	NewStepCounter(bus, zap.New(core))

	for i := 0; i < 250; i++ {
		bus.Publish(sdk.PlayerMoved, map[string]any{"direction": "right"})
	}
	assert.Equal(t, 2, logs.FilterMessage("steps taken").Len())
}

func TestGameTimeTracker(t *testing.T) {
	clk := newFakeClock()
	bus := newBus(clk)
	p := NewGameTimeTracker(bus, zap.NewNop(), clk.now)

	assert.Equal(t, sdk.Statistics{"status": "not_started"}, p.Statistics())

	bus.Publish(sdk.GameStarted, nil)
	clk.advance(10 * time.Second)
	bus.Publish(sdk.GamePaused, nil)
	clk.advance(5 * time.Second)
	bus.Publish(sdk.GameResumed, nil)
	clk.advance(5 * time.Second)
	bus.Publish(sdk.GameEnded, nil)

	// later reads don't move an ended session
	clk.advance(time.Hour)

	stats := p.Statistics()
	assert.Equal(t, 20.0, stats["total_duration_seconds"])
	assert.Equal(t, 15.0, stats["active_duration_seconds"])
	assert.Equal(t, 1, stats["pause_count"])
	assert.Equal(t, 5.0, stats["total_pause_duration_seconds"])
	assert.NotNil(t, stats["end_time"])
}

func TestGameTimeTrackerOpenSession(t *testing.T) {
	clk := newFakeClock()
	bus := newBus(clk)
	p := NewGameTimeTracker(bus, zap.NewNop(), clk.now)

	bus.Publish(sdk.GameStarted, nil)
	clk.advance(4 * time.Second)
	bus.Publish(sdk.GamePaused, nil)
	bus.Publish(sdk.GamePaused, nil) // already paused
	clk.advance(6 * time.Second)

	stats := p.Statistics()
	assert.Equal(t, 10.0, stats["total_duration_seconds"])
	assert.Equal(t, 4.0, stats["active_duration_seconds"])
	assert.Equal(t, 0, stats["pause_count"])
	assert.Nil(t, stats["end_time"])

	// ending while paused closes the pause
	bus.Publish(sdk.GameEnded, nil)
	stats = p.Statistics()
	assert.Equal(t, 1, stats["pause_count"])
	assert.Equal(t, 4.0, stats["active_duration_seconds"])
}

func TestGameTimeTrackerResumeWithoutPause(t *testing.T) {
	clk := newFakeClock()
	bus := newBus(clk)
	p := NewGameTimeTracker(bus, zap.NewNop(), clk.now)

	bus.Publish(sdk.GameStarted, nil)
	bus.Publish(sdk.GameResumed, nil)
	assert.Equal(t, 0, p.Statistics()["pause_count"])
}

func TestHealthMonitor(t *testing.T) {
	bus := newBus(newFakeClock())
	p := NewHealthMonitor(bus, zap.NewNop())

	bus.Publish(sdk.PlayerDamaged, map[string]any{"damage": 30})
	bus.Publish(sdk.PlayerHealed, map[string]any{"healing": 10})
	bus.Publish(sdk.PlayerDamaged, map[string]any{"damage": 80})

	stats := p.Statistics()
	assert.Equal(t, 110, stats["total_damage_taken"])
	assert.Equal(t, 10, stats["total_healing_received"])
	assert.Equal(t, 1, stats["knockouts"])
	assert.Equal(t, 0, stats["current_health"])
	assert.Equal(t, 100, stats["net_damage"])
}

func TestHealthMonitorFaintCountedOnce(t *testing.T) {
	bus := newBus(newFakeClock())
	p := NewHealthMonitor(bus, zap.NewNop(), WithMaxHealth(50))

	// the watcher publishes damaged then fainted for the same knockout
	bus.Publish(sdk.PlayerDamaged, map[string]any{"damage": 50})
	bus.Publish(sdk.PlayerFainted, nil)
	assert.Equal(t, 1, p.Statistics()["knockouts"])

	bus.Publish(sdk.PlayerHealed, map[string]any{"healing": 80})
	assert.Equal(t, 50, p.Statistics()["current_health"])

	// a bare faint event counts on its own
	bus.Publish(sdk.PlayerFainted, nil)
	stats := p.Statistics()
	assert.Equal(t, 2, stats["knockouts"])
	assert.Equal(t, 0, stats["current_health"])
	assert.Equal(t, 50, stats["max_health"])
}

func TestInteractionTracker(t *testing.T) {
	bus := newBus(newFakeClock())
	p := NewInteractionTracker(bus, zap.NewNop())

	bus.Publish(sdk.NPCInteraction, map[string]any{"npc_id": 1})
	bus.Publish(sdk.NPCInteraction, nil)
	bus.Publish(sdk.ItemCollected, map[string]any{"item": "Potion"})
	bus.Publish(sdk.DoorOpened, nil)
	bus.Publish(sdk.MenuOpened, nil)
	bus.Publish(sdk.MenuOpened, nil)
	bus.Publish(sdk.MenuOpened, nil)

	assert.Equal(t, sdk.Statistics{
		"npc_interactions": 2,
		"items_collected":  1,
		"doors_opened":     1,
		"menus_opened":     3,
	}, p.Statistics())
}

type staticProvider struct {
	name  string
	stats sdk.Statistics
	calls int
}

func (s *staticProvider) Name() string { return s.name }
func (s *staticProvider) Statistics() sdk.Statistics {
	s.calls++
	return s.stats
}

func TestReportGenerator(t *testing.T) {
	clk := newFakeClock()
	bus := newBus(clk)
	var out bytes.Buffer

	a := &staticProvider{name: "alpha", stats: sdk.Statistics{"count": 3}}
	b := &staticProvider{name: "beta", stats: sdk.Statistics{"rate": 0.5}}
	p := NewReportGenerator(bus, zap.NewNop(), &out, clk.now, a, b)

	assert.Nil(t, p.Last())

	bus.Publish(sdk.GenerateReport, nil)
	assert.Equal(t, 1, a.calls)
	assert.Equal(t, 1, b.calls)
	assert.Equal(t, sdk.Statistics{"reports_generated": 1}, p.Statistics())

	bus.Publish(sdk.GameEnded, nil)
	assert.Equal(t, 2, a.calls)
	assert.Equal(t, sdk.Statistics{"reports_generated": 2}, p.Statistics())

	last := p.Last()
	require.NotNil(t, last)
	require.Len(t, last.Sections, 2)
	assert.Equal(t, "alpha", last.Sections[0].Name)
	assert.Equal(t, "beta", last.Sections[1].Name)
	assert.Contains(t, out.String(), "[ALPHA]\n  count: 3\n")
	assert.Contains(t, out.String(), "[BETA]\n  rate: 0.50\n")
}

func TestReportGeneratorAdd(t *testing.T) {
	bus := newBus(newFakeClock())
	var out bytes.Buffer
	p := NewReportGenerator(bus, zap.NewNop(), &out, nil)

	p.Add(&staticProvider{name: "plugin", stats: sdk.Statistics{"x": 1}})
	r := p.Generate()
	require.Len(t, r.Sections, 1)
	assert.Equal(t, "plugin", r.Sections[0].Name)

	// Generate neither renders nor counts
	assert.Empty(t, out.String())
	assert.Equal(t, 0, p.Statistics()["reports_generated"])
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("closed") }

func TestReportGeneratorWriteError(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	bus := events.NewBus(events.WithLogger(zap.New(core)))
	p := NewReportGenerator(bus, zap.NewNop(), failingWriter{}, nil)

	bus.Publish(sdk.GenerateReport, nil)
	assert.Equal(t, 1, logs.FilterMessage("subscriber callback failed").Len())
	assert.Equal(t, 1, p.Statistics()["reports_generated"])
}

func TestRender(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 30, 45, 0, time.UTC)
	r := Report{
		GeneratedAt: at,
		Sections: []Section{
			{Name: "step_counter", Statistics: sdk.Statistics{
				"total_steps":        4,
				"steps_by_direction": map[string]int{"up": 2, "down": 1, "left": 1, "right": 0},
			}},
			{Name: "game_time", Statistics: sdk.Statistics{
				"start_time":             at,
				"end_time":               nil,
				"total_duration_seconds": 20.0,
			}},
		},
	}

	want := "\n" +
		"============================================================\n" +
		"GAMEPLAY STATISTICS REPORT\n" +
		"Generated at: 2024-03-01 12:30:45\n" +
		"============================================================\n" +
		"\n" +
		"[STEP_COUNTER]\n" +
		"  steps_by_direction:\n" +
		"    down: 1\n" +
		"    left: 1\n" +
		"    right: 0\n" +
		"    up: 2\n" +
		"  total_steps: 4\n" +
		"\n" +
		"[GAME_TIME]\n" +
		"  end_time: -\n" +
		"  start_time: 2024-03-01 12:30:45\n" +
		"  total_duration_seconds: 20.00\n" +
		"\n" +
		"============================================================\n" +
		"\n"
	assert.Equal(t, want, Render(r))
	assert.Equal(t, Render(r), Render(r))
}
