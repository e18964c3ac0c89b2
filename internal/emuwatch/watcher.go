// Package emuwatch turns raw emulator memory into gameplay events.
//
// Every PollInterval frames the Watcher reads a fixed set of addresses,
// compares them with the previous reading and publishes what changed.
package emuwatch

import (
	"fmt"

	"github.com/EchoPBX/gbstats/internal/emulator"
	"github.com/EchoPBX/gbstats/internal/metrics"
	"github.com/EchoPBX/gbstats/pkg/sdk"
	"go.uber.org/zap"
)

// DefaultPollInterval is one poll per second at 60 FPS.
const DefaultPollInterval = 60

// Addresses locates the watched values in memory. A zero address disables
// the optional detections (Menu, NPC, Items, Door).
type Addresses struct {
	X      uint16 `yaml:"x"`
	Y      uint16 `yaml:"y"`
	Map    uint16 `yaml:"map"`
	HPHigh uint16 `yaml:"hp_high"`
	HPLow  uint16 `yaml:"hp_low"`
	Battle uint16 `yaml:"battle"`
	// Menu is nonzero while a menu or text box is shown
	Menu uint16 `yaml:"menu"`
	// NPC holds the id of the sprite being talked to, 0 otherwise
	NPC uint16 `yaml:"npc"`
	// Items is the number of items in the bag
	Items uint16 `yaml:"items"`
	// Door holds the id of the warp being entered, 0 otherwise
	Door uint16 `yaml:"door"`
}

// DefaultAddresses are the Pokémon Red/Blue locations.
func DefaultAddresses() Addresses {
	return Addresses{
		X:      0xD362,
		Y:      0xD361,
		Map:    0xD35E,
		HPHigh: 0xD16C,
		HPLow:  0xD16D,
		Battle: 0xD057,
		Menu:   0xD125,
		NPC:    0xFF8C,
		Items:  0xD31D,
		Door:   0xD42F,
	}
}

type Config struct {
	// ROM is reported in the game_started payload
	ROM          string
	PollInterval int
	Addresses    Addresses
}

type snapshot struct {
	valid  bool
	x, y   int
	mapID  int
	hp     int
	battle int
	menu   int
	npc    int
	items  int
	door   int
}

type Watcher struct {
	bus     sdk.Bus
	log     *zap.Logger
	machine emulator.Machine
	metrics *metrics.Metrics
	cfg     Config

	started bool
	paused  bool
	frames  int
	steps   int
	prev    snapshot
}

func New(cfg Config, log *zap.Logger, bus sdk.Bus, machine emulator.Machine, m *metrics.Metrics) *Watcher {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	return &Watcher{bus: bus, log: log, machine: machine, metrics: m, cfg: cfg}
}

// Start starts the emulator session and publishes game_started.
func (w *Watcher) Start() error {
	if w.started {
		return nil
	}
	if err := w.machine.Start(); err != nil {
		return fmt.Errorf("start emulator: %w", err)
	}
	w.started = true
	w.log.Info("emulator started", zap.String("rom", w.cfg.ROM))
	w.bus.Publish(sdk.GameStarted, map[string]any{"rom": w.cfg.ROM})
	return nil
}

// Stop publishes game_ended and stops the emulator. Calling it again is a
// no-op.
func (w *Watcher) Stop() error {
	if !w.started {
		return nil
	}
	w.started = false
	w.bus.Publish(sdk.GameEnded, map[string]any{
		"total_frames": w.frames,
		"total_steps":  w.steps,
	})
	if err := w.machine.Stop(); err != nil {
		return fmt.Errorf("stop emulator: %w", err)
	}
	w.log.Info("emulator stopped", zap.Int("frames", w.frames))
	return nil
}

// Tick advances the emulator one frame and runs detection when the poll
// interval is reached. It returns false when the loop should end.
func (w *Watcher) Tick() bool {
	if !w.started {
		return false
	}
	if w.paused {
		return true
	}

	running, err := w.machine.Tick()
	if err != nil {
		w.log.Error("emulation tick failed", zap.Error(err))
		return false
	}
	w.frames++
	if w.metrics != nil {
		w.metrics.Frames.Inc()
	}

	if w.frames%w.cfg.PollInterval == 0 {
		w.poll()
	}
	return running
}

// Pause freezes emulation and publishes game_paused.
func (w *Watcher) Pause() bool {
	if !w.started || w.paused {
		return false
	}
	w.paused = true
	w.bus.Publish(sdk.GamePaused, map[string]any{"frame": w.frames})
	return true
}

func (w *Watcher) Resume() bool {
	if !w.started || !w.paused {
		return false
	}
	w.paused = false
	w.bus.Publish(sdk.GameResumed, map[string]any{"frame": w.frames})
	return true
}

func (w *Watcher) SetPollInterval(n int) {
	if n <= 0 {
		n = DefaultPollInterval
	}
	w.cfg.PollInterval = n
}

func (w *Watcher) Frames() int  { return w.frames }
func (w *Watcher) Steps() int   { return w.steps }
func (w *Watcher) Paused() bool { return w.paused }

// poll runs one detection pass. A read error or a panic skips the pass and
// keeps the previous snapshot.
func (w *Watcher) poll() {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("event detection panicked", zap.Int("frame", w.frames), zap.Any("panic", r))
			w.countPoll("failed")
		}
	}()

	cur, err := w.read()
	if err != nil {
		w.log.Warn("event detection skipped", zap.Int("frame", w.frames), zap.Error(err))
		w.countPoll("failed")
		return
	}

	w.detect(w.prev, cur)
	w.prev = cur
	w.countPoll("ok")
}

func (w *Watcher) countPoll(outcome string) {
	if w.metrics != nil {
		w.metrics.Polls.WithLabelValues(outcome).Inc()
	}
}

type memRead struct {
	addr uint16
	dst  *int
}

func (w *Watcher) read() (snapshot, error) {
	a := w.cfg.Addresses
	var s snapshot
	var hi, lo int
	reads := []memRead{
		{a.X, &s.x},
		{a.Y, &s.y},
		{a.Map, &s.mapID},
		{a.HPHigh, &hi},
		{a.HPLow, &lo},
		{a.Battle, &s.battle},
	}
	for _, opt := range []memRead{
		{a.Menu, &s.menu},
		{a.NPC, &s.npc},
		{a.Items, &s.items},
		{a.Door, &s.door},
	} {
		if opt.addr != 0 {
			reads = append(reads, opt)
		}
	}
	for _, r := range reads {
		v, err := w.machine.ReadMemory(r.addr)
		if err != nil {
			return snapshot{}, err
		}
		*r.dst = int(v)
	}
	s.hp = hi<<8 | lo
	s.valid = true
	return s, nil
}

// detect publishes the events implied by the change from prev to cur. The
// first reading only seeds position and HP; battle and menu flags compare
// against zero so a session that boots into a battle still reports it.
func (w *Watcher) detect(prev, cur snapshot) {
	if prev.valid {
		w.detectMovement(prev, cur)
	}

	switch {
	case prev.battle == 0 && cur.battle != 0:
		w.log.Info("battle started", zap.Int("frame", w.frames))
		w.bus.Publish(sdk.BattleStarted, map[string]any{
			"frame":       w.frames,
			"battle_type": cur.battle,
		})
	case prev.battle != 0 && cur.battle == 0:
		w.log.Info("battle ended", zap.Int("frame", w.frames))
		// the outcome isn't visible in the watched memory
		w.bus.Publish(sdk.BattleEnded, map[string]any{
			"frame":  w.frames,
			"result": "unknown",
		})
	}

	if prev.valid {
		w.detectHealth(prev, cur)
	}

	w.detectInteractions(prev, cur)
}

// detectInteractions publishes the flag transitions for menus, NPCs and
// doors, and bag growth. Flags compare against zero on the first reading;
// the item count is only seeded.
func (w *Watcher) detectInteractions(prev, cur snapshot) {
	a := w.cfg.Addresses
	if a.Menu != 0 && prev.menu == 0 && cur.menu != 0 {
		w.bus.Publish(sdk.MenuOpened, map[string]any{"frame": w.frames})
	}
	if a.NPC != 0 && prev.npc == 0 && cur.npc != 0 {
		w.bus.Publish(sdk.NPCInteraction, map[string]any{
			"frame": w.frames,
			"npc":   cur.npc,
			"map":   cur.mapID,
		})
	}
	if a.Door != 0 && prev.door == 0 && cur.door != 0 {
		w.bus.Publish(sdk.DoorOpened, map[string]any{
			"frame": w.frames,
			"warp":  cur.door,
			"map":   cur.mapID,
		})
	}
	if a.Items != 0 && prev.valid {
		for n := prev.items; n < cur.items; n++ {
			w.bus.Publish(sdk.ItemCollected, map[string]any{
				"frame":     w.frames,
				"bag_count": n + 1,
			})
		}
	}
}

func (w *Watcher) detectMovement(prev, cur snapshot) {
	if prev.mapID != cur.mapID {
		w.bus.Publish(sdk.MapChanged, map[string]any{
			"from": prev.mapID,
			"to":   cur.mapID,
		})
		return
	}
	if prev.x == cur.x && prev.y == cur.y {
		return
	}
	w.steps++
	w.bus.Publish(sdk.PlayerMoved, map[string]any{
		"direction":   Direction(cur.x-prev.x, cur.y-prev.y),
		"x":           cur.x,
		"y":           cur.y,
		"map":         cur.mapID,
		"step_number": w.steps,
	})
}

func (w *Watcher) detectHealth(prev, cur snapshot) {
	switch {
	case cur.hp < prev.hp:
		w.bus.Publish(sdk.PlayerDamaged, map[string]any{
			"damage":          prev.hp - cur.hp,
			"current_health":  cur.hp,
			"previous_health": prev.hp,
		})
		if cur.hp == 0 {
			w.bus.Publish(sdk.PlayerFainted, map[string]any{"frame": w.frames})
		}
	case cur.hp > prev.hp:
		w.bus.Publish(sdk.PlayerHealed, map[string]any{
			"healing":         cur.hp - prev.hp,
			"current_health":  cur.hp,
			"previous_health": prev.hp,
		})
	}
}

// Direction names a position delta. When both axes change the axis with the
// larger absolute delta wins, and ties go to the vertical axis.
func Direction(dx, dy int) string {
	if abs(dx) > abs(dy) {
		if dx > 0 {
			return "right"
		}
		return "left"
	}
	switch {
	case dy > 0:
		return "down"
	case dy < 0:
		return "up"
	}
	return "none"
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
