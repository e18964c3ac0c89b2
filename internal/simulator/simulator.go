// Package simulator is a stand-in Game Boy that plays by itself. It writes
// plausible values to the watched addresses so the whole pipeline can run
// without an emulator core.
package simulator

import (
	"math/rand/v2"

	"github.com/EchoPBX/gbstats/internal/emulator"
	"github.com/EchoPBX/gbstats/internal/emuwatch"
)

const (
	defaultActEvery = 60
	maxHP           = 120
	maxBagItems     = 20
	romWindow       = 0x8000
)

type Config struct {
	Seed uint64
	// Duration in frames; 0 runs until Stop.
	Duration int
	// ActEvery is the number of frames between simulated actions.
	ActEvery  int
	Addresses emuwatch.Addresses
	ROM       *emulator.ROM
}

type Machine struct {
	cfg     Config
	mem     *emulator.Memory
	rng     *rand.Rand
	frame   int
	running bool

	x, y, mapID int
	hp          int
	battle      int
	rounds      int
	menu        bool
	// npc and door stay set for a single action
	npc, door int
	items     int
}

func New(cfg Config) *Machine {
	if cfg.ActEvery <= 0 {
		cfg.ActEvery = defaultActEvery
	}
	return &Machine{
		cfg: cfg,
		mem: emulator.NewMemory(0),
		rng: rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9E3779B97F4A7C15)),
	}
}

func (m *Machine) Start() error {
	if rom := m.cfg.ROM; rom != nil {
		n := min(len(rom.Data), romWindow)
		m.mem.WriteBytes(0, rom.Data[:n])
	}
	m.x, m.y, m.mapID = 5, 5, 1
	m.hp = maxHP
	m.running = true
	return m.sync()
}

func (m *Machine) Stop() error {
	m.running = false
	return nil
}

func (m *Machine) Tick() (bool, error) {
	if !m.running {
		return false, nil
	}
	m.frame++
	if m.frame%m.cfg.ActEvery == 0 {
		m.act()
		if err := m.sync(); err != nil {
			return false, err
		}
	}
	if m.cfg.Duration > 0 && m.frame >= m.cfg.Duration {
		m.running = false
	}
	return m.running, nil
}

func (m *Machine) ReadMemory(addr uint16) (byte, error) {
	return m.mem.Read(addr)
}

// Frame returns the number of emulated frames.
func (m *Machine) Frame() int { return m.frame }

func (m *Machine) act() {
	m.npc, m.door = 0, 0
	if m.battle != 0 {
		m.fight()
		return
	}

	r := m.rng.IntN(100)
	switch {
	case r < 50:
		m.walk()
	case r < 53:
		m.warp()
	case r < 60:
		m.battle = 1 + m.rng.IntN(2)
		m.rounds = 2 + m.rng.IntN(3)
	case r < 68:
		m.menu = !m.menu
	case r < 76 && m.hp < maxHP:
		m.hp = min(maxHP, m.hp+5+m.rng.IntN(20))
	case r < 84:
		m.npc = 1 + m.rng.IntN(15)
	case r < 90:
		if m.items < maxBagItems {
			m.items++
		}
	case r < 96:
		m.door = 1 + m.rng.IntN(8)
		m.warp()
	}
}

func (m *Machine) warp() {
	m.mapID = 1 + m.rng.IntN(40)
	m.x, m.y = m.rng.IntN(20), m.rng.IntN(18)
}

func (m *Machine) walk() {
	switch m.rng.IntN(4) {
	case 0:
		m.y--
	case 1:
		m.y++
	case 2:
		m.x--
	case 3:
		m.x++
	}
	m.x = clamp(m.x, 0, 255)
	m.y = clamp(m.y, 0, 255)
}

func (m *Machine) fight() {
	if m.rounds > 0 && m.hp > 0 {
		m.rounds--
		m.hp = max(0, m.hp-(3+m.rng.IntN(25)))
		return
	}
	m.battle = 0
	if m.hp == 0 {
		// back at the last center with full HP
		m.hp = maxHP
	}
}

type memWrite struct {
	addr uint16
	v    int
}

func (m *Machine) sync() error {
	a := m.cfg.Addresses
	menu := 0
	if m.menu {
		menu = 1
	}
	writes := []memWrite{
		{a.X, m.x},
		{a.Y, m.y},
		{a.Map, m.mapID},
		{a.HPHigh, m.hp >> 8},
		{a.HPLow, m.hp & 0xFF},
		{a.Battle, m.battle},
	}
	for _, opt := range []memWrite{
		{a.Menu, menu},
		{a.NPC, m.npc},
		{a.Items, m.items},
		{a.Door, m.door},
	} {
		if opt.addr != 0 {
			writes = append(writes, opt)
		}
	}
	for _, w := range writes {
		if err := m.mem.Write(w.addr, byte(w.v)); err != nil {
			return err
		}
	}
	return nil
}

func clamp(v, lo, hi int) int {
	return max(lo, min(hi, v))
}

var _ emulator.Machine = (*Machine)(nil)
