// Package emulator defines what the watcher needs from a Game Boy emulator:
// frame advance, start/stop and raw memory reads.
package emulator

import (
	"errors"
	"fmt"
)

// Machine is an emulator session.
type Machine interface {
	Start() error
	Stop() error
	// Tick advances one frame. It returns false once the emulator has
	// terminated.
	Tick() (bool, error)
	ReadMemory(addr uint16) (byte, error)
}

// Interrupter is implemented by machines whose Tick can block waiting on
// an outside source. Interrupt may be called from any goroutine and makes a
// pending or later Tick return false.
type Interrupter interface {
	Interrupt()
}

var ErrOutOfRange = errors.New("address out of range")

// Memory is a flat view of the 16-bit address space.
type Memory struct {
	data []byte
}

// NewMemory returns a memory window covering addresses [0, size).
func NewMemory(size int) *Memory {
	if size <= 0 || size > 0x10000 {
		size = 0x10000
	}
	return &Memory{data: make([]byte, size)}
}

func (m *Memory) Read(addr uint16) (byte, error) {
	if int(addr) >= len(m.data) {
		return 0, fmt.Errorf("read 0x%04X: %w", addr, ErrOutOfRange)
	}
	return m.data[addr], nil
}

func (m *Memory) Write(addr uint16, v byte) error {
	if int(addr) >= len(m.data) {
		return fmt.Errorf("write 0x%04X: %w", addr, ErrOutOfRange)
	}
	m.data[addr] = v
	return nil
}

// WriteBytes copies b starting at addr, truncating at the end of the window.
func (m *Memory) WriteBytes(addr uint16, b []byte) {
	if int(addr) >= len(m.data) {
		return
	}
	copy(m.data[addr:], b)
}
