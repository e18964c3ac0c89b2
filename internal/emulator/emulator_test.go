package emulator

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory(t *testing.T) {
	m := NewMemory(0)

	require.NoError(t, m.Write(0xD362, 7))
	v, err := m.Read(0xD362)
	require.NoError(t, err)
	assert.Equal(t, byte(7), v)

	v, err = m.Read(0xFFFF)
	require.NoError(t, err)
	assert.Equal(t, byte(0), v)
}

func TestMemoryOutOfRange(t *testing.T) {
	m := NewMemory(0x8000)

	_, err := m.Read(0xD057)
	assert.ErrorIs(t, err, ErrOutOfRange)
	assert.ErrorIs(t, m.Write(0x8000, 1), ErrOutOfRange)

	m.WriteBytes(0x7FFE, []byte{1, 2, 3})
	v, _ := m.Read(0x7FFF)
	assert.Equal(t, byte(2), v)
}

func writeROM(t *testing.T, name string, title string, cgbFlag byte, size int) string {
	t.Helper()
	b := make([]byte, size)
	if size >= headerEnd {
		copy(b[titleStart:], title)
		b[cgbFlagAddr] = cgbFlag
	}
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, b, 0o644))
	return path
}

func TestLoadROM(t *testing.T) {
	path := writeROM(t, "red.gb", "POKEMON RED", 0, 0x8000)

	rom, err := LoadROM(path)
	require.NoError(t, err)
	assert.Equal(t, "POKEMON RED", rom.Title)
	assert.False(t, rom.CGB)
	assert.Len(t, rom.Data, 0x8000)
}

func TestLoadROMColor(t *testing.T) {
	path := writeROM(t, "crystal.gbc", "PM_CRYSTAL", 0xC0, 0x8000)

	rom, err := LoadROM(path)
	require.NoError(t, err)
	assert.Equal(t, "PM_CRYSTAL", rom.Title)
	assert.True(t, rom.CGB)
}

func TestLoadROMErrors(t *testing.T) {
	_, err := LoadROM(filepath.Join(t.TempDir(), "missing.gb"))
	assert.ErrorIs(t, err, ErrROMNotFound)

	_, err = LoadROM(writeROM(t, "tiny.gb", "", 0, 0x100))
	assert.ErrorIs(t, err, ErrROMTooSmall)
}

func TestHasROMExtension(t *testing.T) {
	assert.True(t, HasROMExtension("a.gb"))
	assert.True(t, HasROMExtension("dir/b.GBC"))
	assert.False(t, HasROMExtension("c.zip"))
	assert.False(t, HasROMExtension("noext"))
}
