package emulator

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrROMNotFound = errors.New("rom not found")
	ErrROMTooSmall = errors.New("rom smaller than cartridge header")
)

// cartridge header layout
const (
	headerEnd   = 0x150
	titleStart  = 0x134
	titleEnd    = 0x144
	cgbFlagAddr = 0x143
)

type ROM struct {
	Path  string
	Title string
	// CGB is set for Game Boy Color aware cartridges
	CGB  bool
	Data []byte
}

// LoadROM reads and validates a cartridge image.
func LoadROM(path string) (*ROM, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", path, ErrROMNotFound)
		}
		return nil, err
	}
	if len(b) < headerEnd {
		return nil, fmt.Errorf("%s: %d bytes: %w", path, len(b), ErrROMTooSmall)
	}
	flag := b[cgbFlagAddr]
	cgb := flag == 0x80 || flag == 0xC0

	// on CGB cartridges the last title byte is the flag
	end := titleEnd
	if cgb {
		end = cgbFlagAddr
	}
	title := strings.TrimRight(string(b[titleStart:end]), "\x00 ")
	return &ROM{Path: path, Title: title, CGB: cgb, Data: b}, nil
}

// HasROMExtension reports whether path looks like a Game Boy ROM.
func HasROMExtension(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gb", ".gbc":
		return true
	}
	return false
}
