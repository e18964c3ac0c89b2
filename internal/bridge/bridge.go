// Package bridge attaches to an emulator running in another process. The
// emulator side streams one JSON frame per emulated frame over a websocket:
//
//	{"frame": 120, "memory": {"0xD362": 5, "0xD057": 0}, "stopped": false}
//
// Only the addresses that changed need to be sent; the bridge keeps a mirror
// of everything it has seen.
package bridge

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/EchoPBX/gbstats/internal/emulator"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type Config struct {
	URL      string
	Token    string
	Insecure bool
	// ROM is sent to the emulator side when attaching
	ROM string
}

// Frame is one message from the emulator side.
type Frame struct {
	Frame   int            `json:"frame"`
	Memory  map[string]int `json:"memory"`
	Stopped bool           `json:"stopped"`
}

type attach struct {
	Type string `json:"type"`
	ROM  string `json:"rom"`
}

type Machine struct {
	cfg   Config
	log   *zap.Logger
	mem   *emulator.Memory
	frame int

	// mu guards conn against Interrupt
	mu          sync.Mutex
	conn        *websocket.Conn
	interrupted atomic.Bool
}

func New(cfg Config, log *zap.Logger) *Machine {
	return &Machine{cfg: cfg, log: log, mem: emulator.NewMemory(0)}
}

func (m *Machine) Start() error {
	d := websocket.Dialer{
		TLSClientConfig:  &tls.Config{InsecureSkipVerify: m.cfg.Insecure},
		HandshakeTimeout: 10 * time.Second,
	}
	h := http.Header{"User-Agent": {"gbstats"}}
	if m.cfg.Token != "" {
		h.Set("Authorization", "Bearer "+m.cfg.Token)
	}
	conn, _, err := d.Dial(m.cfg.URL, h)
	if err != nil {
		return fmt.Errorf("dial %s: %w", m.cfg.URL, err)
	}
	if err := conn.WriteJSON(attach{Type: "attach", ROM: m.cfg.ROM}); err != nil {
		conn.Close()
		return fmt.Errorf("attach: %w", err)
	}
	m.mu.Lock()
	m.conn = conn
	m.mu.Unlock()
	m.log.Info("bridge connected", zap.String("url", m.cfg.URL))
	return nil
}

// Tick blocks until the next frame arrives.
func (m *Machine) Tick() (bool, error) {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil || m.interrupted.Load() {
		return false, nil
	}
	var f Frame
	if err := conn.ReadJSON(&f); err != nil {
		if m.interrupted.Load() {
			m.log.Info("bridge interrupted")
			return false, nil
		}
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			m.log.Info("bridge closed by emulator")
			return false, nil
		}
		return false, fmt.Errorf("read frame: %w", err)
	}
	for k, v := range f.Memory {
		addr, err := strconv.ParseUint(k, 0, 16)
		if err != nil {
			m.log.Warn("bad address in frame", zap.String("addr", k), zap.Int("frame", f.Frame))
			continue
		}
		if v < 0 || v > 0xFF {
			m.log.Warn("bad value in frame", zap.String("addr", k), zap.Int("value", v), zap.Int("frame", f.Frame))
			continue
		}
		if err := m.mem.Write(uint16(addr), byte(v)); err != nil {
			return false, err
		}
	}
	m.frame = f.Frame
	return !f.Stopped, nil
}

func (m *Machine) ReadMemory(addr uint16) (byte, error) {
	return m.mem.Read(addr)
}

// Interrupt closes the connection so a Tick blocked on a stalled emulator
// returns.
func (m *Machine) Interrupt() {
	m.interrupted.Store(true)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn != nil {
		_ = m.conn.Close()
	}
}

func (m *Machine) Stop() error {
	m.mu.Lock()
	conn := m.conn
	m.conn = nil
	m.mu.Unlock()
	if conn == nil {
		return nil
	}
	if m.interrupted.Load() {
		// already closed underneath
		_ = conn.Close()
		return nil
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")
	werr := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	cerr := conn.Close()
	if werr != nil && !errors.Is(werr, websocket.ErrCloseSent) {
		m.log.Debug("bridge close message", zap.Error(werr))
	}
	return cerr
}

// Frame returns the frame number of the last message.
func (m *Machine) Frame() int { return m.frame }

var (
	_ emulator.Machine     = (*Machine)(nil)
	_ emulator.Interrupter = (*Machine)(nil)
)
