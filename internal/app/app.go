// Package app wires the bus, the processors and the emulator watcher
// together and runs the frame loop.
//
// Processors are not safe for concurrent use, so everything that reaches
// them from outside the loop (HTTP handlers, signal hooks) goes through Do,
// which runs the function on the loop goroutine between two frames.
package app

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/EchoPBX/gbstats/internal/config"
	"github.com/EchoPBX/gbstats/internal/emulator"
	"github.com/EchoPBX/gbstats/internal/emuwatch"
	"github.com/EchoPBX/gbstats/internal/events"
	"github.com/EchoPBX/gbstats/internal/metrics"
	"github.com/EchoPBX/gbstats/internal/processors"
	"github.com/EchoPBX/gbstats/pkg/sdk"
	"go.uber.org/zap"
)

type command struct {
	fn   func()
	done chan struct{}
}

type App struct {
	cfg     *config.Config
	log     *zap.Logger
	bus     *events.Bus
	metrics *metrics.Metrics
	watcher *emuwatch.Watcher
	machine emulator.Machine
	report  *processors.ReportGenerator

	frameRate int

	cmds chan command
	done chan struct{}
	// serializes Do callers once the loop is gone
	mu sync.Mutex
}

type Option func(*options)

type options struct {
	now       func() time.Time
	metrics   *metrics.Metrics
	rom       string
	frameRate int
}

// WithClock sets the clock for event timestamps and reports.
func WithClock(now func() time.Time) Option { return func(o *options) { o.now = now } }

func WithMetrics(m *metrics.Metrics) Option { return func(o *options) { o.metrics = m } }

// WithROM names the cartridge in the game_started payload.
func WithROM(name string) Option { return func(o *options) { o.rom = name } }

// WithFrameRate paces the loop. 0 runs as fast as the machine allows.
func WithFrameRate(fps int) Option { return func(o *options) { o.frameRate = fps } }

func New(cfg *config.Config, log *zap.Logger, machine emulator.Machine, out io.Writer, opts ...Option) *App {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.metrics == nil {
		o.metrics = metrics.New()
	}

	bus := events.NewBus(
		events.WithLogger(log.Named("bus")),
		events.WithClock(o.now),
		events.WithHistoryLimit(cfg.Bus.HistoryLimit),
		events.WithMetrics(o.metrics),
	)

	plog := log.Named("processors")
	providers := []sdk.StatisticsProvider{
		processors.NewBattleCounter(bus, plog),
		processors.NewStepCounter(bus, plog),
		processors.NewGameTimeTracker(bus, plog, o.now),
		processors.NewHealthMonitor(bus, plog, processors.WithMaxHealth(cfg.Health.MaxHP)),
		processors.NewInteractionTracker(bus, plog),
	}
	report := processors.NewReportGenerator(bus, plog, out, o.now, providers...)

	watcher := emuwatch.New(emuwatch.Config{
		ROM:          o.rom,
		PollInterval: cfg.Emulator.PollInterval,
		Addresses:    cfg.Emulator.Addresses,
	}, log.Named("watcher"), bus, machine, o.metrics)

	log.Info("components initialized", zap.Int("processors", len(providers)+1))

	return &App{
		cfg:       cfg,
		log:       log,
		bus:       bus,
		metrics:   o.metrics,
		watcher:   watcher,
		machine:   machine,
		report:    report,
		frameRate: o.frameRate,
		cmds:      make(chan command),
		done:      make(chan struct{}),
	}
}

func (a *App) Bus() *events.Bus                    { return a.bus }
func (a *App) Metrics() *metrics.Metrics           { return a.metrics }
func (a *App) Watcher() *emuwatch.Watcher          { return a.watcher }
func (a *App) Report() *processors.ReportGenerator { return a.report }

// AddProvider adds an extra statistics provider to the report. Call it
// before Run or through Do.
func (a *App) AddProvider(p sdk.StatisticsProvider) {
	a.report.Add(p)
}

// Run starts the emulator and ticks it until ctx is cancelled or the
// emulator stops. The error is non-nil only when the emulator could not be
// started.
func (a *App) Run(ctx context.Context) error {
	defer close(a.done)

	if err := a.watcher.Start(); err != nil {
		return err
	}

	// a machine blocked in Tick never gets back to the ctx check below
	if in, ok := a.machine.(emulator.Interrupter); ok {
		stop := context.AfterFunc(ctx, in.Interrupt)
		defer stop()
	}

	var tick <-chan time.Time
	if a.frameRate > 0 {
		t := time.NewTicker(time.Second / time.Duration(a.frameRate))
		defer t.Stop()
		tick = t.C
	}

loop:
	for {
		// paused or paced: wait for something to do
		if a.watcher.Paused() || tick != nil {
			var wake <-chan time.Time
			if !a.watcher.Paused() {
				wake = tick
			}
			select {
			case <-ctx.Done():
				break loop
			case c := <-a.cmds:
				a.exec(c)
				continue
			case <-wake:
			}
		} else {
			select {
			case <-ctx.Done():
				break loop
			case c := <-a.cmds:
				a.exec(c)
				continue
			default:
			}
		}

		if !a.watcher.Tick() {
			a.log.Info("emulator finished")
			break
		}
	}

	a.shutdown()
	return nil
}

func (a *App) shutdown() {
	a.log.Info("stopping")
	if err := a.watcher.Stop(); err != nil {
		a.log.Warn("stop", zap.Error(err))
	}
}

func (a *App) exec(c command) {
	c.fn()
	close(c.done)
}

// Do runs fn on the loop goroutine and waits for it. Once the loop has
// exited fn runs on the caller's goroutine.
func (a *App) Do(ctx context.Context, fn func()) error {
	c := command{fn: fn, done: make(chan struct{})}
	select {
	case a.cmds <- c:
	case <-a.done:
		a.mu.Lock()
		defer a.mu.Unlock()
		fn()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// GenerateReport publishes generate_report. Call it through Do while the
// loop is running.
func (a *App) GenerateReport() {
	a.bus.Publish(sdk.GenerateReport, nil)
}

// Snapshot collects every provider's statistics, including the report
// generator's own counter.
func (a *App) Snapshot() processors.Report {
	r := a.report.Generate()
	r.Sections = append(r.Sections, processors.Section{Name: a.report.Name(), Statistics: a.report.Statistics()})
	return r
}

// Reload applies the settings that can change while running.
func (a *App) Reload(cfg *config.Config) {
	a.watcher.SetPollInterval(cfg.Emulator.PollInterval)
	a.cfg = cfg
	a.log.Info("config reloaded", zap.Int("poll_interval", cfg.Emulator.PollInterval))
}
