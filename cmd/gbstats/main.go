package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/EchoPBX/gbstats/internal/app"
	"github.com/EchoPBX/gbstats/internal/bridge"
	"github.com/EchoPBX/gbstats/internal/config"
	"github.com/EchoPBX/gbstats/internal/emulator"
	"github.com/EchoPBX/gbstats/internal/httpserver"
	"github.com/EchoPBX/gbstats/internal/logging"
	"github.com/EchoPBX/gbstats/internal/plugins"
	"github.com/EchoPBX/gbstats/internal/reloader"
	"github.com/EchoPBX/gbstats/internal/simulator"
	"go.uber.org/zap"
)

const framesPerSecond = 60

type options struct {
	headless bool
	debug    bool
	demo     bool
	duration int
	config   string
	rom      string
}

func parseArgs(args []string, stderr io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet("gbstats", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: gbstats [--headless] [--debug] [--config path] [--demo] [--duration N] rom_path")
		fs.PrintDefaults()
	}
	fs.BoolVar(&o.headless, "headless", false, "run without frame pacing")
	fs.BoolVar(&o.debug, "debug", false, "debug logging")
	fs.BoolVar(&o.demo, "demo", false, "drive the built-in simulator instead of the bridge")
	fs.IntVar(&o.duration, "duration", 0, "demo length in seconds (0 runs until interrupted)")
	fs.StringVar(&o.config, "config", os.Getenv("GBSTATS_CONFIG"), "config file")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return o, errors.New("expected exactly one rom_path")
	}
	if o.duration < 0 {
		return o, errors.New("--duration must not be negative")
	}
	o.rom = fs.Arg(0)
	return o, nil
}

// loadConfig reads the file when given and applies the flags on top.
func loadConfig(o options) (*config.Config, error) {
	cfg := config.Default()
	if o.config != "" {
		var err error
		if cfg, err = config.Load(o.config); err != nil {
			return nil, err
		}
	}
	if o.debug {
		cfg.Logging.Level = "debug"
	}
	if o.headless {
		cfg.Emulator.Headless = true
	}
	if o.demo {
		cfg.Emulator.Mode = config.ModeDemo
	}
	if o.duration > 0 {
		cfg.Demo.DurationSeconds = o.duration
	}
	return cfg, nil
}

func newMachine(cfg *config.Config, log *zap.Logger, rom *emulator.ROM) (emulator.Machine, int) {
	if cfg.Emulator.Mode == config.ModeBridge {
		// the external emulator sets the pace
		return bridge.New(bridge.Config{
			URL:      cfg.Bridge.URL,
			Token:    cfg.Bridge.Token,
			Insecure: cfg.Bridge.Insecure,
			ROM:      romName(rom),
		}, log.Named("bridge")), 0
	}
	sim := simulator.New(simulator.Config{
		Seed:      cfg.Demo.Seed,
		Duration:  cfg.Demo.DurationSeconds * framesPerSecond,
		Addresses: cfg.Emulator.Addresses,
		ROM:       rom,
	})
	if cfg.Emulator.Headless {
		return sim, 0
	}
	return sim, cfg.Emulator.FrameRate
}

func romName(rom *emulator.ROM) string {
	if rom.Title != "" {
		return rom.Title
	}
	return filepath.Base(rom.Path)
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	o, err := parseArgs(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(stderr, "gbstats:", err)
		return 1
	}

	cfg, err := loadConfig(o)
	if err != nil {
		fmt.Fprintln(stderr, "gbstats: config:", err)
		return 1
	}

	rom, err := emulator.LoadROM(o.rom)
	if err != nil {
		fmt.Fprintln(stderr, "gbstats:", err)
		return 1
	}

	logger, err := logging.New(logging.Cfg{
		Level: cfg.Logging.Level,
		JSON:  cfg.Logging.JSON,
		File:  cfg.Logging.File,
	})
	if err != nil {
		fmt.Fprintln(stderr, "gbstats: logging:", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()

	if !emulator.HasROMExtension(rom.Path) {
		logger.Warn("unexpected rom extension", zap.String("path", rom.Path))
	}

	// Banner
	fmt.Fprintln(stdout, `
   ____ ____      _        _
  / ___| __ ) ___| |_ __ _| |_ ___
 | |  _|  _ \/ __| __/ _  | __/ __|
 | |_| | |_) \__ \ || (_| | |_\__ \
  \____|____/|___/\__\__,_|\__|___/

Game Boy gameplay statistics
----------------------------
ROM:   `+romName(rom)+`
Mode:  `+cfg.Emulator.Mode+`
`)

	machine, fps := newMachine(cfg, logger, rom)
	a := app.New(cfg, logger, machine, stdout, app.WithROM(romName(rom)), app.WithFrameRate(fps))

	pluginMgr := plugins.NewManager(logger.Named("plugins"), a.Bus(), a)
	if cfg.Plugins.Manifest != "" {
		if err := pluginMgr.LoadManifest(cfg.Plugins.Manifest); err != nil {
			logger.Warn("plugin manifest", zap.Error(err))
		}
	}
	defer pluginMgr.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var srv *httpserver.Server
	var httpSrv *http.Server
	if cfg.HTTP.Enabled {
		srv, err = httpserver.New(cfg, logger.Named("http"), a)
		if err != nil {
			logger.Error("http server", zap.Error(err))
			return 1
		}
		httpSrv = &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.HTTP.Bind, cfg.HTTP.Port),
			Handler:           srv.Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			var err error
			if cfg.HTTP.TLS.Enabled {
				err = httpSrv.ListenAndServeTLS(cfg.HTTP.TLS.Cert, cfg.HTTP.TLS.Key)
			} else {
				err = httpSrv.ListenAndServe()
			}
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http", zap.Error(err))
				stop()
			}
		}()
		logger.Info("http listening", zap.String("addr", httpSrv.Addr))
	}

	// Hot reload on SIGHUP
	if o.config != "" {
		stopHUP := reloader.OnSIGHUP(func() {
			newCfg, err := loadConfig(o)
			if err != nil {
				logger.Warn("config reload failed", zap.Error(err))
				return
			}
			err = do(a, func() {
				a.Reload(newCfg)
				if newCfg.Plugins.Manifest != "" {
					pluginMgr.Reload(newCfg.Plugins.Manifest)
				}
			})
			if err != nil {
				logger.Warn("config reload failed", zap.Error(err))
				return
			}
			if srv != nil {
				srv.Reload(newCfg)
			}
			logger.Info("reloaded config and plugins")
		})
		defer stopHUP()
	}

	// SIGUSR1 prints a report without stopping the game
	stopUSR1 := reloader.OnSIGUSR1(func() {
		if err := do(a, a.GenerateReport); err != nil {
			logger.Warn("report request dropped", zap.Error(err))
		}
	})
	defer stopUSR1()

	if err := a.Run(ctx); err != nil {
		logger.Error("startup failed", zap.Error(err))
		return 1
	}

	if httpSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}
	logger.Info("bye")
	return 0
}

// do runs fn on the frame loop. The run context may already be cancelled
// when a signal arrives, so it doesn't bound the wait.
func do(a *app.App, fn func()) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return a.Do(ctx, fn)
}
