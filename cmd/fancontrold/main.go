// Command fancontrold is the EC fan-control daemon: it loads the selected
// fan configuration, drives the embedded controller's read/write registers
// through the threshold-selection control loop, and exposes the result
// over an in-process NATS bus for cmd/fanctl and the status TUI.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/oklog/run"
	"github.com/rs/zerolog"

	"github.com/ectherm/fancontrold/internal/control"
	"github.com/ectherm/fancontrold/internal/ecreader"
	"github.com/ectherm/fancontrold/internal/ectransport"
	"github.com/ectherm/fancontrold/internal/ecwriter"
	"github.com/ectherm/fancontrold/internal/ipcbus"
	"github.com/ectherm/fancontrold/internal/loader"
	"github.com/ectherm/fancontrold/internal/sensors"
	"github.com/ectherm/fancontrold/internal/setup"
	"github.com/ectherm/fancontrold/internal/settings"
)

// Version is set at build time via -ldflags, same convention as the
// client binary.
var Version = "dev"

const configsSubdir = "configs"

func main() {
	versionMode := flag.Bool("version", false, "Display version and exit")
	configDir := flag.String("config-dir", "", "Override the service config directory (default /etc/fancontrold)")
	flag.Parse()

	if *versionMode {
		fmt.Printf("fancontrold version %s\n", Version)
		return
	}

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	if *configDir != "" {
		os.Setenv("FANCONTROLD_CONFIG_DIR", *configDir)
	}

	if err := runDaemon(log); err != nil {
		log.Fatal().Err(err).Msg("fancontrold exited with error")
	}
}

func runDaemon(log zerolog.Logger) error {
	dir, err := settings.Dir()
	if err != nil {
		return fmt.Errorf("resolve settings dir: %w", err)
	}

	svcSettings, err := settings.Load(dir)
	if err != nil {
		log.Warn().Err(err).Msg("failed to load service settings, using defaults")
		svcSettings = settings.Default()
	}

	if err := setup.CheckAndSetup(setup.EcAccessMode(svcSettings.EcAccessMode)); err != nil {
		log.Warn().Err(err).Msg("ec_sys module not ready; RawPort/AcpiEc access may still work")
	}

	dev, err := ectransport.Open(ectransport.Mode(svcSettings.EcAccessMode))
	if err != nil {
		return fmt.Errorf("open ec transport: %w", err)
	}
	defer dev.Close()
	shared := ectransport.NewShared(dev)

	cfgLoader := loader.New([]string{filepath.Join(dir, configsSubdir)}, true)

	writer := ecwriter.New(shared)
	reader := ecreader.New(shared)

	sensorCollector, err := sensors.Discover()
	if err != nil {
		return fmt.Errorf("discover temperature sensors: %w", err)
	}

	tempCompute := control.TempComputeMethod(svcSettings.TempCompute)
	loop := control.New(cfgLoader, writer, reader, sensorCollector, tempCompute, log)

	if svcSettings.SelectedFanConfig != "" {
		if err := loop.InstallInitial(svcSettings.SelectedFanConfig); err != nil {
			log.Warn().Err(err).Str("config", svcSettings.SelectedFanConfig).Msg("failed to install selected fan config at startup")
		}
	} else {
		log.Info().Msg("no fan config selected yet; waiting for SetConfig")
	}

	bus, err := ipcbus.New(log, ipcbus.DefaultAddr)
	if err != nil {
		return fmt.Errorf("start ipc bus: %w", err)
	}
	defer bus.Close()

	var g run.Group

	ctx, cancel := context.WithCancel(context.Background())
	g.Add(func() error {
		return loop.Run(ctx)
	}, func(error) {
		cancel()
	})

	busCtx, busCancel := context.WithCancel(context.Background())
	g.Add(func() error {
		return ipcbus.ServeLoop(busCtx, bus, loop, cfgLoader)
	}, func(error) {
		busCancel()
	})

	sigCtx, sigCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	g.Add(func() error {
		<-sigCtx.Done()
		return nil
	}, func(error) {
		sigCancel()
	})

	if svcSettings.CheckControlConfig {
		watcher, err := cfgLoader.Watch()
		if err != nil {
			log.Warn().Err(err).Msg("failed to watch config directory for changes")
		} else {
			watchCtx, watchCancel := context.WithCancel(context.Background())
			g.Add(func() error {
				return watchConfigChanges(watchCtx, watcher, loop, svcSettings.SelectedFanConfig, log)
			}, func(error) {
				watchCancel()
				watcher.Close()
			})
		}
	}

	log.Info().Str("config_dir", dir).Msg("fancontrold started")
	return g.Run()
}

// watchConfigChanges reloads the selected fan config whenever the live
// directory watcher reports it changed on disk, so an operator editing a
// config file in place takes effect without a manual SetConfig.
func watchConfigChanges(ctx context.Context, w *loader.Watcher, loop *control.Loop, selected string, log zerolog.Logger) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Changes():
			if !ok {
				return nil
			}
			if ev.Removed || ev.Name != selected {
				continue
			}
			reply := make(chan error, 1)
			loop.Send(control.SetConfig{Name: ev.Name, Reply: reply})
			if err := <-reply; err != nil {
				log.Warn().Err(err).Str("config", ev.Name).Msg("failed to reload changed config")
			} else {
				log.Info().Str("config", ev.Name).Msg("reloaded changed config")
			}
		}
	}
}
