package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/strainrig/gauged/calibrate"
	"github.com/strainrig/gauged/config"
	"github.com/strainrig/gauged/hx711"
	"github.com/strainrig/gauged/logging"
	"github.com/strainrig/gauged/output"
	"github.com/strainrig/gauged/output/console"
	"github.com/strainrig/gauged/output/csvfile"
	mqttout "github.com/strainrig/gauged/output/mqtt"
	"github.com/strainrig/gauged/platform"
	"github.com/strainrig/gauged/util"
	"github.com/strainrig/gauged/viewer"
)

// App wires the acquisition stack together: port, converter device,
// calibration state, outputs and the optional viewer TUI.
type App struct {
	conf    *config.Config
	port    platform.Port
	device  *hx711.Device
	set     *calibrate.Set
	reader  *calibrate.Reader
	outputs []output.Output
	viewer  *viewer.Viewer
	watcher *config.Watcher
	latest  *util.AtomicEvent[output.Reading]

	mu       sync.Mutex
	tareConf config.TareConfig
	interval time.Duration

	ossignal   chan os.Signal
	stopsignal chan struct{}
	shutdownWg sync.WaitGroup
}

func NewApp(conf *config.Config, ossignal chan os.Signal) *App {
	return &App{
		conf:       conf,
		tareConf:   conf.Tare,
		interval:   conf.Outputs.Interval,
		latest:     util.NewAtomicEvent[output.Reading](),
		ossignal:   ossignal,
		stopsignal: make(chan struct{}),
	}
}

func (a *App) initialise(withViewer bool) error {
	var err error
	a.port, err = platform.Open(a.conf)
	if err != nil {
		return err
	}

	a.device, err = hx711.New(a.port, a.conf.Hardware)
	if err != nil {
		return err
	}

	a.set = calibrate.NewSet(a.device.NumChannels())
	a.reader = calibrate.NewReader(a.device, a.set)

	if err := a.buildOutputs(withViewer); err != nil {
		return err
	}

	a.watcher, err = config.NewWatcher(a.conf)
	if err != nil {
		slog.Warn("Config hot-reload disabled", "error", err)
	}

	a.tare()

	if withViewer {
		a.viewer = viewer.New(a.device.NumChannels(), a.conf.Viewer.HistorySize, a.set, a.ossignal, !a.conf.RealHW)
		a.shutdownWg.Add(1)
		go a.viewer.Start(a.stopsignal, &a.shutdownWg)
		a.shutdownWg.Add(1)
		go a.feedViewer()
	}

	a.shutdownWg.Add(1)
	go a.acquisitionLoop()
	return nil
}

func (a *App) buildOutputs(withViewer bool) error {
	// The console output and the viewer TUI share the terminal; the
	// viewer wins.
	if a.conf.Outputs.Console.Enabled && !withViewer {
		a.outputs = append(a.outputs, console.New())
	}
	if a.conf.Outputs.CSV.Enabled {
		out, err := csvfile.New(a.conf.Outputs.CSV.Path)
		if err != nil {
			return err
		}
		a.outputs = append(a.outputs, out)
	}
	if a.conf.Outputs.MQTT.Enabled {
		out, err := mqttout.New(a.conf.Outputs.MQTT)
		if err != nil {
			return err
		}
		a.outputs = append(a.outputs, out)
	}
	return nil
}

// tare runs the startup zero-calibration. A failed tare is logged but
// does not stop the daemon: readings are then served uncalibrated
// until the next successful run (triggered via SIGHUP).
func (a *App) tare() {
	a.mu.Lock()
	tc := a.tareConf
	a.mu.Unlock()

	// The readiness timeout is a per-sample budget; the whole run is
	// bounded by it times the sample count.
	timeout := a.conf.Hardware.ReadyTimeout * time.Duration(tc.SampleCount)
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	slog.Info("Starting tare", "samples", tc.SampleCount, "maxDeviationFactor", tc.MaxDeviationFactor)
	cal := calibrate.NewCalibrator(a.device, a.set)
	if err := cal.Tare(ctx, tc.SampleCount, tc.MaxDeviationFactor); err != nil {
		slog.Error("Tare failed, continuing with previous offsets", "error", err)
	}
}

// acquisitionLoop is the only goroutine toggling the shared clock line
// at runtime. It captures one calibrated reading per tick and fans it
// out to the outputs and the viewer.
func (a *App) acquisitionLoop() {
	defer a.shutdownWg.Done()

	a.mu.Lock()
	ticker := time.NewTicker(a.interval)
	a.mu.Unlock()
	defer ticker.Stop()

	var updates <-chan *config.Config
	if a.watcher != nil {
		updates = a.watcher.Updates()
	}

	for {
		select {
		case <-a.stopsignal:
			slog.Info("Ending acquisition loop...")
			return
		case conf := <-updates:
			a.applyRuntimeConfig(conf, ticker)
		case <-ticker.C:
			a.captureAndPublish()
		}
	}
}

func (a *App) captureAndPublish() {
	ctx, cancel := context.WithTimeout(context.Background(), a.conf.Hardware.ReadyTimeout)
	defer cancel()

	raw, values, err := a.reader.WaitRead(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			slog.Warn("Converters not ready within timeout", "channels", a.device.NotReadyChannels())
		} else {
			slog.Error("Acquisition failed", "error", err)
		}
		return
	}

	reading := output.Reading{Timestamp: time.Now(), Raw: raw, Values: values}
	for _, out := range a.outputs {
		if err := out.Publish(reading); err != nil {
			slog.Error("Output publish failed", "output", fmt.Sprintf("%T", out), "error", err)
		}
	}
	a.latest.Send(reading)
}

// applyRuntimeConfig takes over the runtime-tunable subset of a
// reloaded config file. Hardware wiring changes need a full restart
// via SIGHUP and are deliberately ignored here.
func (a *App) applyRuntimeConfig(conf *config.Config, ticker *time.Ticker) {
	a.mu.Lock()
	a.tareConf = conf.Tare
	if conf.Outputs.Interval != a.interval {
		a.interval = conf.Outputs.Interval
		ticker.Reset(a.interval)
	}
	a.mu.Unlock()
	slog.Info("Applied runtime config", "interval", conf.Outputs.Interval, "tareSamples", conf.Tare.SampleCount)
}

// feedViewer forwards the latest reading to the TUI. The AtomicEvent
// decouples it from the acquisition loop: a slow redraw never delays
// the clock line.
func (a *App) feedViewer() {
	defer a.shutdownWg.Done()
	for {
		select {
		case <-a.stopsignal:
			return
		case <-a.latest.Channel():
			a.viewer.Update(a.latest.Value().Values)
		}
	}
}

func (a *App) shutdown() {
	close(a.stopsignal)
	a.shutdownWg.Wait()

	// The TUI has released the terminal; flush the buffered log output
	// and log the rest of the shutdown live.
	if a.viewer != nil {
		if err := logging.SetOutput(os.Stderr); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
	}

	for _, out := range a.outputs {
		if err := out.Close(); err != nil {
			slog.Error("Error closing output", "output", fmt.Sprintf("%T", out), "error", err)
		}
	}
	if a.watcher != nil {
		a.watcher.Close()
	}
	if a.port != nil {
		if err := a.port.Close(); err != nil {
			slog.Error("Error closing port", "error", err)
		}
	}
}

func main() {
	cfile := flag.String("config", config.CONFILE, "path to the configuration file")
	realhw := flag.Bool("real-hw", false, "drive the real GPIO hardware instead of the simulation")
	showViewer := flag.Bool("viewer", false, "show the live channel viewer TUI")
	flag.Parse()

	ossignal := make(chan os.Signal, 1)
	signal.Notify(ossignal, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)

	for {
		conf, err := config.Load(*cfile, *realhw)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		withViewer := conf.Viewer.Enabled || *showViewer

		if err := logging.Init(withViewer, conf.Logging.Level, conf.Logging.Format,
			conf.Logging.LogToFile, conf.Logging.File); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}

		app := NewApp(conf, ossignal)
		if err := app.initialise(withViewer); err != nil {
			slog.Error("Failed to initialise", "error", err)
			logging.Close()
			os.Exit(1)
		}

		sig := <-ossignal
		slog.Info("Received signal", "signal", sig)
		app.shutdown()
		logging.Close()

		if sig != syscall.SIGHUP {
			return
		}
		slog.Info("Restarting after SIGHUP...")
	}
}
