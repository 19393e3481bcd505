package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/itohio/gopfm/pkg/adc"
	"github.com/itohio/gopfm/pkg/config"
	"github.com/itohio/gopfm/pkg/meter"
	"github.com/itohio/gopfm/pkg/sample"
	"github.com/itohio/gopfm/pkg/sink"
)

// Exit codes.
const (
	exitOK     = 0
	exitConfig = 1
	exitSensor = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		portFlag        = flag.String("p", "", "Serial port override (e.g., COM3 or /dev/ttyACM0)")
		configFlag      = flag.String("config", "config.yaml", "Configuration file path")
		modeFlag        = flag.String("mode", "power", "Measurement mode: power, voltage or current")
		outputFlag      = flag.String("o", "", "Output CSV path override, - for stdout")
		mockFlag        = flag.Bool("mock", false, "Use synthetic channels instead of the configured ADC")
		guiFlag         = flag.Bool("gui", false, "Show a live plot window alongside the CSV output")
		portsFlag       = flag.Bool("ports", false, "List serial ports and exit")
		writeConfigFlag = flag.String("write-config", "", "Write the effective configuration to this path and exit")
	)
	flag.Parse()

	var logLevel slog.LevelVar
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: &logLevel}))

	if *portsFlag {
		ports, err := adc.Ports()
		if err != nil {
			logger.Error(err.Error())
			return exitSensor
		}
		for _, p := range ports {
			fmt.Println(p.Name)
		}
		return exitOK
	}

	cfg, err := config.Load(*configFlag)
	if err != nil {
		logger.Error(fmt.Sprintf("failed to load configuration: %s", err.Error()), slog.String("path", *configFlag))
		return exitConfig
	}

	if *portFlag != "" {
		cfg.ADC.Port = *portFlag
	}
	if *outputFlag != "" {
		cfg.Output.Path = *outputFlag
	}

	logLevel.Set(cfg.Level())

	if err := cfg.Validate(); err != nil {
		logger.Error(fmt.Sprintf("invalid configuration: %s", err.Error()), slog.String("path", *configFlag))
		return exitConfig
	}

	if *writeConfigFlag != "" {
		if err := cfg.Save(*writeConfigFlag); err != nil {
			logger.Error(err.Error())
			return exitConfig
		}
		return exitOK
	}

	mode, err := sink.ParseMode(*modeFlag)
	if err != nil {
		logger.Error(err.Error())
		return exitConfig
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *guiFlag {
		return measureWithDisplay(ctx, cfg, mode, *mockFlag, logger)
	}
	return measure(ctx, cfg, mode, *mockFlag, logger, nil)
}

// measure runs the selected mode until interrupted and maps the outcome to
// an exit code. wrap, if set, decorates the CSV sink.
func measure(ctx context.Context, cfg *config.Config, mode sink.Mode, mock bool, logger *slog.Logger, wrap func(sink.Sink) sink.Sink) int {
	hw, err := openHardware(cfg, mock)
	if err != nil {
		logger.Error(err.Error(), slog.String("port", cfg.ADC.Port))
		return exitSensor
	}
	defer hw.Close()

	w, err := openOutput(cfg.Output.Path)
	if err != nil {
		logger.Error(err.Error(), slog.String("path", cfg.Output.Path))
		return exitConfig
	}
	defer w.Close()

	csvOut, err := sink.NewCSV(w, mode, sink.WithFlushEachRow(cfg.Output.FlushEachRow), sink.WithLogger(logger))
	if err != nil {
		logger.Error(err.Error())
		return exitConfig
	}

	var out sink.Sink = csvOut
	if wrap != nil {
		out = wrap(out)
	}

	loop, err := buildLoop(ctx, cfg, mode, hw, out, sample.SystemClock{}, logger)
	if err != nil {
		if ctx.Err() != nil {
			return exitOK
		}
		logger.Error(err.Error())
		return exitSensor
	}

	logger.Info("press Ctrl+C to stop", slog.String("mode", mode.String()))

	if err := runMode(ctx, loop, mode); err != nil {
		var sensorErr *meter.SensorError
		if errors.As(err, &sensorErr) {
			logger.Error("measurement failed", slog.String("sensor", sensorErr.Sensor), slog.Any("error", sensorErr.Err))
			return exitSensor
		}
		logger.Error(err.Error())
		return exitSensor
	}

	logger.Info("measurement stopped by user")
	return exitOK
}
