package main

import (
	"context"
	"log/slog"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"github.com/itohio/gopfm/pkg/config"
	"github.com/itohio/gopfm/pkg/scope"
	"github.com/itohio/gopfm/pkg/sink"
)

// measureWithDisplay runs measure in the background and shows its records in
// a window. Closing the window stops the measurement; a finished measurement
// closes the window.
func measureWithDisplay(ctx context.Context, cfg *config.Config, mode sink.Mode, mock bool, logger *slog.Logger) int {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	application := app.NewWithID("com.itohio.gopfm")

	window := application.NewWindow("Power Factor Meter")
	window.Resize(fyne.NewSize(1200, 800))
	window.CenterOnScreen()

	plot := scope.New(scope.SeriesFor(mode), cfg.Display.History)
	window.SetContent(plot)
	window.SetOnClosed(cancel)

	done := make(chan int, 1)
	go func() {
		done <- measure(ctx, cfg, mode, mock, logger, func(out sink.Sink) sink.Sink {
			return scope.NewSink(out, plot)
		})
		fyne.Do(application.Quit)
	}()

	window.ShowAndRun()
	cancel()

	return <-done
}
