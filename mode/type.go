package mode

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/khaledhikmat/vs-feedback/model"
	"github.com/khaledhikmat/vs-feedback/pipeline"
	"github.com/khaledhikmat/vs-feedback/service/data"
	"github.com/khaledhikmat/vs-feedback/service/lgr"
)

// Options are the per-run knobs a mode processor takes from the command line.
type Options struct {
	// File, when set, is uploaded instead of a fresh recording.
	File string
	// Record is how long to record when File is empty.
	Record time.Duration
	// Wait bounds how long to follow processing after the upload. Zero waits
	// until processing completes or the context is cancelled.
	Wait time.Duration
	// Out receives the rendered view. Defaults to stdout.
	Out io.Writer
}

type Processor func(canxCtx context.Context,
	svcs pipeline.ServicesFactory,
	dataSvc data.IService,
	opts Options) error

func procStats(datasvc data.IService, stats interface{}) {
	switch stats := stats.(type) {
	case model.SessionStats:
		procSessionStats(datasvc, stats)
	default:
		lgr.Logger.Error(
			"unknown stats type",
			slog.Any("stats", stats),
		)
	}
}

func procSessionStats(datasvc data.IService, stats model.SessionStats) {
	err := datasvc.NewSessionStats(stats)
	if err != nil {
		lgr.Logger.Error(
			"failed to store session stats",
			slog.Any("stats", stats),
			slog.Any("error", err),
		)
	}
}

func procError(datasvc data.IService, err interface{}) {
	errTemp := datasvc.NewError(err)
	if errTemp != nil {
		lgr.Logger.Error(
			"failed to store error",
			slog.Any("error", errTemp),
		)
	}
}

// drain waits up to period for late errors from components that are still
// exiting. It returns early once done is closed.
func drain(name string, period time.Duration, dataSvc data.IService, errorStream chan interface{}, done <-chan struct{}) {
	lgr.Logger.Info(
		name + " is waiting for all go routines to exit",
	)

	timer := time.NewTimer(period)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			lgr.Logger.Info(
				name+" shutdown waiting period expired. Exiting now",
				slog.Duration("period", period),
			)
			return

		case <-done:
			// Nothing else can report; flush what is queued.
			for {
				select {
				case e := <-errorStream:
					procError(dataSvc, e)
				default:
					return
				}
			}

		case e := <-errorStream:
			procError(dataSvc, e)
		}
	}
}
