package mode

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/khaledhikmat/vs-feedback/pipeline"
	"github.com/khaledhikmat/vs-feedback/service/data"
	"github.com/khaledhikmat/vs-feedback/service/lgr"
)

const watchRefreshPeriod = time.Second

// Watch follows the push channel and the location feed without capturing or
// uploading, printing the view whenever it changes.
func Watch(canxCtx context.Context, svcs pipeline.ServicesFactory, dataSvc data.IService, opts Options) error {
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}

	// Create an error stream
	errorStream := make(chan interface{}, 32)

	ctrl, err := pipeline.NewController(svcs, errorStream)
	if err != nil {
		return err
	}
	ctrl.Start()

	var deadline <-chan time.Time
	if opts.Wait > 0 {
		timer := time.NewTimer(opts.Wait)
		defer timer.Stop()
		deadline = timer.C
	}

	last := ""

	// Wait for cancellation, the deadline, a refresh or errors
	for {
		select {
		case <-canxCtx.Done():
			lgr.Logger.Info(
				"watch context cancelled",
			)
			goto resume

		case <-deadline:
			lgr.Logger.Info(
				"watch period elapsed",
				slog.Duration("period", opts.Wait),
			)
			goto resume

		case <-time.After(watchRefreshPeriod):
			if s := summary(ctrl.View()); s != last {
				last = s
				fmt.Fprintln(out, s)
			}

		case e := <-errorStream:
			procError(dataSvc, e)
		}
	}

resume:
	if err := ctrl.Close(); err != nil {
		lgr.Logger.Error("error closing controller", slog.Any("error", err))
	}
	procStats(dataSvc, ctrl.Stats())

	// The controller is closed: nothing reports after this point.
	closed := make(chan struct{})
	close(closed)
	drain("watch", time.Duration(svcs.CfgSvc.GetModeMaxShutdownTime())*time.Second, dataSvc, errorStream, closed)
	return nil
}
