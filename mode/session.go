package mode

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/xerrors"

	"github.com/khaledhikmat/vs-feedback/model"
	"github.com/khaledhikmat/vs-feedback/pipeline"
	"github.com/khaledhikmat/vs-feedback/service/data"
	"github.com/khaledhikmat/vs-feedback/service/lgr"
)

// Session records a clip (or takes a file), uploads it and follows the
// processor's feedback until processing is done.
func Session(canxCtx context.Context, svcs pipeline.ServicesFactory, dataSvc data.IService, opts Options) error {
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

	result := make(chan error, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		result <- runSession(canxCtx, ctrl, svcs, opts)
	}()

	var sessionErr error

	// Wait for cancellation, the session workflow or errors
	for {
		select {
		case <-canxCtx.Done():
			lgr.Logger.Info(
				"session context cancelled",
			)
			goto resume

		case sessionErr = <-result:
			goto resume

		case e := <-errorStream:
			procError(dataSvc, e)
		}
	}

resume:
	if err := ctrl.Close(); err != nil {
		lgr.Logger.Error("error closing controller", slog.Any("error", err))
	}

	final := ctrl.View()
	renderView(out, final)
	procStats(dataSvc, ctrl.Stats())

	drain("session", time.Duration(svcs.CfgSvc.GetModeMaxShutdownTime())*time.Second, dataSvc, errorStream, done)

	return sessionErr
}

func runSession(ctx context.Context, ctrl *pipeline.Controller, svcs pipeline.ServicesFactory, opts Options) error {
	if opts.File != "" {
		blob, err := ctrl.SelectFile(opts.File)
		if err != nil {
			return err
		}
		lgr.Logger.Info(
			"selected file",
			slog.String("file", blob.Name),
			slog.Int("bytes", blob.Size()),
		)
	} else {
		if err := record(ctx, ctrl, opts.Record); err != nil {
			return err
		}
		if blob := ctrl.View().Blob; blob != nil {
			saveRecording(svcs.CfgSvc.GetRecordingsFolder(), blob)
		}
	}

	ref, err := ctrl.Upload(ctx)
	if err != nil {
		return err
	}
	lgr.Logger.Info(
		"processor accepted upload",
		slog.String("reference", ref),
	)

	waitCtx := ctx
	if opts.Wait > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, opts.Wait)
		defer cancel()
	}

	_, err = ctrl.WaitFor(waitCtx, func(v model.ViewState) bool {
		return v.Processing.Progress >= 100
	})
	if err != nil && ctx.Err() == nil {
		lgr.Logger.Warn(
			"processing did not complete in time",
			slog.Duration("wait", opts.Wait),
			slog.Any("error", err),
		)
	}
	return nil
}

func record(ctx context.Context, ctrl *pipeline.Controller, duration time.Duration) error {
	if duration <= 0 {
		return xerrors.New("record duration must be positive")
	}
	if err := ctrl.StartRecording(ctx); err != nil {
		return err
	}

	lgr.Logger.Info(
		"recording",
		slog.Duration("duration", duration),
	)

	timer := time.NewTimer(duration)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}

	_, err := ctrl.StopRecording()
	if err != nil {
		return err
	}
	return ctx.Err()
}

// saveRecording keeps a local copy of a recording. Failures only warn: the
// in-memory blob is still uploaded.
func saveRecording(folder string, blob *model.VideoBlob) {
	if folder == "" {
		return
	}
	if err := os.MkdirAll(folder, 0o755); err != nil {
		lgr.Logger.Warn("error creating recordings folder", slog.Any("error", err))
		return
	}

	path := filepath.Join(folder, blob.Name+extensionFor(blob.MediaType))
	if err := os.WriteFile(path, blob.Data, 0o644); err != nil {
		lgr.Logger.Warn("error saving recording", slog.String("path", path), slog.Any("error", err))
		return
	}
	lgr.Logger.Info("recording saved", slog.String("path", path))
}

func extensionFor(mediaType string) string {
	switch mediaType {
	case "video/webm":
		return ".webm"
	case "video/mp4":
		return ".mp4"
	case "video/x-motion-jpeg":
		return ".mjpeg"
	default:
		return ".bin"
	}
}
