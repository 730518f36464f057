package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
	"golang.org/x/xerrors"

	"github.com/khaledhikmat/vs-feedback/mode"
	"github.com/khaledhikmat/vs-feedback/pipeline"
	"github.com/khaledhikmat/vs-feedback/service/camera"
	"github.com/khaledhikmat/vs-feedback/service/config"
	"github.com/khaledhikmat/vs-feedback/service/data"
	"github.com/khaledhikmat/vs-feedback/service/device"
	"github.com/khaledhikmat/vs-feedback/service/geo"
	"github.com/khaledhikmat/vs-feedback/service/lgr"
	"github.com/khaledhikmat/vs-feedback/service/notify"
	"github.com/khaledhikmat/vs-feedback/service/push"
	"github.com/khaledhikmat/vs-feedback/service/upload"
)

const (
	// WARNING: this has to be bigger that the mode processor shutdown time
	waitOnShutdown = 8 * time.Second
)

var modeProcessors = map[string]mode.Processor{
	"session": mode.Session,
	"watch":   mode.Watch,
}

var configFlag = &cli.StringFlag{
	Name:    "config",
	Aliases: []string{"c"},
	Usage:   "YAML settings file (hardcoded defaults when empty)",
	EnvVars: []string{"VS_FEEDBACK_CONFIG"},
}

func main() {
	// Load env vars if we are in DEV mode
	if os.Getenv("RUN_TIME_ENV") == "dev" || os.Getenv("RUN_TIME_ENV") == "" {
		lgr.Logger.Info("loading env vars from .env file")
		if err := godotenv.Load(); err != nil {
			lgr.Logger.Warn("no .env file loaded", slog.Any("error", xerrors.New(err.Error())))
		}
	}

	app := &cli.App{
		Name:  "vs-feedback",
		Usage: "Record or pick a video, upload it and follow the processor's live feedback",
		Commands: []*cli.Command{
			{
				Name:  "session",
				Usage: "Record (or select a file), upload and follow processing",
				Flags: []cli.Flag{
					configFlag,
					&cli.StringFlag{
						Name:    "file",
						Aliases: []string{"f"},
						Usage:   "Upload this file instead of recording",
					},
					&cli.DurationFlag{
						Name:  "record",
						Value: 5 * time.Second,
						Usage: "How long to record when no file is given",
					},
					&cli.DurationFlag{
						Name:  "wait",
						Value: 2 * time.Minute,
						Usage: "How long to follow processing after the upload (0 = until done)",
					},
					&cli.BoolFlag{
						Name:  "preview",
						Usage: "Show the live camera feed while recording",
					},
				},
				Action: func(c *cli.Context) error {
					return run(c, "session", mode.Options{
						File:   c.String("file"),
						Record: c.Duration("record"),
						Wait:   c.Duration("wait"),
					})
				},
			},
			{
				Name:  "watch",
				Usage: "Follow processing and location updates without uploading",
				Flags: []cli.Flag{
					configFlag,
					&cli.DurationFlag{
						Name:  "for",
						Usage: "Stop after this long (0 = until interrupted)",
					},
				},
				Action: func(c *cli.Context) error {
					return run(c, "watch", mode.Options{
						Wait: c.Duration("for"),
					})
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		lgr.Logger.Error("vs-feedback exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(c *cli.Context, modeType string, opts mode.Options) error {
	modeProc, ok := modeProcessors[modeType]
	if !ok {
		return xerrors.Errorf("invalid mode: %s", modeType)
	}

	// Config service
	cfgSvc, err := loadConfig(c.String("config"))
	if err != nil {
		return err
	}

	logCloser := lgr.Init(cfgSvc.GetLogLevel(), cfgSvc.GetLogFile())
	defer logCloser.Close()

	canxCtx, canxFn := context.WithCancel(c.Context)
	defer canxFn()

	// Hook up a signal handler to cancel the context
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			lgr.Logger.Info(
				"received kill signal",
				slog.Any("signal", sig),
			)
			canxFn()
		case <-canxCtx.Done():
		}
	}()

	// Create the services needed for the mode processor
	svcs, closers, err := buildServices(cfgSvc, c.Bool("preview"))
	if err != nil {
		return err
	}
	defer func() {
		for _, cl := range closers {
			cl.Close()
		}
	}()

	// Data service
	dataSvc := data.NewFilesDB(cfgSvc)

	// Create mode processor result
	modeProcResult := make(chan error, 1)

	// Start the mode processor
	go func() {
		modeProcResult <- modeProc(canxCtx, svcs, dataSvc, opts)
	}()

	var procErr error

	// Wait for cancellation or mode proc
	for {
		select {
		case <-canxCtx.Done():
			lgr.Logger.Info(
				"vs-feedback context cancelled",
			)
			goto resume

		case procErr = <-modeProcResult:
			if procErr != nil {
				lgr.Logger.Info(
					"vs-feedback mode processor exited",
					slog.String("mode", modeType),
					slog.Any("error", xerrors.New(procErr.Error())),
				)
			}
			return procErr
		}
	}

	// Wait in a non-blocking way for `waitOnShutdown` for the mode processor to exit
	// This is needed because the mode processor may need to report errors as it is exiting
resume:
	lgr.Logger.Info(
		"vs-feedback is waiting for the mode processor to exit",
	)

	timer := time.NewTimer(waitOnShutdown)
	defer timer.Stop()

	select {
	case <-timer.C:
		lgr.Logger.Info(
			"vs-feedback shutdown waiting period expired. Exiting now",
			slog.Duration("period", waitOnShutdown),
		)
	case procErr = <-modeProcResult:
	}
	return procErr
}

func loadConfig(path string) (config.IService, error) {
	if path == "" {
		return config.NewHardCoded(), nil
	}
	return config.NewFile(path)
}

// buildServices wires the collaborators named by the config. The returned
// closers are released after the mode processor exits.
func buildServices(cfgSvc config.IService, withPreview bool) (pipeline.ServicesFactory, []io.Closer, error) {
	svcs := pipeline.ServicesFactory{
		CfgSvc:    cfgSvc,
		DeviceSvc: camera.NewOpenCV(),
		Preview:   device.NewNoopPreview(),
		UploadSvc: upload.NewHTTP(cfgSvc, nil, nil),
	}
	if withPreview {
		svcs.Preview = camera.NewWindowPreview("vs-feedback")
	}

	switch cfgSvc.GetPushKind() {
	case config.PushKindMQTT:
		svcs.PushSvc = push.NewMQTT(cfgSvc)
	default:
		svcs.PushSvc = push.NewWebsocket(cfgSvc)
	}

	switch cfgSvc.GetLocationSource() {
	case config.LocationSourceReplay:
		track, err := geo.LoadTrack(cfgSvc.GetLocationTrackFile())
		if err != nil {
			return svcs, nil, err
		}
		svcs.GeoSvc = geo.NewReplay(track)
	default:
		svcs.GeoSvc = geo.NewNone()
	}

	notifiers := []notify.IService{notify.NewConsole()}
	if cfgSvc.GetWebhookURL() != "" {
		notifiers = append(notifiers, notify.NewWebhook(cfgSvc))
	}
	svcs.NotifySvc = notify.NewMulti(notifiers...)

	var closers []io.Closer
	if file := cfgSvc.GetDetectionsLogFile(); file != "" {
		detections := lgr.NewRotatingFile(file, 10)
		svcs.DetectionLog = detections
		closers = append(closers, detections)
	}

	return svcs, closers, nil
}
