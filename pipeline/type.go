package pipeline

import (
	"io"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/xerrors"

	"github.com/khaledhikmat/vs-feedback/model"
	"github.com/khaledhikmat/vs-feedback/service/config"
	"github.com/khaledhikmat/vs-feedback/service/device"
	"github.com/khaledhikmat/vs-feedback/service/geo"
	"github.com/khaledhikmat/vs-feedback/service/notify"
	"github.com/khaledhikmat/vs-feedback/service/push"
	"github.com/khaledhikmat/vs-feedback/service/upload"
)

var (
	ErrAlreadyRecording = xerrors.New("a recording is already in progress")
	ErrEmptyRecording   = xerrors.New("recording produced no data")
	ErrNothingToUpload  = xerrors.New("nothing to upload")
	ErrSuperseded       = xerrors.New("upload superseded by a newer upload")
	ErrClosed           = xerrors.New("controller closed")
)

// ServicesFactory carries the collaborators the controller is built from.
// Nil optional fields are replaced with inert defaults.
type ServicesFactory struct {
	CfgSvc    config.IService
	DeviceSvc device.IService
	Preview   device.Preview // optional
	UploadSvc upload.IService
	PushSvc   push.IService
	GeoSvc    geo.IService    // optional
	NotifySvc notify.IService // optional
	Tracer    trace.Tracer    // optional

	// DetectionLog receives one JSON line per detection update. Optional.
	DetectionLog io.Writer
}

func (svcs ServicesFactory) withDefaults() (ServicesFactory, error) {
	if svcs.CfgSvc == nil {
		svcs.CfgSvc = config.NewHardCoded()
	}
	if svcs.DeviceSvc == nil {
		return svcs, xerrors.New("services factory needs a device service")
	}
	if svcs.UploadSvc == nil {
		return svcs, xerrors.New("services factory needs an upload service")
	}
	if svcs.PushSvc == nil {
		return svcs, xerrors.New("services factory needs a push service")
	}
	if svcs.Preview == nil {
		svcs.Preview = device.NewNoopPreview()
	}
	if svcs.GeoSvc == nil {
		svcs.GeoSvc = geo.NewNone()
	}
	if svcs.NotifySvc == nil {
		svcs.NotifySvc = notify.NewMulti()
	}
	if svcs.Tracer == nil {
		svcs.Tracer = noop.NewTracerProvider().Tracer("pipeline")
	}
	return svcs, nil
}

// mutation runs on the controller loop, the only writer of view state and
// session stats.
type mutation func(st *model.ViewState, stats *model.SessionStats)
