package mode

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/khaledhikmat/vs-feedback/model"
	"github.com/khaledhikmat/vs-feedback/pipeline"
	"github.com/khaledhikmat/vs-feedback/service/config"
	"github.com/khaledhikmat/vs-feedback/service/device"
	"github.com/khaledhikmat/vs-feedback/service/geo"
	"github.com/khaledhikmat/vs-feedback/service/notify"
	"github.com/khaledhikmat/vs-feedback/service/push"
	"github.com/khaledhikmat/vs-feedback/service/upload"
)

type memData struct {
	mu     sync.Mutex
	errors []interface{}
	stats  []model.SessionStats
}

func (d *memData) NewError(err interface{}) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.errors = append(d.errors, err)
	return nil
}

func (d *memData) NewSessionStats(stats model.SessionStats) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stats = append(d.stats, stats)
	return nil
}

type modeConfig struct {
	config.IService
	recordings string
}

func (c modeConfig) GetModeMaxShutdownTime() int        { return 1 }
func (c modeConfig) GetRecordingsFolder() string        { return c.recordings }
func (c modeConfig) GetLocationThrottle() time.Duration { return 50 * time.Millisecond }

func newServices(t *testing.T, up upload.IService) (pipeline.ServicesFactory, *push.Fake) {
	t.Helper()
	pushSvc := push.NewFake()
	return pipeline.ServicesFactory{
		CfgSvc:    modeConfig{IService: config.NewHardCoded(), recordings: t.TempDir()},
		DeviceSvc: device.NewFake(),
		UploadSvc: up,
		PushSvc:   pushSvc,
		GeoSvc:    geo.NewFake(),
		NotifySvc: notify.NewRecorder(),
	}, pushSvc
}

// pushingUpload completes processing on the push channel once the transfer
// itself has finished.
type pushingUpload struct {
	*upload.Fake
	push *push.Fake
}

func (u pushingUpload) Upload(ctx context.Context, blob *model.VideoBlob, onProgress upload.ProgressFunc) (string, error) {
	ref, err := u.Fake.Upload(ctx, blob, onProgress)
	if err == nil {
		go func() {
			time.Sleep(20 * time.Millisecond)
			u.push.Send(model.PushMessage{HasObjects: true, Objects: []model.DetectedObject{{Class: "car"}, {Class: "car"}}})
			u.push.Send(model.PushMessage{HasProgress: true, Progress: 100})
		}()
	}
	return ref, err
}

func TestSession_RecordUploadAndFollow(t *testing.T) {
	up := &pushingUpload{Fake: upload.NewFake("out/clip.mp4")}
	svcs, pushSvc := newServices(t, up)
	up.push = pushSvc
	dataSvc := &memData{}
	out := &bytes.Buffer{}

	err := Session(context.Background(), svcs, dataSvc, Options{
		Record: 20 * time.Millisecond,
		Wait:   2 * time.Second,
		Out:    out,
	})
	if err != nil {
		t.Fatalf("Session: %v", err)
	}

	text := out.String()
	for _, want := range []string{"100% out/clip.mp4", "car:2"} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q:\n%s", want, text)
		}
	}

	if len(dataSvc.stats) != 1 {
		t.Fatalf("stats stored = %d, want 1", len(dataSvc.stats))
	}
	s := dataSvc.stats[0]
	if s.Recordings != 1 || s.Uploads != 1 || s.DetectionUpdates != 1 {
		t.Errorf("stats = %+v", s)
	}

	saved, _ := filepath.Glob(filepath.Join(svcs.CfgSvc.GetRecordingsFolder(), "recording-*.webm"))
	if len(saved) != 1 {
		t.Errorf("saved recordings = %v, want one", saved)
	}
	if pushSvc.Releases() != 1 {
		t.Errorf("push releases = %d, want 1", pushSvc.Releases())
	}
}

func TestSession_UploadFileFailure(t *testing.T) {
	up := upload.NewFake("")
	up.Err = &upload.StatusError{Code: 502, Body: "bad gateway"}
	svcs, _ := newServices(t, up)
	dataSvc := &memData{}

	path := filepath.Join(t.TempDir(), "clip.mp4")
	if err := os.WriteFile(path, []byte("video bytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	err := Session(context.Background(), svcs, dataSvc, Options{File: path, Out: &bytes.Buffer{}})
	if err == nil || !strings.Contains(err.Error(), "502") {
		t.Fatalf("Session = %v, want the status error", err)
	}
	if len(dataSvc.errors) == 0 {
		t.Error("no error stored")
	}
}

func TestWatch_PrintsChanges(t *testing.T) {
	svcs, pushSvc := newServices(t, upload.NewFake("x"))
	dataSvc := &memData{}
	out := &bytes.Buffer{}

	go func() {
		time.Sleep(50 * time.Millisecond)
		pushSvc.Send(model.PushMessage{HasProgress: true, Progress: 55})
	}()

	if err := Watch(context.Background(), svcs, dataSvc, Options{Wait: 1500 * time.Millisecond, Out: out}); err != nil {
		t.Fatalf("Watch: %v", err)
	}
	if !strings.Contains(out.String(), "processing=55%") {
		t.Errorf("output = %q", out.String())
	}
	if len(dataSvc.stats) != 1 || dataSvc.stats[0].ProcessingUpdates != 1 {
		t.Errorf("stats = %+v", dataSvc.stats)
	}
}

func TestObjectCounts(t *testing.T) {
	got := objectCounts([]model.DetectedObject{{Class: "person"}, {Class: "car"}, {Class: "person"}})
	if got != "car:1,person:2" {
		t.Errorf("objectCounts = %q", got)
	}
	if objectCounts(nil) != "-" {
		t.Error("objectCounts(nil) should be -")
	}
}
