package pipeline

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/xerrors"

	"github.com/khaledhikmat/vs-feedback/model"
	"github.com/khaledhikmat/vs-feedback/service/device"
	"github.com/khaledhikmat/vs-feedback/service/lgr"
)

type captureSession struct {
	stream   device.Stream
	recorder device.Recorder
	started  time.Time

	mu     sync.Mutex
	chunks [][]byte
}

func (s *captureSession) appendChunk(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = append(s.chunks, chunk)
}

func (s *captureSession) data() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return bytes.Join(s.chunks, nil)
}

// capturer holds at most one recording session. A nil session means Idle.
type capturer struct {
	c *Controller

	mu      sync.Mutex
	session *captureSession
	closed  bool
}

func newCapturer(c *Controller) *capturer {
	return &capturer{c: c}
}

// start opens the device and starts the recorder. onStarted runs while the
// capturer lock is held so the Recording transition cannot interleave with a
// stop.
func (cp *capturer) start(ctx context.Context, onStarted func()) error {
	cp.mu.Lock()
	defer cp.mu.Unlock()

	if cp.closed {
		return ErrClosed
	}
	if cp.session != nil {
		return ErrAlreadyRecording
	}

	cfg := cp.c.svcs.CfgSvc
	stream, err := cp.c.svcs.DeviceSvc.Open(ctx, device.Constraints{
		DeviceID: cfg.GetCaptureDeviceID(),
		Video:    true,
		Audio:    cfg.GetCaptureAudio(),
		FPS:      cfg.GetCaptureFPS(),
	})
	if err != nil {
		return xerrors.Errorf("open capture device: %w", err)
	}

	recorder, err := stream.NewRecorder()
	if err != nil {
		releaseTracks(stream)
		return xerrors.Errorf("create recorder: %w", err)
	}

	session := &captureSession{
		stream:   stream,
		recorder: recorder,
		started:  time.Now(),
	}
	if err := recorder.Start(session.appendChunk); err != nil {
		releaseTracks(stream)
		return xerrors.Errorf("start recorder: %w", err)
	}

	if err := cp.c.svcs.Preview.Bind(stream); err != nil {
		lgr.Logger.Warn(
			"live preview unavailable",
			slog.String("stream", stream.ID()),
			slog.Any("error", err),
		)
	}

	cp.session = session
	onStarted()

	lgr.Logger.Info(
		"recording started",
		slog.String("stream", stream.ID()),
		slog.String("mediaType", recorder.MediaType()),
	)
	return nil
}

// stop ends the active session, releases every track and finalizes the
// buffered chunks. It is a no-op when idle. onStopped receives the blob, or
// nil when the recording is empty, while the capturer lock is held.
func (cp *capturer) stop(onStopped func(*model.VideoBlob)) (*model.VideoBlob, error) {
	cp.mu.Lock()
	defer cp.mu.Unlock()

	session := cp.session
	if session == nil {
		return nil, nil
	}
	cp.session = nil

	recErr := session.recorder.Stop()
	cp.c.svcs.Preview.Unbind()
	releaseTracks(session.stream)

	data := session.data()
	if len(data) == 0 {
		onStopped(nil)
		if recErr != nil {
			return nil, xerrors.Errorf("stop recorder: %w", recErr)
		}
		return nil, ErrEmptyRecording
	}

	blob := &model.VideoBlob{
		ID:        uuid.NewString(),
		Name:      "recording-" + session.started.Format("20060102-150405"),
		MediaType: session.recorder.MediaType(),
		Data:      data,
		Source:    model.BlobSourceCapture,
		CreatedAt: time.Now(),
	}
	onStopped(blob)

	lgr.Logger.Info(
		"recording stopped",
		slog.String("stream", session.stream.ID()),
		slog.Int("bytes", len(data)),
		slog.Duration("duration", time.Since(session.started)),
	)

	if recErr != nil {
		// The chunks up to the failure are still a usable recording.
		lgr.Logger.Warn("recorder stopped with error", slog.Any("error", recErr))
	}
	return blob, nil
}

// shutdown stops any active session and refuses further starts.
func (cp *capturer) shutdown(onStopped func(*model.VideoBlob)) error {
	cp.mu.Lock()
	cp.closed = true
	cp.mu.Unlock()

	_, err := cp.stop(onStopped)
	return err
}

func releaseTracks(stream device.Stream) {
	for _, t := range stream.Tracks() {
		t.Stop()
	}
}
