package pipeline

import (
	"context"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/xerrors"

	"github.com/khaledhikmat/vs-feedback/model"
	"github.com/khaledhikmat/vs-feedback/service/lgr"
)

// Controller binds capture, transfer, the push channel listener and the
// location sampler into one view state. All state mutations run on a single
// loop goroutine; components hand their updates to it with post or call.
type Controller struct {
	svcs        ServicesFactory
	id          string
	startTime   time.Time
	errorStream chan interface{}

	ctx    context.Context
	cancel context.CancelFunc

	mutations chan mutation
	stop      chan struct{}
	loopDone  chan struct{}

	// Loop-owned.
	state model.ViewState
	stats model.SessionStats

	mu         sync.Mutex
	snapshot   model.ViewState
	changed    chan struct{}
	finalStats *model.SessionStats

	capture  *capturer
	transfer *transferer
	listen   *listener
	sample   *sampler

	startOnce sync.Once
	closeOnce sync.Once
}

// NewController builds a controller and starts its loop. Errors are offered
// to errorStream without blocking; pass nil to only log them. Start must be
// called to bring up the push channel and the location watch.
func NewController(svcs ServicesFactory, errorStream chan interface{}) (*Controller, error) {
	svcs, err := svcs.withDefaults()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		svcs:        svcs,
		id:          uuid.NewString(),
		startTime:   time.Now(),
		errorStream: errorStream,
		ctx:         ctx,
		cancel:      cancel,
		mutations:   make(chan mutation, 256),
		stop:        make(chan struct{}),
		loopDone:    make(chan struct{}),
		changed:     make(chan struct{}),
	}
	c.state = model.ViewState{Capture: model.CaptureIdle}
	c.stats = model.SessionStats{ID: c.id}
	c.snapshot = c.state.Clone()

	c.capture = newCapturer(c)
	c.transfer = newTransferer(c)
	c.listen = newListener(c)
	c.sample = newSampler(c)

	go c.loop()
	return c, nil
}

// ID identifies this controller's session in logs and stats.
func (c *Controller) ID() string { return c.id }

// Start subscribes to the push channel and starts the location watch. A
// failure of either is surfaced as a notice and leaves that component inert.
func (c *Controller) Start() {
	c.startOnce.Do(func() {
		lgr.Logger.Info(
			"controller starting",
			slog.String("session", c.id),
		)
		c.listen.start(c.ctx)
		c.sample.start(c.ctx)
	})
}

// Close tears down every component exactly once: the recording (releasing
// the device), in-flight uploads, the push subscription and the location
// watch. No state changes after Close returns. Calling Close again is a
// no-op.
func (c *Controller) Close() error {
	c.closeOnce.Do(func() {
		lgr.Logger.Info(
			"controller closing",
			slog.String("session", c.id),
		)

		// Release the device while the loop can still record the transition.
		if err := c.capture.shutdown(c.captureStopped); err != nil && !xerrors.Is(err, ErrEmptyRecording) {
			lgr.Logger.Warn("error stopping recording on close", slog.Any("error", err))
		}

		c.cancel()
		c.listen.close()
		c.sample.wait()
		c.transfer.wait()

		close(c.stop)
		<-c.loopDone
	})
	return nil
}

// View returns the current state. The returned value is a copy.
func (c *Controller) View() model.ViewState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot.Clone()
}

// WaitFor blocks until cond holds for the current state, ctx is done or the
// controller is closed.
func (c *Controller) WaitFor(ctx context.Context, cond func(model.ViewState) bool) (model.ViewState, error) {
	for {
		c.mu.Lock()
		snap := c.snapshot.Clone()
		changed := c.changed
		c.mu.Unlock()

		if cond(snap) {
			return snap, nil
		}

		select {
		case <-changed:
		case <-ctx.Done():
			return snap, ctx.Err()
		case <-c.loopDone:
			return c.View(), ErrClosed
		}
	}
}

// Stats returns the session counters. After Close they are final.
func (c *Controller) Stats() model.SessionStats {
	c.mu.Lock()
	final := c.finalStats
	c.mu.Unlock()
	if final != nil {
		return *final
	}

	var stats model.SessionStats
	if err := c.call(func(_ *model.ViewState, s *model.SessionStats) {
		stats = *s
	}); err != nil {
		return c.Stats()
	}
	stats.Uptime = int64(time.Since(c.startTime).Seconds())
	return stats
}

// StartRecording opens the capture device and begins buffering chunks.
func (c *Controller) StartRecording(ctx context.Context) error {
	err := c.capture.start(ctx, func() {
		c.call(func(st *model.ViewState, stats *model.SessionStats) {
			st.Capture = model.CaptureRecording
			stats.Recordings++
		})
	})
	if err == nil || xerrors.Is(err, ErrAlreadyRecording) || xerrors.Is(err, ErrClosed) {
		return err
	}

	c.notice(model.NoticeCaptureUnavailable, "camera or microphone unavailable: "+err.Error(), "")
	c.reportError(model.GenError("capture_controller", err, map[string]interface{}{}, "error starting recording"))
	return err
}

// StopRecording finalizes the active recording into the current upload
// source and releases the device. It is a no-op when idle.
func (c *Controller) StopRecording() (*model.VideoBlob, error) {
	blob, err := c.capture.stop(c.captureStopped)
	if err != nil {
		c.reportError(model.GenError("capture_controller", err, map[string]interface{}{}, "error stopping recording"))
	}
	return blob, err
}

// captureStopped makes a finished recording the current upload source. An
// empty recording leaves the previous source in place.
func (c *Controller) captureStopped(blob *model.VideoBlob) {
	c.call(func(st *model.ViewState, _ *model.SessionStats) {
		st.Capture = model.CaptureIdle
		if blob != nil {
			st.Blob = blob
		}
	})
}

// SelectFile reads a video file and makes it the current upload source.
func (c *Controller) SelectFile(path string) (*model.VideoBlob, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, xerrors.Errorf("select file: %w", err)
	}
	if len(data) == 0 {
		return nil, xerrors.Errorf("select file %s: file is empty", path)
	}

	mediaType := mime.TypeByExtension(filepath.Ext(path))
	if mediaType == "" {
		mediaType = http.DetectContentType(data)
	}

	blob := &model.VideoBlob{
		ID:        uuid.NewString(),
		Name:      filepath.Base(path),
		MediaType: mediaType,
		Data:      data,
		Source:    model.BlobSourceFile,
		CreatedAt: time.Now(),
	}
	return blob, c.SelectBlob(blob)
}

// SelectBlob makes blob the current upload source.
func (c *Controller) SelectBlob(blob *model.VideoBlob) error {
	if blob == nil || blob.Size() == 0 {
		return ErrNothingToUpload
	}
	return c.call(func(st *model.ViewState, _ *model.SessionStats) {
		st.Blob = blob
	})
}

// Upload transfers the current source and blocks until the processor
// answers, ctx is done, the controller closes, or a newer Upload supersedes
// this one.
func (c *Controller) Upload(ctx context.Context) (string, error) {
	return c.transfer.upload(ctx)
}

func (c *Controller) loop() {
	defer close(c.loopDone)

	for {
		select {
		case m := <-c.mutations:
			c.apply(m)
		case <-c.stop:
			// Components are stopped: apply what they queued and exit.
			for {
				select {
				case m := <-c.mutations:
					c.apply(m)
				default:
					final := c.stats
					final.Uptime = int64(time.Since(c.startTime).Seconds())
					c.mu.Lock()
					c.finalStats = &final
					c.mu.Unlock()
					return
				}
			}
		}
	}
}

func (c *Controller) apply(m mutation) {
	m(&c.state, &c.stats)

	snap := c.state.Clone()
	c.mu.Lock()
	c.snapshot = snap
	close(c.changed)
	c.changed = make(chan struct{})
	c.mu.Unlock()
}

// post queues m without waiting. Once the loop has stopped, m is dropped.
func (c *Controller) post(m mutation) {
	select {
	case c.mutations <- m:
	case <-c.loopDone:
	}
}

// call runs m on the loop and waits for it to finish.
func (c *Controller) call(m mutation) error {
	done := make(chan struct{})
	wrapped := func(st *model.ViewState, stats *model.SessionStats) {
		defer close(done)
		m(st, stats)
	}

	select {
	case c.mutations <- wrapped:
	case <-c.loopDone:
		return ErrClosed
	}

	select {
	case <-done:
		return nil
	case <-c.loopDone:
		// The loop drains queued mutations before it exits.
		select {
		case <-done:
			return nil
		default:
			return ErrClosed
		}
	}
}

func (c *Controller) notice(kind model.NoticeKind, message, reference string) {
	n := model.Notice{
		Kind:      kind,
		Message:   message,
		Reference: reference,
		Timestamp: time.Now(),
	}
	c.post(func(st *model.ViewState, _ *model.SessionStats) {
		st.LastNotice = &n
	})

	if err := c.svcs.NotifySvc.Notify(context.WithoutCancel(c.ctx), n); err != nil {
		lgr.Logger.Warn(
			"error delivering notice",
			slog.String("kind", string(kind)),
			slog.Any("error", err),
		)
	}
}

func (c *Controller) reportError(e model.CustomError) {
	lgr.Logger.Error(
		e.Message,
		slog.String("processor", e.Processor),
		slog.Any("error", lgr.Traced(e.Inner)),
	)

	if c.errorStream == nil {
		return
	}
	select {
	case c.errorStream <- e:
	default:
		lgr.Logger.Warn("error stream full, dropping error", slog.String("processor", e.Processor))
	}
}
