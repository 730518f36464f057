package pipeline

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"golang.org/x/xerrors"

	"github.com/khaledhikmat/vs-feedback/model"
	"github.com/khaledhikmat/vs-feedback/service/lgr"
)

// listener applies push channel messages to processing state in arrival
// order. It is subscribed once and released once.
type listener struct {
	c *Controller

	mu         sync.Mutex
	started    bool
	subscribed bool
	done       chan struct{}
	closed     bool
	wg         sync.WaitGroup
}

func newListener(c *Controller) *listener {
	return &listener{
		c:    c,
		done: make(chan struct{}),
	}
}

func (l *listener) start(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started || l.closed {
		return
	}
	l.started = true

	msgs, err := l.c.svcs.PushSvc.Connect(ctx)
	if err != nil {
		l.c.notice(model.NoticeChannelUnavailable, "processing updates unavailable: "+err.Error(), "")
		l.c.reportError(model.GenError("event_listener", err, map[string]interface{}{}, "error subscribing to push channel"))
		return
	}

	lgr.Logger.Info("push channel subscribed")
	l.subscribed = true
	l.wg.Add(1)
	go l.run(msgs)
}

func (l *listener) run(msgs <-chan model.PushMessage) {
	defer l.wg.Done()

	step := l.c.svcs.CfgSvc.GetPreviewProgressStep()
	for {
		select {
		case <-l.done:
			return
		case msg, ok := <-msgs:
			if !ok {
				lgr.Logger.Info("push channel ended")
				return
			}
			l.handle(msg, step)
		}
	}
}

func (l *listener) handle(msg model.PushMessage, step int) {
	var preview []byte
	if msg.HasProgress && msg.Preview != "" && acceptsPreview(msg.Progress, step) {
		data, err := decodePreview(msg.Preview)
		if err != nil {
			lgr.Logger.Warn(
				"dropping undecodable preview",
				slog.Float64("progress", msg.Progress),
				slog.Any("error", err),
			)
		} else {
			preview = data
		}
	}

	if msg.HasObjects {
		l.logDetections(msg)
	}

	l.c.post(func(st *model.ViewState, stats *model.SessionStats) {
		// Messages may still be queued when the subscription is released.
		if l.isReleased() {
			return
		}
		if msg.HasProgress {
			st.Processing.Progress = clampProgress(msg.Progress)
			stats.ProcessingUpdates++
			if preview != nil {
				st.Processing.Preview = preview
				stats.PreviewsApplied++
			}
		}
		if msg.HasObjects {
			st.Processing.Objects = append([]model.DetectedObject{}, msg.Objects...)
			stats.DetectionUpdates++
		}
	})
}

func (l *listener) isReleased() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}

type detectionLine struct {
	Session    string                 `json:"session"`
	ReceivedAt time.Time              `json:"receivedAt"`
	Objects    []model.DetectedObject `json:"objects"`
}

func (l *listener) logDetections(msg model.PushMessage) {
	w := l.c.svcs.DetectionLog
	if w == nil {
		return
	}
	at := msg.ReceivedAt
	if at.IsZero() {
		at = time.Now()
	}
	b, err := json.Marshal(detectionLine{
		Session:    l.c.id,
		ReceivedAt: at,
		Objects:    msg.Objects,
	})
	if err != nil {
		lgr.Logger.Warn("error encoding detections", slog.Any("error", err))
		return
	}
	if _, err := w.Write(append(b, '\n')); err != nil {
		lgr.Logger.Warn("error writing detections log", slog.Any("error", err))
	}
}

// close releases the subscription. Repeated calls do nothing.
func (l *listener) close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	subscribed := l.subscribed
	close(l.done)
	l.mu.Unlock()

	if subscribed {
		if err := l.c.svcs.PushSvc.Close(); err != nil {
			lgr.Logger.Warn("error releasing push channel", slog.Any("error", err))
		}
	}
	l.wg.Wait()
}

// acceptsPreview reports whether a preview sent with progress should be
// shown. Previews are sampled at whole multiples of step; a step of one or
// less accepts every preview.
func acceptsPreview(progress float64, step int) bool {
	if step <= 1 {
		return true
	}
	if progress != math.Trunc(progress) {
		return false
	}
	return int(progress)%step == 0
}

func clampProgress(p float64) float64 {
	if math.IsNaN(p) || p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

func decodePreview(s string) ([]byte, error) {
	// data:image/jpeg;base64,....
	if strings.HasPrefix(s, "data:") {
		i := strings.Index(s, ",")
		if i < 0 {
			return nil, xerrors.New("preview data URI has no payload")
		}
		s = s[i+1:]
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err == nil {
		return data, nil
	}
	if raw, rerr := base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "=")); rerr == nil {
		return raw, nil
	}
	return nil, xerrors.Errorf("decode preview: %w", err)
}
