package pipeline

import (
	"context"
	"log/slog"
	"math"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/xerrors"

	"github.com/khaledhikmat/vs-feedback/model"
	"github.com/khaledhikmat/vs-feedback/service/lgr"
)

type attempt struct {
	id     string
	cancel context.CancelFunc
}

// transferer runs uploads. Only the newest attempt may write transfer state;
// starting an attempt cancels the previous one.
type transferer struct {
	c *Controller

	mu      sync.Mutex
	current *attempt
	closed  bool
	wg      sync.WaitGroup
}

func newTransferer(c *Controller) *transferer {
	return &transferer{c: c}
}

func (t *transferer) upload(ctx context.Context) (string, error) {
	a, blob, ctx, err := t.begin(ctx)
	if err != nil {
		return "", err
	}
	defer t.wg.Done()
	defer t.finish(a)

	ctx, span := t.c.svcs.Tracer.Start(ctx, "transfer", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	lgr.Logger.Info(
		"upload started",
		slog.String("attempt", a.id),
		slog.String("blob", blob.ID),
		slog.Int("bytes", blob.Size()),
	)

	last := 0
	ref, err := t.c.svcs.UploadSvc.Upload(ctx, blob, func(sent, total int64) {
		pct := percent(sent, total)
		if pct <= last {
			return
		}
		last = pct
		t.c.post(func(st *model.ViewState, _ *model.SessionStats) {
			if st.Transfer.AttemptID != a.id || !st.Transfer.InFlight {
				return
			}
			if pct > st.Transfer.Progress {
				st.Transfer.Progress = pct
			}
		})
	})
	if err != nil {
		span.RecordError(err)
		return "", t.failed(a, err)
	}

	current := false
	if cerr := t.c.call(func(st *model.ViewState, _ *model.SessionStats) {
		if st.Transfer.AttemptID != a.id {
			return
		}
		current = true
		st.Transfer.InFlight = false
		st.Transfer.Progress = 100
		st.Transfer.Result = ref
	}); cerr != nil {
		return "", ErrClosed
	}
	if !current {
		return "", ErrSuperseded
	}

	lgr.Logger.Info(
		"upload completed",
		slog.String("attempt", a.id),
		slog.String("reference", ref),
	)
	t.c.notice(model.NoticeTransferCompleted, "upload completed", ref)
	return ref, nil
}

// begin resets transfer and processing state for a new attempt and cancels
// the one in flight, if any.
func (t *transferer) begin(ctx context.Context) (*attempt, *model.VideoBlob, context.Context, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, nil, nil, ErrClosed
	}
	id := uuid.NewString()
	var blob *model.VideoBlob
	if err := t.c.call(func(st *model.ViewState, stats *model.SessionStats) {
		if st.Blob.Size() == 0 {
			return
		}
		blob = st.Blob
		st.Transfer = model.TransferState{AttemptID: id, InFlight: true}
		st.Processing = model.ProcessingState{}
		stats.Uploads++
	}); err != nil {
		return nil, nil, nil, ErrClosed
	}
	if blob == nil {
		t.c.notice(model.NoticeNothingToUpload, "no recording or file selected", "")
		return nil, nil, nil, ErrNothingToUpload
	}

	// The new attempt ID is already current, so the old attempt's writes are
	// ignored from here on.
	if t.current != nil {
		lgr.Logger.Info("superseding in-flight upload", slog.String("attempt", t.current.id))
		t.current.cancel()
		t.current = nil
	}

	actx, cancel := context.WithCancel(ctx)
	if timeout := t.c.svcs.CfgSvc.GetUploadTimeout(); timeout > 0 {
		var tcancel context.CancelFunc
		actx, tcancel = context.WithTimeout(actx, timeout)
		parent := cancel
		cancel = func() {
			tcancel()
			parent()
		}
	}
	stop := context.AfterFunc(t.c.ctx, cancel)
	a := &attempt{
		id: id,
		cancel: func() {
			stop()
			cancel()
		},
	}

	t.current = a
	t.wg.Add(1)
	return a, blob, actx, nil
}

func (t *transferer) finish(a *attempt) {
	a.cancel()
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == a {
		t.current = nil
	}
}

func (t *transferer) failed(a *attempt, err error) error {
	if t.c.ctx.Err() != nil {
		t.c.post(func(st *model.ViewState, _ *model.SessionStats) {
			if st.Transfer.AttemptID == a.id {
				st.Transfer.InFlight = false
			}
		})
		return ErrClosed
	}

	current := false
	if cerr := t.c.call(func(st *model.ViewState, stats *model.SessionStats) {
		if st.Transfer.AttemptID != a.id {
			return
		}
		current = true
		st.Transfer.InFlight = false
		st.Transfer.Failed = true
		stats.UploadFailures++
	}); cerr != nil {
		return ErrClosed
	}
	if !current {
		return ErrSuperseded
	}

	t.c.notice(model.NoticeTransferFailed, "upload failed: "+err.Error(), "")
	t.c.reportError(model.GenError("transfer_client", err, map[string]interface{}{
		"attempt": a.id,
	}, "error uploading video"))
	return xerrors.Errorf("upload: %w", err)
}

// wait refuses new attempts and waits for running ones. The controller
// context must already be cancelled.
func (t *transferer) wait() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	t.wg.Wait()
}

func percent(sent, total int64) int {
	if total <= 0 {
		return 0
	}
	pct := int(math.Round(float64(sent) / float64(total) * 100))
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}
