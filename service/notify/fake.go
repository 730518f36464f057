package notify

import (
	"context"
	"sync"

	"github.com/khaledhikmat/vs-feedback/model"
)

// Recorder keeps every notice it is given.
type Recorder struct {
	mu      sync.Mutex
	notices []model.Notice
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Notify(_ context.Context, n model.Notice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
	return nil
}

func (r *Recorder) Notices() []model.Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Notice(nil), r.notices...)
}

// Count returns how many notices of kind were recorded.
func (r *Recorder) Count(kind model.NoticeKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, notice := range r.notices {
		if notice.Kind == kind {
			n++
		}
	}
	return n
}
