package upload

import (
	"context"
	"sync"

	"golang.org/x/xerrors"

	"github.com/khaledhikmat/vs-feedback/model"
)

// Fake simulates a transfer by reporting progress in Steps chunks.
type Fake struct {
	Reference string
	Err       error
	// Steps is how many progress callbacks a transfer produces.
	Steps int
	// Gate, when set, is awaited before the transfer completes.
	Gate chan struct{}

	mu    sync.Mutex
	blobs []*model.VideoBlob
}

func NewFake(reference string) *Fake {
	return &Fake{Reference: reference, Steps: 4}
}

func (f *Fake) Upload(ctx context.Context, blob *model.VideoBlob, onProgress ProgressFunc) (string, error) {
	f.mu.Lock()
	f.blobs = append(f.blobs, blob)
	f.mu.Unlock()

	total := int64(blob.Size())
	steps := int64(f.Steps)
	if steps <= 0 {
		steps = 1
	}

	for i := int64(1); i <= steps; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if f.Err != nil && i == steps {
			break
		}
		if onProgress != nil {
			onProgress(total*i/steps, total)
		}
	}

	if f.Gate != nil {
		select {
		case <-f.Gate:
		case <-ctx.Done():
			return "", xerrors.Errorf("fake upload cancelled: %w", ctx.Err())
		}
	}

	if f.Err != nil {
		return "", f.Err
	}
	return f.Reference, nil
}

func (f *Fake) Blobs() []*model.VideoBlob {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*model.VideoBlob(nil), f.blobs...)
}
