package upload

import (
	"context"
	"fmt"

	"github.com/khaledhikmat/vs-feedback/model"
)

// ProgressFunc receives bytes sent so far and the total bytes of the request
// body. It is called from the transfer goroutine.
type ProgressFunc func(sent, total int64)

type IService interface {
	// Upload sends the blob and returns the processed-artifact reference.
	Upload(ctx context.Context, blob *model.VideoBlob, onProgress ProgressFunc) (string, error)
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.Code)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}
