package push

import (
	"context"

	"github.com/khaledhikmat/vs-feedback/model"
)

// IService is a server-initiated message channel. Connect may be called
// once. The returned channel is closed when the subscription ends, either
// because the remote side went away or because Close was called. Close is
// idempotent.
type IService interface {
	Connect(ctx context.Context) (<-chan model.PushMessage, error)
	Close() error
}
