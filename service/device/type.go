package device

import (
	"context"

	"golang.org/x/xerrors"
)

// ErrUnavailable is returned (possibly wrapped) when access is denied or no
// capture hardware is present.
var ErrUnavailable = xerrors.New("capture device unavailable")

const (
	TrackVideo = "video"
	TrackAudio = "audio"
)

type Constraints struct {
	DeviceID int
	Video    bool
	Audio    bool
	FPS      int
}

// Track is one live input of a stream. Stop must be safe to call more than
// once.
type Track interface {
	Kind() string
	Stop()
}

// Stream is a granted device feed. The caller owns it until every track has
// been stopped.
type Stream interface {
	ID() string
	Tracks() []Track
	NewRecorder() (Recorder, error)
}

// Recorder samples a stream into discrete chunks. Stop delivers any pending
// chunk to onChunk before it returns; no chunk is delivered afterwards.
type Recorder interface {
	MediaType() string
	Start(onChunk func([]byte)) error
	Stop() error
}

// Preview shows the live feed for self-monitoring.
type Preview interface {
	Bind(stream Stream) error
	Unbind()
}

type IService interface {
	Open(ctx context.Context, c Constraints) (Stream, error)
}

type noopPreview struct{}

func NewNoopPreview() Preview {
	return noopPreview{}
}

func (noopPreview) Bind(Stream) error { return nil }
func (noopPreview) Unbind()           {}
