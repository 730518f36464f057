package camera

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"gocv.io/x/gocv"
	"golang.org/x/xerrors"

	"github.com/khaledhikmat/vs-feedback/service/device"
	"github.com/khaledhikmat/vs-feedback/service/lgr"
)

// MediaType is what the recorder produces: concatenated JPEG frames.
const MediaType = "video/x-motion-jpeg"

type opencvService struct {
}

// NewOpenCV returns a device backed by an OpenCV VideoCapture. OpenCV has no
// audio input, so audio constraints are ignored with a warning.
func NewOpenCV() device.IService {
	return &opencvService{}
}

func (svc *opencvService) Open(ctx context.Context, c device.Constraints) (device.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !c.Video {
		return nil, xerrors.Errorf("opencv capture needs a video input: %w", device.ErrUnavailable)
	}

	webcam, err := gocv.OpenVideoCapture(c.DeviceID)
	if err != nil {
		return nil, xerrors.Errorf("opening capture device %d: %v: %w", c.DeviceID, err, device.ErrUnavailable)
	}
	if !webcam.IsOpened() {
		webcam.Close()
		return nil, xerrors.Errorf("capture device %d did not open: %w", c.DeviceID, device.ErrUnavailable)
	}

	if c.Audio {
		lgr.Logger.Warn(
			"opencv capture has no audio input. Recording video only",
			slog.Int("device", c.DeviceID),
		)
	}

	fps := c.FPS
	if fps <= 0 {
		fps = 15
	}
	webcam.Set(gocv.VideoCaptureFPS, float64(fps))

	s := &stream{
		id:     uuid.NewString(),
		webcam: webcam,
		fps:    fps,
	}
	s.tracks = []device.Track{&videoTrack{stream: s}}

	lgr.Logger.Info(
		"capture device opened",
		slog.String("stream", s.id),
		slog.Int("device", c.DeviceID),
		slog.Int("fps", fps),
	)
	return s, nil
}

type stream struct {
	id     string
	fps    int
	tracks []device.Track

	mu      sync.Mutex
	webcam  *gocv.VideoCapture
	closed  bool
	preview func(img gocv.Mat)
}

func (s *stream) ID() string { return s.id }

func (s *stream) Tracks() []device.Track { return s.tracks }

func (s *stream) NewRecorder() (device.Recorder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, xerrors.New("stream already stopped")
	}
	return &recorder{stream: s}, nil
}

func (s *stream) setPreview(fn func(img gocv.Mat)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.preview = fn
}

// read grabs one frame. The returned Mat must be closed by the caller.
func (s *stream) read() (gocv.Mat, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	img := gocv.NewMat()
	if s.closed {
		return img, false
	}
	if ok := s.webcam.Read(&img); !ok || img.Empty() {
		return img, false
	}
	if s.preview != nil {
		s.preview(img)
	}
	return img, true
}

func (s *stream) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.webcam.Close()
	lgr.Logger.Info("capture device released", slog.String("stream", s.id))
}

type videoTrack struct {
	stream *stream
}

func (t *videoTrack) Kind() string { return device.TrackVideo }

func (t *videoTrack) Stop() { t.stream.close() }

type recorder struct {
	stream *stream

	done chan struct{}
	wg   sync.WaitGroup
}

func (r *recorder) MediaType() string { return MediaType }

func (r *recorder) Start(onChunk func([]byte)) error {
	if r.done != nil {
		return xerrors.New("recorder already started")
	}
	r.done = make(chan struct{})

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		ticker := time.NewTicker(time.Second / time.Duration(r.stream.fps))
		defer ticker.Stop()

		frames := 0
		errors := 0
		defer func() {
			lgr.Logger.Debug(
				"recorder stopped",
				slog.String("stream", r.stream.id),
				slog.Int("frames", frames),
				slog.Int("errors", errors),
			)
		}()

		for {
			select {
			case <-r.done:
				return
			case <-ticker.C:
				img, ok := r.stream.read()
				if !ok {
					errors++
					img.Close() // Crucial to close the image to avoid memory leaks
					continue
				}

				buf, err := gocv.IMEncode(gocv.JPEGFileExt, img)
				img.Close()
				if err != nil {
					errors++
					continue
				}
				chunk := append([]byte(nil), buf.GetBytes()...)
				buf.Close()

				frames++
				onChunk(chunk)
			}
		}
	}()
	return nil
}

// Stop waits for the in-flight frame, so every chunk has been delivered when
// it returns.
func (r *recorder) Stop() error {
	if r.done == nil {
		return nil
	}
	select {
	case <-r.done:
	default:
		close(r.done)
	}
	r.wg.Wait()
	return nil
}
