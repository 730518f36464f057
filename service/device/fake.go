package device

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// Fake is an in-memory device. Each stream's recorder emits Chunks, one per
// Start call as a single burst, then holds Tail until Stop.
type Fake struct {
	// Deny makes Open fail with ErrUnavailable.
	Deny bool
	// Chunks are delivered asynchronously after Start.
	Chunks [][]byte
	// Tail is delivered synchronously by Stop.
	Tail []byte

	mu      sync.Mutex
	opened  int
	live    int
	maxLive int
	streams []*FakeStream
}

func NewFake() *Fake {
	return &Fake{
		Chunks: [][]byte{[]byte("chunk-1"), []byte("chunk-2")},
		Tail:   []byte("tail"),
	}
}

func (f *Fake) Open(ctx context.Context, c Constraints) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.Deny {
		return nil, fmt.Errorf("permission denied: %w", ErrUnavailable)
	}

	f.opened++
	f.live++
	if f.live > f.maxLive {
		f.maxLive = f.live
	}

	s := &FakeStream{id: fmt.Sprintf("fake-%d", f.opened), dev: f}
	if c.Video {
		s.tracks = append(s.tracks, &FakeTrack{kind: TrackVideo, stream: s})
	}
	if c.Audio {
		s.tracks = append(s.tracks, &FakeTrack{kind: TrackAudio, stream: s})
	}
	f.streams = append(f.streams, s)
	return s, nil
}

// Opened is how many streams have been granted.
func (f *Fake) Opened() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opened
}

// Live is how many streams still have a running track.
func (f *Fake) Live() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.live
}

// MaxLive is the highest number of simultaneously live streams seen.
func (f *Fake) MaxLive() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxLive
}

func (f *Fake) Streams() []*FakeStream {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*FakeStream(nil), f.streams...)
}

func (f *Fake) trackStopped(s *FakeStream) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range s.tracks {
		if !t.Stopped() {
			return
		}
	}
	f.live--
}

type FakeStream struct {
	id     string
	dev    *Fake
	tracks []*FakeTrack
}

func (s *FakeStream) ID() string { return s.id }

func (s *FakeStream) Tracks() []Track {
	out := make([]Track, len(s.tracks))
	for i, t := range s.tracks {
		out[i] = t
	}
	return out
}

func (s *FakeStream) FakeTracks() []*FakeTrack {
	return s.tracks
}

func (s *FakeStream) NewRecorder() (Recorder, error) {
	return &fakeRecorder{dev: s.dev}, nil
}

type FakeTrack struct {
	kind    string
	stream  *FakeStream
	stops   atomic.Int32
	stopped atomic.Bool
}

func (t *FakeTrack) Kind() string { return t.kind }

func (t *FakeTrack) Stop() {
	t.stops.Add(1)
	if t.stopped.CompareAndSwap(false, true) {
		t.stream.dev.trackStopped(t.stream)
	}
}

func (t *FakeTrack) Stopped() bool { return t.stopped.Load() }

// Stops counts Stop calls, including repeated ones.
func (t *FakeTrack) Stops() int { return int(t.stops.Load()) }

type fakeRecorder struct {
	dev     *Fake
	onChunk func([]byte)
	wg      sync.WaitGroup
}

func (r *fakeRecorder) MediaType() string { return "video/webm" }

func (r *fakeRecorder) Start(onChunk func([]byte)) error {
	r.onChunk = onChunk
	chunks := r.dev.Chunks
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for _, c := range chunks {
			onChunk(append([]byte(nil), c...))
		}
	}()
	return nil
}

func (r *fakeRecorder) Stop() error {
	r.wg.Wait()
	if len(r.dev.Tail) > 0 && r.onChunk != nil {
		r.onChunk(append([]byte(nil), r.dev.Tail...))
	}
	return nil
}

// FakePreview records bind/unbind calls.
type FakePreview struct {
	mu      sync.Mutex
	bound   Stream
	binds   int
	unbinds int
}

func (p *FakePreview) Bind(s Stream) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bound = s
	p.binds++
	return nil
}

func (p *FakePreview) Unbind() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bound = nil
	p.unbinds++
}

func (p *FakePreview) Bound() Stream {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bound
}

// Counts returns how many times Bind and Unbind were called.
func (p *FakePreview) Counts() (binds, unbinds int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.binds, p.unbinds
}
