package geo

import (
	"context"
	"sync"

	"github.com/khaledhikmat/vs-feedback/model"
)

// Fake is a watch driven by Push.
type Fake struct {
	Unavailable bool

	mu      sync.Mutex
	out     chan model.LocationObservation
	watches int
}

func NewFake() *Fake {
	return &Fake{}
}

func (f *Fake) Watch(ctx context.Context) (<-chan model.LocationObservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.watches++
	if f.Unavailable {
		return nil, ErrUnavailable
	}
	f.out = make(chan model.LocationObservation)
	return f.out, nil
}

// Push blocks until the watcher accepts obs.
func (f *Fake) Push(obs model.LocationObservation) {
	f.mu.Lock()
	out := f.out
	f.mu.Unlock()
	if out != nil {
		out <- obs
	}
}

func (f *Fake) Watches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.watches
}
