package push

import (
	"context"
	"sync"

	"golang.org/x/xerrors"

	"github.com/khaledhikmat/vs-feedback/model"
)

// Fake is a push channel driven by Send.
type Fake struct {
	ConnectErr error

	mu       sync.Mutex
	out      chan model.PushMessage
	connects int
	closes   int
	releases int
	closed   bool
}

func NewFake() *Fake {
	return &Fake{}
}

func (f *Fake) Connect(ctx context.Context) (<-chan model.PushMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.connects++
	if f.ConnectErr != nil {
		return nil, f.ConnectErr
	}
	if f.out != nil {
		return nil, xerrors.New("fake push channel already connected")
	}
	f.out = make(chan model.PushMessage, 256)
	return f.out, nil
}

// Send delivers msg and reports whether the subscription was live.
func (f *Fake) Send(msg model.PushMessage) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.out == nil || f.closed {
		return false
	}
	f.out <- msg
	return true
}

// Drop simulates the remote side ending the subscription.
func (f *Fake) Drop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.out != nil && !f.closed {
		f.closed = true
		close(f.out)
	}
}

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	if f.out != nil && !f.closed {
		f.closed = true
		f.releases++
		close(f.out)
	}
	return nil
}

func (f *Fake) Connects() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects
}

// Closes counts Close calls; Releases counts the ones that ended a live
// subscription.
func (f *Fake) Closes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

func (f *Fake) Releases() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.releases
}
