package camera

import (
	"sync"

	"gocv.io/x/gocv"
	"golang.org/x/xerrors"

	"github.com/khaledhikmat/vs-feedback/service/device"
)

type windowPreview struct {
	title string

	mu     sync.Mutex
	window *gocv.Window
	bound  *stream
}

// NewWindowPreview shows recorded frames in a desktop window. Streams from
// other device implementations are rejected.
func NewWindowPreview(title string) device.Preview {
	return &windowPreview{title: title}
}

func (p *windowPreview) Bind(s device.Stream) error {
	cs, ok := s.(*stream)
	if !ok {
		return xerrors.Errorf("window preview cannot show stream %s", s.ID())
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.window == nil {
		p.window = gocv.NewWindow(p.title)
	}
	p.bound = cs
	cs.setPreview(func(img gocv.Mat) {
		p.window.IMShow(img)
		p.window.WaitKey(1)
	})
	return nil
}

func (p *windowPreview) Unbind() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.bound != nil {
		p.bound.setPreview(nil)
		p.bound = nil
	}
	if p.window != nil {
		p.window.Close()
		p.window = nil
	}
}
