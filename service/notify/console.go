package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fatih/color"

	"github.com/khaledhikmat/vs-feedback/model"
)

type consoleService struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsole prints notices to stdout, colored by kind.
func NewConsole() IService {
	return NewConsoleWriter(os.Stdout)
}

func NewConsoleWriter(w io.Writer) IService {
	return &consoleService{w: w}
}

func (svc *consoleService) Notify(_ context.Context, n model.Notice) error {
	paint := color.New(color.FgYellow)
	switch n.Kind {
	case model.NoticeTransferCompleted:
		paint = color.New(color.FgGreen)
	case model.NoticeTransferFailed, model.NoticeCaptureUnavailable:
		paint = color.New(color.FgRed)
	}

	line := fmt.Sprintf("[%s] %s", n.Kind, n.Message)
	if n.Reference != "" {
		line += " -> " + n.Reference
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()
	_, err := paint.Fprintln(svc.w, line)
	return err
}
