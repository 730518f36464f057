package notify

import (
	"context"

	"github.com/khaledhikmat/vs-feedback/model"
)

// IService surfaces a notice to the user. Implementations must not block
// for long: notices are sent from component goroutines.
type IService interface {
	Notify(ctx context.Context, n model.Notice) error
}

type multiService struct {
	svcs []IService
}

// NewMulti sends every notice to all services. The first error is returned
// after all have been tried.
func NewMulti(svcs ...IService) IService {
	return &multiService{svcs: svcs}
}

func (m *multiService) Notify(ctx context.Context, n model.Notice) error {
	var first error
	for _, svc := range m.svcs {
		if err := svc.Notify(ctx, n); err != nil && first == nil {
			first = err
		}
	}
	return first
}
