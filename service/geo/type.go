package geo

import (
	"context"

	"golang.org/x/xerrors"

	"github.com/khaledhikmat/vs-feedback/model"
)

// ErrUnavailable means the platform has no location capability.
var ErrUnavailable = xerrors.New("location unavailable")

// IService is a continuous position watch. Each observation carries either a
// sample or a per-observation error. The channel closes when ctx is done or
// the source is exhausted.
type IService interface {
	Watch(ctx context.Context) (<-chan model.LocationObservation, error)
}

type noneService struct{}

// NewNone is a platform without location capability.
func NewNone() IService {
	return noneService{}
}

func (noneService) Watch(context.Context) (<-chan model.LocationObservation, error) {
	return nil, ErrUnavailable
}
