package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/khaledhikmat/vs-feedback/model"
	"github.com/khaledhikmat/vs-feedback/service/lgr"
)

// sampler publishes the latest raw location once it has been stable for
// the throttle window. Every raw sample restarts the single pending timer.
type sampler struct {
	c  *Controller
	wg sync.WaitGroup
}

func newSampler(c *Controller) *sampler {
	return &sampler{c: c}
}

func (s *sampler) start(ctx context.Context) {
	obs, err := s.c.svcs.GeoSvc.Watch(ctx)
	if err != nil {
		s.c.notice(model.NoticeLocationUnavailable, "location unavailable: "+err.Error(), "")
		lgr.Logger.Warn("location sampler inert", slog.Any("error", err))
		return
	}

	s.wg.Add(1)
	go s.run(ctx, obs, s.c.svcs.CfgSvc.GetLocationThrottle())
}

func (s *sampler) run(ctx context.Context, obs <-chan model.LocationObservation, window time.Duration) {
	defer s.wg.Done()

	var (
		timer   *time.Timer
		fire    <-chan time.Time
		pending model.LocationSample
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case o, ok := <-obs:
			if !ok {
				// Let a pending sample settle before exiting.
				obs = nil
				if fire == nil {
					return
				}
				continue
			}

			if o.Err != nil {
				lgr.Logger.Warn(
					"location observation failed",
					slog.String("kind", string(model.NoticeLocationSampleError)),
					slog.Any("error", o.Err),
				)
				s.c.post(func(_ *model.ViewState, stats *model.SessionStats) {
					stats.LocationErrors++
				})
				continue
			}

			pending = o.Sample
			if pending.Timestamp.IsZero() {
				pending.Timestamp = time.Now()
			}
			s.c.post(func(_ *model.ViewState, stats *model.SessionStats) {
				stats.LocationSamples++
			})

			if timer == nil {
				timer = time.NewTimer(window)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(window)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			sample := pending
			s.c.post(func(st *model.ViewState, stats *model.SessionStats) {
				st.Location = &sample
				stats.LocationsShown++
			})
			if obs == nil {
				return
			}
		}
	}
}

func (s *sampler) wait() {
	s.wg.Wait()
}
