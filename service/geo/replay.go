package geo

import (
	"context"
	"os"
	"time"

	"golang.org/x/xerrors"
	"gopkg.in/yaml.v3"

	"github.com/khaledhikmat/vs-feedback/model"
)

// TrackPoint is one replayed observation. After is the delay since the
// previous point. Error, when set, replays a failed observation.
type TrackPoint struct {
	Latitude  float64       `yaml:"lat"`
	Longitude float64       `yaml:"lon"`
	After     time.Duration `yaml:"after"`
	Error     string        `yaml:"error"`
}

type Track struct {
	Loop   bool         `yaml:"loop"`
	Points []TrackPoint `yaml:"points"`
}

type replayService struct {
	track Track
}

// NewReplay replays a recorded track such as:
//
//	loop: false
//	points:
//	  - {lat: 47.61, lon: -122.33}
//	  - {lat: 47.62, lon: -122.34, after: 1s}
//	  - {error: "timeout", after: 1s}
func NewReplay(track Track) IService {
	return &replayService{track: track}
}

// LoadTrack reads a YAML track file.
func LoadTrack(path string) (Track, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Track{}, xerrors.Errorf("read track %q: %w", path, err)
	}
	var track Track
	if err := yaml.Unmarshal(data, &track); err != nil {
		return Track{}, xerrors.Errorf("invalid track %q: %w", path, err)
	}
	return track, nil
}

func (svc *replayService) Watch(ctx context.Context) (<-chan model.LocationObservation, error) {
	if len(svc.track.Points) == 0 {
		return nil, xerrors.Errorf("empty track: %w", ErrUnavailable)
	}

	out := make(chan model.LocationObservation)
	go func() {
		defer close(out)

		for {
			for _, p := range svc.track.Points {
				if p.After > 0 {
					timer := time.NewTimer(p.After)
					select {
					case <-ctx.Done():
						timer.Stop()
						return
					case <-timer.C:
					}
				}

				obs := model.LocationObservation{
					Sample: model.LocationSample{
						Latitude:  p.Latitude,
						Longitude: p.Longitude,
						Timestamp: time.Now(),
					},
				}
				if p.Error != "" {
					obs = model.LocationObservation{Err: xerrors.New(p.Error)}
				}

				select {
				case <-ctx.Done():
					return
				case out <- obs:
				}
			}
			if !svc.track.Loop {
				return
			}
		}
	}()
	return out, nil
}
