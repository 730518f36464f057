package geo

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNone_Unavailable(t *testing.T) {
	if _, err := NewNone().Watch(t.Context()); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestLoadTrackAndReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "track.yaml")
	doc := `
points:
  - {lat: 47.61, lon: -122.33}
  - {error: "position timeout", after: 5ms}
  - {lat: 47.62, lon: -122.34, after: 5ms}
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	track, err := LoadTrack(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(track.Points) != 3 || track.Points[1].After != 5*time.Millisecond {
		t.Fatalf("track = %+v", track)
	}

	obs, err := NewReplay(track).Watch(t.Context())
	if err != nil {
		t.Fatalf("watch: %v", err)
	}

	var got []string
	for o := range obs {
		if o.Err != nil {
			got = append(got, "err:"+o.Err.Error())
			continue
		}
		got = append(got, "ok")
		if o.Sample.Timestamp.IsZero() {
			t.Error("sample without timestamp")
		}
	}
	if len(got) != 3 || got[0] != "ok" || got[1] != "err:position timeout" || got[2] != "ok" {
		t.Errorf("observations = %v", got)
	}
}

func TestReplay_LoopStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	obs, err := NewReplay(Track{Loop: true, Points: []TrackPoint{{Latitude: 1, After: time.Millisecond}}}).Watch(ctx)
	if err != nil {
		t.Fatalf("watch: %v", err)
	}

	for i := 0; i < 3; i++ {
		<-obs
	}
	cancel()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-obs:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("replay did not stop")
		}
	}
}

func TestReplay_EmptyTrack(t *testing.T) {
	if _, err := NewReplay(Track{}).Watch(t.Context()); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
