package push

import (
	"errors"
	"testing"
)

func TestDecode_ProcessingUpdate(t *testing.T) {
	msg, err := Decode([]byte(`{"progress": 40, "preview": "aGVsbG8="}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !msg.HasProgress || msg.Progress != 40 {
		t.Errorf("progress = %v (has=%v)", msg.Progress, msg.HasProgress)
	}
	if msg.Preview != "aGVsbG8=" {
		t.Errorf("preview = %q", msg.Preview)
	}
	if msg.HasObjects {
		t.Error("unexpected objects")
	}
}

func TestDecode_ProgressWithoutPreview(t *testing.T) {
	msg, err := Decode([]byte(`{"progress": 35.5, "preview": null}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.Progress != 35.5 || msg.Preview != "" {
		t.Errorf("msg = %+v", msg)
	}
}

func TestDecode_DetectionUpdate(t *testing.T) {
	msg, err := Decode([]byte(`{"objects": [
		{"id": 7, "class": "person", "confidence": 0.9, "box": {"x": 0.1, "y": 0.2, "width": 0.3, "height": 0.4}},
		{"id": "b", "label": "car", "score": 0.5, "bbox": [0.5, 0.5, 0.1, 0.1]}
	]}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !msg.HasObjects || len(msg.Objects) != 2 {
		t.Fatalf("objects = %+v", msg.Objects)
	}

	a, b := msg.Objects[0], msg.Objects[1]
	if a.ID != "7" || a.Class != "person" || a.Confidence != 0.9 || a.Box.Width != 0.3 {
		t.Errorf("first object = %+v", a)
	}
	if b.ID != "b" || b.Class != "car" || b.Confidence != 0.5 || b.Box.X != 0.5 {
		t.Errorf("second object = %+v", b)
	}
}

func TestDecode_EmptyObjectsIsStillADetectionUpdate(t *testing.T) {
	msg, err := Decode([]byte(`{"objects": []}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !msg.HasObjects || len(msg.Objects) != 0 {
		t.Errorf("msg = %+v", msg)
	}
}

func TestDecode_Envelope(t *testing.T) {
	msg, err := Decode([]byte(`{"event": "progress", "data": {"progress": 100}}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !msg.HasProgress || msg.Progress != 100 {
		t.Errorf("msg = %+v", msg)
	}
}

func TestDecode_Rejects(t *testing.T) {
	if _, err := Decode([]byte(`{"status": "ok"}`)); !errors.Is(err, ErrUnknownMessage) {
		t.Errorf("expected ErrUnknownMessage, got %v", err)
	}
	if _, err := Decode([]byte(`not json`)); err == nil {
		t.Error("expected error for invalid json")
	}
	if _, err := Decode([]byte(`{"progress": "fast"}`)); err == nil {
		t.Error("expected error for non-numeric progress")
	}
}
