package push

import (
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/xerrors"

	"github.com/khaledhikmat/vs-feedback/model"
)

var ErrUnknownMessage = xerrors.New("push message has neither progress nor objects")

type wireBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type wireObject struct {
	ID         interface{} `json:"id"`
	Class      string      `json:"class"`
	Label      string      `json:"label"`
	Confidence float64     `json:"confidence"`
	Score      float64     `json:"score"`
	Box        *wireBox    `json:"box"`
	BBox       []float64   `json:"bbox"`
}

// Decode parses one push message. Both the bare shapes
//
//	{"progress": 40, "preview": "<base64>"}
//	{"objects": [{"class": "person", "box": {...}}]}
//
// and an envelope {"event": "...", "data": {...}} are accepted.
func Decode(data []byte) (model.PushMessage, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return model.PushMessage{}, xerrors.Errorf("decode push message: %w", err)
	}

	if inner, ok := raw["data"]; ok && raw["progress"] == nil && raw["objects"] == nil {
		var unwrapped map[string]json.RawMessage
		if err := json.Unmarshal(inner, &unwrapped); err != nil {
			return model.PushMessage{}, xerrors.Errorf("decode push envelope: %w", err)
		}
		raw = unwrapped
	}

	msg := model.PushMessage{ReceivedAt: time.Now()}

	if p, ok := raw["progress"]; ok && string(p) != "null" {
		if err := json.Unmarshal(p, &msg.Progress); err != nil {
			return model.PushMessage{}, xerrors.Errorf("decode progress: %w", err)
		}
		msg.HasProgress = true
	}

	if pv, ok := raw["preview"]; ok && string(pv) != "null" {
		if err := json.Unmarshal(pv, &msg.Preview); err != nil {
			return model.PushMessage{}, xerrors.Errorf("decode preview: %w", err)
		}
	}

	if o, ok := raw["objects"]; ok {
		var objs []wireObject
		if string(o) != "null" {
			if err := json.Unmarshal(o, &objs); err != nil {
				return model.PushMessage{}, xerrors.Errorf("decode objects: %w", err)
			}
		}
		msg.HasObjects = true
		msg.Objects = make([]model.DetectedObject, 0, len(objs))
		for _, w := range objs {
			msg.Objects = append(msg.Objects, w.toModel())
		}
	}

	if !msg.HasProgress && !msg.HasObjects {
		return model.PushMessage{}, ErrUnknownMessage
	}
	return msg, nil
}

func (w wireObject) toModel() model.DetectedObject {
	obj := model.DetectedObject{
		Class:      w.Class,
		Confidence: w.Confidence,
	}
	if obj.Class == "" {
		obj.Class = w.Label
	}
	if obj.Confidence == 0 {
		obj.Confidence = w.Score
	}

	switch id := w.ID.(type) {
	case nil:
	case string:
		obj.ID = id
	case float64:
		obj.ID = fmt.Sprintf("%g", id)
	default:
		obj.ID = fmt.Sprint(id)
	}

	switch {
	case w.Box != nil:
		obj.Box = model.BoundingBox{X: w.Box.X, Y: w.Box.Y, Width: w.Box.Width, Height: w.Box.Height}
	case len(w.BBox) == 4:
		obj.Box = model.BoundingBox{X: w.BBox[0], Y: w.BBox[1], Width: w.BBox[2], Height: w.BBox[3]}
	}
	return obj
}
