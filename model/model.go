package model

import (
	"fmt"
	"runtime/debug"
	"time"
)

type CustomError struct {
	Processor  string                 `json:"processor"`
	Inner      error                  `json:"innerError"`
	Message    string                 `json:"message"`
	StackTrace string                 `json:"stackTrace"`
	Misc       map[string]interface{} `json:"misc"`
}

func (e CustomError) Error() string {
	if e.Inner == nil {
		return fmt.Sprintf("%s: %s", e.Processor, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Processor, e.Message, e.Inner)
}

func (e CustomError) Unwrap() error {
	return e.Inner
}

func GenError(proc string, err error, misc map[string]interface{}, messagef string, args ...interface{}) CustomError {
	return CustomError{
		Processor:  proc,
		Inner:      err,
		Message:    fmt.Sprintf(messagef, args...),
		StackTrace: string(debug.Stack()),
		Misc:       misc,
	}
}

// VideoBlob is an immutable video payload. Data must not be modified after
// the blob is created.
type VideoBlob struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	MediaType string    `json:"mediaType"`
	Data      []byte    `json:"-"`
	Source    string    `json:"source"` // "capture" or "file"
	CreatedAt time.Time `json:"createdAt"`
}

const (
	BlobSourceCapture = "capture"
	BlobSourceFile    = "file"
)

func (b *VideoBlob) Size() int {
	if b == nil {
		return 0
	}
	return len(b.Data)
}

// BoundingBox is normalized to the frame: all values are in [0, 1].
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type DetectedObject struct {
	ID         string      `json:"id,omitempty"`
	Class      string      `json:"class"`
	Confidence float64     `json:"confidence,omitempty"`
	Box        BoundingBox `json:"box"`
}

type LocationSample struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Timestamp time.Time `json:"timestamp"`
}

// LocationObservation is one callback from a location watch. Exactly one of
// Sample or Err is set.
type LocationObservation struct {
	Sample LocationSample
	Err    error
}

type TransferState struct {
	AttemptID string `json:"attemptId,omitempty"`
	InFlight  bool   `json:"inFlight"`
	Progress  int    `json:"progress"`
	Result    string `json:"result,omitempty"`
	Failed    bool   `json:"failed"`
}

type ProcessingState struct {
	Progress float64          `json:"progress"`
	Preview  []byte           `json:"-"`
	Objects  []DetectedObject `json:"objects"`
}

type CaptureStatus string

const (
	CaptureIdle      CaptureStatus = "idle"
	CaptureRecording CaptureStatus = "recording"
)

type NoticeKind string

const (
	NoticeCaptureUnavailable  NoticeKind = "capture-unavailable"
	NoticeNothingToUpload     NoticeKind = "nothing-to-upload"
	NoticeTransferFailed      NoticeKind = "transfer-failed"
	NoticeTransferCompleted   NoticeKind = "transfer-completed"
	NoticeLocationUnavailable NoticeKind = "location-unavailable"
	NoticeLocationSampleError NoticeKind = "location-sample-error"
	NoticeChannelUnavailable  NoticeKind = "channel-unavailable"
)

type Notice struct {
	Kind      NoticeKind `json:"kind"`
	Message   string     `json:"message"`
	Reference string     `json:"reference,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// ViewState is everything the presentation boundary reads. Snapshots handed
// out by the controller are never mutated afterwards.
type ViewState struct {
	Capture    CaptureStatus   `json:"capture"`
	Blob       *VideoBlob      `json:"blob,omitempty"`
	Transfer   TransferState   `json:"transfer"`
	Processing ProcessingState `json:"processing"`
	Location   *LocationSample `json:"location,omitempty"`
	LastNotice *Notice         `json:"lastNotice,omitempty"`
}

// Clone returns a deep copy so that the snapshot does not share slices with
// the loop-owned state.
func (v ViewState) Clone() ViewState {
	c := v
	if v.Processing.Preview != nil {
		c.Processing.Preview = append([]byte(nil), v.Processing.Preview...)
	}
	if v.Processing.Objects != nil {
		c.Processing.Objects = append([]DetectedObject(nil), v.Processing.Objects...)
	}
	if v.Location != nil {
		loc := *v.Location
		c.Location = &loc
	}
	if v.LastNotice != nil {
		n := *v.LastNotice
		c.LastNotice = &n
	}
	return c
}

// PushMessage is one decoded push channel message. HasProgress and
// HasObjects record which shape the message carried.
type PushMessage struct {
	HasProgress bool
	Progress    float64
	Preview     string // base64, empty when absent
	HasObjects  bool
	Objects     []DetectedObject
	ReceivedAt  time.Time
}

type SessionStats struct {
	ID                string `json:"id"`
	Recordings        int    `json:"recordings"`
	Uploads           int    `json:"uploads"`
	UploadFailures    int    `json:"uploadFailures"`
	ProcessingUpdates int    `json:"processingUpdates"`
	PreviewsApplied   int    `json:"previewsApplied"`
	DetectionUpdates  int    `json:"detectionUpdates"`
	LocationSamples   int    `json:"locationSamples"`
	LocationsShown    int    `json:"locationsShown"`
	LocationErrors    int    `json:"locationErrors"`
	Uptime            int64  `json:"uptime"`
	Timestamp         int64  `json:"timestamp"`
}
