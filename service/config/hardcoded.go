package config

import "time"

type hardcodedService struct {
}

func NewHardCoded() IService {
	return &hardcodedService{}
}

func (svc *hardcodedService) GetModeMaxShutdownTime() int {
	return 5
}

func (svc *hardcodedService) GetInputFolder() string {
	return "./settings"
}

func (svc *hardcodedService) GetRecordingsFolder() string {
	return "./recordings"
}

func (svc *hardcodedService) GetUploadURL() string {
	return "http://localhost:8000/upload"
}

func (svc *hardcodedService) GetUploadFieldName() string {
	return "file"
}

// Zero means the transfer is bounded only by the caller's context.
func (svc *hardcodedService) GetUploadTimeout() time.Duration {
	return 0
}

func (svc *hardcodedService) GetPushKind() string {
	return PushKindWebsocket
}

func (svc *hardcodedService) GetPushURL() string {
	return "ws://localhost:8000/ws"
}

func (svc *hardcodedService) GetPushTopic() string {
	return "processing"
}

// The sender attaches previews on 5% boundaries.
func (svc *hardcodedService) GetPreviewProgressStep() int {
	return 5
}

func (svc *hardcodedService) GetLocationThrottle() time.Duration {
	return 5 * time.Second
}

func (svc *hardcodedService) GetLocationSource() string {
	return LocationSourceNone
}

func (svc *hardcodedService) GetLocationTrackFile() string {
	return "./settings/track.yaml"
}

func (svc *hardcodedService) GetCaptureDeviceID() int {
	return 0
}

func (svc *hardcodedService) GetCaptureFPS() int {
	return 15
}

func (svc *hardcodedService) GetCaptureAudio() bool {
	return true
}

func (svc *hardcodedService) GetDetectionsLogFile() string {
	return "detections.log"
}

func (svc *hardcodedService) GetLogFile() string {
	return ""
}

func (svc *hardcodedService) GetLogLevel() string {
	return "info"
}

func (svc *hardcodedService) GetWebhookURL() string {
	return ""
}
