package config

import "time"

const (
	PushKindWebsocket = "websocket"
	PushKindMQTT      = "mqtt"

	LocationSourceNone   = "none"
	LocationSourceReplay = "replay"
)

type IService interface {
	GetModeMaxShutdownTime() int
	GetInputFolder() string
	GetRecordingsFolder() string

	GetUploadURL() string
	GetUploadFieldName() string
	GetUploadTimeout() time.Duration

	GetPushKind() string
	GetPushURL() string
	GetPushTopic() string
	GetPreviewProgressStep() int

	GetLocationThrottle() time.Duration
	GetLocationSource() string
	GetLocationTrackFile() string

	GetCaptureDeviceID() int
	GetCaptureFPS() int
	GetCaptureAudio() bool

	GetDetectionsLogFile() string
	GetLogFile() string
	GetLogLevel() string
	GetWebhookURL() string
}
