package config

import (
	"os"
	"time"

	"golang.org/x/xerrors"
	"gopkg.in/yaml.v3"
)

// fileSettings mirrors the YAML document. Pointer fields distinguish an
// absent key from an explicit zero value.
type fileSettings struct {
	ModeMaxShutdownTime *int   `yaml:"mode_max_shutdown_time"`
	InputFolder         string `yaml:"input_folder"`
	RecordingsFolder    string `yaml:"recordings_folder"`

	Upload struct {
		URL       string `yaml:"url"`
		FieldName string `yaml:"field_name"`
		Timeout   string `yaml:"timeout"`
	} `yaml:"upload"`

	Push struct {
		Kind        string `yaml:"kind"`
		URL         string `yaml:"url"`
		Topic       string `yaml:"topic"`
		PreviewStep *int   `yaml:"preview_step"`
	} `yaml:"push"`

	Location struct {
		Throttle  string `yaml:"throttle"`
		Source    string `yaml:"source"`
		TrackFile string `yaml:"track_file"`
	} `yaml:"location"`

	Capture struct {
		DeviceID *int  `yaml:"device_id"`
		FPS      *int  `yaml:"fps"`
		Audio    *bool `yaml:"audio"`
	} `yaml:"capture"`

	Logging struct {
		Level          string `yaml:"level"`
		File           string `yaml:"file"`
		DetectionsFile string `yaml:"detections_file"`
	} `yaml:"logging"`

	Webhook struct {
		URL string `yaml:"url"`
	} `yaml:"webhook"`
}

type fileService struct {
	defaults IService
	settings fileSettings

	uploadTimeout    *time.Duration
	locationThrottle *time.Duration
}

// NewFile reads a YAML settings file. Keys missing from the file fall back
// to the hardcoded defaults.
func NewFile(path string) (IService, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, xerrors.Errorf("config file not found: %s", path)
		}
		return nil, xerrors.Errorf("cannot read config file %q: %w", path, err)
	}
	return Parse(data)
}

// Parse builds a config service from YAML content.
func Parse(data []byte) (IService, error) {
	svc := &fileService{defaults: NewHardCoded()}
	if err := yaml.Unmarshal([]byte(ExpandEnv(string(data))), &svc.settings); err != nil {
		return nil, xerrors.Errorf("invalid YAML: %w", err)
	}

	var err error
	if svc.uploadTimeout, err = parseDuration("upload.timeout", svc.settings.Upload.Timeout); err != nil {
		return nil, err
	}
	if svc.locationThrottle, err = parseDuration("location.throttle", svc.settings.Location.Throttle); err != nil {
		return nil, err
	}
	if svc.locationThrottle != nil && *svc.locationThrottle <= 0 {
		return nil, xerrors.Errorf("location.throttle must be positive, got %s", *svc.locationThrottle)
	}

	switch svc.GetPushKind() {
	case PushKindWebsocket, PushKindMQTT:
	default:
		return nil, xerrors.Errorf("push.kind must be %q or %q, got %q", PushKindWebsocket, PushKindMQTT, svc.settings.Push.Kind)
	}
	switch svc.GetLocationSource() {
	case LocationSourceNone, LocationSourceReplay:
	default:
		return nil, xerrors.Errorf("location.source must be %q or %q, got %q", LocationSourceNone, LocationSourceReplay, svc.settings.Location.Source)
	}
	if svc.GetPreviewProgressStep() < 0 {
		return nil, xerrors.Errorf("push.preview_step must be >= 0, got %d", svc.GetPreviewProgressStep())
	}

	return svc, nil
}

func parseDuration(key, value string) (*time.Duration, error) {
	if value == "" {
		return nil, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return nil, xerrors.Errorf("%s: %w", key, err)
	}
	return &d, nil
}

func orString(v string, def func() string) string {
	if v != "" {
		return v
	}
	return def()
}

func (svc *fileService) GetModeMaxShutdownTime() int {
	if svc.settings.ModeMaxShutdownTime != nil {
		return *svc.settings.ModeMaxShutdownTime
	}
	return svc.defaults.GetModeMaxShutdownTime()
}

func (svc *fileService) GetInputFolder() string {
	return orString(svc.settings.InputFolder, svc.defaults.GetInputFolder)
}

func (svc *fileService) GetRecordingsFolder() string {
	return orString(svc.settings.RecordingsFolder, svc.defaults.GetRecordingsFolder)
}

func (svc *fileService) GetUploadURL() string {
	return orString(svc.settings.Upload.URL, svc.defaults.GetUploadURL)
}

func (svc *fileService) GetUploadFieldName() string {
	return orString(svc.settings.Upload.FieldName, svc.defaults.GetUploadFieldName)
}

func (svc *fileService) GetUploadTimeout() time.Duration {
	if svc.uploadTimeout != nil {
		return *svc.uploadTimeout
	}
	return svc.defaults.GetUploadTimeout()
}

func (svc *fileService) GetPushKind() string {
	return orString(svc.settings.Push.Kind, svc.defaults.GetPushKind)
}

func (svc *fileService) GetPushURL() string {
	return orString(svc.settings.Push.URL, svc.defaults.GetPushURL)
}

func (svc *fileService) GetPushTopic() string {
	return orString(svc.settings.Push.Topic, svc.defaults.GetPushTopic)
}

func (svc *fileService) GetPreviewProgressStep() int {
	if svc.settings.Push.PreviewStep != nil {
		return *svc.settings.Push.PreviewStep
	}
	return svc.defaults.GetPreviewProgressStep()
}

func (svc *fileService) GetLocationThrottle() time.Duration {
	if svc.locationThrottle != nil {
		return *svc.locationThrottle
	}
	return svc.defaults.GetLocationThrottle()
}

func (svc *fileService) GetLocationSource() string {
	return orString(svc.settings.Location.Source, svc.defaults.GetLocationSource)
}

func (svc *fileService) GetLocationTrackFile() string {
	return orString(svc.settings.Location.TrackFile, svc.defaults.GetLocationTrackFile)
}

func (svc *fileService) GetCaptureDeviceID() int {
	if svc.settings.Capture.DeviceID != nil {
		return *svc.settings.Capture.DeviceID
	}
	return svc.defaults.GetCaptureDeviceID()
}

func (svc *fileService) GetCaptureFPS() int {
	if svc.settings.Capture.FPS != nil && *svc.settings.Capture.FPS > 0 {
		return *svc.settings.Capture.FPS
	}
	return svc.defaults.GetCaptureFPS()
}

func (svc *fileService) GetCaptureAudio() bool {
	if svc.settings.Capture.Audio != nil {
		return *svc.settings.Capture.Audio
	}
	return svc.defaults.GetCaptureAudio()
}

func (svc *fileService) GetDetectionsLogFile() string {
	return orString(svc.settings.Logging.DetectionsFile, svc.defaults.GetDetectionsLogFile)
}

func (svc *fileService) GetLogFile() string {
	return orString(svc.settings.Logging.File, svc.defaults.GetLogFile)
}

func (svc *fileService) GetLogLevel() string {
	return orString(svc.settings.Logging.Level, svc.defaults.GetLogLevel)
}

func (svc *fileService) GetWebhookURL() string {
	return orString(svc.settings.Webhook.URL, svc.defaults.GetWebhookURL)
}
