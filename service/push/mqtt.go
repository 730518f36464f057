package push

import (
	"context"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"golang.org/x/xerrors"

	"github.com/khaledhikmat/vs-feedback/model"
	"github.com/khaledhikmat/vs-feedback/service/config"
	"github.com/khaledhikmat/vs-feedback/service/lgr"
)

const (
	mqttConnectTimeout = 5 * time.Second
	mqttOpTimeout      = 2 * time.Second
	mqttQoS            = 1
)

type mqttService struct {
	CfgSvc config.IService

	mu        sync.RWMutex
	client    mqtt.Client
	out       chan model.PushMessage
	closed    bool
	done      chan struct{}
	closeOnce sync.Once
}

// NewMQTT subscribes to the configured topic on an MQTT broker. Messages
// are handed to the caller in broker delivery order.
func NewMQTT(cfgSvc config.IService) IService {
	return &mqttService{
		CfgSvc: cfgSvc,
		done:   make(chan struct{}),
	}
}

func (svc *mqttService) Connect(ctx context.Context) (<-chan model.PushMessage, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	if svc.closed {
		return nil, xerrors.New("mqtt push channel already closed")
	}
	if svc.client != nil {
		return nil, xerrors.New("mqtt push channel already connected")
	}

	broker := svc.CfgSvc.GetPushURL()
	topic := svc.CfgSvc.GetPushTopic()
	if topic == "" {
		return nil, xerrors.New("mqtt push channel needs a topic")
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID("vs-feedback-" + uuid.NewString())
	opts.SetOrderMatters(true)
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		lgr.Logger.Warn("mqtt push channel lost", slog.String("broker", broker), slog.Any("error", err))
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !waitToken(ctx, token, mqttConnectTimeout) {
		return nil, xerrors.Errorf("mqtt connect %s: timeout", broker)
	}
	if err := token.Error(); err != nil {
		return nil, xerrors.Errorf("mqtt connect %s: %w", broker, err)
	}

	svc.out = make(chan model.PushMessage, 64)
	token = client.Subscribe(topic, mqttQoS, svc.onMessage)
	if !waitToken(ctx, token, mqttOpTimeout) || token.Error() != nil {
		client.Disconnect(250)
		return nil, xerrors.Errorf("mqtt subscribe %s: %v", topic, token.Error())
	}

	svc.client = client
	lgr.Logger.Info(
		"mqtt push channel connected",
		slog.String("broker", broker),
		slog.String("topic", topic),
	)
	return svc.out, nil
}

func (svc *mqttService) onMessage(_ mqtt.Client, m mqtt.Message) {
	msg, err := Decode(m.Payload())
	if err != nil {
		lgr.Logger.Debug("ignoring push message", slog.String("topic", m.Topic()), slog.Any("error", err))
		return
	}

	svc.mu.RLock()
	defer svc.mu.RUnlock()
	if svc.closed {
		return
	}
	select {
	case svc.out <- msg:
	case <-svc.done:
	}
}

func (svc *mqttService) Close() error {
	svc.closeOnce.Do(func() {
		// Unblocks any handler waiting on a full channel.
		close(svc.done)

		svc.mu.RLock()
		client := svc.client
		svc.mu.RUnlock()

		if client != nil {
			client.Unsubscribe(svc.CfgSvc.GetPushTopic()).WaitTimeout(mqttOpTimeout)
			client.Disconnect(250) // 250ms grace period
			lgr.Logger.Info("mqtt push channel closed")
		}

		svc.mu.Lock()
		defer svc.mu.Unlock()
		svc.closed = true
		if svc.out != nil {
			close(svc.out)
		}
	})
	return nil
}

func waitToken(ctx context.Context, token mqtt.Token, timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}
