package push

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/xerrors"

	"github.com/khaledhikmat/vs-feedback/model"
	"github.com/khaledhikmat/vs-feedback/service/config"
	"github.com/khaledhikmat/vs-feedback/service/lgr"
)

const closeGrace = time.Second

type subscribeMessage struct {
	Type  string `json:"type"`
	Topic string `json:"topic"`
}

type websocketService struct {
	CfgSvc config.IService
	Dialer *websocket.Dialer

	mu        sync.Mutex
	conn      *websocket.Conn
	done      chan struct{}
	closeOnce sync.Once
}

func NewWebsocket(cfgSvc config.IService) IService {
	return &websocketService{
		CfgSvc: cfgSvc,
		Dialer: websocket.DefaultDialer,
		done:   make(chan struct{}),
	}
}

func (svc *websocketService) Connect(ctx context.Context) (<-chan model.PushMessage, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	select {
	case <-svc.done:
		return nil, xerrors.New("websocket push channel already closed")
	default:
	}
	if svc.conn != nil {
		return nil, xerrors.New("websocket push channel already connected")
	}

	url := svc.CfgSvc.GetPushURL()
	conn, _, err := svc.Dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, xerrors.Errorf("websocket dial %s: %w", url, err)
	}

	if topic := svc.CfgSvc.GetPushTopic(); topic != "" {
		if err := conn.WriteJSON(subscribeMessage{Type: "subscribe", Topic: topic}); err != nil {
			conn.Close()
			return nil, xerrors.Errorf("websocket subscribe: %w", err)
		}
	}

	svc.conn = conn
	out := make(chan model.PushMessage, 64)
	go svc.readLoop(conn, out)

	lgr.Logger.Info(
		"websocket push channel connected",
		slog.String("url", url),
	)
	return out, nil
}

func (svc *websocketService) readLoop(conn *websocket.Conn, out chan<- model.PushMessage) {
	defer close(out)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-svc.done:
				// Closed by us
			default:
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					lgr.Logger.Warn("websocket push channel lost", slog.Any("error", err))
				} else {
					lgr.Logger.Info("websocket push channel ended", slog.Any("error", err))
				}
			}
			return
		}

		msg, err := Decode(data)
		if err != nil {
			lgr.Logger.Debug("ignoring push message", slog.Any("error", err))
			continue
		}

		select {
		case out <- msg:
		case <-svc.done:
			return
		}
	}
}

func (svc *websocketService) Close() error {
	svc.closeOnce.Do(func() {
		close(svc.done)

		svc.mu.Lock()
		conn := svc.conn
		svc.mu.Unlock()
		if conn == nil {
			return
		}

		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(closeGrace))
		_ = conn.Close()
		lgr.Logger.Info("websocket push channel closed")
	})
	return nil
}
