package feishu

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/agentsocial/agentsocial/internal/common/logger"
	"github.com/agentsocial/agentsocial/internal/platform"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024 * 1024 // 1MB

	reconnectBaseDelay = time.Second
	reconnectMaxDelay  = time.Minute
)

// mentionPattern matches bot mention placeholders embedded in message text.
var mentionPattern = regexp.MustCompile(`@_user_\d+\s*`)

// EventListener maintains the Feishu long connection for one app and
// dispatches inbound events.
type EventListener struct {
	client *Client
	logger *logger.Logger
	dialer *websocket.Dialer
}

// NewEventListener creates a listener bound to a client's app identity.
func NewEventListener(client *Client, log *logger.Logger) *EventListener {
	if log == nil {
		log = logger.Default()
	}
	return &EventListener{
		client: client,
		logger: log.WithFields(zap.String("component", "feishu-ws"), zap.String("app_id", client.appID)),
		dialer: websocket.DefaultDialer,
	}
}

// Listen connects to the event stream and dispatches events to the handler
// until the context is cancelled. Connection drops are retried with backoff.
func (l *EventListener) Listen(ctx context.Context, handler platform.Handler) error {
	delay := reconnectBaseDelay
	for {
		err := l.run(ctx, handler)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		l.logger.Warn("event connection lost, reconnecting",
			zap.Duration("delay", delay), zap.Error(err))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > reconnectMaxDelay {
			delay = reconnectMaxDelay
		}
	}
}

// endpoint obtains the websocket URL for this app's event stream.
func (l *EventListener) endpoint(ctx context.Context) (string, error) {
	body, _ := json.Marshal(map[string]string{
		"AppID":     l.client.appID,
		"AppSecret": l.client.appSecret,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		l.client.baseURL+"/callback/ws/endpoint", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.client.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var er struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
		Data struct {
			URL string `json:"url"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return "", fmt.Errorf("decoding endpoint response: %w", err)
	}
	if er.Code != 0 {
		return "", fmt.Errorf("endpoint request failed: %d %s", er.Code, er.Msg)
	}
	return er.Data.URL, nil
}

func (l *EventListener) run(ctx context.Context, handler platform.Handler) error {
	url, err := l.endpoint(ctx)
	if err != nil {
		return err
	}

	conn, _, err := l.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	l.logger.Info("event connection established")

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// Ping keepalive and context-driven shutdown.
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				conn.Close()
				return
			case <-ticker.C:
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				return err
			}
			return err
		}
		l.dispatch(ctx, handler, message)
	}
}

// eventFrame is the envelope of one pushed event.
type eventFrame struct {
	Header struct {
		EventID   string `json:"event_id"`
		EventType string `json:"event_type"`
	} `json:"header"`
	Event json.RawMessage `json:"event"`
}

func (l *EventListener) dispatch(ctx context.Context, handler platform.Handler, raw []byte) {
	var frame eventFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		l.logger.Warn("invalid event frame", zap.Error(err))
		return
	}

	switch frame.Header.EventType {
	case "im.message.receive_v1":
		l.dispatchMessage(ctx, handler, frame)
	case "card.action.trigger":
		l.dispatchCardAction(ctx, handler, frame)
	default:
		l.logger.Debug("ignoring event", zap.String("event_type", frame.Header.EventType))
	}
}

func (l *EventListener) dispatchMessage(ctx context.Context, handler platform.Handler, frame eventFrame) {
	var ev struct {
		Message struct {
			MessageID   string `json:"message_id"`
			ChatID      string `json:"chat_id"`
			MessageType string `json:"message_type"`
			Content     string `json:"content"`
		} `json:"message"`
	}
	if err := json.Unmarshal(frame.Event, &ev); err != nil {
		l.logger.Warn("invalid message event", zap.Error(err))
		return
	}
	if ev.Message.MessageType != "text" {
		return
	}

	var content struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal([]byte(ev.Message.Content), &content); err != nil {
		l.logger.Warn("invalid message content", zap.Error(err))
		return
	}

	text := strings.TrimSpace(mentionPattern.ReplaceAllString(content.Text, ""))
	if text == "" {
		return
	}

	handler.HandleMessage(ctx, platform.InboundMessage{
		AppID:     l.client.appID,
		ChatID:    ev.Message.ChatID,
		Text:      text,
		MessageID: ev.Message.MessageID,
		EventID:   frame.Header.EventID,
	})
}

func (l *EventListener) dispatchCardAction(ctx context.Context, handler platform.Handler, frame eventFrame) {
	var ev struct {
		Context struct {
			OpenChatID string `json:"open_chat_id"`
		} `json:"context"`
		Action struct {
			Value struct {
				Action        string `json:"action"`
				CorrelationID string `json:"correlation_id"`
			} `json:"value"`
		} `json:"action"`
	}
	if err := json.Unmarshal(frame.Event, &ev); err != nil {
		l.logger.Warn("invalid card action event", zap.Error(err))
		return
	}

	switch ev.Action.Value.Action {
	case "approve", "deny":
	default:
		l.logger.Debug("ignoring card action", zap.String("action", ev.Action.Value.Action))
		return
	}

	handler.HandleCardAction(ctx, platform.CardAction{
		AppID:         l.client.appID,
		ChatID:        ev.Context.OpenChatID,
		CorrelationID: ev.Action.Value.CorrelationID,
		Approve:       ev.Action.Value.Action == "approve",
		EventID:       frame.Header.EventID,
	})
}
