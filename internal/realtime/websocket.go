package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
)

// frame is the event envelope exchanged over the websocket.
type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type joinData struct {
	UserID string `json:"userId"`
}

// WebSocketTransport joins the per-user room on a cart websocket endpoint.
type WebSocketTransport struct {
	endpoint string
	dialer   *websocket.Dialer
	header   http.Header
}

// NewWebSocketTransport creates a transport dialing endpoint (ws:// or wss://).
func NewWebSocketTransport(endpoint string, header http.Header) (*WebSocketTransport, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse push url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("push url %q must use ws or wss", endpoint)
	}
	return &WebSocketTransport{
		endpoint: endpoint,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
		header: header,
	}, nil
}

func (t *WebSocketTransport) Name() string { return "websocket" }

// Subscribe dials with the user id as a query parameter, sends a join frame
// and forwards the data of every cart_updated frame.
func (t *WebSocketTransport) Subscribe(ctx context.Context, userID string, deliver DeliverFunc) error {
	u, err := url.Parse(t.endpoint)
	if err != nil {
		return fmt.Errorf("parse push url: %w", err)
	}
	q := u.Query()
	q.Set("userId", userID)
	u.RawQuery = q.Encode()

	conn, resp, err := t.dialer.DialContext(ctx, u.String(), t.header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial push endpoint: %w (status %d)", err, resp.StatusCode)
		}
		return fmt.Errorf("dial push endpoint: %w", err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	stopped := make(chan struct{})
	defer close(stopped)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
		case <-stopped:
		}
		_ = conn.Close()
	}()

	join, err := json.Marshal(joinData{UserID: userID})
	if err != nil {
		return fmt.Errorf("encode join frame: %w", err)
	}
	if err := conn.WriteJSON(frame{Event: "join", Data: join}); err != nil {
		return fmt.Errorf("send join frame: %w", err)
	}

	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return fmt.Errorf("push endpoint closed the connection")
			}
			var syntaxErr *json.SyntaxError
			if errors.As(err, &syntaxErr) {
				continue
			}
			return fmt.Errorf("read push frame: %w", err)
		}
		if f.Event != EventCartUpdated {
			continue
		}
		deliver(ctx, f.Data)
	}
}
