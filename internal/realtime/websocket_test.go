package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pushServer is a websocket endpoint that records the join frame and then
// writes the queued frames.
type pushServer struct {
	*httptest.Server
	joined chan joinData
	query  chan string
	frames []frame
}

func newPushServer(t *testing.T, frames ...frame) *pushServer {
	t.Helper()
	ps := &pushServer{
		joined: make(chan joinData, 4),
		query:  make(chan string, 4),
		frames: frames,
	}
	upgrader := websocket.Upgrader{}
	ps.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		ps.query <- r.URL.Query().Get("userId")

		var join frame
		if err := conn.ReadJSON(&join); err != nil || join.Event != "join" {
			return
		}
		var jd joinData
		_ = json.Unmarshal(join.Data, &jd)
		ps.joined <- jd

		for _, f := range ps.frames {
			if err := conn.WriteJSON(f); err != nil {
				return
			}
		}
		// Hold the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(ps.Close)
	return ps
}

func (ps *pushServer) wsURL() string {
	return "ws" + strings.TrimPrefix(ps.URL, "http")
}

func TestNewWebSocketTransport_RejectsHTTPURL(t *testing.T) {
	_, err := NewWebSocketTransport("http://localhost:3000/socket", nil)
	assert.Error(t, err)

	_, err = NewWebSocketTransport("ws://localhost:3000/socket", nil)
	assert.NoError(t, err)
}

func TestWebSocketTransport_JoinsAndForwardsCartUpdates(t *testing.T) {
	ps := newPushServer(t,
		frame{Event: "notification", Data: json.RawMessage(`{"text":"hi"}`)},
		frame{Event: EventCartUpdated, Data: cartPayload("c1", "u1", 2)},
	)
	tr, err := NewWebSocketTransport(ps.wsURL(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan []byte, 4)
	done := make(chan error, 1)
	go func() {
		done <- tr.Subscribe(ctx, "u1", func(_ context.Context, payload []byte) { got <- payload })
	}()

	assert.Equal(t, "u1", <-ps.query)
	assert.Equal(t, joinData{UserID: "u1"}, <-ps.joined)

	select {
	case payload := <-got:
		assert.JSONEq(t, string(cartPayload("c1", "u1", 2)), string(payload))
	case <-timeoutCh():
		t.Fatal("cart_updated frame not delivered")
	}
	assert.Empty(t, got, "other events are not forwarded")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-timeoutCh():
		t.Fatal("subscribe did not return after cancel")
	}
}

func TestWebSocketTransport_DialFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	tr, err := NewWebSocketTransport("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)

	err = tr.Subscribe(context.Background(), "u1", func(context.Context, []byte) {})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
}

func TestListener_WithWebSocketTransport(t *testing.T) {
	ps := newPushServer(t, frame{Event: EventCartUpdated, Data: json.RawMessage(`{"data":` + string(cartPayload("c7", "u1", 3)) + `}`)})
	tr, err := NewWebSocketTransport(ps.wsURL(), nil)
	require.NoError(t, err)
	l, store := newTestListener(t, tr)

	require.NoError(t, l.Connect(context.Background(), "u1"))

	assert.Eventually(t, func() bool { return store.CartID() == "c7" }, waitFor, pollEvery)
	assert.Equal(t, 3, store.QuantityOf("v1"))
}
