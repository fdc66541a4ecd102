package channel

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"lanebot/internal/event"
	"lanebot/internal/metrics"
)

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(wsURL(ts), nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

func readText(t *testing.T, ws *websocket.Conn) string {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)
	return string(data)
}

func TestServer_BroadcastAndRelayOverWebsocket(t *testing.T) {
	hub := NewHub(HubConfig{SendBuffer: 16})
	srv := NewServer(hub, ServerOptions{WriteTimeout: time.Second})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()
	defer hub.Close()

	display := dial(t, ts)
	controller := dial(t, ts)
	require.Eventually(t, func() bool { return hub.Len() == 2 }, 2*time.Second, 5*time.Millisecond)

	hub.Publish(event.NewReady())
	hub.Publish(event.NewDrive(12.5, false))

	for _, ws := range []*websocket.Conn{display, controller} {
		assert.Equal(t, `{"type":"ready"}`, readText(t, ws))
		drive := readText(t, ws)
		assert.Equal(t, "drive", gjson.Get(drive, "type").String())
		assert.Equal(t, 12.5, gjson.Get(drive, "heading").Float())
		assert.False(t, gjson.Get(drive, "predictedGutter").Bool())
	}

	require.NoError(t, controller.WriteMessage(websocket.TextMessage, []byte(`{"cmd":"lights"}`)))
	assert.Equal(t, `{"cmd":"lights"}`, readText(t, display))
}

func TestServer_UnreadPeerDoesNotStallDelivery(t *testing.T) {
	hub := NewHub(HubConfig{SendBuffer: 1})
	ts := httptest.NewServer(NewServer(hub, ServerOptions{}).Handler())
	defer ts.Close()
	defer hub.Close()

	// Never reads, so the server's writes back up once the socket buffers fill.
	dial(t, ts)
	require.Eventually(t, func() bool { return hub.Len() == 1 }, 2*time.Second, 5*time.Millisecond)

	big := []byte(`"` + strings.Repeat("x", 8<<20) + `"`)
	var worst time.Duration
	for i := 0; i < 6; i++ {
		start := time.Now()
		hub.Relay(nil, big)
		worst = max(worst, time.Since(start))
	}

	assert.Less(t, worst, 500*time.Millisecond)
	require.Eventually(t, func() bool { return hub.Len() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestServer_BinaryFrameIsNotRelayed(t *testing.T) {
	hub := NewHub(HubConfig{SendBuffer: 16})
	ts := httptest.NewServer(NewServer(hub, ServerOptions{}).Handler())
	defer ts.Close()
	defer hub.Close()

	display := dial(t, ts)
	sender := dial(t, ts)
	require.Eventually(t, func() bool { return hub.Len() == 2 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, sender.WriteMessage(websocket.BinaryMessage, []byte{0x01, 0x02}))
	require.NoError(t, sender.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := sender.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseUnsupportedData), "got %v", err)
	require.Eventually(t, func() bool { return hub.Len() == 1 }, 2*time.Second, 5*time.Millisecond)

	hub.Publish(event.NewReady())
	assert.Equal(t, `{"type":"ready"}`, readText(t, display))
}

func TestServer_PlainHTTPOnObserverPath(t *testing.T) {
	srv := NewServer(NewHub(HubConfig{SendBuffer: 1}), ServerOptions{})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUpgradeRequired, resp.StatusCode)
}

func TestServer_OperationalEndpoints(t *testing.T) {
	rec := metrics.New()
	hub := NewHub(HubConfig{SendBuffer: 1, Metrics: rec})
	defer hub.Close()
	srv := NewServer(hub, ServerOptions{
		Metrics: rec.Handler(),
		Status: func() any {
			return map[string]any{"state": "Strafing", "cycle": 2}
		},
	})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	hub.Publish(event.NewReady())

	tests := []struct {
		path     string
		contains string
	}{
		{"/healthz", `"status":"ok"`},
		{"/status", `"state":"Strafing"`},
		{"/metrics", `lanebot_events_published_total{type="ready"} 1`},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := http.Get(ts.URL + tt.path)
			require.NoError(t, err)
			defer resp.Body.Close()
			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)

			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Contains(t, string(body), tt.contains)
		})
	}
}

func TestServer_StatusNotRegisteredWithoutFunc(t *testing.T) {
	srv := NewServer(NewHub(HubConfig{SendBuffer: 1}), ServerOptions{})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	// Falls through to the observer route.
	resp, err := http.Get(ts.URL + "/status")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUpgradeRequired, resp.StatusCode)
}

func TestServer_ServeStopsOnCancel(t *testing.T) {
	hub := NewHub(HubConfig{SendBuffer: 4})
	srv := NewServer(hub, ServerOptions{})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	ws, _, err := websocket.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/", nil)
	require.NoError(t, err)
	defer ws.Close()
	require.Eventually(t, func() bool { return hub.Len() == 1 }, 2*time.Second, 5*time.Millisecond)

	hub.Publish(event.NewCancelled())
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}

	assert.Equal(t, `{"type":"cancelled"}`, readText(t, ws))
	_, err = hub.Connect(newFakeConn())
	assert.ErrorIs(t, err, ErrHubClosed)
}
