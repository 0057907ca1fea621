package gateway

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/depotrun/artifactcore/pkg/progress"
)

func newTestServer(t *testing.T, registry *progress.Registry) (*httptest.Server, string) {
	g := NewGateway(registry)
	srv := httptest.NewServer(http.HandlerFunc(g.ServeHTTP))
	t.Cleanup(srv.Close)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	return srv, wsURL
}

func dial(t *testing.T, url string) *websocket.Conn {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestSubscribeDeliversProgressThenComplete(t *testing.T) {
	registry := progress.NewRegistry(time.Millisecond, 5*time.Second, 16)
	_, wsURL := newTestServer(t, registry)

	handle := registry.Open("op-1", 100)
	registry.Advance(handle, 50, "")

	conn := dial(t, wsURL)
	require.NoError(t, conn.WriteJSON(inMessage{Type: "subscribe", OperationID: "op-1"}))

	var subscribed outMessage
	require.NoError(t, conn.ReadJSON(&subscribed))
	require.Equal(t, "subscribed", subscribed.Type)

	var prog outMessage
	require.NoError(t, conn.ReadJSON(&prog))
	require.Equal(t, "progress", prog.Type)
	require.Equal(t, "op-1", prog.OperationID)

	registry.Complete(handle, "done")

	var complete outMessage
	require.NoError(t, conn.ReadJSON(&complete))
	require.Equal(t, "complete", complete.Type)
}

func TestSubscribeUnknownOperationYieldsFailed(t *testing.T) {
	registry := progress.NewRegistry(time.Millisecond, 5*time.Second, 16)
	_, wsURL := newTestServer(t, registry)

	conn := dial(t, wsURL)
	require.NoError(t, conn.WriteJSON(inMessage{Type: "subscribe", OperationID: "missing"}))

	var subscribed outMessage
	require.NoError(t, conn.ReadJSON(&subscribed))
	require.Equal(t, "subscribed", subscribed.Type)

	var failed outMessage
	require.NoError(t, conn.ReadJSON(&failed))
	require.Equal(t, "failed", failed.Type)
	require.Equal(t, "not_found", failed.Error)
}

func TestPingPong(t *testing.T) {
	registry := progress.NewRegistry(time.Millisecond, 5*time.Second, 16)
	_, wsURL := newTestServer(t, registry)

	conn := dial(t, wsURL)
	require.NoError(t, conn.WriteJSON(inMessage{Type: "ping"}))

	var pong outMessage
	require.NoError(t, conn.ReadJSON(&pong))
	require.Equal(t, "pong", pong.Type)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	registry := progress.NewRegistry(time.Millisecond, 5*time.Second, 16)
	_, wsURL := newTestServer(t, registry)

	handle := registry.Open("op-2", 100)

	conn := dial(t, wsURL)
	require.NoError(t, conn.WriteJSON(inMessage{Type: "subscribe", OperationID: "op-2"}))

	var subscribed outMessage
	require.NoError(t, conn.ReadJSON(&subscribed))

	var initial outMessage
	require.NoError(t, conn.ReadJSON(&initial))
	require.Equal(t, "progress", initial.Type)

	require.NoError(t, conn.WriteJSON(inMessage{Type: "unsubscribe", OperationID: "op-2"}))

	var unsubscribed outMessage
	require.NoError(t, conn.ReadJSON(&unsubscribed))
	require.Equal(t, "unsubscribed", unsubscribed.Type)

	registry.Advance(handle, 10, "")
	registry.Complete(handle, "done")

	conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	var extra outMessage
	err := conn.ReadJSON(&extra)
	require.Error(t, err)
}
