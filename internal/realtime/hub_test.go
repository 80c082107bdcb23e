package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ButyrinIA/forum/internal/events"
	"github.com/ButyrinIA/forum/internal/metrics"
	"github.com/ButyrinIA/forum/internal/models"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func startHub(t *testing.T, buffer int) (*Hub, *httptest.Server, *metrics.Collector) {
	t.Helper()
	collector := metrics.New("forum")
	hub := NewHub(zap.NewNop(), collector, buffer)
	srv := httptest.NewServer(hub)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return hub, srv, collector
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) events.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	env, err := events.Decode(raw)
	require.NoError(t, err)
	return env
}

func TestHub_FanOut(t *testing.T) {
	hub, srv, collector := startHub(t, 0)
	a := dial(t, srv)
	b := dial(t, srv)
	require.Eventually(t, func() bool { return hub.Count() == 2 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, 2.0, testutil.ToFloat64(collector.ActiveConnections))

	event := events.NewVoteUpdate("q1", models.VoteSets{UpVotes: []string{"alice"}, DownVotes: []string{}})
	require.NoError(t, hub.Publish(context.Background(), event))

	for _, conn := range []*websocket.Conn{a, b} {
		env := readEnvelope(t, conn)
		assert.Equal(t, events.VoteUpdate, env.Event)
		assert.JSONEq(t, `{"qid":"q1","upVotes":["alice"],"downVotes":[]}`, string(env.Data))
	}
	assert.Equal(t, 2.0, testutil.ToFloat64(collector.Deliveries))
}

func TestHub_DisconnectedClientIsRemoved(t *testing.T) {
	hub, srv, collector := startHub(t, 0)
	conn := dial(t, srv)
	require.Eventually(t, func() bool { return hub.Count() == 1 }, time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return hub.Count() == 0 }, time.Second, 10*time.Millisecond)
	assert.Zero(t, testutil.ToFloat64(collector.ActiveConnections))
	assert.Zero(t, hub.Broadcast([]byte(`{"event":"viewsUpdate","data":{}}`)))
}

func TestHub_DropsSlowClient(t *testing.T) {
	collector := metrics.New("forum")
	hub := NewHub(zap.NewNop(), collector, 1)

	// A client with no pumps never drains its queue.
	slow := &Client{id: "slow", hub: hub, send: make(chan []byte, 1), logger: zap.NewNop()}
	hub.clients[slow] = struct{}{}

	assert.Equal(t, 1, hub.Broadcast([]byte("first")))
	assert.Equal(t, 0, hub.Broadcast([]byte("second")))
	assert.Zero(t, hub.Count())
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.DroppedClients))

	// The queued frame is still there, then the channel is closed.
	assert.Equal(t, []byte("first"), <-slow.send)
	_, ok := <-slow.send
	assert.False(t, ok)
}

func TestHub_Close(t *testing.T) {
	hub, srv, _ := startHub(t, 0)
	conn := dial(t, srv)
	require.Eventually(t, func() bool { return hub.Count() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, hub.Close())
	assert.Zero(t, hub.Count())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestHub_PublishEncodeError(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil, 0)
	err := hub.Publish(context.Background(), events.Event{Name: "bad", Payload: make(chan int)})
	assert.Error(t, err)
}
