package websocket

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rover_monitor/internal/models"
	"rover_monitor/internal/render"
	"rover_monitor/internal/spatial"
)

type envelope struct {
	Type      string                 `json:"type"`
	Error     string                 `json:"error"`
	Seq       uint64                 `json:"seq"`
	Trail     []models.Position      `json:"trail"`
	Obstacles []models.ObstacleEntry `json:"obstacles"`
	Time      int64                  `json:"time"`
	Status    string                 `json:"status"`
}

func startHub(t *testing.T, store *spatial.Store) (*Hub, *websocket.Conn) {
	t.Helper()

	hub := NewHub()
	if store != nil {
		hub.SetController(store)
	}
	go hub.Run()

	srv := httptest.NewServer(NewHandler(hub))
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	t.Cleanup(func() {
		conn.Close()
		hub.Shutdown()
		srv.Close()
	})
	return hub, conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var env envelope
	require.NoError(t, json.Unmarshal(data, &env))
	return env
}

func sendCommand(t *testing.T, conn *websocket.Conn, cmd string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(cmd)))
}

func TestNewClientGetsWelcomeAndCurrentMap(t *testing.T) {
	store := spatial.NewStore(nil)
	store.AddTrailPoint(models.Position{X: 1, Y: 2})

	_, conn := startHub(t, store)

	assert.Equal(t, TypeWelcome, readEnvelope(t, conn).Type)

	initial := readEnvelope(t, conn)
	assert.Equal(t, TypeMap, initial.Type)
	assert.Equal(t, []models.Position{{X: 1, Y: 2}}, initial.Trail)
}

func TestRenderBroadcastsFrame(t *testing.T) {
	hub, conn := startHub(t, nil)
	require.Equal(t, TypeWelcome, readEnvelope(t, conn).Type)

	snap := spatial.Snapshot{
		Seq:   3,
		Trail: []models.Position{{X: 0, Y: 0}},
		Obstacles: []models.ObstacleEntry{
			{Position: models.Position{X: 1, Y: 1}, Obstacle: models.Obstacle{Type: models.Wall, Color: models.Red}},
		},
	}
	require.NoError(t, hub.Render(render.Frame{Snapshot: snap}))

	frame := readEnvelope(t, conn)
	assert.Equal(t, TypeMap, frame.Type)
	assert.Equal(t, uint64(3), frame.Seq)
	require.Len(t, frame.Obstacles, 1)
	assert.Equal(t, models.Red, frame.Obstacles[0].Obstacle.Color)
}

func TestLateClientReceivesLastFrame(t *testing.T) {
	hub := NewHub()
	require.NoError(t, hub.Render(render.Frame{Snapshot: spatial.Snapshot{Seq: 9}}))
	go hub.Run()

	srv := httptest.NewServer(NewHandler(hub))
	defer srv.Close()
	defer hub.Shutdown()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Equal(t, TypeWelcome, readEnvelope(t, conn).Type)
	frame := readEnvelope(t, conn)
	assert.Equal(t, TypeMap, frame.Type)
	assert.Equal(t, uint64(9), frame.Seq)
}

func TestPingCommandGetsPong(t *testing.T) {
	_, conn := startHub(t, nil)
	require.Equal(t, TypeWelcome, readEnvelope(t, conn).Type)

	sendCommand(t, conn, `{"type":"ping","params":{"time":1234}}`)
	pong := readEnvelope(t, conn)
	assert.Equal(t, TypePong, pong.Type)
	assert.Equal(t, int64(1234), pong.Time)
}

func TestClearAndSnapshotCommands(t *testing.T) {
	store := spatial.NewStore(nil)
	store.AddObstacle(models.Position{X: 4, Y: 4}, models.Green, models.Hill)

	_, conn := startHub(t, store)
	require.Equal(t, TypeWelcome, readEnvelope(t, conn).Type)
	require.Equal(t, TypeMap, readEnvelope(t, conn).Type)

	sendCommand(t, conn, `{"type":"get_snapshot","id":"a"}`)
	snap := readEnvelope(t, conn)
	assert.Equal(t, TypeMap, snap.Type)
	assert.Len(t, snap.Obstacles, 1)

	sendCommand(t, conn, `{"type":"clear"}`)
	assert.Equal(t, TypeCleared, readEnvelope(t, conn).Type)
	trail, obstacles := store.Counts()
	assert.Zero(t, trail)
	assert.Zero(t, obstacles)
}

func TestInvalidAndUnknownCommands(t *testing.T) {
	_, conn := startHub(t, nil)
	require.Equal(t, TypeWelcome, readEnvelope(t, conn).Type)

	sendCommand(t, conn, `{"type":"ping","extra":true}`)
	bad := readEnvelope(t, conn)
	assert.Equal(t, TypeError, bad.Type)

	sendCommand(t, conn, `{"type":"fly"}`)
	unknown := readEnvelope(t, conn)
	assert.Equal(t, TypeError, unknown.Type)
	assert.Contains(t, unknown.Error, "fly")
}

func TestRenderWithoutClientsOnlyCaches(t *testing.T) {
	hub := NewHub()
	require.NoError(t, hub.Render(render.Frame{Snapshot: spatial.Snapshot{Seq: 1}}))
	assert.Len(t, hub.broadcast, 0)
	assert.Equal(t, "websocket", hub.Name())
}
