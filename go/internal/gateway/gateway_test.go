package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/roomsync/go/internal/models"
	"github.com/mcdev12/roomsync/go/internal/rpc"
	"github.com/mcdev12/roomsync/go/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRoom struct {
	mu       sync.Mutex
	view     *session.View
	commands []session.Command
	err      error
}

func (f *fakeRoom) View() *session.View {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.view
}

func (f *fakeRoom) Submit(cmd session.Command) <-chan error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, cmd)
	reply := make(chan error, 1)
	reply <- f.err
	return reply
}

func (f *fakeRoom) submitted() []session.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]session.Command(nil), f.commands...)
}

func newFakeRoom() *fakeRoom {
	return &fakeRoom{view: &session.View{
		Local:        models.Peer{ID: "a", Name: "alice"},
		Authority:    "a",
		Clock:        models.RoomClock{TimeLeft: 12.3},
		TimeLeftText: "00:13",
		Records: []models.PlayerRecord{
			{EntityID: "a", Name: "alice", Health: 40, Score: 100},
		},
		Tick: 7,
	}}
}

func newTestServer(t *testing.T, room *fakeRoom) *httptest.Server {
	metrics := session.NewCounterMetrics()
	metrics.RecordMessage(rpc.KindDie, false)
	svc := NewService(DefaultConfig(), room, metrics, nil)
	srv := httptest.NewServer(svc.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, newFakeRoom())
	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestGetRoomState(t *testing.T) {
	srv := newTestServer(t, newFakeRoom())
	resp, err := http.Get(srv.URL + "/api/room/state")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var view session.View
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&view))
	assert.Equal(t, "00:13", view.TimeLeftText)
	assert.Equal(t, uint64(7), view.Tick)
}

func TestGetRoomStateNotReady(t *testing.T) {
	srv := newTestServer(t, &fakeRoom{})
	resp, err := http.Get(srv.URL + "/api/room/state")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestGetRecord(t *testing.T) {
	srv := newTestServer(t, newFakeRoom())

	resp, err := http.Get(srv.URL + "/api/room/records/a")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var rec models.PlayerRecord
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rec))
	assert.Equal(t, 40, rec.Health)

	missing, err := http.Get(srv.URL + "/api/room/records/zz")
	require.NoError(t, err)
	defer missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestGetStats(t *testing.T) {
	srv := newTestServer(t, newFakeRoom())
	resp, err := http.Get(srv.URL + "/api/room/stats")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body struct {
		Connections int           `json:"connections"`
		Session     session.Stats `json:"session"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Zero(t, body.Connections)
	assert.Equal(t, uint64(1), body.Session.Messages[rpc.KindDie])
}

func TestGetSchema(t *testing.T) {
	srv := newTestServer(t, newFakeRoom())
	resp, err := http.Get(srv.URL + "/api/room/schema")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		ClientCommand struct {
			Title      string `json:"title"`
			Properties map[string]struct {
				Enum []string `json:"enum"`
			} `json:"properties"`
		} `json:"client_command"`
		RoomEvent struct {
			Properties map[string]json.RawMessage `json:"properties"`
		} `json:"room_event"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "Client Command", body.ClientCommand.Title)
	assert.Contains(t, body.ClientCommand.Properties["type"].Enum, "deploy")
	assert.Contains(t, body.ClientCommand.Properties["type"].Enum, "pickup")
	assert.Contains(t, body.RoomEvent.Properties, "view")
}

func TestConnectQueries(t *testing.T) {
	srv := newTestServer(t, newFakeRoom())

	resp, err := http.Post(srv.URL+GetRoomStateProcedure, "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var state GetRoomStateResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&state))
	require.NotNil(t, state.View)
	assert.Equal(t, models.PeerID("a"), state.View.Authority)

	resp2, err := http.Post(srv.URL+GetRecordProcedure, "application/json", strings.NewReader(`{"peer_id":"a"}`))
	require.NoError(t, err)
	defer resp2.Body.Close()
	require.Equal(t, http.StatusOK, resp2.StatusCode)
	var rec GetRecordResponse
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&rec))
	assert.Equal(t, 100, rec.Record.Score)

	resp3, err := http.Post(srv.URL+GetRecordProcedure, "application/json", strings.NewReader(`{"peer_id":"nobody"}`))
	require.NoError(t, err)
	defer resp3.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp3.StatusCode)
}

func readEvent(t *testing.T, conn *websocket.Conn) RoomEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev RoomEvent
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func TestWebSocketCommands(t *testing.T) {
	room := newFakeRoom()
	srv := newTestServer(t, room)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/room?name=alice"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	first := readEvent(t, conn)
	assert.Equal(t, EventTypeView, first.Type)
	require.NotNil(t, first.View)
	assert.Equal(t, uint64(7), first.View.Tick)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "deploy"}))
	ok := readEvent(t, conn)
	assert.Equal(t, EventTypeCommand, ok.Type)
	assert.Equal(t, "deploy", ok.Command)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "fly"}))
	bad := readEvent(t, conn)
	assert.Equal(t, EventTypeError, bad.Type)

	room.mu.Lock()
	room.err = session.ErrNotPlaying
	room.mu.Unlock()
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "deploy"}))
	refused := readEvent(t, conn)
	assert.Equal(t, EventTypeError, refused.Type)
	assert.Equal(t, session.ErrNotPlaying.Error(), refused.Error)

	cmds := room.submitted()
	require.Len(t, cmds, 2)
	assert.Equal(t, session.DeployCommand{}, cmds[0])
}

func TestWebSocketPingsOnClock(t *testing.T) {
	clock := clockwork.NewFakeClock()
	cfg := DefaultConfig()
	svc := NewService(cfg, newFakeRoom(), nil, clock)
	srv := httptest.NewServer(svc.Handler())
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/room?name=alice"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, EventTypeView, readEvent(t, conn).Type)
	require.NoError(t, conn.SetReadDeadline(time.Time{}))

	pinged := make(chan struct{}, 1)
	conn.SetPingHandler(func(string) error {
		select {
		case pinged <- struct{}{}:
		default:
		}
		return nil
	})
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))

	select {
	case <-pinged:
		t.Fatal("ping sent before the interval elapsed")
	case <-time.After(50 * time.Millisecond):
	}

	clock.Advance(cfg.ConnectionConfig.PingInterval)
	select {
	case <-pinged:
	case <-time.After(time.Second):
		t.Fatal("no ping after the interval elapsed")
	}
}

func TestClientCommandMapping(t *testing.T) {
	cmd, err := ClientCommand{Type: "shoot", Angle: 45, Direction: models.Vec2{X: 1}}.ToCommand()
	require.NoError(t, err)
	assert.Equal(t, session.ShootCommand{Direction: models.Vec2{X: 1}, Angle: 45}, cmd)

	cmd, err = ClientCommand{Type: "damage", Target: "b", Power: 20}.ToCommand()
	require.NoError(t, err)
	assert.Equal(t, session.DealDamageCommand{Target: "b", Power: 20}, cmd)

	cmd, err = ClientCommand{Type: "destroy"}.ToCommand()
	require.NoError(t, err)
	assert.Equal(t, session.DestroyAvatarCommand{}, cmd)

	_, err = ClientCommand{Type: ""}.ToCommand()
	assert.Error(t, err)
}
