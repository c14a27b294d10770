package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prudhvinik1/syncboard/internal/models"
	"github.com/prudhvinik1/syncboard/internal/services"
	"github.com/prudhvinik1/syncboard/internal/testkit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, opts ...Option) (*httptest.Server, *services.RelayService) {
	t.Helper()
	relay := services.NewRelayService(
		testkit.NewSessionRepository(),
		testkit.NewPresenceRepository(),
		testkit.NewJournalRepository(),
		testkit.NewCheckpointRepository(),
		testkit.NewBroadcaster(),
		time.Hour,
	)
	server := httptest.NewServer(NewRouter(relay, opts...))
	t.Cleanup(server.Close)
	return server, relay
}

func createSession(t *testing.T, server *httptest.Server, name string) models.Session {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"name": name})
	resp, err := http.Post(server.URL+"/sessions", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var s models.Session
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&s))
	return s
}

func dial(t *testing.T, server *httptest.Server, sessionID, replicaID uuid.UUID) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/sessions/" + sessionID.String() + "/ws?replica=" + replicaID.String()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) models.Frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame models.Frame
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

func TestHealth(t *testing.T) {
	server, _ := newTestServer(t)

	resp, err := http.Get(server.URL + "/health")

	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSessionsREST(t *testing.T) {
	server, _ := newTestServer(t)

	// ACT: Create
	created := createSession(t, server, "retro")
	assert.Equal(t, "retro", created.Name)
	assert.NotEqual(t, uuid.Nil, created.ID)

	// List
	resp, err := http.Get(server.URL + "/sessions")
	require.NoError(t, err)
	var list []models.Session
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	resp.Body.Close()
	require.Len(t, list, 1)
	assert.Equal(t, created.ID, list[0].ID)

	// Get
	resp, err = http.Get(server.URL + "/sessions/" + created.ID.String())
	require.NoError(t, err)
	var info services.SessionInfo
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&info))
	resp.Body.Close()
	assert.Equal(t, created.ID, info.ID)
	assert.Empty(t, info.Online)

	// Delete
	req, _ := http.NewRequest(http.MethodDelete, server.URL+"/sessions/"+created.ID.String(), nil)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, err = http.Get(server.URL + "/sessions/" + created.ID.String())
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSessionsREST_BadRequests(t *testing.T) {
	server, _ := newTestServer(t)

	resp, err := http.Post(server.URL+"/sessions", "application/json", strings.NewReader(`{"name":""}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Post(server.URL+"/sessions", "application/json", strings.NewReader(`not json`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(server.URL + "/sessions/not-a-uuid")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWebSocket_RejectsUnknownSession(t *testing.T) {
	server, _ := newTestServer(t)
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/sessions/" + uuid.New().String() + "/ws?replica=" + uuid.New().String()

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)

	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWebSocket_RejectsMissingReplica(t *testing.T) {
	server, _ := newTestServer(t)
	session := createSession(t, server, "board")
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/sessions/" + session.ID.String() + "/ws"

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)

	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWebSocket_PublishReachesEveryReplica(t *testing.T) {
	server, relay := newTestServer(t)
	session := createSession(t, server, "board")

	alice := dial(t, server, session.ID, uuid.New())
	bob := dial(t, server, session.ID, uuid.New())
	assert.Equal(t, models.FrameWelcome, readFrame(t, alice).Type)
	assert.Equal(t, models.FrameWelcome, readFrame(t, bob).Type)

	// ACT: Alice draws
	payload, _ := json.Marshal(models.DrawEvent{StrokeID: "s", Points: []models.Point{{X: 1, Y: 2}}})
	require.NoError(t, alice.WriteJSON(models.Frame{Type: models.FramePublish, Kind: models.KindDraw, Payload: payload}))

	// ASSERT: Both see sequence 1, Alice included
	for _, conn := range []*websocket.Conn{alice, bob} {
		frame := readFrame(t, conn)
		require.Equal(t, models.FrameEvent, frame.Type)
		assert.Equal(t, int64(1), frame.Event.SequenceNumber)
		assert.Equal(t, models.KindDraw, frame.Event.EventType)
	}

	info, err := relay.GetSession(t.Context(), session.ID)
	require.NoError(t, err)
	assert.Len(t, info.Online, 2)
}

func TestWebSocket_LateJoinWelcome(t *testing.T) {
	server, relay := newTestServer(t)
	session := createSession(t, server, "board")
	for i := 0; i < 2; i++ {
		_, err := relay.Publish(t.Context(), session.ID, uuid.New(), models.KindClear, nil)
		require.NoError(t, err)
	}

	conn := dial(t, server, session.ID, uuid.New())
	frame := readFrame(t, conn)

	require.Equal(t, models.FrameWelcome, frame.Type)
	require.NotNil(t, frame.Welcome)
	assert.Equal(t, session.ID, frame.Welcome.SessionID)
	assert.Len(t, frame.Welcome.Events, 2)
}

func TestWebSocket_AnnouncesHead(t *testing.T) {
	server, relay := newTestServer(t, WithHeadPeriod(10*time.Millisecond))
	session := createSession(t, server, "board")
	conn := dial(t, server, session.ID, uuid.New())
	require.Equal(t, models.FrameWelcome, readFrame(t, conn).Type)

	// ACT: Sequence an event behind the connection's back
	_, err := relay.Publish(t.Context(), session.ID, uuid.New(), models.KindClear, nil)
	require.NoError(t, err)

	// ASSERT: The event and then a head frame naming it arrive
	for {
		frame := readFrame(t, conn)
		if frame.Type == models.FrameHead {
			assert.Equal(t, int64(1), frame.Head)
			return
		}
		require.Equal(t, models.FrameEvent, frame.Type)
	}
}

func TestWebSocket_ResyncAndErrors(t *testing.T) {
	server, relay := newTestServer(t)
	session := createSession(t, server, "board")
	conn := dial(t, server, session.ID, uuid.New())
	readFrame(t, conn)
	for i := 0; i < 3; i++ {
		_, err := relay.Publish(t.Context(), session.ID, uuid.New(), models.KindClear, nil)
		require.NoError(t, err)
	}
	for i := 0; i < 3; i++ {
		readFrame(t, conn)
	}

	// ACT: Ask for everything after 1
	require.NoError(t, conn.WriteJSON(models.Frame{Type: models.FrameResync, After: 1}))

	assert.Equal(t, int64(2), readFrame(t, conn).Event.SequenceNumber)
	assert.Equal(t, int64(3), readFrame(t, conn).Event.SequenceNumber)

	// ACT: A derived event is refused
	require.NoError(t, conn.WriteJSON(models.Frame{Type: models.FramePublish, Kind: models.KindCleared}))
	frame := readFrame(t, conn)
	assert.Equal(t, models.FrameError, frame.Type)
	assert.Contains(t, frame.Error, "invalid event")

	// ACT: A diverging checkpoint is reported
	cp := models.NewCheckpoint(session.ID, 3, models.CanvasState{})
	require.NoError(t, conn.WriteJSON(models.Frame{Type: models.FrameCheckpoint, Checkpoint: &cp}))
	other := models.NewCheckpoint(session.ID, 3, models.CanvasState{Strokes: []models.Stroke{{ID: "x", Points: []models.Point{{X: 1, Y: 1}}}}})
	require.NoError(t, conn.WriteJSON(models.Frame{Type: models.FrameCheckpoint, Checkpoint: &other}))
	frame = readFrame(t, conn)
	assert.Equal(t, models.FrameError, frame.Type)
	assert.Contains(t, frame.Error, "diverged")
}

func TestWebSocket_DisconnectLeaves(t *testing.T) {
	server, relay := newTestServer(t)
	session := createSession(t, server, "board")
	conn := dial(t, server, session.ID, uuid.New())
	readFrame(t, conn)

	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()

	assert.Eventually(t, func() bool {
		info, err := relay.GetSession(t.Context(), session.ID)
		return err == nil && len(info.Online) == 0
	}, 2*time.Second, 10*time.Millisecond)
}
