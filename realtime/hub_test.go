package realtime

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drawdeck/core"
	"drawdeck/handlers/auth"
	"drawdeck/stores/memory"
)

func newTestHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	auth.SetSecretForTest([]byte("test-secret"))

	store := memory.NewStore()
	require.NoError(t, store.Save(context.Background(), &core.Project{
		ID:      "p1",
		OwnerID: "google:owner",
		Title:   "board",
		Shares: map[string]core.Role{
			"editor@example.com": core.RoleEditor,
			"viewer@example.com": core.RoleViewer,
		},
	}))

	hub := NewHub(store)
	srv := httptest.NewServer(hub.HandleWS())
	t.Cleanup(srv.Close)
	return hub, srv
}

func accessTokenFor(t *testing.T, id, email string) string {
	t.Helper()
	token, _, err := auth.CreateTokenPair(&core.User{ID: id, Email: email})
	require.NoError(t, err)
	return token
}

func dialHub(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	wsURL := strings.Replace(srv.URL, "http://", "ws://", 1) + "?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func joinProject(t *testing.T, conn *websocket.Conn, projectID string) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(core.Message{Event: core.EventJoinProject, ProjectID: projectID}))
}

// joinRoom joins and consumes the current_users acknowledgement every
// successful join produces, returning the roster it carried.
func joinRoom(t *testing.T, conn *websocket.Conn, projectID string) []core.Participant {
	t.Helper()
	joinProject(t, conn, projectID)
	msg := readMsg(t, conn)
	require.Equal(t, core.EventCurrentUsers, msg.Event)
	var roster core.CurrentUsers
	require.NoError(t, json.Unmarshal(msg.Data, &roster))
	return roster.Users
}

func readMsg(t *testing.T, conn *websocket.Conn) core.Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg core.Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestHubRejectsInvalidToken(t *testing.T) {
	_, srv := newTestHub(t)

	wsURL := strings.Replace(srv.URL, "http://", "ws://", 1) + "?token=not-a-jwt"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 401, resp.StatusCode)
}

func TestHubRejectsRefreshTokenOnConnect(t *testing.T) {
	_, srv := newTestHub(t)

	_, refresh, err := auth.CreateTokenPair(&core.User{ID: "google:owner", Email: "owner@example.com"})
	require.NoError(t, err)

	wsURL := strings.Replace(srv.URL, "http://", "ws://", 1) + "?token=" + refresh
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 401, resp.StatusCode)
}

func TestHubJoinAndRoster(t *testing.T) {
	hub, srv := newTestHub(t)

	// The first joiner still gets a roster frame, just an empty one.
	owner := dialHub(t, srv, accessTokenFor(t, "google:owner", "owner@example.com"))
	assert.Empty(t, joinRoom(t, owner, "p1"))

	// The newcomer gets the roster as of before their join.
	editor := dialHub(t, srv, accessTokenFor(t, "google:editor", "editor@example.com"))
	users := joinRoom(t, editor, "p1")
	require.Len(t, users, 1)
	assert.Equal(t, "google:owner", users[0].UserID)

	// The owner hears about the newcomer.
	joined := readMsg(t, owner)
	require.Equal(t, core.EventUserJoined, joined.Event)
	var user core.Participant
	require.NoError(t, json.Unmarshal(joined.Data, &user))
	assert.Equal(t, "google:editor", user.UserID)
	assert.Equal(t, "editor", user.Name)
	assert.Equal(t, core.RoleEditor, user.Role)
	assert.NotEmpty(t, user.Color)

	assert.Eventually(t, func() bool {
		return hub.RoomSizes()["p1"] == 2
	}, time.Second, 10*time.Millisecond)
}

func TestHubJoinUnknownProject(t *testing.T) {
	_, srv := newTestHub(t)

	conn := dialHub(t, srv, accessTokenFor(t, "google:owner", "owner@example.com"))
	joinProject(t, conn, "missing")

	msg := readMsg(t, conn)
	assert.Equal(t, core.EventError, msg.Event)
}

func TestHubJoinWithoutRole(t *testing.T) {
	_, srv := newTestHub(t)

	conn := dialHub(t, srv, accessTokenFor(t, "google:stranger", "stranger@example.com"))
	joinProject(t, conn, "p1")

	msg := readMsg(t, conn)
	assert.Equal(t, core.EventError, msg.Event)
}

func TestHubCanvasUpdateFanOut(t *testing.T) {
	_, srv := newTestHub(t)

	owner := dialHub(t, srv, accessTokenFor(t, "google:owner", "owner@example.com"))
	joinRoom(t, owner, "p1")
	editor := dialHub(t, srv, accessTokenFor(t, "google:editor", "editor@example.com"))
	joinRoom(t, editor, "p1")
	readMsg(t, owner) // user_joined

	obj := core.Object{ID: "r1", Type: core.ObjectRectangle, X: 1, Y: 2}
	update := core.NewMessage(core.EventCanvasUpdate, "p1", core.CanvasUpdate{Action: core.ActionAdd, Object: &obj})
	require.NoError(t, editor.WriteJSON(update))

	// Delivered verbatim to the other member.
	got := readMsg(t, owner)
	require.Equal(t, core.EventCanvasUpdate, got.Event)
	var payload core.CanvasUpdate
	require.NoError(t, json.Unmarshal(got.Data, &payload))
	assert.Equal(t, core.ActionAdd, payload.Action)
	require.NotNil(t, payload.Object)
	assert.Equal(t, "r1", payload.Object.ID)

	// The sender does not hear its own update echoed back.
	require.NoError(t, editor.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	var echo core.Message
	assert.Error(t, editor.ReadJSON(&echo))
}

func TestHubViewerCannotEdit(t *testing.T) {
	_, srv := newTestHub(t)

	viewer := dialHub(t, srv, accessTokenFor(t, "google:viewer", "viewer@example.com"))
	joinRoom(t, viewer, "p1")

	obj := core.Object{ID: "r1", Type: core.ObjectRectangle}
	update := core.NewMessage(core.EventCanvasUpdate, "p1", core.CanvasUpdate{Action: core.ActionAdd, Object: &obj})
	require.NoError(t, viewer.WriteJSON(update))

	msg := readMsg(t, viewer)
	assert.Equal(t, core.EventError, msg.Event)
}

func TestHubCursorEnrichment(t *testing.T) {
	_, srv := newTestHub(t)

	owner := dialHub(t, srv, accessTokenFor(t, "google:owner", "owner@example.com"))
	joinRoom(t, owner, "p1")
	editor := dialHub(t, srv, accessTokenFor(t, "google:editor", "editor@example.com"))
	joinRoom(t, editor, "p1")
	readMsg(t, owner) // user_joined

	// A client cannot claim someone else's identity on a cursor frame.
	spoofed := core.NewMessage(core.EventCursorMove, "p1", core.CursorMove{
		X: 7, Y: 9, UserID: "google:owner", Name: "impostor",
	})
	require.NoError(t, editor.WriteJSON(spoofed))

	got := readMsg(t, owner)
	require.Equal(t, core.EventCursorMove, got.Event)
	var cursor core.CursorMove
	require.NoError(t, json.Unmarshal(got.Data, &cursor))
	assert.Equal(t, "google:editor", cursor.UserID)
	assert.Equal(t, "editor", cursor.Name)
	assert.Equal(t, core.RoleEditor, cursor.Role)
	assert.Equal(t, 7.0, cursor.X)
	assert.Equal(t, 9.0, cursor.Y)
}

func TestHubLeaveNotifiesRoom(t *testing.T) {
	hub, srv := newTestHub(t)

	owner := dialHub(t, srv, accessTokenFor(t, "google:owner", "owner@example.com"))
	joinRoom(t, owner, "p1")
	editor := dialHub(t, srv, accessTokenFor(t, "google:editor", "editor@example.com"))
	joinRoom(t, editor, "p1")
	readMsg(t, owner) // user_joined

	require.NoError(t, editor.WriteJSON(core.Message{Event: core.EventLeaveProject}))

	left := readMsg(t, owner)
	require.Equal(t, core.EventUserLeft, left.Event)
	var user core.Participant
	require.NoError(t, json.Unmarshal(left.Data, &user))
	assert.Equal(t, "google:editor", user.UserID)

	assert.Eventually(t, func() bool {
		return hub.RoomSizes()["p1"] == 1
	}, time.Second, 10*time.Millisecond)
}

func TestHubDisconnectNotifiesRoom(t *testing.T) {
	hub, srv := newTestHub(t)

	owner := dialHub(t, srv, accessTokenFor(t, "google:owner", "owner@example.com"))
	joinRoom(t, owner, "p1")
	editor := dialHub(t, srv, accessTokenFor(t, "google:editor", "editor@example.com"))
	joinRoom(t, editor, "p1")
	readMsg(t, owner) // user_joined

	editor.Close()

	left := readMsg(t, owner)
	assert.Equal(t, core.EventUserLeft, left.Event)
	assert.Eventually(t, func() bool {
		return hub.RoomSizes()["p1"] == 1
	}, time.Second, 10*time.Millisecond)
}
