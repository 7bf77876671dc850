package client

import (
	"context"
	"encoding/json"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"drawdeck/core"
)

// Transport connection states.
type TransportState string

const (
	StateIdle             TransportState = "idle"
	StateConnecting       TransportState = "connecting"
	StateConnected        TransportState = "connected"
	StateReauthenticating TransportState = "reauthenticating"
	StateClosed           TransportState = "closed"
)

// Transport is the realtime channel for one open project. It owns the
// websocket connection, dispatches inbound frames into the document and
// presence reducers, and follows the session's credential: a token
// rotation tears the connection down and redials with the fresh token,
// and a cleared credential drops it back to idle.
type Transport struct {
	session  *Session
	doc      *DocumentStore
	presence *PresenceTracker

	projectID string

	mu       sync.Mutex
	state    TransportState
	conn     *websocket.Conn
	writeMu  sync.Mutex
	unsub    func()
	onState  func(TransportState)
	lastCur  time.Time
	throttle time.Duration
}

// NewTransport wires a transport to the document and presence reducers
// for one project. The connection is not opened until Open is called.
func NewTransport(session *Session, projectID string, doc *DocumentStore, presence *PresenceTracker) *Transport {
	t := &Transport{
		session:   session,
		doc:       doc,
		presence:  presence,
		projectID: projectID,
		state:     StateIdle,
		throttle:  session.cfg.CursorThrottle,
	}
	t.unsub = session.OnTokenChange(t.onTokenChange)
	return t
}

// State returns the current connection state.
func (t *Transport) State() TransportState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// OnStateChange sets the single state observer. Must be set before Open.
func (t *Transport) OnStateChange(fn func(TransportState)) {
	t.mu.Lock()
	t.onState = fn
	t.mu.Unlock()
}

func (t *Transport) setState(s TransportState) {
	t.mu.Lock()
	if t.state == s || t.state == StateClosed {
		t.mu.Unlock()
		return
	}
	t.state = s
	fn := t.onState
	t.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

// Open dials the realtime endpoint and joins the project room. Without
// a stored access token it is a no-op and the transport stays idle:
// the realtime channel is only available to authenticated users. Call
// Open again after a login to connect.
func (t *Transport) Open(ctx context.Context) error {
	token := t.session.AccessToken(ctx)
	if token == "" {
		return nil
	}
	return t.dial(ctx, token)
}

func (t *Transport) dial(ctx context.Context, token string) error {
	t.mu.Lock()
	if t.state == StateClosed {
		t.mu.Unlock()
		return ErrClosed
	}
	if t.state == StateIdle {
		t.state = StateConnecting
	}
	t.mu.Unlock()

	endpoint := t.session.cfg.WSURL + "?token=" + url.QueryEscape(token)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		t.setState(StateIdle)
		return err
	}

	t.mu.Lock()
	if t.state == StateClosed {
		t.mu.Unlock()
		conn.Close()
		return ErrClosed
	}
	if old := t.conn; old != nil {
		old.Close()
	}
	t.conn = conn
	t.mu.Unlock()

	if err := t.writeMessage(conn, core.Message{Event: core.EventJoinProject, ProjectID: t.projectID}); err != nil {
		conn.Close()
		t.setState(StateIdle)
		return err
	}

	t.setState(StateConnected)
	logrus.WithField("project", t.projectID).Debug("Realtime channel connected")

	go t.readLoop(conn)
	return nil
}

// onTokenChange reacts to credential rotation. A fresh token while a
// connection exists means the old one was minted with a stale
// credential: the transport redials so the server sees the new token.
// An empty token means logout and drops the channel.
func (t *Transport) onTokenChange(accessToken string) {
	t.mu.Lock()
	state := t.state
	t.mu.Unlock()

	if state == StateClosed || state == StateIdle {
		return
	}

	if accessToken == "" {
		t.disconnect()
		t.setState(StateIdle)
		return
	}

	t.setState(StateReauthenticating)
	t.disconnect()
	if err := t.dial(context.Background(), accessToken); err != nil {
		logrus.WithError(err).Warn("Reconnect after token rotation failed")
		t.setState(StateIdle)
	}
}

// disconnect closes the socket without changing logical state.
func (t *Transport) disconnect() {
	t.mu.Lock()
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
	t.presence.Clear()
}

func (t *Transport) readLoop(conn *websocket.Conn) {
	for {
		var msg core.Message
		if err := conn.ReadJSON(&msg); err != nil {
			t.mu.Lock()
			current := t.conn == conn
			state := t.state
			t.mu.Unlock()
			// A stale loop whose socket was replaced just exits; the
			// live connection's loop reports the drop.
			if current && state == StateConnected {
				logrus.WithError(err).Debug("Realtime channel dropped")
				t.disconnect()
				t.setState(StateIdle)
			}
			return
		}
		t.dispatch(msg)
	}
}

func (t *Transport) dispatch(msg core.Message) {
	switch msg.Event {
	case core.EventCanvasUpdate:
		if msg.ProjectID != "" && msg.ProjectID != t.projectID {
			return
		}
		var update core.CanvasUpdate
		if err := json.Unmarshal(msg.Data, &update); err != nil {
			logrus.WithError(err).Warn("Bad canvas_update payload")
			return
		}
		t.doc.ApplyRemote(update)

	case core.EventCursorMove:
		var move core.CursorMove
		if err := json.Unmarshal(msg.Data, &move); err != nil {
			return
		}
		t.presence.CursorMoved(move)

	case core.EventUserJoined:
		var user core.Participant
		if err := json.Unmarshal(msg.Data, &user); err != nil {
			return
		}
		t.presence.UserJoined(user)

	case core.EventUserLeft:
		var user core.Participant
		if err := json.Unmarshal(msg.Data, &user); err != nil {
			return
		}
		t.presence.UserLeft(user.UserID)

	case core.EventCurrentUsers:
		var roster core.CurrentUsers
		if err := json.Unmarshal(msg.Data, &roster); err != nil {
			return
		}
		t.presence.SetRoster(roster.Users)

	case core.EventError:
		var payload core.ErrorPayload
		_ = json.Unmarshal(msg.Data, &payload)
		logrus.WithField("message", payload.Message).Warn("Server rejected realtime request")
	}
}

func (t *Transport) writeMessage(conn *websocket.Conn, msg core.Message) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return conn.WriteJSON(msg)
}

func (t *Transport) send(msg core.Message) error {
	t.mu.Lock()
	conn := t.conn
	state := t.state
	t.mu.Unlock()
	if state == StateClosed {
		return ErrClosed
	}
	if conn == nil || state != StateConnected {
		return nil
	}
	return t.writeMessage(conn, msg)
}

// SendCanvasUpdate broadcasts one local mutation to the room. When the
// channel is down the update is silently skipped; the autosave path
// still persists it.
func (t *Transport) SendCanvasUpdate(update core.CanvasUpdate) error {
	return t.send(core.NewMessage(core.EventCanvasUpdate, t.projectID, update))
}

// SendCursor reports the local pointer position, throttled so a stream
// of move events collapses to at most one frame per throttle period.
func (t *Transport) SendCursor(x, y float64) error {
	t.mu.Lock()
	now := time.Now()
	if now.Sub(t.lastCur) < t.throttle {
		t.mu.Unlock()
		return nil
	}
	t.lastCur = now
	t.mu.Unlock()

	return t.send(core.NewMessage(core.EventCursorMove, t.projectID, core.CursorMove{X: x, Y: y}))
}

// Close leaves the room and releases the connection. The transport is
// terminal afterwards; a new one must be created to rejoin.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.state == StateClosed {
		t.mu.Unlock()
		return nil
	}
	conn := t.conn
	t.conn = nil
	t.state = StateClosed
	t.mu.Unlock()

	if t.unsub != nil {
		t.unsub()
	}
	if conn != nil {
		_ = t.writeMessage(conn, core.Message{Event: core.EventLeaveProject, ProjectID: t.projectID})
		conn.Close()
	}
	t.presence.Clear()
	return nil
}
