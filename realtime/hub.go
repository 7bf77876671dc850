package realtime

import (
	"context"
	"drawdeck/core"
	"drawdeck/handlers/auth"
	"drawdeck/stores"
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const sendBufferSize = 64

// Hub owns the realtime rooms: one room per project, fan-out to every
// member except the sender. Delivery is at-most-once; there are no acks
// and no replay, and a slow consumer is dropped rather than buffered
// without bound.
type Hub struct {
	store    stores.Store
	upgrader websocket.Upgrader

	mu    sync.RWMutex
	rooms map[string]map[*client]bool
}

// client is one authenticated websocket connection, scoped to at most
// one project room at a time.
type client struct {
	hub  *Hub
	ws   *websocket.Conn
	send chan core.Message

	sendMu sync.Mutex
	closed bool

	user      core.Participant
	projectID string
	role      core.Role
}

func NewHub(store stores.Store) *Hub {
	return &Hub{
		store: store,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		rooms: make(map[string]map[*client]bool),
	}
}

// RoomSizes returns the current member count per project room.
func (h *Hub) RoomSizes() map[string]int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	sizes := make(map[string]int, len(h.rooms))
	for id, members := range h.rooms {
		sizes[id] = len(members)
	}
	return sizes
}

// HandleWS upgrades GET /ws?token=... into a realtime connection. The
// connection is rejected outright without a verifiable access token.
func (h *Hub) HandleWS() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		if token == "" {
			http.Error(w, "token is required", http.StatusUnauthorized)
			return
		}
		claims, err := auth.ParseJWT(token)
		if err != nil || claims.Type != auth.TokenTypeAccess {
			logrus.WithError(err).Warn("Realtime connection rejected: invalid token")
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		ws, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			logrus.WithError(err).Warn("Failed to upgrade websocket")
			return
		}

		c := &client{
			hub:  h,
			ws:   ws,
			send: make(chan core.Message, sendBufferSize),
			user: core.Participant{
				UserID: claims.UserID,
				Name:   strings.SplitN(claims.Subject, "@", 2)[0],
				Email:  claims.Subject,
				Color:  core.UserColor(claims.UserID),
			},
		}
		logrus.WithFields(logrus.Fields{"user_id": c.user.UserID, "email": c.user.Email}).Info("Realtime client connected")

		go c.writePump()
		c.readPump()
	}
}

func (c *client) writePump() {
	for msg := range c.send {
		if err := c.ws.WriteJSON(msg); err != nil {
			break
		}
	}
	c.ws.Close()
}

func (c *client) readPump() {
	defer c.teardown()

	for {
		var msg core.Message
		if err := c.ws.ReadJSON(&msg); err != nil {
			return
		}

		switch msg.Event {
		case core.EventJoinProject:
			c.handleJoin(msg.ProjectID)
		case core.EventLeaveProject:
			c.leaveRoom(true)
		case core.EventCanvasUpdate:
			c.handleCanvasUpdate(msg)
		case core.EventCursorMove:
			c.handleCursorMove(msg)
		default:
			logrus.WithField("event", msg.Event).Debug("Ignoring unknown realtime event")
		}
	}
}

func (c *client) sendError(message string) {
	c.trySend(core.NewMessage(core.EventError, "", core.ErrorPayload{Message: message}))
}

// trySend queues a message without blocking the hub; a full buffer means
// the consumer is too slow and the message is dropped (at-most-once).
func (c *client) trySend(msg core.Message) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- msg:
	default:
		logrus.WithField("user_id", c.user.UserID).Warn("Dropping message to slow realtime consumer")
	}
}

func (c *client) handleJoin(projectID string) {
	log := logrus.WithFields(logrus.Fields{"user_id": c.user.UserID, "project_id": projectID})

	project, err := c.hub.store.Get(context.Background(), projectID)
	if err != nil {
		log.Warn("Join rejected: project not found")
		c.sendError("You do not have permission to access this project")
		return
	}
	role := project.RoleOf(c.user.UserID, c.user.Email)
	if role == "" {
		log.Warn("Join rejected: no role on project")
		c.sendError("You do not have permission to access this project")
		return
	}

	c.leaveRoom(true) // at most one room per connection
	c.projectID = projectID
	c.role = role
	c.user.Role = role

	hub := c.hub
	hub.mu.Lock()
	members, ok := hub.rooms[projectID]
	if !ok {
		members = make(map[*client]bool)
		hub.rooms[projectID] = members
	}
	roster := make([]core.Participant, 0, len(members))
	for member := range members {
		roster = append(roster, member.user)
	}
	members[c] = true
	hub.mu.Unlock()

	log.WithField("role", role).Info("Joined project room")

	// Tell the room about the newcomer, and the newcomer about the
	// room. The roster frame goes out even when the joiner is alone, so
	// an empty room is distinguishable from a lost frame.
	hub.broadcast(projectID, c, core.NewMessage(core.EventUserJoined, projectID, c.user))
	c.trySend(core.NewMessage(core.EventCurrentUsers, projectID, core.CurrentUsers{Users: roster}))
}

func (c *client) leaveRoom(notify bool) {
	if c.projectID == "" {
		return
	}
	projectID := c.projectID

	hub := c.hub
	hub.mu.Lock()
	if members, ok := hub.rooms[projectID]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(hub.rooms, projectID)
		}
	}
	hub.mu.Unlock()

	if notify {
		hub.broadcast(projectID, c, core.NewMessage(core.EventUserLeft, projectID, core.Participant{
			UserID: c.user.UserID,
			Name:   c.user.Name,
		}))
	}
	logrus.WithFields(logrus.Fields{"user_id": c.user.UserID, "project_id": projectID}).Info("Left project room")
	c.projectID = ""
	c.role = ""
}

func (c *client) handleCanvasUpdate(msg core.Message) {
	if c.projectID == "" || msg.ProjectID != c.projectID {
		return
	}
	if !c.role.CanEdit() {
		logrus.WithFields(logrus.Fields{"user_id": c.user.UserID, "role": c.role}).Warn("canvas_update denied")
		c.sendError("You do not have permission to edit this project")
		return
	}
	// Fan out verbatim to everyone else in the room.
	c.hub.broadcast(c.projectID, c, msg)
}

func (c *client) handleCursorMove(msg core.Message) {
	if c.projectID == "" || msg.ProjectID != c.projectID {
		return
	}

	var cursor core.CursorMove
	if err := json.Unmarshal(msg.Data, &cursor); err != nil {
		return
	}
	// Enrich with the authenticated sender's identity before fan-out;
	// clients never get to claim someone else's cursor.
	cursor.UserID = c.user.UserID
	cursor.Name = c.user.Name
	cursor.Email = c.user.Email
	cursor.Color = c.user.Color
	cursor.Role = c.role

	c.hub.broadcast(c.projectID, c, core.NewMessage(core.EventCursorMove, c.projectID, cursor))
}

// broadcast delivers msg to every room member except skip.
func (h *Hub) broadcast(projectID string, skip *client, msg core.Message) {
	h.mu.RLock()
	members := make([]*client, 0, len(h.rooms[projectID]))
	for member := range h.rooms[projectID] {
		if member != skip {
			members = append(members, member)
		}
	}
	h.mu.RUnlock()

	for _, member := range members {
		member.trySend(msg)
	}
}

func (c *client) teardown() {
	c.leaveRoom(true)
	c.sendMu.Lock()
	c.closed = true
	close(c.send)
	c.sendMu.Unlock()
	logrus.WithField("user_id", c.user.UserID).Info("Realtime client disconnected")
}
