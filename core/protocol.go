package core

import "encoding/json"

// Realtime event names. One logical connection serves one open project;
// every frame is a JSON-encoded Message tagged with one of these events.
const (
	EventJoinProject  = "join_project"
	EventLeaveProject = "leave_project"
	EventCanvasUpdate = "canvas_update"
	EventCursorMove   = "cursor_move"
	EventUserJoined   = "user_joined"
	EventUserLeft     = "user_left"
	EventCurrentUsers = "current_users"
	EventError        = "error"
)

// Canvas mutation actions carried by canvas_update.
const (
	ActionAdd    = "add"
	ActionDelete = "delete"
	ActionEdit   = "edit"
)

type (
	// Message is the wire envelope. Data holds the event-specific payload
	// and is decoded lazily by the receiver.
	Message struct {
		Event     string          `json:"event"`
		ProjectID string          `json:"projectUuid,omitempty"`
		Data      json.RawMessage `json:"data,omitempty"`
	}

	// CanvasUpdate describes a single document mutation. Add and edit carry
	// the full object; delete carries only the id.
	CanvasUpdate struct {
		Action   string  `json:"action"`
		Object   *Object `json:"object,omitempty"`
		ObjectID string  `json:"objectId,omitempty"`
	}

	// CursorMove is sent by a client with only coordinates; the server
	// enriches it with the sender's identity before fan-out.
	CursorMove struct {
		X      float64 `json:"x"`
		Y      float64 `json:"y"`
		UserID string  `json:"userId,omitempty"`
		Name   string  `json:"name,omitempty"`
		Email  string  `json:"email,omitempty"`
		Color  string  `json:"color,omitempty"`
		Role   Role    `json:"role,omitempty"`
	}

	// Participant identifies one connected user, as carried by
	// user_joined, user_left and current_users.
	Participant struct {
		UserID string `json:"userId"`
		Name   string `json:"name"`
		Email  string `json:"email,omitempty"`
		Color  string `json:"color,omitempty"`
		Role   Role   `json:"role,omitempty"`
	}

	// CurrentUsers is the roster sent to a client right after it joins.
	CurrentUsers struct {
		Users []Participant `json:"users"`
	}

	// ErrorPayload is sent to a single client when a request is rejected.
	ErrorPayload struct {
		Message string `json:"message"`
	}
)

// NewMessage marshals payload into a Message envelope. A marshal failure
// here means a programming error, so it panics rather than returning one.
func NewMessage(event, projectID string, payload any) Message {
	m := Message{Event: event, ProjectID: projectID}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			panic("core: unmarshalable protocol payload: " + err.Error())
		}
		m.Data = data
	}
	return m
}
