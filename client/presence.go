package client

import (
	"sync"

	"drawdeck/core"
)

// Cursor is the last reported pointer position for a participant.
type Cursor struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Presence is one remote participant with an optional cursor position.
type Presence struct {
	core.Participant
	Cursor *Cursor `json:"cursor,omitempty"`
}

// PresenceTracker maintains the roster of remote participants in the
// open project. It is a pure reducer over the presence events the
// realtime channel delivers; observers are notified after each change.
type PresenceTracker struct {
	mu        sync.RWMutex
	users     map[string]*Presence
	observers map[int]func([]Presence)
	nextObs   int
}

func NewPresenceTracker() *PresenceTracker {
	return &PresenceTracker{
		users:     make(map[string]*Presence),
		observers: make(map[int]func([]Presence)),
	}
}

// Roster returns a copy of the current participants.
func (p *PresenceTracker) Roster() []Presence {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snapshotLocked()
}

func (p *PresenceTracker) snapshotLocked() []Presence {
	out := make([]Presence, 0, len(p.users))
	for _, u := range p.users {
		out = append(out, *u)
	}
	return out
}

// OnChange registers an observer called with the roster after every
// mutation. The returned function unsubscribes.
func (p *PresenceTracker) OnChange(fn func([]Presence)) (unsubscribe func()) {
	p.mu.Lock()
	id := p.nextObs
	p.nextObs++
	p.observers[id] = fn
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.observers, id)
		p.mu.Unlock()
	}
}

// UserJoined records a newly arrived participant. A repeated join for
// the same user id refreshes the identity and keeps the cursor.
func (p *PresenceTracker) UserJoined(user core.Participant) {
	p.mu.Lock()
	if existing, ok := p.users[user.UserID]; ok {
		existing.Participant = user
	} else {
		p.users[user.UserID] = &Presence{Participant: user}
	}
	p.notifyLocked()
}

// UserLeft removes a participant. Unknown ids are ignored.
func (p *PresenceTracker) UserLeft(userID string) {
	p.mu.Lock()
	if _, ok := p.users[userID]; !ok {
		p.mu.Unlock()
		return
	}
	delete(p.users, userID)
	p.notifyLocked()
}

// SetRoster replaces the whole roster, as delivered on join.
func (p *PresenceTracker) SetRoster(users []core.Participant) {
	p.mu.Lock()
	p.users = make(map[string]*Presence, len(users))
	for _, u := range users {
		p.users[u.UserID] = &Presence{Participant: u}
	}
	p.notifyLocked()
}

// CursorMoved updates a participant's cursor. A cursor for a user not
// yet in the roster implies presence and adds them.
func (p *PresenceTracker) CursorMoved(move core.CursorMove) {
	p.mu.Lock()
	u, ok := p.users[move.UserID]
	if !ok {
		u = &Presence{Participant: core.Participant{
			UserID: move.UserID,
			Name:   move.Name,
			Email:  move.Email,
			Color:  move.Color,
			Role:   move.Role,
		}}
		p.users[move.UserID] = u
	}
	u.Cursor = &Cursor{X: move.X, Y: move.Y}
	p.notifyLocked()
}

// Clear empties the roster, as on disconnect or leave.
func (p *PresenceTracker) Clear() {
	p.mu.Lock()
	if len(p.users) == 0 {
		p.mu.Unlock()
		return
	}
	p.users = make(map[string]*Presence)
	p.notifyLocked()
}

// notifyLocked releases the lock and invokes observers with a snapshot.
func (p *PresenceTracker) notifyLocked() {
	roster := p.snapshotLocked()
	observers := make([]func([]Presence), 0, len(p.observers))
	for _, fn := range p.observers {
		observers = append(observers, fn)
	}
	p.mu.Unlock()

	for _, fn := range observers {
		fn(roster)
	}
}
