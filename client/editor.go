package client

import (
	"context"

	"github.com/sirupsen/logrus"

	"drawdeck/core"
)

// Editor is the per-project facade over the client core: it loads the
// document, opens the realtime channel, and exposes the edit operations
// the UI calls. One Editor serves one open project.
type Editor struct {
	session   *Session
	api       *API
	projectID string
	role      core.Role

	Doc      *DocumentStore
	Presence *PresenceTracker
	Trans    *Transport

	autosave *AutoSave
}

// OpenProject loads the project over HTTP, seeds the document store,
// and opens the realtime channel. Guest sessions load through the guest
// routes and skip the realtime channel.
func OpenProject(ctx context.Context, session *Session, api *API, projectID string) (*Editor, error) {
	var (
		project *ProjectData
		err     error
	)
	if session.guestOnly(ctx) {
		project, err = api.GuestGetProject(ctx, projectID)
	} else {
		project, err = api.GetProject(ctx, projectID)
	}
	if err != nil {
		return nil, err
	}

	var baseline core.Document
	if project.CanvasState != nil {
		baseline = project.CanvasState.Objects
	}

	e := &Editor{
		session:   session,
		api:       api,
		projectID: projectID,
		role:      project.Role,
		Doc:       NewDocumentStore(baseline),
		Presence:  NewPresenceTracker(),
	}
	e.Trans = NewTransport(session, projectID, e.Doc, e.Presence)
	e.autosave = NewAutoSave(session.cfg.SaveDebounce, e.persist)

	if err := e.Trans.Open(ctx); err != nil {
		logrus.WithError(err).Warn("Realtime channel unavailable, editing offline")
	}
	return e, nil
}

// ProjectID returns the open project's id.
func (e *Editor) ProjectID() string { return e.projectID }

// Role returns the caller's role on the open project.
func (e *Editor) Role() core.Role { return e.role }

func (e *Editor) persist(ctx context.Context) error {
	state := e.Doc.CanvasState()
	if e.session.guestOnly(ctx) {
		return e.api.GuestSaveProject(ctx, e.projectID, state)
	}
	return e.api.SaveProject(ctx, e.projectID, state)
}

// apply runs one local mutation: document first, then broadcast, then
// the autosave timer. Viewers cannot mutate.
func (e *Editor) apply(update core.CanvasUpdate) error {
	if !e.role.CanEdit() {
		return ErrUnauthorized
	}
	e.Doc.ApplyLocal(update)
	if err := e.Trans.SendCanvasUpdate(update); err != nil {
		logrus.WithError(err).Warn("Broadcast failed, update kept locally")
	}
	e.autosave.Notify()
	return nil
}

// AddObject inserts a new object into the document.
func (e *Editor) AddObject(obj core.Object) error {
	return e.apply(core.CanvasUpdate{Action: core.ActionAdd, Object: &obj})
}

// DeleteObject removes an object by id.
func (e *Editor) DeleteObject(objectID string) error {
	return e.apply(core.CanvasUpdate{Action: core.ActionDelete, ObjectID: objectID})
}

// EditObject replaces an object wholesale with the given state.
func (e *Editor) EditObject(obj core.Object) error {
	return e.apply(core.CanvasUpdate{Action: core.ActionEdit, Object: &obj})
}

// Undo reverts the latest local edit. The reversal is not broadcast;
// the next save persists the reverted state.
func (e *Editor) Undo() bool {
	if !e.Doc.Undo() {
		return false
	}
	e.autosave.Notify()
	return true
}

// Redo re-applies an undone local edit.
func (e *Editor) Redo() bool {
	if !e.Doc.Redo() {
		return false
	}
	e.autosave.Notify()
	return true
}

// MoveCursor reports the local pointer position to the room.
func (e *Editor) MoveCursor(x, y float64) {
	_ = e.Trans.SendCursor(x, y)
}

// Save persists the current document immediately.
func (e *Editor) Save(ctx context.Context) error {
	return e.autosave.SaveNow(ctx)
}

// Close flushes a final save, leaves the room, and releases resources.
// Viewers have nothing to flush and skip the save.
func (e *Editor) Close(ctx context.Context) error {
	var err error
	if e.role.CanEdit() {
		err = e.autosave.SaveNow(ctx)
	}
	e.autosave.Close()
	if cerr := e.Trans.Close(); err == nil {
		err = cerr
	}
	return err
}
