package client

import (
	"sync"

	"drawdeck/core"
)

// DocumentStore holds the canonical in-memory document for one open
// project. Local edits push an immutable snapshot onto the history so
// they can be undone; remote edits are folded into every snapshot
// without growing the history, so undo never reverts another
// participant's work.
type DocumentStore struct {
	mu      sync.RWMutex
	history []core.Document
	cursor  int
}

// NewDocumentStore seeds the store with the loaded baseline. The
// baseline occupies history position zero, so an undo immediately after
// opening is a no-op.
func NewDocumentStore(baseline core.Document) *DocumentStore {
	return &DocumentStore{
		history: []core.Document{baseline.Clone()},
	}
}

// Objects returns a copy of the current document.
func (d *DocumentStore) Objects() core.Document {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.history[d.cursor].Clone()
}

// Len returns the number of objects in the current document.
func (d *DocumentStore) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.history[d.cursor])
}

// ApplyLocal applies an update originated by this client and records a
// history snapshot. Any redo states beyond the cursor are discarded.
func (d *DocumentStore) ApplyLocal(update core.CanvasUpdate) {
	d.mu.Lock()
	defer d.mu.Unlock()

	next := reduce(d.history[d.cursor], update)
	d.history = append(d.history[:d.cursor+1], next)
	d.cursor = len(d.history) - 1
}

// ApplyRemote folds an update from another participant into every
// retained snapshot. No new snapshot is recorded, so only local edits
// are undoable, and an undo never reverts remote work.
func (d *DocumentStore) ApplyRemote(update core.CanvasUpdate) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.history {
		d.history[i] = reduce(d.history[i], update)
	}
}

// reduce produces the next document from one canvas update. The rules
// keep replicas convergent under unordered cross-sender delivery:
// duplicate adds collapse by id, deletes of absent ids are no-ops, and
// an edit for an unknown id appends the object so an edit arriving
// before its add still lands.
func reduce(doc core.Document, update core.CanvasUpdate) core.Document {
	switch update.Action {
	case core.ActionAdd:
		if update.Object == nil {
			return doc
		}
		if doc.IndexOf(update.Object.ID) >= 0 {
			return doc
		}
		next := doc.Clone()
		return append(next, update.Object.Clone())

	case core.ActionDelete:
		id := update.ObjectID
		if id == "" && update.Object != nil {
			id = update.Object.ID
		}
		i := doc.IndexOf(id)
		if i < 0 {
			return doc
		}
		next := doc.Clone()
		return append(next[:i], next[i+1:]...)

	case core.ActionEdit:
		if update.Object == nil {
			return doc
		}
		next := doc.Clone()
		if i := next.IndexOf(update.Object.ID); i >= 0 {
			next[i] = update.Object.Clone()
		} else {
			next = append(next, update.Object.Clone())
		}
		return next
	}
	return doc
}

// Undo steps the cursor back one snapshot. At the baseline it is a
// no-op. The returned flag reports whether the document changed.
func (d *DocumentStore) Undo() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cursor == 0 {
		return false
	}
	d.cursor--
	return true
}

// Redo steps the cursor forward one snapshot, if a redo state exists.
func (d *DocumentStore) Redo() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cursor >= len(d.history)-1 {
		return false
	}
	d.cursor++
	return true
}

// CanvasState returns the current document wrapped for persistence.
func (d *DocumentStore) CanvasState() *core.CanvasState {
	return &core.CanvasState{Objects: d.Objects()}
}
