package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drawdeck/core"
)

// editorBackend fakes the project HTTP surface: one project, recorded
// saves, no realtime endpoint so the editor runs offline.
type editorBackend struct {
	mu    sync.Mutex
	role  core.Role
	saves []*core.CanvasState
}

func (b *editorBackend) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/api/projects/p1" && r.Method == http.MethodGet:
			b.mu.Lock()
			role := b.role
			b.mu.Unlock()
			json.NewEncoder(w).Encode(ProjectData{
				ID:    "p1",
				Title: "board",
				Role:  role,
				CanvasState: &core.CanvasState{Objects: []core.Object{
					{ID: "seed", Type: core.ObjectRectangle, X: 1},
				}},
			})
		case r.URL.Path == "/api/projects/p1" && r.Method == http.MethodPut:
			var body struct {
				CanvasState *core.CanvasState `json:"canvas_state"`
			}
			json.NewDecoder(r.Body).Decode(&body)
			b.mu.Lock()
			b.saves = append(b.saves, body.CanvasState)
			b.mu.Unlock()
			w.WriteHeader(http.StatusOK)
		default:
			http.NotFound(w, r)
		}
	})
}

func (b *editorBackend) saveCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.saves)
}

func (b *editorBackend) lastSave() *core.CanvasState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.saves) == 0 {
		return nil
	}
	return b.saves[len(b.saves)-1]
}

func openEditor(t *testing.T, role core.Role) (*Editor, *editorBackend) {
	t.Helper()
	backend := &editorBackend{role: role}
	srv := httptest.NewServer(backend.handler())
	t.Cleanup(srv.Close)

	s := NewSession(Config{BaseURL: srv.URL, SaveDebounce: 20 * time.Millisecond}, NewMemoryTokenStore())
	require.NoError(t, s.tokens.Set(context.Background(), KeyAccessToken, "tok"))

	e, err := OpenProject(context.Background(), s, NewAPI(s), "p1")
	require.NoError(t, err)
	return e, backend
}

func TestEditorLoadsBaseline(t *testing.T) {
	e, _ := openEditor(t, core.RoleEditor)
	defer e.Close(context.Background())

	assert.Equal(t, "p1", e.ProjectID())
	assert.Equal(t, core.RoleEditor, e.Role())

	objects := e.Doc.Objects()
	require.Len(t, objects, 1)
	assert.Equal(t, "seed", objects[0].ID)

	// Baseline is not an edit: nothing to undo right after opening.
	assert.False(t, e.Undo())
}

func TestEditorEditFlowAndAutoSave(t *testing.T) {
	e, backend := openEditor(t, core.RoleEditor)
	defer e.Close(context.Background())

	require.NoError(t, e.AddObject(core.Object{ID: "n1", Type: core.ObjectCircle, Radius: 4}))
	require.NoError(t, e.EditObject(core.Object{ID: "n1", Type: core.ObjectCircle, Radius: 8}))
	assert.Equal(t, 2, e.Doc.Len())

	// Both edits land inside one debounce window: one save.
	assert.Eventually(t, func() bool {
		return backend.saveCount() == 1
	}, time.Second, 10*time.Millisecond)

	saved := backend.lastSave()
	require.NotNil(t, saved)
	require.Len(t, saved.Objects, 2)
	assert.Equal(t, 8.0, saved.Objects[1].Radius)
}

func TestEditorViewerCannotEdit(t *testing.T) {
	e, backend := openEditor(t, core.RoleViewer)

	err := e.AddObject(core.Object{ID: "n1", Type: core.ObjectRectangle})
	require.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, 1, e.Doc.Len())

	// A viewer's close does not flush a save either.
	require.NoError(t, e.Close(context.Background()))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, backend.saveCount())
}

func TestEditorUndoPersistsRevertedState(t *testing.T) {
	e, backend := openEditor(t, core.RoleEditor)

	require.NoError(t, e.AddObject(core.Object{ID: "n1", Type: core.ObjectRectangle}))
	require.NoError(t, e.Save(context.Background()))
	require.Equal(t, 1, backend.saveCount())

	require.True(t, e.Undo())
	require.NoError(t, e.Save(context.Background()))
	require.Equal(t, 2, backend.saveCount())

	saved := backend.lastSave()
	require.NotNil(t, saved)
	assert.Len(t, saved.Objects, 1) // back to the seeded baseline

	require.NoError(t, e.Close(context.Background()))
}

func TestEditorCloseFlushes(t *testing.T) {
	e, backend := openEditor(t, core.RoleEditor)

	require.NoError(t, e.AddObject(core.Object{ID: "n1", Type: core.ObjectRectangle}))
	require.NoError(t, e.Close(context.Background()))

	require.GreaterOrEqual(t, backend.saveCount(), 1)
	saved := backend.lastSave()
	require.NotNil(t, saved)
	assert.Len(t, saved.Objects, 2)
}
