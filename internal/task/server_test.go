package task_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/agentforge/internal/identity"
	"github.com/kazz187/agentforge/internal/task"
	"github.com/kazz187/agentforge/internal/task/repositoryimpl"
	"github.com/kazz187/agentforge/pkg/cerr"
	"github.com/kazz187/agentforge/pkg/storage"
)

func newHandler(t *testing.T) (http.Handler, task.Repository) {
	t.Helper()
	s, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	repo := repositoryimpl.NewYAMLRepository(s)

	r := chi.NewRouter()
	r.Use(identity.Middleware, cerr.NewConvertConnectErrorChiMiddleware())
	task.NewServer(repo).Routes(r)
	return r, repo
}

func do(t *testing.T, h http.Handler, method, path, userID, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if userID != "" {
		req.Header.Set(identity.Header, userID)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServer_CreateAndGet(t *testing.T) {
	h, _ := newHandler(t)

	rec := do(t, h, http.MethodPost, "/tasks", "u1", `{"title":"Add dark mode","category":"feature","tags":["ui"]}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created task.Task
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, int64(1), created.ID)
	assert.Equal(t, task.StatusTodo, created.Status)
	assert.Equal(t, "u1", created.UserID)

	rec = do(t, h, http.MethodGet, "/tasks/1", "u1", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/tasks/1", "u2", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_Validation(t *testing.T) {
	h, _ := newHandler(t)

	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodPost, "/tasks", "", `{"title":"x"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/tasks", "u1", `{"title":"  "}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/tasks", "u1", `not json`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/tasks/abc", "u1", "").Code)
}

func TestServer_UpdateListDelete(t *testing.T) {
	h, repo := newHandler(t)
	require.NoError(t, repo.Create(context.Background(), &task.Task{UserID: "u1", Title: "old", Status: task.StatusTodo}))

	rec := do(t, h, http.MethodPatch, "/tasks/1", "u1", `{"title":"new","status":"in_progress"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	got, err := repo.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "new", got.Title)
	assert.Equal(t, task.StatusInProgress, got.Status)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPatch, "/tasks/1", "u1", `{"status":"bogus"}`).Code)

	rec = do(t, h, http.MethodGet, "/tasks", "u1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list task.ListTasksResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 1, list.Total)

	assert.Equal(t, http.StatusNoContent, do(t, h, http.MethodDelete, "/tasks/1", "u1", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/tasks/1", "u1", "").Code)
}
