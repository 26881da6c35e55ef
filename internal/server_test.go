package internal

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kazz187/agentforge/internal/config"
	"github.com/kazz187/agentforge/internal/execution"
	"github.com/kazz187/agentforge/internal/hub"
	"github.com/kazz187/agentforge/internal/identity"
	"github.com/kazz187/agentforge/internal/pushnotification"
	pushrepo "github.com/kazz187/agentforge/internal/pushsubscription/repositoryimpl"
	"github.com/kazz187/agentforge/internal/task"
	taskrepo "github.com/kazz187/agentforge/internal/task/repositoryimpl"
	"github.com/kazz187/agentforge/pkg/storage"
)

func newTestHandler(t *testing.T) http.Handler {
	t.Helper()
	s, err := storage.NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	h := hub.New()
	t.Cleanup(h.Close)
	srv := NewServer(
		&config.BaseEnv{APIKey: "secret"},
		task.NewServer(taskrepo.NewYAMLRepository(s)),
		execution.NewServer(nil),
		pushnotification.NewServer(&config.VAPIDEnv{PublicKey: "pub"}, pushrepo.NewYAMLRepository(s)),
		hub.NewWSHandler(h),
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("metrics")) }),
	)
	return srv.Handler()
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServer_APIKey(t *testing.T) {
	h := newTestHandler(t)

	assert.Equal(t, http.StatusOK, serve(h, httptest.NewRequest(http.MethodGet, "/health", nil)).Code)
	assert.Equal(t, http.StatusUnauthorized, serve(h, httptest.NewRequest(http.MethodGet, "/api/tasks", nil)).Code)
	assert.Equal(t, http.StatusUnauthorized, serve(h, httptest.NewRequest(http.MethodGet, "/metrics", nil)).Code)

	req := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
	req.Header.Set("X-API-Key", "wrong")
	assert.Equal(t, http.StatusUnauthorized, serve(h, req).Code)

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec := serve(h, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "metrics", rec.Body.String())

	// The query parameter is only honoured for the WebSocket endpoint.
	assert.Equal(t, http.StatusUnauthorized, serve(h, httptest.NewRequest(http.MethodGet, "/api/tasks?api_key=secret", nil)).Code)
	assert.NotEqual(t, http.StatusUnauthorized, serve(h, httptest.NewRequest(http.MethodGet, "/ws?api_key=secret", nil)).Code)
}

func TestServer_APIRoutes(t *testing.T) {
	h := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/tasks", strings.NewReader(`{"title":"Add dark mode"}`))
	req.Header.Set("X-API-Key", "secret")
	req.Header.Set(identity.Header, "u1")
	assert.Equal(t, http.StatusCreated, serve(h, req).Code)

	req = httptest.NewRequest(http.MethodGet, "/api/push/vapid-public-key", nil)
	req.Header.Set("X-API-Key", "secret")
	rec := serve(h, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"publicKey":"pub"}`, rec.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/api/nope", nil)
	req.Header.Set("X-API-Key", "secret")
	assert.Equal(t, http.StatusNotFound, serve(h, req).Code)
}
