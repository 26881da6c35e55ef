package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/agentforge/pkg/cerr"
)

func TestUserID(t *testing.T) {
	_, err := UserID(context.Background())
	assert.True(t, cerr.IsCode(err, cerr.Unauthenticated))

	id, err := UserID(WithUserID(context.Background(), "u1"))
	require.NoError(t, err)
	assert.Equal(t, "u1", id)
}

func TestMiddleware(t *testing.T) {
	var got string
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = UserID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(Header, " u42 ")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "u42", got)
}
