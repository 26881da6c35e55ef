// Package identity carries the authenticated user id through request contexts.
// The session layer in front of the engine sets the X-User-ID header.
package identity

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"

	"github.com/kazz187/agentforge/pkg/cerr"
	"github.com/kazz187/agentforge/pkg/clog"
)

const Header = "X-User-ID"

type userIDKey struct{}

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

func UserID(ctx context.Context) (string, error) {
	id, _ := ctx.Value(userIDKey{}).(string)
	if id == "" {
		return "", cerr.NewError(cerr.Unauthenticated, "missing user id", nil)
	}
	return id, nil
}

func fromHeader(h http.Header) string {
	return strings.TrimSpace(h.Get(Header))
}

// Middleware stores the header value in the request context when present.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := fromHeader(r.Header); id != "" {
			ctx := WithUserID(r.Context(), id)
			clog.AddAttribute(ctx, "user_id", id)
			r = r.WithContext(ctx)
		}
		next.ServeHTTP(w, r)
	})
}

type interceptor struct{}

func NewInterceptor() connect.Interceptor {
	return &interceptor{}
}

func (i *interceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		if req.Spec().IsClient {
			if id, err := UserID(ctx); err == nil {
				req.Header().Set(Header, id)
			}
			return next(ctx, req)
		}
		if id := fromHeader(req.Header()); id != "" {
			ctx = WithUserID(ctx, id)
			clog.AddAttribute(ctx, "user_id", id)
		}
		return next(ctx, req)
	}
}

func (i *interceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return next
}

func (i *interceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return func(ctx context.Context, conn connect.StreamingHandlerConn) error {
		if id := fromHeader(conn.RequestHeader()); id != "" {
			ctx = WithUserID(ctx, id)
		}
		return next(ctx, conn)
	}
}
