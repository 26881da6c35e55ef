package internal

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"connectrpc.com/connect"
	"connectrpc.com/grpchealth"
	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/kazz187/agentforge/api/agentforge/v1/agentforgev1connect"
	"github.com/kazz187/agentforge/internal/config"
	"github.com/kazz187/agentforge/internal/execution"
	"github.com/kazz187/agentforge/internal/identity"
	"github.com/kazz187/agentforge/internal/pushnotification"
	"github.com/kazz187/agentforge/internal/task"
	"github.com/kazz187/agentforge/pkg/cerr"
	"github.com/kazz187/agentforge/pkg/clog"
)

const wsPath = "/ws"

type Server struct {
	server                 *http.Server
	env                    *config.BaseEnv
	taskServer             *task.Server
	executionServer        *execution.Server
	pushNotificationServer *pushnotification.Server
	wsHandler              http.Handler
	metricsHandler         http.Handler
}

func NewServer(
	env *config.BaseEnv,
	taskServer *task.Server,
	executionServer *execution.Server,
	pushNotificationServer *pushnotification.Server,
	wsHandler http.Handler,
	metricsHandler http.Handler,
) *Server {
	return &Server{
		env:                    env,
		taskServer:             taskServer,
		executionServer:        executionServer,
		pushNotificationServer: pushNotificationServer,
		wsHandler:              wsHandler,
		metricsHandler:         metricsHandler,
	}
}

// ListenAndServe serves until Shutdown. ctx is the base context of every
// request.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := net.JoinHostPort(s.env.HTTPHost, s.env.HTTPPort)
	slog.Info("starting server", "addr", addr)

	s.server = &http.Server{
		Addr:        addr,
		Handler:     h2c.NewHandler(s.Handler(), &http2.Server{}),
		BaseContext: func(_ net.Listener) context.Context { return ctx },
	}
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler returns the full route tree behind CORS and the API key check.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Use(
			clog.SlogChiMiddleware(),
			identity.Middleware,
			cerr.NewConvertConnectErrorChiMiddleware(),
		)
		s.taskServer.Routes(r)
		s.pushNotificationServer.Routes(r)
		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			cerr.SetNewJSONError(r.Context(), cerr.NotFound, "not found", nil)
		})
	})

	mux := http.NewServeMux()
	mux.Handle("/health", &HealthChecker{})
	mux.Handle("/api/", r)
	mux.Handle(wsPath, s.wsHandler)
	mux.Handle("/metrics", s.metricsHandler)
	mux.Handle(grpchealth.NewHandler(grpchealth.NewStaticChecker(agentforgev1connect.ExecutionServiceName)))
	mux.Handle(agentforgev1connect.NewExecutionServiceHandler(s.executionServer, connect.WithInterceptors(s.interceptors()...)))

	return cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}).Handler(s.apiKeyMiddleware(mux))
}

type HealthChecker struct{}

func (hc *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) interceptors() []connect.Interceptor {
	return []connect.Interceptor{
		clog.NewSlogConnectInterceptor(),
		identity.NewInterceptor(),
		cerr.NewConvertConnectErrorInterceptor(),
	}
}

func (s *Server) apiKeyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" || r.URL.Path == "/grpc.health.v1.Health/Check" {
			next.ServeHTTP(w, r)
			return
		}
		apiKey := r.Header.Get("X-API-Key")
		if apiKey == "" {
			apiKey = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		}
		// Browsers cannot set headers on a WebSocket upgrade.
		if apiKey == "" && r.URL.Path == wsPath {
			apiKey = r.URL.Query().Get("api_key")
		}
		if subtle.ConstantTimeCompare([]byte(apiKey), []byte(s.env.APIKey)) != 1 {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
