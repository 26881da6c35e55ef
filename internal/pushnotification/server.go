package pushnotification

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"

	"github.com/kazz187/agentforge/internal/config"
	"github.com/kazz187/agentforge/internal/identity"
	"github.com/kazz187/agentforge/internal/pushsubscription"
	"github.com/kazz187/agentforge/pkg/cerr"
)

type Server struct {
	vapidEnv *config.VAPIDEnv
	repo     pushsubscription.Repository
}

func NewServer(vapidEnv *config.VAPIDEnv, repo pushsubscription.Repository) *Server {
	return &Server{vapidEnv: vapidEnv, repo: repo}
}

func (s *Server) Routes(r chi.Router) {
	r.Route("/push", func(r chi.Router) {
		r.Get("/vapid-public-key", s.getVAPIDPublicKey)
		r.Post("/subscriptions", s.registerSubscription)
		r.Delete("/subscriptions/{id}", s.unregisterSubscription)
	})
}

type VAPIDPublicKeyResponse struct {
	PublicKey string `json:"publicKey"`
}

// RegisterSubscriptionRequest mirrors the browser's PushSubscription JSON.
type RegisterSubscriptionRequest struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
}

func (s *Server) getVAPIDPublicKey(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if s.vapidEnv.PublicKey == "" {
		cerr.SetNewJSONError(ctx, cerr.FailedPrecondition, "VAPID keys not configured", nil)
		return
	}
	cerr.SetJSONResponse(ctx, &VAPIDPublicKeyResponse{PublicKey: s.vapidEnv.PublicKey})
}

func (s *Server) registerSubscription(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := identity.UserID(ctx)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	var req RegisterSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "invalid request body", err)
		return
	}
	invalid := cerr.NewError(cerr.InvalidArgument, "invalid push subscription", nil)
	if req.Endpoint == "" {
		invalid.AddDetailMessage("endpoint", "is required")
	}
	if req.Keys.P256dh == "" {
		invalid.AddDetailMessage("keys.p256dh", "is required")
	}
	if req.Keys.Auth == "" {
		invalid.AddDetailMessage("keys.auth", "is required")
	}
	if len(invalid.Details) > 0 {
		cerr.SetJSONError(ctx, invalid)
		return
	}

	sub := &pushsubscription.Subscription{
		ID:        ulid.Make().String(),
		UserID:    userID,
		Endpoint:  req.Endpoint,
		P256dhKey: req.Keys.P256dh,
		AuthKey:   req.Keys.Auth,
		CreatedAt: time.Now(),
	}
	if err := s.repo.Save(ctx, sub); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponseWithStatus(ctx, http.StatusCreated, sub)
}

func (s *Server) unregisterSubscription(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := identity.UserID(ctx)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	id := chi.URLParam(r, "id")
	sub, err := s.repo.Get(ctx, id)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	if sub.UserID != userID {
		cerr.SetNewJSONError(ctx, cerr.NotFound, "push subscription not found", nil)
		return
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponseWithStatus(ctx, http.StatusNoContent, nil)
}
