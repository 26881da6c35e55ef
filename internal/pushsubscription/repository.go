package pushsubscription

import "context"

type Repository interface {
	// Save stores s. A subscription with the same endpoint is replaced and
	// s takes over its id and creation time.
	Save(ctx context.Context, s *Subscription) error
	Get(ctx context.Context, id string) (*Subscription, error)
	ListByUser(ctx context.Context, userID string) ([]*Subscription, error)
	Delete(ctx context.Context, id string) error
}
