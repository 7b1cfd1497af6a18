package clinic

import "context"

type Repository interface {
	// Get returns ErrNotFound when the tenant never saved settings.
	Get(ctx context.Context, tenantID string) (*Settings, error)
	Save(ctx context.Context, s *Settings) error
}
