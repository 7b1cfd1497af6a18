package tenant

import "context"

type Repository interface {
	Create(ctx context.Context, t *Tenant, modules []string) error
	Get(ctx context.Context, id string) (*Tenant, error)
	ListModules(ctx context.Context, tenantID string) ([]Module, error)
	SetModule(ctx context.Context, tenantID, module string, enabled bool) error
}
