package tenant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/odontoclinic/agenda/internal/platform/cache"
	"github.com/odontoclinic/agenda/internal/platform/db"
)

type Service struct {
	repo   Repository
	cache  cache.Cache
	logger zerolog.Logger
}

func NewService(repo Repository, c cache.Cache, logger zerolog.Logger) *Service {
	return &Service{repo: repo, cache: c, logger: logger.With().Str("component", "tenant").Logger()}
}

// access is what the module gate needs per request; cached per tenant.
type access struct {
	Active  bool            `json:"active"`
	Modules map[string]bool `json:"modules"`
}

func cacheKey(tenantID string) string { return "tenant:" + tenantID + ":access" }

// Create registers a tenant with every known module enabled.
func (s *Service) Create(ctx context.Context, id, name string) (*Tenant, error) {
	if !db.ValidTenantID(id) {
		return nil, fmt.Errorf("%w: id must match ^[a-zA-Z0-9_]+$", ErrInvalidTenant)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = id
	}
	t := &Tenant{ID: id, Name: name}
	if err := s.repo.Create(ctx, t, KnownModules); err != nil {
		return nil, err
	}
	s.logger.Info().Str("tenant_id", id).Msg("tenant created")
	return t, nil
}

// Ensure creates the tenant when it does not exist yet.
func (s *Service) Ensure(ctx context.Context, id, name string) error {
	if _, err := s.repo.Get(ctx, id); err == nil {
		return nil
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}
	_, err := s.Create(ctx, id, name)
	if errors.Is(err, ErrExists) {
		return nil
	}
	return err
}

func (s *Service) Modules(ctx context.Context, tenantID string) ([]Module, error) {
	if _, err := s.repo.Get(ctx, tenantID); err != nil {
		return nil, err
	}
	return s.repo.ListModules(ctx, tenantID)
}

func (s *Service) SetModule(ctx context.Context, tenantID, module string, enabled bool) error {
	if !isKnownModule(module) {
		return fmt.Errorf("%w: %s", ErrUnknownModule, module)
	}
	if err := s.repo.SetModule(ctx, tenantID, module, enabled); err != nil {
		return err
	}
	if err := s.cache.Delete(ctx, cacheKey(tenantID)); err != nil {
		s.logger.Warn().Err(err).Str("tenant_id", tenantID).Msg("module cache invalidation failed")
	}
	s.logger.Info().Str("tenant_id", tenantID).Str("module", module).Bool("enabled", enabled).Msg("module toggled")
	return nil
}

// ModuleEnabled reports whether tenantID exists, is active and has module
// switched on.
func (s *Service) ModuleEnabled(ctx context.Context, tenantID, module string) (bool, error) {
	var a access
	err := s.cache.Get(ctx, cacheKey(tenantID), &a)
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			s.logger.Warn().Err(err).Str("tenant_id", tenantID).Msg("module cache read failed")
		}
		a, err = s.loadAccess(ctx, tenantID)
		if err != nil {
			return false, err
		}
		if err := s.cache.Set(ctx, cacheKey(tenantID), a); err != nil {
			s.logger.Warn().Err(err).Str("tenant_id", tenantID).Msg("module cache write failed")
		}
	}
	return a.Active && a.Modules[module], nil
}

func (s *Service) loadAccess(ctx context.Context, tenantID string) (access, error) {
	t, err := s.repo.Get(ctx, tenantID)
	if errors.Is(err, ErrNotFound) {
		return access{Modules: map[string]bool{}}, nil
	}
	if err != nil {
		return access{}, err
	}
	mods, err := s.repo.ListModules(ctx, tenantID)
	if err != nil {
		return access{}, err
	}
	a := access{Active: t.Active, Modules: make(map[string]bool, len(mods))}
	for _, m := range mods {
		a.Modules[m.Key] = m.Enabled
	}
	return a, nil
}
