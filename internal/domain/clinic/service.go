package clinic

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/odontoclinic/agenda/internal/platform/cache"
)

// Service resolves clinic settings, falling back to DefaultSettings for
// tenants that never configured their clinic.
type Service struct {
	repo   Repository
	cache  cache.Cache
	logger zerolog.Logger
}

func NewService(repo Repository, c cache.Cache, logger zerolog.Logger) *Service {
	return &Service{repo: repo, cache: c, logger: logger.With().Str("component", "clinic").Logger()}
}

func cacheKey(tenantID string) string { return "clinic:" + tenantID + ":settings" }

func (s *Service) Settings(ctx context.Context, tenantID string) (*Settings, error) {
	var cached Settings
	err := s.cache.Get(ctx, cacheKey(tenantID), &cached)
	if err == nil {
		return &cached, nil
	}
	if !errors.Is(err, cache.ErrMiss) {
		s.logger.Warn().Err(err).Str("tenant_id", tenantID).Msg("settings cache read failed")
	}

	settings, err := s.repo.Get(ctx, tenantID)
	if errors.Is(err, ErrNotFound) {
		settings = DefaultSettings(tenantID)
	} else if err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, cacheKey(tenantID), settings); err != nil {
		s.logger.Warn().Err(err).Str("tenant_id", tenantID).Msg("settings cache write failed")
	}
	return settings, nil
}

// Rules returns the compiled settings of a tenant.
func (s *Service) Rules(ctx context.Context, tenantID string) (*Rules, error) {
	settings, err := s.Settings(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	rules, err := settings.Compile()
	if err != nil {
		return nil, fmt.Errorf("tenant %s: %w", tenantID, err)
	}
	return rules, nil
}

func (s *Service) Update(ctx context.Context, tenantID string, in *Settings) (*Settings, error) {
	in.TenantID = tenantID
	in.TimeZone = strings.TrimSpace(in.TimeZone)
	if in.TimeZone == "" {
		in.TimeZone = DefaultTimeZone
	}
	if in.SlotMinutes == 0 {
		in.SlotMinutes = DefaultSlotMinutes
	}
	if in.HorizonDays == 0 {
		in.HorizonDays = DefaultHorizonDays
	}
	if in.SuggestionCount == 0 {
		in.SuggestionCount = DefaultSuggestionCount
	}
	if in.Holidays == nil {
		in.Holidays = []Holiday{}
	}
	if _, err := in.Compile(); err != nil {
		return nil, err
	}

	if err := s.repo.Save(ctx, in); err != nil {
		return nil, fmt.Errorf("save clinic settings: %w", err)
	}
	if err := s.cache.Delete(ctx, cacheKey(tenantID)); err != nil {
		s.logger.Warn().Err(err).Str("tenant_id", tenantID).Msg("settings cache invalidation failed")
	}
	s.logger.Info().Str("tenant_id", tenantID).Msg("clinic settings updated")
	return in, nil
}
