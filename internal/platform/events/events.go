// Package events publishes appointment lifecycle notifications to a topic
// exchange so reminder and automation workers can react to them.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Event types, also used as routing keys.
const (
	AppointmentCreated       = "appointment.created"
	AppointmentRescheduled   = "appointment.rescheduled"
	AppointmentCancelled     = "appointment.cancelled"
	AppointmentStatusChanged = "appointment.status_changed"
)

type Event struct {
	ID         uuid.UUID `json:"id"`
	Type       string    `json:"type"`
	TenantID   string    `json:"tenantId"`
	OccurredAt time.Time `json:"occurredAt"`
	Data       any       `json:"data"`
}

func New(eventType, tenantID string, data any) Event {
	return Event{
		ID:         uuid.New(),
		Type:       eventType,
		TenantID:   tenantID,
		OccurredAt: time.Now().UTC(),
		Data:       data,
	}
}

type Publisher interface {
	Publish(ctx context.Context, evt Event) error
	Close() error
}

// LogPublisher writes events to the log; used when no broker is configured.
type LogPublisher struct {
	logger zerolog.Logger
}

func NewLogPublisher(logger zerolog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger.With().Str("component", "events").Logger()}
}

func (p *LogPublisher) Publish(_ context.Context, evt Event) error {
	p.logger.Info().
		Str("event_id", evt.ID.String()).
		Str("event_type", evt.Type).
		Str("tenant_id", evt.TenantID).
		Msg("event")
	return nil
}

func (p *LogPublisher) Close() error { return nil }
