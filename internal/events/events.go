// Package events defines audit events and the sinks they are emitted to.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Audit actions.
const (
	ActionCodeRedeemed    = "code.redeemed"
	ActionCodeCreated     = "code.created"
	ActionCodeActivated   = "code.activated"
	ActionCodeDeactivated = "code.deactivated"
	ActionBenefitQueued   = "benefit.queued"
	ActionBenefitApplied  = "benefit.applied"
)

// AuditEvent is one auditable state change.
type AuditEvent struct {
	ID          string         `json:"id"`
	OccurredAt  time.Time      `json:"occurred_at"`
	PrincipalID string         `json:"principal_id"`
	EntityType  string         `json:"entity_type"`
	EntityID    string         `json:"entity_id"`
	Action      string         `json:"action"`
	Details     map[string]any `json:"details,omitempty"`
	SourceIP    string         `json:"source_ip,omitempty"`
}

// NewAuditEvent stamps a new event with a random id and the current time.
func NewAuditEvent(principalID, entityType, entityID, action string, details map[string]any) AuditEvent {
	return AuditEvent{
		ID:          uuid.NewString(),
		OccurredAt:  time.Now().UTC(),
		PrincipalID: principalID,
		EntityType:  entityType,
		EntityID:    entityID,
		Action:      action,
		Details:     details,
	}
}

// DetailsJSON renders Details for storage; empty details give "".
func (e AuditEvent) DetailsJSON() string {
	if len(e.Details) == 0 {
		return ""
	}
	b, err := json.Marshal(e.Details)
	if err != nil {
		return ""
	}
	return string(b)
}

// Sink receives audit events. Emit failures never undo the action that
// produced the event.
type Sink interface {
	Emit(ctx context.Context, e AuditEvent) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, e AuditEvent) error

func (f SinkFunc) Emit(ctx context.Context, e AuditEvent) error { return f(ctx, e) }

// Fanout emits to every sink and joins their errors.
type Fanout []Sink

func (f Fanout) Emit(ctx context.Context, e AuditEvent) error {
	var errs []error
	for _, s := range f {
		if s == nil {
			continue
		}
		if err := s.Emit(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogSink writes events to a structured logger.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Emit(ctx context.Context, e AuditEvent) error {
	log := s.Logger
	if log == nil {
		log = slog.Default()
	}
	log.InfoContext(ctx, "audit",
		"module", "audit",
		"event_id", e.ID,
		"action", e.Action,
		"principal_id", e.PrincipalID,
		"entity_type", e.EntityType,
		"entity_id", e.EntityID,
		"source_ip", e.SourceIP,
	)
	return nil
}
