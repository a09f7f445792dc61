// Package services holds the redemption engine and the background
// reconciliation of benefits.
package services

import (
	"context"
	"log/slog"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/5vraa/swims.cc-website-sub000/internal/events"
	"github.com/5vraa/swims.cc-website-sub000/internal/models"
)

// RedeemStore is the persistence the engine relies on. FindActiveByCode
// returns (nil, nil) for an unknown code; InsertRedemptionIfAbsent and
// IncrementUses must each be a single atomic, constraint-backed statement.
type RedeemStore interface {
	FindActiveByCode(ctx context.Context, code string) (*models.RedeemCode, error)
	InsertRedemptionIfAbsent(ctx context.Context, codeID uint, principalID, sourceIP string, at time.Time) (uint, bool, error)
	IncrementUses(ctx context.Context, codeID uint) (bool, error)
	DeleteRedemption(ctx context.Context, id uint) error
	ApplyBenefit(ctx context.Context, principalID string, codeID uint, typ models.CodeType, value string) error
	EnqueuePending(ctx context.Context, p *models.PendingBenefit) error
}

// BenefitDetails describes what a redemption granted.
type BenefitDetails struct {
	Type  models.CodeType `json:"type"`
	Value string          `json:"value"`
}

// Redemption is the success payload returned to clients.
type Redemption struct {
	Message string         `json:"message"`
	Details BenefitDetails `json:"details"`
	// Pending is set when the benefit was queued for a later retry.
	Pending bool `json:"-"`
}

// RedeemService consumes promotional codes.
type RedeemService struct {
	store RedeemStore
	audit events.Sink
	log   *slog.Logger
	now   func() time.Time
}

// NewRedeemService creates the engine. audit may be nil.
func NewRedeemService(store RedeemStore, audit events.Sink, log *slog.Logger) *RedeemService {
	if log == nil {
		log = slog.Default()
	}
	return &RedeemService{
		store: store,
		audit: audit,
		log:   log.With("module", "redeem"),
		now:   time.Now,
	}
}

// WithClock overrides the time source.
func (s *RedeemService) WithClock(now func() time.Time) *RedeemService {
	s.now = now
	return s
}

// Redeem consumes code for principalID. Every returned error is a *RedeemError.
//
// The redemption row is inserted before the use counter is incremented: the
// unique (code, principal) index rejects double redemption and the
// conditional increment rejects over-redemption. When the increment loses
// the race the inserted row is removed again.
func (s *RedeemService) Redeem(ctx context.Context, rawCode, principalID, clientIP string) (*Redemption, error) {
	if principalID == "" {
		return nil, ErrUnauthenticated
	}
	code := models.NormalizeCode(rawCode)
	if code == "" || utf8.RuneCountInString(code) > models.MaxCodeLength {
		return nil, ErrNotFound
	}
	log := s.log.With("code", code, "principal_id", principalID)

	rc, err := s.store.FindActiveByCode(ctx, code)
	if err != nil {
		log.ErrorContext(ctx, "code lookup failed", "operation", "find_code", "error", err)
		return nil, internalError(err)
	}
	if rc == nil {
		return nil, ErrNotFound
	}
	now := s.now()
	if rc.IsExpired(now) {
		return nil, ErrExpired
	}
	if rc.Exhausted() {
		return nil, ErrExhausted
	}

	redemptionID, inserted, err := s.store.InsertRedemptionIfAbsent(ctx, rc.ID, principalID, clientIP, now)
	if err != nil {
		log.ErrorContext(ctx, "redemption insert failed", "operation", "insert_redemption", "error", err)
		return nil, internalError(err)
	}
	if !inserted {
		return nil, ErrAlreadyRedeemed
	}

	ok, err := s.store.IncrementUses(ctx, rc.ID)
	if err != nil {
		log.ErrorContext(ctx, "use increment failed", "operation", "increment_uses", "error", err)
		s.compensate(ctx, log, redemptionID)
		return nil, internalError(err)
	}
	if !ok {
		s.compensate(ctx, log, redemptionID)
		return nil, ErrExhausted
	}

	result := &Redemption{
		Message: successMessage(rc),
		Details: BenefitDetails{Type: rc.Type, Value: rc.Value},
	}
	if err := s.store.ApplyBenefit(ctx, principalID, rc.ID, rc.Type, rc.Value); err != nil {
		log.WarnContext(ctx, "benefit application failed, queued for retry", "operation", "apply_benefit", "error", err)
		s.enqueue(ctx, log, rc, principalID, err)
		result.Pending = true
	}

	s.emit(ctx, log, rc, principalID, clientIP, result.Pending)
	return result, nil
}

// compensate removes the redemption row this attempt inserted. It runs
// even if the request context was cancelled.
func (s *RedeemService) compensate(ctx context.Context, log *slog.Logger, redemptionID uint) {
	ctx = context.WithoutCancel(ctx)
	if err := s.store.DeleteRedemption(ctx, redemptionID); err != nil {
		log.ErrorContext(ctx, "compensating delete failed; redemption row left without a use",
			"operation", "compensate", "redemption_id", redemptionID, "error", err)
	}
}

func (s *RedeemService) enqueue(ctx context.Context, log *slog.Logger, rc *models.RedeemCode, principalID string, cause error) {
	p := &models.PendingBenefit{
		CodeID:      rc.ID,
		PrincipalID: principalID,
		Type:        rc.Type,
		Value:       rc.Value,
		LastError:   cause.Error(),
	}
	if err := s.store.EnqueuePending(context.WithoutCancel(ctx), p); err != nil {
		log.ErrorContext(ctx, "could not queue pending benefit", "operation", "enqueue_pending", "error", err)
		return
	}
	s.record(ctx, log, events.NewAuditEvent(principalID, "redeem_code", strconv.FormatUint(uint64(rc.ID), 10), events.ActionBenefitQueued, map[string]any{
		"type":       string(rc.Type),
		"pending_id": p.ID,
	}))
}

func (s *RedeemService) emit(ctx context.Context, log *slog.Logger, rc *models.RedeemCode, principalID, clientIP string, pending bool) {
	e := events.NewAuditEvent(principalID, "redeem_code", strconv.FormatUint(uint64(rc.ID), 10), events.ActionCodeRedeemed, map[string]any{
		"code":            rc.Code,
		"type":            string(rc.Type),
		"benefit_pending": pending,
	})
	e.SourceIP = clientIP
	s.record(ctx, log, e)
}

func (s *RedeemService) record(ctx context.Context, log *slog.Logger, e events.AuditEvent) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Emit(ctx, e); err != nil {
		log.WarnContext(ctx, "audit emit failed", "operation", "audit", "action", e.Action, "error", err)
	}
}

func successMessage(rc *models.RedeemCode) string {
	switch rc.Type {
	case models.CodePremium:
		return "Premium activated"
	case models.CodeStorage:
		return "Storage bonus of " + rc.Value + " MB added"
	default:
		return "Code redeemed successfully"
	}
}
