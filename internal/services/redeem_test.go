package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/5vraa/swims.cc-website-sub000/internal/events"
	"github.com/5vraa/swims.cc-website-sub000/internal/models"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestService(store RedeemStore, sink events.Sink) *RedeemService {
	return NewRedeemService(store, sink, nil).WithClock(func() time.Time { return fixedNow })
}

func activeCode(id uint, code string, maxUses int) *models.RedeemCode {
	return &models.RedeemCode{ID: id, Code: code, Type: models.CodePremium, MaxUses: maxUses, IsActive: true}
}

func expectKind(t *testing.T, err error, want *RedeemError) {
	t.Helper()
	if !errors.Is(err, want) {
		t.Fatalf("expected %s, got %v", want.Kind, err)
	}
}

func TestRedeem_WelcomeScenario(t *testing.T) {
	store := newMemStore(activeCode(1, "WELCOME1", 1))
	svc := newTestService(store, nil)
	ctx := context.Background()

	res, err := svc.Redeem(ctx, "welcome1", "alice", "203.0.113.7")
	if err != nil {
		t.Fatalf("first redemption: %v", err)
	}
	if res.Details.Type != models.CodePremium {
		t.Errorf("unexpected details %+v", res.Details)
	}

	_, err = svc.Redeem(ctx, "WELCOME1", "alice", "203.0.113.7")
	expectKind(t, err, ErrAlreadyRedeemed)

	_, err = svc.Redeem(ctx, "WELCOME1", "bob", "198.51.100.2")
	expectKind(t, err, ErrExhausted)

	if store.uses(1) != 1 {
		t.Errorf("expected current_uses 1, got %d", store.uses(1))
	}
}

func TestRedeem_OldCodeExpired(t *testing.T) {
	yesterday := fixedNow.Add(-24 * time.Hour)
	code := activeCode(1, "OLDCODE", 100)
	code.ExpiresAt = &yesterday
	store := newMemStore(code)
	svc := newTestService(store, nil)

	for _, p := range []string{"alice", "bob", "carol"} {
		_, err := svc.Redeem(context.Background(), "oldcode", p, "unknown")
		expectKind(t, err, ErrExpired)
	}
	if store.redemptionCount() != 0 {
		t.Error("expired code must not record redemptions")
	}
}

func TestRedeem_ExpiredCheckedBeforeUses(t *testing.T) {
	yesterday := fixedNow.Add(-24 * time.Hour)
	code := activeCode(1, "DONE", 1)
	code.ExpiresAt = &yesterday
	code.CurrentUses = 1
	svc := newTestService(newMemStore(code), nil)

	_, err := svc.Redeem(context.Background(), "DONE", "alice", "")
	expectKind(t, err, ErrExpired)
}

func TestRedeem_InputValidation(t *testing.T) {
	svc := newTestService(newMemStore(activeCode(1, "OK", 5)), nil)
	ctx := context.Background()

	_, err := svc.Redeem(ctx, "OK", "", "")
	expectKind(t, err, ErrUnauthenticated)

	for _, in := range []string{"", "   ", strings.Repeat("X", 51), "missing"} {
		_, err := svc.Redeem(ctx, in, "alice", "")
		expectKind(t, err, ErrNotFound)
	}
}

func TestRedeem_InactiveCode(t *testing.T) {
	code := activeCode(1, "OFF", 5)
	code.IsActive = false
	svc := newTestService(newMemStore(code), nil)
	_, err := svc.Redeem(context.Background(), "OFF", "alice", "")
	expectKind(t, err, ErrNotFound)
}

func TestRedeem_ConcurrentDistinctPrincipals(t *testing.T) {
	const maxUses, extra = 5, 7
	store := newMemStore(activeCode(1, "RUSH", maxUses))
	svc := newTestService(store, nil)

	// Hold every winner of the insert between insert and increment so the
	// counter race is actually exercised.
	var gate sync.WaitGroup
	gate.Add(1)
	store.beforeIncrement = func() { gate.Wait() }

	var successes, exhausted atomic.Int32
	var g errgroup.Group
	var started sync.WaitGroup
	for i := 0; i < maxUses+extra; i++ {
		principal := fmt.Sprintf("user-%d", i)
		started.Add(1)
		g.Go(func() error {
			started.Done()
			_, err := svc.Redeem(context.Background(), "RUSH", principal, "")
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, ErrExhausted):
				exhausted.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	started.Wait()
	time.Sleep(20 * time.Millisecond)
	gate.Done()

	if err := g.Wait(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if successes.Load() != maxUses || exhausted.Load() != extra {
		t.Errorf("expected %d successes and %d exhausted, got %d and %d",
			maxUses, extra, successes.Load(), exhausted.Load())
	}
	if store.uses(1) != maxUses {
		t.Errorf("expected current_uses %d, got %d", maxUses, store.uses(1))
	}
	if store.redemptionCount() != maxUses {
		t.Errorf("losing redemptions must be compensated, got %d rows", store.redemptionCount())
	}
}

func TestRedeem_ConcurrentSamePrincipal(t *testing.T) {
	store := newMemStore(activeCode(1, "TWICE", 10))
	svc := newTestService(store, nil)

	var successes, already atomic.Int32
	var g errgroup.Group
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			_, err := svc.Redeem(context.Background(), "TWICE", "alice", "")
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, ErrAlreadyRedeemed):
				already.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if successes.Load() != 1 || already.Load() != 7 {
		t.Errorf("expected 1 success and 7 already redeemed, got %d and %d", successes.Load(), already.Load())
	}
	if store.uses(1) != 1 {
		t.Errorf("expected one use, got %d", store.uses(1))
	}
}

func TestRedeem_IncrementErrorCompensates(t *testing.T) {
	store := newMemStore(activeCode(1, "FLAKY", 3))
	store.incrErr = errors.New("connection reset")
	svc := newTestService(store, nil)

	_, err := svc.Redeem(context.Background(), "FLAKY", "alice", "")
	expectKind(t, err, ErrInternal)
	re := AsRedeemError(err)
	if !re.Retryable() || re.HTTPStatus() != 500 {
		t.Errorf("internal error should be retryable 500, got %v %d", re.Retryable(), re.HTTPStatus())
	}
	if store.redemptionCount() != 0 || len(store.deleted) != 1 {
		t.Errorf("redemption row should be compensated")
	}

	store.incrErr = nil
	if _, err := svc.Redeem(context.Background(), "FLAKY", "alice", ""); err != nil {
		t.Errorf("retry after compensation should succeed, got %v", err)
	}
}

func TestRedeem_CompensationFailureStillReportsExhausted(t *testing.T) {
	store := newMemStore(activeCode(1, "EDGE", 1))
	store.deleteErr = errors.New("db down")
	// Another redeemer consumes the last use between our insert and increment.
	store.beforeIncrement = func() {
		store.mu.Lock()
		store.codes[1].CurrentUses = 1
		store.mu.Unlock()
	}
	svc := newTestService(store, nil)

	_, err := svc.Redeem(context.Background(), "EDGE", "alice", "")
	expectKind(t, err, ErrExhausted)
}

func TestRedeem_BenefitFailureIsQueued(t *testing.T) {
	store := newMemStore(activeCode(1, "GIFT", 5))
	store.benefitErr = errors.New("profile not found")
	var emitted []events.AuditEvent
	sink := events.SinkFunc(func(_ context.Context, e events.AuditEvent) error {
		emitted = append(emitted, e)
		return nil
	})
	svc := newTestService(store, sink)

	res, err := svc.Redeem(context.Background(), "GIFT", "alice", "203.0.113.7")
	if err != nil {
		t.Fatalf("benefit failure must not fail the redemption: %v", err)
	}
	if !res.Pending {
		t.Error("expected pending benefit")
	}
	if store.uses(1) != 1 {
		t.Error("code must stay consumed")
	}
	if len(store.pending) != 1 || store.pending[0].PrincipalID != "alice" {
		t.Errorf("expected queued benefit, got %+v", store.pending)
	}
	if len(emitted) != 2 {
		t.Fatalf("expected queued and redeemed events, got %+v", emitted)
	}
	if emitted[0].Action != events.ActionBenefitQueued || emitted[0].Details["pending_id"] != uint(1) {
		t.Errorf("unexpected queued event %+v", emitted[0])
	}
	if emitted[1].Action != events.ActionCodeRedeemed || emitted[1].SourceIP != "203.0.113.7" {
		t.Errorf("unexpected redeemed event %+v", emitted[1])
	}
}

func TestRedeem_AuditFailureIgnored(t *testing.T) {
	store := newMemStore(activeCode(1, "LOUD", 5))
	sink := events.SinkFunc(func(context.Context, events.AuditEvent) error { return errors.New("kafka down") })
	svc := newTestService(store, sink)

	if _, err := svc.Redeem(context.Background(), "LOUD", "alice", ""); err != nil {
		t.Fatalf("audit failure must not fail the redemption: %v", err)
	}
}

type failingFind struct{ *memStore }

func (failingFind) FindActiveByCode(context.Context, string) (*models.RedeemCode, error) {
	return nil, errors.New("timeout")
}

func TestRedeem_StoreErrorIsInternal(t *testing.T) {
	svc := newTestService(failingFind{newMemStore()}, nil)
	_, err := svc.Redeem(context.Background(), "ANY", "alice", "")
	expectKind(t, err, ErrInternal)
	if AsRedeemError(err).Message() != "Failed to redeem code" {
		t.Errorf("internal errors must use the generic message, got %q", AsRedeemError(err).Message())
	}
}

func TestRedeemError_Mapping(t *testing.T) {
	tests := []struct {
		err    *RedeemError
		status int
		msg    string
	}{
		{ErrNotFound, 400, "Invalid or inactive code"},
		{ErrExpired, 400, "This code has expired"},
		{ErrExhausted, 400, "This code has reached its usage limit"},
		{ErrAlreadyRedeemed, 400, "You have already redeemed this code"},
		{ErrUnauthenticated, 401, "Unauthorized"},
		{ErrInternal, 500, "Failed to redeem code"},
	}
	for _, tt := range tests {
		t.Run(tt.err.Kind.String(), func(t *testing.T) {
			if tt.err.HTTPStatus() != tt.status {
				t.Errorf("status = %d, want %d", tt.err.HTTPStatus(), tt.status)
			}
			if tt.err.Message() != tt.msg {
				t.Errorf("message = %q, want %q", tt.err.Message(), tt.msg)
			}
			if tt.err.Retryable() != (tt.err.Kind == KindInternal) {
				t.Errorf("only internal errors are retryable")
			}
		})
	}
	if AsRedeemError(errors.New("x")).Kind != KindInternal {
		t.Error("unknown errors should map to internal")
	}
}
