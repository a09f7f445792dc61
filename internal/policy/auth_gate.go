// Package policy wires the role resolver to requests: it looks up the
// profile, asks the external oracle when needed and guards routes.
package policy

import (
	"context"
	"log/slog"
	"sync"

	"github.com/5vraa/swims.cc-website-sub000/auth"
	"github.com/5vraa/swims.cc-website-sub000/gate"
	"github.com/5vraa/swims.cc-website-sub000/internal/oracle"
)

// AuthGate is the central authorization point of the application.
type AuthGate struct {
	Resolver    *gate.Resolver
	Profiles    *DBProfileResolver
	Oracle      oracle.Oracle
	StaffRoleID string
	Log         *slog.Logger
}

// NewAuthGate creates a gate. o may be nil to disable the external check.
func NewAuthGate(resolver *gate.Resolver, profiles *DBProfileResolver, o oracle.Oracle, staffRoleID string, log *slog.Logger) *AuthGate {
	if log == nil {
		log = slog.Default()
	}
	return &AuthGate{
		Resolver:    resolver,
		Profiles:    profiles,
		Oracle:      o,
		StaffRoleID: staffRoleID,
		Log:         log.With("module", "policy"),
	}
}

type verdictKey struct{}

// verdictMemo holds the verdict computed for one request.
type verdictMemo struct {
	once    sync.Once
	verdict gate.Verdict
}

// WithVerdictMemo prepares ctx so Verdict is computed at most once per request.
func WithVerdictMemo(ctx context.Context) context.Context {
	return context.WithValue(ctx, verdictKey{}, &verdictMemo{})
}

// Verdict resolves the staff verdict for the principal in ctx. An
// unauthenticated context yields gate.ErrUnauthorized.
func (ag *AuthGate) Verdict(ctx context.Context) (gate.Verdict, error) {
	p, ok := auth.PrincipalFromContext(ctx)
	if !ok {
		return gate.NoPrivilege, gate.ErrUnauthorized
	}
	if memo, ok := ctx.Value(verdictKey{}).(*verdictMemo); ok {
		memo.once.Do(func() { memo.verdict = ag.resolve(ctx, p) })
		return memo.verdict, nil
	}
	return ag.resolve(ctx, p), nil
}

// Fresh resolves the verdict again, ignoring any per-request memo. Used by
// privileged writes that must not trust an earlier decision.
func (ag *AuthGate) Fresh(ctx context.Context) (gate.Verdict, error) {
	p, ok := auth.PrincipalFromContext(ctx)
	if !ok {
		return gate.NoPrivilege, gate.ErrUnauthorized
	}
	return ag.resolve(ctx, p), nil
}

func (ag *AuthGate) resolve(ctx context.Context, p *auth.Principal) gate.Verdict {
	var profile *gate.Profile
	if ag.Profiles != nil {
		profile = ag.Profiles.Resolve(ctx, p.ID)
	}
	v := ag.Resolver.Resolve(ctx, profile, p, oracle.Check(ag.Oracle, ag.StaffRoleID))
	ag.Log.DebugContext(ctx, "role resolved", "principal_id", p.ID, "is_staff", v.IsStaff, "source", v.Source, "role", v.Role)
	return v
}

// Authorize re-runs the resolver and checks level. It returns
// gate.ErrUnauthorized without a principal and gate.ErrForbidden when the
// verdict falls short.
func (ag *AuthGate) Authorize(ctx context.Context, level gate.Level) (gate.Verdict, error) {
	v, err := ag.Fresh(ctx)
	if err != nil {
		return v, err
	}
	if !v.Satisfies(level) {
		return v, gate.ErrForbidden
	}
	return v, nil
}
