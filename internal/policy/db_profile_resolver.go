package policy

import (
	"context"
	"errors"
	"log/slog"

	"github.com/5vraa/swims.cc-website-sub000/gate"
	"github.com/5vraa/swims.cc-website-sub000/internal/models"
	"github.com/5vraa/swims.cc-website-sub000/internal/store"
)

// ProfileFinder loads the profile row of a principal.
type ProfileFinder interface {
	FindByPrincipal(ctx context.Context, principalID string) (*models.Profile, error)
}

// DBProfileResolver adapts profile rows to gate profiles. Lookup failures
// are logged and reported as a missing profile so they can only ever
// reduce privilege.
type DBProfileResolver struct {
	Profiles ProfileFinder
	Log      *slog.Logger
}

// NewDBProfileResolver creates a resolver over profiles.
func NewDBProfileResolver(profiles ProfileFinder, log *slog.Logger) *DBProfileResolver {
	if log == nil {
		log = slog.Default()
	}
	return &DBProfileResolver{Profiles: profiles, Log: log}
}

// Resolve returns the gate profile for principalID, or nil.
func (r *DBProfileResolver) Resolve(ctx context.Context, principalID string) *gate.Profile {
	p, err := r.Profiles.FindByPrincipal(ctx, principalID)
	if err != nil {
		if !errors.Is(err, store.ErrProfileNotFound) {
			r.Log.WarnContext(ctx, "profile lookup failed, treating as unprivileged",
				"module", "policy", "operation", "resolve_profile", "principal_id", principalID, "error", err)
		}
		return nil
	}
	return &gate.Profile{
		PrincipalID: p.PrincipalID,
		Username:    p.Username,
		Role:        gate.ParseRole(p.Role),
	}
}
