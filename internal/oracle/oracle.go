// Package oracle answers "does this external account hold the staff role"
// against the community guild. Answers are advisory: every failure mode
// collapses to a boolean and never surfaces as an error.
package oracle

import (
	"context"

	"github.com/5vraa/swims.cc-website-sub000/gate"
)

// Oracle checks guild role membership for an external account id.
type Oracle interface {
	HasRole(ctx context.Context, externalID, roleID string) bool
}

// Check binds an oracle to a role id for use by the gate resolver.
func Check(o Oracle, roleID string) gate.ExternalCheck {
	if o == nil || roleID == "" {
		return nil
	}
	return func(ctx context.Context, externalID string) bool {
		return o.HasRole(ctx, externalID, roleID)
	}
}

// StaticOracle grants the role to a fixed set of external ids. It stands in
// for the guild when no bot token is configured.
type StaticOracle struct {
	ids map[string]struct{}
}

func NewStaticOracle(ids []string) *StaticOracle {
	return &StaticOracle{ids: idSet(ids)}
}

func (o *StaticOracle) HasRole(_ context.Context, externalID, _ string) bool {
	_, ok := o.ids[externalID]
	return ok
}

func idSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id != "" {
			set[id] = struct{}{}
		}
	}
	return set
}
