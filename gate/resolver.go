// Package gate decides whether an authenticated principal holds staff
// privilege. The decision is a pure function over explicit inputs: the
// profile row, the session metadata and, only when the principal linked an
// account on the external provider, a bounded call to an external role
// oracle. This package has no dependencies on storage or transport and can
// be exercised with plain values in tests.
package gate

import (
	"context"
	"time"
)

// DefaultExternalTimeout bounds the external role check when the resolver
// is built without an explicit timeout.
const DefaultExternalTimeout = 2500 * time.Millisecond

// DefaultProvider is the linked-identity provider consulted in step 3.
const DefaultProvider = "discord"

// Profile is the part of a profile row the resolver reads.
// A nil *Profile means the row is missing or could not be loaded.
type Profile struct {
	PrincipalID string
	Username    string
	Role        Role
}

// Subject exposes the identity facts the resolver needs from the
// authenticated principal.
type Subject interface {
	// MetadataRole returns the role claim carried in session metadata.
	MetadataRole() string
	// LinkedIdentity returns the external id linked for provider.
	LinkedIdentity(provider string) (string, bool)
}

// ExternalCheck asks the external oracle whether externalID holds the
// staff role. It must honour ctx cancellation where it can; the resolver
// abandons it once the bound elapses either way.
type ExternalCheck func(ctx context.Context, externalID string) bool

// Resolver applies the fixed precedence order:
//  1. profile role admin/moderator
//  2. session metadata role "admin"
//  3. external oracle, only for principals with a linked identity
//  4. nothing: not staff
type Resolver struct {
	provider string
	timeout  time.Duration
}

// NewResolver creates a resolver consulting provider's linked identity,
// bounding the external call by timeout. Zero values pick the defaults.
func NewResolver(provider string, timeout time.Duration) *Resolver {
	if provider == "" {
		provider = DefaultProvider
	}
	if timeout <= 0 {
		timeout = DefaultExternalTimeout
	}
	return &Resolver{provider: provider, timeout: timeout}
}

// Timeout returns the bound applied to the external check.
func (r *Resolver) Timeout() time.Duration { return r.timeout }

// Resolve produces a verdict. The first matching source wins and later
// sources are not consulted. check may be nil, in which case step 3 is
// skipped.
func (r *Resolver) Resolve(ctx context.Context, profile *Profile, subject Subject, check ExternalCheck) Verdict {
	if profile != nil && profile.Role.IsStaff() {
		return Verdict{IsStaff: true, Source: SourceProfile, Role: profile.Role}
	}
	if subject == nil {
		return NoPrivilege
	}
	if subject.MetadataRole() == string(RoleAdmin) {
		return Verdict{IsStaff: true, Source: SourceMetadata, Role: RoleAdmin}
	}
	externalID, linked := subject.LinkedIdentity(r.provider)
	if !linked || externalID == "" || check == nil {
		return NoPrivilege
	}
	if r.boundedCheck(ctx, check, externalID) {
		return Verdict{IsStaff: true, Source: SourceExternal, Role: RoleModerator}
	}
	return NoPrivilege
}

// boundedCheck runs check with a deadline. A timeout, a cancelled parent
// context or a panic inside check all count as false; the oracle can only
// ever assert privilege, never be assumed to.
func (r *Resolver) boundedCheck(ctx context.Context, check ExternalCheck, externalID string) bool {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	// Buffered so an abandoned check can still deliver and exit.
	result := make(chan bool, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				result <- false
			}
		}()
		result <- check(ctx, externalID)
	}()

	select {
	case ok := <-result:
		return ok
	case <-ctx.Done():
		return false
	}
}
