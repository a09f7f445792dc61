package policy

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/5vraa/swims.cc-website-sub000/auth"
	"github.com/5vraa/swims.cc-website-sub000/gate"
	"github.com/5vraa/swims.cc-website-sub000/httpx"
	"github.com/5vraa/swims.cc-website-sub000/view"
)

// GuardState is the lifecycle of a guarded view.
type GuardState int

const (
	GuardLoading GuardState = iota
	GuardAuthorized
	GuardDenied
)

func (s GuardState) String() string {
	switch s {
	case GuardAuthorized:
		return "authorized"
	case GuardDenied:
		return "denied"
	default:
		return "loading"
	}
}

// Denial reasons.
const (
	ReasonUnauthenticated = "unauthenticated"
	ReasonNotStaff        = "staff access required"
	ReasonNotAdmin        = "admin access required"
)

// Decision is the outcome of a guard check. It never changes state.
type Decision struct {
	State   GuardState   `json:"-"`
	Reason  string       `json:"reason,omitempty"`
	Verdict gate.Verdict `json:"verdict"`
}

// GuardOptions tunes the denial response.
type GuardOptions struct {
	RedirectDelay time.Duration
	RedirectURL   string
}

// Guard resolves the verdict for ctx and decides whether level is met.
// The returned decision is never GuardLoading.
func (ag *AuthGate) Guard(ctx context.Context, level gate.Level) Decision {
	v, err := ag.Verdict(ctx)
	if err != nil {
		return Decision{State: GuardDenied, Reason: ReasonUnauthenticated, Verdict: v}
	}
	if v.Satisfies(level) {
		return Decision{State: GuardAuthorized, Verdict: v}
	}
	reason := ReasonNotStaff
	if level == gate.LevelAdmin {
		reason = ReasonNotAdmin
	}
	return Decision{State: GuardDenied, Reason: reason, Verdict: v}
}

// Require returns middleware that only lets requests meeting level through.
func (ag *AuthGate) Require(level gate.Level, opts GuardOptions) func(http.Handler) http.Handler {
	if opts.RedirectURL == "" {
		opts.RedirectURL = "/"
	}
	if opts.RedirectDelay <= 0 {
		opts.RedirectDelay = 3 * time.Second
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if ctx.Value(verdictKey{}) == nil {
				ctx = WithVerdictMemo(ctx)
				r = r.WithContext(ctx)
			}
			d := ag.Guard(ctx, level)
			if d.State == GuardAuthorized {
				next.ServeHTTP(w, r)
				return
			}
			status := http.StatusForbidden
			if d.Reason == ReasonUnauthenticated {
				status = http.StatusUnauthorized
			}
			ag.Log.InfoContext(ctx, "access denied", "operation", "guard", "path", r.URL.Path, "reason", d.Reason, "level", level.String())
			if auth.WantsJSON(r) {
				httpx.JSONError(w, status, d.Reason, nil)
				return
			}
			secs := int(opts.RedirectDelay.Round(time.Second) / time.Second)
			w.Header().Set("Refresh", fmt.Sprintf("%d; url=%s", secs, opts.RedirectURL))
			err := view.Render(w, r, status, "denied.html", map[string]any{
				"Reason": d.Reason, "Seconds": secs, "URL": opts.RedirectURL,
			})
			if err != nil {
				ag.Log.ErrorContext(ctx, "render denied page", "operation", "guard", "error", err)
				http.Error(w, d.Reason, status)
			}
		})
	}
}

// RequireStaff is Require(gate.LevelStaff, opts).
func (ag *AuthGate) RequireStaff(opts GuardOptions) func(http.Handler) http.Handler {
	return ag.Require(gate.LevelStaff, opts)
}

// RequireAdmin is Require(gate.LevelAdmin, opts).
func (ag *AuthGate) RequireAdmin(opts GuardOptions) func(http.Handler) http.Handler {
	return ag.Require(gate.LevelAdmin, opts)
}

// StatusFor maps gate errors to HTTP statuses.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, gate.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, gate.ErrForbidden):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
