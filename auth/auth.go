// Package auth verifies session tokens issued by the hosted auth service
// and carries the resulting Principal through the request context.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type ctxKey string

const (
	// SessionCookieName is the cookie the hosted auth client stores its access token in.
	SessionCookieName = "sb-access-token"
	principalCtxKey   = ctxKey("principal")
)

// ErrInvalidToken is returned for missing, malformed, expired or badly signed tokens.
var ErrInvalidToken = errors.New("auth: invalid token")

// Claims are the session token claims this service reads.
type Claims struct {
	Email        string         `json:"email,omitempty"`
	UserMetadata map[string]any `json:"user_metadata,omitempty"`
	AppMetadata  map[string]any `json:"app_metadata,omitempty"`
	Identities   []Identity     `json:"identities,omitempty"`
	jwt.RegisteredClaims
}

// Verifier checks HS256 session tokens with a shared secret.
type Verifier struct {
	secret   []byte
	audience string
	leeway   time.Duration
}

// NewVerifier creates a verifier. audience may be empty to skip the aud check.
func NewVerifier(secret, audience string) *Verifier {
	return &Verifier{secret: []byte(secret), audience: audience, leeway: 30 * time.Second}
}

// Verify parses and validates raw, returning the principal it names.
func (v *Verifier) Verify(raw string) (*Principal, error) {
	if raw == "" || len(v.secret) == 0 {
		return nil, ErrInvalidToken
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(v.leeway),
		jwt.WithExpirationRequired(),
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims.principal(), nil
}

// principal copies the claims. Only app metadata feeds Metadata: users can
// rewrite their own user metadata, so it never reaches privilege decisions.
func (c *Claims) principal() *Principal {
	return &Principal{
		ID:           c.Subject,
		Email:        c.Email,
		Identities:   append([]Identity(nil), c.Identities...),
		Metadata:     copyMap(c.AppMetadata),
		UserMetadata: copyMap(c.UserMetadata),
	}
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Sign issues a token for claims. Used by tests and the dev seed tooling.
func (v *Verifier) Sign(claims *Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// TokenFromRequest returns the bearer token, falling back to the session cookie.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if scheme, token, ok := strings.Cut(h, " "); ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	if c, err := r.Cookie(SessionCookieName); err == nil {
		return c.Value
	}
	return ""
}

// WithPrincipal stores p in context.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalCtxKey, p)
}

// PrincipalFromContext extracts the principal.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalCtxKey).(*Principal)
	return p, ok && p != nil
}

// Middleware attaches the principal to the request context if a valid token is present.
// Requests without a valid token pass through unauthenticated.
func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if p, err := v.Verify(TokenFromRequest(r)); err == nil {
			r = r.WithContext(WithPrincipal(r.Context(), p))
		}
		next.ServeHTTP(w, r)
	})
}

// WantsJSON reports whether the client prefers a JSON response over HTML.
func WantsJSON(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	if strings.HasPrefix(r.URL.Path, "/api/") {
		return !strings.Contains(accept, "text/html")
	}
	return strings.Contains(accept, "application/json") && !strings.Contains(accept, "text/html")
}

// RequireAuth returns 401 JSON for API clients and redirects browsers to /login.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := PrincipalFromContext(r.Context()); !ok {
			if WantsJSON(r) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				fmt.Fprint(w, `{"error":"Unauthorized"}`)
				return
			}
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}
