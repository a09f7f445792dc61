package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/5vraa/swims.cc-website-sub000/auth"
	"github.com/5vraa/swims.cc-website-sub000/httpx"
	"github.com/5vraa/swims.cc-website-sub000/internal/events"
	"github.com/5vraa/swims.cc-website-sub000/internal/handlers"
	"github.com/5vraa/swims.cc-website-sub000/internal/policy"
)

// appDeps carries everything the router needs.
type appDeps struct {
	DB       *gorm.DB
	Verifier *auth.Verifier
	Gate     *policy.AuthGate
	Redeem   handlers.Redeemer
	Codes    handlers.CodeAdmin
	Audit    events.Sink
	History  handlers.AuditReader
	Guard    policy.GuardOptions
	Logger   *slog.Logger
}

type ctxKey string

const ctxKeyRequestID ctxKey = "request_id"

// NewApp creates the application handler with all routes configured.
func NewApp(d appDeps) http.Handler {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	redeem := handlers.NewRedeemHandler(d.Redeem)
	role := handlers.NewRoleHandler(d.Gate)
	admin := handlers.NewAdminCodeHandler(d.Codes, d.Gate, d.Audit, d.History, d.Logger)

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(recoverMiddleware(d.Logger))
	r.Use(loggingMiddleware(d.Logger))
	r.Use(d.Verifier.Middleware)

	r.Get("/healthz", handlers.Health(d.DB))

	// Authenticated API
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth)
		r.Post("/api/redeem", redeem.Redeem)
		r.Get("/api/me/role", role.Get)
	})

	// Staff console and API
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth)
		r.Use(d.Gate.RequireStaff(d.Guard))
		r.Get("/admin", admin.Page)
		r.Get("/api/admin/codes", admin.List)
		r.Post("/api/admin/codes", admin.Create)
		r.Post("/api/admin/codes/{id}/active", admin.SetActive)
		r.Get("/api/admin/codes/{id}/audit", admin.AuditTrail)
	})
	return r
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-Id")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", reqID)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKeyRequestID, reqID)))
	})
}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyRequestID).(string)
	return id
}

func recoverMiddleware(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					log.ErrorContext(r.Context(), "panic in handler", "panic", rec, "request_id", requestID(r.Context()))
					httpx.JSONError(w, http.StatusInternalServerError, "internal server error", nil)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// loggingMiddleware logs one line per request.
func loggingMiddleware(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			log.InfoContext(r.Context(), "request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"duration", time.Since(start),
				"request_id", requestID(r.Context()),
			)
		})
	}
}
