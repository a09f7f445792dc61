package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/5vraa/swims.cc-website-sub000/auth"
	"github.com/5vraa/swims.cc-website-sub000/gate"
	"github.com/5vraa/swims.cc-website-sub000/httpx"
	"github.com/5vraa/swims.cc-website-sub000/internal/events"
	"github.com/5vraa/swims.cc-website-sub000/internal/models"
	"github.com/5vraa/swims.cc-website-sub000/internal/policy"
	"github.com/5vraa/swims.cc-website-sub000/internal/store"
	"github.com/5vraa/swims.cc-website-sub000/validation"
	"github.com/5vraa/swims.cc-website-sub000/view"
)

// CodeAdmin is the store surface staff handlers need.
type CodeAdmin interface {
	CreateCode(ctx context.Context, code *models.RedeemCode) error
	SetActive(ctx context.Context, id uint, active bool) (*models.RedeemCode, error)
	ListCodes(ctx context.Context) ([]models.RedeemCode, error)
}

// AuditReader reads back the audit trail of one entity, newest first.
type AuditReader interface {
	ListAudit(ctx context.Context, entityType, entityID string, limit int) ([]models.AuditLog, error)
}

// AdminCodeHandler lets staff list, create and toggle redeem codes.
// Every write re-runs authorization even though the routes are guarded.
type AdminCodeHandler struct {
	Codes   CodeAdmin
	Gate    *policy.AuthGate
	Audit   events.Sink
	History AuditReader
	Log     *slog.Logger
}

func NewAdminCodeHandler(codes CodeAdmin, g *policy.AuthGate, audit events.Sink, history AuditReader, log *slog.Logger) *AdminCodeHandler {
	if log == nil {
		log = slog.Default()
	}
	return &AdminCodeHandler{Codes: codes, Gate: g, Audit: audit, History: history, Log: log.With("module", "admin_codes")}
}

// codeView is a code as the staff API shows it.
type codeView struct {
	models.RedeemCode
	RemainingUses int `json:"remaining_uses"`
}

func viewCodes(codes []models.RedeemCode) []codeView {
	out := make([]codeView, len(codes))
	for i := range codes {
		out[i] = codeView{RedeemCode: codes[i], RemainingUses: codes[i].RemainingUses()}
	}
	return out
}

// Page renders the staff console.
func (h *AdminCodeHandler) Page(w http.ResponseWriter, r *http.Request) {
	v, err := h.Gate.Verdict(r.Context())
	if err != nil {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	codes, err := h.Codes.ListCodes(r.Context())
	if err != nil {
		h.Log.ErrorContext(r.Context(), "list codes", "operation", "page", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if err := view.Render(w, r, http.StatusOK, "admin.html", map[string]any{"Codes": viewCodes(codes), "Verdict": v}); err != nil {
		h.Log.ErrorContext(r.Context(), "render admin page", "operation", "page", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// List returns every code as JSON.
func (h *AdminCodeHandler) List(w http.ResponseWriter, r *http.Request) {
	codes, err := h.Codes.ListCodes(r.Context())
	if err != nil {
		h.Log.ErrorContext(r.Context(), "list codes", "operation", "list", "error", err)
		httpx.JSONError(w, http.StatusInternalServerError, "db_error", nil)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"codes": viewCodes(codes)})
}

const auditPageSize = 50

// AuditTrail returns the newest audit rows for one code.
func (h *AdminCodeHandler) AuditTrail(w http.ResponseWriter, r *http.Request) {
	if h.History == nil {
		httpx.JSONError(w, http.StatusServiceUnavailable, "audit_unavailable", nil)
		return
	}
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id == 0 {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_id", nil)
		return
	}
	rows, err := h.History.ListAudit(r.Context(), "redeem_code", strconv.FormatUint(id, 10), auditPageSize)
	if err != nil {
		h.Log.ErrorContext(r.Context(), "list audit", "operation", "audit_trail", "error", err)
		httpx.JSONError(w, http.StatusInternalServerError, "db_error", nil)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"audit": rows})
}

type createCodeRequest struct {
	Code      string     `json:"code"`
	Type      string     `json:"type"`
	Value     string     `json:"value"`
	MaxUses   int        `json:"max_uses"`
	ExpiresAt *time.Time `json:"expires_at"`
	Inactive  bool       `json:"inactive"`
}

func (req createCodeRequest) validate() validation.Violations {
	v := validation.Violations{}
	validation.Required("code", req.Code, v)
	validation.Length("code", req.Code, 1, models.MaxCodeLength, v)
	validation.OneOf("type", req.Type, models.CodeTypes, v)
	validation.MinInt("max_uses", req.MaxUses, 1, v)
	if req.Type == string(models.CodeStorage) {
		if mb, err := strconv.ParseInt(req.Value, 10, 64); err != nil || mb <= 0 {
			v["value"] = "must_be_positive_integer"
		}
	}
	return v
}

// Create adds a code. Staff only.
func (h *AdminCodeHandler) Create(w http.ResponseWriter, r *http.Request) {
	verdict, err := h.Gate.Authorize(r.Context(), gate.LevelStaff)
	if err != nil {
		status := policy.StatusFor(err)
		httpx.JSONError(w, status, http.StatusText(status), nil)
		return
	}
	p, _ := auth.PrincipalFromContext(r.Context())

	var req createCodeRequest
	if err := httpx.DecodeJSON(r, &req, 16<<10); err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_json", nil)
		return
	}
	if violations := req.validate(); !violations.Empty() {
		httpx.JSONError(w, http.StatusBadRequest, "validation_failed", violations)
		return
	}

	code := &models.RedeemCode{
		Code:      strings.TrimSpace(req.Code),
		Type:      models.CodeType(req.Type),
		Value:     req.Value,
		MaxUses:   req.MaxUses,
		ExpiresAt: req.ExpiresAt,
		IsActive:  !req.Inactive,
		CreatedBy: p.ID,
	}
	if err := h.Codes.CreateCode(r.Context(), code); err != nil {
		if errors.Is(err, store.ErrDuplicateCode) {
			httpx.JSONError(w, http.StatusConflict, "code_already_exists", nil)
			return
		}
		h.Log.ErrorContext(r.Context(), "create code", "operation", "create", "error", err)
		httpx.JSONError(w, http.StatusInternalServerError, "db_error", nil)
		return
	}

	h.emit(r, p.ID, code.ID, events.ActionCodeCreated, map[string]any{
		"code": code.Code, "type": string(code.Type), "max_uses": code.MaxUses, "role": string(verdict.Role),
	})
	httpx.JSON(w, http.StatusCreated, code)
}

type setActiveRequest struct {
	Active *bool `json:"active"`
}

// SetActive toggles a code on or off. Staff only.
func (h *AdminCodeHandler) SetActive(w http.ResponseWriter, r *http.Request) {
	if _, err := h.Gate.Authorize(r.Context(), gate.LevelStaff); err != nil {
		status := policy.StatusFor(err)
		httpx.JSONError(w, status, http.StatusText(status), nil)
		return
	}
	p, _ := auth.PrincipalFromContext(r.Context())

	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id == 0 {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_id", nil)
		return
	}
	var req setActiveRequest
	if err := httpx.DecodeJSON(r, &req, 1<<10); err != nil || req.Active == nil {
		httpx.JSONError(w, http.StatusBadRequest, "validation_failed", map[string]string{"active": "required"})
		return
	}

	code, err := h.Codes.SetActive(r.Context(), uint(id), *req.Active)
	if err != nil {
		if errors.Is(err, store.ErrCodeNotFound) {
			httpx.JSONError(w, http.StatusNotFound, "not_found", nil)
			return
		}
		h.Log.ErrorContext(r.Context(), "set active", "operation", "set_active", "error", err)
		httpx.JSONError(w, http.StatusInternalServerError, "db_error", nil)
		return
	}

	action := events.ActionCodeDeactivated
	if code.IsActive {
		action = events.ActionCodeActivated
	}
	h.emit(r, p.ID, code.ID, action, map[string]any{"code": code.Code})
	httpx.JSON(w, http.StatusOK, code)
}

func (h *AdminCodeHandler) emit(r *http.Request, principalID string, codeID uint, action string, details map[string]any) {
	if h.Audit == nil {
		return
	}
	e := events.NewAuditEvent(principalID, "redeem_code", strconv.FormatUint(uint64(codeID), 10), action, details)
	e.SourceIP = httpx.ClientIP(r)
	if err := h.Audit.Emit(r.Context(), e); err != nil {
		h.Log.WarnContext(r.Context(), "audit emit failed", "operation", "audit", "error", err)
	}
}
