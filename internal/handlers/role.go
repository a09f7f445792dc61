package handlers

import (
	"net/http"

	"github.com/5vraa/swims.cc-website-sub000/httpx"
	"github.com/5vraa/swims.cc-website-sub000/internal/policy"
)

// RoleHandler serves GET /api/me/role.
type RoleHandler struct {
	Gate *policy.AuthGate
}

func NewRoleHandler(g *policy.AuthGate) *RoleHandler {
	return &RoleHandler{Gate: g}
}

func (h *RoleHandler) Get(w http.ResponseWriter, r *http.Request) {
	v, err := h.Gate.Verdict(r.Context())
	if err != nil {
		httpx.JSONError(w, policy.StatusFor(err), "Unauthorized", nil)
		return
	}
	httpx.JSON(w, http.StatusOK, v)
}
