package handlers

import (
	"context"
	"net/http"

	"github.com/5vraa/swims.cc-website-sub000/auth"
	"github.com/5vraa/swims.cc-website-sub000/httpx"
	"github.com/5vraa/swims.cc-website-sub000/internal/services"
)

const maxRedeemBody = 4 << 10

// Redeemer consumes a code for a principal.
type Redeemer interface {
	Redeem(ctx context.Context, code, principalID, clientIP string) (*services.Redemption, error)
}

// RedeemHandler serves POST /api/redeem.
type RedeemHandler struct {
	Service Redeemer
}

func NewRedeemHandler(svc Redeemer) *RedeemHandler {
	return &RedeemHandler{Service: svc}
}

type redeemRequest struct {
	Code string `json:"code"`
}

func (h *RedeemHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	principalID := ""
	if p, ok := auth.PrincipalFromContext(r.Context()); ok {
		principalID = p.ID
	}

	var req redeemRequest
	if err := httpx.DecodeJSON(r, &req, maxRedeemBody); err != nil {
		// A body we cannot read names no code.
		req.Code = ""
	}

	res, err := h.Service.Redeem(r.Context(), req.Code, principalID, httpx.ClientIP(r))
	if err != nil {
		re := services.AsRedeemError(err)
		httpx.JSONError(w, re.HTTPStatus(), re.Message(), nil)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}
