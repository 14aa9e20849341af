package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/festivo/internal/invite"
	"github.com/lalith-99/festivo/internal/middleware"
	"github.com/lalith-99/festivo/internal/models"
	"go.uber.org/zap"
)

type InviteHandler struct {
	invites *invite.Service
	logger  *zap.Logger
}

func NewInviteHandler(svc *invite.Service, logger *zap.Logger) *InviteHandler {
	return &InviteHandler{invites: svc, logger: logger}
}

type createInviteRequest struct {
	Role      string     `json:"role"`
	MaxUses   int        `json:"max_uses"`
	ModuleID  *string    `json:"module_id"`
	ExpiresAt *time.Time `json:"expires_at"`
}

type inviteResponse struct {
	*models.InviteCode
	JoinURL string `json:"join_url"`
}

// Create handles POST /v1/tenants/:tenantID/invites
//
// max_uses defaults to 1, the common "one code per person" case.
func (h *InviteHandler) Create(c *gin.Context) {
	var req createInviteRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.MaxUses == 0 {
		req.MaxUses = 1
	}

	ic, err := h.invites.Create(c.Request.Context(), invite.CreateParams{
		ActorID:   middleware.GetUserID(c),
		TenantID:  middleware.GetTenantID(c),
		Role:      req.Role,
		MaxUses:   req.MaxUses,
		ModuleID:  req.ModuleID,
		ExpiresAt: req.ExpiresAt,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, inviteResponse{InviteCode: ic, JoinURL: h.invites.JoinURL(ic.Code)})
}

// List handles GET /v1/tenants/:tenantID/invites
func (h *InviteHandler) List(c *gin.Context) {
	codes, err := h.invites.List(c.Request.Context(), middleware.GetUserID(c), middleware.GetTenantID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	out := make([]inviteResponse, 0, len(codes))
	for i := range codes {
		out = append(out, inviteResponse{InviteCode: &codes[i], JoinURL: h.invites.JoinURL(codes[i].Code)})
	}
	c.JSON(http.StatusOK, out)
}

// Validate handles GET /v1/invites/:code
//
// Always 200: an unusable code is a normal answer with valid=false and a
// reason, so the join screen can say "expired" instead of a generic error.
func (h *InviteHandler) Validate(c *gin.Context) {
	v, err := h.invites.Validate(c.Request.Context(), c.Param("code"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

// Redeem handles POST /v1/join/:code
func (h *InviteHandler) Redeem(c *gin.Context) {
	m, err := h.invites.Redeem(c.Request.Context(), c.Param("code"), middleware.GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}
