package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lalith-99/festivo/internal/clearance"
	"github.com/lalith-99/festivo/internal/membership"
	"github.com/lalith-99/festivo/internal/middleware"
	"github.com/lalith-99/festivo/internal/models"
	"github.com/lalith-99/festivo/internal/modules"
	"github.com/lalith-99/festivo/internal/tenants"
	"go.uber.org/zap"
)

type TenantHandler struct {
	tenants   *tenants.Service
	authority *membership.Authority
	logger    *zap.Logger
}

func NewTenantHandler(svc *tenants.Service, authority *membership.Authority, logger *zap.Logger) *TenantHandler {
	return &TenantHandler{tenants: svc, authority: authority, logger: logger}
}

type createTenantRequest struct {
	Name string `json:"name" binding:"required"`
}

type createTenantResponse struct {
	Tenant     *models.Tenant     `json:"tenant"`
	Membership *models.Membership `json:"membership"`
}

// Create handles POST /v1/tenants. The caller becomes the owner.
func (h *TenantHandler) Create(c *gin.Context) {
	var req createTenantRequest
	if !bindJSON(c, &req) {
		return
	}
	tenant, owner, err := h.tenants.Create(c.Request.Context(), middleware.GetUserID(c), req.Name)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, createTenantResponse{Tenant: tenant, Membership: owner})
}

// Get handles GET /v1/tenants/:tenantID
func (h *TenantHandler) Get(c *gin.Context) {
	tenant, err := h.tenants.Get(c.Request.Context(), middleware.GetUserID(c), middleware.GetTenantID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tenant)
}

// accessView is what the client needs to draw its navigation: who the
// caller is in this tenant and which modules they can open.
type accessView struct {
	UserID        uuid.UUID            `json:"user_id"`
	TenantID      uuid.UUID            `json:"tenant_id"`
	Role          string               `json:"role"`
	Clearance     clearance.Level      `json:"clearance"`
	ClearanceName string               `json:"clearance_name"`
	SuperAdmin    bool                 `json:"superadmin"`
	Modules       []modules.Definition `json:"modules"`
}

// Me handles GET /v1/tenants/:tenantID/me
func (h *TenantHandler) Me(c *gin.Context) {
	ctx := c.Request.Context()
	tenantID := middleware.GetTenantID(c)
	actor, err := h.authority.RequireMember(ctx, middleware.GetUserID(c), tenantID, clearance.Infrared)
	if err != nil {
		respondError(c, err)
		return
	}
	mods, err := h.authority.AccessibleModules(ctx, tenantID, actor.Level)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, accessView{
		UserID:        actor.UserID,
		TenantID:      tenantID,
		Role:          string(actor.Role()),
		Clearance:     actor.Level,
		ClearanceName: actor.Level.String(),
		SuperAdmin:    actor.SuperAdmin,
		Modules:       mods,
	})
}
