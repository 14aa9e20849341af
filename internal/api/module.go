package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/festivo/internal/clearance"
	"github.com/lalith-99/festivo/internal/membership"
	"github.com/lalith-99/festivo/internal/middleware"
	"github.com/lalith-99/festivo/internal/modules"
	"go.uber.org/zap"
)

// ModuleHandler exposes the catalog and per-tenant activation.
//
// Turning modules on and off is a settings screen, so it takes the
// settings module's BLUE clearance plus the modules:manage permission.
type ModuleHandler struct {
	modules   *modules.Manager
	authority *membership.Authority
	logger    *zap.Logger
}

func NewModuleHandler(mgr *modules.Manager, authority *membership.Authority, logger *zap.Logger) *ModuleHandler {
	return &ModuleHandler{modules: mgr, authority: authority, logger: logger}
}

type catalogResponse struct {
	Core     []modules.Definition `json:"core"`
	Optional []modules.Definition `json:"optional"`
}

// Catalog handles GET /v1/modules
func (h *ModuleHandler) Catalog(c *gin.Context) {
	c.JSON(http.StatusOK, catalogResponse{Core: modules.Core(), Optional: modules.Optional()})
}

// List handles GET /v1/tenants/:tenantID/modules
func (h *ModuleHandler) List(c *gin.Context) {
	ctx := c.Request.Context()
	tenantID := middleware.GetTenantID(c)
	if _, err := h.authority.RequireMember(ctx, middleware.GetUserID(c), tenantID, clearance.Blue); err != nil {
		respondError(c, err)
		return
	}
	statuses, err := h.modules.ListAllWithStatus(ctx, tenantID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, statuses)
}

// Activate handles POST /v1/tenants/:tenantID/modules/:moduleID/activate
func (h *ModuleHandler) Activate(c *gin.Context) {
	h.toggle(c, true)
}

// Deactivate handles POST /v1/tenants/:tenantID/modules/:moduleID/deactivate
func (h *ModuleHandler) Deactivate(c *gin.Context) {
	h.toggle(c, false)
}

func (h *ModuleHandler) toggle(c *gin.Context, enable bool) {
	ctx := c.Request.Context()
	tenantID := middleware.GetTenantID(c)
	if _, err := h.authority.RequirePermission(ctx, middleware.GetUserID(c), tenantID, clearance.Blue, membership.PermManageModules); err != nil {
		respondError(c, err)
		return
	}

	moduleID := c.Param("moduleID")
	var err error
	if enable {
		_, err = h.modules.Activate(ctx, tenantID, moduleID)
	} else {
		_, err = h.modules.Deactivate(ctx, tenantID, moduleID)
	}
	if err != nil {
		respondError(c, err)
		return
	}

	statuses, err := h.modules.ListAllWithStatus(ctx, tenantID)
	if err != nil {
		respondError(c, err)
		return
	}
	for _, st := range statuses {
		if st.ID == moduleID {
			c.JSON(http.StatusOK, st)
			return
		}
	}
	c.Status(http.StatusNoContent)
}
