package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/festivo/internal/membership"
	"github.com/lalith-99/festivo/internal/middleware"
	"go.uber.org/zap"
)

// MemberHandler is the tenant roster: listing, clearance grants and
// removal. Channel membership lives in MembershipHandler.
type MemberHandler struct {
	authority *membership.Authority
	logger    *zap.Logger
}

func NewMemberHandler(authority *membership.Authority, logger *zap.Logger) *MemberHandler {
	return &MemberHandler{authority: authority, logger: logger}
}

// List handles GET /v1/tenants/:tenantID/members
func (h *MemberHandler) List(c *gin.Context) {
	members, err := h.authority.ListMembers(c.Request.Context(), middleware.GetUserID(c), middleware.GetTenantID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, members)
}

// Level is a pointer so a missing field is told apart from 0 (INFRARED).
type grantClearanceRequest struct {
	Level *int `json:"level" binding:"required"`
}

// GrantClearance handles PATCH /v1/tenants/:tenantID/members/:memberID/clearance
func (h *MemberHandler) GrantClearance(c *gin.Context) {
	memberID, ok := uuidParam(c, "memberID")
	if !ok {
		return
	}
	var req grantClearanceRequest
	if !bindJSON(c, &req) {
		return
	}
	m, err := h.authority.GrantClearance(c.Request.Context(), middleware.GetUserID(c), middleware.GetTenantID(c), memberID, *req.Level)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

// Remove handles DELETE /v1/tenants/:tenantID/members/:memberID
func (h *MemberHandler) Remove(c *gin.Context) {
	memberID, ok := uuidParam(c, "memberID")
	if !ok {
		return
	}
	if err := h.authority.RemoveMember(c.Request.Context(), middleware.GetUserID(c), middleware.GetTenantID(c), memberID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
