package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/festivo/internal/messaging"
	"github.com/lalith-99/festivo/internal/middleware"
	"go.uber.org/zap"
)

// MembershipHandler lets the caller join and leave channels.
type MembershipHandler struct {
	messaging *messaging.Service
	logger    *zap.Logger
}

func NewMembershipHandler(svc *messaging.Service, logger *zap.Logger) *MembershipHandler {
	return &MembershipHandler{messaging: svc, logger: logger}
}

// Join handles POST /v1/tenants/:tenantID/channels/:channelID/join
//
// Joining a channel you are already in returns 204 as well.
func (h *MembershipHandler) Join(c *gin.Context) {
	channelID, ok := uuidParam(c, "channelID")
	if !ok {
		return
	}
	if err := h.messaging.Join(c.Request.Context(), middleware.GetUserID(c), middleware.GetTenantID(c), channelID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Leave handles POST /v1/tenants/:tenantID/channels/:channelID/leave
func (h *MembershipHandler) Leave(c *gin.Context) {
	channelID, ok := uuidParam(c, "channelID")
	if !ok {
		return
	}
	if err := h.messaging.Leave(c.Request.Context(), middleware.GetUserID(c), middleware.GetTenantID(c), channelID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
