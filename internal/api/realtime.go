package api

import (
	"github.com/gin-gonic/gin"
	"github.com/lalith-99/festivo/internal/clearance"
	"github.com/lalith-99/festivo/internal/membership"
	"github.com/lalith-99/festivo/internal/middleware"
	"github.com/lalith-99/festivo/internal/realtime"
	"go.uber.org/zap"
)

// RealtimeHandler upgrades members of a tenant to a websocket event feed.
type RealtimeHandler struct {
	gateway   *realtime.Gateway
	authority *membership.Authority
	logger    *zap.Logger
}

func NewRealtimeHandler(gateway *realtime.Gateway, authority *membership.Authority, logger *zap.Logger) *RealtimeHandler {
	return &RealtimeHandler{gateway: gateway, authority: authority, logger: logger}
}

// Connect handles GET /v1/tenants/:tenantID/ws
//
// Browsers cannot set headers on a websocket handshake, so the token
// usually arrives as ?access_token=. The clearance is read once at
// connect time; a member whose level changes reconnects to see it.
func (h *RealtimeHandler) Connect(c *gin.Context) {
	actor, err := h.authority.RequireMember(c.Request.Context(), middleware.GetUserID(c), middleware.GetTenantID(c), clearance.Infrared)
	if err != nil {
		respondError(c, err)
		return
	}
	h.gateway.Serve(c.Writer, c.Request, realtime.Subscriber{
		UserID:   actor.UserID,
		TenantID: actor.TenantID,
		Level:    actor.Level,
	})
}
