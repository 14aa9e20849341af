package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lalith-99/festivo/internal/messaging"
	"github.com/lalith-99/festivo/internal/middleware"
	"go.uber.org/zap"
)

// ChannelHandler holds the dependencies needed to handle channel requests.
//
// Why a struct with methods, not standalone functions?
//   - Each handler method needs the service and the logger.
//   - In the router: handler := api.NewChannelHandler(svc, logger)
//     then: t.POST("/channels", handler.Create)
type ChannelHandler struct {
	messaging *messaging.Service
	logger    *zap.Logger
}

func NewChannelHandler(svc *messaging.Service, logger *zap.Logger) *ChannelHandler {
	return &ChannelHandler{messaging: svc, logger: logger}
}

// createChannelRequest is the expected JSON body for POST .../channels.
//
// Why a separate struct and not reuse models.Channel?
//   - The client should never control id, tenant_id, module_id or
//     created_at. A request struct only has the fields it may set.
type createChannelRequest struct {
	Name         string `json:"name" binding:"required"`
	IsPrivate    bool   `json:"is_private"`
	MinClearance *int   `json:"min_clearance"`
}

// Create handles POST /v1/tenants/:tenantID/channels
func (h *ChannelHandler) Create(c *gin.Context) {
	var req createChannelRequest
	if !bindJSON(c, &req) {
		return
	}
	ch, err := h.messaging.CreateChannel(c.Request.Context(), messaging.CreateChannelParams{
		ActorID:      middleware.GetUserID(c),
		TenantID:     middleware.GetTenantID(c),
		Name:         req.Name,
		IsPrivate:    req.IsPrivate,
		MinClearance: req.MinClearance,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	// 201 Created: a POST that creates a resource.
	c.JSON(http.StatusCreated, ch)
}

// List handles GET /v1/tenants/:tenantID/channels
func (h *ChannelHandler) List(c *gin.Context) {
	channels, err := h.messaging.ListChannels(c.Request.Context(), middleware.GetUserID(c), middleware.GetTenantID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, channels)
}

type addChannelMemberRequest struct {
	UserID uuid.UUID `json:"user_id" binding:"required"`
}

// AddMember handles POST /v1/tenants/:tenantID/channels/:channelID/members
func (h *ChannelHandler) AddMember(c *gin.Context) {
	channelID, ok := uuidParam(c, "channelID")
	if !ok {
		return
	}
	var req addChannelMemberRequest
	if !bindJSON(c, &req) {
		return
	}
	err := h.messaging.AddMember(c.Request.Context(), middleware.GetUserID(c), middleware.GetTenantID(c), channelID, req.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// MarkRead handles POST /v1/tenants/:tenantID/channels/:channelID/read
func (h *ChannelHandler) MarkRead(c *gin.Context) {
	channelID, ok := uuidParam(c, "channelID")
	if !ok {
		return
	}
	if err := h.messaging.MarkRead(c.Request.Context(), middleware.GetUserID(c), middleware.GetTenantID(c), channelID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Unread handles GET /v1/tenants/:tenantID/unread
func (h *ChannelHandler) Unread(c *gin.Context) {
	counters, err := h.messaging.Unread(c.Request.Context(), middleware.GetUserID(c), middleware.GetTenantID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, counters)
}
