package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/festivo/internal/messaging"
	"github.com/lalith-99/festivo/internal/middleware"
	"go.uber.org/zap"
)

type MessageHandler struct {
	messaging *messaging.Service
	logger    *zap.Logger
}

func NewMessageHandler(svc *messaging.Service, logger *zap.Logger) *MessageHandler {
	return &MessageHandler{messaging: svc, logger: logger}
}

type createMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

// Create handles POST /v1/tenants/:tenantID/channels/:channelID/messages
func (h *MessageHandler) Create(c *gin.Context) {
	channelID, ok := uuidParam(c, "channelID")
	if !ok {
		return
	}
	var req createMessageRequest
	if !bindJSON(c, &req) {
		return
	}
	msg, err := h.messaging.Send(c.Request.Context(), messaging.SendParams{
		ActorID:   middleware.GetUserID(c),
		TenantID:  middleware.GetTenantID(c),
		ChannelID: channelID,
		Body:      req.Content,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// List handles GET /v1/tenants/:tenantID/channels/:channelID/messages
//
// Cursor pagination, newest first:
//   - No "before": the latest page.
//   - before=<id>: messages older than that id. Pass the last id of the
//     previous page to keep scrolling back.
//
// Why a message id cursor instead of OFFSET?
//   - OFFSET re-scans every skipped row and shifts when new messages
//     arrive. "id < before" is an index range scan and stable.
func (h *MessageHandler) List(c *gin.Context) {
	channelID, ok := uuidParam(c, "channelID")
	if !ok {
		return
	}

	var before int64
	if b := c.Query("before"); b != "" {
		var err error
		before, err = strconv.ParseInt(b, 10, 64)
		if err != nil || before < 0 {
			badRequest(c, "invalid 'before' parameter")
			return
		}
	}

	limit, ok := queryInt(c, "limit", messaging.DefaultPageSize)
	if !ok {
		return
	}
	if limit < 1 {
		badRequest(c, "invalid 'limit' parameter")
		return
	}

	messages, err := h.messaging.ListMessages(c.Request.Context(), middleware.GetUserID(c), middleware.GetTenantID(c), channelID, before, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, messages)
}
