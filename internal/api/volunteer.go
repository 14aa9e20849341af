package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/festivo/internal/middleware"
	"github.com/lalith-99/festivo/internal/volunteers"
	"go.uber.org/zap"
)

type VolunteerHandler struct {
	volunteers *volunteers.Service
	logger     *zap.Logger
}

func NewVolunteerHandler(svc *volunteers.Service, logger *zap.Logger) *VolunteerHandler {
	return &VolunteerHandler{volunteers: svc, logger: logger}
}

// Apply handles POST /v1/tenants/:tenantID/volunteers
//
// The caller applies for themselves; there is no body.
func (h *VolunteerHandler) Apply(c *gin.Context) {
	v, err := h.volunteers.Apply(c.Request.Context(), middleware.GetUserID(c), middleware.GetTenantID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, v)
}

// List handles GET /v1/tenants/:tenantID/volunteers?status=pending
func (h *VolunteerHandler) List(c *gin.Context) {
	out, err := h.volunteers.ListVolunteers(c.Request.Context(), middleware.GetUserID(c), middleware.GetTenantID(c), c.Query("status"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// Approve is a pointer so a missing field is a 400, not a silent reject.
type reviewRequest struct {
	Approve *bool `json:"approve" binding:"required"`
}

// Review handles POST /v1/tenants/:tenantID/volunteers/:userID/review
func (h *VolunteerHandler) Review(c *gin.Context) {
	userID, ok := uuidParam(c, "userID")
	if !ok {
		return
	}
	var req reviewRequest
	if !bindJSON(c, &req) {
		return
	}
	v, err := h.volunteers.ReviewVolunteer(c.Request.Context(), middleware.GetUserID(c), middleware.GetTenantID(c), userID, *req.Approve)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}
