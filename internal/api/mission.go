package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lalith-99/festivo/internal/middleware"
	"github.com/lalith-99/festivo/internal/volunteers"
	"go.uber.org/zap"
)

// MissionHandler serves missions and their assignments. Every route is
// behind the volunteers module; the service answers 404 while it is off.
type MissionHandler struct {
	volunteers *volunteers.Service
	logger     *zap.Logger
}

func NewMissionHandler(svc *volunteers.Service, logger *zap.Logger) *MissionHandler {
	return &MissionHandler{volunteers: svc, logger: logger}
}

type missionRequest struct {
	Title       string    `json:"title" binding:"required"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	StartsAt    time.Time `json:"starts_at" binding:"required"`
	EndsAt      time.Time `json:"ends_at" binding:"required"`
	Capacity    int       `json:"capacity"`
	Status      string    `json:"status"`
}

func (r missionRequest) params() volunteers.MissionParams {
	return volunteers.MissionParams{
		Title:       r.Title,
		Description: r.Description,
		Location:    r.Location,
		StartsAt:    r.StartsAt,
		EndsAt:      r.EndsAt,
		Capacity:    r.Capacity,
		Status:      r.Status,
	}
}

// Create handles POST /v1/tenants/:tenantID/missions
func (h *MissionHandler) Create(c *gin.Context) {
	var req missionRequest
	if !bindJSON(c, &req) {
		return
	}
	m, err := h.volunteers.CreateMission(c.Request.Context(), middleware.GetUserID(c), middleware.GetTenantID(c), req.params())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

// List handles GET /v1/tenants/:tenantID/missions
func (h *MissionHandler) List(c *gin.Context) {
	missions, err := h.volunteers.ListMissions(c.Request.Context(), middleware.GetUserID(c), middleware.GetTenantID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, missions)
}

// Get handles GET /v1/tenants/:tenantID/missions/:missionID
func (h *MissionHandler) Get(c *gin.Context) {
	missionID, ok := uuidParam(c, "missionID")
	if !ok {
		return
	}
	m, err := h.volunteers.GetMission(c.Request.Context(), middleware.GetUserID(c), middleware.GetTenantID(c), missionID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

// Update handles PUT /v1/tenants/:tenantID/missions/:missionID
//
// PUT replaces every writable field, so the body has the same shape as
// create.
func (h *MissionHandler) Update(c *gin.Context) {
	missionID, ok := uuidParam(c, "missionID")
	if !ok {
		return
	}
	var req missionRequest
	if !bindJSON(c, &req) {
		return
	}
	m, err := h.volunteers.UpdateMission(c.Request.Context(), middleware.GetUserID(c), middleware.GetTenantID(c), missionID, req.params())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

// Delete handles DELETE /v1/tenants/:tenantID/missions/:missionID
func (h *MissionHandler) Delete(c *gin.Context) {
	missionID, ok := uuidParam(c, "missionID")
	if !ok {
		return
	}
	if err := h.volunteers.DeleteMission(c.Request.Context(), middleware.GetUserID(c), middleware.GetTenantID(c), missionID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type assignRequest struct {
	UserID uuid.UUID `json:"user_id" binding:"required"`
}

// Assign handles POST /v1/tenants/:tenantID/missions/:missionID/assignments
func (h *MissionHandler) Assign(c *gin.Context) {
	missionID, ok := uuidParam(c, "missionID")
	if !ok {
		return
	}
	var req assignRequest
	if !bindJSON(c, &req) {
		return
	}
	a, err := h.volunteers.Assign(c.Request.Context(), middleware.GetUserID(c), middleware.GetTenantID(c), missionID, req.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, a)
}

// ListAssignments handles GET /v1/tenants/:tenantID/missions/:missionID/assignments
func (h *MissionHandler) ListAssignments(c *gin.Context) {
	missionID, ok := uuidParam(c, "missionID")
	if !ok {
		return
	}
	out, err := h.volunteers.ListAssignments(c.Request.Context(), middleware.GetUserID(c), middleware.GetTenantID(c), missionID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

type assignmentStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// UpdateAssignment handles PATCH /v1/tenants/:tenantID/assignments/:assignmentID
func (h *MissionHandler) UpdateAssignment(c *gin.Context) {
	assignmentID, ok := uuidParam(c, "assignmentID")
	if !ok {
		return
	}
	var req assignmentStatusRequest
	if !bindJSON(c, &req) {
		return
	}
	a, err := h.volunteers.UpdateAssignmentStatus(c.Request.Context(), middleware.GetUserID(c), middleware.GetTenantID(c), assignmentID, req.Status)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}
