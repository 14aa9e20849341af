package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/festivo/internal/membership"
	"github.com/lalith-99/festivo/internal/middleware"
	"go.uber.org/zap"
)

// UserHandler serves the caller's own profile.
type UserHandler struct {
	authority *membership.Authority
	logger    *zap.Logger
}

func NewUserHandler(authority *membership.Authority, logger *zap.Logger) *UserHandler {
	return &UserHandler{authority: authority, logger: logger}
}

// GetMe handles GET /v1/me
//
// Why /me and not /users/:id?
//   - The client doesn't need to know its own UUID. It calls /me
//     and gets whoever the token belongs to.
func (h *UserHandler) GetMe(c *gin.Context) {
	user := middleware.GetUser(c)
	if user == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found", "kind": "not_found"})
		return
	}
	c.JSON(http.StatusOK, user)
}

// ListTenants handles GET /v1/me/tenants
func (h *UserHandler) ListTenants(c *gin.Context) {
	tenants, err := h.authority.TenantsForUser(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tenants)
}
