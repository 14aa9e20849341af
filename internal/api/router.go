package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/festivo/internal/auth"
	"github.com/lalith-99/festivo/internal/invite"
	"github.com/lalith-99/festivo/internal/membership"
	"github.com/lalith-99/festivo/internal/messaging"
	"github.com/lalith-99/festivo/internal/metrics"
	"github.com/lalith-99/festivo/internal/middleware"
	"github.com/lalith-99/festivo/internal/modules"
	"github.com/lalith-99/festivo/internal/realtime"
	"github.com/lalith-99/festivo/internal/tenants"
	"github.com/lalith-99/festivo/internal/volunteers"
	"go.uber.org/zap"
)

const healthTimeout = 2 * time.Second

// HealthChecker is the store's liveness probe.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Deps is everything the HTTP surface is built from. Gateway may be nil,
// in which case the websocket route is not registered.
type Deps struct {
	Health     HealthChecker
	Verifier   *auth.Verifier
	Resolver   *auth.Resolver
	Authority  *membership.Authority
	Modules    *modules.Manager
	Tenants    *tenants.Service
	Invites    *invite.Service
	Messaging  *messaging.Service
	Volunteers *volunteers.Service
	Gateway    *realtime.Gateway
	Metrics    *metrics.Metrics
	Logger     *zap.Logger
}

// NewRouter wires every route.
//
// Route groups:
//   - Public: health and metrics. Load balancers and scrapers carry no token.
//   - /v1: everything else, behind Identity.
//   - /v1/tenants/:tenantID: TenantParam parses the id once for the group.
//     Clearance checks happen in the services, not here, because each
//     operation has its own minimum.
func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(
		gin.Recovery(),
		middleware.RequestID(d.Logger),
		middleware.AccessLog(),
		middleware.Metrics(d.Metrics),
	)

	r.GET("/v1/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
		defer cancel()
		if err := d.Health.Health(ctx); err != nil {
			middleware.Logger(c).Warn("health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if d.Metrics != nil {
		r.GET("/metrics", gin.WrapH(d.Metrics.Handler()))
	}

	users := NewUserHandler(d.Authority, d.Logger)
	tenantH := NewTenantHandler(d.Tenants, d.Authority, d.Logger)
	moduleH := NewModuleHandler(d.Modules, d.Authority, d.Logger)
	members := NewMemberHandler(d.Authority, d.Logger)
	invites := NewInviteHandler(d.Invites, d.Logger)
	channels := NewChannelHandler(d.Messaging, d.Logger)
	channelMembership := NewMembershipHandler(d.Messaging, d.Logger)
	messages := NewMessageHandler(d.Messaging, d.Logger)
	missions := NewMissionHandler(d.Volunteers, d.Logger)
	volunteerH := NewVolunteerHandler(d.Volunteers, d.Logger)

	v1 := r.Group("/v1")
	v1.Use(middleware.Identity(d.Verifier, d.Resolver))

	v1.GET("/me", users.GetMe)
	v1.GET("/me/tenants", users.ListTenants)
	v1.GET("/modules", moduleH.Catalog)
	v1.POST("/tenants", tenantH.Create)
	v1.GET("/invites/:code", invites.Validate)
	v1.POST("/join/:code", invites.Redeem)

	t := v1.Group("/tenants/:tenantID")
	t.Use(middleware.TenantParam())

	t.GET("", tenantH.Get)
	t.GET("/me", tenantH.Me)

	t.GET("/modules", moduleH.List)
	t.POST("/modules/:moduleID/activate", moduleH.Activate)
	t.POST("/modules/:moduleID/deactivate", moduleH.Deactivate)

	t.GET("/members", members.List)
	t.PATCH("/members/:memberID/clearance", members.GrantClearance)
	t.DELETE("/members/:memberID", members.Remove)

	t.POST("/invites", invites.Create)
	t.GET("/invites", invites.List)

	t.POST("/channels", channels.Create)
	t.GET("/channels", channels.List)
	t.POST("/channels/:channelID/members", channels.AddMember)
	t.POST("/channels/:channelID/join", channelMembership.Join)
	t.POST("/channels/:channelID/leave", channelMembership.Leave)
	t.POST("/channels/:channelID/read", channels.MarkRead)
	t.POST("/channels/:channelID/messages", messages.Create)
	t.GET("/channels/:channelID/messages", messages.List)
	t.GET("/unread", channels.Unread)

	t.POST("/missions", missions.Create)
	t.GET("/missions", missions.List)
	t.GET("/missions/:missionID", missions.Get)
	t.PUT("/missions/:missionID", missions.Update)
	t.DELETE("/missions/:missionID", missions.Delete)
	t.POST("/missions/:missionID/assignments", missions.Assign)
	t.GET("/missions/:missionID/assignments", missions.ListAssignments)
	t.PATCH("/assignments/:assignmentID", missions.UpdateAssignment)

	t.POST("/volunteers", volunteerH.Apply)
	t.GET("/volunteers", volunteerH.List)
	t.POST("/volunteers/:userID/review", volunteerH.Review)

	if d.Gateway != nil {
		rt := NewRealtimeHandler(d.Gateway, d.Authority, d.Logger)
		t.GET("/ws", rt.Connect)
	}

	return r
}
