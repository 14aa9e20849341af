package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lalith-99/festivo/internal/apperr"
	"github.com/lalith-99/festivo/internal/middleware"
	"go.uber.org/zap"
)

// statusFor maps an error kind to an HTTP status.
func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.Validation:
		return http.StatusBadRequest
	case apperr.NotFound:
		return http.StatusNotFound
	case apperr.AuthorizationDenied:
		return http.StatusForbidden
	case apperr.Conflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes {"error", "kind"} for err.
//
// Why hide Internal messages?
//   - They carry SQL fragments, hostnames and wrapped driver errors. The
//     client gets a fixed string; the full chain goes to the log with the
//     request id so the two can be matched up.
func respondError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	msg := err.Error()
	if kind == apperr.Internal {
		middleware.Logger(c).Error("request failed",
			zap.String("route", c.FullPath()),
			zap.Error(err),
		)
		msg = "internal server error"
	} else {
		var e *apperr.Error
		if errors.As(err, &e) {
			msg = e.Message
		}
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(statusFor(kind), gin.H{"error": msg, "kind": kind.String()})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg, "kind": apperr.Validation.String()})
}

// uuidParam parses a path parameter, answering 400 itself on failure.
func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		badRequest(c, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

// bindJSON decodes the body, answering 400 itself on failure.
func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		badRequest(c, err.Error())
		return false
	}
	return true
}

func queryInt(c *gin.Context, name string, def int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		badRequest(c, "invalid '"+name+"' parameter")
		return 0, false
	}
	return v, true
}
