package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/lalith-99/festivo/internal/auth"
	"github.com/lalith-99/festivo/internal/metrics"
	"github.com/lalith-99/festivo/internal/testfixtures"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

const secret = "mw-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

func TestIdentity(t *testing.T) {
	store := testfixtures.Store(t)
	verifier := auth.NewVerifier(secret, "", "")
	resolver := auth.NewResolver(store, nil, zap.NewNop())

	r := gin.New()
	r.GET("/me", Identity(verifier, resolver), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"id": GetUserID(c), "handle": GetUser(c).Handle})
	})

	tok, err := auth.GenerateToken(auth.Claims{Name: "Ada", RegisteredClaims: jwt.RegisteredClaims{Subject: "idp|ada"}}, secret, time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		query  string
		status int
	}{
		{"no header", "", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + tok, "", http.StatusUnauthorized},
		{"garbage token", "Bearer nope", "", http.StatusUnauthorized},
		{"bearer", "Bearer " + tok, "", http.StatusOK},
		{"query token", "", "?access_token=" + tok, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusOK {
				assert.Contains(t, w.Body.String(), `"handle":"ada"`)
			} else {
				assert.Contains(t, w.Body.String(), `"kind":"unauthenticated"`)
			}
		})
	}
}

func TestTenantParam(t *testing.T) {
	r := gin.New()
	r.GET("/t/:tenantID", TenantParam(), func(c *gin.Context) {
		c.String(http.StatusOK, GetTenantID(c).String())
	})

	id := uuid.New()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/t/"+id.String(), nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, id.String(), w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/t/not-a-uuid", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRequestIDAndAccessLog(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	r := gin.New()
	r.Use(RequestID(zap.New(core)), AccessLog())
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
	generated := w.Header().Get(RequestIDHeader)
	_, err := uuid.Parse(generated)
	assert.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))

	entries := logs.FilterMessage("request").All()
	require.Len(t, entries, 2)
	fields := entries[1].ContextMap()
	assert.Equal(t, "abc-123", fields["request_id"])
	assert.Equal(t, int64(http.StatusNoContent), fields["status"])
}

func TestMetricsUsesRouteTemplate(t *testing.T) {
	m := metrics.New("festivo_test")
	r := gin.New()
	r.Use(Metrics(m))
	r.GET("/v1/tenants/:tenantID", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 3; i++ {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/tenants/"+uuid.NewString(), nil))
	}
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	n, err := testutil.GatherAndCount(m.Registry(), "festivo_test_http_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n, "one series per route template plus unmatched")
}
