package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.InviteRedeemed(RedeemOK)
		m.ModuleChanged("volunteers", "activate")
		m.ProvisioningFailed("volunteers")
		m.MessageSent(2)
		m.ObserveRequest("GET", "/v1/health", "200", time.Millisecond)
	})
}

func TestCountersAreRecorded(t *testing.T) {
	m := New("test")
	m.InviteRedeemed(RedeemOK)
	m.InviteRedeemed(RedeemOK)
	m.InviteRedeemed(RedeemInvalid)
	m.MessageSent(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.inviteRedemptions.WithLabelValues(RedeemOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.inviteRedemptions.WithLabelValues(RedeemInvalid)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.messagesSent))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.mentions))
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := New("festivo")
	m.ModuleChanged("ticketing", "activate")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `festivo_module_activations_total{action="activate",module="ticketing"} 1`)
}
