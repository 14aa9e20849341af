package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns its own registry instead of the global default one, so
// tests can build as many as they like without duplicate-registration
// panics.
//
// Every recording method is safe on a nil *Metrics; services built
// without metrics simply record nothing.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	inviteRedemptions    *prometheus.CounterVec
	invitesCreated       prometheus.Counter
	moduleActivations    *prometheus.CounterVec
	provisioningFailures *prometheus.CounterVec
	messagesSent         prometheus.Counter
	mentions             prometheus.Counter
	realtimeClients      prometheus.Gauge
}

func New(prefix string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    prefix + "_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),

		inviteRedemptions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_invite_redemptions_total",
				Help: "Invite code redemptions by result",
			},
			[]string{"result"},
		),
		invitesCreated: factory.NewCounter(
			prometheus.CounterOpts{
				Name: prefix + "_invites_created_total",
				Help: "Invite codes created",
			},
		),
		moduleActivations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_module_activations_total",
				Help: "Module state changes by module and action",
			},
			[]string{"module", "action"},
		),
		provisioningFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_provisioning_failures_total",
				Help: "Module provisioning runs that failed",
			},
			[]string{"module"},
		),
		messagesSent: factory.NewCounter(
			prometheus.CounterOpts{
				Name: prefix + "_messages_sent_total",
				Help: "Chat messages persisted",
			},
		),
		mentions: factory.NewCounter(
			prometheus.CounterOpts{
				Name: prefix + "_mentions_total",
				Help: "Mentions that resolved to a channel member",
			},
		),
		realtimeClients: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: prefix + "_realtime_clients",
				Help: "Open websocket connections",
			},
		),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry is exposed for tests that read counter values back.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) ObserveRequest(method, path, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.httpRequestDuration.WithLabelValues(method, path, status).Observe(elapsed.Seconds())
}

// Redemption results.
const (
	RedeemOK            = "ok"
	RedeemInvalid       = "invalid"
	RedeemAlreadyMember = "already_member"
	RedeemLimit         = "member_limit"
	RedeemError         = "error"
)

func (m *Metrics) InviteRedeemed(result string) {
	if m == nil {
		return
	}
	m.inviteRedemptions.WithLabelValues(result).Inc()
}

func (m *Metrics) InviteCreated() {
	if m == nil {
		return
	}
	m.invitesCreated.Inc()
}

func (m *Metrics) ModuleChanged(moduleID, action string) {
	if m == nil {
		return
	}
	m.moduleActivations.WithLabelValues(moduleID, action).Inc()
}

func (m *Metrics) ProvisioningFailed(moduleID string) {
	if m == nil {
		return
	}
	m.provisioningFailures.WithLabelValues(moduleID).Inc()
}

func (m *Metrics) MessageSent(mentions int) {
	if m == nil {
		return
	}
	m.messagesSent.Inc()
	m.mentions.Add(float64(mentions))
}

func (m *Metrics) ClientConnected() {
	if m == nil {
		return
	}
	m.realtimeClients.Inc()
}

func (m *Metrics) ClientDisconnected() {
	if m == nil {
		return
	}
	m.realtimeClients.Dec()
}
