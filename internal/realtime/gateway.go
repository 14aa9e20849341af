package realtime

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lalith-99/festivo/internal/metrics"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxInboundSize = 512
)

// Gateway relays a tenant's events to one websocket client.
//
// The connection is push-only. Clients send nothing but pongs; anything
// else they write is read and discarded so control frames keep flowing.
type Gateway struct {
	bus      Bus
	upgrader websocket.Upgrader
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewGateway builds a Gateway. checkOrigin may be nil to accept only
// same-origin upgrades (gorilla's default).
func NewGateway(bus Bus, checkOrigin func(r *http.Request) bool, m *metrics.Metrics, logger *zap.Logger) *Gateway {
	return &Gateway{
		bus: bus,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		metrics: m,
		logger:  logger,
	}
}

// Serve upgrades the request and blocks until the client goes away.
// The caller has already authorised sub.
func (g *Gateway) Serve(w http.ResponseWriter, r *http.Request, sub Subscriber) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error.
		g.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	events, err := g.bus.Subscribe(ctx, sub.TenantID)
	if err != nil {
		g.logger.Error("subscribe failed", zap.String("tenant_id", sub.TenantID.String()), zap.Error(err))
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "subscribe failed"),
			time.Now().Add(writeWait))
		return
	}

	g.metrics.ClientConnected()
	defer g.metrics.ClientDisconnected()
	g.logger.Debug("realtime client connected",
		zap.String("tenant_id", sub.TenantID.String()),
		zap.String("user_id", sub.UserID.String()),
	)

	go readPump(conn, cancel)
	writePump(ctx, conn, events, sub)
}

func readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadLimit(maxInboundSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writePump(ctx context.Context, conn *websocket.Conn, events <-chan Event, sub Subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if !sub.Allowed(ev) {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
