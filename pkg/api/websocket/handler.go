package websocket

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/tonybaloney/agentic-popup-shop-sub001/internal/application/runs"
	"github.com/tonybaloney/agentic-popup-shop-sub001/pkg/domain"
	"github.com/tonybaloney/agentic-popup-shop-sub001/pkg/ports"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler streams one run's events over a websocket connection.
type Handler struct {
	bus    ports.EventBus
	logger *zap.Logger
}

// NewHandler creates a websocket handler on the given event bus.
func NewHandler(bus ports.EventBus, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{bus: bus, logger: logger}
}

// HandleRunStream upgrades the connection and forwards the run's events until
// the run terminates or the client goes away. A slow client drops events
// rather than stalling the bus.
func (h *Handler) HandleRunStream(c *gin.Context) {
	runID := c.Param("id")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("failed to upgrade connection", zap.Error(err))
		return
	}
	defer func() { _ = conn.Close() }()

	h.logger.Info("websocket connection established",
		zap.String("run_id", runID),
		zap.String("client", c.ClientIP()))

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	events := make(chan domain.Event, 64)
	err = h.bus.Subscribe(ctx, runs.Topic, func(_ context.Context, ev domain.Event) error {
		if ev.RunID != runID {
			return nil
		}
		select {
		case events <- ev:
		default:
			h.logger.Warn("websocket channel full, dropping event",
				zap.String("run_id", runID),
				zap.String("event_id", ev.ID))
		}
		return nil
	})
	if err != nil {
		h.logger.Error("failed to subscribe to run events",
			zap.String("run_id", runID),
			zap.Error(err))
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			data, err := json.Marshal(ev)
			if err != nil {
				h.logger.Error("failed to marshal event", zap.Error(err))
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.logger.Warn("failed to write message",
					zap.String("run_id", runID),
					zap.Error(err))
				return
			}
			if ev.Terminal() {
				return
			}
		}
	}
}
