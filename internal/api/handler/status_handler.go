package handler

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/notifyhub/notification-pipeline/internal/resilience/circuitbreaker"
)

// BreakerView is satisfied by *circuitbreaker.Breaker.
type BreakerView interface {
	Snapshot() circuitbreaker.Snapshot
}

// LedgerSizer is satisfied by every ledger.Ledger.
type LedgerSizer interface {
	Size(ctx context.Context) (int, error)
}

// StatusHandler serves a human-readable JSON snapshot of the pipeline.
// Raw Prometheus metrics are available at /metrics via promhttp and are
// separate from this endpoint.
type StatusHandler struct {
	breakers []BreakerView
	ledger   LedgerSizer
	depths   func() map[string]int
	logger   *zap.Logger
}

// NewStatusHandler builds the handler. depths may be nil when the broker
// cannot report queue depths (AMQP).
func NewStatusHandler(breakers []BreakerView, ledger LedgerSizer, depths func() map[string]int, logger *zap.Logger) *StatusHandler {
	return &StatusHandler{breakers: breakers, ledger: ledger, depths: depths, logger: logger}
}

// GetStatus handles GET /api/v1/status
//
// @Summary  Circuit breaker states, ledger size and queue depths
// @Tags     system
// @Produce  json
// @Success  200  {object}  map[string]any
// @Router   /api/v1/status [get]
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	breakers := make([]circuitbreaker.Snapshot, 0, len(h.breakers))
	for _, b := range h.breakers {
		breakers = append(breakers, b.Snapshot())
	}

	body := map[string]any{"circuit_breakers": breakers}

	if h.ledger != nil {
		size, err := h.ledger.Size(r.Context())
		if err != nil {
			h.logger.Warn("ledger size unavailable", zap.Error(err))
			body["delivered_ledger_size"] = nil
		} else {
			body["delivered_ledger_size"] = size
		}
	}

	if h.depths != nil {
		depths := h.depths()
		total := 0
		for _, d := range depths {
			total += d
		}
		body["queue_depth"] = depths
		body["queue_depth_total"] = total
	}

	respondJSON(w, http.StatusOK, body)
}
