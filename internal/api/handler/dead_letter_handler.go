package handler

import (
	"context"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	apimw "github.com/notifyhub/notification-pipeline/internal/api/middleware"
	"github.com/notifyhub/notification-pipeline/internal/domain"
)

const (
	defaultDeadLetterLimit = 50
	maxDeadLetterLimit     = 500
)

// DeadLetterLister is satisfied by repository.DeadLetterRepository.
type DeadLetterLister interface {
	List(ctx context.Context, limit int) ([]domain.DeadLetterRecord, error)
}

// DeadLetterHandler lets operators review messages that were given up on.
type DeadLetterHandler struct {
	store  DeadLetterLister
	logger *zap.Logger
}

func NewDeadLetterHandler(store DeadLetterLister, logger *zap.Logger) *DeadLetterHandler {
	return &DeadLetterHandler{store: store, logger: logger}
}

// List handles GET /api/v1/dead-letters
//
// @Summary  Most recent dead-letter records, newest first
// @Tags     dead-letters
// @Produce  json
// @Param    limit  query     int  false  "Records to return (default 50, max 500)"
// @Success  200    {object}  map[string]any
// @Failure  500    {object}  map[string]string
// @Router   /api/v1/dead-letters [get]
func (h *DeadLetterHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r.URL.Query().Get("limit"))

	records, err := h.store.List(r.Context(), limit)
	if err != nil {
		h.logger.Error("list dead letters failed",
			zap.String("correlation_id", apimw.GetCorrelationID(r.Context())),
			zap.Error(err),
		)
		respondError(w, http.StatusInternalServerError, "failed to list dead letters")
		return
	}
	if records == nil {
		records = []domain.DeadLetterRecord{}
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"data":  records,
		"count": len(records),
		"limit": limit,
	})
}

func parseLimit(raw string) int {
	l, err := strconv.Atoi(raw)
	switch {
	case err != nil || l <= 0:
		return defaultDeadLetterLimit
	case l > maxDeadLetterLimit:
		return maxDeadLetterLimit
	}
	return l
}
