package http

import (
	"context"
	"net/http"
	"time"

	"provision-saga/internal/common/logger"
	"provision-saga/internal/domain/events"

	"github.com/gin-gonic/gin"
)

// EventLoader reads the journal of one transaction.
type EventLoader interface {
	LoadEvents(ctx context.Context, aggregateID string) ([]events.Event, error)
}

type EventView struct {
	ID        string               `json:"id"`
	Type      string               `json:"type"`
	Version   int                  `json:"version"`
	Data      interface{}          `json:"data"`
	Metadata  events.EventMetadata `json:"metadata"`
	Timestamp time.Time            `json:"timestamp"`
}

type EventsHandler struct {
	loader EventLoader
	logger logger.Logger
}

func NewEventsHandler(loader EventLoader, l logger.Logger) *EventsHandler {
	return &EventsHandler{
		loader: loader,
		logger: l,
	}
}

func (h *EventsHandler) Register(router gin.IRouter) {
	router.GET("/api/transactions/:id/events", h.Timeline)
}

// Timeline lists the journaled events of a transaction, oldest first.
func (h *EventsHandler) Timeline(c *gin.Context) {
	txID := c.Param("id")

	list, err := h.loader.LoadEvents(c.Request.Context(), txID)
	if err != nil {
		h.logger.Error("Failed to load events", logger.Err(err), logger.String("transaction_id", txID))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Code: CodeInternal})
		return
	}
	if len(list) == 0 {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "no events for transaction " + txID, Code: CodeNotFound})
		return
	}

	views := make([]EventView, 0, len(list))
	for _, ev := range list {
		views = append(views, EventView{
			ID:        ev.ID(),
			Type:      ev.Type(),
			Version:   ev.Version(),
			Data:      ev.Data(),
			Metadata:  ev.Metadata(),
			Timestamp: ev.Timestamp(),
		})
	}

	c.JSON(http.StatusOK, gin.H{"transaction_id": txID, "events": views})
}
