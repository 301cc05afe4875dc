package http

import (
	"context"
	"net/http"
	"strconv"

	"provision-saga/internal/common/logger"
	"provision-saga/internal/infrastructure/incidents"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const defaultIncidentLimit = 50

// IncidentLog is the operator view over persisted incidents.
type IncidentLog interface {
	ListUnresolved(ctx context.Context, limit int) ([]incidents.Incident, error)
	MarkResolved(ctx context.Context, incidentID uuid.UUID) error
}

type IncidentHandler struct {
	log    IncidentLog
	logger logger.Logger
}

func NewIncidentHandler(log IncidentLog, l logger.Logger) *IncidentHandler {
	return &IncidentHandler{
		log:    log,
		logger: l,
	}
}

// Register mounts the incident routes on router.
func (h *IncidentHandler) Register(router gin.IRouter) {
	router.GET("/api/incidents", h.ListUnresolved)
	router.POST("/api/incidents/:id/resolve", h.Resolve)
}

func (h *IncidentHandler) ListUnresolved(c *gin.Context) {
	limit := defaultIncidentLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "limit must be a positive integer", Code: CodeInvalidRequest})
			return
		}
		limit = n
	}

	list, err := h.log.ListUnresolved(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to list incidents", logger.Err(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Code: CodeInternal})
		return
	}
	if list == nil {
		list = []incidents.Incident{}
	}

	c.JSON(http.StatusOK, gin.H{"incidents": list})
}

func (h *IncidentHandler) Resolve(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "incident id must be a UUID", Code: CodeInvalidRequest})
		return
	}

	if err := h.log.MarkResolved(c.Request.Context(), id); err != nil {
		h.logger.Error("Failed to resolve incident", logger.Err(err), logger.String("incident_id", id.String()))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Code: CodeInternal})
		return
	}

	c.Status(http.StatusNoContent)
}
