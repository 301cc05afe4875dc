package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"provision-saga/internal/common/logger"
	"provision-saga/internal/domain/events"
)

type loaderFunc func(ctx context.Context, aggregateID string) ([]events.Event, error)

func (f loaderFunc) LoadEvents(ctx context.Context, aggregateID string) ([]events.Event, error) {
	return f(ctx, aggregateID)
}

func TestEventsHandler_Timeline(t *testing.T) {
	journal := map[string][]events.Event{
		"tx-1": {
			events.NewChargeCreated(events.ChargeCreatedData{TransactionID: "tx-1", Amount: 22099}, events.NewMetadata("tx-1", "test")),
			events.NewResourceProvisioned(events.ResourceProvisionedData{TransactionID: "tx-1", ServerID: "42"}, events.NewMetadata("tx-1", "test")),
		},
	}
	loader := loaderFunc(func(_ context.Context, id string) ([]events.Event, error) {
		if id == "tx-broken" {
			return nil, errors.New("db down")
		}
		return journal[id], nil
	})

	router := gin.New()
	NewEventsHandler(loader, logger.NewNopLogger()).Register(router)

	w := serve(t, router, http.MethodGet, "/api/transactions/tx-1/events", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Events []EventView `json:"events"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Events, 2)
	assert.Equal(t, events.TypeChargeCreated, body.Events[0].Type)
	assert.Equal(t, events.TypeResourceProvisioned, body.Events[1].Type)

	w = serve(t, router, http.MethodGet, "/api/transactions/tx-none/events", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = serve(t, router, http.MethodGet, "/api/transactions/tx-broken/events", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
