package eventbus

import (
	"context"
	"errors"
	"testing"
	"time"

	"provision-saga/internal/common/logger"
	"provision-saga/internal/domain/events"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodec_RestoresTypedPayload(t *testing.T) {
	expires := time.Date(2026, 5, 1, 12, 30, 0, 0, time.UTC)
	ev := events.NewChargeCreated(events.ChargeCreatedData{
		TransactionID: "tx-1",
		Owner:         "alice",
		Amount:        10099,
		ExpiresAt:     expires,
	}, events.NewMetadata("corr", "test"))

	raw, err := marshalEvent(ev)
	require.NoError(t, err)

	decoded, err := unmarshalEvent(raw)
	require.NoError(t, err)

	assert.Equal(t, ev.ID(), decoded.ID())
	assert.Equal(t, "tx-1", decoded.AggregateID())
	data, ok := decoded.Data().(events.ChargeCreatedData)
	require.True(t, ok)
	assert.Equal(t, int64(10099), data.Amount)
	assert.True(t, expires.Equal(data.ExpiresAt))
}

func TestCodec_UnknownTypeFallsBackToMap(t *testing.T) {
	raw := []byte(`{"id":"1","type":"Mystery","aggregate_id":"tx","data":{"k":"v"}}`)

	decoded, err := unmarshalEvent(raw)
	require.NoError(t, err)

	data, ok := decoded.Data().(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "v", data["k"])
}

func TestCodec_RejectsGarbage(t *testing.T) {
	_, err := unmarshalEvent([]byte("not json"))
	assert.Error(t, err)
}

func TestMemoryBus_DeliversToSubscribers(t *testing.T) {
	bus := NewMemoryBus(logger.NewNopLogger())
	ctx := context.Background()

	var got []string
	require.NoError(t, bus.SubscribeWithGroupID(ctx, "topic", "g", func(_ context.Context, e events.Event) error {
		got = append(got, e.Type())
		return nil
	}))
	require.NoError(t, bus.SubscribeWithGroupID(ctx, "topic", "g2", func(context.Context, events.Event) error {
		return errors.New("handler errors are logged, not returned")
	}))

	meta := events.NewMetadata("", "test")
	require.NoError(t, bus.Publish(ctx, "topic", events.NewResourceProvisioned(events.ResourceProvisionedData{TransactionID: "tx"}, meta)))
	require.NoError(t, bus.Publish(ctx, "other", events.NewProvisionFailed(events.ProvisionFailedData{TransactionID: "tx"}, meta)))

	assert.Equal(t, []string{events.TypeResourceProvisioned}, got)
	assert.Len(t, bus.Published(), 2)

	require.NoError(t, bus.Close())
	assert.ErrorIs(t, bus.Publish(ctx, "topic", events.NewResourceProvisioned(events.ResourceProvisionedData{}, meta)), ErrBusClosed)
}
