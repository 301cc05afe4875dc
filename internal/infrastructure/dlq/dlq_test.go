package dlq

import (
	"context"
	"errors"
	"sync"
	"testing"

	"provision-saga/internal/common/logger"
	"provision-saga/internal/domain/events"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_PublishFansOutToHandlers(t *testing.T) {
	q := NewQueue(logger.NewNopLogger())

	var mu sync.Mutex
	var seen []Incident
	q.Subscribe(func(_ context.Context, inc Incident) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, inc)
		return nil
	})
	q.Subscribe(func(context.Context, Incident) error { return errors.New("logged only") })

	ev := events.NewProvisionFailed(events.ProvisionFailedData{TransactionID: "tx-9", Reason: "panel down"}, events.NewMetadata("", "test"))
	require.NoError(t, q.Publish(context.Background(), ev, KindProvisionFailed, "panel down", nil))
	require.NoError(t, q.Close())

	require.Len(t, seen, 1)
	assert.Equal(t, "tx-9", seen[0].TransactionID)
	assert.Equal(t, KindProvisionFailed, seen[0].Kind)
	assert.NotNil(t, seen[0].Details)
	assert.Len(t, q.Incidents(), 1)
}

func TestQueue_HandlersSurviveCancelledPublisher(t *testing.T) {
	q := NewQueue(logger.NewNopLogger())

	var handlerErr error
	q.Subscribe(func(ctx context.Context, _ Incident) error {
		handlerErr = ctx.Err()
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ev := events.NewLedgerWriteFailed(events.LedgerWriteFailedData{TransactionID: "tx"}, events.NewMetadata("", "test"))
	require.NoError(t, q.Publish(ctx, ev, KindLedgerWriteFailed, "db down", nil))
	require.NoError(t, q.Close())

	assert.NoError(t, handlerErr)
}

func TestQueue_ClosedRejectsPublish(t *testing.T) {
	q := NewQueue(logger.NewNopLogger())
	require.NoError(t, q.Close())

	ev := events.NewLedgerWriteFailed(events.LedgerWriteFailedData{TransactionID: "tx"}, events.NewMetadata("", "test"))
	assert.ErrorIs(t, q.Publish(context.Background(), ev, KindLedgerWriteFailed, "x", nil), ErrClosed)
}
