package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"provision-saga/internal/common/logger"
	commonmetrics "provision-saga/internal/common/metrics"
	"provision-saga/internal/domain/events"
	"provision-saga/internal/infrastructure/dlq"
	"provision-saga/internal/infrastructure/eventbus"
)

type MockIncidentStore struct {
	mock.Mock
}

func (m *MockIncidentStore) Persist(ctx context.Context, incident dlq.Incident) error {
	args := m.Called(ctx, incident)
	return args.Error(0)
}

type MockJournal struct {
	mock.Mock
}

func (m *MockJournal) SaveEvent(ctx context.Context, event events.Event) error {
	return m.Called(ctx, event).Error(0)
}

func metadata() events.EventMetadata {
	return events.NewMetadata("tx-1", "test")
}

func TestService_HandleEventCounts(t *testing.T) {
	m := commonmetrics.NewMockCollector()
	s := NewService(nil, nil, m, logger.NewNopLogger())
	ctx := context.Background()
	now := time.Now().UTC()

	evs := []events.Event{
		events.NewChargeCreated(events.ChargeCreatedData{TransactionID: "tx-1", Amount: 22099}, metadata()),
		events.NewChargeCreated(events.ChargeCreatedData{TransactionID: "tx-1", Amount: 22099, Reused: true}, metadata()),
		events.NewResourceProvisioned(events.ResourceProvisionedData{TransactionID: "tx-1", ProvisionedAt: now}, metadata()),
		events.NewProvisionFailed(events.ProvisionFailedData{TransactionID: "tx-2", Reason: "panel down", FailedAt: now}, metadata()),
		events.NewLedgerWriteFailed(events.LedgerWriteFailedData{TransactionID: "tx-3", Reason: "disk full", FailedAt: now}, metadata()),
	}
	for _, ev := range evs {
		assert.NoError(t, s.HandleEvent(ctx, ev))
	}

	assert.Equal(t, int64(1), m.GetCounter(commonmetrics.ChargesCreated))
	assert.Equal(t, int64(1), m.GetCounter(commonmetrics.ChargesReused))
	assert.Equal(t, int64(1), m.GetCounter(commonmetrics.ResourcesProvisioned))
	assert.Equal(t, int64(1), m.GetCounter(commonmetrics.ProvisionFailures))
	assert.Equal(t, int64(1), m.GetCounter(commonmetrics.LedgerWriteFailures))
}

func TestService_ConsumesFromBus(t *testing.T) {
	m := commonmetrics.NewMockCollector()
	s := NewService(nil, nil, m, logger.NewNopLogger())
	bus := eventbus.NewMemoryBus(logger.NewNopLogger())
	ctx := context.Background()

	assert.NoError(t, bus.SubscribeWithGroupID(ctx, "provisioning", "metrics", s.HandleEvent))
	assert.NoError(t, bus.Publish(ctx, "provisioning",
		events.NewChargeCreated(events.ChargeCreatedData{TransactionID: "tx-1", Reused: true}, metadata())))

	// The bus decodes data through the wire codec, so the typed payload must survive it.
	assert.Equal(t, int64(1), m.GetCounter(commonmetrics.ChargesReused))
	assert.Zero(t, m.GetCounter(commonmetrics.ChargesCreated))
}

func TestService_HandleIncident(t *testing.T) {
	ev := events.NewProvisionFailed(events.ProvisionFailedData{TransactionID: "tx-2", Reason: "panel down"}, metadata())
	incident := dlq.Incident{IncidentID: "dlq_1", TransactionID: "tx-2", Kind: dlq.KindProvisionFailed, Reason: "panel down", OriginalEvent: ev}

	t.Run("persists", func(t *testing.T) {
		store := new(MockIncidentStore)
		m := commonmetrics.NewMockCollector()
		store.On("Persist", mock.Anything, incident).Return(nil)

		assert.NoError(t, NewService(nil, store, m, logger.NewNopLogger()).HandleIncident(context.Background(), incident))
		store.AssertExpectations(t)
		assert.Zero(t, m.GetCounter(commonmetrics.IncidentPersistFails))
	})

	t.Run("persist failure is counted", func(t *testing.T) {
		store := new(MockIncidentStore)
		m := commonmetrics.NewMockCollector()
		store.On("Persist", mock.Anything, incident).Return(errors.New("db down"))

		assert.Error(t, NewService(nil, store, m, logger.NewNopLogger()).HandleIncident(context.Background(), incident))
		assert.Equal(t, int64(1), m.GetCounter(commonmetrics.IncidentPersistFails))
	})
}

func TestService_DLQSubscription(t *testing.T) {
	store := new(MockIncidentStore)
	store.On("Persist", mock.Anything, mock.MatchedBy(func(i dlq.Incident) bool {
		return i.TransactionID == "tx-3" && i.Kind == dlq.KindLedgerWriteFailed
	})).Return(nil)

	queue := dlq.NewQueue(logger.NewNopLogger())
	queue.Subscribe(NewService(nil, store, commonmetrics.NewMockCollector(), logger.NewNopLogger()).HandleIncident)

	ev := events.NewLedgerWriteFailed(events.LedgerWriteFailedData{TransactionID: "tx-3", Reason: "disk full"}, metadata())
	assert.NoError(t, queue.Publish(context.Background(), ev, dlq.KindLedgerWriteFailed, "disk full", nil))
	assert.NoError(t, queue.Close())

	store.AssertExpectations(t)
}

func TestService_JournalsEvents(t *testing.T) {
	journal := new(MockJournal)
	m := commonmetrics.NewMockCollector()
	s := NewService(journal, nil, m, logger.NewNopLogger())

	ok := events.NewResourceProvisioned(events.ResourceProvisionedData{TransactionID: "tx-1"}, metadata())
	failing := events.NewResourceProvisioned(events.ResourceProvisionedData{TransactionID: "tx-2"}, metadata())
	journal.On("SaveEvent", mock.Anything, ok).Return(nil)
	journal.On("SaveEvent", mock.Anything, failing).Return(errors.New("db down"))

	assert.NoError(t, s.HandleEvent(context.Background(), ok))
	assert.NoError(t, s.HandleEvent(context.Background(), failing))

	journal.AssertExpectations(t)
	assert.Equal(t, int64(2), m.GetCounter(commonmetrics.ResourcesProvisioned), "journal failures must not drop counts")
}
