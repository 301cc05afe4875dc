package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewChargeCreated_UsesTransactionAsAggregate(t *testing.T) {
	meta := NewMetadata("corr-1", "coordinator")
	ev := NewChargeCreated(ChargeCreatedData{TransactionID: "tx-1", Amount: 10099, ExpiresAt: time.Now()}, meta)

	assert.Equal(t, TypeChargeCreated, ev.Type())
	assert.Equal(t, "tx-1", ev.AggregateID())
	assert.Equal(t, AggregateTransaction, ev.AggregateType())
	assert.Equal(t, 1, ev.Version())
	assert.NotEmpty(t, ev.ID())
	assert.Equal(t, "corr-1", ev.Metadata().CorrelationID)

	data, ok := ev.Data().(ChargeCreatedData)
	assert.True(t, ok)
	assert.Equal(t, int64(10099), data.Amount)
}

func TestNewMetadata_GeneratesCorrelationID(t *testing.T) {
	meta := NewMetadata("", "coordinator")

	assert.NotEmpty(t, meta.CorrelationID)
	assert.Equal(t, "coordinator", meta.Source)
	assert.False(t, meta.Timestamp.IsZero())
}

func TestEvents_DistinctIDs(t *testing.T) {
	meta := NewMetadata("c", "s")
	a := NewResourceProvisioned(ResourceProvisionedData{TransactionID: "tx"}, meta)
	b := NewResourceProvisioned(ResourceProvisionedData{TransactionID: "tx"}, meta)

	assert.NotEqual(t, a.ID(), b.ID())
	assert.Equal(t, a.AggregateID(), b.AggregateID())
}
