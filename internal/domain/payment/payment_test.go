package payment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSettlement_Matches(t *testing.T) {
	tests := []struct {
		name       string
		settlement *Settlement
		amount     int64
		want       bool
	}{
		{name: "exact credit", settlement: &Settlement{AmountPaid: 10099, Direction: DirectionCredit}, amount: 10099, want: true},
		{name: "mismatched amount", settlement: &Settlement{AmountPaid: 10000, Direction: DirectionCredit}, amount: 10099, want: false},
		{name: "debit with same amount", settlement: &Settlement{AmountPaid: 10099, Direction: DirectionDebit}, amount: 10099, want: false},
		{name: "absent", settlement: nil, amount: 10099, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.settlement.Matches(tt.amount))
		})
	}
}

func TestCharge_Expired(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	assert.False(t, Charge{}.Expired(now))
	assert.False(t, Charge{ExpiresAt: now.Add(time.Minute)}.Expired(now))
	assert.True(t, Charge{ExpiresAt: now.Add(-time.Second)}.Expired(now))
}

func TestSettlement_KeyIdentifiesMutation(t *testing.T) {
	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	a := Settlement{AmountPaid: 10099, Direction: DirectionCredit, SettledAt: at, CounterpartyRef: "BUYER"}
	same := a
	same.SettledAt = at.In(time.FixedZone("WIB", 7*3600))
	later := a
	later.SettledAt = at.Add(time.Second)

	assert.Equal(t, a.Key(), same.Key())
	assert.NotEqual(t, a.Key(), later.Key())
}
