package pricing

import (
	"testing"

	"provision-saga/internal/domain/provisioning"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	e, err := NewEngine(DefaultScheme(), opts...)
	require.NoError(t, err)
	return e
}

func fixedRandom(v int) Option {
	return WithRandom(func(n int) int { return v % n })
}

func TestEngine_PriceIsDeterministic(t *testing.T) {
	e := newTestEngine(t)
	cfg := provisioning.ResourceConfig{Name: "a", Owner: "b", MemoryMB: 2048, DiskMB: 0, CPUPercent: 150}

	first, err := e.Price(cfg)
	require.NoError(t, err)
	for i := 0; i < 50; i++ {
		again, err := e.Price(cfg)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
	assert.Equal(t, int64(12000+3000+9000), first)
}

func TestEngine_PriceIsMonotonicPerDimension(t *testing.T) {
	e := newTestEngine(t)
	s := e.Scheme()
	base := provisioning.ResourceConfig{MemoryMB: 1024, DiskMB: 1024, CPUPercent: 100}

	dims := []struct {
		name  string
		sizes []int
		set   func(c *provisioning.ResourceConfig, v int)
	}{
		{"memory", s.Memory.Sizes(), func(c *provisioning.ResourceConfig, v int) { c.MemoryMB = v }},
		{"disk", s.Disk.Sizes(), func(c *provisioning.ResourceConfig, v int) { c.DiskMB = v }},
		{"cpu", s.CPU.Sizes(), func(c *provisioning.ResourceConfig, v int) { c.CPUPercent = v }},
	}

	for _, d := range dims {
		t.Run(d.name, func(t *testing.T) {
			prev := int64(-1)
			for _, size := range d.sizes {
				cfg := base
				d.set(&cfg, size)
				p, err := e.Price(cfg)
				require.NoError(t, err)
				assert.GreaterOrEqual(t, p, prev, "size %d", size)
				prev = p
			}
		})
	}
}

func TestEngine_PriceUnknownTier(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Price(provisioning.ResourceConfig{MemoryMB: 1500, DiskMB: 1024, CPUPercent: 100})
	assert.ErrorIs(t, err, ErrUnknownTier)
}

func TestEngine_DisambiguateProperties(t *testing.T) {
	for r := 0; r < 90; r++ {
		e := newTestEngine(t, fixedRandom(r))
		for _, total := range []int64{0, 1, 99, 100, 7000, 10000, 10099, 123456, 999999} {
			got := e.Disambiguate(total)
			assert.GreaterOrEqual(t, got, e.Scheme().FixedFee)
			suffix := got % 100
			assert.GreaterOrEqual(t, suffix, int64(10))
			assert.LessOrEqual(t, suffix, int64(99))
		}
	}
}

func TestEngine_DisambiguateRoundsDown(t *testing.T) {
	e := newTestEngine(t, fixedRandom(0))
	// 8150 + 2000 fee = 10150, rounded down to 10100, plus suffix 10.
	assert.Equal(t, int64(10110), e.Disambiguate(8150))
}

func TestEngine_DisambiguateBelowFee(t *testing.T) {
	s := DefaultScheme()
	s.FixedFee = 150
	e, err := NewEngine(s, fixedRandom(5))
	require.NoError(t, err)

	// 0 + 150 rounds down to 100, which is below the fee, so the base is lifted to 200.
	got := e.Disambiguate(0)
	assert.Equal(t, int64(215), got)
	assert.GreaterOrEqual(t, got, s.FixedFee)

	assert.Equal(t, int64(215), e.Disambiguate(-500))
}

func TestEngine_DisambiguateUsesFullSuffixRange(t *testing.T) {
	seen := map[int64]bool{}
	e := newTestEngine(t)
	for i := 0; i < 5000; i++ {
		seen[e.Disambiguate(10000)%100] = true
	}
	assert.False(t, seen[0])
	assert.Greater(t, len(seen), 60)
}

func TestEngine_QuoteAndVerify(t *testing.T) {
	e := newTestEngine(t, fixedRandom(89))
	cfg := provisioning.ResourceConfig{Name: "alpha", Owner: "budi", MemoryMB: 1024, DiskMB: 1024, CPUPercent: 100}

	r, price, err := e.Quote(cfg)
	require.NoError(t, err)
	assert.Equal(t, int64(20000), price)
	assert.Equal(t, int64(22099), r.Amount)
	assert.NoError(t, e.Verify(r))

	tampered := r
	tampered.Amount = 2099
	assert.ErrorIs(t, e.Verify(tampered), ErrAmountMismatch)

	tampered.Amount = 22000
	assert.ErrorIs(t, e.Verify(tampered), ErrAmountMismatch)
}

func TestParseScheme(t *testing.T) {
	doc := `
fixed_fee = 500

[memory]
unlimited = 100
tiers = [ { size = 1024, price = 1000 }, { size = 2048, price = 2000 } ]

[disk]
unlimited = 100
tiers = [ { size = 1024, price = 1000 } ]

[cpu]
unlimited = 900
tiers = [ { size = 50, price = 300 }, { size = 100, price = 600 } ]
`
	s, err := ParseScheme(doc)
	require.NoError(t, err)
	assert.Equal(t, int64(500), s.FixedFee)
	assert.Equal(t, []int{1024, 2048}, s.Memory.Sizes())
	assert.Equal(t, int64(900), s.CPU.Unlimited)
}

func TestParseScheme_RejectsNonMonotonicTiers(t *testing.T) {
	doc := `
fixed_fee = 500
[memory]
tiers = [ { size = 1024, price = 2000 }, { size = 2048, price = 1000 } ]
[disk]
tiers = [ { size = 1024, price = 1000 } ]
[cpu]
tiers = [ { size = 100, price = 600 } ]
`
	_, err := ParseScheme(doc)
	assert.ErrorIs(t, err, ErrInvalidScheme)
}

func TestParseScheme_RejectsUnknownKeys(t *testing.T) {
	_, err := ParseScheme("fixed_fee = 1\nadmin_fee = 2\n")
	assert.ErrorIs(t, err, ErrInvalidScheme)
}

func TestLoadScheme_EmptyPathIsDefault(t *testing.T) {
	s, err := LoadScheme("")
	require.NoError(t, err)
	assert.Equal(t, DefaultScheme(), s)
}
