package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPositionRatio(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		cash, pos float64
		want      float64
		ok        bool
	}{
		{"mostly cash", 10_000, 9_600, 0.4898, true},
		{"mostly positions", 500, 9_600, 0.9505, true},
		{"all cash", 1_000, 0, 0, true},
		{"empty account", 0, 0, 0, false},
		{"negative equity", -500, 100, 0, false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := positionRatio(tt.cash, tt.pos)
			assert.Equal(t, tt.ok, ok)
			assert.InDelta(t, tt.want, got, 1e-4)
		})
	}
}

func TestOrderRatio(t *testing.T) {
	t.Parallel()

	got, ok := orderRatio(100, 25, 10_000)
	assert.True(t, ok)
	assert.InDelta(t, 0.25, got, 1e-12)

	_, ok = orderRatio(0, 25, 10_000)
	assert.False(t, ok)
	_, ok = orderRatio(100, -1, 10_000)
	assert.False(t, ok)
	_, ok = orderRatio(100, 25, 0)
	assert.False(t, ok)
}

func TestDrawdownAndLoss(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 0.16, drawdown(1_000_000, 840_000), 1e-12)
	assert.Equal(t, 0.0, drawdown(0, 840_000))
	assert.InDelta(t, -0.05, drawdown(1_000, 1_050), 1e-12)

	assert.InDelta(t, 0.10, lossRatio(1_000_000, 900_000), 1e-12)
	assert.Equal(t, 0.0, lossRatio(0, 900_000))
}

func TestDailyLossRatio(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name              string
		pnl, peak, initial float64
		want              float64
	}{
		{"gain", 500, 1_000, 1_000, 0},
		{"peak larger", -60, 1_200, 1_000, 0.05},
		{"initial larger", -50, 800, 1_000, 0.05},
		{"no base", -50, 0, 0, 0},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.InDelta(t, tt.want, dailyLossRatio(tt.pnl, tt.peak, tt.initial), 1e-12)
		})
	}
}
