package risk

// positionRatio is the share of total equity held in positions. ok is false
// when total equity is not positive.
func positionRatio(cash, positions float64) (ratio float64, ok bool) {
	total := cash + positions
	if total <= 0 {
		return 0, false
	}
	return positions / total, true
}

// orderRatio is the order value as a share of total equity.
func orderRatio(volume, price, equity float64) (ratio float64, ok bool) {
	value := volume * price
	if value <= 0 || equity <= 0 {
		return 0, false
	}
	return value / equity, true
}

func drawdown(peak, current float64) float64 {
	if peak <= 0 {
		return 0
	}
	return (peak - current) / peak
}

func lossRatio(initCapital, current float64) float64 {
	if initCapital <= 0 {
		return 0
	}
	return (initCapital - current) / initCapital
}

// dailyLossRatio measures a negative daily P&L against the larger of peak
// equity and initial capital. Gains report zero.
func dailyLossRatio(dailyPnL, peak, initCapital float64) float64 {
	if dailyPnL >= 0 {
		return 0
	}
	base := max(peak, initCapital)
	if base <= 0 {
		return 0
	}
	return -dailyPnL / base
}
