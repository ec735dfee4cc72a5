package risk

// Config holds the risk limits. Ratios are fractions in [0,1] of total
// equity; OrderLimit is a per-day count; InitCapital is a currency amount.
type Config struct {
	PositionLimit    float64 `json:"position_limit" yaml:"position_limit" validate:"gte=0,lte=1"`
	OrderLimit       int     `json:"order_limit" yaml:"order_limit" validate:"gte=1"`
	LossLimit        float64 `json:"loss_limit" yaml:"loss_limit" validate:"gte=0,lte=1"`
	DrawdownLimit    float64 `json:"drawdown_limit" yaml:"drawdown_limit" validate:"gte=0,lte=1"`
	SingleOrderLimit float64 `json:"single_order_limit" yaml:"single_order_limit" validate:"gte=0,lte=1"`
	DailyLossLimit   float64 `json:"daily_loss_limit" yaml:"daily_loss_limit" validate:"gte=0,lte=1"`
	InitCapital      float64 `json:"init_capital" yaml:"init_capital" validate:"gt=0"`
}

func DefaultConfig() Config {
	return Config{
		PositionLimit:    0.95,
		OrderLimit:       100,
		LossLimit:        0.10,
		DrawdownLimit:    0.15,
		SingleOrderLimit: 0.30,
		DailyLossLimit:   0.05,
		InitCapital:      1_000_000,
	}
}

// WithDefaults returns c with every zero field replaced by its default.
// A zero field is treated as absent.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.PositionLimit == 0 {
		c.PositionLimit = d.PositionLimit
	}
	if c.OrderLimit == 0 {
		c.OrderLimit = d.OrderLimit
	}
	if c.LossLimit == 0 {
		c.LossLimit = d.LossLimit
	}
	if c.DrawdownLimit == 0 {
		c.DrawdownLimit = d.DrawdownLimit
	}
	if c.SingleOrderLimit == 0 {
		c.SingleOrderLimit = d.SingleOrderLimit
	}
	if c.DailyLossLimit == 0 {
		c.DailyLossLimit = d.DailyLossLimit
	}
	if c.InitCapital == 0 {
		c.InitCapital = d.InitCapital
	}
	return c
}
