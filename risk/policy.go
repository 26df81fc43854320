package risk

// Policy bounds what a single automated order may look like.
type Policy struct {
	MaxLeverage    int     // exchange hard limit is 125
	MinNotional    float64 // quote currency, e.g. 5 USDT on Binance futures
	MaxOrderAmount float64 // quote currency, 0 disables
}

func DefaultPolicy() Policy {
	return Policy{
		MaxLeverage: 125,
		MinNotional: 5,
	}
}

// OrderIntent is an order the trading loop is about to place.
type OrderIntent struct {
	Symbol     string
	Long       bool
	Amount     float64 // quote currency
	Quantity   float64 // base asset
	Price      float64
	Leverage   int
	StopLoss   float64
	TakeProfit float64
}
