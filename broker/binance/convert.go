package binance

import (
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/pkg/errors"

	"github.com/rustyeddy/autotrader/broker"
	"github.com/rustyeddy/autotrader/market"
)

func parseFloat(field, s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "parse %s %q", field, s)
	}
	return v, nil
}

func toCandle(k *futures.Kline) (market.Candle, error) {
	c := market.Candle{OpenTime: time.UnixMilli(k.OpenTime).UTC()}
	var err error
	if c.Open, err = parseFloat("open", k.Open); err != nil {
		return c, err
	}
	if c.High, err = parseFloat("high", k.High); err != nil {
		return c, err
	}
	if c.Low, err = parseFloat("low", k.Low); err != nil {
		return c, err
	}
	if c.Close, err = parseFloat("close", k.Close); err != nil {
		return c, err
	}
	if c.Volume, err = parseFloat("volume", k.Volume); err != nil {
		return c, err
	}
	return c, nil
}

func toPosition(p *futures.PositionRisk) (broker.Position, error) {
	out := broker.Position{Symbol: p.Symbol}
	var err error
	if out.Amount, err = parseFloat("positionAmt", p.PositionAmt); err != nil {
		return out, err
	}
	if out.EntryPrice, err = parseFloat("entryPrice", p.EntryPrice); err != nil {
		return out, err
	}
	if out.MarkPrice, err = parseFloat("markPrice", p.MarkPrice); err != nil {
		return out, err
	}
	if out.UnrealizedPnL, err = parseFloat("unRealizedProfit", p.UnRealizedProfit); err != nil {
		return out, err
	}
	if p.Leverage != "" {
		lev, err := strconv.Atoi(p.Leverage)
		if err != nil {
			return out, errors.Wrapf(err, "parse leverage %q", p.Leverage)
		}
		out.Leverage = lev
	}
	return out, nil
}

func toBalance(b *futures.Balance) (broker.Balance, error) {
	out := broker.Balance{Asset: b.Asset}
	var err error
	if out.Balance, err = parseFloat("balance", b.Balance); err != nil {
		return out, err
	}
	if out.Available, err = parseFloat("availableBalance", b.AvailableBalance); err != nil {
		return out, err
	}
	if out.UnrealizedPnL, err = parseFloat("crossUnPnl", b.CrossUnPnl); err != nil {
		return out, err
	}
	return out, nil
}

func toOrder(o *futures.Order) (broker.Order, error) {
	out := broker.Order{
		ID:     o.OrderID,
		Symbol: o.Symbol,
		Side:   market.OrderSide(o.Side),
		Type:   string(o.Type),
		Status: string(o.Status),
		Time:   time.UnixMilli(o.Time).UTC(),
	}
	var err error
	if out.Quantity, err = parseFloat("origQty", o.OrigQuantity); err != nil {
		return out, err
	}
	if out.Price, err = parseFloat("price", o.Price); err != nil {
		return out, err
	}
	if out.StopPrice, err = parseFloat("stopPrice", o.StopPrice); err != nil {
		return out, err
	}
	return out, nil
}

// lotStep extracts the LOT_SIZE stepSize for symbol from exchange info.
func lotStep(info *futures.ExchangeInfo, symbol string) (float64, bool) {
	for _, s := range info.Symbols {
		if s.Symbol != symbol {
			continue
		}
		for _, f := range s.Filters {
			if f["filterType"] != "LOT_SIZE" {
				continue
			}
			raw, _ := f["stepSize"].(string)
			step, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return 0, false
			}
			return step, true
		}
	}
	return 0, false
}

func orderSide(s market.OrderSide) futures.SideType {
	if s == market.Sell {
		return futures.SideTypeSell
	}
	return futures.SideTypeBuy
}

func formatPrice(p float64) string {
	return strconv.FormatFloat(p, 'f', -1, 64)
}
