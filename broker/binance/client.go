// Package binance implements broker.Gateway on Binance USDⓈ-M futures.
package binance

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/rustyeddy/autotrader/broker"
	"github.com/rustyeddy/autotrader/market"
	"github.com/rustyeddy/autotrader/risk"
)

const (
	// LiveURL is the production futures REST endpoint.
	LiveURL = "https://fapi.binance.com"
	// TestnetURL is the futures testnet REST endpoint.
	TestnetURL = "https://testnet.binancefuture.com"
)

const exchangeInfoKey = "*"

type Config struct {
	APIKey    string
	SecretKey string
	Testnet   bool
	BaseURL   string // overrides Testnet when set

	RequestsPerSecond float64
	Burst             int
	MaxRetries        int
	Backoff           time.Duration
	Timeout           time.Duration

	TickerTTL       time.Duration
	AccountTTL      time.Duration
	ExchangeInfoTTL time.Duration
}

func DefaultConfig() Config {
	return Config{
		RequestsPerSecond: 10,
		Burst:             20,
		MaxRetries:        3,
		Backoff:           100 * time.Millisecond,
		Timeout:           10 * time.Second,
		TickerTTL:         5 * time.Second,
		AccountTTL:        3 * time.Second,
		ExchangeInfoTTL:   time.Hour,
	}
}

// Client is a rate limited, cached broker.Gateway.
type Client struct {
	api     *futures.Client
	limiter *rate.Limiter
	cfg     Config
	log     *zap.Logger

	prices    *ttlCache[float64]
	positions *ttlCache[[]broker.Position]
	balances  *ttlCache[[]broker.Balance]
	orders    *ttlCache[[]broker.Order]
	info      *ttlCache[*futures.ExchangeInfo]
}

var _ broker.Gateway = (*Client)(nil)

func NewClient(cfg Config, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	def := DefaultConfig()
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = def.RequestsPerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = def.Burst
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = def.Backoff
	}

	api := futures.NewClient(cfg.APIKey, cfg.SecretKey)
	switch {
	case cfg.BaseURL != "":
		api.BaseURL = cfg.BaseURL
	case cfg.Testnet:
		api.BaseURL = TestnetURL
	default:
		api.BaseURL = LiveURL
	}
	api.HTTPClient = &http.Client{
		Timeout: cfg.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 100,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	now := time.Now
	return &Client{
		api:       api,
		limiter:   rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		cfg:       cfg,
		log:       log.Named("binance"),
		prices:    newTTLCache[float64](cfg.TickerTTL, now),
		positions: newTTLCache[[]broker.Position](cfg.AccountTTL, now),
		balances:  newTTLCache[[]broker.Balance](cfg.AccountTTL, now),
		orders:    newTTLCache[[]broker.Order](cfg.AccountTTL, now),
		info:      newTTLCache[*futures.ExchangeInfo](cfg.ExchangeInfoTTL, now),
	}
}

// retry runs fn under the rate limiter, retrying transport failures with
// exponential backoff. API rejections are returned immediately.
func retry[T any](ctx context.Context, c *Client, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	for attempt := 0; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return zero, errors.Wrap(err, op)
		}

		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		if common.IsAPIError(err) || ctx.Err() != nil || attempt >= c.cfg.MaxRetries {
			return zero, errors.Wrap(err, op)
		}

		wait := time.Duration(math.Pow(2, float64(attempt))) * c.cfg.Backoff
		c.log.Debug("retrying request", zap.String("op", op), zap.Int("attempt", attempt+1),
			zap.Duration("wait", wait), zap.Error(err))

		select {
		case <-ctx.Done():
			return zero, errors.Wrap(ctx.Err(), op)
		case <-time.After(wait):
		}
	}
}

// once runs fn a single time under the rate limiter. Used for order
// placement where a retry after an ambiguous failure could double fill.
func once[T any](ctx context.Context, c *Client, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if err := c.limiter.Wait(ctx); err != nil {
		return zero, errors.Wrap(err, op)
	}
	v, err := fn(ctx)
	if err != nil {
		return zero, errors.Wrap(err, op)
	}
	return v, nil
}

// GetCandles fetches the latest limit klines, oldest first. Candles are
// never cached.
func (c *Client) GetCandles(ctx context.Context, symbol, interval string, limit int) ([]market.Candle, error) {
	klines, err := retry(ctx, c, "klines "+symbol, func(ctx context.Context) ([]*futures.Kline, error) {
		return c.api.NewKlinesService().Symbol(symbol).Interval(interval).Limit(limit).Do(ctx)
	})
	if err != nil {
		return nil, err
	}

	out := make([]market.Candle, 0, len(klines))
	for _, k := range klines {
		cd, err := toCandle(k)
		if err != nil {
			return nil, errors.Wrapf(err, "kline %d", k.OpenTime)
		}
		out = append(out, cd)
	}
	return out, nil
}

func (c *Client) GetTickerPrice(ctx context.Context, symbol string) (float64, error) {
	if p, ok := c.prices.Get(symbol); ok {
		return p, nil
	}

	prices, err := retry(ctx, c, "ticker "+symbol, func(ctx context.Context) ([]*futures.SymbolPrice, error) {
		return c.api.NewListPricesService().Symbol(symbol).Do(ctx)
	})
	if err != nil {
		return 0, err
	}
	for _, p := range prices {
		if p.Symbol != symbol {
			continue
		}
		v, err := parseFloat("price", p.Price)
		if err != nil {
			return 0, err
		}
		c.prices.Set(symbol, v)
		return v, nil
	}
	return 0, errors.Errorf("ticker %s: symbol not in response", symbol)
}

// StepSize returns the LOT_SIZE step for symbol from cached exchange info.
func (c *Client) StepSize(ctx context.Context, symbol string) (float64, error) {
	info, ok := c.info.Get(exchangeInfoKey)
	if !ok {
		var err error
		info, err = retry(ctx, c, "exchange info", func(ctx context.Context) (*futures.ExchangeInfo, error) {
			return c.api.NewExchangeInfoService().Do(ctx)
		})
		if err != nil {
			return 0, err
		}
		c.info.Set(exchangeInfoKey, info)
	}

	step, ok := lotStep(info, symbol)
	if !ok {
		return 0, errors.Errorf("no LOT_SIZE filter for %s", symbol)
	}
	return step, nil
}

// GetPositions returns the position risk rows for symbol, or for every
// symbol when symbol is empty.
func (c *Client) GetPositions(ctx context.Context, symbol string) ([]broker.Position, error) {
	if ps, ok := c.positions.Get(symbol); ok {
		return ps, nil
	}
	ps, err := c.fetchPositions(ctx, symbol)
	if err != nil {
		return nil, err
	}
	c.positions.Set(symbol, ps)
	return ps, nil
}

func (c *Client) fetchPositions(ctx context.Context, symbol string) ([]broker.Position, error) {
	risks, err := retry(ctx, c, "position risk", func(ctx context.Context) ([]*futures.PositionRisk, error) {
		svc := c.api.NewGetPositionRiskService()
		if symbol != "" {
			svc = svc.Symbol(symbol)
		}
		return svc.Do(ctx)
	})
	if err != nil {
		return nil, err
	}

	out := make([]broker.Position, 0, len(risks))
	for _, r := range risks {
		p, err := toPosition(r)
		if err != nil {
			return nil, errors.Wrapf(err, "position %s", r.Symbol)
		}
		out = append(out, p)
	}
	return out, nil
}

func (c *Client) GetBalances(ctx context.Context) ([]broker.Balance, error) {
	if bs, ok := c.balances.Get(""); ok {
		return bs, nil
	}
	raw, err := retry(ctx, c, "balance", func(ctx context.Context) ([]*futures.Balance, error) {
		return c.api.NewGetBalanceService().Do(ctx)
	})
	if err != nil {
		return nil, err
	}

	out := make([]broker.Balance, 0, len(raw))
	for _, b := range raw {
		bal, err := toBalance(b)
		if err != nil {
			return nil, errors.Wrapf(err, "balance %s", b.Asset)
		}
		out = append(out, bal)
	}
	c.balances.Set("", out)
	return out, nil
}

func (c *Client) GetOpenOrders(ctx context.Context, symbol string) ([]broker.Order, error) {
	if cached, ok := c.orders.Get(symbol); ok {
		return cached, nil
	}
	raw, err := retry(ctx, c, "open orders", func(ctx context.Context) ([]*futures.Order, error) {
		svc := c.api.NewListOpenOrdersService()
		if symbol != "" {
			svc = svc.Symbol(symbol)
		}
		return svc.Do(ctx)
	})
	if err != nil {
		return nil, err
	}

	out := make([]broker.Order, 0, len(raw))
	for _, o := range raw {
		ord, err := toOrder(o)
		if err != nil {
			return nil, errors.Wrapf(err, "order %d", o.OrderID)
		}
		out = append(out, ord)
	}
	c.orders.Set(symbol, out)
	return out, nil
}

// PlaceOrder sets leverage, opens with a MARKET order and then attaches
// optional STOP_MARKET and TAKE_PROFIT_MARKET orders that close the whole
// position. A failed protective order does not undo the fill; it is
// reported in OrderResult.Warnings.
func (c *Client) PlaceOrder(ctx context.Context, req broker.OrderRequest) (broker.OrderResult, error) {
	defer c.invalidate(req.Symbol)

	if req.Quantity <= 0 {
		return broker.OrderResult{}, errors.Wrapf(broker.ErrInvalidQuantity, "quantity %v", req.Quantity)
	}
	step, err := c.StepSize(ctx, req.Symbol)
	if err != nil {
		return broker.OrderResult{}, err
	}
	qty := risk.FormatQuantity(req.Quantity, step)

	if req.Leverage > 0 {
		_, err := once(ctx, c, "change leverage", func(ctx context.Context) (*futures.SymbolLeverage, error) {
			return c.api.NewChangeLeverageService().Symbol(req.Symbol).Leverage(req.Leverage).Do(ctx)
		})
		if err != nil {
			return broker.OrderResult{}, err
		}
	}

	resp, err := once(ctx, c, "market order", func(ctx context.Context) (*futures.CreateOrderResponse, error) {
		return c.api.NewCreateOrderService().
			Symbol(req.Symbol).
			Side(orderSide(req.Side)).
			Type(futures.OrderTypeMarket).
			Quantity(qty).
			Do(ctx)
	})
	if err != nil {
		return broker.OrderResult{}, err
	}

	res := broker.OrderResult{
		OrderID:  strconv.FormatInt(resp.OrderID, 10),
		Symbol:   req.Symbol,
		Side:     req.Side,
		Quantity: req.Quantity,
		Status:   string(resp.Status),
		Time:     time.Now().UTC(),
	}
	if resp.UpdateTime > 0 {
		res.Time = time.UnixMilli(resp.UpdateTime).UTC()
	}
	if avg, err := parseFloat("avgPrice", resp.AvgPrice); err == nil && avg > 0 {
		res.Price = avg
	} else if p, err := c.GetTickerPrice(ctx, req.Symbol); err == nil {
		res.Price = p
	}

	closeSide := market.SideOf(req.Side).CloseSide()
	if req.StopLoss > 0 {
		if err := c.protect(ctx, req.Symbol, closeSide, futures.OrderTypeStopMarket, req.StopLoss); err != nil {
			res.Warnings = append(res.Warnings, err.Error())
		}
	}
	if req.TakeProfit > 0 {
		if err := c.protect(ctx, req.Symbol, closeSide, futures.OrderTypeTakeProfitMarket, req.TakeProfit); err != nil {
			res.Warnings = append(res.Warnings, err.Error())
		}
	}

	c.log.Info("order placed",
		zap.String("symbol", req.Symbol),
		zap.String("side", string(req.Side)),
		zap.String("qty", qty),
		zap.Int("leverage", req.Leverage),
		zap.Float64("price", res.Price),
		zap.String("order_id", res.OrderID))
	return res, nil
}

func (c *Client) protect(ctx context.Context, symbol string, side market.OrderSide, typ futures.OrderType, trigger float64) error {
	_, err := once(ctx, c, string(typ), func(ctx context.Context) (*futures.CreateOrderResponse, error) {
		return c.api.NewCreateOrderService().
			Symbol(symbol).
			Side(orderSide(side)).
			Type(typ).
			StopPrice(formatPrice(trigger)).
			ClosePosition(true).
			Do(ctx)
	})
	if err != nil {
		c.log.Warn("protective order failed", zap.String("symbol", symbol),
			zap.String("type", string(typ)), zap.Float64("trigger", trigger), zap.Error(err))
	}
	return err
}

// ClosePosition flattens the side position with a reduce-only MARKET order
// and cancels every open order left for symbol.
func (c *Client) ClosePosition(ctx context.Context, symbol string, side market.Side) (broker.OrderResult, error) {
	defer c.invalidate(symbol)

	positions, err := c.fetchPositions(ctx, symbol)
	if err != nil {
		return broker.OrderResult{}, err
	}
	live, ok := broker.FindPosition(positions, symbol)
	if s, _ := live.Side(); !ok || s != side {
		return broker.OrderResult{}, errors.Wrapf(broker.ErrNoPosition, "%s %s", symbol, side)
	}

	step, err := c.StepSize(ctx, symbol)
	if err != nil {
		return broker.OrderResult{}, err
	}
	qty := risk.FormatQuantity(live.Quantity(), step)

	resp, err := once(ctx, c, "close order", func(ctx context.Context) (*futures.CreateOrderResponse, error) {
		return c.api.NewCreateOrderService().
			Symbol(symbol).
			Side(orderSide(side.CloseSide())).
			Type(futures.OrderTypeMarket).
			Quantity(qty).
			ReduceOnly(true).
			Do(ctx)
	})
	if err != nil {
		return broker.OrderResult{}, err
	}

	res := broker.OrderResult{
		OrderID:  strconv.FormatInt(resp.OrderID, 10),
		Symbol:   symbol,
		Side:     side.CloseSide(),
		Quantity: live.Quantity(),
		Price:    live.MarkPrice,
		Status:   string(resp.Status),
		Time:     time.Now().UTC(),
	}
	if avg, err := parseFloat("avgPrice", resp.AvgPrice); err == nil && avg > 0 {
		res.Price = avg
	}

	_, err = once(ctx, c, "cancel open orders", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.api.NewCancelAllOpenOrdersService().Symbol(symbol).Do(ctx)
	})
	if err != nil {
		res.Warnings = append(res.Warnings, err.Error())
		c.log.Warn("cancel open orders failed", zap.String("symbol", symbol), zap.Error(err))
	}

	c.log.Info("position closed",
		zap.String("symbol", symbol),
		zap.String("side", string(side)),
		zap.String("qty", qty),
		zap.Float64("price", res.Price),
		zap.String("order_id", res.OrderID))
	return res, nil
}

func (c *Client) invalidate(symbol string) {
	c.positions.Delete(symbol)
	c.positions.Delete("")
	c.orders.Delete(symbol)
	c.orders.Delete("")
	c.balances.Purge()
}
