package backtest

import (
	"fmt"
	"io"
	"time"

	"github.com/rustyeddy/autotrader/broker/sim"
)

// Result is a summary of a backtest run.
type Result struct {
	Symbol string
	Method string

	Cycles int
	Errors int

	Trades int
	Wins   int
	Losses int

	StartBalance float64
	EndBalance   float64
	NetPL        float64
	GrossProfit  float64
	GrossLoss    float64
	MaxDrawdown  float64 // percent of peak balance

	Start time.Time
	End   time.Time

	Closed []sim.ClosedTrade
}

func (r *Result) summarize(closed []sim.ClosedTrade, balance float64) {
	r.Closed = closed
	r.EndBalance = balance
	r.NetPL = balance - r.StartBalance

	equity, peak := r.StartBalance, r.StartBalance
	for _, t := range closed {
		r.Trades++
		switch {
		case t.RealizedPL > 0:
			r.Wins++
			r.GrossProfit += t.RealizedPL
		case t.RealizedPL < 0:
			r.Losses++
			r.GrossLoss -= t.RealizedPL
		}

		equity += t.RealizedPL
		if equity > peak {
			peak = equity
		}
		if peak > 0 {
			if dd := (peak - equity) / peak * 100; dd > r.MaxDrawdown {
				r.MaxDrawdown = dd
			}
		}
	}
}

func (r Result) WinRate() float64 {
	if r.Trades == 0 {
		return 0
	}
	return float64(r.Wins) / float64(r.Trades) * 100
}

// ProfitFactor is gross profit over gross loss, 0 when there were no losses.
func (r Result) ProfitFactor() float64 {
	if r.GrossLoss == 0 {
		return 0
	}
	return r.GrossProfit / r.GrossLoss
}

func (r Result) ReturnPct() float64 {
	if r.StartBalance == 0 {
		return 0
	}
	return r.NetPL / r.StartBalance * 100
}

func Print(w io.Writer, r Result) {
	fmt.Fprintln(w, "==================================================")
	fmt.Fprintln(w, " Backtest Result")
	fmt.Fprintln(w, "==================================================")
	fmt.Fprintf(w, "Symbol:        %s\n", r.Symbol)
	fmt.Fprintf(w, "Strategy:      %s\n", r.Method)
	fmt.Fprintf(w, "Start:         %s\n", r.Start.Format(time.RFC3339))
	fmt.Fprintf(w, "End:           %s\n", r.End.Format(time.RFC3339))
	fmt.Fprintf(w, "Cycles:        %d (%d errors)\n", r.Cycles, r.Errors)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Trade Statistics")
	fmt.Fprintln(w, "--------------------------------------------------")
	fmt.Fprintf(w, "Trades:        %d\n", r.Trades)
	fmt.Fprintf(w, "Wins:          %d\n", r.Wins)
	fmt.Fprintf(w, "Losses:        %d\n", r.Losses)
	fmt.Fprintf(w, "Win Rate:      %.2f%%\n", r.WinRate())

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Account Performance")
	fmt.Fprintln(w, "--------------------------------------------------")
	fmt.Fprintf(w, "Start Balance: %.2f\n", r.StartBalance)
	fmt.Fprintf(w, "End Balance:   %.2f\n", r.EndBalance)
	fmt.Fprintf(w, "Net P/L:       %.2f\n", r.NetPL)
	fmt.Fprintf(w, "Return:        %.2f%%\n", r.ReturnPct())
	if pf := r.ProfitFactor(); pf > 0 {
		fmt.Fprintf(w, "Profit Factor: %.2f\n", pf)
	}
	if r.MaxDrawdown > 0 {
		fmt.Fprintf(w, "Max Drawdown:  %.2f%%\n", r.MaxDrawdown)
	}
	fmt.Fprintln(w)
}
