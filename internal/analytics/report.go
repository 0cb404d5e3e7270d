package analytics

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/ducminhle1904/tradecore/internal/errors"
	"github.com/ducminhle1904/tradecore/pkg/types"
)

// Options configures annualization and tail statistics
type Options struct {
	PeriodsPerYear float64 `json:"periods_per_year"`
	RiskFreeRate   float64 `json:"risk_free_rate"` // annual
	Confidence     float64 `json:"var_confidence"`
	RollingWindow  int     `json:"rolling_window"`
}

// DefaultOptions assumes daily periods, a zero risk-free rate, 95% VaR and a 60-period window
func DefaultOptions() Options {
	return Options{PeriodsPerYear: 252, Confidence: 0.95, RollingWindow: 60}
}

// Validate returns a ConfigError for unusable options
func (o Options) Validate() error {
	switch {
	case o.PeriodsPerYear <= 0 || math.IsNaN(o.PeriodsPerYear):
		return errors.NewConfigError("analytics", "Options.Validate", fmt.Sprintf("periods_per_year must be positive, got: %.2f", o.PeriodsPerYear))
	case o.Confidence <= 0 || o.Confidence >= 1:
		return errors.NewConfigError("analytics", "Options.Validate", fmt.Sprintf("var_confidence must be in (0, 1), got: %.2f", o.Confidence))
	case o.RollingWindow < 2:
		return errors.NewConfigError("analytics", "Options.Validate", fmt.Sprintf("rolling_window must be >= 2, got: %d", o.RollingWindow))
	}
	return nil
}

func (o Options) perPeriodRiskFree() float64 {
	return o.RiskFreeRate / o.PeriodsPerYear
}

// Report is the full performance summary of one run
type Report struct {
	Start            time.Time `json:"start"`
	End              time.Time `json:"end"`
	Periods          int       `json:"periods"`
	InitialValue     float64   `json:"initial_value"`
	FinalValue       float64   `json:"final_value"`
	CumulativeReturn float64   `json:"cumulative_return"`
	AnnualizedReturn float64   `json:"annualized_return"`
	Volatility       float64   `json:"annualized_volatility"`
	Sharpe           float64   `json:"sharpe_ratio"`
	Sortino          float64   `json:"sortino_ratio"`
	MaxDrawdown      float64   `json:"max_drawdown"`
	Calmar           float64   `json:"calmar_ratio"`
	VaR              float64   `json:"value_at_risk"`
	CVaR             float64   `json:"conditional_var"`
	ExposureTime     float64   `json:"exposure_time"`

	HasBenchmark     bool    `json:"has_benchmark"`
	Alpha            float64 `json:"alpha"`
	AnnualizedAlpha  float64 `json:"annualized_alpha"`
	Beta             float64 `json:"beta"`
	InformationRatio float64 `json:"information_ratio"`

	Trades TradeStats `json:"trades"`
}

// Compute scores an equity curve and trade ledger. benchmark, when given,
// must hold one periodic return per curve period.
func Compute(curve []types.EquityPoint, trades []types.TradeRecord, benchmark []float64, opts Options) (Report, error) {
	if err := opts.Validate(); err != nil {
		return Report{}, err
	}
	r := Report{Trades: Trades(trades)}
	if len(curve) == 0 {
		return r, nil
	}

	r.Start, r.End = curve[0].Timestamp, curve[len(curve)-1].Timestamp
	r.InitialValue, r.FinalValue = curve[0].TotalValue, curve[len(curve)-1].TotalValue
	for _, p := range curve {
		if math.IsNaN(p.TotalValue) || math.IsInf(p.TotalValue, 0) {
			return r, errors.NewDataError("analytics", "Compute", "equity curve holds a non-finite value").
				WithContext("timestamp", p.Timestamp)
		}
	}

	returns := Returns(curve)
	rf := opts.perPeriodRiskFree()
	r.Periods = len(returns)
	r.CumulativeReturn = CumulativeReturn(curve)
	r.AnnualizedReturn = AnnualizedReturn(curve, opts.PeriodsPerYear)
	r.Volatility = Volatility(returns, opts.PeriodsPerYear)
	r.Sharpe = Sharpe(returns, rf, opts.PeriodsPerYear)
	r.Sortino = Sortino(returns, rf, opts.PeriodsPerYear)
	r.MaxDrawdown = MaxDrawdown(curve)
	r.Calmar = Calmar(r.AnnualizedReturn, r.MaxDrawdown)
	r.VaR = ValueAtRisk(returns, opts.Confidence)
	r.CVaR = ConditionalVaR(returns, opts.Confidence)
	r.ExposureTime = ExposureTime(curve)

	if len(benchmark) > 0 {
		if len(benchmark) != len(returns) {
			return r, errors.NewDataError("analytics", "Compute",
				fmt.Sprintf("benchmark has %d returns, curve has %d", len(benchmark), len(returns)))
		}
		r.HasBenchmark = true
		r.Beta = Beta(returns, benchmark)
		r.Alpha = Alpha(returns, benchmark)
		r.AnnualizedAlpha = AnnualizedAlpha(returns, benchmark, rf, opts.PeriodsPerYear)
		r.InformationRatio = InformationRatio(returns, benchmark, opts.PeriodsPerYear)
	}
	return r, nil
}

// Rolling holds trailing-window metrics aligned to the curve timestamps
// they end on
type Rolling struct {
	Timestamps []time.Time `json:"timestamps"`
	Sharpe     []float64   `json:"sharpe"`
	Sortino    []float64   `json:"sortino"`
	Volatility []float64   `json:"volatility"`
	Drawdown   []float64   `json:"drawdown"`
}

// ComputeRolling evaluates metrics over every trailing window of
// opts.RollingWindow returns
func ComputeRolling(curve []types.EquityPoint, opts Options) (Rolling, error) {
	if err := opts.Validate(); err != nil {
		return Rolling{}, err
	}
	var out Rolling
	w := opts.RollingWindow
	if len(curve) < w+1 {
		return out, nil
	}
	rf := opts.perPeriodRiskFree()
	returns := make([]float64, len(curve)-1)
	values := make([]float64, len(curve))
	for i, p := range curve {
		values[i] = p.TotalValue
		if i > 0 && curve[i-1].TotalValue > 0 {
			returns[i-1] = p.TotalValue/curve[i-1].TotalValue - 1
		}
	}
	for end := w; end <= len(returns); end++ {
		window := returns[end-w : end]
		out.Timestamps = append(out.Timestamps, curve[end].Timestamp)
		out.Sharpe = append(out.Sharpe, Sharpe(window, rf, opts.PeriodsPerYear))
		out.Sortino = append(out.Sortino, Sortino(window, rf, opts.PeriodsPerYear))
		out.Volatility = append(out.Volatility, stat.StdDev(window, nil)*math.Sqrt(opts.PeriodsPerYear))
		out.Drawdown = append(out.Drawdown, maxDrawdown(values[end-w:end+1]))
	}
	return out, nil
}
