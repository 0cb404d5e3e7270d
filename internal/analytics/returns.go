package analytics

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/ducminhle1904/tradecore/pkg/types"
)

// ProfitFactorCap is reported when there are winning trades but no losses
const ProfitFactorCap = 999.99

// Returns computes simple periodic returns of an equity curve. Periods whose
// starting value is not positive are skipped.
func Returns(curve []types.EquityPoint) []float64 {
	if len(curve) < 2 {
		return nil
	}
	out := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].TotalValue
		if prev <= 0 {
			continue
		}
		out = append(out, curve[i].TotalValue/prev-1)
	}
	return out
}

// CumulativeReturn is last/first - 1
func CumulativeReturn(curve []types.EquityPoint) float64 {
	if len(curve) < 2 || curve[0].TotalValue <= 0 {
		return 0
	}
	return curve[len(curve)-1].TotalValue/curve[0].TotalValue - 1
}

// AnnualizedReturn compounds the cumulative return over the number of periods
func AnnualizedReturn(curve []types.EquityPoint, periodsPerYear float64) float64 {
	n := len(curve) - 1
	if n < 1 {
		return 0
	}
	growth := 1 + CumulativeReturn(curve)
	if growth <= 0 {
		return -1
	}
	return math.Pow(growth, periodsPerYear/float64(n)) - 1
}

// Volatility is the annualized sample standard deviation of returns
func Volatility(returns []float64, periodsPerYear float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	return stat.StdDev(returns, nil) * math.Sqrt(periodsPerYear)
}

// Sharpe is the annualized mean excess return over its sample standard
// deviation. rf is the per-period risk-free rate. Zero when undefined.
func Sharpe(returns []float64, rf, periodsPerYear float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	excess := make([]float64, len(returns))
	for i, r := range returns {
		excess[i] = r - rf
	}
	mean, sd := stat.MeanStdDev(excess, nil)
	if sd == 0 || math.IsNaN(sd) {
		return 0
	}
	return mean / sd * math.Sqrt(periodsPerYear)
}

// Sortino divides the annualized mean excess return by the sample standard
// deviation of the negative returns. Zero when fewer than two returns are negative.
func Sortino(returns []float64, rf, periodsPerYear float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	var excess, downside []float64
	for _, r := range returns {
		e := r - rf
		excess = append(excess, e)
		if e < 0 {
			downside = append(downside, e)
		}
	}
	if len(downside) < 2 {
		return 0
	}
	dd := stat.StdDev(downside, nil)
	if dd == 0 || math.IsNaN(dd) {
		return 0
	}
	return stat.Mean(excess, nil) / dd * math.Sqrt(periodsPerYear)
}

// MaxDrawdown returns the largest peak-to-trough decline as a fraction in [0, 1]
func MaxDrawdown(curve []types.EquityPoint) float64 {
	values := make([]float64, len(curve))
	for i, p := range curve {
		values[i] = p.TotalValue
	}
	return maxDrawdown(values)
}

func maxDrawdown(values []float64) float64 {
	peak, worst := 0.0, 0.0
	for _, v := range values {
		if v > peak {
			peak = v
		}
		if peak <= 0 {
			continue
		}
		if dd := (peak - v) / peak; dd > worst {
			worst = dd
		}
	}
	return math.Min(worst, 1)
}

// Calmar is annualized return over max drawdown; zero without a drawdown
func Calmar(annualReturn, drawdown float64) float64 {
	if drawdown == 0 {
		return 0
	}
	return annualReturn / drawdown
}

// ValueAtRisk is the empirical return threshold at the given confidence,
// e.g. -0.02 at 0.95 means 5% of periods lost 2% or more.
func ValueAtRisk(returns []float64, confidence float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	sorted := append([]float64(nil), returns...)
	sort.Float64s(sorted)
	return stat.Quantile(1-confidence, stat.Empirical, sorted, nil)
}

// ConditionalVaR is the mean return at or below the VaR threshold
func ConditionalVaR(returns []float64, confidence float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	threshold := ValueAtRisk(returns, confidence)
	var tail []float64
	for _, r := range returns {
		if r <= threshold {
			tail = append(tail, r)
		}
	}
	if len(tail) == 0 {
		return threshold
	}
	return stat.Mean(tail, nil)
}

// Beta is cov(r, b) / var(b)
func Beta(returns, benchmark []float64) float64 {
	if len(returns) != len(benchmark) || len(returns) < 2 {
		return 0
	}
	v := stat.Variance(benchmark, nil)
	if v == 0 || math.IsNaN(v) {
		return 0
	}
	return stat.Covariance(returns, benchmark, nil) / v
}

// Alpha is the per-period excess of the mean return over what beta
// exposure to the benchmark explains: mean(r) - beta*mean(b).
func Alpha(returns, benchmark []float64) float64 {
	if len(returns) != len(benchmark) || len(returns) < 2 {
		return 0
	}
	return stat.Mean(returns, nil) - Beta(returns, benchmark)*stat.Mean(benchmark, nil)
}

// AnnualizedAlpha is Jensen's alpha over the per-period risk-free rate rf,
// scaled by periodsPerYear.
func AnnualizedAlpha(returns, benchmark []float64, rf, periodsPerYear float64) float64 {
	if len(returns) != len(benchmark) || len(returns) < 2 {
		return 0
	}
	beta := Beta(returns, benchmark)
	excess := stat.Mean(returns, nil) - rf
	market := stat.Mean(benchmark, nil) - rf
	return (excess - beta*market) * periodsPerYear
}

// InformationRatio is the annualized mean active return over tracking error
func InformationRatio(returns, benchmark []float64, periodsPerYear float64) float64 {
	if len(returns) != len(benchmark) || len(returns) < 2 {
		return 0
	}
	active := make([]float64, len(returns))
	for i := range returns {
		active[i] = returns[i] - benchmark[i]
	}
	mean, sd := stat.MeanStdDev(active, nil)
	if sd == 0 || math.IsNaN(sd) {
		return 0
	}
	return mean / sd * math.Sqrt(periodsPerYear)
}

// BenchmarkReturns turns a bar series into buy-and-hold periodic returns
func BenchmarkReturns(bars []types.Bar) []float64 {
	if len(bars) < 2 {
		return nil
	}
	out := make([]float64, 0, len(bars)-1)
	for i := 1; i < len(bars); i++ {
		if bars[i-1].Close <= 0 {
			continue
		}
		out = append(out, bars[i].Close/bars[i-1].Close-1)
	}
	return out
}
