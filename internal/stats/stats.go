// Package stats provides the descriptive statistics shared by the quality
// engine and the anomaly detector. NaN marks a missing value and is skipped
// by every function here.
package stats

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Epsilon guards divisions by a possibly zero mean or standard deviation.
const Epsilon = 1e-10

// DropNaN returns the non-NaN values of xs in their original order.
func DropNaN(xs []float64) []float64 {
	out := make([]float64, 0, len(xs))
	for _, x := range xs {
		if !math.IsNaN(x) {
			out = append(out, x)
		}
	}
	return out
}

// Mean returns the arithmetic mean of the non-NaN values, or NaN when there are none.
func Mean(xs []float64) float64 {
	clean := DropNaN(xs)
	if len(clean) == 0 {
		return math.NaN()
	}
	return stat.Mean(clean, nil)
}

// StdDev returns the sample standard deviation (n-1 denominator) of the
// non-NaN values. Fewer than two values yield 0.
func StdDev(xs []float64) float64 {
	clean := DropNaN(xs)
	if len(clean) < 2 {
		return 0
	}
	return stat.StdDev(clean, nil)
}

// MeanStdDev returns Mean and StdDev in one pass over the cleaned data.
func MeanStdDev(xs []float64) (mean, std float64) {
	clean := DropNaN(xs)
	switch len(clean) {
	case 0:
		return math.NaN(), 0
	case 1:
		return clean[0], 0
	}
	return stat.MeanStdDev(clean, nil)
}

// PopMeanStdDev returns the mean and the population standard deviation
// (n denominator) of the non-NaN values.
func PopMeanStdDev(xs []float64) (mean, std float64) {
	clean := DropNaN(xs)
	if len(clean) == 0 {
		return math.NaN(), 0
	}
	mean, variance := stat.PopMeanVariance(clean, nil)
	return mean, math.Sqrt(variance)
}

// Quantile returns the p-quantile (0 <= p <= 1) of the non-NaN values using
// linear interpolation between closest ranks: h = (n-1)p, the estimator most
// dataframe libraries use by default. Returns NaN for no data.
func Quantile(xs []float64, p float64) float64 {
	sorted := DropNaN(xs)
	if len(sorted) == 0 {
		return math.NaN()
	}
	sort.Float64s(sorted)
	return QuantileSorted(sorted, p)
}

// QuantileSorted is Quantile over data already sorted ascending and free of NaN.
func QuantileSorted(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[n-1]
	}
	h := float64(n-1) * p
	lo := math.Floor(h)
	i := int(lo)
	if i+1 >= n {
		return sorted[n-1]
	}
	return sorted[i] + (h-lo)*(sorted[i+1]-sorted[i])
}

// Quartiles returns Q1 and Q3.
func Quartiles(xs []float64) (q1, q3 float64) {
	sorted := DropNaN(xs)
	sort.Float64s(sorted)
	return QuantileSorted(sorted, 0.25), QuantileSorted(sorted, 0.75)
}

// Standardize returns (x - mean) / std for each value. NaN stays NaN.
// A zero std maps every value to 0.
func Standardize(xs []float64, mean, std float64) []float64 {
	out := make([]float64, len(xs))
	for i, x := range xs {
		switch {
		case math.IsNaN(x):
			out[i] = math.NaN()
		case std == 0:
			out[i] = 0
		default:
			out[i] = (x - mean) / std
		}
	}
	return out
}

// FillNaN replaces NaN with fill.
func FillNaN(xs []float64, fill float64) []float64 {
	out := make([]float64, len(xs))
	for i, x := range xs {
		if math.IsNaN(x) {
			out[i] = fill
		} else {
			out[i] = x
		}
	}
	return out
}

// Round rounds x to the given number of decimal places, half away from zero.
func Round(x float64, places int) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return x
	}
	p := math.Pow(10, float64(places))
	return math.Round(x*p) / p
}
