package stats

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Descriptive statistics shared by the rereferencing and artifact
// detection components, built on gonum for robustness.

// Mean calculates the arithmetic mean of a slice using gonum
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0.0
	}
	return stat.Mean(data, nil)
}

// Variance calculates the sample variance of a slice using gonum
// (Bessel's correction, n-1 denominator)
func Variance(data []float64) float64 {
	if len(data) < 2 {
		return 0.0
	}
	return stat.Variance(data, nil)
}

// StdDev calculates the sample standard deviation
func StdDev(data []float64) float64 {
	if len(data) < 2 {
		return 0.0
	}
	return math.Sqrt(Variance(data))
}

// RMS calculates the root mean square (quadratic mean)
func RMS(data []float64) float64 {
	if len(data) == 0 {
		return 0.0
	}

	sumSquares := 0.0
	for _, val := range data {
		sumSquares += val * val
	}

	return math.Sqrt(sumSquares / float64(len(data)))
}

// ZScore standardizes data to zero mean and unit variance. Constant
// data is only centered, never divided by a near-zero deviation.
func ZScore(data []float64) []float64 {
	if len(data) == 0 {
		return data
	}

	mean := Mean(data)
	std := StdDev(data)

	standardized := make([]float64, len(data))
	if std < 1e-10 {
		for i, val := range data {
			standardized[i] = val - mean
		}
		return standardized
	}

	for i, val := range data {
		standardized[i] = (val - mean) / std
	}

	return standardized
}

// MaxIndex returns the index of the largest finite value, preferring
// the lowest index on ties. NaN entries never win. Returns -1 when no
// finite value exists.
func MaxIndex(data []float64) int {
	best := -1
	for i, val := range data {
		if math.IsNaN(val) {
			continue
		}
		if best == -1 || val > data[best] {
			best = i
		}
	}
	return best
}
