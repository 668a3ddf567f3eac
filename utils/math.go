// Package utils contains small shared helpers for the bioreactor packages.
package utils

import "math"

// Clamp returns min if value is less than min, max if value is greater
// than max, and value otherwise.
func Clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

// QuantizeSteps rounds stepsPerSec down to the nearest multiple of the
// stepper microstep granularity.
func QuantizeSteps(stepsPerSec float64, granularity int) int {
	if granularity <= 0 {
		granularity = 1
	}
	return granularity * int(math.Floor(stepsPerSec/float64(granularity)))
}
