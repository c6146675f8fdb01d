package utils

// AverageFloat32 returns the arithmetic mean of the samples, 0 for an empty
// slice.
func AverageFloat32(values []float32) float32 {
	if len(values) == 0 {
		return 0
	}
	var sum float32
	for _, v := range values {
		sum += v
	}
	return sum / float32(len(values))
}
