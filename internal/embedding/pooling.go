package embedding

import "github.com/hyperjump/ruiji/internal/vector"

// meanPool averages the hidden states of attended tokens and L2-normalises the result.
// No attended tokens, or a degenerate average, yields all zeros.
func meanPool(hidden []float32, mask []int64, dims int) []float32 {
	sum := make([]float64, dims)
	count := 0
	for t, m := range mask {
		if m == 0 {
			continue
		}
		for i, v := range hidden[t*dims : (t+1)*dims] {
			sum[i] += float64(v)
		}
		count++
	}
	mean := make([]float32, dims)
	if count == 0 {
		return mean
	}
	for i, v := range sum {
		mean[i] = float32(v / float64(count))
	}
	return vector.Normalize(mean)
}
