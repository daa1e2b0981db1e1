package util

import (
	"math/rand"
)

const (
	_  = iota
	KB = 1 << (10 * iota)
	MB
	GB
)

// MinInt min
func MinInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

var randomBaseBytes = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// RandomBytes fills dst with random alphanumeric bytes.
func RandomBytes(r *rand.Rand, dst []byte) {
	for i := 0; i < len(dst); i++ {
		dst[i] = byte(randomBaseBytes[r.Intn(len(randomBaseBytes))])
	}
}
