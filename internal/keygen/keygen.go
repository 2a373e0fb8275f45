package keygen

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	Prefix        = "vllm-"
	DefaultLength = 32
	alphabet      = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// Generate returns Prefix followed by length characters drawn uniformly from [A-Za-z0-9].
func Generate(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("key length must be positive, got %d", length)
	}
	max := big.NewInt(int64(len(alphabet)))
	b := make([]byte, length)
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("read random: %w", err)
		}
		b[i] = alphabet[n.Int64()]
	}
	return Prefix + string(b), nil
}
