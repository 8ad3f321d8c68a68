package service

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

const (
	DefaultNumberPrefix = "ORD"
	numberAlphabet      = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	numberSuffixLen     = 6
)

// NewOrderNumber returns prefix + YYYYMMDD + 6 random [A-Z0-9] characters.
func NewOrderNumber(prefix string, now time.Time) (string, error) {
	if prefix == "" {
		prefix = DefaultNumberPrefix
	}
	max := big.NewInt(int64(len(numberAlphabet)))
	suffix := make([]byte, numberSuffixLen)
	for i := range suffix {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("order number: %w", err)
		}
		suffix[i] = numberAlphabet[n.Int64()]
	}
	return prefix + now.UTC().Format("20060102") + string(suffix), nil
}
