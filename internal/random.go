package internal

import (
	"crypto/rand"
	"errors"
	"math/big"
)

// MinCodeDigits and MaxCodeDigits bound the digit count accepted by NewCode.
// 10^MaxCodeDigits still fits in an int64.
const (
	MinCodeDigits = 4
	MaxCodeDigits = 18
)

var errInvalidCodeDigits = errors.New("invalid code digits")

// CodeBounds returns the half-open range [lo, hi) NewCode draws from.
// hi is 10^digits - 1, so the all-nines value is never produced.
func CodeBounds(digits int) (lo, hi int64, err error) {
	if digits < MinCodeDigits || digits > MaxCodeDigits {
		return 0, 0, errInvalidCodeDigits
	}
	lo = 1
	for i := 1; i < digits; i++ {
		lo *= 10
	}
	hi = lo*10 - 1
	return lo, hi, nil
}

// NewCode returns a uniformly distributed integer with exactly digits digits,
// drawn from crypto/rand.
func NewCode(digits int) (int, error) {
	lo, hi, err := CodeBounds(digits)
	if err != nil {
		return 0, err
	}

	n, err := rand.Int(rand.Reader, big.NewInt(hi-lo))
	if err != nil {
		return 0, err
	}
	return int(lo + n.Int64()), nil
}
