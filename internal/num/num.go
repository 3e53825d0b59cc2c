// Package num wraps github.com/holiman/uint256 with checked arithmetic
// that reports the arbitrage engine's own error kinds instead of
// overflow booleans, matching the checked-arithmetic chains the original
// RustArb program uses throughout its pair math.
package num

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"

	"github.com/dibbydoda/arbbot-go/internal/arberr"
)

// U256 is the engine's 256-bit unsigned integer.
type U256 = uint256.Int

// Zero returns a fresh zero-valued U256.
func Zero() *U256 { return new(uint256.Int) }

// FromUint64 builds a U256 from a uint64.
func FromUint64(v uint64) *U256 { return new(uint256.Int).SetUint64(v) }

// FromBig converts a *big.Int, saturating to MaxUint256 on overflow
// rather than panicking (matching the engine's panic-free numeric
// contract).
func FromBig(b *big.Int) *U256 {
	v := new(uint256.Int)
	if overflow := v.SetFromBig(b); overflow {
		return new(uint256.Int).SetAllOne()
	}
	return v
}

// Add returns a+b, or ErrMathOverflow if the sum does not fit in 256 bits.
func Add(a, b *U256) (*U256, error) {
	out := new(uint256.Int)
	_, overflow := out.AddOverflow(a, b)
	if overflow {
		return nil, fmt.Errorf("%w: %s + %s", arberr.ErrMathOverflow, a, b)
	}
	return out, nil
}

// Sub returns a-b, or ErrMathUnderflow if b > a.
func Sub(a, b *U256) (*U256, error) {
	if a.Lt(b) {
		return nil, fmt.Errorf("%w: %s - %s", arberr.ErrMathUnderflow, a, b)
	}
	out := new(uint256.Int).Sub(a, b)
	return out, nil
}

// SaturatingSub returns a-b, or zero if b > a.
func SaturatingSub(a, b *U256) *U256 {
	if a.Lt(b) {
		return Zero()
	}
	return new(uint256.Int).Sub(a, b)
}

// Mul returns a*b, or ErrMathOverflow if the product does not fit in 256 bits.
func Mul(a, b *U256) (*U256, error) {
	out := new(uint256.Int)
	_, overflow := out.MulOverflow(a, b)
	if overflow {
		return nil, fmt.Errorf("%w: %s * %s", arberr.ErrMathOverflow, a, b)
	}
	return out, nil
}

// Div returns a/b, or ErrDivideByZero if b is zero.
func Div(a, b *U256) (*U256, error) {
	if b.IsZero() {
		return nil, fmt.Errorf("%w: dividing %s", arberr.ErrDivideByZero, a)
	}
	out := new(uint256.Int).Div(a, b)
	return out, nil
}
