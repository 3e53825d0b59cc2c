// Package pricemath implements the pure constant-product pricing
// functions shared by every pair: the canonical UniswapV2 invariant with
// an integer fee out of 10000 basis points. No I/O, no mutable state —
// grounded on the same formulas as
// protocols/uniswapv2/calculator/calculator.go, generalized from the
// teacher's big.Int/uint64-id pool shape to U256 reserves and a
// basis-point fee argument, and cross-checked against the original
// RustArb's pair.rs get_amount_out/get_amount_in.
package pricemath

import (
	"fmt"

	"github.com/dibbydoda/arbbot-go/internal/arberr"
	"github.com/dibbydoda/arbbot-go/internal/num"
)

// FeeBaseBps is 100% expressed in basis points.
const FeeBaseBps = 10000

// AmountOut computes the output amount for a constant-product swap:
//
//	(x·(10000−fee)·Rout) / (Rin·10000 + x·(10000−fee))
//
// fee is out of FeeBaseBps. Returns ErrNoLiquidity if either reserve is
// zero, ErrMathUnderflow if fee > FeeBaseBps, ErrMathOverflow on any
// intermediate overflow, and ErrDivideByZero on a zero denominator.
func AmountOut(reserveIn, reserveOut *num.U256, amountIn *num.U256, feeBps uint32) (*num.U256, error) {
	if reserveIn.IsZero() || reserveOut.IsZero() {
		return nil, arberr.ErrNoLiquidity
	}
	if feeBps > FeeBaseBps {
		return nil, fmt.Errorf("%w: fee %d exceeds %d", arberr.ErrMathUnderflow, feeBps, FeeBaseBps)
	}
	feeMultiplier := num.FromUint64(uint64(FeeBaseBps - feeBps))

	amountInWithFee, err := num.Mul(amountIn, feeMultiplier)
	if err != nil {
		return nil, err
	}
	numerator, err := num.Mul(amountInWithFee, reserveOut)
	if err != nil {
		return nil, err
	}
	denomBase, err := num.Mul(reserveIn, num.FromUint64(FeeBaseBps))
	if err != nil {
		return nil, err
	}
	denominator, err := num.Add(denomBase, amountInWithFee)
	if err != nil {
		return nil, err
	}
	return num.Div(numerator, denominator)
}

// AmountIn computes the input amount required to receive amountOut:
//
//	floor((Rin·y·10000) / ((Rout−y)·(10000−fee))) + 1
//
// Returns ErrNoLiquidity if either reserve is zero or amountOut >= reserveOut.
func AmountIn(reserveIn, reserveOut *num.U256, amountOut *num.U256, feeBps uint32) (*num.U256, error) {
	if reserveIn.IsZero() || reserveOut.IsZero() {
		return nil, arberr.ErrNoLiquidity
	}
	if !amountOut.Lt(reserveOut) {
		return nil, fmt.Errorf("%w: amountOut %s >= reserveOut %s", arberr.ErrNoLiquidity, amountOut, reserveOut)
	}
	if feeBps > FeeBaseBps {
		return nil, fmt.Errorf("%w: fee %d exceeds %d", arberr.ErrMathUnderflow, feeBps, FeeBaseBps)
	}
	feeMultiplier := num.FromUint64(uint64(FeeBaseBps - feeBps))

	numer, err := num.Mul(reserveIn, amountOut)
	if err != nil {
		return nil, err
	}
	numer, err = num.Mul(numer, num.FromUint64(FeeBaseBps))
	if err != nil {
		return nil, err
	}
	denomSub := num.SaturatingSub(reserveOut, amountOut)
	denominator, err := num.Mul(denomSub, feeMultiplier)
	if err != nil {
		return nil, err
	}
	quotient, err := num.Div(numer, denominator)
	if err != nil {
		return nil, err
	}
	return num.Add(quotient, num.FromUint64(1))
}
