// Package pair implements the mutable per-pool record described by the
// data model's Pair type: token addresses, two reserve scalars, fee and
// factory, with the thin ordered-reserve adapter over pricemath.
// Grounded on original_source/src/pair.rs's Pair/get_amount_out/
// get_amount_in/calculate_weight, adapted from ethers::Address/u128 to
// go-ethereum's common.Address and U256 reserves, and on
// protocols/uniswapv2/calculator/calculator.go's pooled-allocation style
// for the hot-path arithmetic.
package pair

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/dibbydoda/arbbot-go/internal/arberr"
	"github.com/dibbydoda/arbbot-go/internal/num"
	"github.com/dibbydoda/arbbot-go/internal/pricemath"
)

// Pair is one liquidity pool. token0 < token1 lexicographically; fee is
// out of 10000 basis points; reserves are non-negative.
type Pair struct {
	Factory  common.Address
	Address  common.Address
	Token0   common.Address
	Token1   common.Address
	Reserve0 *num.U256
	Reserve1 *num.U256
	FeeBps   uint32
}

// New constructs a Pair, ordering token0/token1 lexicographically.
func New(factory, address, tokenA, tokenB common.Address, reserveA, reserveB *num.U256, feeBps uint32) (*Pair, error) {
	if feeBps >= pricemath.FeeBaseBps {
		return nil, fmt.Errorf("%w: fee %d must be < %d", arberr.ErrMathUnderflow, feeBps, pricemath.FeeBaseBps)
	}
	if tokenA.Cmp(tokenB) < 0 {
		return &Pair{Factory: factory, Address: address, Token0: tokenA, Token1: tokenB, Reserve0: reserveA, Reserve1: reserveB, FeeBps: feeBps}, nil
	}
	return &Pair{Factory: factory, Address: address, Token0: tokenB, Token1: tokenA, Reserve0: reserveB, Reserve1: reserveA, FeeBps: feeBps}, nil
}

// Contains reports whether token is one of the pair's two tokens.
func (p *Pair) Contains(token common.Address) bool {
	return token == p.Token0 || token == p.Token1
}

// OtherToken returns the side of the pair that is not token.
func (p *Pair) OtherToken(token common.Address) (common.Address, error) {
	switch token {
	case p.Token0:
		return p.Token1, nil
	case p.Token1:
		return p.Token0, nil
	default:
		return common.Address{}, arberr.ErrTokenNotInPair
	}
}

func (p *Pair) orderedReserves(inputToken common.Address) (reserveIn, reserveOut *num.U256, err error) {
	switch inputToken {
	case p.Token0:
		return p.Reserve0, p.Reserve1, nil
	case p.Token1:
		return p.Reserve1, p.Reserve0, nil
	default:
		return nil, nil, arberr.ErrTokenNotInPair
	}
}

// AmountOut applies pricemath with the reserves ordered for inputToken.
func (p *Pair) AmountOut(inputToken common.Address, amountIn *num.U256) (*num.U256, error) {
	reserveIn, reserveOut, err := p.orderedReserves(inputToken)
	if err != nil {
		return nil, err
	}
	return pricemath.AmountOut(reserveIn, reserveOut, amountIn, p.FeeBps)
}

// AmountIn applies pricemath with the reserves ordered for inputToken.
func (p *Pair) AmountIn(inputToken common.Address, amountOut *num.U256) (*num.U256, error) {
	reserveIn, reserveOut, err := p.orderedReserves(inputToken)
	if err != nil {
		return nil, err
	}
	return pricemath.AmountIn(reserveIn, reserveOut, amountOut, p.FeeBps)
}

// Weight returns AmountOut, or zero on ErrNoLiquidity. Any other error
// aborts the computation and is returned unchanged — this makes empty
// pools silently unroutable during search rather than exceptional.
func (p *Pair) Weight(inputToken common.Address, amountIn *num.U256) (*num.U256, error) {
	out, err := p.AmountOut(inputToken, amountIn)
	if err != nil {
		if errors.Is(err, arberr.ErrNoLiquidity) {
			return num.Zero(), nil
		}
		return nil, err
	}
	return out, nil
}

// ApplyDelta credits amountIn to the input side and debits amountOut
// from the output side, respecting token ordering. It mutates the pair
// in place; callers needing rollback must snapshot Reserve0/Reserve1
// first (see protocol.Protocol.Simulate).
func (p *Pair) ApplyDelta(inputToken common.Address, amountIn, amountOut *num.U256) error {
	switch inputToken {
	case p.Token0:
		newR0, err := num.Add(p.Reserve0, amountIn)
		if err != nil {
			return err
		}
		newR1, err := num.Sub(p.Reserve1, amountOut)
		if err != nil {
			return err
		}
		p.Reserve0, p.Reserve1 = newR0, newR1
	case p.Token1:
		newR1, err := num.Add(p.Reserve1, amountIn)
		if err != nil {
			return err
		}
		newR0, err := num.Sub(p.Reserve0, amountOut)
		if err != nil {
			return err
		}
		p.Reserve0, p.Reserve1 = newR0, newR1
	default:
		return arberr.ErrTokenNotInPair
	}
	return nil
}

// Snapshot captures the pair's current reserves for later restoration.
type Snapshot struct {
	Reserve0 *num.U256
	Reserve1 *num.U256
}

// Snapshot returns the pair's current reserves.
func (p *Pair) Snapshot() Snapshot {
	return Snapshot{Reserve0: p.Reserve0, Reserve1: p.Reserve1}
}

// Restore writes a previously captured Snapshot back onto the pair.
func (p *Pair) Restore(s Snapshot) {
	p.Reserve0, p.Reserve1 = s.Reserve0, s.Reserve1
}
