// Package patheval implements §4.6 path evaluation: resolving a Path's
// PairLookups against a registry and chaining amount_out/amount_in
// through the sequence.
package patheval

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/dibbydoda/arbbot-go/internal/domain"
	"github.com/dibbydoda/arbbot-go/internal/num"
	"github.com/dibbydoda/arbbot-go/internal/pair"
)

// Resolver resolves a PairLookup's factory+pool identity to a live Pair.
type Resolver interface {
	ResolvePair(factory, pool common.Address) (*pair.Pair, error)
}

// AmountsOut chains amount_out across path, producing the list of
// intermediate amounts (length len(path.Tokens)).
func AmountsOut(path domain.Path, input *num.U256, resolver Resolver) ([]*num.U256, error) {
	if len(path.Lookups) != len(path.Tokens)-1 {
		return nil, fmt.Errorf("malformed path: %d lookups for %d tokens", len(path.Lookups), len(path.Tokens))
	}
	amounts := make([]*num.U256, len(path.Tokens))
	amounts[0] = input
	current := input
	for i, lookup := range path.Lookups {
		p, err := resolver.ResolvePair(lookup.Factory, lookup.Pool)
		if err != nil {
			return nil, err
		}
		out, err := p.AmountOut(path.Tokens[i], current)
		if err != nil {
			return nil, err
		}
		amounts[i+1] = out
		current = out
	}
	return amounts, nil
}

// AmountsIn walks path in reverse using amount_in, producing the list of
// required amounts (length len(path.Tokens)), such that feeding
// amounts[0] in yields at least output at the end (AmountIn rounds up).
func AmountsIn(path domain.Path, output *num.U256, resolver Resolver) ([]*num.U256, error) {
	if len(path.Lookups) != len(path.Tokens)-1 {
		return nil, fmt.Errorf("malformed path: %d lookups for %d tokens", len(path.Lookups), len(path.Tokens))
	}
	n := len(path.Tokens)
	amounts := make([]*num.U256, n)
	amounts[n-1] = output
	current := output
	for i := len(path.Lookups) - 1; i >= 0; i-- {
		lookup := path.Lookups[i]
		p, err := resolver.ResolvePair(lookup.Factory, lookup.Pool)
		if err != nil {
			return nil, err
		}
		in, err := p.AmountIn(path.Tokens[i], current)
		if err != nil {
			return nil, err
		}
		amounts[i] = in
		current = in
	}
	return amounts, nil
}
