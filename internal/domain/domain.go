// Package domain holds the value types that cross ownership boundaries:
// PairLookup (a value reference to a Pair resolved through the
// registry), Path, GasProfile, PendingSwap and ArbOpportunity. None of
// these types own I/O or mutable pool state.
//
// PairLookup is promoted, per DESIGN.md's Open Question decisions, to
// include the pool address rather than only {factory, sorted token
// pair}, so a lookup names exactly one pool. A protocol.Protocol still
// holds at most one pair per sorted token pair (a later pair with the
// same tokens replaces the earlier one), so two same-factory pools over
// the same token pair are not both registered.
package domain

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/dibbydoda/arbbot-go/internal/num"
)

// PairLookup names a Pair without owning it: graph edges, decoded
// swap paths and search results all carry PairLookups and resolve them
// against a registry.
type PairLookup struct {
	Factory common.Address
	Pool    common.Address
}

// Path is a sequence of tokens and the pair references connecting them.
// len(Lookups) == len(Tokens)-1; for each i, Lookups[i] names a pair
// containing both Tokens[i] and Tokens[i+1].
type Path struct {
	Tokens  []common.Address
	Lookups []PairLookup
}

// TradeKind distinguishes how a decoded swap's amounts are interpreted.
type TradeKind int

const (
	// TradeExactIn: PrimaryAmount is amount-in, BoundAmount is minimum-out.
	TradeExactIn TradeKind = iota
	// TradeExactOut: PrimaryAmount is amount-out, BoundAmount is maximum-in.
	TradeExactOut
)

func (k TradeKind) String() string {
	switch k {
	case TradeExactIn:
		return "ExactIn"
	case TradeExactOut:
		return "ExactOut"
	default:
		return "Unknown"
	}
}

// RouterFunctionKind classifies a router function by which of its
// arguments are ETH-valued, matching router_mappings.json's values.
type RouterFunctionKind int

const (
	RouterExactEth RouterFunctionKind = iota
	RouterExactOther
	RouterEthForExact
	RouterOtherForExact
)

// GasProfile is a tagged union: a pending transaction is either a
// legacy single-price transaction or an EIP-1559 fee-market one.
type GasProfile struct {
	Legacy        bool
	Price         *num.U256 // set when Legacy
	MaxFee        *num.U256 // set when !Legacy
	MaxPriorityFee *num.U256 // set when !Legacy
}

// PriceForGasCost returns the price used to convert gas units into
// reserve-token units: the legacy price, or the max fee for EIP-1559.
func (g GasProfile) PriceForGasCost() *num.U256 {
	if g.Legacy {
		return g.Price
	}
	return g.MaxFee
}

// PendingSwap is a decoded pending transaction addressed to a known router.
type PendingSwap struct {
	TxHash        common.Hash
	To            common.Address
	From          common.Address
	Gas           GasProfile
	Kind          TradeKind
	Path          []common.Address
	PrimaryAmount *num.U256
	BoundAmount   *num.U256
	Deadline      *num.U256
	Protocol      common.Address
	BlockNumber   *uint64 // nil while still pending
	Simulated     bool
}

// ArbOpportunity is a scored candidate arbitrage cycle, ephemeral
// within one engine tick.
type ArbOpportunity struct {
	Path           Path
	Gas            GasProfile
	Input          *num.U256
	Output         *num.U256
	Profit         *num.U256
	GasCostInToken *num.U256
}
