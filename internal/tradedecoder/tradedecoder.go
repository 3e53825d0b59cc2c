// Package tradedecoder implements TradeDecoder: turns a pending
// transaction addressed to a known router into a typed PendingSwap,
// per spec §4.7.
//
// Grounded on original_source/src/txpool.rs's TradeParams/SwapExact/
// SwapForExact/decode_trade_params (the ETH-value-injection trick for
// swapExactETHForTokens-style calls is carried over verbatim in spirit,
// translated from ethers-rs Token/Detokenize to go-ethereum's
// accounts/abi decoding via internal/abicodec).
package tradedecoder

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/dibbydoda/arbbot-go/internal/abicodec"
	"github.com/dibbydoda/arbbot-go/internal/arberr"
	"github.com/dibbydoda/arbbot-go/internal/domain"
	"github.com/dibbydoda/arbbot-go/internal/num"
)

// RouterInfo is everything the decoder needs to know about one router:
// its ABI codec and the factory address its pools belong to.
type RouterInfo struct {
	Codec   *abicodec.Codec
	Factory common.Address
}

// Decoder dispatches pending transactions to the right router's codec
// using the configured selector→TradeKind mapping (router_mappings.json).
type Decoder struct {
	routers       map[common.Address]RouterInfo
	functionKinds map[string]domain.RouterFunctionKind
}

// New builds a Decoder. functionKinds maps a router function name (e.g.
// "swapExactTokensForTokens") to its RouterFunctionKind, as loaded from
// router_mappings.json.
func New(routers map[common.Address]RouterInfo, functionKinds map[string]domain.RouterFunctionKind) *Decoder {
	return &Decoder{routers: routers, functionKinds: functionKinds}
}

// Decode attempts to interpret tx as a pending router swap. Returns
// ErrUnknownSelector if tx.To is not a known router, or the router
// knows no mapping for the resolved function.
func (d *Decoder) Decode(tx *types.Transaction, from common.Address) (*domain.PendingSwap, error) {
	to := tx.To()
	if to == nil {
		return nil, fmt.Errorf("%w: contract creation has no router", arberr.ErrUnknownSelector)
	}
	router, ok := d.routers[*to]
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a known router", arberr.ErrUnknownSelector, to)
	}

	calldata := tx.Data()
	method, err := router.Codec.ResolveSelector(calldata)
	if err != nil {
		return nil, err
	}

	kind, ok := d.functionKinds[method.Name]
	if !ok {
		return nil, fmt.Errorf("%w: %s has no configured trade kind", arberr.ErrUnknownSelector, method.Name)
	}

	tokens, err := router.Codec.DecodeInputs(method, calldata)
	if err != nil {
		return nil, err
	}
	if err := router.Codec.TypeCheck(method, tokens); err != nil {
		return nil, err
	}

	tradeKind, insertIndex, hasInsert := classify(kind)
	if hasInsert {
		value := new(big.Int).Set(tx.Value())
		tokens = insertAt(tokens, insertIndex, value)
	}

	swap, err := buildSwap(tokens, tradeKind)
	if err != nil {
		return nil, err
	}
	swap.TxHash = tx.Hash()
	swap.To = *to
	swap.From = from
	swap.Protocol = router.Factory
	swap.Gas = gasProfileOf(tx)
	swap.Kind = tradeKind
	return swap, nil
}

// classify maps a RouterFunctionKind to its TradeKind and, if the
// function's calldata omits an amount because it travels as tx.Value,
// the tuple position that amount belongs at.
func classify(kind domain.RouterFunctionKind) (tradeKind domain.TradeKind, insertIndex int, hasInsert bool) {
	switch kind {
	case domain.RouterExactEth:
		return domain.TradeExactIn, 0, true
	case domain.RouterExactOther:
		return domain.TradeExactIn, 0, false
	case domain.RouterEthForExact:
		return domain.TradeExactOut, 1, true
	case domain.RouterOtherForExact:
		return domain.TradeExactOut, 0, false
	default:
		return domain.TradeExactIn, 0, false
	}
}

func insertAt(tokens []interface{}, index int, value interface{}) []interface{} {
	out := make([]interface{}, 0, len(tokens)+1)
	out = append(out, tokens[:index]...)
	out = append(out, value)
	out = append(out, tokens[index:]...)
	return out
}

// buildSwap decodes the 5-element (primary, bound, path, to, deadline)
// tuple shared by both SwapExact and SwapForExact router functions.
func buildSwap(tokens []interface{}, kind domain.TradeKind) (*domain.PendingSwap, error) {
	if len(tokens) != 5 {
		return nil, fmt.Errorf("%w: expected 5 swap args, got %d", arberr.ErrAbiTypeMismatch, len(tokens))
	}
	primary, ok := tokens[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%w: primary amount", arberr.ErrAbiTypeMismatch)
	}
	bound, ok := tokens[1].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%w: bound amount", arberr.ErrAbiTypeMismatch)
	}
	path, ok := tokens[2].([]common.Address)
	if !ok {
		return nil, fmt.Errorf("%w: path", arberr.ErrAbiTypeMismatch)
	}
	deadline, ok := tokens[4].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%w: deadline", arberr.ErrAbiTypeMismatch)
	}

	return &domain.PendingSwap{
		Kind:          kind,
		Path:          path,
		PrimaryAmount: num.FromBig(primary),
		BoundAmount:   num.FromBig(bound),
		Deadline:      num.FromBig(deadline),
	}, nil
}

func gasProfileOf(tx *types.Transaction) domain.GasProfile {
	if tx.Type() == types.DynamicFeeTxType {
		return domain.GasProfile{
			Legacy:         false,
			MaxFee:         num.FromBig(tx.GasFeeCap()),
			MaxPriorityFee: num.FromBig(tx.GasTipCap()),
		}
	}
	return domain.GasProfile{
		Legacy: true,
		Price:  num.FromBig(tx.GasPrice()),
	}
}
