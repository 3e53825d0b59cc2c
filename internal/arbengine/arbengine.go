// Package arbengine implements ArbitrageEngine, the decision loop that
// merges pending swaps, simulates each against its protocol, fans out
// PathSearch over candidate input amounts, and emits the most
// profitable opportunity net of gas, per spec §4.9.
//
// The tick's parallel-refresh/join shape is grounded on
// chains/ethereum/client.go's processState (bounded goroutine fan-out
// joined by a sync.WaitGroup before the tick proceeds).
package arbengine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/dibbydoda/arbbot-go/internal/applog"
	"github.com/dibbydoda/arbbot-go/internal/arberr"
	"github.com/dibbydoda/arbbot-go/internal/domain"
	"github.com/dibbydoda/arbbot-go/internal/metrics"
	"github.com/dibbydoda/arbbot-go/internal/num"
	"github.com/dibbydoda/arbbot-go/internal/pair"
	"github.com/dibbydoda/arbbot-go/internal/patheval"
	"github.com/dibbydoda/arbbot-go/internal/pathsearch"
	"github.com/dibbydoda/arbbot-go/internal/protocol"
	"github.com/dibbydoda/arbbot-go/internal/registry"
	"github.com/dibbydoda/arbbot-go/internal/routegraph"
)

// FanOutSteps is the fixed number of candidate input amounts tried per
// pending swap (floor(input*k/10) for k in [1,10]) — spec.md's Non-goals
// explicitly exclude optimal trade sizing in favor of this fan-out.
const FanOutSteps = 10

// FullRefreshInterval bounds how long protocol pair catalogs go
// without a full rebuild from configuration/discovery.
const FullRefreshInterval = 3600 * time.Second

// RetryGasFraction is the named tunable behind spec §4.9's retry-cost
// heuristic: success_cost + (retries-1)*(success_cost/RetryGasFraction).
const RetryGasFraction = 8

// DefaultGasEstimate is the configured gas units assumed for one
// attempt_arbitrage call (spec §4.9's "e.g. 500000").
const DefaultGasEstimate = 500_000

// BlockInfo describes a newly observed block.
type BlockInfo struct {
	Number   uint64
	TxHashes []common.Hash
}

// Engine is the ArbitrageEngine: registry, pending-swap set, and
// everything needed to score one tick.
type Engine struct {
	mu      sync.Mutex
	reg     *registry.Registry
	pending map[common.Hash]*domain.PendingSwap

	reserveToken     common.Address
	chainID          uint64
	txAttempts       int
	gasEstimateUnits uint64

	lastFullRefresh time.Time

	logger  applog.Logger
	metrics *metrics.Metrics
}

// New builds an Engine bound to reg.
func New(reg *registry.Registry, reserveToken common.Address, chainID uint64, txAttempts int, logger applog.Logger, m *metrics.Metrics) *Engine {
	return &Engine{
		reg:              reg,
		pending:          make(map[common.Hash]*domain.PendingSwap),
		reserveToken:     reserveToken,
		chainID:          chainID,
		txAttempts:       txAttempts,
		gasEstimateUnits: DefaultGasEstimate,
		logger:           logger,
		metrics:          m,
	}
}

// registryResolver adapts *registry.Registry to pathsearch.Resolver and
// patheval.Resolver, which share an identical method shape.
type registryResolver struct{ reg *registry.Registry }

func (r registryResolver) ResolvePair(factory, pool common.Address) (*pair.Pair, error) {
	return r.reg.ResolvePair(factory, pool)
}

// RefreshReserves refreshes reserves for every known protocol, run
// when a new block is observed (step 1 of the tick). It also
// invalidates every pending swap's simulated flag since new reserves
// make prior scoring stale.
func (e *Engine) RefreshReserves(ctx context.Context, chain protocol.ReservesReader) error {
	view := e.reg.View()
	var wg sync.WaitGroup
	errCh := make(chan error, len(view.Protocols))
	for _, p := range view.Protocols {
		wg.Add(1)
		go func(p *protocol.Protocol) {
			defer wg.Done()
			if err := p.RefreshReserves(ctx, chain); err != nil {
				errCh <- err
			}
		}(p)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		if err != nil {
			return fmt.Errorf("%w: refreshing reserves: %v", arberr.ErrRPC, err)
		}
	}

	e.mu.Lock()
	for _, swap := range e.pending {
		swap.Simulated = false
	}
	e.mu.Unlock()
	return nil
}

// MaybeFullRefresh rebuilds protocols from configuration/discovery if
// more than FullRefreshInterval has elapsed since the last one (step
// 1's "if more than 3600s..." branch). rebuild is supplied by the
// caller since discovery needs the config catalogs and a PairStore.
func (e *Engine) MaybeFullRefresh(now time.Time, rebuild func() error) error {
	e.mu.Lock()
	due := now.Sub(e.lastFullRefresh) > FullRefreshInterval
	e.mu.Unlock()
	if !due {
		return nil
	}
	if err := rebuild(); err != nil {
		return err
	}
	e.mu.Lock()
	e.lastFullRefresh = now
	e.mu.Unlock()
	return nil
}

// ObserveBlock implements step 2: drop every pending swap whose hash
// appeared in the block, or that is no longer known/now has a block
// number (known is reported by stillPending).
func (e *Engine) ObserveBlock(block BlockInfo, stillPending func(common.Hash) bool) {
	mined := make(map[common.Hash]struct{}, len(block.TxHashes))
	for _, h := range block.TxHashes {
		mined[h] = struct{}{}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for hash, swap := range e.pending {
		if _, isMined := mined[hash]; isMined {
			delete(e.pending, hash)
			continue
		}
		if swap.BlockNumber != nil {
			delete(e.pending, hash)
			continue
		}
		if !stillPending(hash) {
			delete(e.pending, hash)
		}
	}
}

// MergeSwaps implements step 3: merge freshly decoded swaps into
// pending, keyed by tx_hash (the fixed key, per DESIGN.md's Open
// Question #1).
func (e *Engine) MergeSwaps(swaps []*domain.PendingSwap) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, swap := range swaps {
		e.pending[swap.TxHash] = swap
	}
}

// Tick implements steps 4-5: revalidate, simulate, fan out PathSearch,
// score, and return the single best opportunity across all pending
// swaps this tick, or nil if nothing is profitable.
func (e *Engine) Tick(gasPriceOf func(domain.GasProfile) *num.U256) (*domain.ArbOpportunity, error) {
	timer := e.tickTimer()
	defer timer()

	e.mu.Lock()
	unsimulated := make([]*domain.PendingSwap, 0, len(e.pending))
	for _, swap := range e.pending {
		if !swap.Simulated {
			unsimulated = append(unsimulated, swap)
		}
	}
	e.mu.Unlock()

	resolver := registryResolver{reg: e.reg}

	var best *domain.ArbOpportunity
	var bestNet *num.U256
	for _, swap := range unsimulated {
		opp, err := e.scoreSwap(swap, resolver, gasPriceOf)
		if err != nil {
			e.logger.Warn("skipping pending swap", "tx_hash", swap.TxHash, "error", err)
		} else if opp != nil {
			net := num.SaturatingSub(opp.Profit, opp.GasCostInToken)
			if best == nil || net.Cmp(bestNet) > 0 {
				best, bestNet = opp, net
			}
		}
		swap.Simulated = true
	}

	if best != nil && e.metrics != nil {
		e.metrics.OpportunitiesFound.Inc()
	}
	return best, nil
}

// resolveSwapPath looks up the live Pair for each consecutive hop of
// swap.Path under its own protocol, turning the decoded token list into
// a domain.Path patheval/pathsearch can evaluate.
func resolveSwapPath(swap *domain.PendingSwap, proto *protocol.Protocol) (domain.Path, error) {
	lookups := make([]domain.PairLookup, 0, len(swap.Path)-1)
	for i := 0; i+1 < len(swap.Path); i++ {
		pr, err := proto.Pair(swap.Path[i], swap.Path[i+1])
		if err != nil {
			return domain.Path{}, err
		}
		lookups = append(lookups, domain.PairLookup{Factory: proto.Factory, Pool: pr.Address})
	}
	return domain.Path{Tokens: swap.Path, Lookups: lookups}, nil
}

// scoreSwap implements step 4 for one pending swap: revalidate (4a),
// simulate (4b), fan out and evaluate (4c), unsimulate (4d).
func (e *Engine) scoreSwap(swap *domain.PendingSwap, resolver registryResolver, gasPriceOf func(domain.GasProfile) *num.U256) (*domain.ArbOpportunity, error) {
	proto, err := e.reg.Protocol(swap.Protocol)
	if err != nil {
		return nil, err
	}

	path, err := resolveSwapPath(swap, proto)
	if err != nil {
		return nil, err
	}

	amounts, err := e.revalidate(swap, path, resolver)
	if err != nil {
		return nil, err
	}

	deltas := buildDeltas(swap.Path, amounts)
	restore, err := proto.Simulate(deltas)
	if err != nil {
		return nil, err
	}
	defer proto.Unsimulate(restore)

	graph := routegraph.Build(e.reg.AllPairs(), e.reserveToken)
	gasCost := e.gasCostInToken(swap.Gas, gasPriceOf)

	var best *domain.ArbOpportunity
	var bestNet *num.U256
	base := swap.PrimaryAmount
	for k := 1; k <= FanOutSteps; k++ {
		input := fanOutAmount(base, k)
		if input.IsZero() {
			continue
		}
		foundPath, output, err := pathsearch.Search(graph, resolver, input)
		if err != nil {
			if errors.Is(err, arberr.ErrNoPath) {
				continue
			}
			return nil, err
		}
		// profit is the gross saturating_sub(output, input) per spec's
		// ArbOpportunity definition; emission and ranking are gated on
		// the strictly-positive net-of-gas value instead (step 5).
		profit := num.SaturatingSub(output, input)
		net, err := num.Sub(profit, gasCost)
		if err != nil || net.IsZero() {
			continue
		}
		if best == nil || net.Cmp(bestNet) > 0 {
			bestNet = net
			best = &domain.ArbOpportunity{
				Path:           foundPath,
				Gas:            swap.Gas,
				Input:          input,
				Output:         output,
				Profit:         profit,
				GasCostInToken: gasCost,
			}
		}
	}
	return best, nil
}

// revalidate implements step 4a and returns the full chained-amount
// array (length len(swap.Path)) so scoreSwap can build the simulated
// deltas from the same walk without recomputing it.
func (e *Engine) revalidate(swap *domain.PendingSwap, path domain.Path, resolver registryResolver) ([]*num.U256, error) {
	now := uint64(time.Now().Unix())
	if swap.Deadline != nil && swap.Deadline.Uint64() < now {
		return nil, fmt.Errorf("%w: tx %s", arberr.ErrDeadlineExpired, swap.TxHash)
	}

	switch swap.Kind {
	case domain.TradeExactIn:
		amounts, err := patheval.AmountsOut(path, swap.PrimaryAmount, resolver)
		if err != nil {
			return nil, err
		}
		if amounts[len(amounts)-1].Cmp(swap.BoundAmount) <= 0 {
			return nil, fmt.Errorf("%w: tx %s", arberr.ErrBoundViolated, swap.TxHash)
		}
		return amounts, nil
	case domain.TradeExactOut:
		amounts, err := patheval.AmountsIn(path, swap.PrimaryAmount, resolver)
		if err != nil {
			return nil, err
		}
		if amounts[0].Cmp(swap.BoundAmount) >= 0 {
			return nil, fmt.Errorf("%w: tx %s", arberr.ErrBoundViolated, swap.TxHash)
		}
		return amounts, nil
	default:
		return nil, fmt.Errorf("%w: unknown trade kind", arberr.ErrAbiTypeMismatch)
	}
}

// gasCostInToken implements spec §4.9's gas-cost-conversion formula.
func (e *Engine) gasCostInToken(gas domain.GasProfile, gasPriceOf func(domain.GasProfile) *num.U256) *num.U256 {
	price := gasPriceOf(gas)
	gasUnits := num.FromUint64(e.gasEstimateUnits)
	successCost, err := num.Mul(gasUnits, price)
	if err != nil {
		return num.Zero()
	}
	retries := num.FromUint64(uint64(e.txAttempts))
	one := num.FromUint64(1)
	retriesMinusOne, err := num.Sub(retries, one)
	if err != nil {
		retriesMinusOne = num.Zero()
	}
	perRetry, err := num.Div(successCost, num.FromUint64(RetryGasFraction))
	if err != nil {
		return successCost
	}
	retryAllowance, err := num.Mul(retriesMinusOne, perRetry)
	if err != nil {
		return successCost
	}
	total, err := num.Add(successCost, retryAllowance)
	if err != nil {
		return successCost
	}
	return total
}

func (e *Engine) tickTimer() func() {
	if e.metrics == nil {
		return func() {}
	}
	start := time.Now()
	return func() { e.metrics.TickDuration.Observe(time.Since(start).Seconds()) }
}

// fanOutAmount computes floor(base*k/10).
func fanOutAmount(base *num.U256, k int) *num.U256 {
	scaled, err := num.Mul(base, num.FromUint64(uint64(k)))
	if err != nil {
		return num.Zero()
	}
	out, err := num.Div(scaled, num.FromUint64(FanOutSteps))
	if err != nil {
		return num.Zero()
	}
	return out
}

// buildDeltas implements step 4b: for each leg (t_in, t_out), credit
// amounts[i] (input) and debit amounts[i+1] (output), per spec §4.9.
func buildDeltas(path []common.Address, amounts []*num.U256) []protocol.PairDelta {
	deltas := make([]protocol.PairDelta, 0, len(path)-1)
	for i := 0; i+1 < len(path); i++ {
		deltas = append(deltas, protocol.PairDelta{
			Token0:     path[i],
			Token1:     path[i+1],
			InputToken: path[i],
			AmountIn:   amounts[i],
			AmountOut:  amounts[i+1],
		})
	}
	return deltas
}
