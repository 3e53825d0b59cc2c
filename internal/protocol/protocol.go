// Package protocol implements the data model's Protocol: a set of pairs
// belonging to one factory, plus the router-ABI handle and fee. Owns
// pair reserves; supports batched reserve refresh, bracketed
// simulate/unsimulate, and new-pair discovery against the chain and the
// persisted pair catalog.
//
// Grounded on original_source/src/v2protocol.rs's Protocol
// (get_reserves/get_pair_addresses_from_db/load_db_pairs), with the
// Multicall-contract batching replaced by go-ethereum JSON-RPC batch
// calls (see internal/chainclient) since the pack carries no multicall
// contract dependency, and on the critical-section discipline described
// by patcher/patcher.go's copy-then-apply contract.
package protocol

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/dibbydoda/arbbot-go/internal/arberr"
	"github.com/dibbydoda/arbbot-go/internal/num"
	"github.com/dibbydoda/arbbot-go/internal/pair"
)

// ReservesReader batches getReserves() calls for a set of pool addresses.
type ReservesReader interface {
	BatchGetReserves(ctx context.Context, pools []common.Address) (map[common.Address][2]*num.U256, error)
}

// PairDiscoverer reads a factory's allPairsLength and pool token0/token1.
type PairDiscoverer interface {
	AllPairsLength(ctx context.Context, factory common.Address) (uint64, error)
	PairAddressRange(ctx context.Context, factory common.Address, start, end uint64) ([]common.Address, error)
	PoolTokens(ctx context.Context, pool common.Address) (token0, token1 common.Address, err error)
}

// PairStore remembers discovered pairs per factory and the current blacklist.
type PairStore interface {
	KnownPairCount(ctx context.Context, factory common.Address) (uint64, error)
	RecordPair(ctx context.Context, factory, pool, token0, token1 common.Address) error
	IsBlacklisted(ctx context.Context, token common.Address) (bool, error)
	SetExcluded(ctx context.Context, factory, pool common.Address, excluded bool) error
	RefreshBlacklist(ctx context.Context, factory common.Address) error
	PairsForFactory(ctx context.Context, factory common.Address) ([]LoadedPair, error)
}

// LoadedPair is one non-excluded, persisted pair as read back from the
// pair store, carrying enough identity to reconstruct a pair.Pair.
type LoadedPair struct {
	Pool           common.Address
	Token0, Token1 common.Address
}

// Protocol owns every pair discovered under one factory.
type Protocol struct {
	Factory  common.Address
	Router   common.Address
	FeeBps   uint32
	Name     string
	FactoryABIPath string
	RouterABIPath  string

	mu    sync.Mutex // brackets simulate/unsimulate as a single-threaded critical section
	pairs map[[2]common.Address]*pair.Pair // keyed by (token0, token1), ordered as Pair.New orders them
}

// New constructs an empty Protocol ready to have pairs added.
func New(factory, router common.Address, feeBps uint32, name string) *Protocol {
	return &Protocol{
		Factory: factory,
		Router:  router,
		FeeBps:  feeBps,
		Name:    name,
		pairs:   make(map[[2]common.Address]*pair.Pair),
	}
}

// AddPair registers a pair under this protocol, keyed by its ordered token pair.
func (p *Protocol) AddPair(pr *pair.Pair) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pairs[[2]common.Address{pr.Token0, pr.Token1}] = pr
}

// Pair looks up a pair by its ordered token pair.
func (p *Protocol) Pair(token0, token1 common.Address) (*pair.Pair, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if token1.Cmp(token0) < 0 {
		token0, token1 = token1, token0
	}
	pr, ok := p.pairs[[2]common.Address{token0, token1}]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s on %s", arberr.ErrPairMissing, token0, token1, p.Factory)
	}
	return pr, nil
}

// Pairs returns a snapshot slice of every pair currently owned, ordered
// by (token0, token1) so graph construction over this protocol is
// stable across calls rather than following Go's map iteration order.
func (p *Protocol) Pairs() []*pair.Pair {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*pair.Pair, 0, len(p.pairs))
	for _, pr := range p.pairs {
		out = append(out, pr)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Token0 != out[j].Token0 {
			return out[i].Token0.Cmp(out[j].Token0) < 0
		}
		return out[i].Token1.Cmp(out[j].Token1) < 0
	})
	return out
}

// RefreshReserves issues one batched read of getReserves() for every
// owned pair and updates reserve0/reserve1. A batch failure is fatal for
// this protocol this tick and is returned wrapped in ErrRPC.
func (p *Protocol) RefreshReserves(ctx context.Context, chain ReservesReader) error {
	p.mu.Lock()
	pools := make([]common.Address, 0, len(p.pairs))
	for _, pr := range p.pairs {
		pools = append(pools, pr.Address)
	}
	p.mu.Unlock()

	if len(pools) == 0 {
		return nil
	}

	reserves, err := chain.BatchGetReserves(ctx, pools)
	if err != nil {
		return fmt.Errorf("%w: batched getReserves for %s: %v", arberr.ErrRPC, p.Factory, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, pr := range p.pairs {
		r, ok := reserves[pr.Address]
		if !ok {
			return fmt.Errorf("%w: missing reserves for pool %s", arberr.ErrRPC, pr.Address)
		}
		pr.Reserve0, pr.Reserve1 = r[0], r[1]
	}
	return nil
}

// PairDelta is one leg of a simulated swap: amountIn credited to
// inputToken's side, amountOut debited from the other side.
type PairDelta struct {
	Token0, Token1 common.Address
	InputToken     common.Address
	AmountIn       *num.U256
	AmountOut      *num.U256
}

// RestoreToken snapshots every touched pair so Unsimulate can undo a
// Simulate call. It is opaque to callers outside this package.
type RestoreToken struct {
	snapshots map[*pair.Pair]pair.Snapshot
}

// Simulate mutates the listed pairs' reserves in place and returns a
// restore token sufficient to undo the change with Unsimulate. Must be
// called and undone within the same engine tick; protocol-wide mutation
// is serialized by p.mu for the duration of the bracket (callers should
// treat Simulate..Unsimulate as one atomic section and not interleave
// other mutations of this protocol).
func (p *Protocol) Simulate(deltas []PairDelta) (RestoreToken, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	token := RestoreToken{snapshots: make(map[*pair.Pair]pair.Snapshot, len(deltas))}
	for _, d := range deltas {
		t0, t1 := d.Token0, d.Token1
		if t1.Cmp(t0) < 0 {
			t0, t1 = t1, t0
		}
		pr, ok := p.pairs[[2]common.Address{t0, t1}]
		if !ok {
			return RestoreToken{}, fmt.Errorf("%w: %s/%s on %s", arberr.ErrPairMissing, t0, t1, p.Factory)
		}
		if _, seen := token.snapshots[pr]; !seen {
			token.snapshots[pr] = pr.Snapshot()
		}
		if err := pr.ApplyDelta(d.InputToken, d.AmountIn, d.AmountOut); err != nil {
			return RestoreToken{}, err
		}
	}
	return token, nil
}

// Unsimulate applies the inverse of a prior Simulate call.
func (p *Protocol) Unsimulate(token RestoreToken) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for pr, snap := range token.snapshots {
		pr.Restore(snap)
	}
}

// DiscoverNewPairs compares on-chain allPairsLength with the persisted
// count, reads the new range by index, fetches token0/token1 for each
// new pool, and records them. Blacklisted tokens (from pairStore) cause
// the row to be marked excluded.
func (p *Protocol) DiscoverNewPairs(ctx context.Context, chain PairDiscoverer, store PairStore) error {
	onChainLen, err := chain.AllPairsLength(ctx, p.Factory)
	if err != nil {
		return fmt.Errorf("%w: allPairsLength for %s: %v", arberr.ErrRPC, p.Factory, err)
	}
	knownLen, err := store.KnownPairCount(ctx, p.Factory)
	if err != nil {
		return fmt.Errorf("%w: known pair count for %s: %v", arberr.ErrRPC, p.Factory, err)
	}
	if onChainLen <= knownLen {
		return nil
	}

	pools, err := chain.PairAddressRange(ctx, p.Factory, knownLen, onChainLen)
	if err != nil {
		return fmt.Errorf("%w: pair range for %s: %v", arberr.ErrRPC, p.Factory, err)
	}

	for _, pool := range pools {
		token0, token1, err := chain.PoolTokens(ctx, pool)
		if err != nil {
			return fmt.Errorf("%w: pool tokens for %s: %v", arberr.ErrRPC, pool, err)
		}
		if err := store.RecordPair(ctx, p.Factory, pool, token0, token1); err != nil {
			return err
		}
		bad0, err := store.IsBlacklisted(ctx, token0)
		if err != nil {
			return err
		}
		bad1, err := store.IsBlacklisted(ctx, token1)
		if err != nil {
			return err
		}
		if err := store.SetExcluded(ctx, p.Factory, pool, bad0 || bad1); err != nil {
			return err
		}
	}
	return nil
}

// RefreshBlacklist resets every row to included then recomputes excluded
// from the current blacklist. Idempotent, per spec §4.3.
func (p *Protocol) RefreshBlacklist(ctx context.Context, store PairStore) error {
	return store.RefreshBlacklist(ctx, p.Factory)
}

// LoadPersisted reads every non-excluded pair the store knows about for
// this factory and adds it to the in-memory graph with zero reserves,
// pending the next RefreshReserves. Run at startup after DiscoverNewPairs
// so newly-discovered pools (and any from a prior run) actually
// participate in the graph rather than sitting recorded-but-unloaded.
func (p *Protocol) LoadPersisted(ctx context.Context, store PairStore) error {
	loaded, err := store.PairsForFactory(ctx, p.Factory)
	if err != nil {
		return err
	}
	for _, lp := range loaded {
		pr, err := pair.New(p.Factory, lp.Pool, lp.Token0, lp.Token1, num.Zero(), num.Zero(), p.FeeBps)
		if err != nil {
			return err
		}
		p.AddPair(pr)
	}
	return nil
}
