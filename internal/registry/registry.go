// Package registry implements the data model's PairRegistry: the set of
// all Protocols keyed by factory address, plus a side list of custom
// (hand-configured) pairs that participate in the graph but never in
// simulation of pending swaps.
//
// Reads are lock-free via an atomic cached view; writes are serialized
// under a mutex, grounded directly on
// protocols/tokenpoolregistry/system.go's TokenPoolSystem
// (sync.RWMutex + atomic.Pointer[View]) — adapted here from a generic
// uint64-id pool system to the arbitrage engine's Protocol/Pair model.
package registry

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"

	"github.com/dibbydoda/arbbot-go/internal/arberr"
	"github.com/dibbydoda/arbbot-go/internal/pair"
	"github.com/dibbydoda/arbbot-go/internal/protocol"
)

// View is a read-optimized snapshot of the registry, shared by every reader.
type View struct {
	Protocols map[common.Address]*protocol.Protocol
	Custom    []*pair.Pair
}

// Registry owns every Protocol and the custom pair list. The engine
// owns the single Registry instance for its lifetime; no other
// component may mutate it directly.
type Registry struct {
	mu         sync.RWMutex
	protocols  map[common.Address]*protocol.Protocol
	custom     []*pair.Pair
	cachedView atomic.Pointer[View]
}

// New returns an empty Registry.
func New() *Registry {
	r := &Registry{protocols: make(map[common.Address]*protocol.Protocol)}
	r.updateCachedViewLocked()
	return r
}

func (r *Registry) updateCachedViewLocked() {
	protos := make(map[common.Address]*protocol.Protocol, len(r.protocols))
	for k, v := range r.protocols {
		protos[k] = v
	}
	custom := make([]*pair.Pair, len(r.custom))
	copy(custom, r.custom)
	r.cachedView.Store(&View{Protocols: protos, Custom: custom})
}

// AddProtocol registers a protocol, keyed by its factory address.
func (r *Registry) AddProtocol(p *protocol.Protocol) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.protocols[p.Factory] = p
	r.updateCachedViewLocked()
}

// AddCustomPair appends a hand-configured pair.
func (r *Registry) AddCustomPair(p *pair.Pair) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.custom = append(r.custom, p)
	r.updateCachedViewLocked()
}

// Protocol looks up a protocol by factory address.
func (r *Registry) Protocol(factory common.Address) (*protocol.Protocol, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.protocols[factory]
	if !ok {
		return nil, fmt.Errorf("%w: factory %s", arberr.ErrProtocolMissing, factory)
	}
	return p, nil
}

// View returns the current lock-free snapshot. Callers must not mutate
// the returned maps/slices; it is shared with other readers.
func (r *Registry) View() *View {
	v := r.cachedView.Load()
	if v == nil {
		return &View{Protocols: map[common.Address]*protocol.Protocol{}}
	}
	return v
}

// ResolvePair resolves a PairLookup's factory+pool identity to the live
// Pair, first checking the named protocol's pairs, then custom pairs
// with the same factory and pool address.
func (r *Registry) ResolvePair(factory, pool common.Address) (*pair.Pair, error) {
	view := r.View()
	if p, ok := view.Protocols[factory]; ok {
		for _, pr := range p.Pairs() {
			if pr.Address == pool {
				return pr, nil
			}
		}
	}
	for _, pr := range view.Custom {
		if pr.Factory == factory && pr.Address == pool {
			return pr, nil
		}
	}
	return nil, fmt.Errorf("%w: factory %s pool %s", arberr.ErrPairMissing, factory, pool)
}

// AllPairs returns every pair across every protocol plus the custom list,
// protocols visited in factory-address order so that graph construction
// (and thus §4.5's "equal-weight → first one wins") is stable across
// ticks rather than following Go's randomized map iteration order.
func (r *Registry) AllPairs() []*pair.Pair {
	view := r.View()
	factories := make([]common.Address, 0, len(view.Protocols))
	for factory := range view.Protocols {
		factories = append(factories, factory)
	}
	sort.Slice(factories, func(i, j int) bool { return factories[i].Cmp(factories[j]) < 0 })

	out := make([]*pair.Pair, 0, len(view.Custom))
	for _, factory := range factories {
		out = append(out, view.Protocols[factory].Pairs()...)
	}
	out = append(out, view.Custom...)
	return out
}
