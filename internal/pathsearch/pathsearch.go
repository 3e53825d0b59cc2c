// Package pathsearch implements PathSearch: the depth-bounded
// best-output walk from the sentinel start node to the reserve-token
// node, described by spec §4.5.
//
// This is the literal algorithm original_source/src/graph.rs's
// search_visit/get_successors describe (the spec's prose maps almost
// 1:1 onto that function); the "already used edge" tracking reuses the
// teacher's bitset/bitset.go (bitset/bitset.go), reindexed from node ids
// to edge ids, and the scratch-state pooling follows
// examples/graph/graph.go's sync.Pool-backed findSwapPathsState.
package pathsearch

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/dibbydoda/arbbot-go/bitset"
	"github.com/dibbydoda/arbbot-go/internal/arberr"
	"github.com/dibbydoda/arbbot-go/internal/domain"
	"github.com/dibbydoda/arbbot-go/internal/num"
	"github.com/dibbydoda/arbbot-go/internal/pair"
	"github.com/dibbydoda/arbbot-go/internal/routegraph"
)

// MaxSwaps bounds the number of edges a returned path may use.
const MaxSwaps = 4

// Resolver resolves a PairLookup's factory+pool identity to a live Pair.
type Resolver interface {
	ResolvePair(factory, pool common.Address) (*pair.Pair, error)
}

// memoKey is the (node, depth) pair the seen-map prunes on.
type memoKey struct {
	node, depth int
}

type scratch struct {
	used bitset.BitSet
	seen map[memoKey]*num.U256
}

var scratchPool = sync.Pool{
	New: func() any { return &scratch{seen: make(map[memoKey]*num.U256)} },
}

func getScratch(edgeCount int) *scratch {
	s := scratchPool.Get().(*scratch)
	if uint64(len(s.used)) < (uint64(edgeCount)+63)/64 {
		s.used = bitset.NewBitSet(uint64(edgeCount))
	} else {
		s.used.Clear()
	}
	for k := range s.seen {
		delete(s.seen, k)
	}
	return s
}

func putScratch(s *scratch) { scratchPool.Put(s) }

// best tracks the best-seen (tokens, edges, weight) triple during the walk.
type best struct {
	tokens []int
	edges  []int
	weight *num.U256
}

// Search walks g from StartIndex looking for the best-output path back
// to the reserve-token node, starting with amountIn. Returns ErrNoPath
// if no path reaches the reserve token at all (the degenerate
// zero-length "path" only counts if StartIndex == ReserveIndex, which
// never happens since the start node is the distinct sentinel).
func Search(g *routegraph.Graph, resolver Resolver, amountIn *num.U256) (domain.Path, *num.U256, error) {
	s := getScratch(g.EdgeCount())
	defer putScratch(s)

	b := &best{weight: num.Zero()}

	visit(g, resolver, s, b, g.StartIndex, nil, nil, amountIn)

	if b.tokens == nil {
		return domain.Path{}, nil, arberr.ErrNoPath
	}

	path := domain.Path{
		Tokens:  make([]common.Address, len(b.tokens)),
		Lookups: make([]domain.PairLookup, len(b.edges)),
	}
	for i, n := range b.tokens {
		path.Tokens[i] = g.Node(n)
	}
	for i, e := range b.edges {
		path.Lookups[i] = g.Edge(e).Lookup
	}
	return path, b.weight, nil
}

func visit(g *routegraph.Graph, resolver Resolver, s *scratch, b *best, node int, tokens, edges []int, weight *num.U256) {
	tokens = append(tokens, node)

	if node == g.ReserveIndex {
		if weight.Cmp(b.weight) > 0 {
			b.tokens = append([]int(nil), tokens...)
			b.edges = append([]int(nil), edges...)
			b.weight = weight
		}
		return
	}

	if len(edges) >= MaxSwaps {
		return
	}

	key := memoKey{node: node, depth: len(edges)}
	if prior, ok := s.seen[key]; ok && prior.Cmp(weight) >= 0 {
		return
	}
	s.seen[key] = weight

	for _, e := range g.OutgoingEdges(node) {
		if s.used.IsSet(uint64(e)) {
			continue
		}
		edge := g.Edge(e)

		pr, err := resolver.ResolvePair(edge.Lookup.Factory, edge.Lookup.Pool)
		if err != nil {
			continue
		}
		nextWeight, err := pr.Weight(edge.InputToken, weight)
		if err != nil {
			continue
		}

		s.used.Set(uint64(e))
		visit(g, resolver, s, b, edge.To, tokens, append(edges, e), nextWeight)
		s.used.Unset(uint64(e))
	}
}
