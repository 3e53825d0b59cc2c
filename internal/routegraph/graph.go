// Package routegraph builds the directed multigraph described by the
// data model's Graph: nodes are token addresses, edges are pair
// references, and a sentinel "start" node (the zero Address) gives
// PathSearch a unique source that shares edges with the reserve token
// but cannot be re-entered as an interior node.
//
// The adjacency-list shape (dense node/edge indices, per-node outgoing
// edge lists) is adapted from
// protocols/tokenpoolregistry/registry.go's TokenPoolRegistry
// (tokenToIndex maps, addEdge), generalized from uint64 token/pool ids
// to common.Address-keyed nodes and domain.PairLookup-labeled edges.
// The sentinel start-node construction itself follows
// original_source/src/graph.rs's add_pair more closely than the
// teacher, since the teacher's registry has no such sentinel.
package routegraph

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/dibbydoda/arbbot-go/internal/domain"
	"github.com/dibbydoda/arbbot-go/internal/pair"
)

// StartNode is the sentinel zero-address node every search begins from.
var StartNode = common.Address{}

// Edge is one directed, labeled connection in the graph.
type Edge struct {
	From, To   int // node indices
	InputToken common.Address // the token held when traversing this edge (the "from" side)
	Lookup     domain.PairLookup
}

// Graph is the built token/pair multigraph for one reserve token.
type Graph struct {
	ReserveToken common.Address
	StartIndex   int
	ReserveIndex int

	nodes     []common.Address
	nodeIndex map[common.Address]int
	edges     []Edge
	adjacency [][]int // node index -> outgoing edge indices
}

// NodeCount returns the number of nodes, including the sentinel start node.
func (g *Graph) NodeCount() int { return len(g.nodes) }

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int { return len(g.edges) }

// Node returns the token address for a node index.
func (g *Graph) Node(i int) common.Address { return g.nodes[i] }

// Edge returns edge e.
func (g *Graph) Edge(e int) Edge { return g.edges[e] }

// OutgoingEdges returns the outgoing edge indices from node i.
func (g *Graph) OutgoingEdges(i int) []int { return g.adjacency[i] }

func (g *Graph) ensureNode(token common.Address) int {
	if idx, ok := g.nodeIndex[token]; ok {
		return idx
	}
	idx := len(g.nodes)
	g.nodes = append(g.nodes, token)
	g.adjacency = append(g.adjacency, nil)
	g.nodeIndex[token] = idx
	return idx
}

func (g *Graph) addEdge(from, to int, inputToken common.Address, lookup domain.PairLookup) {
	edgeIdx := len(g.edges)
	g.edges = append(g.edges, Edge{From: from, To: to, InputToken: inputToken, Lookup: lookup})
	g.adjacency[from] = append(g.adjacency[from], edgeIdx)
}

// Build constructs the graph from every pair (protocol-owned and
// custom) plus the reserve token address, per spec §4.4. Construction
// is idempotent and deterministic given input order.
func Build(pairs []*pair.Pair, reserveToken common.Address) *Graph {
	g := &Graph{
		ReserveToken: reserveToken,
		nodeIndex:    make(map[common.Address]int),
	}
	g.StartIndex = g.ensureNode(StartNode)
	g.ReserveIndex = g.ensureNode(reserveToken)

	for _, p := range pairs {
		t0 := g.ensureNode(p.Token0)
		t1 := g.ensureNode(p.Token1)
		lookup := domain.PairLookup{Factory: p.Factory, Pool: p.Address}

		if p.Token0 == reserveToken {
			g.addEdge(g.StartIndex, t1, reserveToken, lookup)
		} else if p.Token1 == reserveToken {
			g.addEdge(g.StartIndex, t0, reserveToken, lookup)
		}

		g.addEdge(t0, t1, p.Token0, lookup)
		g.addEdge(t1, t0, p.Token1, lookup)
	}

	return g
}
