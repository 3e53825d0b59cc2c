package registry

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dibbydoda/arbbot-go/internal/arberr"
	"github.com/dibbydoda/arbbot-go/internal/num"
	"github.com/dibbydoda/arbbot-go/internal/pair"
	"github.com/dibbydoda/arbbot-go/internal/protocol"
)

var (
	factory = common.HexToAddress("0xf1")
	router  = common.HexToAddress("0xf2")
	pool1   = common.HexToAddress("0x1")
	poolC   = common.HexToAddress("0xc")
	tokenA  = common.HexToAddress("0xaaaa")
	tokenB  = common.HexToAddress("0xbbbb")
)

func TestProtocolLookup(t *testing.T) {
	r := New()
	proto := protocol.New(factory, router, 30, "test")
	r.AddProtocol(proto)

	got, err := r.Protocol(factory)
	require.NoError(t, err)
	assert.Equal(t, proto, got)

	_, err = r.Protocol(common.HexToAddress("0xdead"))
	require.ErrorIs(t, err, arberr.ErrProtocolMissing)
}

func TestResolvePairChecksProtocolThenCustom(t *testing.T) {
	r := New()
	proto := protocol.New(factory, router, 30, "test")
	pr, err := pair.New(factory, pool1, tokenA, tokenB, num.FromUint64(1), num.FromUint64(1), 30)
	require.NoError(t, err)
	proto.AddPair(pr)
	r.AddProtocol(proto)

	custom, err := pair.New(common.Address{}, poolC, tokenA, tokenB, num.FromUint64(1), num.FromUint64(1), 30)
	require.NoError(t, err)
	r.AddCustomPair(custom)

	resolved, err := r.ResolvePair(factory, pool1)
	require.NoError(t, err)
	assert.Equal(t, pr, resolved)

	resolvedCustom, err := r.ResolvePair(common.Address{}, poolC)
	require.NoError(t, err)
	assert.Equal(t, custom, resolvedCustom)

	_, err = r.ResolvePair(factory, poolC)
	require.ErrorIs(t, err, arberr.ErrPairMissing)
}

func TestAllPairsIncludesCustom(t *testing.T) {
	r := New()
	proto := protocol.New(factory, router, 30, "test")
	pr, err := pair.New(factory, pool1, tokenA, tokenB, num.FromUint64(1), num.FromUint64(1), 30)
	require.NoError(t, err)
	proto.AddPair(pr)
	r.AddProtocol(proto)

	custom, err := pair.New(common.Address{}, poolC, tokenA, tokenB, num.FromUint64(1), num.FromUint64(1), 30)
	require.NoError(t, err)
	r.AddCustomPair(custom)

	all := r.AllPairs()
	assert.Len(t, all, 2)
}

func TestViewIsASnapshot(t *testing.T) {
	r := New()
	view1 := r.View()
	r.AddProtocol(protocol.New(factory, router, 30, "test"))
	view2 := r.View()

	assert.Empty(t, view1.Protocols)
	assert.Len(t, view2.Protocols, 1)
}
