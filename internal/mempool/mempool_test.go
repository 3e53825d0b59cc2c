package mempool

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dibbydoda/arbbot-go/internal/abicodec"
	"github.com/dibbydoda/arbbot-go/internal/applog"
	"github.com/dibbydoda/arbbot-go/internal/domain"
	"github.com/dibbydoda/arbbot-go/internal/tradedecoder"
)

const testRouterABI = `[
	{"name":"swapExactTokensForTokens","type":"function","stateMutability":"nonpayable","inputs":[
		{"name":"amountIn","type":"uint256"},
		{"name":"amountOutMin","type":"uint256"},
		{"name":"path","type":"address[]"},
		{"name":"to","type":"address"},
		{"name":"deadline","type":"uint256"}]}
]`

var (
	routerAddr = common.HexToAddress("0x1234")
	factory    = common.HexToAddress("0x5678")
)

func testLogger() applog.Logger {
	return applog.Wrap(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func testDecoder(t *testing.T) *tradedecoder.Decoder {
	t.Helper()
	path := filepath.Join(t.TempDir(), "router.json")
	require.NoError(t, os.WriteFile(path, []byte(testRouterABI), 0o644))
	codec, err := abicodec.Load(path)
	require.NoError(t, err)

	routers := map[common.Address]tradedecoder.RouterInfo{routerAddr: {Codec: codec, Factory: factory}}
	functionKinds := map[string]domain.RouterFunctionKind{
		"swapExactTokensForTokens": domain.RouterExactOther,
	}
	return tradedecoder.New(routers, functionKinds)
}

func packSwapCalldata(t *testing.T, abiJSON string, path []common.Address) []byte {
	t.Helper()
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	require.NoError(t, err)
	method := parsed.Methods["swapExactTokensForTokens"]
	args, err := method.Inputs.Pack(big.NewInt(1000), big.NewInt(1), path, common.HexToAddress("0xc"), big.NewInt(9999999999))
	require.NoError(t, err)
	return append(method.ID, args...)
}

// fakeFetcher resolves every hash to a fixed set of responses keyed by hash.
type fakeFetcher struct {
	txs    map[common.Hash]*types.Transaction
	sender common.Address
	err    error
}

func (f *fakeFetcher) TransactionByHash(_ context.Context, hash common.Hash) (*types.Transaction, bool, error) {
	if f.err != nil {
		return nil, false, f.err
	}
	tx, ok := f.txs[hash]
	if !ok {
		return nil, false, errors.New("not found")
	}
	return tx, true, nil
}

func (f *fakeFetcher) TransactionSender(_ context.Context, _ *types.Transaction) (common.Address, error) {
	if f.err != nil {
		return common.Address{}, f.err
	}
	return f.sender, nil
}

func routerTx(t *testing.T) (*types.Transaction, []common.Address) {
	t.Helper()
	path := []common.Address{common.HexToAddress("0xa"), common.HexToAddress("0xb")}
	calldata := packSwapCalldata(t, testRouterABI, path)
	tx := types.NewTx(&types.LegacyTx{To: &routerAddr, Data: calldata, GasPrice: big.NewInt(1)})
	return tx, path
}

func TestResolveAndDecodeDeliversSwapOnMatch(t *testing.T) {
	decoder := testDecoder(t)
	tx, path := routerTx(t)

	sender := common.HexToAddress("0xsender")
	hash := tx.Hash()
	fetcher := &fakeFetcher{txs: map[common.Hash]*types.Transaction{hash: tx}, sender: sender}

	w := New(fetcher, decoder, testLogger(), 4, 4)
	w.resolveAndDecode(context.Background(), hash)

	select {
	case swap := <-w.Swaps():
		require.NotNil(t, swap)
		assert.Equal(t, path, swap.Path)
		assert.Equal(t, sender, swap.From)
	case <-time.After(time.Second):
		t.Fatal("expected a decoded swap on the channel")
	}
}

func TestResolveAndDecodeDropsOnFetchError(t *testing.T) {
	decoder := testDecoder(t)
	fetcher := &fakeFetcher{txs: map[common.Hash]*types.Transaction{}, err: errors.New("rpc down")}

	w := New(fetcher, decoder, testLogger(), 4, 4)
	w.resolveAndDecode(context.Background(), common.HexToHash("0x1"))

	select {
	case swap := <-w.Swaps():
		t.Fatalf("expected no swap, got %+v", swap)
	default:
	}
}

func TestResolveAndDecodeDropsOnUnknownRouter(t *testing.T) {
	decoder := testDecoder(t)
	other := common.HexToAddress("0x9999")
	tx := types.NewTx(&types.LegacyTx{To: &other, Data: []byte{1, 2, 3, 4}, GasPrice: big.NewInt(1)})
	hash := tx.Hash()
	fetcher := &fakeFetcher{txs: map[common.Hash]*types.Transaction{hash: tx}, sender: common.HexToAddress("0xsender")}

	w := New(fetcher, decoder, testLogger(), 4, 4)
	w.resolveAndDecode(context.Background(), hash)

	select {
	case swap := <-w.Swaps():
		t.Fatalf("expected no swap for unknown router, got %+v", swap)
	default:
	}
}

func TestNextDelayDoublesAndCaps(t *testing.T) {
	d := initialReconnectDelay
	d = nextDelay(d)
	assert.Equal(t, 2*initialReconnectDelay, d)

	huge := nextDelay(maxReconnectDelay)
	assert.Equal(t, maxReconnectDelay, huge)
}

func TestRunReturnsPromptlyWhenContextAlreadyCancelled(t *testing.T) {
	decoder := testDecoder(t)
	fetcher := &fakeFetcher{}
	w := New(fetcher, decoder, testLogger(), 4, 4)

	cctx, cancelNow := context.WithCancel(context.Background())
	cancelNow()

	done := make(chan struct{})
	go func() {
		w.Run(cctx, "ws://unused")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return promptly on a pre-cancelled context")
	}
}
