package executor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dibbydoda/arbbot-go/internal/applog"
	"github.com/dibbydoda/arbbot-go/internal/arberr"
	"github.com/dibbydoda/arbbot-go/internal/domain"
	"github.com/dibbydoda/arbbot-go/internal/num"
	"github.com/dibbydoda/arbbot-go/internal/pair"
	"github.com/dibbydoda/arbbot-go/internal/protocol"
	"github.com/dibbydoda/arbbot-go/internal/registry"
	"github.com/dibbydoda/arbbot-go/internal/signerkeys"
)

const (
	testKeyOne = "ec2a91483481e39d3c1674e8ee6e0a33f48bea91eadf7547261ffd4b2d563ed"
	testKeyTwo = "c6f323f5e91213a43015b7a6f2599a29666a1f2c611cf88a04d84ea34c7cd0e"
)

func testLogger() applog.Logger {
	return applog.Wrap(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func testPool(t *testing.T) *signerkeys.Pool {
	t.Helper()
	pool, err := signerkeys.NewPool([]string{testKeyOne, testKeyTwo})
	require.NoError(t, err)
	return pool
}

var (
	reserveToken = common.HexToAddress("0xaaaa")
	tokenB       = common.HexToAddress("0xbbbb")
	factoryAddr  = common.HexToAddress("0xf1")
	poolAddr     = common.HexToAddress("0x1")
)

func buildRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	pr, err := pair.New(factoryAddr, poolAddr, reserveToken, tokenB, num.FromUint64(1_000_000), num.FromUint64(1_000_000), 30)
	require.NoError(t, err)

	proto := protocol.New(factoryAddr, common.HexToAddress("0xrouter"), 30, "test")
	proto.AddPair(pr)

	reg := registry.New()
	reg.AddProtocol(proto)
	return reg
}

func testOpportunity() *domain.ArbOpportunity {
	return &domain.ArbOpportunity{
		Path: domain.Path{
			Tokens:  []common.Address{reserveToken, tokenB},
			Lookups: []domain.PairLookup{{Factory: factoryAddr, Pool: poolAddr}},
		},
		Gas:            domain.GasProfile{Legacy: true, Price: num.FromUint64(1)},
		Input:          num.FromUint64(1_000),
		Output:         num.FromUint64(1_010),
		Profit:         num.FromUint64(5),
		GasCostInToken: num.FromUint64(5),
	}
}

type fakeBroadcaster struct {
	nonce        uint64
	sendErr      error
	receiptErr   error
	receiptValue uint64
	sent         []*types.Transaction
}

func (f *fakeBroadcaster) PendingNonceAt(_ context.Context, _ common.Address) (uint64, error) {
	return f.nonce, nil
}

func (f *fakeBroadcaster) SendRawTransaction(_ context.Context, tx *types.Transaction) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, tx)
	return nil
}

func (f *fakeBroadcaster) TransactionReceipt(_ context.Context, _ common.Hash) (*types.Receipt, error) {
	if f.receiptErr != nil {
		return nil, f.receiptErr
	}
	return &types.Receipt{Status: f.receiptValue}, nil
}

func TestExecuteBroadcastsOneAttemptPerAccount(t *testing.T) {
	reg := buildRegistry(t)
	chain := &fakeBroadcaster{receiptValue: types.ReceiptStatusSuccessful}
	pool := testPool(t)
	ex := New(chain, pool, common.HexToAddress("0xcontract"), big.NewInt(1), testLogger())

	results, err := ex.Execute(context.Background(), testOpportunity(), reg)
	require.NoError(t, err)
	require.Len(t, results, pool.Len())
	for _, r := range results {
		assert.NoError(t, r.Err)
		assert.True(t, r.Success)
	}
	assert.Len(t, chain.sent, pool.Len())
}

func TestExecuteMarksFailedReceiptsUnsuccessful(t *testing.T) {
	reg := buildRegistry(t)
	chain := &fakeBroadcaster{receiptValue: 0}
	pool := testPool(t)
	ex := New(chain, pool, common.HexToAddress("0xcontract"), big.NewInt(1), testLogger())

	results, err := ex.Execute(context.Background(), testOpportunity(), reg)
	require.NoError(t, err)
	for _, r := range results {
		assert.NoError(t, r.Err)
		assert.False(t, r.Success)
	}
}

func TestExecutePropagatesSendErrorsPerAccount(t *testing.T) {
	reg := buildRegistry(t)
	sendErr := errors.New("nonce too low")
	chain := &fakeBroadcaster{sendErr: sendErr, receiptValue: types.ReceiptStatusSuccessful}
	pool := testPool(t)
	ex := New(chain, pool, common.HexToAddress("0xcontract"), big.NewInt(1), testLogger())

	results, err := ex.Execute(context.Background(), testOpportunity(), reg)
	require.NoError(t, err)
	for _, r := range results {
		assert.ErrorIs(t, r.Err, sendErr)
		assert.False(t, r.Success)
	}
}

func TestExecuteRejectsUnresolvablePoolPath(t *testing.T) {
	reg := registry.New() // empty: the opportunity's pair cannot resolve
	chain := &fakeBroadcaster{}
	pool := testPool(t)
	ex := New(chain, pool, common.HexToAddress("0xcontract"), big.NewInt(1), testLogger())

	_, err := ex.Execute(context.Background(), testOpportunity(), reg)
	require.ErrorIs(t, err, arberr.ErrPairMissing)
}

type fakeBalances struct {
	balances map[common.Address]*num.U256
}

func (f fakeBalances) BalanceAt(_ context.Context, addr common.Address) (*num.U256, error) {
	if bal, ok := f.balances[addr]; ok {
		return bal, nil
	}
	return num.Zero(), nil
}

func TestTopUpReservesPaysOnlyAccountsBelowReserve(t *testing.T) {
	chain := &fakeBroadcaster{receiptValue: types.ReceiptStatusSuccessful}
	pool := testPool(t)
	ex := New(chain, pool, common.HexToAddress("0xcontract"), big.NewInt(1), testLogger())

	accounts := pool.Accounts()
	balances := fakeBalances{balances: map[common.Address]*num.U256{
		accounts[0].Address: num.FromUint64(1_000), // already above reserve
		accounts[1].Address: num.FromUint64(10),    // below reserve, needs topping up
	}}
	reserve := num.FromUint64(100)

	err := ex.TopUpReserves(context.Background(), balances, reserve, domain.GasProfile{Legacy: true, Price: num.FromUint64(1)})
	require.NoError(t, err)
	require.Len(t, chain.sent, 1)
}

func TestTopUpReservesNoOpWhenReserveIsZero(t *testing.T) {
	chain := &fakeBroadcaster{}
	pool := testPool(t)
	ex := New(chain, pool, common.HexToAddress("0xcontract"), big.NewInt(1), testLogger())

	err := ex.TopUpReserves(context.Background(), fakeBalances{}, num.Zero(), domain.GasProfile{Legacy: true, Price: num.FromUint64(1)})
	require.NoError(t, err)
	assert.Empty(t, chain.sent)
}

func TestBuildTxChoosesTxTypeByGasProfile(t *testing.T) {
	legacy := buildTx(0, common.HexToAddress("0xc"), []byte{1}, domain.GasProfile{Legacy: true, Price: num.FromUint64(1)}, 21000, big.NewInt(1))
	assert.Equal(t, types.LegacyTxType, int(legacy.Type()))

	dynamic := buildTx(0, common.HexToAddress("0xc"), []byte{1}, domain.GasProfile{MaxFee: num.FromUint64(2), MaxPriorityFee: num.FromUint64(1)}, 21000, big.NewInt(1))
	assert.Equal(t, types.DynamicFeeTxType, int(dynamic.Type()))
}
