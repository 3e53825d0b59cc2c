// Package executor implements Executor: assembling the
// attempt_arbitrage call, signing one attempt per backup account at
// its current nonce, and broadcasting the bundle in parallel, per spec
// §4.10.
//
// The parallel sign-and-broadcast fan-out is grounded on
// chains/ethereum/client.go's processState bounded-goroutine pattern
// (sync.WaitGroup, one goroutine per independent unit of work), and the
// startup gas-reserves top-up follows the same "compare then act"
// shape as protocols/uniswapv2/registry.go's refresh routines.
package executor

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/dibbydoda/arbbot-go/internal/applog"
	"github.com/dibbydoda/arbbot-go/internal/arberr"
	"github.com/dibbydoda/arbbot-go/internal/domain"
	"github.com/dibbydoda/arbbot-go/internal/num"
	"github.com/dibbydoda/arbbot-go/internal/registry"
	"github.com/dibbydoda/arbbot-go/internal/signerkeys"
)

// CallDeadlineOffset is how far into the future attempt_arbitrage's
// deadline argument is set (spec §4.10: "now + 120 seconds").
const CallDeadlineOffset = 120 * time.Second

const executorABIJSON = `[
	{"name":"attempt_arbitrage","type":"function","stateMutability":"nonpayable","inputs":[
		{"name":"input","type":"uint256"},
		{"name":"minOutput","type":"uint256"},
		{"name":"tokenPath","type":"address[]"},
		{"name":"poolPath","type":"address[]"},
		{"name":"feePath","type":"uint32[]"},
		{"name":"deadline","type":"uint256"}]},
	{"name":"withdraw_reserve","type":"function","stateMutability":"nonpayable","inputs":[
		{"name":"to","type":"address"},
		{"name":"amount","type":"uint256"}]}
]`

var executorABI abi.ABI

func init() {
	var err error
	executorABI, err = abi.JSON(strings.NewReader(executorABIJSON))
	if err != nil {
		panic(fmt.Sprintf("executor: invalid embedded abi: %v", err))
	}
}

// Broadcaster is the Chain surface Executor needs: nonce lookup,
// raw-tx submission, and receipt polling.
type Broadcaster interface {
	PendingNonceAt(ctx context.Context, addr common.Address) (uint64, error)
	SendRawTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// BalanceReader reads a backup account's native balance, used by
// TopUpReserves to find accounts below the configured reserve.
type BalanceReader interface {
	BalanceAt(ctx context.Context, addr common.Address) (*num.U256, error)
}

// Executor assembles, signs, and broadcasts arbitrage attempts.
type Executor struct {
	chain       Broadcaster
	signers     *signerkeys.Pool
	contract    common.Address
	chainID     *big.Int
	logger      applog.Logger
	gasEstimate uint64
}

// New builds an Executor targeting the deployed arbitrage contract.
func New(chain Broadcaster, signers *signerkeys.Pool, contract common.Address, chainID *big.Int, logger applog.Logger) *Executor {
	return &Executor{
		chain:       chain,
		signers:     signers,
		contract:    contract,
		chainID:     chainID,
		logger:      logger,
		gasEstimate: 500_000,
	}
}

// AttemptResult is one backup account's submission outcome.
type AttemptResult struct {
	Account common.Address
	TxHash  common.Hash
	Err     error
	Success bool
}

// Execute assembles attempt_arbitrage(...) for opp, resolves its
// pool/fee path from reg, signs one attempt per backup account with
// its own current nonce, and broadcasts all attempts in parallel.
// Success is defined as at least one receipt with status 1.
func (e *Executor) Execute(ctx context.Context, opp *domain.ArbOpportunity, reg *registry.Registry) ([]AttemptResult, error) {
	poolPath, feePath, err := resolvePoolAndFeePath(opp.Path, reg)
	if err != nil {
		return nil, err
	}

	minOutput, err := num.Add(opp.Input, opp.GasCostInToken)
	if err != nil {
		return nil, err
	}
	deadline := big.NewInt(time.Now().Add(CallDeadlineOffset).Unix())

	calldata, err := executorABI.Pack("attempt_arbitrage",
		opp.Input.ToBig(), minOutput.ToBig(), opp.Path.Tokens, poolPath, feePath, deadline)
	if err != nil {
		return nil, fmt.Errorf("%w: packing attempt_arbitrage: %v", arberr.ErrAbiTypeMismatch, err)
	}

	accounts := e.signers.Accounts()
	results := make([]AttemptResult, len(accounts))
	var wg sync.WaitGroup
	for i, acct := range accounts {
		wg.Add(1)
		go func(i int, acct signerkeys.Account) {
			defer wg.Done()
			results[i] = e.signAndSend(ctx, acct, calldata, opp.Gas)
		}(i, acct)
	}
	wg.Wait()

	for i := range results {
		if results[i].Err != nil {
			continue
		}
		receipt, err := e.chain.TransactionReceipt(ctx, results[i].TxHash)
		if err != nil {
			continue
		}
		results[i].Success = receipt.Status == types.ReceiptStatusSuccessful
	}

	e.logger.Info("arbitrage attempt broadcast", "opportunity_profit", opp.Profit.String(), "attempts", len(results))
	return results, nil
}

// TopUpReserves implements spec §4.10's startup gas-reserves routine:
// for every backup account whose native balance sits below
// balanceReserve, withdraw the shortfall in wrapped reserve token from
// the executor contract and pay it to that account, signed by the
// primary (KEYMAIN) account at consecutive nonces. Intended to run once
// before the engine's tick loop begins.
func (e *Executor) TopUpReserves(ctx context.Context, chain BalanceReader, balanceReserve *num.U256, gas domain.GasProfile) error {
	if balanceReserve == nil || balanceReserve.IsZero() {
		return nil
	}

	primary := e.signers.Primary()
	nonce, err := e.chain.PendingNonceAt(ctx, primary.Address)
	if err != nil {
		return err
	}

	for _, acct := range e.signers.Accounts() {
		bal, err := chain.BalanceAt(ctx, acct.Address)
		if err != nil {
			return err
		}
		if bal.Cmp(balanceReserve) >= 0 {
			continue
		}
		shortfall, err := num.Sub(balanceReserve, bal)
		if err != nil {
			return err
		}

		calldata, err := executorABI.Pack("withdraw_reserve", acct.Address, shortfall.ToBig())
		if err != nil {
			return fmt.Errorf("%w: packing withdraw_reserve: %v", arberr.ErrAbiTypeMismatch, err)
		}
		tx := buildTx(nonce, e.contract, calldata, gas, e.gasEstimate, e.chainID)
		signed, err := primary.SignTx(tx, e.chainID)
		if err != nil {
			return err
		}
		if err := e.chain.SendRawTransaction(ctx, signed); err != nil {
			return err
		}
		e.logger.Info("topped up backup account balance", "account", acct.Address, "amount", shortfall.String(), "tx_hash", signed.Hash())
		nonce++
	}
	return nil
}

func (e *Executor) signAndSend(ctx context.Context, acct signerkeys.Account, calldata []byte, gas domain.GasProfile) AttemptResult {
	nonce, err := e.chain.PendingNonceAt(ctx, acct.Address)
	if err != nil {
		return AttemptResult{Account: acct.Address, Err: err}
	}

	tx := buildTx(nonce, e.contract, calldata, gas, e.gasEstimate, e.chainID)
	signed, err := acct.SignTx(tx, e.chainID)
	if err != nil {
		return AttemptResult{Account: acct.Address, Err: err}
	}
	if err := e.chain.SendRawTransaction(ctx, signed); err != nil {
		return AttemptResult{Account: acct.Address, TxHash: signed.Hash(), Err: err}
	}
	return AttemptResult{Account: acct.Address, TxHash: signed.Hash()}
}

func buildTx(nonce uint64, to common.Address, data []byte, gas domain.GasProfile, gasLimit uint64, chainID *big.Int) *types.Transaction {
	if gas.Legacy {
		return types.NewTx(&types.LegacyTx{
			Nonce:    nonce,
			To:       &to,
			Value:    big.NewInt(0),
			Gas:      gasLimit,
			GasPrice: gas.Price.ToBig(),
			Data:     data,
		})
	}
	return types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		To:        &to,
		Value:     big.NewInt(0),
		Gas:       gasLimit,
		GasFeeCap: gas.MaxFee.ToBig(),
		GasTipCap: gas.MaxPriorityFee.ToBig(),
		Data:      data,
	})
}

func resolvePoolAndFeePath(path domain.Path, reg *registry.Registry) ([]common.Address, []uint32, error) {
	pools := make([]common.Address, len(path.Lookups))
	fees := make([]uint32, len(path.Lookups))
	for i, lookup := range path.Lookups {
		pr, err := reg.ResolvePair(lookup.Factory, lookup.Pool)
		if err != nil {
			return nil, nil, err
		}
		pools[i] = pr.Address
		fees[i] = pr.FeeBps
	}
	return pools, fees, nil
}
