// Package mempool implements MempoolWatcher: subscribes to pending
// transaction hashes, resolves them (capped in-flight) to full bodies,
// filters those addressed to known routers, and hands them to
// tradedecoder, per spec §4.8.
//
// The reconnect-with-backoff loop is grounded directly on
// streams/jsonrpc/client/client.go's run/subscribeAndProcess
// (initialReconnectDelay/maxReconnectDelay, doubling, rpc.DialContext +
// Subscribe), retargeted from the teacher's custom "defi"/
// "subscribeStateStream" namespace to the standard Ethereum
// "newPendingTransactions" subscription, and the bounded-concurrency
// resolution fan-out follows chains/ethereum/client.go's processState
// (sync.WaitGroup-bounded goroutines).
package mempool

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/dibbydoda/arbbot-go/internal/applog"
	"github.com/dibbydoda/arbbot-go/internal/domain"
	"github.com/dibbydoda/arbbot-go/internal/tradedecoder"
)

const (
	initialReconnectDelay = 1 * time.Second
	maxReconnectDelay     = 30 * time.Second
	newPendingTxMethod    = "newPendingTransactions"
)

// TxFetcher resolves a pending transaction hash to its full body and sender.
type TxFetcher interface {
	TransactionByHash(ctx context.Context, hash common.Hash) (tx *types.Transaction, isPending bool, err error)
	TransactionSender(ctx context.Context, tx *types.Transaction) (common.Address, error)
}

// Watcher streams decoded pending swaps without blocking; dropping a
// transaction is acceptable, replaying one is acceptable since
// downstream simulation is idempotent under snapshot/restore.
type Watcher struct {
	fetcher    TxFetcher
	decoder    *tradedecoder.Decoder
	logger     applog.Logger
	maxInFlight int
	swapCh     chan *domain.PendingSwap
}

// New builds a Watcher. maxInFlight bounds concurrent hash-resolution calls.
func New(fetcher TxFetcher, decoder *tradedecoder.Decoder, logger applog.Logger, maxInFlight int, bufferSize int) *Watcher {
	if maxInFlight <= 0 {
		maxInFlight = 50
	}
	return &Watcher{
		fetcher:     fetcher,
		decoder:     decoder,
		logger:      logger,
		maxInFlight: maxInFlight,
		swapCh:      make(chan *domain.PendingSwap, bufferSize),
	}
}

// Swaps returns the channel of decoded pending swaps.
func (w *Watcher) Swaps() <-chan *domain.PendingSwap { return w.swapCh }

// Run connects, subscribes, and reconnects with exponential backoff
// until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context, url string) {
	defer close(w.swapCh)
	delay := initialReconnectDelay

	for {
		if ctx.Err() != nil {
			w.logger.Info("mempool watcher context cancelled, shutting down")
			return
		}

		w.logger.Info("connecting to node for pending-tx subscription", "url", url)
		rpcClient, err := rpc.DialContext(ctx, url)
		if err != nil {
			w.logger.Error("failed to connect, will retry", "error", err, "delay", delay)
			time.Sleep(delay)
			delay = nextDelay(delay)
			continue
		}

		delay = initialReconnectDelay
		if err := w.subscribeAndProcess(ctx, rpcClient); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}
			w.logger.Error("subscription failed, will reconnect", "error", err, "delay", delay)
			time.Sleep(delay)
			delay = nextDelay(delay)
		}
	}
}

func nextDelay(d time.Duration) time.Duration {
	d *= 2
	if d > maxReconnectDelay {
		return maxReconnectDelay
	}
	return d
}

func (w *Watcher) subscribeAndProcess(ctx context.Context, rpcClient *rpc.Client) error {
	defer rpcClient.Close()

	hashCh := make(chan common.Hash)
	sub, err := rpcClient.EthSubscribe(ctx, hashCh, newPendingTxMethod)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	sem := make(chan struct{}, w.maxInFlight)
	w.logger.Info("subscribed to pending transactions")

	for {
		select {
		case hash := <-hashCh:
			select {
			case sem <- struct{}{}:
				go func(h common.Hash) {
					defer func() { <-sem }()
					w.resolveAndDecode(ctx, h)
				}(hash)
			default:
				w.logger.Debug("dropping pending tx, resolver at capacity", "hash", hash)
			}
		case err := <-sub.Err():
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (w *Watcher) resolveAndDecode(ctx context.Context, hash common.Hash) {
	tx, _, err := w.fetcher.TransactionByHash(ctx, hash)
	if err != nil || tx == nil {
		return
	}
	from, err := w.fetcher.TransactionSender(ctx, tx)
	if err != nil {
		return
	}
	swap, err := w.decoder.Decode(tx, from)
	if err != nil {
		return
	}
	select {
	case w.swapCh <- swap:
	default:
		w.logger.Debug("dropping decoded swap, buffer full", "hash", hash)
	}
}
