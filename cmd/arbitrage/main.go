// Command arbitrage wires configuration, logging, the chain client,
// the pair registry, and the decision engine into a running process.
//
// Grounded on cmd/client/main.go's startup shape (slog JSON handler,
// flag-driven config path, signal.NotifyContext-based shutdown, final
// select loop), retargeted from the teacher's state-stream client to
// the arbitrage engine's tick loop.
package main

import (
	"context"
	"flag"
	"log/slog"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dibbydoda/arbbot-go/internal/abicodec"
	"github.com/dibbydoda/arbbot-go/internal/applog"
	"github.com/dibbydoda/arbbot-go/internal/arbengine"
	"github.com/dibbydoda/arbbot-go/internal/chainclient"
	"github.com/dibbydoda/arbbot-go/internal/config"
	"github.com/dibbydoda/arbbot-go/internal/domain"
	"github.com/dibbydoda/arbbot-go/internal/executor"
	"github.com/dibbydoda/arbbot-go/internal/mempool"
	"github.com/dibbydoda/arbbot-go/internal/metrics"
	"github.com/dibbydoda/arbbot-go/internal/num"
	"github.com/dibbydoda/arbbot-go/internal/pair"
	"github.com/dibbydoda/arbbot-go/internal/pairstore"
	"github.com/dibbydoda/arbbot-go/internal/protocol"
	"github.com/dibbydoda/arbbot-go/internal/registry"
	"github.com/dibbydoda/arbbot-go/internal/signerkeys"
	"github.com/dibbydoda/arbbot-go/internal/tradedecoder"
)

func main() {
	rootLogger := applog.NewJSON(os.Stdout, slog.LevelInfo)
	prometheusRegistry := prometheus.NewRegistry()

	catalogDir := flag.String("catalog-dir", ".", "Directory containing protocols.json, custom_pairs.json, router_mappings.json, bad_tokens.json")
	dsn := flag.String("dsn", "", "Postgres DSN for the pair store")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env, err := config.LoadEnv()
	if err != nil {
		rootLogger.Error("failed to load environment configuration", "error", err)
		os.Exit(1)
	}
	catalogs, err := config.LoadCatalogs(*catalogDir)
	if err != nil {
		rootLogger.Error("failed to load catalogs", "error", err)
		os.Exit(1)
	}

	store, err := pairstore.Open(*dsn)
	if err != nil {
		rootLogger.Error("failed to open pair store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	chain, err := chainclient.Dial(ctx, env.NodeURL, chainclient.WithLogger(rootLogger))
	if err != nil {
		rootLogger.Error("failed to dial node", "error", err)
		os.Exit(1)
	}
	defer chain.Close()

	chainID, err := chain.ChainID(ctx)
	if err != nil {
		rootLogger.Error("failed to read chain id", "error", err)
		os.Exit(1)
	}

	signers, err := signerkeys.NewPool(append([]string{env.MainKey}, env.BackupKeys...))
	if err != nil {
		rootLogger.Error("failed to load signing keys", "error", err)
		os.Exit(1)
	}

	reg := registry.New()
	if err := loadProtocols(ctx, reg, catalogs, store, chain); err != nil {
		rootLogger.Error("failed to load protocols", "error", err)
		os.Exit(1)
	}

	decoder, err := buildDecoder(catalogs)
	if err != nil {
		rootLogger.Error("failed to build trade decoder", "error", err)
		os.Exit(1)
	}

	m := metrics.New(prometheusRegistry)
	reserveToken := common.HexToAddress(env.TradedToken)
	contract := common.HexToAddress(env.ArbitrageContract)

	engine := arbengine.New(reg, reserveToken, chainID.Uint64(), env.TxAttempts, rootLogger, m)
	exec := executor.New(chain, signers, contract, chainID, rootLogger)

	if err := topUpStartupReserves(ctx, exec, chain, env); err != nil {
		rootLogger.Error("failed to top up backup account reserves", "error", err)
		os.Exit(1)
	}

	watcher := mempool.New(chain, decoder, rootLogger, 50, 256)
	go watcher.Run(ctx, env.NodeURL)

	headers := make(chan *types.Header, 16)
	headSub, err := chain.SubscribeNewHead(ctx, headers)
	if err != nil {
		rootLogger.Error("failed to subscribe to new heads", "error", err)
		os.Exit(1)
	}
	defer headSub.Unsubscribe()

	stillPending := func(hash common.Hash) bool {
		_, isPending, err := chain.TransactionByHash(ctx, hash)
		if err != nil {
			return false
		}
		return isPending
	}

	gasPriceOf := func(gas domain.GasProfile) *num.U256 {
		if gas.Legacy {
			return gas.Price
		}
		return gas.MaxFee
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			rootLogger.Info("shutting down")
			return
		case err := <-headSub.Err():
			rootLogger.Error("new head subscription failed", "error", err)
		case header, ok := <-headers:
			if !ok {
				continue
			}
			txHashes, number, err := chain.BlockTxHashes(ctx, header.Hash())
			if err != nil {
				rootLogger.Error("failed to fetch new block", "error", err)
				continue
			}
			engine.ObserveBlock(arbengine.BlockInfo{Number: number, TxHashes: txHashes}, stillPending)

			// Step 1 is an if/else: a full rebuild (which loads fresh,
			// zero-reserve pairs and so refreshes reserves itself)
			// supersedes a plain reserve refresh for this block.
			rebuilt := false
			rebuild := func() error {
				if err := refreshDiscoveredPairs(ctx, reg, chain, store); err != nil {
					return err
				}
				rebuilt = true
				return engine.RefreshReserves(ctx, chain)
			}
			if err := engine.MaybeFullRefresh(time.Now(), rebuild); err != nil {
				rootLogger.Error("failed to rebuild protocol catalogs", "error", err)
			} else if !rebuilt {
				if err := engine.RefreshReserves(ctx, chain); err != nil {
					rootLogger.Error("failed to refresh reserves", "error", err)
				}
			}
		case swap, ok := <-watcher.Swaps():
			if !ok {
				return
			}
			engine.MergeSwaps([]*domain.PendingSwap{swap})
		case <-ticker.C:
			opp, err := engine.Tick(gasPriceOf)
			if err != nil {
				rootLogger.Error("tick failed", "error", err)
				continue
			}
			if opp == nil {
				continue
			}
			results, err := exec.Execute(ctx, opp, reg)
			if err != nil {
				rootLogger.Error("execution failed", "error", err)
				continue
			}
			for _, r := range results {
				rootLogger.Info("attempt result", "account", r.Account, "tx_hash", r.TxHash, "success", r.Success, "error", r.Err)
			}
		}
	}
}

// topUpStartupReserves implements spec §4.10's startup gas-reserves
// routine, priced at the node's currently suggested (legacy) gas price.
func topUpStartupReserves(ctx context.Context, exec *executor.Executor, chain *chainclient.Client, env *config.EngineConfig) error {
	balanceReserve, ok := new(big.Int).SetString(env.BalanceReserve, 10)
	if !ok {
		return nil
	}
	gasPrice, err := chain.SuggestGasPrice(ctx)
	if err != nil {
		return err
	}
	return exec.TopUpReserves(ctx, chain, num.FromBig(balanceReserve), domain.GasProfile{Legacy: true, Price: gasPrice})
}

func loadProtocols(ctx context.Context, reg *registry.Registry, catalogs *config.Catalogs, store *pairstore.Store, chain *chainclient.Client) error {
	if err := store.SeedBlacklist(ctx, catalogs.BadTokenAddresses()); err != nil {
		return err
	}
	for _, pc := range catalogs.Protocols {
		factory := common.HexToAddress(pc.Factory)
		router := common.HexToAddress(pc.Router)
		proto := protocol.New(factory, router, pc.FeeBps, pc.Name)
		reg.AddProtocol(proto)
	}
	for _, cp := range catalogs.CustomPairs {
		reserve0, ok := new(big.Int).SetString(cp.Reserve0, 10)
		if !ok {
			continue
		}
		reserve1, ok := new(big.Int).SetString(cp.Reserve1, 10)
		if !ok {
			continue
		}
		pr, err := pair.New(common.Address{}, common.HexToAddress(cp.Address), common.HexToAddress(cp.Token0), common.HexToAddress(cp.Token1), num.FromBig(reserve0), num.FromBig(reserve1), cp.FeeBps)
		if err != nil {
			continue
		}
		reg.AddCustomPair(pr)
	}
	return refreshDiscoveredPairs(ctx, reg, chain, store)
}

// refreshDiscoveredPairs runs pair discovery, blacklist recomputation,
// and persisted-pair loading for every registered protocol, so newly
// deployed pools (and anything persisted by a prior run) actually join
// the live graph instead of sitting recorded-but-unloaded. Used both at
// startup and as MaybeFullRefresh's periodic rebuild callback.
func refreshDiscoveredPairs(ctx context.Context, reg *registry.Registry, chain *chainclient.Client, store *pairstore.Store) error {
	for _, p := range reg.View().Protocols {
		if err := p.DiscoverNewPairs(ctx, chain, store); err != nil {
			return err
		}
		if err := p.RefreshBlacklist(ctx, store); err != nil {
			return err
		}
		if err := p.LoadPersisted(ctx, store); err != nil {
			return err
		}
	}
	return nil
}

func buildDecoder(catalogs *config.Catalogs) (*tradedecoder.Decoder, error) {
	routers := make(map[common.Address]tradedecoder.RouterInfo)

	for _, pc := range catalogs.Protocols {
		codec, err := abicodec.Load(pc.RouterABI)
		if err != nil {
			return nil, err
		}
		routers[common.HexToAddress(pc.Router)] = tradedecoder.RouterInfo{
			Codec:   codec,
			Factory: common.HexToAddress(pc.Factory),
		}
	}
	functionKinds, err := catalogs.FunctionKinds()
	if err != nil {
		return nil, err
	}
	return tradedecoder.New(routers, functionKinds), nil
}
