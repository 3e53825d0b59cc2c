// Command routecli is an interactive inspector over the live pair
// registry: refresh reserves from a node, list protocols, look up a
// pair, and run the route finder against a chosen input amount.
//
// Grounded on cmd/console/main.go's styled menu loop
// (header/printMenu/handleCommand/readAndParseKey), retargeted from the
// teacher's State-stream browser to the pair registry and
// routegraph/pathsearch the engine itself uses.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/dibbydoda/arbbot-go/internal/applog"
	"github.com/dibbydoda/arbbot-go/internal/chainclient"
	"github.com/dibbydoda/arbbot-go/internal/config"
	"github.com/dibbydoda/arbbot-go/internal/num"
	"github.com/dibbydoda/arbbot-go/internal/pair"
	"github.com/dibbydoda/arbbot-go/internal/pathsearch"
	"github.com/dibbydoda/arbbot-go/internal/protocol"
	"github.com/dibbydoda/arbbot-go/internal/registry"
	"github.com/dibbydoda/arbbot-go/internal/routegraph"
)

const (
	reset  = "\033[0m"
	bold   = "\033[1m"
	red    = "\033[31m"
	green  = "\033[32m"
	yellow = "\033[33m"
	cyan   = "\033[36m"
	gray   = "\033[37m"
)

func header(title string) {
	fmt.Println("\n" + bold + cyan + ":: " + title + " ::" + reset)
}

// resolver satisfies both pathsearch.Resolver and patheval.Resolver
// against the live registry.
type resolver struct{ reg *registry.Registry }

func (r resolver) ResolvePair(factory, pool common.Address) (*pair.Pair, error) {
	return r.reg.ResolvePair(factory, pool)
}

func main() {
	catalogDir := flag.String("catalog-dir", ".", "directory containing protocols.json, custom_pairs.json, router_mappings.json, bad_tokens.json")
	nodeURL := flag.String("node", "", "chain node URL (ws:// or http://)")
	reserveHex := flag.String("reserve-token", "", "reserve token address used as the graph's start/end node")
	flag.Parse()

	logger := applog.NewJSON(os.Stdout, slog.LevelWarn)

	if *nodeURL == "" || *reserveHex == "" {
		fmt.Println(red + "both -node and -reserve-token are required" + reset)
		os.Exit(1)
	}
	reserveToken := common.HexToAddress(*reserveHex)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	catalogs, err := config.LoadCatalogs(*catalogDir)
	if err != nil {
		fmt.Printf(red+"[ERROR] loading catalogs: %v%s\n", err, reset)
		os.Exit(1)
	}

	chain, err := chainclient.Dial(ctx, *nodeURL, chainclient.WithLogger(logger))
	if err != nil {
		fmt.Printf(red+"[ERROR] dialing node: %v%s\n", err, reset)
		os.Exit(1)
	}
	defer chain.Close()

	reg := registry.New()
	for _, pc := range catalogs.Protocols {
		proto := protocol.New(common.HexToAddress(pc.Factory), common.HexToAddress(pc.Router), pc.FeeBps, pc.Name)
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

	discoverAllPairs(ctx, reg, chain)
	refreshAllReserves(ctx, reg, chain)

	fmt.Println(green + "routecli ready — " + reset + fmt.Sprintf("%d pairs loaded", len(reg.AllPairs())))
	runConsole(ctx, reg, chain, reserveToken)
}

func discoverAllPairs(ctx context.Context, reg *registry.Registry, chain *chainclient.Client) {
	for _, proto := range reg.View().Protocols {
		count, err := chain.AllPairsLength(ctx, proto.Factory)
		if err != nil {
			fmt.Printf(yellow+"[WARN] discovering pairs for %s: %v%s\n", proto.Factory, err, reset)
			continue
		}
		pairs, err := chain.PairAddressRange(ctx, proto.Factory, 0, count)
		if err != nil {
			fmt.Printf(yellow+"[WARN] reading pair range for %s: %v%s\n", proto.Factory, err, reset)
			continue
		}
		for _, addr := range pairs {
			token0, token1, err := chain.PoolTokens(ctx, addr)
			if err != nil {
				continue
			}
			pr, err := pair.New(proto.Factory, addr, token0, token1, num.Zero(), num.Zero(), proto.FeeBps)
			if err != nil {
				continue
			}
			proto.AddPair(pr)
		}
	}
}

func refreshAllReserves(ctx context.Context, reg *registry.Registry, chain *chainclient.Client) {
	for _, proto := range reg.View().Protocols {
		if err := proto.RefreshReserves(ctx, chain); err != nil {
			fmt.Printf(yellow+"[WARN] refreshing reserves for %s: %v%s\n", proto.Factory, err, reset)
		}
	}
}

func runConsole(ctx context.Context, reg *registry.Registry, chain *chainclient.Client, reserveToken common.Address) {
	reader := bufio.NewReader(os.Stdin)

	for {
		if ctx.Err() != nil {
			return
		}
		printMenu()
		fmt.Print(bold + "Enter selection: " + reset)
		input, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		input = strings.TrimSpace(input)
		if !handleCommand(ctx, input, reg, chain, reserveToken, reader) {
			return
		}
		fmt.Println("\n" + gray + "[Press Enter to continue]" + reset)
		reader.ReadString('\n')
	}
}

func printMenu() {
	fmt.Print("\033[H\033[2J")
	fmt.Println(bold + "ROUTE CLI" + reset)
	fmt.Println(gray + "-----------------------------------" + reset)
	fmt.Printf(" %s1.%s Protocol summary\n", cyan, reset)
	fmt.Printf(" %s2.%s Find pair %s(by pool address)%s\n", cyan, reset, gray, reset)
	fmt.Printf(" %s3.%s Find pairs %s(by token address)%s\n", cyan, reset, gray, reset)
	fmt.Printf(" %s4.%s Watch pair %s(poll reserves)%s\n", cyan, reset, gray, reset)
	fmt.Printf(" %s5.%s Route %s(best output path)%s\n", cyan, reset, gray, reset)
	fmt.Printf(" %s6.%s Refresh reserves\n", cyan, reset)
	fmt.Println(gray + "-----------------------------------" + reset)
	fmt.Printf(" %sq.%s Quit\n", red, reset)
	fmt.Println("")
}

func handleCommand(ctx context.Context, input string, reg *registry.Registry, chain *chainclient.Client, reserveToken common.Address, reader *bufio.Reader) bool {
	switch input {
	case "1":
		printProtocolSummary(reg)
	case "2":
		findPair(reg, reader)
	case "3":
		findPairsByToken(reg, reader)
	case "4":
		watchPair(ctx, reg, chain, reader)
	case "5":
		findRoute(reg, reserveToken, reader)
	case "6":
		refreshAllReserves(ctx, reg, chain)
		fmt.Println(green + "reserves refreshed" + reset)
	case "q":
		fmt.Println(yellow + "exiting..." + reset)
		return false
	default:
		fmt.Println(red + "unknown command" + reset)
	}
	return true
}

func printProtocolSummary(reg *registry.Registry) {
	header("PROTOCOL SUMMARY")
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 4, ' ', 0)
	fmt.Fprintln(w, "FACTORY\tPAIRS\t")
	fmt.Fprintln(w, "-------\t-----\t")
	for factory, proto := range reg.View().Protocols {
		fmt.Fprintf(w, "%s\t%d\t\n", factory, len(proto.Pairs()))
	}
	fmt.Fprintf(w, "custom\t%d\t\n", len(reg.View().Custom))
	w.Flush()
}

func readAddress(reader *bufio.Reader, prompt string) (common.Address, bool) {
	fmt.Print(bold + prompt + reset)
	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(input)
	if input == "" || !common.IsHexAddress(input) {
		fmt.Println(red + "invalid address" + reset)
		return common.Address{}, false
	}
	return common.HexToAddress(input), true
}

func findPair(reg *registry.Registry, reader *bufio.Reader) {
	pool, ok := readAddress(reader, "[Find Pair] Enter pool address: ")
	if !ok {
		return
	}
	for _, p := range reg.AllPairs() {
		if p.Address == pool {
			printPair(p)
			return
		}
	}
	fmt.Println(red + "[NOT FOUND] no pair at that address" + reset)
}

func findPairsByToken(reg *registry.Registry, reader *bufio.Reader) {
	token, ok := readAddress(reader, "[Find Pairs] Enter token address: ")
	if !ok {
		return
	}
	header("PAIRS FOR " + token.String())
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 4, ' ', 0)
	fmt.Fprintln(w, "POOL\tTOKEN0\tTOKEN1\tFEE BPS\t")
	found := 0
	for _, p := range reg.AllPairs() {
		if p.Contains(token) {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t\n", p.Address, p.Token0, p.Token1, p.FeeBps)
			found++
		}
	}
	w.Flush()
	if found == 0 {
		fmt.Println(yellow + "[INFO] no pairs found for that token" + reset)
	}
}

func printPair(p *pair.Pair) {
	header("PAIR " + p.Address.String())
	fmt.Printf(" %sFactory:%s  %s\n", gray, reset, p.Factory)
	fmt.Printf(" %sToken0:%s   %s\n", gray, reset, p.Token0)
	fmt.Printf(" %sToken1:%s   %s\n", gray, reset, p.Token1)
	fmt.Printf(" %sReserve0:%s %s\n", gray, reset, p.Reserve0.ToBig().String())
	fmt.Printf(" %sReserve1:%s %s\n", gray, reset, p.Reserve1.ToBig().String())
	fmt.Printf(" %sFee bps:%s  %d\n", gray, reset, p.FeeBps)
}

func watchPair(ctx context.Context, reg *registry.Registry, chain *chainclient.Client, reader *bufio.Reader) {
	pool, ok := readAddress(reader, "[Watch Pair] Enter pool address: ")
	if !ok {
		return
	}
	var target *pair.Pair
	for _, p := range reg.AllPairs() {
		if p.Address == pool {
			target = p
			break
		}
	}
	if target == nil {
		fmt.Println(red + "[NOT FOUND] no pair at that address" + reset)
		return
	}

	fmt.Println(green + "polling reserves every second, press Enter to stop..." + reset)
	stop := make(chan struct{})
	go func() {
		reader.ReadString('\n')
		close(stop)
	}()

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			reserves, err := chain.BatchGetReserves(ctx, []common.Address{pool})
			if err != nil {
				fmt.Printf(yellow+"[WARN] reserve read failed: %v%s\n", err, reset)
				continue
			}
			r, ok := reserves[pool]
			if !ok {
				continue
			}
			fmt.Print("\033[H\033[2J")
			fmt.Printf(bold+"--- LIVE: %s ---\n"+reset, pool)
			fmt.Printf(" reserve0: %s\n reserve1: %s\n", r[0].ToBig().String(), r[1].ToBig().String())
			fmt.Println(gray + "Press ENTER to return to menu." + reset)
		}
	}
}

func findRoute(reg *registry.Registry, reserveToken common.Address, reader *bufio.Reader) {
	header("ROUTE FINDER")

	fmt.Print(bold + "Enter input amount (raw units): " + reset)
	amountInput, _ := reader.ReadString('\n')
	amountInput = strings.TrimSpace(amountInput)
	amountBig, ok := new(big.Int).SetString(amountInput, 10)
	if !ok {
		fmt.Println(red + "invalid amount" + reset)
		return
	}
	amountIn := num.FromBig(amountBig)

	g := routegraph.Build(reg.AllPairs(), reserveToken)
	path, amountOut, err := pathsearch.Search(g, resolver{reg: reg}, amountIn)
	if err != nil {
		fmt.Printf(red+"[ERROR] pathfinding failed: %v%s\n", err, reset)
		return
	}

	fmt.Printf("%sBest output:%s %s\n\n", bold, reset, amountOut.ToBig().String())
	fmt.Println(bold + "Route:" + reset)
	for i, lookup := range path.Lookups {
		fmt.Printf(" [Step %d] %s%-8s%s -> %s%-8s%s via pool %s\n",
			i+1, cyan, path.Tokens[i], reset, cyan, path.Tokens[i+1], reset, lookup.Pool)
	}
}
