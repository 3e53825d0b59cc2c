// Package config loads the engine's static JSON catalogs
// (protocols.json, custom_pairs.json, router_mappings.json,
// bad_tokens.json) and its environment-variable settings into an
// EngineConfig, per spec §6/§4.12.
//
// Environment loading follows the kelseyhightower/envconfig pattern
// seen in pack repo blinklabs-io-shai rather than hand-rolled
// os.Getenv chains; JSON catalog loading follows the teacher's
// streams/jsonrpc package's plain encoding/json decoding style.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/kelseyhightower/envconfig"

	"github.com/dibbydoda/arbbot-go/internal/arberr"
	"github.com/dibbydoda/arbbot-go/internal/domain"
)

// EngineConfig is the typed environment-variable surface spec §6 names.
type EngineConfig struct {
	NodeURL           string   `envconfig:"URL" required:"true"`
	TradedToken       string   `envconfig:"TRADED" required:"true"`
	ArbitrageContract string   `envconfig:"ARBITRAGE_CONTRACT" required:"true"`
	TxAttempts        int      `envconfig:"TX_ATTEMPTS" default:"3"`
	BalanceReserve    string   `envconfig:"BALANCE_RESERVE" default:"0"`
	MainKey           string   `envconfig:"KEYMAIN" required:"true"`
	BackupKeys        []string `envconfig:"-"`
}

// LoadEnv populates an EngineConfig from the process environment,
// including the variable-length KEY1..KEYN backup-key list envconfig's
// struct tags cannot express directly.
func LoadEnv() (*EngineConfig, error) {
	var cfg EngineConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("%w: loading environment config: %v", arberr.ErrConfig, err)
	}
	for i := 1; ; i++ {
		key, ok := os.LookupEnv(fmt.Sprintf("KEY%d", i))
		if !ok {
			break
		}
		cfg.BackupKeys = append(cfg.BackupKeys, key)
	}
	return &cfg, nil
}

// ProtocolConfig describes one AMM deployment as protocols.json lists it.
type ProtocolConfig struct {
	Name       string `json:"name"`
	Factory    string `json:"factory_addr"`
	Router     string `json:"router_address"`
	FeeBps     uint32 `json:"swap_fee"`
	FactoryABI string `json:"factory_abi"`
	RouterABI  string `json:"router_abi"`
}

// CustomPairEntry is one manually-added pool from custom_pairs.json,
// participating in the graph without belonging to any factory (spec
// §6's "custom pairs" escape hatch).
type CustomPairEntry struct {
	Address  string `json:"address"`
	Token0   string `json:"token0"`
	Token1   string `json:"token1"`
	Reserve0 string `json:"reserve0"`
	Reserve1 string `json:"reserve1"`
	FeeBps   uint32 `json:"fee"`
}

// routerFunctionKind translates router_mappings.json's string kind into
// the typed domain.RouterFunctionKind tradedecoder consumes.
func routerFunctionKind(name, kind string) (domain.RouterFunctionKind, error) {
	switch kind {
	case "ExactEth":
		return domain.RouterExactEth, nil
	case "ExactOther":
		return domain.RouterExactOther, nil
	case "EthForExact":
		return domain.RouterEthForExact, nil
	case "OtherForExact":
		return domain.RouterOtherForExact, nil
	default:
		return 0, fmt.Errorf("%w: unknown router function kind %q for %s", arberr.ErrConfig, kind, name)
	}
}

// Catalogs bundles every loaded JSON catalog. RouterMappings mirrors
// router_mappings.json's function_name -> kind-string map directly.
type Catalogs struct {
	Protocols      []ProtocolConfig
	CustomPairs    []CustomPairEntry
	RouterMappings map[string]string
	BadTokens      []string
}

// FunctionKinds translates every entry of RouterMappings into its typed
// domain.RouterFunctionKind, keyed by function name.
func (c *Catalogs) FunctionKinds() (map[string]domain.RouterFunctionKind, error) {
	out := make(map[string]domain.RouterFunctionKind, len(c.RouterMappings))
	for name, kind := range c.RouterMappings {
		fk, err := routerFunctionKind(name, kind)
		if err != nil {
			return nil, err
		}
		out[name] = fk
	}
	return out, nil
}

// LoadCatalogs reads the four named JSON files from dir.
func LoadCatalogs(dir string) (*Catalogs, error) {
	var c Catalogs
	if err := loadJSON(dir+"/protocols.json", &c.Protocols); err != nil {
		return nil, err
	}
	if err := loadJSON(dir+"/custom_pairs.json", &c.CustomPairs); err != nil {
		return nil, err
	}
	if err := loadJSON(dir+"/router_mappings.json", &c.RouterMappings); err != nil {
		return nil, err
	}
	if err := loadJSON(dir+"/bad_tokens.json", &c.BadTokens); err != nil {
		return nil, err
	}
	return &c, nil
}

// BadTokenAddresses converts the bad-token hex list to common.Address.
func (c *Catalogs) BadTokenAddresses() []common.Address {
	out := make([]common.Address, len(c.BadTokens))
	for i, hex := range c.BadTokens {
		out[i] = common.HexToAddress(hex)
	}
	return out
}

func loadJSON(path string, target interface{}) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: reading %s: %v", arberr.ErrConfig, path, err)
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("%w: parsing %s: %v", arberr.ErrConfig, path, err)
	}
	return nil
}
