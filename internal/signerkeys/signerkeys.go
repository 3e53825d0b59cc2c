// Package signerkeys implements the Signer collaborator spec.md leaves
// external: turning an unsigned transaction into a signed, broadcastable
// one for each configured backup account.
//
// Grounded on the ecdsa.PrivateKey + types.SignTx pattern from
// pulkyeet-mev-searcher's internal/arbitrage/executor.go
// (SimulateArbitrage signs with crypto.GenerateKey/types.SignTx over
// types.LatestSignerForChainID), retargeted from one throwaway key to
// the KEYMAIN/KEY1..KEYN backup-account pool spec.md's Executor needs
// for parallel submission.
package signerkeys

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/dibbydoda/arbbot-go/internal/arberr"
)

// Account is one usable signing key: its address plus the key material
// needed to sign.
type Account struct {
	Address common.Address
	key     *ecdsa.PrivateKey
}

// SignTx signs tx for this account against the given chain id, using
// an EIP-1559 signer for dynamic-fee transactions and the legacy
// signer otherwise, matching whatever tx.Type() already is.
func (a Account) SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	signer := types.LatestSignerForChainID(chainID)
	signed, err := types.SignTx(tx, signer, a.key)
	if err != nil {
		return nil, fmt.Errorf("%w: signing tx with %s: %v", arberr.ErrConfig, a.Address, err)
	}
	return signed, nil
}

// Pool is the ordered set of backup accounts available for parallel
// submission: KEYMAIN first, then KEY1..KEYN in the order loaded.
type Pool struct {
	accounts []Account
}

// NewPool builds a signing pool from raw hex private keys (no 0x
// prefix required), in the order they should be tried.
func NewPool(hexKeys []string) (*Pool, error) {
	if len(hexKeys) == 0 {
		return nil, fmt.Errorf("%w: no signing keys configured", arberr.ErrConfig)
	}
	accounts := make([]Account, 0, len(hexKeys))
	for i, hexKey := range hexKeys {
		key, err := crypto.HexToECDSA(trimHexPrefix(hexKey))
		if err != nil {
			return nil, fmt.Errorf("%w: parsing signing key %d: %v", arberr.ErrConfig, i, err)
		}
		accounts = append(accounts, Account{
			Address: crypto.PubkeyToAddress(key.PublicKey),
			key:     key,
		})
	}
	return &Pool{accounts: accounts}, nil
}

// Accounts returns the pool in priority order. The first account is
// the primary (KEYMAIN); the rest are backups. Every account signs its
// own parallel broadcast attempt at its own nonce, all with the same gas.
func (p *Pool) Accounts() []Account { return p.accounts }

// Primary returns the first configured account (KEYMAIN).
func (p *Pool) Primary() Account { return p.accounts[0] }

// Len reports how many accounts are available for parallel submission.
func (p *Pool) Len() int { return len(p.accounts) }

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}
