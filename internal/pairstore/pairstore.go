// Package pairstore implements protocol.PairStore: the persisted
// pairs(protocol, address, token0, token1, excluded) table plus the token
// blacklist it is recomputed from, per spec §4.3/§4.11/§6.
//
// Grounded on svyatogor45-abitrage's internal/repository/
// blacklist_repository.go (parameterized queries over database/sql,
// unique-violation detection via the error string), retargeted from a symbol blacklist table to the pairs table
// spec §6 names, and switched from the teacher's implicit postgres
// driver import to lib/pq explicitly since spec.md's domain carries
// lib/pq as its SQL driver of record.
package pairstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	_ "github.com/lib/pq"

	"github.com/dibbydoda/arbbot-go/internal/arberr"
	"github.com/dibbydoda/arbbot-go/internal/protocol"
)

// Store is a Postgres-backed implementation of protocol.PairStore,
// backing both the append-only pairs table and the token blacklist.
type Store struct {
	db *sql.DB
}

// Open connects to a Postgres database using a lib/pq DSN.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: opening pair store: %v", arberr.ErrConfig, err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("%w: pinging pair store: %v", arberr.ErrConfig, err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error { return s.db.Close() }

// KnownPairCount returns how many pools are already persisted for
// factory, used to detect newly-deployed pairs by comparing against
// on-chain allPairsLength per spec §4.3.
func (s *Store) KnownPairCount(ctx context.Context, factory common.Address) (uint64, error) {
	const query = `SELECT COUNT(*) FROM pairs WHERE protocol = $1`
	var count uint64
	if err := s.db.QueryRowContext(ctx, query, factory.Hex()).Scan(&count); err != nil {
		return 0, fmt.Errorf("%w: counting known pairs for %s: %v", arberr.ErrRPC, factory, err)
	}
	return count, nil
}

// RecordPair appends a newly discovered pair. The table is append-only
// for new pairs per spec §6; a duplicate insert (already recorded by a
// concurrent discovery run) is not an error.
func (s *Store) RecordPair(ctx context.Context, factory, pool, token0, token1 common.Address) error {
	const query = `
		INSERT INTO pairs (protocol, address, token0, token1, excluded)
		VALUES ($1, $2, $3, $4, false)
		ON CONFLICT (protocol, address) DO NOTHING`
	_, err := s.db.ExecContext(ctx, query, factory.Hex(), pool.Hex(), token0.Hex(), token1.Hex())
	if err != nil && !isUniqueViolation(err) {
		return fmt.Errorf("%w: recording pair %s: %v", arberr.ErrRPC, pool, err)
	}
	return nil
}

// IsBlacklisted reports whether token is currently in the bad-token list.
func (s *Store) IsBlacklisted(ctx context.Context, token common.Address) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM token_blacklist WHERE token = $1)`
	var exists bool
	if err := s.db.QueryRowContext(ctx, query, token.Hex()).Scan(&exists); err != nil {
		return false, fmt.Errorf("%w: checking blacklist for %s: %v", arberr.ErrRPC, token, err)
	}
	return exists, nil
}

// SetExcluded rewrites one pair row's excluded flag directly, used
// right after discovery records it (spec §4.3: "excluded is rewritten
// each refresh").
func (s *Store) SetExcluded(ctx context.Context, factory, pool common.Address, excluded bool) error {
	const query = `UPDATE pairs SET excluded = $3 WHERE protocol = $1 AND address = $2`
	_, err := s.db.ExecContext(ctx, query, factory.Hex(), pool.Hex(), excluded)
	if err != nil {
		return fmt.Errorf("%w: setting excluded for %s: %v", arberr.ErrRPC, pool, err)
	}
	return nil
}

// RefreshBlacklist implements spec §4.3's idempotent recompute: reset
// every row for factory to included, then mark excluded every row
// whose token0 or token1 is currently blacklisted.
func (s *Store) RefreshBlacklist(ctx context.Context, factory common.Address) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: starting blacklist refresh: %v", arberr.ErrRPC, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE pairs SET excluded = false WHERE protocol = $1`, factory.Hex()); err != nil {
		return fmt.Errorf("%w: resetting excluded for %s: %v", arberr.ErrRPC, factory, err)
	}

	const query = `
		UPDATE pairs SET excluded = true
		WHERE protocol = $1
		AND (token0 IN (SELECT token FROM token_blacklist) OR token1 IN (SELECT token FROM token_blacklist))`
	if _, err := tx.ExecContext(ctx, query, factory.Hex()); err != nil {
		return fmt.Errorf("%w: recomputing excluded for %s: %v", arberr.ErrRPC, factory, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: committing blacklist refresh: %v", arberr.ErrRPC, err)
	}
	return nil
}

// SeedBlacklist loads bad_tokens.json's contents into the token
// blacklist table, used once at startup.
func (s *Store) SeedBlacklist(ctx context.Context, tokens []common.Address) error {
	for _, token := range tokens {
		const query = `
			INSERT INTO token_blacklist (token) VALUES ($1)
			ON CONFLICT (token) DO NOTHING`
		if _, err := s.db.ExecContext(ctx, query, token.Hex()); err != nil && !isUniqueViolation(err) {
			return fmt.Errorf("%w: seeding blacklist token %s: %v", arberr.ErrRPC, token, err)
		}
	}
	return nil
}

// PairsForFactory returns every non-excluded pool persisted for
// factory, including the token identities protocol.LoadPersisted needs
// to reconstruct a pair.Pair, used to rebuild the in-memory registry at
// startup.
func (s *Store) PairsForFactory(ctx context.Context, factory common.Address) ([]protocol.LoadedPair, error) {
	const query = `SELECT address, token0, token1 FROM pairs WHERE protocol = $1 AND excluded = false`
	rows, err := s.db.QueryContext(ctx, query, factory.Hex())
	if err != nil {
		return nil, fmt.Errorf("%w: loading pairs for %s: %v", arberr.ErrRPC, factory, err)
	}
	defer rows.Close()

	var out []protocol.LoadedPair
	for rows.Next() {
		var pool, token0, token1 string
		if err := rows.Scan(&pool, &token0, &token1); err != nil {
			return nil, fmt.Errorf("%w: scanning pair row: %v", arberr.ErrRPC, err)
		}
		out = append(out, protocol.LoadedPair{
			Pool:   common.HexToAddress(pool),
			Token0: common.HexToAddress(token0),
			Token1: common.HexToAddress(token1),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating pairs: %v", arberr.ErrRPC, err)
	}
	return out, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "23505")
}
