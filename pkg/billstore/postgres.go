// Copyright 2025 Certen Protocol
//
// Postgres-backed BillChainStore, adapted from the connection-pooling and
// embedded-migration idiom used throughout this codebase's database layer.
package billstore

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"log"
	"sort"
	"strings"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/bitcredit/ebillchain/pkg/billblock"
	"github.com/bitcredit/ebillchain/pkg/billchain"
	"github.com/bitcredit/ebillchain/pkg/billerrors"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresConfig is the subset of pkg/config.Config the chain store needs;
// kept narrow so this package does not import pkg/config back.
type PostgresConfig struct {
	DatabaseURL             string
	DatabaseMaxOpenConns    int
	DatabaseMaxIdleConns    int
	DatabaseConnMaxLifetime time.Duration
}

// PostgresChainStore is a BillChainStore backed by Postgres.
type PostgresChainStore struct {
	db     *sql.DB
	logger *log.Logger
}

// PostgresOption is a functional option for configuring the store.
type PostgresOption func(*PostgresChainStore)

// WithLogger sets a custom logger for the store.
func WithLogger(logger *log.Logger) PostgresOption {
	return func(s *PostgresChainStore) { s.logger = logger }
}

// NewPostgresChainStore opens a pooled connection and runs embedded
// migrations.
func NewPostgresChainStore(cfg PostgresConfig, opts ...PostgresOption) (*PostgresChainStore, error) {
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("billstore: database URL cannot be empty")
	}

	store := &PostgresChainStore{
		logger: log.New(log.Writer(), "[BillChainStore] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(store)
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("billstore: open database: %w", err)
	}

	if cfg.DatabaseMaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.DatabaseMaxOpenConns)
	}
	if cfg.DatabaseMaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.DatabaseMaxIdleConns)
	}
	if cfg.DatabaseConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.DatabaseConnMaxLifetime)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("billstore: ping database: %w", err)
	}

	store.db = db
	if err := store.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("billstore: migrate: %w", err)
	}

	store.logger.Printf("connected to bill chain store")
	return store, nil
}

func (s *PostgresChainStore) migrate(ctx context.Context) error {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		content, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
	}
	return nil
}

// Close closes the underlying connection pool.
func (s *PostgresChainStore) Close() error {
	if s.db != nil {
		s.logger.Println("closing bill chain store")
		return s.db.Close()
	}
	return nil
}

// AddBlock inserts block only if it links to the stored tail (or is block 1
// of a new chain), inside a transaction so the check-then-insert is atomic
// — this is the store-level half of the CAS described in §5.
func (s *PostgresChainStore) AddBlock(ctx context.Context, billID string, block billblock.Block) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return billerrors.Wrap(billerrors.KindStoreIO, err)
	}
	defer tx.Rollback()

	var tailHash string
	var tailID uint64
	err = tx.QueryRowContext(ctx,
		`SELECT hash, id FROM bill_blocks WHERE bill_id=$1 ORDER BY id DESC LIMIT 1`, billID,
	).Scan(&tailHash, &tailID)

	switch {
	case err == sql.ErrNoRows:
		if block.ID != 1 {
			return billerrors.New(billerrors.KindBlockLinkBroken)
		}
	case err != nil:
		return billerrors.Wrap(billerrors.KindStoreIO, err)
	default:
		if block.PreviousHash != tailHash || block.ID != tailID+1 {
			return billerrors.New(billerrors.KindBlockLinkBroken)
		}
	}

	raw, err := json.Marshal(block)
	if err != nil {
		return fmt.Errorf("billstore: marshal block: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO bill_blocks (bill_id, id, hash, previous_hash, op_code, timestamp, block)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		billID, block.ID, block.Hash, block.PreviousHash, string(block.OpCode), block.Timestamp, raw,
	)
	if err != nil {
		return billerrors.Wrap(billerrors.KindStoreIO, err)
	}
	if err := tx.Commit(); err != nil {
		return billerrors.Wrap(billerrors.KindStoreIO, err)
	}
	return nil
}

func (s *PostgresChainStore) GetChain(ctx context.Context, billID string) (*billchain.Chain, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT block FROM bill_blocks WHERE bill_id=$1 ORDER BY id ASC`, billID)
	if err != nil {
		return nil, billerrors.Wrap(billerrors.KindStoreIO, err)
	}
	defer rows.Close()

	var blocks []billblock.Block
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, billerrors.Wrap(billerrors.KindStoreIO, err)
		}
		var b billblock.Block
		if err := json.Unmarshal(raw, &b); err != nil {
			return nil, fmt.Errorf("billstore: unmarshal block: %w", err)
		}
		blocks = append(blocks, b)
	}
	if len(blocks) == 0 {
		return nil, billerrors.New(billerrors.KindNotFound)
	}
	return billchain.NewChain(billID, blocks)
}

func (s *PostgresChainStore) AllBillIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT bill_id FROM bill_blocks`)
	if err != nil {
		return nil, billerrors.Wrap(billerrors.KindStoreIO, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, billerrors.Wrap(billerrors.KindStoreIO, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
