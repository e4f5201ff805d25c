package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/coldbell/restake/backend/internal/runtime"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Store journals runtime receipts and pool snapshots in Postgres. Queries
// are written with ? placeholders and rebound to $n before they reach pgx.
type Store struct {
	db *DB
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rebound struct {
	conn execer
}

func (r rebound) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return r.conn.ExecContext(ctx, rebindPostgresPlaceholders(query), args...)
}

func (r rebound) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return r.conn.QueryContext(ctx, rebindPostgresPlaceholders(query), args...)
}

func (r rebound) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return r.conn.QueryRowContext(ctx, rebindPostgresPlaceholders(query), args...)
}

type DB struct {
	rebound
	pool *sql.DB
}

func newDB(pool *sql.DB) *DB {
	return &DB{rebound: rebound{conn: pool}, pool: pool}
}

func (db *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (*Tx, error) {
	tx, err := db.pool.BeginTx(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &Tx{rebound: rebound{conn: tx}, tx: tx}, nil
}

func (db *DB) Close() error {
	return db.pool.Close()
}

type Tx struct {
	rebound
	tx *sql.Tx
}

func (t *Tx) Commit() error   { return t.tx.Commit() }
func (t *Tx) Rollback() error { return t.tx.Rollback() }

// rebindPostgresPlaceholders numbers every ? outside a quoted literal. A
// doubled quote inside a literal toggles twice and so stays inside it.
func rebindPostgresPlaceholders(query string) string {
	if !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n, quoted := 0, false
	for _, r := range query {
		switch {
		case r == '\'':
			quoted = !quoted
		case r == '?' && !quoted:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func New(dbDSN string) (*Store, error) {
	db, err := sql.Open("pgx", dbDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetConnMaxIdleTime(30 * time.Second)
	db.SetMaxIdleConns(4)
	db.SetMaxOpenConns(16)

	pingCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	store := &Store{db: newDB(db)}
	if err := store.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) WithTx(ctx context.Context, fn func(*Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) migrate(ctx context.Context) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS sync_state (
			id BIGINT PRIMARY KEY CHECK (id = 1),
			last_slot BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS transactions (
			signature TEXT PRIMARY KEY,
			slot BIGINT NOT NULL,
			instruction TEXT NOT NULL,
			programs TEXT NOT NULL,
			signers TEXT NOT NULL,
			success INTEGER NOT NULL,
			err TEXT NOT NULL,
			logs_json TEXT NOT NULL,
			events_json TEXT NOT NULL,
			executed_at BIGINT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_slot ON transactions(slot DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_instruction_time ON transactions(instruction, executed_at DESC);`,
		`CREATE TABLE IF NOT EXISTS pools (
			pubkey TEXT PRIMARY KEY,
			variant TEXT NOT NULL,
			input_mint TEXT NOT NULL,
			output_mint TEXT NOT NULL,
			restaked_mint TEXT NOT NULL,
			delegate_authority TEXT NOT NULL,
			slot BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS pool_snapshots (
			id BIGSERIAL PRIMARY KEY,
			pool TEXT NOT NULL,
			input_vault TEXT NOT NULL,
			restaked_vault TEXT NOT NULL,
			avs_vault TEXT NOT NULL,
			output_supply TEXT NOT NULL,
			slot BIGINT NOT NULL,
			recorded_at BIGINT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_pool_snapshots_pool_time ON pool_snapshots(pool, recorded_at DESC);`,
	}

	for _, query := range ddl {
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

func (s *Store) UpsertSyncStateTx(ctx context.Context, tx *Tx, slot uint64) error {
	now := time.Now().Unix()
	_, err := tx.ExecContext(ctx, `
		INSERT INTO sync_state (id, last_slot, updated_at)
		VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			last_slot = GREATEST(sync_state.last_slot, excluded.last_slot),
			updated_at = excluded.updated_at
	`, int64(slot), now)
	return err
}

func (s *Store) LastSlot(ctx context.Context) (uint64, error) {
	var slot int64
	err := s.db.QueryRowContext(ctx, `SELECT last_slot FROM sync_state WHERE id = 1`).Scan(&slot)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return uint64(slot), nil
}

// TransactionRow is the flattened form of a receipt as journaled.
type TransactionRow struct {
	Signature   string
	Slot        uint64
	Instruction string
	Programs    string
	Signers     string
	Success     bool
	Err         string
	LogsJSON    string
	EventsJSON  string
	ExecutedAt  int64
}

// transactionRow flattens a receipt. The instruction column carries the
// first emitted event name, or "failed" when nothing committed.
func transactionRow(receipt runtime.Receipt) (TransactionRow, error) {
	logs, err := json.Marshal(receipt.Logs)
	if err != nil {
		return TransactionRow{}, err
	}
	events, err := json.Marshal(receipt.Events)
	if err != nil {
		return TransactionRow{}, err
	}
	instruction := "failed"
	if receipt.Succeeded() {
		instruction = "unknown"
		if len(receipt.Events) > 0 {
			instruction = receipt.Events[0].Name
		}
	}
	return TransactionRow{
		Signature:   receipt.Signature.String(),
		Slot:        receipt.Slot,
		Instruction: instruction,
		Programs:    strings.Join(receipt.Programs, ","),
		Signers:     strings.Join(receipt.Signers, ","),
		Success:     receipt.Succeeded(),
		Err:         receipt.Err,
		LogsJSON:    string(logs),
		EventsJSON:  string(events),
		ExecutedAt:  receipt.Timestamp.Unix(),
	}, nil
}

func (s *Store) InsertTransactionTx(ctx context.Context, tx *Tx, receipt runtime.Receipt) error {
	row, err := transactionRow(receipt)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO transactions (
			signature, slot, instruction, programs, signers, success, err, logs_json, events_json, executed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(signature) DO NOTHING
	`,
		row.Signature,
		int64(row.Slot),
		row.Instruction,
		row.Programs,
		row.Signers,
		boolToInt(row.Success),
		row.Err,
		row.LogsJSON,
		row.EventsJSON,
		row.ExecutedAt,
	)
	return err
}

// RecordReceipt journals one receipt and advances the sync slot when the
// transaction committed.
func (s *Store) RecordReceipt(ctx context.Context, receipt runtime.Receipt) error {
	return s.WithTx(ctx, func(tx *Tx) error {
		if err := s.InsertTransactionTx(ctx, tx, receipt); err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}
		if !receipt.Succeeded() {
			return nil
		}
		return s.UpsertSyncStateTx(ctx, tx, receipt.Slot)
	})
}

// PoolSnapshot is the state of one pool at a slot. Amounts are raw base
// units.
type PoolSnapshot struct {
	Pool              string
	Variant           string
	InputMint         string
	OutputMint        string
	RestakedMint      string
	DelegateAuthority string
	InputVault        uint64
	RestakedVault     uint64
	AVSVault          uint64
	OutputSupply      uint64
	Slot              uint64
}

func (s *Store) UpsertPoolTx(ctx context.Context, tx *Tx, snap PoolSnapshot) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO pools (
			pubkey, variant, input_mint, output_mint, restaked_mint, delegate_authority, slot, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(pubkey) DO UPDATE SET
			delegate_authority = excluded.delegate_authority,
			slot = excluded.slot,
			updated_at = excluded.updated_at
	`,
		snap.Pool,
		snap.Variant,
		snap.InputMint,
		snap.OutputMint,
		snap.RestakedMint,
		snap.DelegateAuthority,
		int64(snap.Slot),
		time.Now().Unix(),
	)
	return err
}

func (s *Store) InsertPoolSnapshotTx(ctx context.Context, tx *Tx, snap PoolSnapshot) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO pool_snapshots (
			pool, input_vault, restaked_vault, avs_vault, output_supply, slot, recorded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		snap.Pool,
		strconv.FormatUint(snap.InputVault, 10),
		strconv.FormatUint(snap.RestakedVault, 10),
		strconv.FormatUint(snap.AVSVault, 10),
		strconv.FormatUint(snap.OutputSupply, 10),
		int64(snap.Slot),
		time.Now().Unix(),
	)
	return err
}

func (s *Store) RecordPoolSnapshots(ctx context.Context, snaps []PoolSnapshot) error {
	if len(snaps) == 0 {
		return nil
	}
	return s.WithTx(ctx, func(tx *Tx) error {
		for _, snap := range snaps {
			if err := s.UpsertPoolTx(ctx, tx, snap); err != nil {
				return fmt.Errorf("upsert pool %s: %w", snap.Pool, err)
			}
			if err := s.InsertPoolSnapshotTx(ctx, tx, snap); err != nil {
				return fmt.Errorf("insert snapshot %s: %w", snap.Pool, err)
			}
		}
		return nil
	})
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
