package store

import (
	"context"
	"fmt"
	"strings"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 200
)

type TransactionFilter struct {
	Signer      string
	Instruction string
	Success     *bool
	Limit       int
	Offset      int
}

type TransactionRecord struct {
	Signature   string   `json:"signature"`
	Slot        uint64   `json:"slot"`
	Instruction string   `json:"instruction"`
	Programs    []string `json:"programs"`
	Signers     []string `json:"signers"`
	Success     bool     `json:"success"`
	Err         string   `json:"err,omitempty"`
	EventsJSON  string   `json:"-"`
	ExecutedAt  int64    `json:"executed_at"`
}

type SnapshotFilter struct {
	Pool   string
	Limit  int
	Offset int
}

type SnapshotRecord struct {
	ID            int64  `json:"id"`
	Pool          string `json:"pool"`
	InputVault    string `json:"input_vault"`
	RestakedVault string `json:"restaked_vault"`
	AVSVault      string `json:"avs_vault"`
	OutputSupply  string `json:"output_supply"`
	Slot          uint64 `json:"slot"`
	RecordedAt    int64  `json:"recorded_at"`
}

func (s *Store) ListTransactions(ctx context.Context, filter TransactionFilter) ([]TransactionRecord, int, int, error) {
	limit, offset := normalizePagination(filter.Limit, filter.Offset)
	clauses := []string{"1 = 1"}
	args := make([]any, 0, 5)

	if filter.Signer != "" {
		clauses = append(clauses, "(',' || signers || ',') LIKE ?")
		args = append(args, "%,"+filter.Signer+",%")
	}
	if filter.Instruction != "" {
		clauses = append(clauses, "instruction = ?")
		args = append(args, filter.Instruction)
	}
	if filter.Success != nil {
		clauses = append(clauses, "success = ?")
		args = append(args, boolToInt(*filter.Success))
	}

	query := fmt.Sprintf(`
		SELECT
			signature,
			slot,
			instruction,
			programs,
			signers,
			success,
			err,
			events_json,
			executed_at
		FROM transactions
		WHERE %s
		ORDER BY executed_at DESC, slot DESC
		LIMIT ? OFFSET ?
	`, strings.Join(clauses, " AND "))
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, 0, err
	}
	defer rows.Close()

	items := make([]TransactionRecord, 0, limit)
	for rows.Next() {
		var item TransactionRecord
		var slot int64
		var programs, signers string
		var success int
		if err := rows.Scan(
			&item.Signature,
			&slot,
			&item.Instruction,
			&programs,
			&signers,
			&success,
			&item.Err,
			&item.EventsJSON,
			&item.ExecutedAt,
		); err != nil {
			return nil, 0, 0, err
		}
		item.Slot = uint64(slot)
		item.Programs = splitCSV(programs)
		item.Signers = splitCSV(signers)
		item.Success = success != 0
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, 0, err
	}

	return items, limit, offset, nil
}

func (s *Store) ListPoolSnapshots(ctx context.Context, filter SnapshotFilter) ([]SnapshotRecord, int, int, error) {
	limit, offset := normalizePagination(filter.Limit, filter.Offset)
	clauses := []string{"1 = 1"}
	args := make([]any, 0, 3)
	if filter.Pool != "" {
		clauses = append(clauses, "pool = ?")
		args = append(args, filter.Pool)
	}

	query := fmt.Sprintf(`
		SELECT id, pool, input_vault, restaked_vault, avs_vault, output_supply, slot, recorded_at
		FROM pool_snapshots
		WHERE %s
		ORDER BY recorded_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, strings.Join(clauses, " AND "))
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, 0, err
	}
	defer rows.Close()

	items := make([]SnapshotRecord, 0, limit)
	for rows.Next() {
		var item SnapshotRecord
		var slot int64
		if err := rows.Scan(
			&item.ID,
			&item.Pool,
			&item.InputVault,
			&item.RestakedVault,
			&item.AVSVault,
			&item.OutputSupply,
			&slot,
			&item.RecordedAt,
		); err != nil {
			return nil, 0, 0, err
		}
		item.Slot = uint64(slot)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, 0, err
	}
	return items, limit, offset, nil
}

func splitCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	return strings.Split(raw, ",")
}

func normalizePagination(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
