package store

import (
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/coldbell/restake/backend/internal/runtime"
)

func TestRebindPostgresPlaceholders(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "SELECT * FROM t WHERE a = ? AND b = ?", "SELECT * FROM t WHERE a = $1 AND b = $2"},
		{"literal", "SELECT '?' FROM t WHERE a = ?", "SELECT '?' FROM t WHERE a = $1"},
		{"escaped quote", "SELECT 'it''s ?' WHERE a = ?", "SELECT 'it''s ?' WHERE a = $1"},
		{"none", "SELECT 1", "SELECT 1"},
		{"multibyte literal", "SELECT 'é?' WHERE a = ? AND b = ?", "SELECT 'é?' WHERE a = $1 AND b = $2"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := rebindPostgresPlaceholders(tc.in); got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestTransactionRow(t *testing.T) {
	receipt := runtime.Receipt{
		Slot:      12,
		Programs:  []string{"p1", "p2"},
		Signers:   []string{"s1"},
		Logs:      []string{"invoke [1]"},
		Events:    []runtime.Event{{Program: solana.SystemProgramID, Name: "deposit"}},
		Timestamp: time.Unix(1700000000, 0),
	}
	row, err := transactionRow(receipt)
	if err != nil {
		t.Fatalf("row: %v", err)
	}
	if row.Instruction != "deposit" || !row.Success || row.Programs != "p1,p2" || row.ExecutedAt != 1700000000 {
		t.Fatalf("unexpected row %+v", row)
	}

	receipt.Err = "boom"
	receipt.Events = nil
	row, err = transactionRow(receipt)
	if err != nil {
		t.Fatalf("row: %v", err)
	}
	if row.Instruction != "failed" || row.Success || row.Err != "boom" {
		t.Fatalf("unexpected failed row %+v", row)
	}
}

func TestNormalizePagination(t *testing.T) {
	if limit, offset := normalizePagination(0, -3); limit != defaultPageLimit || offset != 0 {
		t.Fatalf("defaults = %d, %d", limit, offset)
	}
	if limit, _ := normalizePagination(1000, 0); limit != maxPageLimit {
		t.Fatalf("cap = %d", limit)
	}
}
