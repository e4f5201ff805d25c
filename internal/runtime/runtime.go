package runtime

import (
	"context"
	"crypto/sha512"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/coldbell/restake/backend/internal/ledger"
)

const maxInvokeDepth = 4

var (
	ErrUnknownProgram       = errors.New("unknown program")
	ErrMissingSignature     = errors.New("missing required signature")
	ErrPrivilegeEscalation  = errors.New("cross-program invocation with unauthorized signer")
	ErrMaxInvokeDepth       = errors.New("cross-program invocation depth exceeded")
	ErrEmptyTransaction     = errors.New("transaction has no instructions")
	ErrDuplicateProgramID   = errors.New("program already registered")
	ErrInvalidSeeds         = errors.New("seeds do not produce a valid program address")
	ErrNotEnoughAccountKeys = errors.New("not enough account keys")
)

// Program is an on-ledger program. Process runs inside a staged transaction;
// returning an error discards every write of the enclosing transaction.
type Program interface {
	ID() solana.PublicKey
	Process(ctx *Context, accounts []*solana.AccountMeta, data []byte) error
}

type Transaction struct {
	Signers      []solana.PublicKey
	Instructions []solana.Instruction
}

type Event struct {
	Program solana.PublicKey `json:"program"`
	Name    string           `json:"name"`
	Fields  map[string]any   `json:"fields,omitempty"`
}

type Receipt struct {
	Signature solana.Signature `json:"signature"`
	Slot      uint64           `json:"slot"`
	Programs  []string         `json:"programs"`
	Signers   []string         `json:"signers"`
	Logs      []string         `json:"logs"`
	Events    []Event          `json:"events"`
	Err       string           `json:"err,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

func (r Receipt) Succeeded() bool {
	return r.Err == ""
}

// Runtime executes transactions against a ledger. Each transaction is
// applied atomically and transactions are serialized by the ledger.
type Runtime struct {
	logger *slog.Logger
	ledger *ledger.Ledger

	mu       sync.RWMutex
	programs map[solana.PublicKey]Program

	seqMu sync.Mutex
	seq   uint64

	subMu       sync.Mutex
	nextSubID   int
	subscribers map[int]chan Receipt
}

func New(logger *slog.Logger, l *ledger.Ledger) *Runtime {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runtime{
		logger:      logger,
		ledger:      l,
		programs:    make(map[solana.PublicKey]Program),
		subscribers: make(map[int]chan Receipt),
	}
}

func (r *Runtime) Ledger() *ledger.Ledger {
	return r.ledger
}

func (r *Runtime) Register(program Program) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := program.ID()
	if _, ok := r.programs[id]; ok {
		return fmt.Errorf("register %s: %w", id, ErrDuplicateProgramID)
	}
	r.programs[id] = program
	r.logger.Info("program registered", "program", id.String())
	return nil
}

func (r *Runtime) program(id solana.PublicKey) (Program, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	program, ok := r.programs[id]
	if !ok {
		return nil, fmt.Errorf("program %s: %w", id, ErrUnknownProgram)
	}
	return program, nil
}

// Subscribe returns a stream of receipts for committed and failed
// transactions. Slow subscribers drop receipts instead of blocking Submit.
func (r *Runtime) Subscribe(buffer int) (<-chan Receipt, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Receipt, buffer)

	r.subMu.Lock()
	id := r.nextSubID
	r.nextSubID++
	r.subscribers[id] = ch
	r.subMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			r.subMu.Lock()
			delete(r.subscribers, id)
			r.subMu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

func (r *Runtime) publish(receipt Receipt) {
	r.subMu.Lock()
	defer r.subMu.Unlock()

	for id, ch := range r.subscribers {
		select {
		case ch <- receipt:
		default:
			r.logger.Warn("receipt subscriber is full; dropping receipt", "subscriber", id, "signature", receipt.Signature.String())
		}
	}
}

// Submit executes every instruction of tx in order. Either all of them
// commit or none do. The receipt is returned in both cases.
func (r *Runtime) Submit(ctx context.Context, tx Transaction) (*Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(tx.Instructions) == 0 {
		return nil, ErrEmptyTransaction
	}

	signed := ledger.NewSigners(tx.Signers...)
	receipt := &Receipt{
		Signature: r.nextSignature(tx),
		Timestamp: time.Now().UTC(),
	}
	for _, signer := range tx.Signers {
		receipt.Signers = append(receipt.Signers, signer.String())
	}

	err := r.verifySignatures(tx, signed)
	var logs []string
	var events []Event
	if err == nil {
		var slot uint64
		slot, err = r.ledger.Update(func(txn *ledger.Txn) error {
			for i, ix := range tx.Instructions {
				if err := ctx.Err(); err != nil {
					return err
				}
				if err := r.execute(txn, ix, &logs, &events); err != nil {
					return fmt.Errorf("instruction %d: %w", i, err)
				}
			}
			return nil
		})
		receipt.Slot = slot
	}

	for _, ix := range tx.Instructions {
		receipt.Programs = append(receipt.Programs, ix.ProgramID().String())
	}
	receipt.Logs = logs
	if err != nil {
		receipt.Err = err.Error()
		receipt.Logs = append(receipt.Logs, "transaction failed: "+err.Error())
		r.logger.Debug("transaction failed", "signature", receipt.Signature.String(), "err", err)
	} else {
		receipt.Events = events
		r.logger.Debug("transaction committed", "signature", receipt.Signature.String(), "slot", receipt.Slot)
	}

	r.publish(*receipt)
	return receipt, err
}

func (r *Runtime) verifySignatures(tx Transaction, signed ledger.Signers) error {
	for i, ix := range tx.Instructions {
		for _, meta := range ix.Accounts() {
			if meta.IsSigner && !signed.IsSigner(meta.PublicKey) {
				return fmt.Errorf("instruction %d account %s: %w", i, meta.PublicKey, ErrMissingSignature)
			}
		}
	}
	return nil
}

func (r *Runtime) execute(txn *ledger.Txn, ix solana.Instruction, logs *[]string, events *[]Event) error {
	program, err := r.program(ix.ProgramID())
	if err != nil {
		return err
	}
	data, err := ix.Data()
	if err != nil {
		return fmt.Errorf("instruction data: %w", err)
	}

	accounts := ix.Accounts()
	frame := &Context{
		rt:      r,
		txn:     txn,
		program: program.ID(),
		signers: signersOf(accounts),
		logs:    logs,
		events:  events,
	}
	frame.Logf("invoke [1]")
	if err := program.Process(frame, accounts, data); err != nil {
		frame.Logf("failed: %v", err)
		return err
	}
	frame.Logf("success")
	return nil
}

func (r *Runtime) nextSignature(tx Transaction) solana.Signature {
	r.seqMu.Lock()
	r.seq++
	seq := r.seq
	r.seqMu.Unlock()

	h := sha512.New()
	_ = binary.Write(h, binary.LittleEndian, seq)
	for _, signer := range tx.Signers {
		h.Write(signer.Bytes())
	}
	for _, ix := range tx.Instructions {
		h.Write(ix.ProgramID().Bytes())
		if data, err := ix.Data(); err == nil {
			h.Write(data)
		}
	}

	var sig solana.Signature
	copy(sig[:], h.Sum(nil))
	return sig
}

func signersOf(accounts []*solana.AccountMeta) ledger.Signers {
	out := make(ledger.Signers)
	for _, meta := range accounts {
		if meta.IsSigner {
			out[meta.PublicKey] = struct{}{}
		}
	}
	return out
}
