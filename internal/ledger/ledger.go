package ledger

import (
	"errors"
	"maps"
	"sort"
	"sync"

	"github.com/gagliardetto/solana-go"
)

var (
	ErrAccountNotFound      = errors.New("account not found")
	ErrAccountInUse         = errors.New("account already in use")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrOverflow             = errors.New("arithmetic overflow")
	ErrMissingSignature     = errors.New("missing required signature")
	ErrMintMismatch         = errors.New("account mint mismatch")
	ErrOwnerMismatch        = errors.New("account owner mismatch")
	ErrDecimalsMismatch     = errors.New("mint decimals mismatch")
	ErrInvalidMintAuthority = errors.New("invalid mint authority")
	ErrIllegalOwner         = errors.New("account is owned by another program")
	ErrReadOnly             = errors.New("write in read-only transaction")
)

type Mint struct {
	Decimals        uint8
	Supply          uint64
	MintAuthority   solana.PublicKey
	FreezeAuthority solana.PublicKey
}

type TokenAccount struct {
	Mint   solana.PublicKey
	Owner  solana.PublicKey
	Amount uint64
}

// DataAccount is an account whose bytes only Owner (a program id) may rewrite.
type DataAccount struct {
	Owner solana.PublicKey
	Data  []byte
}

type KeyedData struct {
	Address solana.PublicKey
	Account DataAccount
}

// Authority reports which keys signed the current invocation.
type Authority interface {
	IsSigner(key solana.PublicKey) bool
}

type Signers map[solana.PublicKey]struct{}

func NewSigners(keys ...solana.PublicKey) Signers {
	out := make(Signers, len(keys))
	for _, key := range keys {
		out[key] = struct{}{}
	}
	return out
}

func (s Signers) IsSigner(key solana.PublicKey) bool {
	_, ok := s[key]
	return ok
}

type state struct {
	mints  map[solana.PublicKey]Mint
	tokens map[solana.PublicKey]TokenAccount
	data   map[solana.PublicKey]DataAccount
}

func newState() state {
	return state{
		mints:  make(map[solana.PublicKey]Mint),
		tokens: make(map[solana.PublicKey]TokenAccount),
		data:   make(map[solana.PublicKey]DataAccount),
	}
}

// clone is shallow: DataAccount.Data slices are never mutated in place.
func (s state) clone() state {
	return state{
		mints:  maps.Clone(s.mints),
		tokens: maps.Clone(s.tokens),
		data:   maps.Clone(s.data),
	}
}

// Ledger is the account arena. All writes go through Update, which stages
// them on a copy and commits only when the callback succeeds.
type Ledger struct {
	mu   sync.RWMutex
	st   state
	slot uint64
}

func New() *Ledger {
	return &Ledger{st: newState()}
}

// Update serializes writers. On error the staged copy is dropped and the
// ledger is left exactly as before.
func (l *Ledger) Update(fn func(*Txn) error) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	txn := &Txn{st: l.st.clone()}
	if err := fn(txn); err != nil {
		return l.slot, err
	}
	l.st = txn.st
	l.slot++
	return l.slot, nil
}

func (l *Ledger) View(fn func(*Txn) error) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return fn(&Txn{st: l.st, readOnly: true})
}

func (l *Ledger) Slot() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.slot
}

func (l *Ledger) Mint(key solana.PublicKey) (Mint, error) {
	var out Mint
	err := l.View(func(txn *Txn) error {
		var err error
		out, err = txn.Mint(key)
		return err
	})
	return out, err
}

func (l *Ledger) TokenAccount(key solana.PublicKey) (TokenAccount, error) {
	var out TokenAccount
	err := l.View(func(txn *Txn) error {
		var err error
		out, err = txn.TokenAccount(key)
		return err
	})
	return out, err
}

func (l *Ledger) Balance(key solana.PublicKey) (uint64, error) {
	account, err := l.TokenAccount(key)
	if err != nil {
		return 0, err
	}
	return account.Amount, nil
}

func (l *Ledger) Data(key solana.PublicKey) (DataAccount, error) {
	var out DataAccount
	err := l.View(func(txn *Txn) error {
		var err error
		out, err = txn.Data(key)
		return err
	})
	return out, err
}

// ProgramAccounts lists data accounts owned by program, ordered by address.
func (l *Ledger) ProgramAccounts(program solana.PublicKey) []KeyedData {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]KeyedData, 0)
	for key, account := range l.st.data {
		if !account.Owner.Equals(program) {
			continue
		}
		out = append(out, KeyedData{Address: key, Account: DataAccount{
			Owner: account.Owner,
			Data:  append([]byte(nil), account.Data...),
		}})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Address.String() < out[j].Address.String()
	})
	return out
}
