// Package avs is a reference AVS program. It accepts the delegate and
// undelegate calls of the pool's AVS adapter contract and issues an AVS
// receipt token 1:1 for delegated value.
package avs

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/coldbell/restake/backend/internal/ledger"
	"github.com/coldbell/restake/backend/internal/lrt"
	"github.com/coldbell/restake/backend/internal/pda"
	"github.com/coldbell/restake/backend/internal/runtime"
)

const (
	accountName = "EndoAvs"
	stateSize   = 8 + 1 + 32*2 + 8

	// UndelegateRemainingAccounts is the exact number of trailing accounts
	// undelegate requires.
	UndelegateRemainingAccounts = 4
)

var (
	ErrInvalidAccount           = errors.New("avs: invalid account")
	ErrInvalidRemainingAccounts = errors.New("avs: invalid remaining accounts")
	ErrInsufficientDelegation   = errors.New("avs: insufficient delegated balance")
)

var stateDiscriminator = pda.AccountDiscriminator(accountName)

// State is the per-deployment record stored at the AVS address.
type State struct {
	Bump               uint8
	AVSTokenMint       solana.PublicKey
	DelegatedTokenMint solana.PublicKey
	TotalDelegated     uint64
}

func (s State) MarshalWithEncoder(encoder *bin.Encoder) error {
	if err := encoder.WriteBytes(stateDiscriminator[:], false); err != nil {
		return err
	}
	if err := encoder.WriteUint8(s.Bump); err != nil {
		return err
	}
	if err := encoder.WriteBytes(s.AVSTokenMint[:], false); err != nil {
		return err
	}
	if err := encoder.WriteBytes(s.DelegatedTokenMint[:], false); err != nil {
		return err
	}
	return encoder.WriteUint64(s.TotalDelegated, bin.LE)
}

func (s *State) UnmarshalWithDecoder(decoder *bin.Decoder) error {
	disc, err := decoder.ReadBytes(len(stateDiscriminator))
	if err != nil {
		return err
	}
	if !bytes.Equal(disc, stateDiscriminator[:]) {
		return fmt.Errorf("unexpected discriminator %x", disc)
	}
	if s.Bump, err = decoder.ReadUint8(); err != nil {
		return err
	}
	raw, err := decoder.ReadBytes(solana.PublicKeyLength)
	if err != nil {
		return err
	}
	copy(s.AVSTokenMint[:], raw)
	if raw, err = decoder.ReadBytes(solana.PublicKeyLength); err != nil {
		return err
	}
	copy(s.DelegatedTokenMint[:], raw)
	s.TotalDelegated, err = decoder.ReadUint64(bin.LE)
	return err
}

func encodeState(s State) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := s.MarshalWithEncoder(bin.NewBorshEncoder(buf)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func DecodeState(data []byte) (*State, error) {
	if len(data) != stateSize {
		return nil, fmt.Errorf("avs state: unexpected size %d", len(data))
	}
	var s State
	if err := s.UnmarshalWithDecoder(bin.NewBorshDecoder(data)); err != nil {
		return nil, fmt.Errorf("avs state: %w", err)
	}
	return &s, nil
}

// Deployment describes one AVS created at genesis.
type Deployment struct {
	ProgramID           solana.PublicKey
	AVS                 solana.PublicKey
	Bump                uint8
	AVSTokenMint        solana.PublicKey
	DelegatedTokenMint  solana.PublicKey
	DelegatedTokenVault solana.PublicKey
}

// Bootstrap creates the AVS record, its receipt mint and its custody vault.
func Bootstrap(txn *ledger.Txn, programID, avsTokenMint, delegatedTokenMint solana.PublicKey) (Deployment, error) {
	address, bump, err := pda.DeriveAVSAddress(programID, avsTokenMint)
	if err != nil {
		return Deployment{}, fmt.Errorf("derive avs address: %w", err)
	}
	delegated, err := txn.Mint(delegatedTokenMint)
	if err != nil {
		return Deployment{}, err
	}
	if err := txn.CreateMint(avsTokenMint, delegated.Decimals, address, address); err != nil {
		return Deployment{}, err
	}
	vault, err := txn.CreateAssociatedTokenAccount(address, delegatedTokenMint)
	if err != nil {
		return Deployment{}, err
	}
	data, err := encodeState(State{Bump: bump, AVSTokenMint: avsTokenMint, DelegatedTokenMint: delegatedTokenMint})
	if err != nil {
		return Deployment{}, err
	}
	if err := txn.CreateDataAccount(address, programID, data); err != nil {
		return Deployment{}, err
	}
	return Deployment{
		ProgramID:           programID,
		AVS:                 address,
		Bump:                bump,
		AVSTokenMint:        avsTokenMint,
		DelegatedTokenMint:  delegatedTokenMint,
		DelegatedTokenVault: vault,
	}, nil
}

// UndelegateRemaining builds the trailing accounts undelegate expects, in
// order: staker delegated token account, staker, avs, delegated token mint.
func (d Deployment) UndelegateRemaining(staker, stakerDelegatedTokenAccount solana.PublicKey) []*solana.AccountMeta {
	return []*solana.AccountMeta{
		solana.NewAccountMeta(stakerDelegatedTokenAccount, true, false),
		solana.NewAccountMeta(staker, true, false),
		solana.NewAccountMeta(d.AVS, true, false),
		solana.NewAccountMeta(d.DelegatedTokenMint, true, false),
	}
}

type Program struct {
	id     solana.PublicKey
	logger *slog.Logger
}

func NewProgram(logger *slog.Logger, id solana.PublicKey) *Program {
	if logger == nil {
		logger = slog.Default()
	}
	return &Program{id: id, logger: logger}
}

func (p *Program) ID() solana.PublicKey {
	return p.id
}

type callAccounts struct {
	staker                      solana.PublicKey
	avs                         solana.PublicKey
	avsTokenMint                solana.PublicKey
	delegatedTokenVault         solana.PublicKey
	delegatedTokenMint          solana.PublicKey
	stakerDelegatedTokenAccount solana.PublicKey
	stakerAVSTokenAccount       solana.PublicKey
	remaining                   []*solana.AccountMeta
}

func (p *Program) Process(ctx *runtime.Context, accounts []*solana.AccountMeta, data []byte) error {
	name, amount, err := lrt.ParseExternalCall(data, lrt.AVSDelegate, lrt.AVSUndelegate)
	if err != nil {
		return fmt.Errorf("avs: %w", err)
	}
	if amount == 0 {
		return fmt.Errorf("avs: %s amount must be positive", name)
	}
	a, err := parseAccounts(accounts)
	if err != nil {
		return err
	}
	state, err := p.loadState(ctx.Txn(), a)
	if err != nil {
		return err
	}

	switch name {
	case lrt.AVSDelegate:
		err = p.delegate(ctx, a, state, amount)
	default:
		err = p.undelegate(ctx, a, state, amount)
	}
	if err != nil {
		return err
	}
	data, err = encodeState(*state)
	if err != nil {
		return err
	}
	return ctx.Txn().WriteData(p.id, a.avs, data)
}

func parseAccounts(metas []*solana.AccountMeta) (callAccounts, error) {
	if len(metas) < 10 {
		return callAccounts{}, fmt.Errorf("%w: expected at least 10 accounts, got %d", ErrInvalidAccount, len(metas))
	}
	if !metas[0].IsSigner {
		return callAccounts{}, fmt.Errorf("%w: staker must sign", ErrInvalidAccount)
	}
	for i := 0; i < 7; i++ {
		if !metas[i].IsWritable {
			return callAccounts{}, fmt.Errorf("%w: account %d must be writable", ErrInvalidAccount, i)
		}
	}
	if !metas[7].PublicKey.Equals(solana.TokenProgramID) ||
		!metas[8].PublicKey.Equals(solana.SPLAssociatedTokenAccountProgramID) ||
		!metas[9].PublicKey.Equals(solana.SystemProgramID) {
		return callAccounts{}, fmt.Errorf("%w: program accounts out of order", ErrInvalidAccount)
	}
	return callAccounts{
		staker:                      metas[0].PublicKey,
		avs:                         metas[1].PublicKey,
		avsTokenMint:                metas[2].PublicKey,
		delegatedTokenVault:         metas[3].PublicKey,
		delegatedTokenMint:          metas[4].PublicKey,
		stakerDelegatedTokenAccount: metas[5].PublicKey,
		stakerAVSTokenAccount:       metas[6].PublicKey,
		remaining:                   metas[10:],
	}, nil
}

func (p *Program) loadState(txn *ledger.Txn, a callAccounts) (*State, error) {
	account, err := txn.Data(a.avs)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidAccount, err)
	}
	if !account.Owner.Equals(p.id) {
		return nil, fmt.Errorf("%w: avs %s is not owned by %s", ErrInvalidAccount, a.avs, p.id)
	}
	state, err := DecodeState(account.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidAccount, err)
	}
	if !state.AVSTokenMint.Equals(a.avsTokenMint) || !state.DelegatedTokenMint.Equals(a.delegatedTokenMint) {
		return nil, fmt.Errorf("%w: mints do not match avs %s", ErrInvalidAccount, a.avs)
	}
	vault, err := pda.DeriveVaultAddress(a.avs, a.delegatedTokenMint)
	if err != nil {
		return nil, err
	}
	if !vault.Equals(a.delegatedTokenVault) {
		return nil, fmt.Errorf("%w: delegated token vault %s", ErrInvalidAccount, a.delegatedTokenVault)
	}
	return state, nil
}

func (p *Program) delegate(ctx *runtime.Context, a callAccounts, state *State, amount uint64) error {
	txn := ctx.Txn()
	total, err := ledger.CheckedAdd(state.TotalDelegated, amount)
	if err != nil {
		return err
	}
	if err := txn.Transfer(ctx, a.stakerDelegatedTokenAccount, a.delegatedTokenVault, amount); err != nil {
		return err
	}
	signer, err := ctx.WithSigner(pda.AVSSignerSeeds(state.AVSTokenMint, state.Bump))
	if err != nil {
		return err
	}
	if err := txn.MintTo(signer, a.avsTokenMint, a.stakerAVSTokenAccount, amount); err != nil {
		return err
	}
	state.TotalDelegated = total
	ctx.Logf("delegated %d from %s", amount, a.staker)
	return nil
}

func (p *Program) undelegate(ctx *runtime.Context, a callAccounts, state *State, amount uint64) error {
	if err := checkUndelegateRemaining(a); err != nil {
		return err
	}
	if state.TotalDelegated < amount {
		return fmt.Errorf("%w: %d delegated, undelegate %d", ErrInsufficientDelegation, state.TotalDelegated, amount)
	}
	txn := ctx.Txn()
	if err := txn.Burn(ctx, a.avsTokenMint, a.stakerAVSTokenAccount, amount); err != nil {
		return err
	}
	signer, err := ctx.WithSigner(pda.AVSSignerSeeds(state.AVSTokenMint, state.Bump))
	if err != nil {
		return err
	}
	if err := txn.Transfer(signer, a.delegatedTokenVault, a.stakerDelegatedTokenAccount, amount); err != nil {
		return err
	}
	state.TotalDelegated -= amount
	ctx.Logf("undelegated %d to %s", amount, a.staker)
	return nil
}

func checkUndelegateRemaining(a callAccounts) error {
	if len(a.remaining) != UndelegateRemainingAccounts {
		return fmt.Errorf("%w: expected %d, got %d", ErrInvalidRemainingAccounts, UndelegateRemainingAccounts, len(a.remaining))
	}
	want := []solana.PublicKey{a.stakerDelegatedTokenAccount, a.staker, a.avs, a.delegatedTokenMint}
	for i, meta := range a.remaining {
		if !meta.PublicKey.Equals(want[i]) {
			return fmt.Errorf("%w: position %d is %s, expected %s", ErrInvalidRemainingAccounts, i, meta.PublicKey, want[i])
		}
		if !meta.IsWritable {
			return fmt.Errorf("%w: position %d must be writable", ErrInvalidRemainingAccounts, i)
		}
	}
	return nil
}
