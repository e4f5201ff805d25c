// Package restaking is a reference restaking program. It honors the pool's
// restake/unrestake call contract, exchanging the input asset 1:1 for a
// restaked asset minted by the restaking pool.
package restaking

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
	accountName = "RestakingPool"
	stateSize   = 8 + 1 + 32*2
	callSize    = 10
)

var ErrInvalidAccount = errors.New("restaking: invalid account")

var stateDiscriminator = pda.AccountDiscriminator(accountName)

type State struct {
	Bump         uint8
	InputMint    solana.PublicKey
	RestakedMint solana.PublicKey
}

func (s State) MarshalWithEncoder(encoder *bin.Encoder) error {
	if err := encoder.WriteBytes(stateDiscriminator[:], false); err != nil {
		return err
	}
	if err := encoder.WriteUint8(s.Bump); err != nil {
		return err
	}
	if err := encoder.WriteBytes(s.InputMint[:], false); err != nil {
		return err
	}
	return encoder.WriteBytes(s.RestakedMint[:], false)
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
	copy(s.InputMint[:], raw)
	if raw, err = decoder.ReadBytes(solana.PublicKeyLength); err != nil {
		return err
	}
	copy(s.RestakedMint[:], raw)
	return nil
}

func DecodeState(data []byte) (*State, error) {
	if len(data) != stateSize {
		return nil, fmt.Errorf("restaking state: unexpected size %d", len(data))
	}
	var s State
	if err := s.UnmarshalWithDecoder(bin.NewBorshDecoder(data)); err != nil {
		return nil, fmt.Errorf("restaking state: %w", err)
	}
	return &s, nil
}

type Deployment struct {
	ProgramID    solana.PublicKey
	Pool         solana.PublicKey
	Bump         uint8
	InputMint    solana.PublicKey
	RestakedMint solana.PublicKey
	InputVault   solana.PublicKey
}

// Bootstrap creates the restaking pool record, the restaked mint and the
// pool's input vault.
func Bootstrap(txn *ledger.Txn, programID, inputMint, restakedMint solana.PublicKey) (Deployment, error) {
	address, bump, err := pda.DeriveRestakingPoolAddress(programID, inputMint)
	if err != nil {
		return Deployment{}, fmt.Errorf("derive restaking pool address: %w", err)
	}
	input, err := txn.Mint(inputMint)
	if err != nil {
		return Deployment{}, err
	}
	if err := txn.CreateMint(restakedMint, input.Decimals, address, address); err != nil {
		return Deployment{}, err
	}
	vault, err := txn.CreateAssociatedTokenAccount(address, inputMint)
	if err != nil {
		return Deployment{}, err
	}
	buf := new(bytes.Buffer)
	if err := (State{Bump: bump, InputMint: inputMint, RestakedMint: restakedMint}).MarshalWithEncoder(bin.NewBorshEncoder(buf)); err != nil {
		return Deployment{}, err
	}
	if err := txn.CreateDataAccount(address, programID, buf.Bytes()); err != nil {
		return Deployment{}, err
	}
	return Deployment{
		ProgramID:    programID,
		Pool:         address,
		Bump:         bump,
		InputMint:    inputMint,
		RestakedMint: restakedMint,
		InputVault:   vault,
	}, nil
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
	signer        solana.PublicKey
	inputMint     solana.PublicKey
	inputAccount  solana.PublicKey
	restakedATA   solana.PublicKey
	restakedMint  solana.PublicKey
	vault         solana.PublicKey
	restakingPool solana.PublicKey
}

func (p *Program) Process(ctx *runtime.Context, accounts []*solana.AccountMeta, data []byte) error {
	name, amount, err := lrt.ParseExternalCall(data, lrt.RestakingRestake, lrt.RestakingUnrestake)
	if err != nil {
		return fmt.Errorf("restaking: %w", err)
	}
	if amount == 0 {
		return fmt.Errorf("restaking: %s amount must be positive", name)
	}
	a, err := parseAccounts(accounts)
	if err != nil {
		return err
	}
	state, err := p.loadState(ctx.Txn(), a)
	if err != nil {
		return err
	}

	txn := ctx.Txn()
	poolSigner, err := ctx.WithSigner(pda.RestakingPoolSignerSeeds(state.InputMint, state.Bump))
	if err != nil {
		return err
	}
	switch name {
	case lrt.RestakingRestake:
		if err := txn.Transfer(ctx, a.inputAccount, a.vault, amount); err != nil {
			return err
		}
		if err := txn.MintTo(poolSigner, a.restakedMint, a.restakedATA, amount); err != nil {
			return err
		}
	default:
		if err := txn.Burn(ctx, a.restakedMint, a.restakedATA, amount); err != nil {
			return err
		}
		if err := txn.Transfer(poolSigner, a.vault, a.inputAccount, amount); err != nil {
			return err
		}
	}
	ctx.Logf("%s %d for %s", name, amount, a.signer)
	return nil
}

func parseAccounts(metas []*solana.AccountMeta) (callAccounts, error) {
	if len(metas) != callSize {
		return callAccounts{}, fmt.Errorf("%w: expected %d accounts, got %d", ErrInvalidAccount, callSize, len(metas))
	}
	if !metas[0].IsSigner {
		return callAccounts{}, fmt.Errorf("%w: signer must sign", ErrInvalidAccount)
	}
	for i := 0; i < 6; i++ {
		if !metas[i].IsWritable {
			return callAccounts{}, fmt.Errorf("%w: account %d must be writable", ErrInvalidAccount, i)
		}
	}
	if !metas[7].PublicKey.Equals(solana.SPLAssociatedTokenAccountProgramID) ||
		!metas[8].PublicKey.Equals(solana.TokenProgramID) ||
		!metas[9].PublicKey.Equals(solana.SystemProgramID) {
		return callAccounts{}, fmt.Errorf("%w: program accounts out of order", ErrInvalidAccount)
	}
	return callAccounts{
		signer:        metas[0].PublicKey,
		inputMint:     metas[1].PublicKey,
		inputAccount:  metas[2].PublicKey,
		restakedATA:   metas[3].PublicKey,
		restakedMint:  metas[4].PublicKey,
		vault:         metas[5].PublicKey,
		restakingPool: metas[6].PublicKey,
	}, nil
}

func (p *Program) loadState(txn *ledger.Txn, a callAccounts) (*State, error) {
	account, err := txn.Data(a.restakingPool)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidAccount, err)
	}
	if !account.Owner.Equals(p.id) {
		return nil, fmt.Errorf("%w: pool %s is not owned by %s", ErrInvalidAccount, a.restakingPool, p.id)
	}
	state, err := DecodeState(account.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidAccount, err)
	}
	if !state.InputMint.Equals(a.inputMint) || !state.RestakedMint.Equals(a.restakedMint) {
		return nil, fmt.Errorf("%w: mints do not match pool %s", ErrInvalidAccount, a.restakingPool)
	}
	vault, err := pda.DeriveVaultAddress(a.restakingPool, a.inputMint)
	if err != nil {
		return nil, err
	}
	if !vault.Equals(a.vault) {
		return nil, fmt.Errorf("%w: vault %s", ErrInvalidAccount, a.vault)
	}
	return state, nil
}
