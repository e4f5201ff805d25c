package lrt

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/coldbell/restake/backend/internal/pda"
)

// accountReader walks an ordered account list. The first failure sticks and
// later reads return the zero key.
type accountReader struct {
	metas []*solana.AccountMeta
	pos   int
	err   error
}

func newAccountReader(metas []*solana.AccountMeta) *accountReader {
	return &accountReader{metas: metas}
}

func (r *accountReader) next(name string, writable, signer bool) solana.PublicKey {
	if r.err != nil {
		return solana.PublicKey{}
	}
	if r.pos >= len(r.metas) {
		r.err = fmt.Errorf("%w: %s (position %d)", ErrMissingAccounts, name, r.pos)
		return solana.PublicKey{}
	}
	meta := r.metas[r.pos]
	r.pos++
	if writable && !meta.IsWritable {
		r.err = fmt.Errorf("%w: %s must be writable", ErrAccountMismatch, name)
		return solana.PublicKey{}
	}
	if signer && !meta.IsSigner {
		r.err = fmt.Errorf("%w: %s must sign", ErrUnauthorized, name)
		return solana.PublicKey{}
	}
	return meta.PublicKey
}

func (r *accountReader) program(name string, want solana.PublicKey) {
	got := r.next(name, false, false)
	if r.err == nil && !got.Equals(want) {
		r.err = fmt.Errorf("%w: %s is %s, expected %s", ErrAccountMismatch, name, got, want)
	}
}

// rest returns the unread accounts verbatim.
func (r *accountReader) rest() []*solana.AccountMeta {
	if r.err != nil || r.pos >= len(r.metas) {
		return nil
	}
	out := r.metas[r.pos:]
	r.pos = len(r.metas)
	return out
}

func expectKey(name string, got, want solana.PublicKey) error {
	if !got.Equals(want) {
		return fmt.Errorf("%w: %s is %s, expected %s", ErrAccountMismatch, name, got, want)
	}
	return nil
}

func expectVault(name string, got, owner, mint solana.PublicKey) error {
	want, err := pda.DeriveVaultAddress(owner, mint)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrAccountMismatch, name, err)
	}
	return expectKey(name, got, want)
}

func (p *Program) readTransferAccounts(r *accountReader) TransferAccounts {
	a := TransferAccounts{
		Signer:                 r.next("signer", true, true),
		InputTokenMint:         r.next("input_token_mint", false, false),
		SignerInputTokenVault:  r.next("signer_input_token_vault", true, false),
		PoolInputTokenVault:    r.next("pool_input_token_vault", true, false),
		OutputTokenMint:        r.next("output_token_mint", true, false),
		SignerOutputTokenVault: r.next("signer_output_token_vault", true, false),
		Pool:                   r.next("pool", false, false),
	}
	r.program("associated_token_program", solana.SPLAssociatedTokenAccountProgramID)
	r.program("token_program", solana.TokenProgramID)
	r.program("system_program", solana.SystemProgramID)
	if p.cfg.Variant.Restaked() {
		a.Restake = &RestakeAccounts{
			RestakedTokenMint:       r.next("restaked_token_mint", true, false),
			PoolRestakedTokenVault:  r.next("pool_restaked_token_vault", true, false),
			RestakingPool:           r.next("restaking_pool", false, false),
			RestakingPoolInputVault: r.next("restaking_pool_input_vault", true, false),
			RestakingProgram:        r.next("restaking_program", false, false),
		}
	}
	return a
}

func (p *Program) readDelegateAccounts(r *accountReader) DelegateAccounts {
	a := DelegateAccounts{
		Signer:                  r.next("signer", true, true),
		AVS:                     r.next("avs", true, false),
		AVSTokenMint:            r.next("avs_token_mint", true, false),
		AVSDelegatedTokenVault:  r.next("avs_delegated_token_vault", true, false),
		DelegatedTokenMint:      r.next("delegated_token_mint", true, false),
		PoolDelegatedTokenVault: r.next("pool_delegated_token_vault", true, false),
		PoolAVSTokenVault:       r.next("pool_avs_token_vault", true, false),
		Pool:                    r.next("pool", true, false),
		AVSProgram:              r.next("avs_program", false, false),
	}
	r.program("token_program", solana.TokenProgramID)
	r.program("associated_token_program", solana.SPLAssociatedTokenAccountProgramID)
	r.program("system_program", solana.SystemProgramID)
	a.Remaining = r.rest()
	return a
}
