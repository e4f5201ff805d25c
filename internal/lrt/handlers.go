package lrt

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/coldbell/restake/backend/internal/ledger"
	"github.com/coldbell/restake/backend/internal/pda"
	"github.com/coldbell/restake/backend/internal/runtime"
)

func (p *Program) initialize(ctx *runtime.Context, accounts []*solana.AccountMeta) error {
	r := newAccountReader(accounts)
	signer := r.next("signer", true, true)
	delegateAuthority := r.next("delegate_authority", false, false)
	inputMintKey := r.next("input_token_mint", false, false)
	poolInputVault := r.next("pool_input_token_vault", true, false)
	outputMintKey := r.next("output_token_mint", true, false)
	poolKey := r.next("pool", true, false)
	r.program("associated_token_program", solana.SPLAssociatedTokenAccountProgramID)
	r.program("token_program", solana.TokenProgramID)
	r.program("system_program", solana.SystemProgramID)
	var restakedMintKey, poolRestakedVault solana.PublicKey
	if p.cfg.Variant.Restaked() {
		restakedMintKey = r.next("restaked_token_mint", false, false)
		poolRestakedVault = r.next("pool_restaked_token_vault", true, false)
	}
	if r.err != nil {
		return r.err
	}

	seeds := pda.PoolSeeds{
		InputMint:    inputMintKey,
		OutputMint:   outputMintKey,
		RestakedMint: restakedMintKey,
		Restaked:     p.cfg.Variant.Restaked(),
	}
	derived, bump, err := pda.DerivePoolAddress(p.cfg.ProgramID, seeds)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAccountMismatch, err)
	}
	if err := expectKey("pool", poolKey, derived); err != nil {
		return err
	}

	txn := ctx.Txn()
	if txn.Exists(poolKey) {
		return fmt.Errorf("%w: %s", ErrAlreadyInitialized, poolKey)
	}
	if delegateAuthority.IsZero() {
		return ErrInvalidAuthority
	}

	inputMint, err := txn.Mint(inputMintKey)
	if err != nil {
		return translate(err)
	}
	outputMint, err := txn.Mint(outputMintKey)
	if err != nil {
		return translate(err)
	}
	if outputMint.Decimals != inputMint.Decimals {
		return fmt.Errorf("%w: output mint has %d decimals, input mint has %d", ErrAccountMismatch, outputMint.Decimals, inputMint.Decimals)
	}
	if !outputMint.MintAuthority.Equals(signer) || !outputMint.FreezeAuthority.Equals(signer) {
		return fmt.Errorf("%w: output mint authority is %s", ErrInvalidMintAuthority, outputMint.MintAuthority)
	}
	if outputMint.Supply != 0 {
		return fmt.Errorf("%w: supply is %d", ErrNonZeroOutputSupply, outputMint.Supply)
	}
	if err := expectVault("pool_input_token_vault", poolInputVault, poolKey, inputMintKey); err != nil {
		return err
	}
	if seeds.Restaked {
		restakedMint, err := txn.Mint(restakedMintKey)
		if err != nil {
			return translate(err)
		}
		if restakedMint.Decimals != inputMint.Decimals {
			return fmt.Errorf("%w: restaked mint has %d decimals, input mint has %d", ErrAccountMismatch, restakedMint.Decimals, inputMint.Decimals)
		}
		if err := expectVault("pool_restaked_token_vault", poolRestakedVault, poolKey, restakedMintKey); err != nil {
			return err
		}
	}

	if _, err := txn.CreateAssociatedTokenAccount(poolKey, inputMintKey); err != nil {
		return translate(err)
	}
	if seeds.Restaked {
		if _, err := txn.CreateAssociatedTokenAccount(poolKey, restakedMintKey); err != nil {
			return translate(err)
		}
	}

	pool := &Pool{
		Bump:              bump,
		InputTokenMint:    inputMintKey,
		OutputTokenMint:   outputMintKey,
		RestakedTokenMint: restakedMintKey,
		DelegateAuthority: delegateAuthority,
		Restaked:          seeds.Restaked,
	}
	data, err := EncodePool(*pool)
	if err != nil {
		return err
	}
	if err := txn.CreateDataAccount(poolKey, p.cfg.ProgramID, data); err != nil {
		return fmt.Errorf("%w: %w", ErrAlreadyInitialized, err)
	}
	if err := txn.SetMintAuthority(ctx, outputMintKey, poolKey); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidMintAuthority, err)
	}
	if err := txn.SetFreezeAuthority(ctx, outputMintKey, poolKey); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidMintAuthority, err)
	}

	ctx.Logf("initialized %s pool %s", pool.Variant(), poolKey)
	ctx.Emit("initialize", map[string]any{
		"pool":               poolKey.String(),
		"variant":            pool.Variant().String(),
		"input_token_mint":   inputMintKey.String(),
		"output_token_mint":  outputMintKey.String(),
		"delegate_authority": delegateAuthority.String(),
	})
	return nil
}

// checkTransferAccounts binds the caller-supplied accounts to the pool.
func (p *Program) checkTransferAccounts(txn *ledger.Txn, a TransferAccounts) (*Pool, error) {
	pool, err := p.loadPool(txn, a.Pool)
	if err != nil {
		return nil, err
	}
	if err := expectKey("input_token_mint", a.InputTokenMint, pool.InputTokenMint); err != nil {
		return nil, err
	}
	if err := expectKey("output_token_mint", a.OutputTokenMint, pool.OutputTokenMint); err != nil {
		return nil, err
	}
	if err := expectVault("pool_input_token_vault", a.PoolInputTokenVault, a.Pool, pool.InputTokenMint); err != nil {
		return nil, err
	}
	if err := expectVault("signer_output_token_vault", a.SignerOutputTokenVault, a.Signer, pool.OutputTokenMint); err != nil {
		return nil, err
	}
	if !pool.Restaked {
		return pool, nil
	}

	rs := a.Restake
	if rs == nil {
		return nil, fmt.Errorf("%w: restaking accounts", ErrMissingAccounts)
	}
	if err := expectKey("restaked_token_mint", rs.RestakedTokenMint, pool.RestakedTokenMint); err != nil {
		return nil, err
	}
	if err := expectVault("pool_restaked_token_vault", rs.PoolRestakedTokenVault, a.Pool, pool.RestakedTokenMint); err != nil {
		return nil, err
	}
	if err := expectVault("restaking_pool_input_vault", rs.RestakingPoolInputVault, rs.RestakingPool, pool.InputTokenMint); err != nil {
		return nil, err
	}
	if err := expectKey("restaking_program", rs.RestakingProgram, p.cfg.RestakingProgram); err != nil {
		return nil, err
	}
	return pool, nil
}

func (p *Program) restakeCall(pool *Pool, a TransferAccounts, amount uint64) RestakeCall {
	return RestakeCall{
		Program:            a.Restake.RestakingProgram,
		Staker:             a.Pool,
		StakerSeeds:        pool.SignerSeeds(),
		InputMint:          pool.InputTokenMint,
		InputVault:         a.PoolInputTokenVault,
		RestakedVault:      a.Restake.PoolRestakedTokenVault,
		RestakedMint:       pool.RestakedTokenMint,
		RestakingPoolVault: a.Restake.RestakingPoolInputVault,
		RestakingPool:      a.Restake.RestakingPool,
		Amount:             amount,
	}
}

// callAdapter runs an external call and requires vault to have moved by
// exactly amount in the given direction afterwards.
func callAdapter(txn *ledger.Txn, name string, vault solana.PublicKey, amount uint64, credit bool, call func() error) error {
	before, err := balanceOf(txn, name, vault)
	if err != nil {
		return err
	}
	if err := call(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrAdapterRejected, name, err)
	}
	after, err := balanceOf(txn, name, vault)
	if err != nil {
		return err
	}
	var moved uint64
	switch {
	case credit && after >= before:
		moved = after - before
	case !credit && before >= after:
		moved = before - after
	default:
		return fmt.Errorf("%w: %s moved %s the wrong way", ErrAdapterRejected, name, vault)
	}
	if moved != amount {
		return fmt.Errorf("%w: %s moved %d, expected %d", ErrAdapterRejected, name, moved, amount)
	}
	return nil
}

func (p *Program) deposit(ctx *runtime.Context, accounts []*solana.AccountMeta, amount uint64) error {
	if amount == 0 {
		return ErrInvalidAmount
	}
	r := newAccountReader(accounts)
	a := p.readTransferAccounts(r)
	if r.err != nil {
		return r.err
	}
	txn := ctx.Txn()
	pool, err := p.checkTransferAccounts(txn, a)
	if err != nil {
		return err
	}
	inputMint, err := txn.Mint(pool.InputTokenMint)
	if err != nil {
		return translate(err)
	}
	held, err := balanceOf(txn, "signer_input_token_vault", a.SignerInputTokenVault)
	if err != nil {
		return err
	}
	if held < amount {
		return fmt.Errorf("%w: signer holds %d, deposit %d", ErrInsufficientFunds, held, amount)
	}

	if err := txn.TransferChecked(ctx, a.SignerInputTokenVault, a.PoolInputTokenVault, pool.InputTokenMint, amount, inputMint.Decimals); err != nil {
		return translate(err)
	}
	if pool.Restaked {
		err := callAdapter(txn, RestakingRestake, a.Restake.PoolRestakedTokenVault, amount, true, func() error {
			return p.restaking.Restake(ctx, p.restakeCall(pool, a, amount))
		})
		if err != nil {
			return err
		}
	}

	if _, err := txn.CreateAssociatedTokenAccount(a.Signer, pool.OutputTokenMint); err != nil {
		return translate(err)
	}
	poolCtx, err := ctx.WithSigner(pool.SignerSeeds())
	if err != nil {
		return err
	}
	if err := txn.MintTo(poolCtx, pool.OutputTokenMint, a.SignerOutputTokenVault, amount); err != nil {
		return translate(err)
	}

	ctx.Logf("deposited %d into %s", amount, a.Pool)
	ctx.Emit(InstructionDeposit, transferEvent(a, amount))
	return nil
}

func (p *Program) withdraw(ctx *runtime.Context, accounts []*solana.AccountMeta, amount uint64) error {
	if amount == 0 {
		return ErrInvalidAmount
	}
	r := newAccountReader(accounts)
	a := p.readTransferAccounts(r)
	if r.err != nil {
		return r.err
	}
	txn := ctx.Txn()
	pool, err := p.checkTransferAccounts(txn, a)
	if err != nil {
		return err
	}
	if err := checkReceipts(txn, a, amount); err != nil {
		return err
	}
	liquid, err := p.liquidity(txn, pool, a)
	if err != nil {
		return err
	}
	if liquid < amount {
		return fmt.Errorf("%w: pool holds %d undelegated, withdraw %d", ErrInsufficientLiquidity, liquid, amount)
	}

	if err := txn.Burn(ctx, pool.OutputTokenMint, a.SignerOutputTokenVault, amount); err != nil {
		return translate(err)
	}
	if err := p.payOut(ctx, pool, a, amount); err != nil {
		return err
	}

	ctx.Logf("withdrew %d from %s", amount, a.Pool)
	ctx.Emit(InstructionWithdraw, transferEvent(a, amount))
	return nil
}

func checkReceipts(txn *ledger.Txn, a TransferAccounts, amount uint64) error {
	receipts, err := balanceOf(txn, "signer_output_token_vault", a.SignerOutputTokenVault)
	if err != nil {
		return err
	}
	if receipts < amount {
		return fmt.Errorf("%w: signer holds %d receipts, redeem %d", ErrInsufficientFunds, receipts, amount)
	}
	return nil
}

// liquidity is the undelegated value of the pool. Restaked pools count both
// the input and the restaked vault.
func (p *Program) liquidity(txn *ledger.Txn, pool *Pool, a TransferAccounts) (uint64, error) {
	input, err := balanceOf(txn, "pool_input_token_vault", a.PoolInputTokenVault)
	if err != nil || !pool.Restaked {
		return input, err
	}
	restaked, err := balanceOf(txn, "pool_restaked_token_vault", a.Restake.PoolRestakedTokenVault)
	if err != nil {
		return 0, err
	}
	total, err := ledger.CheckedAdd(input, restaked)
	if err != nil {
		return 0, translate(err)
	}
	return total, nil
}

// payOut unrestakes whatever the input vault lacks and moves amount of the
// input asset from the pool to the signer, creating the signer's associated
// account if absent.
func (p *Program) payOut(ctx *runtime.Context, pool *Pool, a TransferAccounts, amount uint64) error {
	txn := ctx.Txn()
	if pool.Restaked {
		held, err := balanceOf(txn, "pool_input_token_vault", a.PoolInputTokenVault)
		if err != nil {
			return err
		}
		if held < amount {
			shortfall := amount - held
			err := callAdapter(txn, RestakingUnrestake, a.PoolInputTokenVault, shortfall, true, func() error {
				return p.restaking.Unrestake(ctx, p.restakeCall(pool, a, shortfall))
			})
			if err != nil {
				return err
			}
		}
	}

	available, err := balanceOf(txn, "pool_input_token_vault", a.PoolInputTokenVault)
	if err != nil {
		return err
	}
	if available < amount {
		return fmt.Errorf("%w: pool input vault holds %d, pay out %d", ErrInsufficientLiquidity, available, amount)
	}
	if !txn.Exists(a.SignerInputTokenVault) {
		if err := expectVault("signer_input_token_vault", a.SignerInputTokenVault, a.Signer, pool.InputTokenMint); err != nil {
			return err
		}
		if _, err := txn.CreateAssociatedTokenAccount(a.Signer, pool.InputTokenMint); err != nil {
			return translate(err)
		}
	}

	inputMint, err := txn.Mint(pool.InputTokenMint)
	if err != nil {
		return translate(err)
	}
	poolCtx, err := ctx.WithSigner(pool.SignerSeeds())
	if err != nil {
		return err
	}
	if err := txn.TransferChecked(poolCtx, a.PoolInputTokenVault, a.SignerInputTokenVault, pool.InputTokenMint, amount, inputMint.Decimals); err != nil {
		return translate(err)
	}
	return nil
}

// checkDelegateAccounts binds the delegation accounts to the pool and
// requires the delegate authority to sign.
func (p *Program) checkDelegateAccounts(txn *ledger.Txn, a DelegateAccounts) (*Pool, error) {
	pool, err := p.loadPool(txn, a.Pool)
	if err != nil {
		return nil, err
	}
	if !a.Signer.Equals(pool.DelegateAuthority) {
		return nil, fmt.Errorf("%w: %s", ErrUnauthorized, a.Signer)
	}
	if err := expectKey("delegated_token_mint", a.DelegatedTokenMint, pool.LiquidMint()); err != nil {
		return nil, err
	}
	if err := expectVault("pool_delegated_token_vault", a.PoolDelegatedTokenVault, a.Pool, pool.LiquidMint()); err != nil {
		return nil, err
	}
	if err := p.checkAVSAccounts(txn, pool, a.Pool, AVSAccounts{
		AVS:                    a.AVS,
		AVSTokenMint:           a.AVSTokenMint,
		AVSDelegatedTokenVault: a.AVSDelegatedTokenVault,
		PoolAVSTokenVault:      a.PoolAVSTokenVault,
		AVSProgram:             a.AVSProgram,
	}); err != nil {
		return nil, err
	}
	return pool, nil
}

// checkAVSAccounts pins the AVS program the pool signs for and binds the
// AVS custody accounts to it.
func (p *Program) checkAVSAccounts(txn *ledger.Txn, pool *Pool, poolKey solana.PublicKey, a AVSAccounts) error {
	if err := expectKey("avs_program", a.AVSProgram, p.cfg.AVSProgram); err != nil {
		return err
	}
	if err := expectVault("avs_delegated_token_vault", a.AVSDelegatedTokenVault, a.AVS, pool.LiquidMint()); err != nil {
		return err
	}
	if err := expectVault("pool_avs_token_vault", a.PoolAVSTokenVault, poolKey, a.AVSTokenMint); err != nil {
		return err
	}
	mint, err := txn.Mint(a.AVSTokenMint)
	if err != nil {
		return translate(err)
	}
	if !mint.MintAuthority.Equals(a.AVS) {
		return fmt.Errorf("%w: avs token mint authority is %s, expected %s", ErrAccountMismatch, mint.MintAuthority, a.AVS)
	}
	return nil
}

func (p *Program) delegateCall(pool *Pool, a DelegateAccounts, amount uint64) AVSCall {
	return AVSCall{
		Program:                     a.AVSProgram,
		Staker:                      a.Pool,
		StakerSeeds:                 pool.SignerSeeds(),
		AVS:                         a.AVS,
		AVSTokenMint:                a.AVSTokenMint,
		DelegatedTokenVault:         a.AVSDelegatedTokenVault,
		DelegatedTokenMint:          a.DelegatedTokenMint,
		StakerDelegatedTokenAccount: a.PoolDelegatedTokenVault,
		StakerAVSTokenAccount:       a.PoolAVSTokenVault,
		Remaining:                   a.Remaining,
		Amount:                      amount,
	}
}

func (p *Program) delegate(ctx *runtime.Context, accounts []*solana.AccountMeta, amount uint64) error {
	if amount == 0 {
		return ErrInvalidAmount
	}
	r := newAccountReader(accounts)
	a := p.readDelegateAccounts(r)
	if r.err != nil {
		return r.err
	}
	txn := ctx.Txn()
	pool, err := p.checkDelegateAccounts(txn, a)
	if err != nil {
		return err
	}
	liquid, err := balanceOf(txn, "pool_delegated_token_vault", a.PoolDelegatedTokenVault)
	if err != nil {
		return err
	}
	if liquid < amount {
		return fmt.Errorf("%w: pool holds %d undelegated, delegate %d", ErrInsufficientLiquidity, liquid, amount)
	}
	if _, err := txn.CreateAssociatedTokenAccount(a.Pool, a.AVSTokenMint); err != nil {
		return translate(err)
	}

	avsBefore, err := balanceOf(txn, "pool_avs_token_vault", a.PoolAVSTokenVault)
	if err != nil {
		return err
	}
	err = callAdapter(txn, AVSDelegate, a.PoolDelegatedTokenVault, amount, false, func() error {
		return p.avs.Delegate(ctx, p.delegateCall(pool, a, amount))
	})
	if err != nil {
		return err
	}
	avsAfter, err := balanceOf(txn, "pool_avs_token_vault", a.PoolAVSTokenVault)
	if err != nil {
		return err
	}
	if avsAfter <= avsBefore {
		return fmt.Errorf("%w: AVS receipt vault did not grow", ErrAdapterRejected)
	}

	ctx.Logf("delegated %d from %s to %s", amount, a.Pool, a.AVS)
	ctx.Emit(InstructionDelegate, delegateEvent(a, amount))
	return nil
}

func (p *Program) undelegate(ctx *runtime.Context, accounts []*solana.AccountMeta, amount uint64) error {
	if amount == 0 {
		return ErrInvalidAmount
	}
	r := newAccountReader(accounts)
	a := p.readDelegateAccounts(r)
	if r.err != nil {
		return r.err
	}
	txn := ctx.Txn()
	pool, err := p.checkDelegateAccounts(txn, a)
	if err != nil {
		return err
	}
	avsBefore, err := balanceOf(txn, "pool_avs_token_vault", a.PoolAVSTokenVault)
	if err != nil {
		return err
	}
	if avsBefore < amount {
		return fmt.Errorf("%w: pool holds %d AVS tokens, undelegate %d", ErrInsufficientDelegatedStake, avsBefore, amount)
	}
	liquidBefore, err := balanceOf(txn, "pool_delegated_token_vault", a.PoolDelegatedTokenVault)
	if err != nil {
		return err
	}

	if err := p.avs.Undelegate(ctx, p.delegateCall(pool, a, amount)); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrAdapterRejected, AVSUndelegate, err)
	}

	liquidAfter, err := balanceOf(txn, "pool_delegated_token_vault", a.PoolDelegatedTokenVault)
	if err != nil {
		return err
	}
	avsAfter, err := balanceOf(txn, "pool_avs_token_vault", a.PoolAVSTokenVault)
	if err != nil {
		return err
	}
	if liquidAfter < liquidBefore || liquidAfter-liquidBefore != amount || avsAfter > avsBefore || avsBefore-avsAfter != amount {
		ctx.Logf("undelegate postcondition not met: liquid %d -> %d, avs %d -> %d", liquidBefore, liquidAfter, avsBefore, avsAfter)
		p.logger.Warn("undelegate postcondition not met",
			"pool", a.Pool.String(),
			"amount", amount,
			"liquid_before", liquidBefore,
			"liquid_after", liquidAfter,
			"avs_before", avsBefore,
			"avs_after", avsAfter,
		)
	}

	ctx.Logf("undelegated %d from %s", amount, a.AVS)
	ctx.Emit(InstructionUndelegate, delegateEvent(a, amount))
	return nil
}

func (p *Program) withdrawDelegatedStake(ctx *runtime.Context, accounts []*solana.AccountMeta, amount uint64) error {
	if amount == 0 {
		return ErrInvalidAmount
	}
	r := newAccountReader(accounts)
	a := p.readTransferAccounts(r)
	avs := AVSAccounts{
		AVS:                    r.next("avs", true, false),
		AVSTokenMint:           r.next("avs_token_mint", true, false),
		AVSDelegatedTokenVault: r.next("avs_delegated_token_vault", true, false),
		PoolAVSTokenVault:      r.next("pool_avs_token_vault", true, false),
		AVSProgram:             r.next("avs_program", false, false),
	}
	avs.Remaining = r.rest()
	if r.err != nil {
		return r.err
	}

	txn := ctx.Txn()
	pool, err := p.checkTransferAccounts(txn, a)
	if err != nil {
		return err
	}
	if err := p.checkAVSAccounts(txn, pool, a.Pool, avs); err != nil {
		return err
	}
	if err := checkReceipts(txn, a, amount); err != nil {
		return err
	}
	delegated, err := balanceOf(txn, "pool_avs_token_vault", avs.PoolAVSTokenVault)
	if err != nil {
		return err
	}
	if delegated < amount {
		return fmt.Errorf("%w: pool holds %d AVS tokens, redeem %d", ErrInsufficientDelegatedStake, delegated, amount)
	}

	if err := txn.Burn(ctx, pool.OutputTokenMint, a.SignerOutputTokenVault, amount); err != nil {
		return translate(err)
	}

	vault := liquidVault(pool, a)
	call := AVSCall{
		Program:                     avs.AVSProgram,
		Staker:                      a.Pool,
		StakerSeeds:                 pool.SignerSeeds(),
		AVS:                         avs.AVS,
		AVSTokenMint:                avs.AVSTokenMint,
		DelegatedTokenVault:         avs.AVSDelegatedTokenVault,
		DelegatedTokenMint:          pool.LiquidMint(),
		StakerDelegatedTokenAccount: vault,
		StakerAVSTokenAccount:       avs.PoolAVSTokenVault,
		Remaining:                   avs.Remaining,
		Amount:                      amount,
	}
	err = callAdapter(txn, AVSUndelegate, vault, amount, true, func() error {
		return p.avs.Undelegate(ctx, call)
	})
	if err != nil {
		return err
	}
	remaining, err := balanceOf(txn, "pool_avs_token_vault", avs.PoolAVSTokenVault)
	if err != nil {
		return err
	}
	if remaining > delegated || delegated-remaining != amount {
		return fmt.Errorf("%w: pool avs vault %d -> %d, expected -%d", ErrAdapterRejected, delegated, remaining, amount)
	}
	if err := p.payOut(ctx, pool, a, amount); err != nil {
		return err
	}

	ctx.Logf("redeemed %d delegated stake from %s", amount, a.Pool)
	event := transferEvent(a, amount)
	event["avs"] = avs.AVS.String()
	ctx.Emit(InstructionWithdrawDelegatedStake, event)
	return nil
}

func (p *Program) transferDelegateAuthority(ctx *runtime.Context, accounts []*solana.AccountMeta) error {
	r := newAccountReader(accounts)
	authority := r.next("authority", true, true)
	poolKey := r.next("pool", true, false)
	newAuthority := r.next("new_authority", false, false)
	if r.err != nil {
		return r.err
	}

	txn := ctx.Txn()
	pool, err := p.loadPool(txn, poolKey)
	if err != nil {
		return err
	}
	if !authority.Equals(pool.DelegateAuthority) {
		return fmt.Errorf("%w: %s", ErrUnauthorized, authority)
	}
	if newAuthority.IsZero() {
		return ErrInvalidAuthority
	}
	previous := pool.DelegateAuthority
	pool.DelegateAuthority = newAuthority
	if err := p.storePool(txn, poolKey, pool); err != nil {
		return err
	}

	ctx.Logf("delegate authority of %s: %s -> %s", poolKey, previous, newAuthority)
	ctx.Emit(InstructionTransferDelegateAuthority, map[string]any{
		"pool":          poolKey.String(),
		"old_authority": previous.String(),
		"new_authority": newAuthority.String(),
	})
	return nil
}

func transferEvent(a TransferAccounts, amount uint64) map[string]any {
	return map[string]any{
		"pool":   a.Pool.String(),
		"signer": a.Signer.String(),
		"amount": amount,
	}
}

func delegateEvent(a DelegateAccounts, amount uint64) map[string]any {
	return map[string]any{
		"pool":   a.Pool.String(),
		"signer": a.Signer.String(),
		"avs":    a.AVS.String(),
		"amount": amount,
	}
}
