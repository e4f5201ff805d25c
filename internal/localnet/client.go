package localnet

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/coldbell/restake/backend/internal/ledger"
	"github.com/coldbell/restake/backend/internal/lrt"
	"github.com/coldbell/restake/backend/internal/pda"
	"github.com/coldbell/restake/backend/internal/runtime"
)

// Client builds pool instructions with their full account lists and submits
// them to the localnet runtime.
type Client struct {
	net *Localnet
}

func (n *Localnet) Client() *Client {
	return &Client{net: n}
}

func (c *Client) programID() solana.PublicKey {
	return c.net.cfg.LRTProgramID
}

// PoolAddress derives the pool of outputMint under the localnet variant.
func (c *Client) PoolAddress(outputMint solana.PublicKey) (solana.PublicKey, error) {
	seeds := pda.PoolSeeds{
		InputMint:  c.net.cfg.InputMint,
		OutputMint: outputMint,
		Restaked:   c.net.cfg.Variant.Restaked(),
	}
	if seeds.Restaked {
		seeds.RestakedMint = c.net.cfg.RestakedMint
	}
	address, _, err := pda.DerivePoolAddress(c.programID(), seeds)
	return address, err
}

func (c *Client) Pool(pool solana.PublicKey) (*lrt.Pool, error) {
	account, err := c.net.ledger.Data(pool)
	if err != nil {
		return nil, err
	}
	if !account.Owner.Equals(c.programID()) {
		return nil, fmt.Errorf("%w: %s is not a pool", lrt.ErrAccountMismatch, pool)
	}
	return lrt.DecodePool(account.Data)
}

// Pools lists every pool record owned by the pool program.
func (c *Client) Pools() ([]PoolView, error) {
	var out []PoolView
	for _, account := range c.net.ledger.ProgramAccounts(c.programID()) {
		if !lrt.IsPoolAccount(account.Account.Data) {
			continue
		}
		pool, err := lrt.DecodePool(account.Account.Data)
		if err != nil {
			return nil, err
		}
		view, err := c.view(account.Address, pool)
		if err != nil {
			return nil, err
		}
		out = append(out, view)
	}
	return out, nil
}

// PoolView is a pool record together with its vault balances.
type PoolView struct {
	Address             solana.PublicKey `json:"address"`
	Pool                lrt.Pool         `json:"pool"`
	Variant             string           `json:"variant"`
	InputVault          uint64           `json:"input_vault"`
	RestakedVault       uint64           `json:"restaked_vault"`
	AVSVault            uint64           `json:"avs_vault"`
	OutputSupply        uint64           `json:"output_supply"`
	OutputMintAuthority solana.PublicKey `json:"output_mint_authority"`
}

// Backing is the value the pool holds across its vaults.
func (v PoolView) Backing() (uint64, error) {
	return ledger.CheckedAdd(v.InputVault, v.RestakedVault, v.AVSVault)
}

func (c *Client) View(pool solana.PublicKey) (PoolView, error) {
	record, err := c.Pool(pool)
	if err != nil {
		return PoolView{}, err
	}
	return c.view(pool, record)
}

func (c *Client) view(address solana.PublicKey, pool *lrt.Pool) (PoolView, error) {
	view := PoolView{Address: address, Pool: *pool, Variant: pool.Variant().String()}
	var err error
	if view.InputVault, err = c.balanceOf(address, pool.InputTokenMint); err != nil {
		return PoolView{}, err
	}
	if pool.Restaked {
		if view.RestakedVault, err = c.balanceOf(address, pool.RestakedTokenMint); err != nil {
			return PoolView{}, err
		}
	}
	if view.AVSVault, err = c.balanceOf(address, c.net.avs.AVSTokenMint); err != nil {
		return PoolView{}, err
	}
	mint, err := c.net.ledger.Mint(pool.OutputTokenMint)
	if err != nil {
		return PoolView{}, err
	}
	view.OutputSupply = mint.Supply
	view.OutputMintAuthority = mint.MintAuthority
	return view, nil
}

// balanceOf reads owner's associated account of mint; absent accounts hold 0.
func (c *Client) balanceOf(owner, mint solana.PublicKey) (uint64, error) {
	vault, err := pda.DeriveVaultAddress(owner, mint)
	if err != nil {
		return 0, err
	}
	amount, err := c.net.ledger.Balance(vault)
	if errors.Is(err, ledger.ErrAccountNotFound) {
		return 0, nil
	}
	return amount, err
}

// BalanceOf is balanceOf for callers outside the package.
func (c *Client) BalanceOf(owner, mint solana.PublicKey) (uint64, error) {
	return c.balanceOf(owner, mint)
}

func (c *Client) submit(ctx context.Context, signer solana.PublicKey, ix solana.Instruction) (*runtime.Receipt, error) {
	return c.net.runtime.Submit(ctx, runtime.Transaction{
		Signers:      []solana.PublicKey{signer},
		Instructions: []solana.Instruction{ix},
	})
}

func (c *Client) InitializeInstruction(signer, delegateAuthority, outputMint solana.PublicKey) (solana.Instruction, solana.PublicKey, error) {
	pool, err := c.PoolAddress(outputMint)
	if err != nil {
		return nil, solana.PublicKey{}, err
	}
	cfg := c.net.cfg
	accounts := lrt.InitializeAccounts{
		Signer:              signer,
		DelegateAuthority:   delegateAuthority,
		InputTokenMint:      cfg.InputMint,
		PoolInputTokenVault: pda.MustDeriveVaultAddress(pool, cfg.InputMint),
		OutputTokenMint:     outputMint,
		Pool:                pool,
	}
	if cfg.Variant.Restaked() {
		accounts.Restake = &lrt.RestakeAccounts{
			RestakedTokenMint:      cfg.RestakedMint,
			PoolRestakedTokenVault: pda.MustDeriveVaultAddress(pool, cfg.RestakedMint),
		}
	}
	return lrt.NewInitializeInstruction(c.programID(), accounts), pool, nil
}

func (c *Client) Initialize(ctx context.Context, signer, delegateAuthority, outputMint solana.PublicKey) (solana.PublicKey, *runtime.Receipt, error) {
	ix, pool, err := c.InitializeInstruction(signer, delegateAuthority, outputMint)
	if err != nil {
		return solana.PublicKey{}, nil, err
	}
	receipt, err := c.submit(ctx, signer, ix)
	return pool, receipt, err
}

// CreatePool creates a fresh output mint owned by signer and initializes a
// pool over it.
func (c *Client) CreatePool(ctx context.Context, signer, delegateAuthority solana.PublicKey) (solana.PublicKey, *runtime.Receipt, error) {
	outputMint, err := c.net.CreateOutputMint(ctx, signer)
	if err != nil {
		return solana.PublicKey{}, nil, err
	}
	return c.Initialize(ctx, signer, delegateAuthority, outputMint)
}

// TransferAccounts assembles the deposit/withdraw account set of pool for
// signer.
func (c *Client) TransferAccounts(pool, signer solana.PublicKey) (lrt.TransferAccounts, error) {
	record, err := c.Pool(pool)
	if err != nil {
		return lrt.TransferAccounts{}, err
	}
	a := lrt.TransferAccounts{
		Signer:                 signer,
		InputTokenMint:         record.InputTokenMint,
		SignerInputTokenVault:  pda.MustDeriveVaultAddress(signer, record.InputTokenMint),
		PoolInputTokenVault:    pda.MustDeriveVaultAddress(pool, record.InputTokenMint),
		OutputTokenMint:        record.OutputTokenMint,
		SignerOutputTokenVault: pda.MustDeriveVaultAddress(signer, record.OutputTokenMint),
		Pool:                   pool,
	}
	if record.Restaked {
		restaking := c.net.restaking
		if restaking == nil {
			return lrt.TransferAccounts{}, fmt.Errorf("pool %s is restaked but no restaking pool is deployed", pool)
		}
		a.Restake = &lrt.RestakeAccounts{
			RestakedTokenMint:       record.RestakedTokenMint,
			PoolRestakedTokenVault:  pda.MustDeriveVaultAddress(pool, record.RestakedTokenMint),
			RestakingPool:           restaking.Pool,
			RestakingPoolInputVault: restaking.InputVault,
			RestakingProgram:        restaking.ProgramID,
		}
	}
	return a, nil
}

// DelegateAccounts assembles the delegate/undelegate account set. Undelegate
// additionally forwards the trailing accounts the AVS program expects.
func (c *Client) DelegateAccounts(pool, signer solana.PublicKey, undelegate bool) (lrt.DelegateAccounts, error) {
	record, err := c.Pool(pool)
	if err != nil {
		return lrt.DelegateAccounts{}, err
	}
	avs := c.net.avs
	liquidVault := pda.MustDeriveVaultAddress(pool, record.LiquidMint())
	a := lrt.DelegateAccounts{
		Signer:                  signer,
		AVS:                     avs.AVS,
		AVSTokenMint:            avs.AVSTokenMint,
		AVSDelegatedTokenVault:  avs.DelegatedTokenVault,
		DelegatedTokenMint:      record.LiquidMint(),
		PoolDelegatedTokenVault: liquidVault,
		PoolAVSTokenVault:       pda.MustDeriveVaultAddress(pool, avs.AVSTokenMint),
		Pool:                    pool,
		AVSProgram:              avs.ProgramID,
	}
	if undelegate {
		a.Remaining = avs.UndelegateRemaining(pool, liquidVault)
	}
	return a, nil
}

func (c *Client) AVSAccounts(pool solana.PublicKey) (lrt.AVSAccounts, error) {
	record, err := c.Pool(pool)
	if err != nil {
		return lrt.AVSAccounts{}, err
	}
	avs := c.net.avs
	return lrt.AVSAccounts{
		AVS:                    avs.AVS,
		AVSTokenMint:           avs.AVSTokenMint,
		AVSDelegatedTokenVault: avs.DelegatedTokenVault,
		PoolAVSTokenVault:      pda.MustDeriveVaultAddress(pool, avs.AVSTokenMint),
		AVSProgram:             avs.ProgramID,
		Remaining:              avs.UndelegateRemaining(pool, pda.MustDeriveVaultAddress(pool, record.LiquidMint())),
	}, nil
}

// Instruction builds the named pool instruction. newAuthority is only read
// by transfer_delegate_authority.
func (c *Client) Instruction(name string, pool, signer solana.PublicKey, amount uint64, newAuthority solana.PublicKey) (solana.Instruction, error) {
	switch name {
	case lrt.InstructionDeposit, lrt.InstructionWithdraw:
		a, err := c.TransferAccounts(pool, signer)
		if err != nil {
			return nil, err
		}
		if name == lrt.InstructionDeposit {
			return lrt.NewDepositInstruction(c.programID(), a, amount), nil
		}
		return lrt.NewWithdrawInstruction(c.programID(), a, amount), nil
	case lrt.InstructionDelegate, lrt.InstructionUndelegate:
		undelegate := name == lrt.InstructionUndelegate
		a, err := c.DelegateAccounts(pool, signer, undelegate)
		if err != nil {
			return nil, err
		}
		if undelegate {
			return lrt.NewUndelegateInstruction(c.programID(), a, amount), nil
		}
		return lrt.NewDelegateInstruction(c.programID(), a, amount), nil
	case lrt.InstructionWithdrawDelegatedStake:
		a, err := c.TransferAccounts(pool, signer)
		if err != nil {
			return nil, err
		}
		avs, err := c.AVSAccounts(pool)
		if err != nil {
			return nil, err
		}
		return lrt.NewWithdrawDelegatedStakeInstruction(c.programID(), a, avs, amount), nil
	case lrt.InstructionTransferDelegateAuthority:
		return lrt.NewTransferDelegateAuthorityInstruction(c.programID(), signer, pool, newAuthority), nil
	default:
		return nil, fmt.Errorf("%w: %s", lrt.ErrUnknownInstruction, name)
	}
}

func (c *Client) Execute(ctx context.Context, name string, pool, signer solana.PublicKey, amount uint64, newAuthority solana.PublicKey) (*runtime.Receipt, error) {
	ix, err := c.Instruction(name, pool, signer, amount, newAuthority)
	if err != nil {
		return nil, err
	}
	return c.submit(ctx, signer, ix)
}

func (c *Client) Deposit(ctx context.Context, pool, signer solana.PublicKey, amount uint64) (*runtime.Receipt, error) {
	return c.Execute(ctx, lrt.InstructionDeposit, pool, signer, amount, solana.PublicKey{})
}

func (c *Client) Withdraw(ctx context.Context, pool, signer solana.PublicKey, amount uint64) (*runtime.Receipt, error) {
	return c.Execute(ctx, lrt.InstructionWithdraw, pool, signer, amount, solana.PublicKey{})
}

func (c *Client) Delegate(ctx context.Context, pool, signer solana.PublicKey, amount uint64) (*runtime.Receipt, error) {
	return c.Execute(ctx, lrt.InstructionDelegate, pool, signer, amount, solana.PublicKey{})
}

func (c *Client) Undelegate(ctx context.Context, pool, signer solana.PublicKey, amount uint64) (*runtime.Receipt, error) {
	return c.Execute(ctx, lrt.InstructionUndelegate, pool, signer, amount, solana.PublicKey{})
}

func (c *Client) WithdrawDelegatedStake(ctx context.Context, pool, signer solana.PublicKey, amount uint64) (*runtime.Receipt, error) {
	return c.Execute(ctx, lrt.InstructionWithdrawDelegatedStake, pool, signer, amount, solana.PublicKey{})
}

func (c *Client) TransferDelegateAuthority(ctx context.Context, pool, signer, newAuthority solana.PublicKey) (*runtime.Receipt, error) {
	return c.Execute(ctx, lrt.InstructionTransferDelegateAuthority, pool, signer, 0, newAuthority)
}
