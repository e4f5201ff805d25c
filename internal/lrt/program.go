package lrt

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/gagliardetto/solana-go"

	"github.com/coldbell/restake/backend/internal/ledger"
	"github.com/coldbell/restake/backend/internal/runtime"
)

var ErrProgramNotConfigured = errors.New("external program id not configured")

// Config pins the external programs the pool signs for. Both are compared
// against the caller-supplied program accounts on every call.
type Config struct {
	ProgramID  solana.PublicKey
	Variant    Variant
	AVSProgram solana.PublicKey
	// RestakingProgram is required for the restaked variant.
	RestakingProgram solana.PublicKey
}

// Program is the pool's instruction processor.
type Program struct {
	cfg       Config
	logger    *slog.Logger
	restaking RestakingAdapter
	avs       AVSAdapter
}

type Option func(*Program)

func WithRestakingAdapter(adapter RestakingAdapter) Option {
	return func(p *Program) {
		p.restaking = adapter
	}
}

func WithAVSAdapter(adapter AVSAdapter) Option {
	return func(p *Program) {
		p.avs = adapter
	}
}

func NewProgram(logger *slog.Logger, cfg Config, opts ...Option) (*Program, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Variant == "" {
		cfg.Variant = VariantDirect
	}
	if cfg.AVSProgram.IsZero() {
		return nil, fmt.Errorf("%w: avs program", ErrProgramNotConfigured)
	}
	if cfg.Variant.Restaked() && cfg.RestakingProgram.IsZero() {
		return nil, fmt.Errorf("%w: restaking program", ErrProgramNotConfigured)
	}
	p := &Program{
		cfg:       cfg,
		logger:    logger,
		restaking: CPIRestakingAdapter{},
		avs:       CPIAVSAdapter{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *Program) ID() solana.PublicKey {
	return p.cfg.ProgramID
}

func (p *Program) Variant() Variant {
	return p.cfg.Variant
}

func (p *Program) Process(ctx *runtime.Context, accounts []*solana.AccountMeta, data []byte) error {
	ix, err := DecodeInstructionData(data)
	if err != nil {
		return err
	}
	ctx.Logf("Instruction: %s", ix.Name)

	switch ix.Name {
	case InstructionInitialize:
		return p.initialize(ctx, accounts)
	case InstructionDeposit:
		return p.deposit(ctx, accounts, ix.Amount)
	case InstructionWithdraw:
		return p.withdraw(ctx, accounts, ix.Amount)
	case InstructionDelegate:
		return p.delegate(ctx, accounts, ix.Amount)
	case InstructionUndelegate:
		return p.undelegate(ctx, accounts, ix.Amount)
	case InstructionWithdrawDelegatedStake:
		return p.withdrawDelegatedStake(ctx, accounts, ix.Amount)
	case InstructionTransferDelegateAuthority:
		return p.transferDelegateAuthority(ctx, accounts)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownInstruction, ix.Name)
	}
}

// loadPool reads the pool record and verifies that key is the address its
// own seeds derive under this program.
func (p *Program) loadPool(txn *ledger.Txn, key solana.PublicKey) (*Pool, error) {
	account, err := txn.Data(key)
	if err != nil {
		return nil, fmt.Errorf("%w: pool %s: %w", ErrAccountMismatch, key, err)
	}
	if !account.Owner.Equals(p.cfg.ProgramID) {
		return nil, fmt.Errorf("%w: pool %s is owned by %s", ErrAccountMismatch, key, account.Owner)
	}
	pool, err := DecodePool(account.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAccountMismatch, err)
	}
	if pool.Restaked != p.cfg.Variant.Restaked() {
		return nil, fmt.Errorf("%w: pool %s is a %s pool", ErrAccountMismatch, key, pool.Variant())
	}
	derived, err := solana.CreateProgramAddress(pool.SignerSeeds(), p.cfg.ProgramID)
	if err != nil {
		return nil, fmt.Errorf("%w: pool seeds: %w", ErrAccountMismatch, err)
	}
	if err := expectKey("pool", key, derived); err != nil {
		return nil, err
	}
	return pool, nil
}

func (p *Program) storePool(txn *ledger.Txn, key solana.PublicKey, pool *Pool) error {
	data, err := EncodePool(*pool)
	if err != nil {
		return err
	}
	return txn.WriteData(p.cfg.ProgramID, key, data)
}

func balanceOf(txn *ledger.Txn, name string, key solana.PublicKey) (uint64, error) {
	amount, err := txn.Balance(key)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, translate(err))
	}
	return amount, nil
}

// liquidVault is the pool account holding the delegatable asset.
func liquidVault(pool *Pool, a TransferAccounts) solana.PublicKey {
	if pool.Restaked && a.Restake != nil {
		return a.Restake.PoolRestakedTokenVault
	}
	return a.PoolInputTokenVault
}
