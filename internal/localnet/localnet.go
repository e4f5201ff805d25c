package localnet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gagliardetto/solana-go"

	"github.com/coldbell/restake/backend/internal/avs"
	"github.com/coldbell/restake/backend/internal/ledger"
	"github.com/coldbell/restake/backend/internal/lrt"
	"github.com/coldbell/restake/backend/internal/restaking"
	"github.com/coldbell/restake/backend/internal/runtime"
)

var ErrFaucetLimit = errors.New("faucet amount exceeds limit")

type Config struct {
	Variant            lrt.Variant
	LRTProgramID       solana.PublicKey
	AVSProgramID       solana.PublicKey
	RestakingProgramID solana.PublicKey

	InputMint     solana.PublicKey
	InputDecimals uint8
	RestakedMint  solana.PublicKey
	AVSTokenMint  solana.PublicKey

	// FaucetAuthority holds mint authority over the input mint.
	FaucetAuthority solana.PublicKey
	FaucetMaxAmount uint64
}

// WithDefaults fills every unset key with a fresh random key.
func (c Config) WithDefaults() Config {
	fill := func(key *solana.PublicKey) {
		if key.IsZero() {
			*key = solana.NewWallet().PublicKey()
		}
	}
	if c.Variant == "" {
		c.Variant = lrt.VariantDirect
	}
	fill(&c.LRTProgramID)
	fill(&c.AVSProgramID)
	fill(&c.RestakingProgramID)
	fill(&c.InputMint)
	fill(&c.RestakedMint)
	fill(&c.AVSTokenMint)
	fill(&c.FaucetAuthority)
	if c.InputDecimals == 0 {
		c.InputDecimals = 9
	}
	return c
}

// Localnet is an in-process deployment: the ledger, the runtime and the
// pool, AVS and restaking programs registered on it.
type Localnet struct {
	cfg     Config
	logger  *slog.Logger
	ledger  *ledger.Ledger
	runtime *runtime.Runtime
	program *lrt.Program

	avs       avs.Deployment
	restaking *restaking.Deployment
}

func New(logger *slog.Logger, cfg Config, opts ...lrt.Option) (*Localnet, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.WithDefaults()

	l := ledger.New()
	rt := runtime.New(logger.With("component", "runtime"), l)

	programCfg := lrt.Config{
		ProgramID:  cfg.LRTProgramID,
		Variant:    cfg.Variant,
		AVSProgram: cfg.AVSProgramID,
	}
	if cfg.Variant.Restaked() {
		programCfg.RestakingProgram = cfg.RestakingProgramID
	}
	program, err := lrt.NewProgram(logger.With("component", "lrt"), programCfg, opts...)
	if err != nil {
		return nil, err
	}
	for _, p := range []runtime.Program{
		program,
		avs.NewProgram(logger.With("component", "avs"), cfg.AVSProgramID),
		restaking.NewProgram(logger.With("component", "restaking"), cfg.RestakingProgramID),
	} {
		if err := rt.Register(p); err != nil {
			return nil, err
		}
	}

	n := &Localnet{
		cfg:     cfg,
		logger:  logger,
		ledger:  l,
		runtime: rt,
		program: program,
	}
	if err := n.genesis(); err != nil {
		return nil, fmt.Errorf("localnet genesis: %w", err)
	}
	logger.Info("localnet ready",
		"variant", cfg.Variant.String(),
		"lrt_program", cfg.LRTProgramID.String(),
		"avs_program", cfg.AVSProgramID.String(),
		"input_mint", cfg.InputMint.String(),
		"avs", n.avs.AVS.String(),
	)
	return n, nil
}

func (n *Localnet) genesis() error {
	_, err := n.ledger.Update(func(txn *ledger.Txn) error {
		if err := txn.CreateMint(n.cfg.InputMint, n.cfg.InputDecimals, n.cfg.FaucetAuthority, n.cfg.FaucetAuthority); err != nil {
			return fmt.Errorf("input mint: %w", err)
		}
		liquidMint := n.cfg.InputMint
		if n.cfg.Variant.Restaked() {
			deployment, err := restaking.Bootstrap(txn, n.cfg.RestakingProgramID, n.cfg.InputMint, n.cfg.RestakedMint)
			if err != nil {
				return fmt.Errorf("restaking pool: %w", err)
			}
			n.restaking = &deployment
			liquidMint = n.cfg.RestakedMint
		}
		deployment, err := avs.Bootstrap(txn, n.cfg.AVSProgramID, n.cfg.AVSTokenMint, liquidMint)
		if err != nil {
			return fmt.Errorf("avs: %w", err)
		}
		n.avs = deployment
		return nil
	})
	return err
}

func (n *Localnet) Config() Config {
	return n.cfg
}

func (n *Localnet) Ledger() *ledger.Ledger {
	return n.ledger
}

func (n *Localnet) Runtime() *runtime.Runtime {
	return n.runtime
}

func (n *Localnet) Variant() lrt.Variant {
	return n.cfg.Variant
}

func (n *Localnet) AVS() avs.Deployment {
	return n.avs
}

// Restaking returns the restaking deployment; nil for direct pools.
func (n *Localnet) Restaking() *restaking.Deployment {
	return n.restaking
}

// Faucet mints amount of the input asset into owner's associated account.
func (n *Localnet) Faucet(ctx context.Context, owner solana.PublicKey, amount uint64) (solana.PublicKey, error) {
	if err := ctx.Err(); err != nil {
		return solana.PublicKey{}, err
	}
	if amount == 0 {
		return solana.PublicKey{}, lrt.ErrInvalidAmount
	}
	if n.cfg.FaucetMaxAmount > 0 && amount > n.cfg.FaucetMaxAmount {
		return solana.PublicKey{}, fmt.Errorf("%w: %d > %d", ErrFaucetLimit, amount, n.cfg.FaucetMaxAmount)
	}
	var account solana.PublicKey
	_, err := n.ledger.Update(func(txn *ledger.Txn) error {
		var err error
		if account, err = txn.CreateAssociatedTokenAccount(owner, n.cfg.InputMint); err != nil {
			return err
		}
		return txn.MintTo(ledger.NewSigners(n.cfg.FaucetAuthority), n.cfg.InputMint, account, amount)
	})
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("faucet: %w", err)
	}
	n.logger.Info("faucet funded account", "owner", owner.String(), "account", account.String(), "amount", amount)
	return account, nil
}

// CreateOutputMint creates a receipt mint whose mint and freeze authority is
// creator, ready to be handed to a pool by Initialize.
func (n *Localnet) CreateOutputMint(ctx context.Context, creator solana.PublicKey) (solana.PublicKey, error) {
	if err := ctx.Err(); err != nil {
		return solana.PublicKey{}, err
	}
	mint := solana.NewWallet().PublicKey()
	_, err := n.ledger.Update(func(txn *ledger.Txn) error {
		return txn.CreateMint(mint, n.cfg.InputDecimals, creator, creator)
	})
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("create output mint: %w", err)
	}
	return mint, nil
}
