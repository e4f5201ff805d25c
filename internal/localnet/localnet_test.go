package localnet

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/gagliardetto/solana-go"

	"github.com/coldbell/restake/backend/internal/logging"
	"github.com/coldbell/restake/backend/internal/lrt"
)

func TestGenesisPerVariant(t *testing.T) {
	direct, err := New(logging.Discard(), Config{Variant: lrt.VariantDirect})
	if err != nil {
		t.Fatalf("direct: %v", err)
	}
	if direct.Restaking() != nil {
		t.Fatalf("direct localnet should not deploy a restaking pool")
	}
	if !direct.AVS().DelegatedTokenMint.Equals(direct.Config().InputMint) {
		t.Fatalf("direct avs delegates %s, want input mint", direct.AVS().DelegatedTokenMint)
	}

	restaked, err := New(logging.Discard(), Config{Variant: lrt.VariantRestaked})
	if err != nil {
		t.Fatalf("restaked: %v", err)
	}
	if restaked.Restaking() == nil {
		t.Fatalf("restaked localnet missing restaking deployment")
	}
	if !restaked.AVS().DelegatedTokenMint.Equals(restaked.Config().RestakedMint) {
		t.Fatalf("restaked avs delegates %s, want restaked mint", restaked.AVS().DelegatedTokenMint)
	}
}

func TestFaucetLimits(t *testing.T) {
	net, err := New(logging.Discard(), Config{FaucetMaxAmount: 100})
	if err != nil {
		t.Fatalf("localnet: %v", err)
	}
	ctx := context.Background()
	owner := solana.NewWallet().PublicKey()

	if _, err := net.Faucet(ctx, owner, 101); !errors.Is(err, ErrFaucetLimit) {
		t.Fatalf("over limit err = %v", err)
	}
	if _, err := net.Faucet(ctx, owner, 0); !errors.Is(err, lrt.ErrInvalidAmount) {
		t.Fatalf("zero amount err = %v", err)
	}
	if _, err := net.Faucet(ctx, owner, 100); err != nil {
		t.Fatalf("faucet: %v", err)
	}
	if _, err := net.Faucet(ctx, owner, 40); err != nil {
		t.Fatalf("second faucet: %v", err)
	}
	balance, err := net.Client().BalanceOf(owner, net.Config().InputMint)
	if err != nil || balance != 140 {
		t.Fatalf("balance = %d, %v", balance, err)
	}
}

func TestConservationAcrossRandomSequences(t *testing.T) {
	for _, variant := range []lrt.Variant{lrt.VariantDirect, lrt.VariantRestaked} {
		t.Run(variant.String(), func(t *testing.T) {
			net, err := New(logging.Discard(), Config{Variant: variant})
			if err != nil {
				t.Fatalf("localnet: %v", err)
			}
			ctx := context.Background()
			client := net.Client()

			authority := solana.NewWallet().PublicKey()
			other := solana.NewWallet().PublicKey()
			pool, _, err := client.CreatePool(ctx, authority, authority)
			if err != nil {
				t.Fatalf("create pool: %v", err)
			}
			users := []solana.PublicKey{authority, other, solana.NewWallet().PublicKey()}
			for _, user := range users {
				if _, err := net.Faucet(ctx, user, 1_000); err != nil {
					t.Fatalf("faucet: %v", err)
				}
			}

			ops := []string{
				lrt.InstructionDeposit,
				lrt.InstructionWithdraw,
				lrt.InstructionDelegate,
				lrt.InstructionUndelegate,
				lrt.InstructionWithdrawDelegatedStake,
				lrt.InstructionTransferDelegateAuthority,
			}
			rng := rand.New(rand.NewPCG(7, uint64(len(variant))))
			var succeeded int
			for i := 0; i < 300; i++ {
				op := ops[rng.IntN(len(ops))]
				signer := users[rng.IntN(len(users))]
				amount := uint64(rng.IntN(120))
				newAuthority := users[rng.IntN(len(users))]

				before, err := client.View(pool)
				if err != nil {
					t.Fatalf("view: %v", err)
				}
				_, execErr := client.Execute(ctx, op, pool, signer, amount, newAuthority)
				after, err := client.View(pool)
				if err != nil {
					t.Fatalf("view: %v", err)
				}

				backing, err := after.Backing()
				if err != nil {
					t.Fatalf("backing: %v", err)
				}
				if backing != after.OutputSupply {
					t.Fatalf("step %d %s(%d): backing %d != supply %d", i, op, amount, backing, after.OutputSupply)
				}
				if !after.OutputMintAuthority.Equals(pool) {
					t.Fatalf("step %d: output mint authority moved to %s", i, after.OutputMintAuthority)
				}
				if after.Pool.DelegateAuthority.IsZero() {
					t.Fatalf("step %d: zero delegate authority", i)
				}
				if execErr != nil {
					if after.InputVault != before.InputVault || after.AVSVault != before.AVSVault ||
						after.RestakedVault != before.RestakedVault || after.OutputSupply != before.OutputSupply ||
						!after.Pool.DelegateAuthority.Equals(before.Pool.DelegateAuthority) {
						t.Fatalf("step %d %s failed with %v but changed state", i, op, execErr)
					}
					continue
				}
				succeeded++
			}
			if succeeded == 0 {
				t.Fatalf("no operation succeeded")
			}
		})
	}
}

func TestUndelegateScenario(t *testing.T) {
	net, err := New(logging.Discard(), Config{})
	if err != nil {
		t.Fatalf("localnet: %v", err)
	}
	ctx := context.Background()
	client := net.Client()
	a := solana.NewWallet().PublicKey()
	b := solana.NewWallet().PublicKey()

	pool, _, err := client.CreatePool(ctx, a, a)
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	if _, err := net.Faucet(ctx, a, 10); err != nil {
		t.Fatalf("faucet: %v", err)
	}
	if _, err := client.Deposit(ctx, pool, a, 10); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := client.Delegate(ctx, pool, a, 4); err != nil {
		t.Fatalf("delegate: %v", err)
	}
	if _, err := client.Undelegate(ctx, pool, a, 1); err != nil {
		t.Fatalf("undelegate: %v", err)
	}
	view, err := client.View(pool)
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	if view.InputVault != 7 || view.AVSVault != 3 || view.OutputSupply != 10 {
		t.Fatalf("unexpected balances %+v", view)
	}

	if _, err := client.TransferDelegateAuthority(ctx, pool, a, b); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if _, err := client.Undelegate(ctx, pool, a, 1); !errors.Is(err, lrt.ErrUnauthorized) {
		t.Fatalf("old authority err = %v", err)
	}
	if _, err := client.Undelegate(ctx, pool, b, 1); err != nil {
		t.Fatalf("new authority undelegate: %v", err)
	}
}
