package lrt_test

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/gagliardetto/solana-go"

	"github.com/coldbell/restake/backend/internal/ledger"
	"github.com/coldbell/restake/backend/internal/localnet"
	"github.com/coldbell/restake/backend/internal/logging"
	"github.com/coldbell/restake/backend/internal/lrt"
	"github.com/coldbell/restake/backend/internal/runtime"
)

var variants = []lrt.Variant{lrt.VariantDirect, lrt.VariantRestaked}

type env struct {
	t         *testing.T
	ctx       context.Context
	net       *localnet.Localnet
	client    *localnet.Client
	creator   solana.PublicKey
	authority solana.PublicKey
	user      solana.PublicKey
	pool      solana.PublicKey
}

func newEnv(t *testing.T, variant lrt.Variant, opts ...lrt.Option) *env {
	t.Helper()
	logger := logging.Discard()
	net, err := localnet.New(logger, localnet.Config{Variant: variant}, opts...)
	if err != nil {
		t.Fatalf("localnet: %v", err)
	}
	e := &env{
		t:         t,
		ctx:       context.Background(),
		net:       net,
		client:    net.Client(),
		creator:   solana.NewWallet().PublicKey(),
		authority: solana.NewWallet().PublicKey(),
		user:      solana.NewWallet().PublicKey(),
	}
	pool, _, err := e.client.CreatePool(e.ctx, e.creator, e.authority)
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	e.pool = pool
	if _, err := net.Faucet(e.ctx, e.user, 100); err != nil {
		t.Fatalf("faucet: %v", err)
	}
	return e
}

func (e *env) view() localnet.PoolView {
	e.t.Helper()
	view, err := e.client.View(e.pool)
	if err != nil {
		e.t.Fatalf("view pool: %v", err)
	}
	return view
}

// liquid is the undelegated value: the input vault for direct pools and the
// restaked vault for restaked pools.
func (e *env) liquid() uint64 {
	view := e.view()
	if view.Pool.Restaked {
		return view.RestakedVault
	}
	return view.InputVault
}

func (e *env) balance(owner, mint solana.PublicKey) uint64 {
	e.t.Helper()
	amount, err := e.client.BalanceOf(owner, mint)
	if err != nil {
		e.t.Fatalf("balance: %v", err)
	}
	return amount
}

func (e *env) inputBalance(owner solana.PublicKey) uint64 {
	return e.balance(owner, e.net.Config().InputMint)
}

func (e *env) receipts(owner solana.PublicKey) uint64 {
	return e.balance(owner, e.view().Pool.OutputTokenMint)
}

func (e *env) assertConserved() {
	e.t.Helper()
	view := e.view()
	backing, err := view.Backing()
	if err != nil {
		e.t.Fatalf("backing: %v", err)
	}
	if backing != view.OutputSupply {
		e.t.Fatalf("supply %d != backing %d (input %d restaked %d avs %d)",
			view.OutputSupply, backing, view.InputVault, view.RestakedVault, view.AVSVault)
	}
}

func (e *env) must(receipt *runtime.Receipt, err error) *runtime.Receipt {
	e.t.Helper()
	if err != nil {
		e.t.Fatalf("submit: %v", err)
	}
	if !receipt.Succeeded() {
		e.t.Fatalf("receipt failed: %s", receipt.Err)
	}
	return receipt
}

func expectErr(t *testing.T, err, want error) {
	t.Helper()
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
}

func TestInitializeHandsMintToPool(t *testing.T) {
	for _, variant := range variants {
		t.Run(variant.String(), func(t *testing.T) {
			e := newEnv(t, variant)
			view := e.view()
			if !view.Pool.DelegateAuthority.Equals(e.authority) {
				t.Fatalf("delegate authority = %s", view.Pool.DelegateAuthority)
			}
			if view.Pool.Restaked != variant.Restaked() {
				t.Fatalf("restaked = %v", view.Pool.Restaked)
			}
			mint, err := e.net.Ledger().Mint(view.Pool.OutputTokenMint)
			if err != nil {
				t.Fatalf("output mint: %v", err)
			}
			if !mint.MintAuthority.Equals(e.pool) || !mint.FreezeAuthority.Equals(e.pool) {
				t.Fatalf("output mint authorities = %s/%s, want pool %s", mint.MintAuthority, mint.FreezeAuthority, e.pool)
			}
			if mint.Supply != 0 {
				t.Fatalf("supply = %d", mint.Supply)
			}
		})
	}
}

func TestInitializeRejectsExistingPool(t *testing.T) {
	e := newEnv(t, lrt.VariantDirect)
	_, _, err := e.client.Initialize(e.ctx, e.creator, e.authority, e.view().Pool.OutputTokenMint)
	expectErr(t, err, lrt.ErrAlreadyInitialized)
}

func TestInitializeRejectsForeignMintAuthority(t *testing.T) {
	e := newEnv(t, lrt.VariantDirect)
	mint, err := e.net.CreateOutputMint(e.ctx, e.user)
	if err != nil {
		t.Fatalf("create mint: %v", err)
	}
	_, _, err = e.client.Initialize(e.ctx, e.creator, e.authority, mint)
	expectErr(t, err, lrt.ErrInvalidMintAuthority)
}

func TestInitializeRejectsIssuedOutputMint(t *testing.T) {
	e := newEnv(t, lrt.VariantDirect)
	mint, err := e.net.CreateOutputMint(e.ctx, e.creator)
	if err != nil {
		t.Fatalf("create mint: %v", err)
	}
	_, err = e.net.Ledger().Update(func(txn *ledger.Txn) error {
		account, err := txn.CreateAssociatedTokenAccount(e.creator, mint)
		if err != nil {
			return err
		}
		return txn.MintTo(ledger.NewSigners(e.creator), mint, account, 5)
	})
	if err != nil {
		t.Fatalf("pre-mint: %v", err)
	}
	_, _, err = e.client.Initialize(e.ctx, e.creator, e.authority, mint)
	expectErr(t, err, lrt.ErrNonZeroOutputSupply)
}

func TestInitializeRejectsZeroDelegateAuthority(t *testing.T) {
	e := newEnv(t, lrt.VariantDirect)
	_, _, err := e.client.CreatePool(e.ctx, e.creator, solana.PublicKey{})
	expectErr(t, err, lrt.ErrInvalidAuthority)
}

func TestDepositMintsReceipts(t *testing.T) {
	for _, variant := range variants {
		t.Run(variant.String(), func(t *testing.T) {
			e := newEnv(t, variant)
			receipt := e.must(e.client.Deposit(e.ctx, e.pool, e.user, 10))

			view := e.view()
			if variant.Restaked() {
				if view.InputVault != 0 || view.RestakedVault != 10 {
					t.Fatalf("vaults input=%d restaked=%d, want 0/10", view.InputVault, view.RestakedVault)
				}
			} else if view.InputVault != 10 {
				t.Fatalf("input vault = %d, want 10", view.InputVault)
			}
			if got := e.receipts(e.user); got != 10 {
				t.Fatalf("receipts = %d, want 10", got)
			}
			if got := e.inputBalance(e.user); got != 90 {
				t.Fatalf("user input = %d, want 90", got)
			}
			e.assertConserved()

			found := false
			for _, event := range receipt.Events {
				if event.Name == lrt.InstructionDeposit && event.Fields["amount"] == uint64(10) {
					found = true
				}
			}
			if !found {
				t.Fatalf("deposit event missing from %+v", receipt.Events)
			}
		})
	}
}

func TestDepositRejectsZeroAmount(t *testing.T) {
	e := newEnv(t, lrt.VariantDirect)
	_, err := e.client.Deposit(e.ctx, e.pool, e.user, 0)
	expectErr(t, err, lrt.ErrInvalidAmount)
}

func TestDepositRejectsInsufficientFunds(t *testing.T) {
	e := newEnv(t, lrt.VariantRestaked)
	_, err := e.client.Deposit(e.ctx, e.pool, e.user, 101)
	expectErr(t, err, lrt.ErrInsufficientFunds)
	if got := e.inputBalance(e.user); got != 100 {
		t.Fatalf("user input = %d after failed deposit", got)
	}
}

func TestWithdrawRoundTrip(t *testing.T) {
	for _, variant := range variants {
		t.Run(variant.String(), func(t *testing.T) {
			e := newEnv(t, variant)
			e.must(e.client.Deposit(e.ctx, e.pool, e.user, 10))
			e.must(e.client.Withdraw(e.ctx, e.pool, e.user, 4))
			e.assertConserved()
			if got := e.receipts(e.user); got != 6 {
				t.Fatalf("receipts = %d, want 6", got)
			}
			e.must(e.client.Withdraw(e.ctx, e.pool, e.user, 6))

			if got := e.inputBalance(e.user); got != 100 {
				t.Fatalf("user input = %d, want 100", got)
			}
			view := e.view()
			if view.OutputSupply != 0 || view.InputVault != 0 || view.RestakedVault != 0 {
				t.Fatalf("pool not drained: %+v", view)
			}
		})
	}
}

func TestWithdrawCreatesMissingInputAccount(t *testing.T) {
	e := newEnv(t, lrt.VariantDirect)
	e.must(e.client.Deposit(e.ctx, e.pool, e.user, 10))

	holder := solana.NewWallet().PublicKey()
	outputMint := e.view().Pool.OutputTokenMint
	_, err := e.net.Ledger().Update(func(txn *ledger.Txn) error {
		to, err := txn.CreateAssociatedTokenAccount(holder, outputMint)
		if err != nil {
			return err
		}
		from, err := txn.CreateAssociatedTokenAccount(e.user, outputMint)
		if err != nil {
			return err
		}
		return txn.Transfer(ledger.NewSigners(e.user), from, to, 3)
	})
	if err != nil {
		t.Fatalf("move receipts: %v", err)
	}

	e.must(e.client.Withdraw(e.ctx, e.pool, holder, 3))
	if got := e.inputBalance(holder); got != 3 {
		t.Fatalf("holder input = %d, want 3", got)
	}
}

func TestWithdrawRejectsMoreThanReceipts(t *testing.T) {
	e := newEnv(t, lrt.VariantDirect)
	e.must(e.client.Deposit(e.ctx, e.pool, e.user, 10))
	_, err := e.client.Withdraw(e.ctx, e.pool, e.user, 11)
	expectErr(t, err, lrt.ErrInsufficientFunds)
}

func TestDelegateAndUndelegate(t *testing.T) {
	for _, variant := range variants {
		t.Run(variant.String(), func(t *testing.T) {
			e := newEnv(t, variant)
			e.must(e.client.Deposit(e.ctx, e.pool, e.user, 10))

			e.must(e.client.Delegate(e.ctx, e.pool, e.authority, 6))
			if got := e.liquid(); got != 4 {
				t.Fatalf("liquid after delegate = %d, want 4", got)
			}
			if got := e.view().AVSVault; got != 6 {
				t.Fatalf("avs vault after delegate = %d, want 6", got)
			}
			e.assertConserved()

			e.must(e.client.Undelegate(e.ctx, e.pool, e.authority, 1))
			if got := e.liquid(); got != 5 {
				t.Fatalf("liquid after undelegate = %d, want 5", got)
			}
			if got := e.view().AVSVault; got != 5 {
				t.Fatalf("avs vault after undelegate = %d, want 5", got)
			}
			e.assertConserved()
		})
	}
}

func TestDelegateRequiresAuthority(t *testing.T) {
	e := newEnv(t, lrt.VariantDirect)
	e.must(e.client.Deposit(e.ctx, e.pool, e.user, 10))
	_, err := e.client.Delegate(e.ctx, e.pool, e.user, 1)
	expectErr(t, err, lrt.ErrUnauthorized)
	_, err = e.client.Undelegate(e.ctx, e.pool, e.user, 1)
	expectErr(t, err, lrt.ErrUnauthorized)
}

func TestDelegateRequiresLiquidity(t *testing.T) {
	e := newEnv(t, lrt.VariantDirect)
	e.must(e.client.Deposit(e.ctx, e.pool, e.user, 10))
	_, err := e.client.Delegate(e.ctx, e.pool, e.authority, 11)
	expectErr(t, err, lrt.ErrInsufficientLiquidity)
}

func TestUndelegateRequiresDelegatedStake(t *testing.T) {
	e := newEnv(t, lrt.VariantDirect)
	e.must(e.client.Deposit(e.ctx, e.pool, e.user, 10))
	e.must(e.client.Delegate(e.ctx, e.pool, e.authority, 2))
	_, err := e.client.Undelegate(e.ctx, e.pool, e.authority, 3)
	expectErr(t, err, lrt.ErrInsufficientDelegatedStake)
}

func TestWithdrawGatedByLiquidity(t *testing.T) {
	for _, variant := range variants {
		t.Run(variant.String(), func(t *testing.T) {
			e := newEnv(t, variant)
			e.must(e.client.Deposit(e.ctx, e.pool, e.user, 10))
			e.must(e.client.Delegate(e.ctx, e.pool, e.authority, 8))

			_, err := e.client.Withdraw(e.ctx, e.pool, e.user, 3)
			expectErr(t, err, lrt.ErrInsufficientLiquidity)
			if got := e.receipts(e.user); got != 10 {
				t.Fatalf("receipts = %d after rejected withdraw", got)
			}

			e.must(e.client.Withdraw(e.ctx, e.pool, e.user, 2))
			e.assertConserved()
		})
	}
}

func TestWithdrawDelegatedStake(t *testing.T) {
	for _, variant := range variants {
		t.Run(variant.String(), func(t *testing.T) {
			e := newEnv(t, variant)
			e.must(e.client.Deposit(e.ctx, e.pool, e.user, 10))
			e.must(e.client.Delegate(e.ctx, e.pool, e.authority, 10))

			e.must(e.client.WithdrawDelegatedStake(e.ctx, e.pool, e.user, 4))
			if got := e.inputBalance(e.user); got != 94 {
				t.Fatalf("user input = %d, want 94", got)
			}
			if got := e.receipts(e.user); got != 6 {
				t.Fatalf("receipts = %d, want 6", got)
			}
			view := e.view()
			if view.AVSVault != 6 || view.OutputSupply != 6 {
				t.Fatalf("avs vault %d supply %d, want 6/6", view.AVSVault, view.OutputSupply)
			}
			e.assertConserved()

			_, err := e.client.WithdrawDelegatedStake(e.ctx, e.pool, e.user, 7)
			expectErr(t, err, lrt.ErrInsufficientFunds)
		})
	}
}

func TestTransferDelegateAuthority(t *testing.T) {
	e := newEnv(t, lrt.VariantDirect)
	e.must(e.client.Deposit(e.ctx, e.pool, e.user, 10))
	a, b := e.authority, solana.NewWallet().PublicKey()

	e.must(e.client.TransferDelegateAuthority(e.ctx, e.pool, a, b))
	if got := e.view().Pool.DelegateAuthority; !got.Equals(b) {
		t.Fatalf("delegate authority = %s, want %s", got, b)
	}
	_, err := e.client.Delegate(e.ctx, e.pool, a, 1)
	expectErr(t, err, lrt.ErrUnauthorized)
	_, err = e.client.TransferDelegateAuthority(e.ctx, e.pool, a, a)
	expectErr(t, err, lrt.ErrUnauthorized)

	e.must(e.client.Delegate(e.ctx, e.pool, b, 1))
	e.must(e.client.TransferDelegateAuthority(e.ctx, e.pool, b, a))
	e.must(e.client.Delegate(e.ctx, e.pool, a, 1))
	e.assertConserved()
}

func TestTransferDelegateAuthorityRejectsZeroKey(t *testing.T) {
	e := newEnv(t, lrt.VariantDirect)
	_, err := e.client.TransferDelegateAuthority(e.ctx, e.pool, e.authority, solana.PublicKey{})
	expectErr(t, err, lrt.ErrInvalidAuthority)
}

type rejectingAVS struct{}

func (rejectingAVS) Delegate(*runtime.Context, lrt.AVSCall) error {
	return errors.New("avs paused")
}

func (rejectingAVS) Undelegate(*runtime.Context, lrt.AVSCall) error {
	return errors.New("avs paused")
}

func TestRejectingAdapterRollsBack(t *testing.T) {
	e := newEnv(t, lrt.VariantDirect, lrt.WithAVSAdapter(rejectingAVS{}))
	e.must(e.client.Deposit(e.ctx, e.pool, e.user, 10))

	_, err := e.client.Delegate(e.ctx, e.pool, e.authority, 5)
	expectErr(t, err, lrt.ErrAdapterRejected)
	if got := e.liquid(); got != 10 {
		t.Fatalf("liquid = %d after rejected delegate", got)
	}
	if got := e.view().AVSVault; got != 0 {
		t.Fatalf("avs vault = %d after rejected delegate", got)
	}
}

// shortAVS forwards one unit less than requested.
type shortAVS struct {
	lrt.CPIAVSAdapter
}

func (s shortAVS) Delegate(ctx *runtime.Context, call lrt.AVSCall) error {
	call.Amount--
	return s.CPIAVSAdapter.Delegate(ctx, call)
}

func TestAdapterMustMoveExactAmount(t *testing.T) {
	e := newEnv(t, lrt.VariantDirect, lrt.WithAVSAdapter(shortAVS{}))
	e.must(e.client.Deposit(e.ctx, e.pool, e.user, 10))

	_, err := e.client.Delegate(e.ctx, e.pool, e.authority, 5)
	expectErr(t, err, lrt.ErrAdapterRejected)
	if got := e.liquid(); got != 10 {
		t.Fatalf("liquid = %d after short delegate", got)
	}
}

func TestProcessRejectsUnknownInstruction(t *testing.T) {
	e := newEnv(t, lrt.VariantDirect)
	ix := solana.NewInstruction(e.net.Config().LRTProgramID, solana.AccountMetaSlice{
		solana.NewAccountMeta(e.user, true, true),
	}, []byte{1, 2, 3, 4, 5, 6, 7, 8})
	_, err := e.net.Runtime().Submit(e.ctx, runtime.Transaction{
		Signers:      []solana.PublicKey{e.user},
		Instructions: []solana.Instruction{ix},
	})
	expectErr(t, err, lrt.ErrUnknownInstruction)
}

func TestProcessRejectsMissingAccounts(t *testing.T) {
	e := newEnv(t, lrt.VariantRestaked)
	ix, err := e.client.Instruction(lrt.InstructionDeposit, e.pool, e.user, 1, solana.PublicKey{})
	if err != nil {
		t.Fatalf("build deposit: %v", err)
	}
	accounts := ix.Accounts()
	truncated := solana.NewInstruction(ix.ProgramID(), accounts[:len(accounts)-1], mustData(t, ix))
	_, err = e.net.Runtime().Submit(e.ctx, runtime.Transaction{
		Signers:      []solana.PublicKey{e.user},
		Instructions: []solana.Instruction{truncated},
	})
	expectErr(t, err, lrt.ErrMissingAccounts)
}

func TestProcessRejectsSubstitutedVault(t *testing.T) {
	e := newEnv(t, lrt.VariantDirect)
	a, err := e.client.TransferAccounts(e.pool, e.user)
	if err != nil {
		t.Fatalf("accounts: %v", err)
	}
	a.PoolInputTokenVault = a.SignerInputTokenVault
	ix := lrt.NewDepositInstruction(e.net.Config().LRTProgramID, a, 5)
	_, err = e.net.Runtime().Submit(e.ctx, runtime.Transaction{
		Signers:      []solana.PublicKey{e.user},
		Instructions: []solana.Instruction{ix},
	})
	expectErr(t, err, lrt.ErrAccountMismatch)
}

func mustData(t *testing.T, ix solana.Instruction) []byte {
	t.Helper()
	data, err := ix.Data()
	if err != nil {
		t.Fatalf("instruction data: %v", err)
	}
	return data
}

// drainProgram moves everything in from to to, using whatever signer
// privilege the caller forwarded.
type drainProgram struct {
	id       solana.PublicKey
	from, to solana.PublicKey
}

func (d drainProgram) ID() solana.PublicKey {
	return d.id
}

func (d drainProgram) Process(ctx *runtime.Context, _ []*solana.AccountMeta, _ []byte) error {
	txn := ctx.Txn()
	balance, err := txn.Balance(d.from)
	if err != nil {
		return err
	}
	return txn.Transfer(ctx, d.from, d.to, balance)
}

func TestWithdrawDelegatedStakeRejectsForeignAVSProgram(t *testing.T) {
	e := newEnv(t, lrt.VariantDirect)
	e.must(e.client.Deposit(e.ctx, e.pool, e.user, 100))
	e.must(e.client.Delegate(e.ctx, e.pool, e.authority, 5))

	thief := solana.NewWallet().PublicKey()
	thiefInput, err := e.net.Faucet(e.ctx, thief, 1)
	if err != nil {
		t.Fatalf("faucet: %v", err)
	}
	e.must(e.client.Deposit(e.ctx, e.pool, thief, 1))

	a, err := e.client.TransferAccounts(e.pool, thief)
	if err != nil {
		t.Fatalf("transfer accounts: %v", err)
	}
	avsAccounts, err := e.client.AVSAccounts(e.pool)
	if err != nil {
		t.Fatalf("avs accounts: %v", err)
	}
	drain := drainProgram{id: solana.NewWallet().PublicKey(), from: a.PoolInputTokenVault, to: thiefInput}
	if err := e.net.Runtime().Register(drain); err != nil {
		t.Fatalf("register: %v", err)
	}
	avsAccounts.AVSProgram = drain.id

	ix := lrt.NewWithdrawDelegatedStakeInstruction(e.net.Config().LRTProgramID, a, avsAccounts, 1)
	_, err = e.net.Runtime().Submit(e.ctx, runtime.Transaction{
		Signers:      []solana.PublicKey{thief},
		Instructions: []solana.Instruction{ix},
	})
	expectErr(t, err, lrt.ErrAccountMismatch)

	if got := e.inputBalance(thief); got != 0 {
		t.Fatalf("thief input = %d, want 0", got)
	}
	if got := e.view().InputVault; got != 96 {
		t.Fatalf("pool input vault = %d, want 96", got)
	}
	e.assertConserved()
}

func TestDelegateRejectsForeignAVSProgram(t *testing.T) {
	e := newEnv(t, lrt.VariantRestaked)
	e.must(e.client.Deposit(e.ctx, e.pool, e.user, 10))

	a, err := e.client.DelegateAccounts(e.pool, e.authority, false)
	if err != nil {
		t.Fatalf("delegate accounts: %v", err)
	}
	drain := drainProgram{id: solana.NewWallet().PublicKey(), from: a.PoolDelegatedTokenVault, to: a.AVSDelegatedTokenVault}
	if err := e.net.Runtime().Register(drain); err != nil {
		t.Fatalf("register: %v", err)
	}
	a.AVSProgram = drain.id

	ix := lrt.NewDelegateInstruction(e.net.Config().LRTProgramID, a, 5)
	_, err = e.net.Runtime().Submit(e.ctx, runtime.Transaction{
		Signers:      []solana.PublicKey{e.authority},
		Instructions: []solana.Instruction{ix},
	})
	expectErr(t, err, lrt.ErrAccountMismatch)
	if got := e.liquid(); got != 10 {
		t.Fatalf("liquid = %d, want 10", got)
	}
}

// overAVS undelegates one unit more than requested.
type overAVS struct {
	lrt.CPIAVSAdapter
}

func (o overAVS) Undelegate(ctx *runtime.Context, call lrt.AVSCall) error {
	call.Amount++
	return o.CPIAVSAdapter.Undelegate(ctx, call)
}

func TestWithdrawDelegatedStakeRequiresExactMovement(t *testing.T) {
	for _, variant := range variants {
		t.Run(variant.String(), func(t *testing.T) {
			e := newEnv(t, variant, lrt.WithAVSAdapter(overAVS{}))
			e.must(e.client.Deposit(e.ctx, e.pool, e.user, 10))
			e.must(e.client.Delegate(e.ctx, e.pool, e.authority, 10))

			_, err := e.client.WithdrawDelegatedStake(e.ctx, e.pool, e.user, 4)
			expectErr(t, err, lrt.ErrAdapterRejected)
			if view := e.view(); view.AVSVault != 10 || view.OutputSupply != 10 {
				t.Fatalf("avs vault %d supply %d after rejected redeem", view.AVSVault, view.OutputSupply)
			}
			e.assertConserved()
		})
	}
}

func TestNewProgramRequiresExternalPrograms(t *testing.T) {
	id := solana.NewWallet().PublicKey()
	cases := []struct {
		name string
		cfg  lrt.Config
		ok   bool
	}{
		{"direct without avs", lrt.Config{ProgramID: id}, false},
		{"direct", lrt.Config{ProgramID: id, AVSProgram: solana.NewWallet().PublicKey()}, true},
		{"restaked without restaking", lrt.Config{ProgramID: id, Variant: lrt.VariantRestaked, AVSProgram: solana.NewWallet().PublicKey()}, false},
		{"restaked", lrt.Config{
			ProgramID:        id,
			Variant:          lrt.VariantRestaked,
			AVSProgram:       solana.NewWallet().PublicKey(),
			RestakingProgram: solana.NewWallet().PublicKey(),
		}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := lrt.NewProgram(logging.Discard(), tc.cfg)
			if tc.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.ok && !errors.Is(err, lrt.ErrProgramNotConfigured) {
				t.Fatalf("expected ErrProgramNotConfigured, got %v", err)
			}
		})
	}
}

func TestDepositOverflowingReceiptSupply(t *testing.T) {
	e := newEnv(t, lrt.VariantDirect)
	outputMint := e.view().Pool.OutputTokenMint
	holder := solana.NewWallet().PublicKey()
	_, err := e.net.Ledger().Update(func(txn *ledger.Txn) error {
		account, err := txn.CreateAssociatedTokenAccount(holder, outputMint)
		if err != nil {
			return err
		}
		return txn.MintTo(ledger.NewSigners(e.pool), outputMint, account, math.MaxUint64-5)
	})
	if err != nil {
		t.Fatalf("seed supply: %v", err)
	}

	_, err = e.client.Deposit(e.ctx, e.pool, e.user, 10)
	expectErr(t, err, lrt.ErrOverflow)
	if got := e.view().InputVault; got != 0 {
		t.Fatalf("input vault = %d after overflowing deposit", got)
	}
	if got := e.inputBalance(e.user); got != 100 {
		t.Fatalf("user input = %d, want 100", got)
	}
}
