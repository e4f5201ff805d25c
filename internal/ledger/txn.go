package ledger

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// Txn is a staged view of the ledger. Token operations follow SPL token
// program semantics: the authority must have signed the invocation.
type Txn struct {
	st       state
	readOnly bool
}

func (t *Txn) Exists(key solana.PublicKey) bool {
	if _, ok := t.st.mints[key]; ok {
		return true
	}
	if _, ok := t.st.tokens[key]; ok {
		return true
	}
	_, ok := t.st.data[key]
	return ok
}

func (t *Txn) Mint(key solana.PublicKey) (Mint, error) {
	mint, ok := t.st.mints[key]
	if !ok {
		return Mint{}, fmt.Errorf("mint %s: %w", key, ErrAccountNotFound)
	}
	return mint, nil
}

func (t *Txn) TokenAccount(key solana.PublicKey) (TokenAccount, error) {
	account, ok := t.st.tokens[key]
	if !ok {
		return TokenAccount{}, fmt.Errorf("token account %s: %w", key, ErrAccountNotFound)
	}
	return account, nil
}

func (t *Txn) Balance(key solana.PublicKey) (uint64, error) {
	account, err := t.TokenAccount(key)
	if err != nil {
		return 0, err
	}
	return account.Amount, nil
}

func (t *Txn) Data(key solana.PublicKey) (DataAccount, error) {
	account, ok := t.st.data[key]
	if !ok {
		return DataAccount{}, fmt.Errorf("data account %s: %w", key, ErrAccountNotFound)
	}
	return DataAccount{Owner: account.Owner, Data: append([]byte(nil), account.Data...)}, nil
}

func (t *Txn) CreateMint(key solana.PublicKey, decimals uint8, mintAuthority, freezeAuthority solana.PublicKey) error {
	if err := t.writable(); err != nil {
		return err
	}
	if t.Exists(key) {
		return fmt.Errorf("create mint %s: %w", key, ErrAccountInUse)
	}
	t.st.mints[key] = Mint{
		Decimals:        decimals,
		MintAuthority:   mintAuthority,
		FreezeAuthority: freezeAuthority,
	}
	return nil
}

func (t *Txn) SetMintAuthority(auth Authority, mintKey, newAuthority solana.PublicKey) error {
	if err := t.writable(); err != nil {
		return err
	}
	mint, err := t.Mint(mintKey)
	if err != nil {
		return err
	}
	if mint.MintAuthority.IsZero() {
		return fmt.Errorf("mint %s has no mint authority: %w", mintKey, ErrInvalidMintAuthority)
	}
	if !auth.IsSigner(mint.MintAuthority) {
		return fmt.Errorf("mint authority %s: %w", mint.MintAuthority, ErrMissingSignature)
	}
	mint.MintAuthority = newAuthority
	t.st.mints[mintKey] = mint
	return nil
}

func (t *Txn) SetFreezeAuthority(auth Authority, mintKey, newAuthority solana.PublicKey) error {
	if err := t.writable(); err != nil {
		return err
	}
	mint, err := t.Mint(mintKey)
	if err != nil {
		return err
	}
	if mint.FreezeAuthority.IsZero() {
		return fmt.Errorf("mint %s has no freeze authority: %w", mintKey, ErrInvalidMintAuthority)
	}
	if !auth.IsSigner(mint.FreezeAuthority) {
		return fmt.Errorf("freeze authority %s: %w", mint.FreezeAuthority, ErrMissingSignature)
	}
	mint.FreezeAuthority = newAuthority
	t.st.mints[mintKey] = mint
	return nil
}

func (t *Txn) CreateTokenAccount(key, mintKey, owner solana.PublicKey) error {
	if err := t.writable(); err != nil {
		return err
	}
	if t.Exists(key) {
		return fmt.Errorf("create token account %s: %w", key, ErrAccountInUse)
	}
	if _, err := t.Mint(mintKey); err != nil {
		return err
	}
	t.st.tokens[key] = TokenAccount{Mint: mintKey, Owner: owner}
	return nil
}

// CreateAssociatedTokenAccount is idempotent: an existing account is accepted
// when it already binds the same owner and mint.
func (t *Txn) CreateAssociatedTokenAccount(owner, mintKey solana.PublicKey) (solana.PublicKey, error) {
	address, _, err := solana.FindAssociatedTokenAddress(owner, mintKey)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive associated token account: %w", err)
	}
	if existing, ok := t.st.tokens[address]; ok {
		if !existing.Owner.Equals(owner) {
			return solana.PublicKey{}, fmt.Errorf("associated token account %s: %w", address, ErrOwnerMismatch)
		}
		if !existing.Mint.Equals(mintKey) {
			return solana.PublicKey{}, fmt.Errorf("associated token account %s: %w", address, ErrMintMismatch)
		}
		return address, nil
	}
	if err := t.CreateTokenAccount(address, mintKey, owner); err != nil {
		return solana.PublicKey{}, err
	}
	return address, nil
}

func (t *Txn) Transfer(auth Authority, from, to solana.PublicKey, amount uint64) error {
	if err := t.writable(); err != nil {
		return err
	}
	source, err := t.TokenAccount(from)
	if err != nil {
		return err
	}
	destination, err := t.TokenAccount(to)
	if err != nil {
		return err
	}
	if !source.Mint.Equals(destination.Mint) {
		return fmt.Errorf("transfer %s -> %s: %w", from, to, ErrMintMismatch)
	}
	if !auth.IsSigner(source.Owner) {
		return fmt.Errorf("transfer from %s owned by %s: %w", from, source.Owner, ErrMissingSignature)
	}
	if source.Amount < amount {
		return fmt.Errorf("transfer %d from %s holding %d: %w", amount, from, source.Amount, ErrInsufficientFunds)
	}
	if from.Equals(to) {
		return nil
	}

	nextSource, err := checkedSub(source.Amount, amount)
	if err != nil {
		return err
	}
	nextDestination, err := checkedAdd(destination.Amount, amount)
	if err != nil {
		return fmt.Errorf("credit %s: %w", to, err)
	}
	source.Amount = nextSource
	destination.Amount = nextDestination
	t.st.tokens[from] = source
	t.st.tokens[to] = destination
	return nil
}

func (t *Txn) TransferChecked(auth Authority, from, to, mintKey solana.PublicKey, amount uint64, decimals uint8) error {
	mint, err := t.Mint(mintKey)
	if err != nil {
		return err
	}
	if mint.Decimals != decimals {
		return fmt.Errorf("mint %s has %d decimals, got %d: %w", mintKey, mint.Decimals, decimals, ErrDecimalsMismatch)
	}
	source, err := t.TokenAccount(from)
	if err != nil {
		return err
	}
	if !source.Mint.Equals(mintKey) {
		return fmt.Errorf("transfer from %s: %w", from, ErrMintMismatch)
	}
	return t.Transfer(auth, from, to, amount)
}

func (t *Txn) MintTo(auth Authority, mintKey, to solana.PublicKey, amount uint64) error {
	if err := t.writable(); err != nil {
		return err
	}
	mint, err := t.Mint(mintKey)
	if err != nil {
		return err
	}
	if mint.MintAuthority.IsZero() {
		return fmt.Errorf("mint %s is fixed supply: %w", mintKey, ErrInvalidMintAuthority)
	}
	if !auth.IsSigner(mint.MintAuthority) {
		return fmt.Errorf("mint authority %s: %w", mint.MintAuthority, ErrMissingSignature)
	}
	destination, err := t.TokenAccount(to)
	if err != nil {
		return err
	}
	if !destination.Mint.Equals(mintKey) {
		return fmt.Errorf("mint to %s: %w", to, ErrMintMismatch)
	}

	supply, err := checkedAdd(mint.Supply, amount)
	if err != nil {
		return fmt.Errorf("supply of %s: %w", mintKey, err)
	}
	balance, err := checkedAdd(destination.Amount, amount)
	if err != nil {
		return fmt.Errorf("credit %s: %w", to, err)
	}
	mint.Supply = supply
	destination.Amount = balance
	t.st.mints[mintKey] = mint
	t.st.tokens[to] = destination
	return nil
}

func (t *Txn) Burn(auth Authority, mintKey, from solana.PublicKey, amount uint64) error {
	if err := t.writable(); err != nil {
		return err
	}
	mint, err := t.Mint(mintKey)
	if err != nil {
		return err
	}
	source, err := t.TokenAccount(from)
	if err != nil {
		return err
	}
	if !source.Mint.Equals(mintKey) {
		return fmt.Errorf("burn from %s: %w", from, ErrMintMismatch)
	}
	if !auth.IsSigner(source.Owner) {
		return fmt.Errorf("burn from %s owned by %s: %w", from, source.Owner, ErrMissingSignature)
	}
	if source.Amount < amount {
		return fmt.Errorf("burn %d from %s holding %d: %w", amount, from, source.Amount, ErrInsufficientFunds)
	}

	balance, err := checkedSub(source.Amount, amount)
	if err != nil {
		return err
	}
	supply, err := checkedSub(mint.Supply, amount)
	if err != nil {
		return fmt.Errorf("supply of %s: %w", mintKey, err)
	}
	source.Amount = balance
	mint.Supply = supply
	t.st.tokens[from] = source
	t.st.mints[mintKey] = mint
	return nil
}

func (t *Txn) CreateDataAccount(key, owner solana.PublicKey, data []byte) error {
	if err := t.writable(); err != nil {
		return err
	}
	if t.Exists(key) {
		return fmt.Errorf("create account %s: %w", key, ErrAccountInUse)
	}
	t.st.data[key] = DataAccount{Owner: owner, Data: append([]byte(nil), data...)}
	return nil
}

func (t *Txn) WriteData(program, key solana.PublicKey, data []byte) error {
	if err := t.writable(); err != nil {
		return err
	}
	account, ok := t.st.data[key]
	if !ok {
		return fmt.Errorf("write account %s: %w", key, ErrAccountNotFound)
	}
	if !account.Owner.Equals(program) {
		return fmt.Errorf("write account %s owned by %s from %s: %w", key, account.Owner, program, ErrIllegalOwner)
	}
	t.st.data[key] = DataAccount{Owner: account.Owner, Data: append([]byte(nil), data...)}
	return nil
}

func (t *Txn) writable() error {
	if t.readOnly {
		return ErrReadOnly
	}
	return nil
}
