package runtime

import (
	"fmt"
	"maps"

	"github.com/gagliardetto/solana-go"

	"github.com/coldbell/restake/backend/internal/ledger"
)

// Context is one invocation frame. It carries the signer privileges of the
// frame and gives the executing program access to the staged ledger.
type Context struct {
	rt      *Runtime
	txn     *ledger.Txn
	program solana.PublicKey
	signers ledger.Signers
	depth   int
	logs    *[]string
	events  *[]Event
}

func (c *Context) ProgramID() solana.PublicKey {
	return c.program
}

func (c *Context) Txn() *ledger.Txn {
	return c.txn
}

// IsSigner makes Context a ledger.Authority for token operations.
func (c *Context) IsSigner(key solana.PublicKey) bool {
	return c.signers.IsSigner(key)
}

func (c *Context) Depth() int {
	return c.depth + 1
}

func (c *Context) Logf(format string, args ...any) {
	*c.logs = append(*c.logs, fmt.Sprintf("Program %s ", c.program)+fmt.Sprintf(format, args...))
}

func (c *Context) Emit(name string, fields map[string]any) {
	*c.events = append(*c.events, Event{Program: c.program, Name: name, Fields: fields})
}

// WithSigner returns a frame that additionally signs for the program address
// derived from seeds under the executing program.
func (c *Context) WithSigner(seeds [][]byte) (*Context, error) {
	address, err := solana.CreateProgramAddress(seeds, c.program)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSeeds, err)
	}
	next := *c
	next.signers = maps.Clone(c.signers)
	next.signers[address] = struct{}{}
	return &next, nil
}

// Invoke runs ix as a nested call. Signer flags on ix may only name keys the
// current frame already signs for.
func (c *Context) Invoke(ix solana.Instruction) error {
	if c.depth+1 >= maxInvokeDepth {
		return ErrMaxInvokeDepth
	}
	program, err := c.rt.program(ix.ProgramID())
	if err != nil {
		return err
	}
	data, err := ix.Data()
	if err != nil {
		return fmt.Errorf("instruction data: %w", err)
	}

	accounts := ix.Accounts()
	for _, meta := range accounts {
		if meta.IsSigner && !c.IsSigner(meta.PublicKey) {
			return fmt.Errorf("signer %s: %w", meta.PublicKey, ErrPrivilegeEscalation)
		}
	}

	child := &Context{
		rt:      c.rt,
		txn:     c.txn,
		program: program.ID(),
		signers: signersOf(accounts),
		depth:   c.depth + 1,
		logs:    c.logs,
		events:  c.events,
	}
	child.Logf("invoke [%d]", child.Depth())
	if err := program.Process(child, accounts, data); err != nil {
		child.Logf("failed: %v", err)
		return err
	}
	child.Logf("success")
	return nil
}

// Account returns accounts[i] or ErrNotEnoughAccountKeys.
func Account(accounts []*solana.AccountMeta, i int) (*solana.AccountMeta, error) {
	if i < 0 || i >= len(accounts) {
		return nil, fmt.Errorf("account index %d of %d: %w", i, len(accounts), ErrNotEnoughAccountKeys)
	}
	return accounts[i], nil
}
