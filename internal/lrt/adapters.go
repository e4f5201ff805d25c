package lrt

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/coldbell/restake/backend/internal/pda"
	"github.com/coldbell/restake/backend/internal/runtime"
)

// Adapter method names double as the external programs' instruction names.
const (
	RestakingRestake   = "restake"
	RestakingUnrestake = "unrestake"
	AVSDelegate        = "delegate"
	AVSUndelegate      = "undelegate"
)

// RestakeCall converts between the input asset held in InputVault and the
// restaked asset held in RestakedVault, both owned by Staker.
type RestakeCall struct {
	Program            solana.PublicKey
	Staker             solana.PublicKey
	StakerSeeds        [][]byte
	InputMint          solana.PublicKey
	InputVault         solana.PublicKey
	RestakedVault      solana.PublicKey
	RestakedMint       solana.PublicKey
	RestakingPoolVault solana.PublicKey
	RestakingPool      solana.PublicKey
	Amount             uint64
}

// Accounts returns the ten ordered accounts of the restaking call contract.
func (c RestakeCall) Accounts() solana.AccountMetaSlice {
	return solana.AccountMetaSlice{
		solana.NewAccountMeta(c.Staker, true, true),
		solana.NewAccountMeta(c.InputMint, true, false),
		solana.NewAccountMeta(c.InputVault, true, false),
		solana.NewAccountMeta(c.RestakedVault, true, false),
		solana.NewAccountMeta(c.RestakedMint, true, false),
		solana.NewAccountMeta(c.RestakingPoolVault, true, false),
		solana.NewAccountMeta(c.RestakingPool, false, false),
		solana.NewAccountMeta(solana.SPLAssociatedTokenAccountProgramID, false, false),
		solana.NewAccountMeta(solana.TokenProgramID, false, false),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
	}
}

func (c RestakeCall) Instruction(name string) solana.Instruction {
	return solana.NewInstruction(c.Program, c.Accounts(), ExternalCallData(name, c.Amount))
}

// AVSCall moves DelegatedTokenMint value between the staker and the AVS.
// Remaining is forwarded after the ten fixed accounts, in order.
type AVSCall struct {
	Program                     solana.PublicKey
	Staker                      solana.PublicKey
	StakerSeeds                 [][]byte
	AVS                         solana.PublicKey
	AVSTokenMint                solana.PublicKey
	DelegatedTokenVault         solana.PublicKey
	DelegatedTokenMint          solana.PublicKey
	StakerDelegatedTokenAccount solana.PublicKey
	StakerAVSTokenAccount       solana.PublicKey
	Remaining                   []*solana.AccountMeta
	Amount                      uint64
}

func (c AVSCall) Accounts() solana.AccountMetaSlice {
	metas := solana.AccountMetaSlice{
		solana.NewAccountMeta(c.Staker, true, true),
		solana.NewAccountMeta(c.AVS, true, false),
		solana.NewAccountMeta(c.AVSTokenMint, true, false),
		solana.NewAccountMeta(c.DelegatedTokenVault, true, false),
		solana.NewAccountMeta(c.DelegatedTokenMint, true, false),
		solana.NewAccountMeta(c.StakerDelegatedTokenAccount, true, false),
		solana.NewAccountMeta(c.StakerAVSTokenAccount, true, false),
		solana.NewAccountMeta(solana.TokenProgramID, false, false),
		solana.NewAccountMeta(solana.SPLAssociatedTokenAccountProgramID, false, false),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
	}
	for _, meta := range c.Remaining {
		metas = append(metas, &solana.AccountMeta{PublicKey: meta.PublicKey, IsWritable: meta.IsWritable, IsSigner: meta.IsSigner})
	}
	return metas
}

func (c AVSCall) Instruction(name string) solana.Instruction {
	return solana.NewInstruction(c.Program, c.Accounts(), ExternalCallData(name, c.Amount))
}

// ExternalCallData is the Anchor-style payload of an adapter call:
// sighash("global", name) followed by the little-endian amount.
func ExternalCallData(name string, amount uint64) []byte {
	disc := pda.InstructionDiscriminator(name)
	buf := new(bytes.Buffer)
	encoder := bin.NewBorshEncoder(buf)
	_ = encoder.WriteBytes(disc[:], false)
	_ = encoder.WriteUint64(amount, bin.LE)
	return buf.Bytes()
}

// ParseExternalCall resolves an adapter payload against the accepted names.
func ParseExternalCall(data []byte, names ...string) (string, uint64, error) {
	if len(data) != 16 {
		return "", 0, fmt.Errorf("external call data must be 16 bytes, got %d", len(data))
	}
	var disc [8]byte
	copy(disc[:], data[:8])
	for _, name := range names {
		if pda.InstructionDiscriminator(name) != disc {
			continue
		}
		amount, err := bin.NewBorshDecoder(data[8:]).ReadUint64(bin.LE)
		if err != nil {
			return "", 0, err
		}
		return name, amount, nil
	}
	return "", 0, fmt.Errorf("unknown external call %x", disc)
}

type RestakingAdapter interface {
	Restake(ctx *runtime.Context, call RestakeCall) error
	Unrestake(ctx *runtime.Context, call RestakeCall) error
}

type AVSAdapter interface {
	Delegate(ctx *runtime.Context, call AVSCall) error
	Undelegate(ctx *runtime.Context, call AVSCall) error
}

// CPIRestakingAdapter invokes the restaking program through the runtime with
// the staker's program-derived signature.
type CPIRestakingAdapter struct{}

func (CPIRestakingAdapter) Restake(ctx *runtime.Context, call RestakeCall) error {
	return invokeSigned(ctx, call.StakerSeeds, call.Instruction(RestakingRestake))
}

func (CPIRestakingAdapter) Unrestake(ctx *runtime.Context, call RestakeCall) error {
	return invokeSigned(ctx, call.StakerSeeds, call.Instruction(RestakingUnrestake))
}

type CPIAVSAdapter struct{}

func (CPIAVSAdapter) Delegate(ctx *runtime.Context, call AVSCall) error {
	return invokeSigned(ctx, call.StakerSeeds, call.Instruction(AVSDelegate))
}

func (CPIAVSAdapter) Undelegate(ctx *runtime.Context, call AVSCall) error {
	return invokeSigned(ctx, call.StakerSeeds, call.Instruction(AVSUndelegate))
}

func invokeSigned(ctx *runtime.Context, seeds [][]byte, ix solana.Instruction) error {
	signed, err := ctx.WithSigner(seeds)
	if err != nil {
		return err
	}
	return signed.Invoke(ix)
}
