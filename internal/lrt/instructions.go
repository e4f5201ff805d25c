package lrt

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/coldbell/restake/backend/internal/pda"
)

const (
	InstructionInitialize                = "initialize"
	InstructionDeposit                   = "deposit"
	InstructionWithdraw                  = "withdraw"
	InstructionDelegate                  = "delegate"
	InstructionUndelegate                = "undelegate"
	InstructionWithdrawDelegatedStake    = "withdraw_delegated_stake"
	InstructionTransferDelegateAuthority = "transfer_delegate_authority"
)

var instructionNames = []string{
	InstructionInitialize,
	InstructionDeposit,
	InstructionWithdraw,
	InstructionDelegate,
	InstructionUndelegate,
	InstructionWithdrawDelegatedStake,
	InstructionTransferDelegateAuthority,
}

var instructionByDiscriminator = func() map[[8]byte]string {
	out := make(map[[8]byte]string, len(instructionNames))
	for _, name := range instructionNames {
		out[pda.InstructionDiscriminator(name)] = name
	}
	return out
}()

func takesAmount(name string) bool {
	return name != InstructionInitialize && name != InstructionTransferDelegateAuthority
}

// DecodedInstruction is the parsed data of one pool instruction.
type DecodedInstruction struct {
	Name   string
	Amount uint64
}

func DecodeInstructionData(data []byte) (DecodedInstruction, error) {
	if len(data) < 8 {
		return DecodedInstruction{}, fmt.Errorf("%w: %d bytes", ErrUnknownInstruction, len(data))
	}
	var disc [8]byte
	copy(disc[:], data[:8])
	name, ok := instructionByDiscriminator[disc]
	if !ok {
		return DecodedInstruction{}, fmt.Errorf("%w: %x", ErrUnknownInstruction, disc)
	}
	out := DecodedInstruction{Name: name}
	if !takesAmount(name) {
		return out, nil
	}

	decoder := bin.NewBorshDecoder(data[8:])
	amount, err := decoder.ReadUint64(bin.LE)
	if err != nil {
		return DecodedInstruction{}, fmt.Errorf("%w: %s amount: %w", ErrInvalidInstructionData, name, err)
	}
	out.Amount = amount
	return out, nil
}

func EncodeInstructionData(name string, amount uint64) ([]byte, error) {
	disc := pda.InstructionDiscriminator(name)
	if _, ok := instructionByDiscriminator[disc]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownInstruction, name)
	}
	buf := new(bytes.Buffer)
	encoder := bin.NewBorshEncoder(buf)
	if err := encoder.WriteBytes(disc[:], false); err != nil {
		return nil, err
	}
	if takesAmount(name) {
		if err := encoder.WriteUint64(amount, bin.LE); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func mustEncode(name string, amount uint64) []byte {
	data, err := EncodeInstructionData(name, amount)
	if err != nil {
		panic(err)
	}
	return data
}

// RestakeAccounts are the extra accounts a restaked pool needs. Initialize
// only reads RestakedTokenMint and PoolRestakedTokenVault.
type RestakeAccounts struct {
	RestakedTokenMint       solana.PublicKey
	PoolRestakedTokenVault  solana.PublicKey
	RestakingPool           solana.PublicKey
	RestakingPoolInputVault solana.PublicKey
	RestakingProgram        solana.PublicKey
}

type InitializeAccounts struct {
	Signer              solana.PublicKey
	DelegateAuthority   solana.PublicKey
	InputTokenMint      solana.PublicKey
	PoolInputTokenVault solana.PublicKey
	OutputTokenMint     solana.PublicKey
	Pool                solana.PublicKey
	Restake             *RestakeAccounts
}

func NewInitializeInstruction(programID solana.PublicKey, a InitializeAccounts) solana.Instruction {
	metas := solana.AccountMetaSlice{
		solana.NewAccountMeta(a.Signer, true, true),
		solana.NewAccountMeta(a.DelegateAuthority, false, false),
		solana.NewAccountMeta(a.InputTokenMint, false, false),
		solana.NewAccountMeta(a.PoolInputTokenVault, true, false),
		solana.NewAccountMeta(a.OutputTokenMint, true, false),
		solana.NewAccountMeta(a.Pool, true, false),
		solana.NewAccountMeta(solana.SPLAssociatedTokenAccountProgramID, false, false),
		solana.NewAccountMeta(solana.TokenProgramID, false, false),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
	}
	if a.Restake != nil {
		metas = append(metas,
			solana.NewAccountMeta(a.Restake.RestakedTokenMint, false, false),
			solana.NewAccountMeta(a.Restake.PoolRestakedTokenVault, true, false),
		)
	}
	return solana.NewInstruction(programID, metas, mustEncode(InstructionInitialize, 0))
}

// TransferAccounts is the account set shared by Deposit, Withdraw and the
// first part of WithdrawDelegatedStake.
type TransferAccounts struct {
	Signer                 solana.PublicKey
	InputTokenMint         solana.PublicKey
	SignerInputTokenVault  solana.PublicKey
	PoolInputTokenVault    solana.PublicKey
	OutputTokenMint        solana.PublicKey
	SignerOutputTokenVault solana.PublicKey
	Pool                   solana.PublicKey
	Restake                *RestakeAccounts
}

func (a TransferAccounts) metas() solana.AccountMetaSlice {
	metas := solana.AccountMetaSlice{
		solana.NewAccountMeta(a.Signer, true, true),
		solana.NewAccountMeta(a.InputTokenMint, false, false),
		solana.NewAccountMeta(a.SignerInputTokenVault, true, false),
		solana.NewAccountMeta(a.PoolInputTokenVault, true, false),
		solana.NewAccountMeta(a.OutputTokenMint, true, false),
		solana.NewAccountMeta(a.SignerOutputTokenVault, true, false),
		solana.NewAccountMeta(a.Pool, false, false),
		solana.NewAccountMeta(solana.SPLAssociatedTokenAccountProgramID, false, false),
		solana.NewAccountMeta(solana.TokenProgramID, false, false),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
	}
	if a.Restake != nil {
		metas = append(metas,
			solana.NewAccountMeta(a.Restake.RestakedTokenMint, true, false),
			solana.NewAccountMeta(a.Restake.PoolRestakedTokenVault, true, false),
			solana.NewAccountMeta(a.Restake.RestakingPool, false, false),
			solana.NewAccountMeta(a.Restake.RestakingPoolInputVault, true, false),
			solana.NewAccountMeta(a.Restake.RestakingProgram, false, false),
		)
	}
	return metas
}

func NewDepositInstruction(programID solana.PublicKey, a TransferAccounts, amount uint64) solana.Instruction {
	return solana.NewInstruction(programID, a.metas(), mustEncode(InstructionDeposit, amount))
}

func NewWithdrawInstruction(programID solana.PublicKey, a TransferAccounts, amount uint64) solana.Instruction {
	return solana.NewInstruction(programID, a.metas(), mustEncode(InstructionWithdraw, amount))
}

// DelegateAccounts is the account set of Delegate and Undelegate.
// DelegatedTokenMint is the pool's liquid mint: the input mint for direct
// pools and the restaked mint for restaked pools.
type DelegateAccounts struct {
	Signer                  solana.PublicKey
	AVS                     solana.PublicKey
	AVSTokenMint            solana.PublicKey
	AVSDelegatedTokenVault  solana.PublicKey
	DelegatedTokenMint      solana.PublicKey
	PoolDelegatedTokenVault solana.PublicKey
	PoolAVSTokenVault       solana.PublicKey
	Pool                    solana.PublicKey
	AVSProgram              solana.PublicKey
	Remaining               []*solana.AccountMeta
}

func (a DelegateAccounts) metas() solana.AccountMetaSlice {
	metas := solana.AccountMetaSlice{
		solana.NewAccountMeta(a.Signer, true, true),
		solana.NewAccountMeta(a.AVS, true, false),
		solana.NewAccountMeta(a.AVSTokenMint, true, false),
		solana.NewAccountMeta(a.AVSDelegatedTokenVault, true, false),
		solana.NewAccountMeta(a.DelegatedTokenMint, true, false),
		solana.NewAccountMeta(a.PoolDelegatedTokenVault, true, false),
		solana.NewAccountMeta(a.PoolAVSTokenVault, true, false),
		solana.NewAccountMeta(a.Pool, true, false),
		solana.NewAccountMeta(a.AVSProgram, false, false),
		solana.NewAccountMeta(solana.TokenProgramID, false, false),
		solana.NewAccountMeta(solana.SPLAssociatedTokenAccountProgramID, false, false),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
	}
	return append(metas, a.Remaining...)
}

func NewDelegateInstruction(programID solana.PublicKey, a DelegateAccounts, amount uint64) solana.Instruction {
	return solana.NewInstruction(programID, a.metas(), mustEncode(InstructionDelegate, amount))
}

func NewUndelegateInstruction(programID solana.PublicKey, a DelegateAccounts, amount uint64) solana.Instruction {
	return solana.NewInstruction(programID, a.metas(), mustEncode(InstructionUndelegate, amount))
}

// AVSAccounts follow the transfer accounts in WithdrawDelegatedStake.
type AVSAccounts struct {
	AVS                    solana.PublicKey
	AVSTokenMint           solana.PublicKey
	AVSDelegatedTokenVault solana.PublicKey
	PoolAVSTokenVault      solana.PublicKey
	AVSProgram             solana.PublicKey
	Remaining              []*solana.AccountMeta
}

func NewWithdrawDelegatedStakeInstruction(programID solana.PublicKey, a TransferAccounts, avs AVSAccounts, amount uint64) solana.Instruction {
	metas := a.metas()
	metas = append(metas,
		solana.NewAccountMeta(avs.AVS, true, false),
		solana.NewAccountMeta(avs.AVSTokenMint, true, false),
		solana.NewAccountMeta(avs.AVSDelegatedTokenVault, true, false),
		solana.NewAccountMeta(avs.PoolAVSTokenVault, true, false),
		solana.NewAccountMeta(avs.AVSProgram, false, false),
	)
	metas = append(metas, avs.Remaining...)
	return solana.NewInstruction(programID, metas, mustEncode(InstructionWithdrawDelegatedStake, amount))
}

func NewTransferDelegateAuthorityInstruction(programID, authority, pool, newAuthority solana.PublicKey) solana.Instruction {
	return solana.NewInstruction(programID, solana.AccountMetaSlice{
		solana.NewAccountMeta(authority, true, true),
		solana.NewAccountMeta(pool, true, false),
		solana.NewAccountMeta(newAuthority, false, false),
	}, mustEncode(InstructionTransferDelegateAuthority, 0))
}
