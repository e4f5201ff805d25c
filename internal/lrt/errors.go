package lrt

import (
	"errors"
	"fmt"

	"github.com/coldbell/restake/backend/internal/ledger"
)

const errorCodeOffset = 6000

// ProgramError is a coded failure surfaced to callers in the receipt.
type ProgramError struct {
	Code uint32
	Name string
	Msg  string
}

func (e *ProgramError) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Name, e.Code, e.Msg)
}

func newProgramError(index uint32, name, msg string) *ProgramError {
	return &ProgramError{Code: errorCodeOffset + index, Name: name, Msg: msg}
}

var (
	ErrAlreadyInitialized         = newProgramError(0, "AlreadyInitialized", "pool already initialized")
	ErrInvalidMintAuthority       = newProgramError(1, "InvalidMintAuthority", "signer does not hold the output mint authority")
	ErrInsufficientFunds          = newProgramError(2, "InsufficientFunds", "insufficient funds")
	ErrInsufficientLiquidity      = newProgramError(3, "InsufficientLiquidity", "insufficient undelegated liquidity in the pool")
	ErrUnauthorized               = newProgramError(4, "Unauthorized", "signer is not the delegate authority")
	ErrOverflow                   = newProgramError(5, "Overflow", "arithmetic overflow")
	ErrAdapterRejected            = newProgramError(6, "AdapterRejected", "external program rejected the call")
	ErrAccountMismatch            = newProgramError(7, "AccountMismatch", "supplied account does not match the derived account")
	ErrNonZeroOutputSupply        = newProgramError(8, "NonZeroOutputSupply", "output mint supply must be zero during initialization")
	ErrInsufficientDelegatedStake = newProgramError(9, "InsufficientDelegatedStake", "insufficient AVS tokens for undelegate")
	ErrMissingAccounts            = newProgramError(10, "MissingAccounts", "missing necessary accounts")
	ErrInvalidAmount              = newProgramError(11, "InvalidAmount", "amount must be greater than zero")
	ErrInvalidAuthority           = newProgramError(12, "InvalidAuthority", "delegate authority must not be the zero key")
	ErrUnknownInstruction         = newProgramError(13, "UnknownInstruction", "unknown instruction discriminator")
	ErrInvalidInstructionData     = newProgramError(14, "InvalidInstructionData", "malformed instruction arguments")
)

var programErrors = []*ProgramError{
	ErrAlreadyInitialized,
	ErrInvalidMintAuthority,
	ErrInsufficientFunds,
	ErrInsufficientLiquidity,
	ErrUnauthorized,
	ErrOverflow,
	ErrAdapterRejected,
	ErrAccountMismatch,
	ErrNonZeroOutputSupply,
	ErrInsufficientDelegatedStake,
	ErrMissingAccounts,
	ErrInvalidAmount,
	ErrInvalidAuthority,
	ErrUnknownInstruction,
	ErrInvalidInstructionData,
}

// CodeOf returns the program error code carried by err, if any.
func CodeOf(err error) (*ProgramError, bool) {
	var perr *ProgramError
	if errors.As(err, &perr) {
		return perr, true
	}
	return nil, false
}

func ErrorByCode(code uint32) (*ProgramError, bool) {
	if code < errorCodeOffset || int(code-errorCodeOffset) >= len(programErrors) {
		return nil, false
	}
	return programErrors[code-errorCodeOffset], true
}

// translate maps ledger failures onto the program taxonomy while keeping the
// ledger error in the chain.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return fmt.Errorf("%w: %w", ErrInsufficientFunds, err)
	case errors.Is(err, ledger.ErrOverflow):
		return fmt.Errorf("%w: %w", ErrOverflow, err)
	case errors.Is(err, ledger.ErrMintMismatch), errors.Is(err, ledger.ErrOwnerMismatch), errors.Is(err, ledger.ErrAccountNotFound):
		return fmt.Errorf("%w: %w", ErrAccountMismatch, err)
	default:
		return err
	}
}
