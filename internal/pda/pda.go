package pda

import (
	"crypto/sha256"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

var seed = struct {
	Pool          []byte
	AVS           []byte
	RestakingPool []byte
	GlobalNS      string
	AccountNS     string
}{
	Pool:          []byte("lrt_pool"),
	AVS:           []byte("endo_avs"),
	RestakingPool: []byte("restaking_pool"),
	GlobalNS:      "global",
	AccountNS:     "account",
}

// PoolSeeds identifies a pool. RestakedMint is only part of the seed set for
// pools that route deposits through the restaking program.
type PoolSeeds struct {
	InputMint    solana.PublicKey
	OutputMint   solana.PublicKey
	RestakedMint solana.PublicKey
	Restaked     bool
}

func (s PoolSeeds) Bytes() [][]byte {
	if s.Restaked {
		return [][]byte{seed.Pool, s.InputMint.Bytes(), s.OutputMint.Bytes(), s.RestakedMint.Bytes()}
	}
	return [][]byte{seed.Pool, s.OutputMint.Bytes()}
}

// WithBump returns the signer seeds used when the pool signs a cross-program call.
func (s PoolSeeds) WithBump(bump uint8) [][]byte {
	return append(s.Bytes(), []byte{bump})
}

func DerivePoolAddress(programID solana.PublicKey, seeds PoolSeeds) (solana.PublicKey, uint8, error) {
	if seeds.OutputMint.IsZero() {
		return solana.PublicKey{}, 0, fmt.Errorf("derive pool: output mint is required")
	}
	if seeds.Restaked && (seeds.InputMint.IsZero() || seeds.RestakedMint.IsZero()) {
		return solana.PublicKey{}, 0, fmt.Errorf("derive pool: input and restaked mints are required")
	}
	return solana.FindProgramAddress(seeds.Bytes(), programID)
}

func DeriveVaultAddress(owner, mint solana.PublicKey) (solana.PublicKey, error) {
	vault, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive vault for owner %s mint %s: %w", owner, mint, err)
	}
	return vault, nil
}

func DeriveAVSAddress(avsProgramID, avsTokenMint solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{seed.AVS, avsTokenMint.Bytes()}, avsProgramID)
}

func AVSSignerSeeds(avsTokenMint solana.PublicKey, bump uint8) [][]byte {
	return [][]byte{seed.AVS, avsTokenMint.Bytes(), {bump}}
}

func DeriveRestakingPoolAddress(restakingProgramID, baseMint solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{seed.RestakingPool, baseMint.Bytes()}, restakingProgramID)
}

func RestakingPoolSignerSeeds(baseMint solana.PublicKey, bump uint8) [][]byte {
	return [][]byte{seed.RestakingPool, baseMint.Bytes(), {bump}}
}

func MustDerivePoolAddress(programID solana.PublicKey, seeds PoolSeeds) solana.PublicKey {
	pk, _, err := DerivePoolAddress(programID, seeds)
	if err != nil {
		panic(fmt.Errorf("derive pool PDA: %w", err))
	}
	return pk
}

func MustDeriveVaultAddress(owner, mint solana.PublicKey) solana.PublicKey {
	pk, err := DeriveVaultAddress(owner, mint)
	if err != nil {
		panic(err)
	}
	return pk
}

// InstructionDiscriminator is the Anchor sighash for a global instruction.
func InstructionDiscriminator(ixName string) [8]byte {
	return sighash(seed.GlobalNS, ixName)
}

func AccountDiscriminator(accountName string) [8]byte {
	return sighash(seed.AccountNS, accountName)
}

func sighash(namespace, name string) [8]byte {
	hash := sha256.Sum256([]byte(namespace + ":" + name))
	var out [8]byte
	copy(out[:], hash[:8])
	return out
}
