package lrt

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/coldbell/restake/backend/internal/pda"
)

const (
	poolAccountName = "LRTPool"

	DirectPoolSize   = 8 + 1 + 32*3
	RestakedPoolSize = 8 + 1 + 32*4
)

var poolDiscriminator = pda.AccountDiscriminator(poolAccountName)

// Pool is the on-ledger configuration record of one pool.
type Pool struct {
	Bump              uint8
	InputTokenMint    solana.PublicKey
	OutputTokenMint   solana.PublicKey
	RestakedTokenMint solana.PublicKey
	DelegateAuthority solana.PublicKey
	Restaked          bool
}

func (p Pool) Seeds() pda.PoolSeeds {
	return pda.PoolSeeds{
		InputMint:    p.InputTokenMint,
		OutputMint:   p.OutputTokenMint,
		RestakedMint: p.RestakedTokenMint,
		Restaked:     p.Restaked,
	}
}

func (p Pool) SignerSeeds() [][]byte {
	return p.Seeds().WithBump(p.Bump)
}

// LiquidMint is the mint held as undelegated value and handed to the AVS.
func (p Pool) LiquidMint() solana.PublicKey {
	if p.Restaked {
		return p.RestakedTokenMint
	}
	return p.InputTokenMint
}

func (p Pool) Variant() Variant {
	if p.Restaked {
		return VariantRestaked
	}
	return VariantDirect
}

func (p Pool) MarshalWithEncoder(encoder *bin.Encoder) error {
	if err := encoder.WriteBytes(poolDiscriminator[:], false); err != nil {
		return err
	}
	if err := encoder.WriteUint8(p.Bump); err != nil {
		return err
	}
	keys := []solana.PublicKey{p.InputTokenMint, p.OutputTokenMint}
	if p.Restaked {
		keys = append(keys, p.RestakedTokenMint)
	}
	keys = append(keys, p.DelegateAuthority)
	for _, key := range keys {
		if err := encoder.WriteBytes(key[:], false); err != nil {
			return err
		}
	}
	return nil
}

// UnmarshalWithDecoder expects p.Restaked to be set from the account size.
func (p *Pool) UnmarshalWithDecoder(decoder *bin.Decoder) error {
	disc, err := decoder.ReadBytes(len(poolDiscriminator))
	if err != nil {
		return err
	}
	if !bytes.Equal(disc, poolDiscriminator[:]) {
		return fmt.Errorf("unexpected account discriminator %x", disc)
	}
	if p.Bump, err = decoder.ReadUint8(); err != nil {
		return err
	}
	targets := []*solana.PublicKey{&p.InputTokenMint, &p.OutputTokenMint}
	if p.Restaked {
		targets = append(targets, &p.RestakedTokenMint)
	}
	targets = append(targets, &p.DelegateAuthority)
	for _, target := range targets {
		raw, err := decoder.ReadBytes(solana.PublicKeyLength)
		if err != nil {
			return err
		}
		copy(target[:], raw)
	}
	return nil
}

func EncodePool(p Pool) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := p.MarshalWithEncoder(bin.NewBorshEncoder(buf)); err != nil {
		return nil, fmt.Errorf("encode pool: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodePool picks the variant from the account size.
func DecodePool(data []byte) (*Pool, error) {
	var pool Pool
	switch len(data) {
	case DirectPoolSize:
	case RestakedPoolSize:
		pool.Restaked = true
	default:
		return nil, fmt.Errorf("decode pool: unexpected account size %d", len(data))
	}
	if err := pool.UnmarshalWithDecoder(bin.NewBorshDecoder(data)); err != nil {
		return nil, fmt.Errorf("decode pool: %w", err)
	}
	return &pool, nil
}

func IsPoolAccount(data []byte) bool {
	return len(data) >= len(poolDiscriminator) && bytes.Equal(data[:len(poolDiscriminator)], poolDiscriminator[:])
}
