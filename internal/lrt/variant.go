package lrt

import (
	"fmt"
	"strings"
)

// Variant selects the deployment topology of the pool.
//
// Direct pools hold the input asset and the AVS receipt. Restaked pools also
// forward every deposit through the restaking program and hold the restaked
// asset in a third vault.
type Variant string

const (
	VariantDirect   Variant = "direct"
	VariantRestaked Variant = "restaked"
)

func ParseVariant(raw string) (Variant, error) {
	switch Variant(strings.ToLower(strings.TrimSpace(raw))) {
	case "", VariantDirect:
		return VariantDirect, nil
	case VariantRestaked:
		return VariantRestaked, nil
	default:
		return "", fmt.Errorf("unsupported pool variant %q", raw)
	}
}

func (v Variant) Restaked() bool {
	return v == VariantRestaked
}

func (v Variant) String() string {
	return string(v)
}
