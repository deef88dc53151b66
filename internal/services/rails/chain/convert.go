package chain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Converter turns a fiat amount in minor units into lamports using a fixed
// ratio. There is no FX here; the ratio is configuration.
type Converter struct {
	lamportsPerMinor decimal.Decimal
}

func NewConverter(lamportsPerMinorUnit string) (Converter, error) {
	ratio, err := decimal.NewFromString(lamportsPerMinorUnit)
	if err != nil {
		return Converter{}, fmt.Errorf("parse lamports ratio %q: %w", lamportsPerMinorUnit, err)
	}
	if !ratio.IsPositive() {
		return Converter{}, fmt.Errorf("lamports ratio must be positive, got %s", ratio)
	}

	return Converter{lamportsPerMinor: ratio}, nil
}

// Lamports rounds half up and never returns less than one lamport for a
// positive amount; a zero-lamport transfer would be accepted by the chain but
// move nothing.
func (c Converter) Lamports(amountMinor int64) uint64 {
	if amountMinor <= 0 {
		return 0
	}

	lamports := decimal.NewFromInt(amountMinor).Mul(c.lamportsPerMinor).Round(0)
	if lamports.LessThan(decimal.New(1, 0)) {
		return 1
	}

	return lamports.BigInt().Uint64()
}
