package fees

// Calculator splits a gross amount in minor units into the platform fee and
// the payee payout. The split is deterministic: fee + payout reproduces the
// gross amount exactly for every input, so per-row splits never drift when
// amounts are aggregated.
type Calculator struct {
	rateBps int64
}

const bpsDenominator = 10_000

func NewCalculator(rateBps int) *Calculator {
	if rateBps < 0 {
		rateBps = 0
	}
	if rateBps > bpsDenominator {
		rateBps = bpsDenominator
	}
	return &Calculator{rateBps: int64(rateBps)}
}

// Split returns (platform fee, payee payout) for a gross amount in minor
// units. The fee is rounded half up; the payout is the exact remainder.
func (c *Calculator) Split(amountMinor int64) (int64, int64) {
	if amountMinor <= 0 {
		return 0, 0
	}

	fee := (amountMinor*c.rateBps + bpsDenominator/2) / bpsDenominator
	return fee, amountMinor - fee
}

func (c *Calculator) RateBps() int {
	return int(c.rateBps)
}
