package fees

import "testing"

func TestSplitConservesAmount(t *testing.T) {
	calc := NewCalculator(1000)

	amounts := []int64{1, 2, 3, 7, 49, 50, 99, 100, 101, 999, 1_000, 4_999, 5_000, 123_456, 9_999_999}
	for _, amount := range amounts {
		fee, payout := calc.Split(amount)
		if fee+payout != amount {
			t.Fatalf("split of %d leaks units: fee=%d payout=%d", amount, fee, payout)
		}
		if fee < 0 || payout < 0 {
			t.Fatalf("split of %d produced negative part: fee=%d payout=%d", amount, fee, payout)
		}
	}
}

func TestSplitRoundsHalfUp(t *testing.T) {
	calc := NewCalculator(1000) // 10%

	cases := []struct {
		amount int64
		fee    int64
	}{
		{5000, 500},
		{5005, 501}, // 500.5 rounds up
		{5004, 500}, // 500.4 rounds down
		{1, 0},      // 0.1 rounds down, payout keeps the unit
		{5, 1},      // 0.5 rounds up
	}
	for _, tc := range cases {
		fee, payout := calc.Split(tc.amount)
		if fee != tc.fee {
			t.Fatalf("fee(%d) = %d, want %d", tc.amount, fee, tc.fee)
		}
		if fee+payout != tc.amount {
			t.Fatalf("split of %d leaks units", tc.amount)
		}
	}
}

func TestSplitAggregationConsistency(t *testing.T) {
	calc := NewCalculator(1000)

	// Per-row independent rounding must still sum to the sum of row amounts.
	rows := []int64{4_999, 2_501, 4_500} // $120 cart in three items
	var total, feeSum, payoutSum int64
	for _, amount := range rows {
		fee, payout := calc.Split(amount)
		total += amount
		feeSum += fee
		payoutSum += payout
	}
	if feeSum+payoutSum != total {
		t.Fatalf("aggregated split drifts: fees=%d payouts=%d total=%d", feeSum, payoutSum, total)
	}
}

func TestSplitNonPositiveAmounts(t *testing.T) {
	calc := NewCalculator(1000)

	for _, amount := range []int64{0, -1, -500} {
		fee, payout := calc.Split(amount)
		if fee != 0 || payout != 0 {
			t.Fatalf("split of %d should be zero, got fee=%d payout=%d", amount, fee, payout)
		}
	}
}

func TestNewCalculatorClampsRate(t *testing.T) {
	if got := NewCalculator(-5).RateBps(); got != 0 {
		t.Fatalf("negative rate not clamped: %d", got)
	}
	if got := NewCalculator(20_000).RateBps(); got != 10_000 {
		t.Fatalf("excessive rate not clamped: %d", got)
	}
}
