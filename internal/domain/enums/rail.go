package enums

// Rail is a settlement path a purchase was paid over.
type Rail string

const (
	RailCard       Rail = "card"
	RailWalletPay  Rail = "wallet_pay"
	RailStablecoin Rail = "stablecoin"
	RailChain      Rail = "chain"
)

func (r Rail) Valid() bool {
	switch r {
	case RailCard, RailWalletPay, RailStablecoin, RailChain:
		return true
	default:
		return false
	}
}

// PSPRails are the rails settled through the hosted card/wallet-pay provider.
// A single provider intent can back rows on either of them.
func PSPRails() []Rail {
	return []Rail{RailCard, RailWalletPay}
}
