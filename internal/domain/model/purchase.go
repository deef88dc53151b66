package model

import (
	"time"

	"github.com/craftora/marketplace/internal/domain/enums"
)

// Purchase is one ledger row: one purchased item within one checkout.
// PlatformFee + PayeePayout always equals Amount.
type Purchase struct {
	ID             string               `json:"id"`
	BuyerID        int64                `json:"buyer_id"`
	ItemID         string               `json:"item_id"`
	Amount         int64                `json:"amount"`
	PlatformFee    int64                `json:"platform_fee"`
	PayeePayout    int64                `json:"payee_payout"`
	Rail           enums.Rail           `json:"rail"`
	RailNetwork    *string              `json:"rail_network,omitempty"`
	CorrelationRef *string              `json:"correlation_ref,omitempty"`
	ChainTxRef     *string              `json:"chain_tx_ref,omitempty"`
	Status         enums.PurchaseStatus `json:"status"`
	CreatedAt      time.Time            `json:"created_at"`
}
