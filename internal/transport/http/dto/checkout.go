package dto

type CheckoutCreateRequest struct {
	Rail    string   `json:"rail" validate:"required,oneof=card wallet_pay stablecoin"`
	ItemIDs []string `json:"item_ids" validate:"required,min=1,max=20,dive,required"`
	Network string   `json:"network" validate:"required_if=Rail stablecoin"`
}

type CheckoutCreateResponse struct {
	Rail        string   `json:"rail"`
	IntentID    string   `json:"intent_id"`
	PurchaseIDs []string `json:"purchase_ids"`
	TotalMinor  int64    `json:"total_minor"`

	ClientSecret string `json:"client_secret,omitempty"`

	DepositAddress string `json:"deposit_address,omitempty"`
	Network        string `json:"network,omitempty"`
}

type IntentStatusResponse struct {
	IntentID      string  `json:"intent_id"`
	Status        string  `json:"status"`
	SettlementRef *string `json:"settlement_ref,omitempty"`
}

type ChainRecordRequest struct {
	ItemID      string `json:"item_id" validate:"required"`
	Signature   string `json:"signature" validate:"required"`
	AmountMinor int64  `json:"amount_minor" validate:"gte=0"`
	Network     string `json:"network"`
}

type ChainRecordResponse struct {
	PurchaseID      string `json:"purchase_id"`
	Status          string `json:"status"`
	AlreadyRecorded bool   `json:"already_recorded"`
}
