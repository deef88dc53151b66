package dto

type PayoutOnboardRequest struct {
	AccountRef string `json:"account_ref" validate:"required,max=255"`
}

type PayoutOnboardResponse struct {
	PayeeID    int64  `json:"payee_id"`
	AccountRef string `json:"account_ref"`
	Created    bool   `json:"created"`
}
