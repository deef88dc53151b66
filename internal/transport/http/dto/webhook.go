package dto

type WebhookAckResponse struct {
	OK      bool `json:"ok"`
	Applied int  `json:"applied"`
}
