package model

// Item is the narrow catalog view the settlement engine consumes: price,
// payee and availability. Catalog management itself lives outside this
// service.
type Item struct {
	ID               string  `json:"id"`
	Title            string  `json:"title"`
	PriceMinor       int64   `json:"price_minor"`
	PayeeID          int64   `json:"payee_id"`
	Available        bool    `json:"available"`
	FulfillmentCount int64   `json:"fulfillment_count"`
	AssetObjectKey   *string `json:"asset_object_key,omitempty"`
}
