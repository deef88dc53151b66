package enums

type NotificationKind string

const (
	NotificationKindSale     NotificationKind = "sale"
	NotificationKindPurchase NotificationKind = "purchase"
	NotificationKindSystem   NotificationKind = "system"
)
