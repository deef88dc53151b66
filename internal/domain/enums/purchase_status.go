package enums

type PurchaseStatus string

const (
	PurchaseStatusPending   PurchaseStatus = "pending"
	PurchaseStatusCompleted PurchaseStatus = "completed"
	PurchaseStatusFailed    PurchaseStatus = "failed"
	// PurchaseStatusRefunded is reachable only from completed. No flow
	// currently produces it; the ledger still refuses every other transition
	// into it.
	PurchaseStatusRefunded PurchaseStatus = "refunded"
)

func (s PurchaseStatus) Terminal() bool {
	return s == PurchaseStatusCompleted || s == PurchaseStatusFailed || s == PurchaseStatusRefunded
}
