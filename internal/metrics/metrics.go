package metrics

// Recorder counts settlement activity. Implementations must be safe for
// concurrent use; webhook deliveries record from independent goroutines.
type Recorder interface {
	// IncSettlement counts a ledger row reaching a terminal state.
	IncSettlement(rail, status string)
	// IncWebhookEvent counts an inbound provider event by outcome
	// (applied, noop, rejected).
	IncWebhookEvent(provider, outcome string)
}
