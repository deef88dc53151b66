package metrics

type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (*NoopRecorder) IncSettlement(string, string)   {}
func (*NoopRecorder) IncWebhookEvent(string, string) {}
