package ports

import "context"

// EventPublisher is the outbound usage-event publish port.
// The application uses this abstraction to keep broker/client concerns in adapters.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, payload []byte) error
}

// Event types emitted through the outbox.
const (
	EventActionRecorded   = "usage.action_recorded"
	EventPremiumRecorded  = "usage.premium_recorded"
	EventDeviceReconciled = "usage.device_reconciled"
	EventDeviceLinked     = "usage.device_linked"
)
