package bus

import "time"

// Event kinds published by the messaging pipeline.
const (
	KindMessageInbound  = "message.inbound"
	KindMessageOutbound = "message.outbound"
	KindMessageStatus   = "message.status"
)

// Event is a domain event scoped to a tenant.
type Event struct {
	Kind      string
	TenantID  string
	Timestamp time.Time
	Payload   any
}
