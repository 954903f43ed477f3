package store

import "github.com/matheus3301/wpphub/internal/status"

// ChannelWhatsApp is the only channel this service links.
const ChannelWhatsApp = "whatsapp"

// ConnState is the connection state of a tenant's channel link.
type ConnState string

const (
	Connected    ConnState = "connected"
	Disconnected ConnState = "disconnected"
)

// Direction tells whether a message was received from or sent to a contact.
type Direction string

const (
	Inbound  Direction = "inbound"
	Outbound Direction = "outbound"
)

// Kind is the content kind of a stored message.
type Kind string

const (
	KindText     Kind = "text"
	KindTemplate Kind = "template"
)

// ChannelConfig is a tenant's link to the messaging channel.
type ChannelConfig struct {
	TenantID         string
	Channel          string
	PhoneNumberID    string // routing key assigned by the provider
	AccessToken      string
	State            ConnState
	AutoReplyEnabled bool
	WelcomeMessage   string
	TemplateLanguage string
	CreatedAt        int64
	UpdatedAt        int64
}

// Connected reports whether the channel may send and receive.
func (c *ChannelConfig) Connected() bool {
	return c != nil && c.State == Connected
}

// Message is a single inbound or outbound message.
type Message struct {
	ID           int64
	TenantID     string
	ExternalID   string
	Counterparty string
	Direction    Direction
	Body         string
	Kind         Kind
	TemplateName string
	Status       status.Status
	ErrorMessage string
	Timestamp    int64 // provider time, unix ms
	CreatedAt    int64
	UpdatedAt    int64
}

// IngestResult describes the outcome of storing an inbound message.
type IngestResult struct {
	Inserted bool
	// InboundCount is the number of inbound messages from the same
	// counterparty to the same tenant, counted after the insert.
	InboundCount int64
}

// StatusOutcome is the result of a status update attempt.
type StatusOutcome int

const (
	StatusApplied StatusOutcome = iota
	StatusStale
	StatusMissing
)

func (o StatusOutcome) String() string {
	switch o {
	case StatusApplied:
		return "applied"
	case StatusStale:
		return "stale"
	case StatusMissing:
		return "missing"
	default:
		return "unknown"
	}
}
