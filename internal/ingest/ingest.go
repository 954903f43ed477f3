// Package ingest applies webhook deliveries to the message store: inbound
// messages, delivery status updates and first-contact auto-replies.
package ingest

import (
	"context"

	"github.com/matheus3301/wpphub/internal/status"
	"github.com/matheus3301/wpphub/internal/store"
)

// ConfigResolver maps a provider routing key to the owning tenant's config.
type ConfigResolver interface {
	ResolveRoutingKey(ctx context.Context, phoneNumberID string) (*store.ChannelConfig, error)
	TenantsForRoutingKey(ctx context.Context, phoneNumberID string) ([]string, error)
}

// MessageStore is the persistence used by the processors.
type MessageStore interface {
	IngestInbound(ctx context.Context, m *store.Message) (*store.IngestResult, error)
	AdvanceStatus(ctx context.Context, tenantID, externalID string, to status.Status, errMsg string) (store.StatusOutcome, error)
}

// AutoReplier sends a welcome message to a first-time contact.
type AutoReplier interface {
	Trigger(ctx context.Context, tenantID, counterparty, welcome string)
}

// Outcome is the result of processing one webhook item.
type Outcome int

const (
	Accepted  Outcome = iota // stored or applied
	Duplicate                // already seen, nothing changed
	Skipped                  // business-level skip (unknown tenant, missing row, stale status)
	Failed                   // internal failure, logged
)

func (o Outcome) String() string {
	switch o {
	case Accepted:
		return "accepted"
	case Duplicate:
		return "duplicate"
	case Skipped:
		return "skipped"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Report counts item outcomes for one delivery.
type Report struct {
	Accepted   int
	Duplicates int
	Skipped    int
	Failed     int
}

func (r *Report) add(o Outcome) {
	switch o {
	case Accepted:
		r.Accepted++
	case Duplicate:
		r.Duplicates++
	case Skipped:
		r.Skipped++
	case Failed:
		r.Failed++
	}
}

// Total returns the number of items processed.
func (r Report) Total() int {
	return r.Accepted + r.Duplicates + r.Skipped + r.Failed
}
