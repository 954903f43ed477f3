package ingest

import (
	"context"

	"github.com/matheus3301/wpphub/internal/cloudapi"
	"go.uber.org/zap"
)

// Dispatcher fans a webhook delivery out to the message and status
// processors. Items are independent: one failure never stops the others.
type Dispatcher struct {
	messages *MessageProcessor
	statuses *StatusProcessor
	logger   *zap.Logger
}

// NewDispatcher creates a new dispatcher.
func NewDispatcher(messages *MessageProcessor, statuses *StatusProcessor, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{messages: messages, statuses: statuses, logger: logger}
}

// Dispatch processes every message and status item of n.
func (d *Dispatcher) Dispatch(ctx context.Context, n *cloudapi.Notification) Report {
	var report Report
	if n.Object != "" && n.Object != cloudapi.ObjectWhatsApp {
		d.logger.Info("ignoring notification for unsupported object", zap.String("object", n.Object))
		return report
	}

	for _, entry := range n.Entry {
		for _, change := range entry.Changes {
			if change.Field != cloudapi.FieldMessages {
				d.logger.Debug("ignoring change", zap.String("field", change.Field), zap.String("entry_id", entry.ID))
				continue
			}
			routingKey := change.Value.Metadata.PhoneNumberID
			for _, msg := range change.Value.Messages {
				report.add(d.messages.Process(ctx, routingKey, msg))
			}
			for _, st := range change.Value.Statuses {
				report.add(d.statuses.Process(ctx, routingKey, st))
			}
		}
	}

	if report.Failed > 0 {
		d.logger.Warn("delivery processed with failures",
			zap.Int("accepted", report.Accepted),
			zap.Int("duplicates", report.Duplicates),
			zap.Int("skipped", report.Skipped),
			zap.Int("failed", report.Failed))
	} else if report.Total() > 0 {
		d.logger.Debug("delivery processed",
			zap.Int("accepted", report.Accepted),
			zap.Int("duplicates", report.Duplicates),
			zap.Int("skipped", report.Skipped))
	}
	return report
}
