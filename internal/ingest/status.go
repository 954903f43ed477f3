package ingest

import (
	"context"
	"time"

	"github.com/matheus3301/wpphub/internal/apperr"
	"github.com/matheus3301/wpphub/internal/bus"
	"github.com/matheus3301/wpphub/internal/cloudapi"
	"github.com/matheus3301/wpphub/internal/status"
	"github.com/matheus3301/wpphub/internal/store"
	"go.uber.org/zap"
)

// StatusUpdate is the payload of a message.status event.
type StatusUpdate struct {
	ExternalID   string        `json:"external_id"`
	Status       status.Status `json:"status"`
	ErrorMessage string        `json:"error_message,omitempty"`
}

// StatusProcessor moves outbound messages forward through delivery states.
type StatusProcessor struct {
	configs ConfigResolver
	store   MessageStore
	bus     *bus.Bus
	logger  *zap.Logger
}

// NewStatusProcessor creates a new status processor.
func NewStatusProcessor(configs ConfigResolver, st MessageStore, b *bus.Bus, logger *zap.Logger) *StatusProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatusProcessor{configs: configs, store: st, bus: b, logger: logger}
}

// Process applies one status update received on routingKey.
func (p *StatusProcessor) Process(ctx context.Context, routingKey string, su cloudapi.StatusUpdate) Outcome {
	log := p.logger.With(
		zap.String("routing_key", routingKey),
		zap.String("external_id", su.ID),
		zap.String("status", su.Status))

	to, err := status.Parse(su.Status)
	if err != nil || to == status.Received {
		log.Warn("skipping unsupported status")
		return Skipped
	}

	tenants, err := p.configs.TenantsForRoutingKey(ctx, routingKey)
	if apperr.Is(err, apperr.UnknownTenant) {
		log.Info("skipping status for unknown tenant")
		return Skipped
	}
	if err != nil {
		log.Error("failed to resolve tenant", zap.Error(err))
		return Failed
	}

	var errMsg string
	if to == status.Failed {
		errMsg = su.FirstErrorTitle()
	}

	// The message may belong to a tenant that has since disconnected or
	// handed the number to another tenant.
	outcome, tenantID := store.StatusMissing, ""
	for _, id := range tenants {
		outcome, err = p.store.AdvanceStatus(ctx, id, su.ID, to, errMsg)
		if err != nil {
			log.Error("failed to update status", zap.String("tenant_id", id), zap.Error(err))
			return Failed
		}
		if outcome != store.StatusMissing {
			tenantID = id
			break
		}
	}
	log = log.With(zap.String("tenant_id", tenantID))

	switch outcome {
	case store.StatusMissing:
		log.Warn("status for unknown message dropped")
		return Skipped
	case store.StatusStale:
		log.Debug("stale status ignored")
		return Duplicate
	}

	p.bus.Publish(bus.Event{
		Kind:      bus.KindMessageStatus,
		TenantID:  tenantID,
		Timestamp: time.Now(),
		Payload:   StatusUpdate{ExternalID: su.ID, Status: to, ErrorMessage: errMsg},
	})
	return Accepted
}
