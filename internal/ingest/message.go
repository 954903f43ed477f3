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

// MessageProcessor stores inbound messages and detects first contact.
type MessageProcessor struct {
	configs   ConfigResolver
	store     MessageStore
	autoReply AutoReplier
	bus       *bus.Bus
	logger    *zap.Logger
	now       func() time.Time
}

// NewMessageProcessor creates a new message processor. autoReply may be nil.
func NewMessageProcessor(configs ConfigResolver, st MessageStore, autoReply AutoReplier, b *bus.Bus, logger *zap.Logger) *MessageProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MessageProcessor{
		configs:   configs,
		store:     st,
		autoReply: autoReply,
		bus:       b,
		logger:    logger,
		now:       time.Now,
	}
}

// Process handles one inbound message received on routingKey.
func (p *MessageProcessor) Process(ctx context.Context, routingKey string, in cloudapi.InboundMessage) Outcome {
	log := p.logger.With(zap.String("routing_key", routingKey), zap.String("external_id", in.ID))

	cfg, err := p.configs.ResolveRoutingKey(ctx, routingKey)
	if apperr.Is(err, apperr.UnknownTenant) {
		log.Info("skipping message for unknown tenant")
		return Skipped
	}
	if err != nil {
		log.Error("failed to resolve tenant", zap.Error(err))
		return Failed
	}
	log = log.With(zap.String("tenant_id", cfg.TenantID))

	if in.ID == "" || in.From == "" {
		log.Warn("skipping message without id or sender")
		return Skipped
	}

	msg := &store.Message{
		TenantID:     cfg.TenantID,
		ExternalID:   in.ID,
		Counterparty: in.From,
		Direction:    store.Inbound,
		Body:         in.BodyText(),
		Kind:         store.KindText,
		Status:       status.Received,
		Timestamp:    cloudapi.UnixMillis(in.Timestamp, p.now()),
	}
	res, err := p.store.IngestInbound(ctx, msg)
	if err != nil {
		log.Error("failed to store inbound message", zap.Error(err))
		return Failed
	}
	if !res.Inserted {
		log.Debug("duplicate inbound message")
		return Duplicate
	}

	log.Info("inbound message stored", zap.String("type", in.Type), zap.Int64("inbound_count", res.InboundCount))
	p.bus.Publish(bus.Event{
		Kind:      bus.KindMessageInbound,
		TenantID:  cfg.TenantID,
		Timestamp: p.now(),
		Payload:   msg,
	})

	if cfg.AutoReplyEnabled && res.InboundCount == 1 && p.autoReply != nil {
		p.autoReply.Trigger(ctx, cfg.TenantID, in.From, cfg.WelcomeMessage)
	}
	return Accepted
}
