// Package outbox sends outbound messages through the provider and records
// them in the message store.
package outbox

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/matheus3301/wpphub/internal/apperr"
	"github.com/matheus3301/wpphub/internal/bus"
	"github.com/matheus3301/wpphub/internal/cloudapi"
	"github.com/matheus3301/wpphub/internal/status"
	"github.com/matheus3301/wpphub/internal/store"
	"go.uber.org/zap"
)

// Provider delivers a message to the messaging provider.
type Provider interface {
	Send(ctx context.Context, creds cloudapi.Credentials, req *cloudapi.SendRequest) (*cloudapi.SendResponse, error)
}

// ConfigResolver returns a tenant's connected channel config.
type ConfigResolver interface {
	ResolveTenant(ctx context.Context, tenantID string) (*store.ChannelConfig, error)
}

// MessageStore persists outbound messages.
type MessageStore interface {
	InsertMessage(ctx context.Context, m *store.Message) (bool, error)
}

// Request is a send request on behalf of a tenant.
type Request struct {
	TenantID          string
	To                string
	Message           string
	Type              store.Kind
	TemplateName      string
	TemplateVariables []string // positional, in caller order
}

// Result describes a message accepted by the provider.
type Result struct {
	MessageID string
	Response  *cloudapi.SendResponse
}

// Sender is the single outbound path used by the send endpoint and by
// auto-replies.
type Sender struct {
	configs  ConfigResolver
	store    MessageStore
	provider Provider
	bus      *bus.Bus
	logger   *zap.Logger
}

// NewSender creates a new outbound sender.
func NewSender(configs ConfigResolver, st MessageStore, provider Provider, b *bus.Bus, logger *zap.Logger) *Sender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sender{
		configs:  configs,
		store:    st,
		provider: provider,
		bus:      b,
		logger:   logger,
	}
}

// Send validates req, delivers it and records the outbound row with status
// sent. A PersistenceFailed error is returned together with a non-nil
// Result: the provider already accepted the message.
func (s *Sender) Send(ctx context.Context, req Request) (*Result, error) {
	const op = "outbox.Send"

	if req.Type == "" {
		req.Type = store.KindText
	}
	content, err := validate(req)
	if err != nil {
		return nil, err
	}

	cfg, err := s.configs.ResolveTenant(ctx, req.TenantID)
	if err != nil {
		return nil, err
	}
	if tpl, ok := content.(cloudapi.Template); ok {
		tpl.Language = cfg.TemplateLanguage
		content = tpl
	}

	payload, err := cloudapi.BuildSendRequest(req.To, content)
	if err != nil {
		return nil, apperr.Wrap(apperr.InvalidInput, op, err)
	}

	resp, err := s.provider.Send(ctx, cloudapi.Credentials{
		PhoneNumberID: cfg.PhoneNumberID,
		AccessToken:   cfg.AccessToken,
	}, payload)
	if err != nil {
		e := apperr.Wrap(apperr.ProviderRejected, op, err)
		var rejected *cloudapi.RejectedError
		if errors.As(err, &rejected) {
			e.ProviderBody = rejected.Body
		}
		s.logger.Warn("provider rejected send",
			zap.String("tenant_id", req.TenantID),
			zap.String("type", string(req.Type)),
			zap.Error(err))
		return nil, e
	}

	result := &Result{MessageID: resp.MessageID(), Response: resp}
	now := time.Now().UnixMilli()
	msg := &store.Message{
		TenantID:     req.TenantID,
		ExternalID:   result.MessageID,
		Counterparty: req.To,
		Direction:    store.Outbound,
		Body:         req.Message,
		Kind:         req.Type,
		TemplateName: req.TemplateName,
		Status:       status.Sent,
		Timestamp:    now,
	}
	if _, err := s.store.InsertMessage(ctx, msg); err != nil {
		s.logger.Error("failed to persist outbound message",
			zap.String("tenant_id", req.TenantID),
			zap.String("external_id", result.MessageID),
			zap.Error(err))
		e := apperr.Wrap(apperr.PersistenceFailed, op, err)
		e.MessageID = result.MessageID
		return result, e
	}

	s.logger.Info("message sent",
		zap.String("tenant_id", req.TenantID),
		zap.String("external_id", result.MessageID),
		zap.String("type", string(req.Type)))
	s.bus.Publish(bus.Event{
		Kind:      bus.KindMessageOutbound,
		TenantID:  req.TenantID,
		Timestamp: time.Now(),
		Payload:   msg,
	})
	return result, nil
}

func validate(req Request) (cloudapi.Content, error) {
	const op = "outbox.validate"
	if strings.TrimSpace(req.TenantID) == "" {
		return nil, apperr.New(apperr.Unauthorized, op, "missing tenant")
	}
	if strings.TrimSpace(req.To) == "" {
		return nil, apperr.New(apperr.InvalidInput, op, "destination is required")
	}
	if strings.TrimSpace(req.Message) == "" {
		return nil, apperr.New(apperr.InvalidInput, op, "message is required")
	}
	switch req.Type {
	case store.KindText:
		return cloudapi.Text{Body: req.Message}, nil
	case store.KindTemplate:
		if strings.TrimSpace(req.TemplateName) == "" {
			return nil, apperr.New(apperr.InvalidInput, op, "templateName is required for template messages")
		}
		return cloudapi.Template{Name: req.TemplateName, Params: req.TemplateVariables}, nil
	default:
		return nil, apperr.New(apperr.InvalidInput, op, "unsupported message type "+string(req.Type))
	}
}
