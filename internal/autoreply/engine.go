// Package autoreply sends the tenant's welcome message to first-time contacts.
package autoreply

import (
	"context"
	"strings"

	"github.com/matheus3301/wpphub/internal/outbox"
	"github.com/matheus3301/wpphub/internal/store"
	"go.uber.org/zap"
)

// Sender is the outbound path used for welcome messages.
type Sender interface {
	Send(ctx context.Context, req outbox.Request) (*outbox.Result, error)
}

// Engine triggers welcome messages. Failures are logged, never returned to
// the ingestion path.
type Engine struct {
	sender Sender
	logger *zap.Logger
}

// NewEngine creates a new auto-reply engine.
func NewEngine(sender Sender, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{sender: sender, logger: logger}
}

// Trigger sends welcome to counterparty as the tenant. The send runs
// synchronously but is detached from ctx cancellation so an acknowledged
// webhook request cannot abort it halfway.
func (e *Engine) Trigger(ctx context.Context, tenantID, counterparty, welcome string) {
	log := e.logger.With(zap.String("tenant_id", tenantID), zap.String("counterparty", counterparty))
	if strings.TrimSpace(welcome) == "" {
		log.Debug("auto-reply enabled without welcome text")
		return
	}

	res, err := e.sender.Send(context.WithoutCancel(ctx), outbox.Request{
		TenantID: tenantID,
		To:       counterparty,
		Message:  welcome,
		Type:     store.KindText,
	})
	if err != nil {
		log.Warn("auto-reply failed", zap.Error(err))
		return
	}
	log.Info("auto-reply sent", zap.String("external_id", res.MessageID))
}
