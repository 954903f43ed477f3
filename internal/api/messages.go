package api

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/matheus3301/wpphub/internal/apperr"
	"github.com/matheus3301/wpphub/internal/auth"
	"github.com/matheus3301/wpphub/internal/bus"
	"github.com/matheus3301/wpphub/internal/cloudapi"
	"github.com/matheus3301/wpphub/internal/outbox"
	"github.com/matheus3301/wpphub/internal/store"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
	sseKeepAlive    = 25 * time.Second
)

// Sender sends an outbound message for a tenant.
type Sender interface {
	Send(ctx context.Context, req outbox.Request) (*outbox.Result, error)
}

// History lists stored messages.
type History interface {
	ListMessages(ctx context.Context, tenantID, counterparty string, beforeTs int64, limit int) ([]store.Message, error)
}

// ChannelLookup returns a tenant's channel config in any state.
type ChannelLookup interface {
	Lookup(ctx context.Context, tenantID string) (*store.ChannelConfig, error)
}

// SendRequest is the body of POST /api/messages/send.
type SendRequest struct {
	To                string            `json:"to" validate:"required"`
	Message           string            `json:"message" validate:"required"`
	Type              string            `json:"type" validate:"omitempty,oneof=text template"`
	TemplateName      string            `json:"templateName" validate:"required_if=Type template"`
	TemplateVariables TemplateVariables `json:"templateVariables"`
}

// SendResponse is returned by a successful send.
type SendResponse struct {
	Success   bool                   `json:"success"`
	MessageID string                 `json:"messageId"`
	Result    *cloudapi.SendResponse `json:"result"`
}

// MessageView is the API shape of a stored message.
type MessageView struct {
	ID           string `json:"id"`
	Counterparty string `json:"counterparty"`
	Direction    string `json:"direction"`
	Kind         string `json:"kind"`
	TemplateName string `json:"templateName,omitempty"`
	Body         string `json:"body"`
	Status       string `json:"status"`
	ErrorMessage string `json:"errorMessage,omitempty"`
	Timestamp    int64  `json:"timestamp"`
}

// ChannelView is the API shape of a channel config, without credentials.
type ChannelView struct {
	Channel          string `json:"channel"`
	PhoneNumberID    string `json:"phoneNumberId"`
	State            string `json:"state"`
	AutoReplyEnabled bool   `json:"autoReplyEnabled"`
	WelcomeMessage   string `json:"welcomeMessage"`
	TemplateLanguage string `json:"templateLanguage"`
}

// MessagesHandler serves the tenant-facing messaging endpoints.
type MessagesHandler struct {
	sender   Sender
	history  History
	channels ChannelLookup
	bus      *bus.Bus
	logger   *zap.Logger
}

// NewMessagesHandler creates a new messages handler.
func NewMessagesHandler(sender Sender, history History, channels ChannelLookup, b *bus.Bus, logger *zap.Logger) *MessagesHandler {
	return &MessagesHandler{
		sender:   sender,
		history:  history,
		channels: channels,
		bus:      b,
		logger:   logger.With(zap.String("handler", "messages")),
	}
}

func (h *MessagesHandler) Register(e *echo.Echo) {
	g := e.Group("/api")
	g.POST("/messages/send", h.Send)
	g.GET("/messages", h.List)
	g.GET("/messages/events", h.Events)
	g.GET("/channel", h.Channel)
}

// Send delivers a text or template message as the caller's tenant.
func (h *MessagesHandler) Send(c echo.Context) error {
	tenantID, err := auth.TenantIDFromContext(c)
	if err != nil {
		return err
	}

	var req SendRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Wrap(apperr.InvalidInput, "bind", err)
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	kind := store.KindText
	if req.Type == string(store.KindTemplate) {
		kind = store.KindTemplate
	}
	res, err := h.sender.Send(c.Request().Context(), outbox.Request{
		TenantID:          tenantID,
		To:                req.To,
		Message:           req.Message,
		Type:              kind,
		TemplateName:      req.TemplateName,
		TemplateVariables: req.TemplateVariables,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, SendResponse{Success: true, MessageID: res.MessageID, Result: res.Response})
}

// List returns the caller's messages, newest first.
func (h *MessagesHandler) List(c echo.Context) error {
	tenantID, err := auth.TenantIDFromContext(c)
	if err != nil {
		return err
	}

	before, err := int64Param(c, "before")
	if err != nil {
		return err
	}
	limit, err := int64Param(c, "limit")
	if err != nil {
		return err
	}
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	msgs, err := h.history.ListMessages(c.Request().Context(), tenantID, c.QueryParam("counterparty"), before, int(limit))
	if err != nil {
		return apperr.Wrap(apperr.PersistenceFailed, "list messages", err)
	}
	views := make([]MessageView, 0, len(msgs))
	for _, m := range msgs {
		views = append(views, toMessageView(&m))
	}
	return c.JSON(http.StatusOK, map[string]any{"messages": views})
}

// Channel returns the caller's channel state.
func (h *MessagesHandler) Channel(c echo.Context) error {
	tenantID, err := auth.TenantIDFromContext(c)
	if err != nil {
		return err
	}
	cfg, err := h.channels.Lookup(c.Request().Context(), tenantID)
	if err != nil {
		return err
	}
	if cfg == nil {
		return apperr.New(apperr.NotConfigured, "channel", "channel not configured")
	}
	return c.JSON(http.StatusOK, ChannelView{
		Channel:          cfg.Channel,
		PhoneNumberID:    cfg.PhoneNumberID,
		State:            string(cfg.State),
		AutoReplyEnabled: cfg.AutoReplyEnabled,
		WelcomeMessage:   cfg.WelcomeMessage,
		TemplateLanguage: cfg.TemplateLanguage,
	})
}

// Events streams the caller's message events as server-sent events until
// the client disconnects.
func (h *MessagesHandler) Events(c echo.Context) error {
	tenantID, err := auth.TenantIDFromContext(c)
	if err != nil {
		return err
	}

	flusher, ok := c.Response().Writer.(http.Flusher)
	if !ok {
		return echo.NewHTTPError(http.StatusInternalServerError, "streaming not supported")
	}

	ch, unsub := h.bus.Subscribe(bus.Filter{Namespace: "message.", TenantID: tenantID}, 64)
	defer unsub()

	c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
	c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
	c.Response().Header().Set(echo.HeaderConnection, "keep-alive")
	c.Response().WriteHeader(http.StatusOK)
	flusher.Flush()

	writer := bufio.NewWriter(c.Response().Writer)
	ticker := time.NewTicker(sseKeepAlive)
	defer ticker.Stop()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := writer.WriteString(": ping\n\n"); err != nil {
				return nil
			}
		case evt := <-ch:
			data, err := json.Marshal(eventPayload(evt))
			if err != nil {
				h.logger.Warn("failed to encode event", zap.String("kind", evt.Kind), zap.Error(err))
				continue
			}
			if _, err := fmt.Fprintf(writer, "id: %s\nevent: %s\ndata: %s\n\n", uuid.NewString(), evt.Kind, data); err != nil {
				return nil
			}
		}
		if err := writer.Flush(); err != nil {
			return nil
		}
		flusher.Flush()
	}
}

func eventPayload(evt bus.Event) any {
	if m, ok := evt.Payload.(*store.Message); ok {
		return toMessageView(m)
	}
	return evt.Payload
}

func toMessageView(m *store.Message) MessageView {
	return MessageView{
		ID:           m.ExternalID,
		Counterparty: m.Counterparty,
		Direction:    string(m.Direction),
		Kind:         string(m.Kind),
		TemplateName: m.TemplateName,
		Body:         m.Body,
		Status:       string(m.Status),
		ErrorMessage: m.ErrorMessage,
		Timestamp:    m.Timestamp,
	}
}

func int64Param(c echo.Context, name string) (int64, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, apperr.New(apperr.InvalidInput, "query", name+" must be an integer")
	}
	return v, nil
}
