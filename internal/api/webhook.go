// Package api exposes the provider webhook and the tenant-facing messaging
// endpoints over HTTP.
package api

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/matheus3301/wpphub/internal/cloudapi"
	"github.com/matheus3301/wpphub/internal/ingest"
)

const (
	// SignatureHeader carries the provider's HMAC-SHA256 of the raw body.
	SignatureHeader = "X-Hub-Signature-256"
	signaturePrefix = "sha256="
	modeSubscribe   = "subscribe"
)

var (
	ErrMissingSignature  = errors.New("missing signature header")
	ErrInvalidSignature  = errors.New("invalid signature format")
	ErrSignatureMismatch = errors.New("signature mismatch")
)

// Dispatcher applies a parsed webhook delivery.
type Dispatcher interface {
	Dispatch(ctx context.Context, n *cloudapi.Notification) ingest.Report
}

// WebhookConfig holds the deployment-wide webhook settings.
type WebhookConfig struct {
	VerifyToken  string
	AppSecret    string
	MaxBodyBytes int64
}

// WebhookHandler serves the provider's verification handshake and event
// deliveries.
type WebhookHandler struct {
	dispatcher Dispatcher
	cfg        WebhookConfig
	logger     *zap.Logger
}

// NewWebhookHandler creates a new webhook handler.
func NewWebhookHandler(dispatcher Dispatcher, cfg WebhookConfig, logger *zap.Logger) *WebhookHandler {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	return &WebhookHandler{dispatcher: dispatcher, cfg: cfg, logger: logger.With(zap.String("handler", "webhook"))}
}

func (h *WebhookHandler) Register(e *echo.Echo) {
	e.GET("/webhook", h.Verify)
	e.POST("/webhook", h.Receive)
}

// Verify answers the subscription handshake. It has no side effects.
func (h *WebhookHandler) Verify(c echo.Context) error {
	mode := queryParam(c, "mode")
	token := queryParam(c, "verify_token")
	challenge := queryParam(c, "challenge")

	if !VerifyToken(h.cfg.VerifyToken, mode, token) {
		h.logger.Warn("webhook verification rejected", zap.String("mode", mode))
		return c.NoContent(http.StatusForbidden)
	}
	return c.String(http.StatusOK, challenge)
}

// VerifyToken reports whether a handshake with the given mode and token
// matches the configured token. An empty configured token never matches.
func VerifyToken(configured, mode, token string) bool {
	if configured == "" || mode != modeSubscribe {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(configured), []byte(token)) == 1
}

// Receive accepts a delivery. Item-level outcomes never change the
// acknowledgment; only an unreadable or unparseable body does.
func (h *WebhookHandler) Receive(c echo.Context) error {
	req := c.Request()
	body, err := io.ReadAll(io.LimitReader(req.Body, h.cfg.MaxBodyBytes+1))
	if err != nil {
		h.logger.Error("failed to read webhook body", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to read body")
	}
	if int64(len(body)) > h.cfg.MaxBodyBytes {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "body too large")
	}

	if h.cfg.AppSecret != "" {
		if err := VerifySignature(h.cfg.AppSecret, req.Header.Get(SignatureHeader), body); err != nil {
			h.logger.Warn("webhook signature rejected", zap.Error(err))
			return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
		}
	}

	n, err := cloudapi.ParseNotification(body)
	if err != nil {
		h.logger.Warn("unparseable webhook body", zap.Error(err), zap.Int("bytes", len(body)))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}

	h.dispatcher.Dispatch(req.Context(), n)
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}

// VerifySignature checks a "sha256=<hex>" HMAC of body keyed by secret.
func VerifySignature(secret, header string, body []byte) error {
	if header == "" {
		return ErrMissingSignature
	}
	if !strings.HasPrefix(header, signaturePrefix) {
		return ErrInvalidSignature
	}
	got, err := hex.DecodeString(strings.TrimPrefix(header, signaturePrefix))
	if err != nil {
		return ErrInvalidSignature
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return ErrSignatureMismatch
	}
	return nil
}

// Sign returns the signature header value for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// queryParam reads name or its provider-prefixed form hub.<name>.
func queryParam(c echo.Context, name string) string {
	if v := c.QueryParam(name); v != "" {
		return v
	}
	return c.QueryParam("hub." + name)
}
