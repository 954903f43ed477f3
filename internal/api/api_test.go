package api

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/matheus3301/wpphub/internal/auth"
	"github.com/matheus3301/wpphub/internal/bus"
	"github.com/matheus3301/wpphub/internal/cloudapi"
	"github.com/matheus3301/wpphub/internal/ingest"
	"github.com/matheus3301/wpphub/internal/outbox"
	"github.com/matheus3301/wpphub/internal/store"
	"github.com/matheus3301/wpphub/internal/tenant"
)

const (
	testJWTSecret   = "jwt-secret"
	testVerifyToken = "verify-me"
)

type fakeProvider struct {
	requests []*cloudapi.SendRequest
	err      error
}

func (f *fakeProvider) Send(_ context.Context, _ cloudapi.Credentials, req *cloudapi.SendRequest) (*cloudapi.SendResponse, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	resp := &cloudapi.SendResponse{MessagingProduct: "whatsapp"}
	resp.Messages = append(resp.Messages, struct {
		ID            string `json:"id"`
		MessageStatus string `json:"message_status,omitempty"`
	}{ID: "wamid.sent"})
	return resp, nil
}

type recordingDispatcher struct {
	got []*cloudapi.Notification
}

func (r *recordingDispatcher) Dispatch(_ context.Context, n *cloudapi.Notification) ingest.Report {
	r.got = append(r.got, n)
	return ingest.Report{}
}

type testEnv struct {
	e        *echo.Echo
	db       *store.DB
	bus      *bus.Bus
	provider *fakeProvider
}

func newTestEnv(t *testing.T, dispatcher Dispatcher, webhook WebhookConfig) *testEnv {
	t.Helper()
	db, err := store.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	_, err = db.Migrate()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	logger := zap.NewNop()
	b := bus.New()
	resolver := tenant.NewResolver(db)
	prov := &fakeProvider{}
	sender := outbox.NewSender(resolver, db, prov, b, logger)

	e := echo.New()
	e.Validator = NewValidator()
	e.HTTPErrorHandler = ErrorHandler(logger)
	e.Use(auth.JWTMiddleware(testJWTSecret, func(c echo.Context) bool {
		p := c.Request().URL.Path
		return p == "/webhook" || p == "/healthz"
	}))
	NewWebhookHandler(dispatcher, webhook, logger).Register(e)
	NewMessagesHandler(sender, db, resolver, b, logger).Register(e)
	NewHealthHandler(db).Register(e)

	return &testEnv{e: e, db: db, bus: b, provider: prov}
}

func (env *testEnv) link(t *testing.T, tenantID, phoneNumberID string) {
	t.Helper()
	require.NoError(t, env.db.LinkChannel(context.Background(), &store.ChannelConfig{
		TenantID: tenantID, PhoneNumberID: phoneNumberID, AccessToken: "tok",
	}))
}

func bearer(t *testing.T, tenantID string) string {
	t.Helper()
	token, _, err := auth.GenerateToken(tenantID, testJWTSecret, time.Hour)
	require.NoError(t, err)
	return "Bearer " + token
}
