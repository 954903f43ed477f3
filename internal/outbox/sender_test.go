package outbox

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/matheus3301/wpphub/internal/apperr"
	"github.com/matheus3301/wpphub/internal/bus"
	"github.com/matheus3301/wpphub/internal/cloudapi"
	"github.com/matheus3301/wpphub/internal/status"
	"github.com/matheus3301/wpphub/internal/store"
	"github.com/matheus3301/wpphub/internal/tenant"
	"go.uber.org/zap"
)

// mockProvider records calls and returns configurable results.
type mockProvider struct {
	calls []sendCall
	err   error
}

type sendCall struct {
	Creds cloudapi.Credentials
	Req   *cloudapi.SendRequest
}

func (m *mockProvider) Send(_ context.Context, creds cloudapi.Credentials, req *cloudapi.SendRequest) (*cloudapi.SendResponse, error) {
	m.calls = append(m.calls, sendCall{Creds: creds, Req: req})
	if m.err != nil {
		return nil, m.err
	}
	resp := &cloudapi.SendResponse{MessagingProduct: "whatsapp"}
	resp.Messages = append(resp.Messages, struct {
		ID            string `json:"id"`
		MessageStatus string `json:"message_status,omitempty"`
	}{ID: "wamid.out" + string(rune('0'+len(m.calls)))})
	return resp, nil
}

type failingStore struct{}

func (failingStore) InsertMessage(context.Context, *store.Message) (bool, error) {
	return false, errors.New("disk full")
}

func testDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func linkTenant(t *testing.T, db *store.DB, tenantID string) {
	t.Helper()
	err := db.LinkChannel(context.Background(), &store.ChannelConfig{
		TenantID:         tenantID,
		PhoneNumberID:    "PN_" + tenantID,
		AccessToken:      "tok-" + tenantID,
		TemplateLanguage: "pt_BR",
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestSendText(t *testing.T) {
	db := testDB(t)
	linkTenant(t, db, "t1")
	b := bus.New()
	ch, unsub := b.Subscribe(bus.Filter{Namespace: bus.KindMessageOutbound}, 10)
	defer unsub()

	prov := &mockProvider{}
	logger, _ := zap.NewDevelopment()
	s := NewSender(tenant.NewResolver(db), db, prov, b, logger)

	res, err := s.Send(context.Background(), Request{TenantID: "t1", To: "+100", Message: "hello"})
	if err != nil {
		t.Fatal(err)
	}
	if res.MessageID != "wamid.out1" {
		t.Errorf("message id = %q", res.MessageID)
	}
	if len(prov.calls) != 1 {
		t.Fatalf("got %d provider calls, want 1", len(prov.calls))
	}
	call := prov.calls[0]
	if call.Creds.PhoneNumberID != "PN_t1" || call.Creds.AccessToken != "tok-t1" {
		t.Errorf("credentials = %+v", call.Creds)
	}
	if call.Req.Type != "text" || call.Req.Text.Body != "hello" || call.Req.To != "+100" {
		t.Errorf("request = %+v", call.Req)
	}

	m, err := db.GetMessage(context.Background(), "t1", "wamid.out1")
	if err != nil {
		t.Fatal(err)
	}
	if m.Direction != store.Outbound || m.Status != status.Sent || m.Kind != store.KindText || m.Counterparty != "+100" {
		t.Errorf("stored message = %+v", m)
	}

	select {
	case evt := <-ch:
		if evt.TenantID != "t1" {
			t.Errorf("event tenant = %q", evt.TenantID)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message.outbound event")
	}
}

func TestSendTemplateKeepsVariableOrder(t *testing.T) {
	db := testDB(t)
	linkTenant(t, db, "t1")
	prov := &mockProvider{}
	s := NewSender(tenant.NewResolver(db), db, prov, nil, nil)

	_, err := s.Send(context.Background(), Request{
		TenantID:          "t1",
		To:                "+100",
		Message:           "Hi Ana, see you at 3pm",
		Type:              store.KindTemplate,
		TemplateName:      "appointment_reminder",
		TemplateVariables: []string{"Ana", "3pm"},
	})
	if err != nil {
		t.Fatal(err)
	}
	req := prov.calls[0].Req
	if req.Type != "template" || req.Template.Name != "appointment_reminder" {
		t.Fatalf("request = %+v", req)
	}
	if req.Template.Language.Code != "pt_BR" {
		t.Errorf("language = %q, want tenant language pt_BR", req.Template.Language.Code)
	}
	if got := req.TemplateParams(); !slices.Equal(got, []string{"Ana", "3pm"}) {
		t.Errorf("params = %v, want [Ana 3pm]", got)
	}

	m, err := db.GetMessage(context.Background(), "t1", "wamid.out1")
	if err != nil {
		t.Fatal(err)
	}
	if m.Kind != store.KindTemplate || m.TemplateName != "appointment_reminder" {
		t.Errorf("stored message = %+v", m)
	}
}

func TestSendDisconnectedTenant(t *testing.T) {
	db := testDB(t)
	linkTenant(t, db, "t1")
	if err := db.SetChannelState(context.Background(), "t1", store.ChannelWhatsApp, store.Disconnected); err != nil {
		t.Fatal(err)
	}
	prov := &mockProvider{}
	s := NewSender(tenant.NewResolver(db), db, prov, nil, nil)

	_, err := s.Send(context.Background(), Request{TenantID: "t1", To: "+100", Message: "hello"})
	if !apperr.Is(err, apperr.NotConfigured) {
		t.Fatalf("error = %v, want NotConfigured", err)
	}
	if len(prov.calls) != 0 {
		t.Errorf("got %d provider calls, want 0", len(prov.calls))
	}
	msgs, err := db.ListMessages(context.Background(), "t1", "", 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 0 {
		t.Errorf("got %d stored messages, want 0", len(msgs))
	}
}

func TestSendUnknownTenant(t *testing.T) {
	db := testDB(t)
	s := NewSender(tenant.NewResolver(db), db, &mockProvider{}, nil, nil)
	_, err := s.Send(context.Background(), Request{TenantID: "nobody", To: "+100", Message: "hello"})
	if !apperr.Is(err, apperr.NotConfigured) {
		t.Fatalf("error = %v, want NotConfigured", err)
	}
}

func TestSendInvalidInput(t *testing.T) {
	db := testDB(t)
	linkTenant(t, db, "t1")
	prov := &mockProvider{}
	s := NewSender(tenant.NewResolver(db), db, prov, nil, nil)

	cases := []Request{
		{TenantID: "t1", To: "", Message: "hello"},
		{TenantID: "t1", To: "+100", Message: "  "},
		{TenantID: "t1", To: "+100", Message: "hi", Type: store.KindTemplate},
		{TenantID: "t1", To: "+100", Message: "hi", Type: "image"},
	}
	for _, req := range cases {
		if _, err := s.Send(context.Background(), req); !apperr.Is(err, apperr.InvalidInput) {
			t.Errorf("Send(%+v) error = %v, want InvalidInput", req, err)
		}
	}
	if len(prov.calls) != 0 {
		t.Errorf("got %d provider calls, want 0", len(prov.calls))
	}
}

func TestSendProviderRejected(t *testing.T) {
	db := testDB(t)
	linkTenant(t, db, "t1")
	body := `{"error":{"message":"(#131030) Recipient phone number not in allowed list","code":131030}}`
	prov := &mockProvider{err: &cloudapi.RejectedError{StatusCode: 400, Body: body}}
	s := NewSender(tenant.NewResolver(db), db, prov, nil, nil)

	_, err := s.Send(context.Background(), Request{TenantID: "t1", To: "+100", Message: "hello"})
	e := apperr.As(err)
	if e == nil || e.Kind != apperr.ProviderRejected {
		t.Fatalf("error = %v, want ProviderRejected", err)
	}
	if e.ProviderBody != body {
		t.Errorf("provider body = %q", e.ProviderBody)
	}
	msgs, _ := db.ListMessages(context.Background(), "t1", "", 0, 10)
	if len(msgs) != 0 {
		t.Errorf("got %d stored messages, want 0", len(msgs))
	}
}

func TestSendTimeoutIsProviderRejected(t *testing.T) {
	db := testDB(t)
	linkTenant(t, db, "t1")
	prov := &mockProvider{err: context.DeadlineExceeded}
	s := NewSender(tenant.NewResolver(db), db, prov, nil, nil)

	_, err := s.Send(context.Background(), Request{TenantID: "t1", To: "+100", Message: "hello"})
	if !apperr.Is(err, apperr.ProviderRejected) {
		t.Fatalf("error = %v, want ProviderRejected", err)
	}
	if len(prov.calls) != 1 {
		t.Errorf("got %d provider calls, want 1 (no retry)", len(prov.calls))
	}
}

func TestSendPersistenceFailedKeepsMessageID(t *testing.T) {
	db := testDB(t)
	linkTenant(t, db, "t1")
	s := NewSender(tenant.NewResolver(db), failingStore{}, &mockProvider{}, nil, nil)

	res, err := s.Send(context.Background(), Request{TenantID: "t1", To: "+100", Message: "hello"})
	e := apperr.As(err)
	if e == nil || e.Kind != apperr.PersistenceFailed {
		t.Fatalf("error = %v, want PersistenceFailed", err)
	}
	if res == nil || res.MessageID != "wamid.out1" {
		t.Fatalf("result = %+v, want provider message id", res)
	}
	if e.MessageID != "wamid.out1" {
		t.Errorf("error message id = %q", e.MessageID)
	}
}
