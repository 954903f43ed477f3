package ingest

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/matheus3301/wpphub/internal/bus"
	"github.com/matheus3301/wpphub/internal/cloudapi"
	"github.com/matheus3301/wpphub/internal/status"
	"github.com/matheus3301/wpphub/internal/store"
	"github.com/matheus3301/wpphub/internal/tenant"
	"go.uber.org/zap"
)

type replyCall struct {
	TenantID, To, Text string
}

type mockReplier struct {
	calls []replyCall
}

func (m *mockReplier) Trigger(_ context.Context, tenantID, counterparty, welcome string) {
	m.calls = append(m.calls, replyCall{TenantID: tenantID, To: counterparty, Text: welcome})
}

// flakyStore fails IngestInbound for one external id.
type flakyStore struct {
	MessageStore
	failID string
}

func (f *flakyStore) IngestInbound(ctx context.Context, m *store.Message) (*store.IngestResult, error) {
	if m.ExternalID == f.failID {
		return nil, errors.New("database is locked")
	}
	return f.MessageStore.IngestInbound(ctx, m)
}

type fixture struct {
	db         *store.DB
	bus        *bus.Bus
	replier    *mockReplier
	dispatcher *Dispatcher
}

func newFixture(t *testing.T, st func(*store.DB) MessageStore) *fixture {
	t.Helper()
	db, err := store.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	var ms MessageStore = db
	if st != nil {
		ms = st(db)
	}
	f := &fixture{db: db, bus: bus.New(), replier: &mockReplier{}}
	logger, _ := zap.NewDevelopment()
	resolver := tenant.NewResolver(db)
	f.dispatcher = NewDispatcher(
		NewMessageProcessor(resolver, ms, f.replier, f.bus, logger),
		NewStatusProcessor(resolver, ms, f.bus, logger),
		logger,
	)
	return f
}

func (f *fixture) link(t *testing.T, tenantID, phoneNumberID string, autoReply bool, welcome string) {
	t.Helper()
	ctx := context.Background()
	if err := f.db.LinkChannel(ctx, &store.ChannelConfig{TenantID: tenantID, PhoneNumberID: phoneNumberID, AccessToken: "tok"}); err != nil {
		t.Fatal(err)
	}
	if err := f.db.SetAutoReply(ctx, tenantID, store.ChannelWhatsApp, autoReply, welcome); err != nil {
		t.Fatal(err)
	}
}

func delivery(routingKey string, msgs []cloudapi.InboundMessage, statuses []cloudapi.StatusUpdate) *cloudapi.Notification {
	return &cloudapi.Notification{
		Object: cloudapi.ObjectWhatsApp,
		Entry: []cloudapi.Entry{{
			ID: "WABA",
			Changes: []cloudapi.Change{{
				Field: cloudapi.FieldMessages,
				Value: cloudapi.Value{
					Metadata: cloudapi.Metadata{PhoneNumberID: routingKey},
					Messages: msgs,
					Statuses: statuses,
				},
			}},
		}},
	}
}

func textMsg(id, from, body string) cloudapi.InboundMessage {
	return cloudapi.InboundMessage{ID: id, From: from, Timestamp: "1700000000", Type: "text", Text: &cloudapi.TextBody{Body: body}}
}

func statusOf(id, st string) cloudapi.StatusUpdate {
	return cloudapi.StatusUpdate{ID: id, Status: st, Timestamp: "1700000005", RecipientID: "+100"}
}

func TestIdempotentIngestion(t *testing.T) {
	f := newFixture(t, nil)
	f.link(t, "t1", "PN_1", false, "")
	ctx := context.Background()
	n := delivery("PN_1", []cloudapi.InboundMessage{textMsg("wamid.1", "+100", "hi")}, nil)

	first := f.dispatcher.Dispatch(ctx, n)
	second := f.dispatcher.Dispatch(ctx, n)

	if first.Accepted != 1 || second.Duplicates != 1 || second.Accepted != 0 {
		t.Errorf("reports = %+v, %+v", first, second)
	}
	msgs, err := f.db.ListMessages(ctx, "t1", "", 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d rows, want 1", len(msgs))
	}
	m := msgs[0]
	if m.Body != "hi" || m.Direction != store.Inbound || m.Status != status.Received || m.Timestamp != 1700000000000 {
		t.Errorf("stored message = %+v", m)
	}
}

func TestFirstContactTriggersOneAutoReply(t *testing.T) {
	f := newFixture(t, nil)
	f.link(t, "t1", "PN_1", true, "Welcome!")
	ctx := context.Background()

	f.dispatcher.Dispatch(ctx, delivery("PN_1", []cloudapi.InboundMessage{textMsg("wamid.1", "+100", "hi")}, nil))
	if len(f.replier.calls) != 1 {
		t.Fatalf("got %d auto-replies after first message, want 1", len(f.replier.calls))
	}
	if got := f.replier.calls[0]; got != (replyCall{TenantID: "t1", To: "+100", Text: "Welcome!"}) {
		t.Errorf("auto-reply = %+v", got)
	}

	f.dispatcher.Dispatch(ctx, delivery("PN_1", []cloudapi.InboundMessage{textMsg("wamid.2", "+100", "again")}, nil))
	if len(f.replier.calls) != 1 {
		t.Errorf("got %d auto-replies after second message, want 1", len(f.replier.calls))
	}
}

func TestRedeliveryDoesNotRetriggerAutoReply(t *testing.T) {
	f := newFixture(t, nil)
	f.link(t, "t1", "PN_1", true, "Welcome!")
	n := delivery("PN_1", []cloudapi.InboundMessage{textMsg("wamid.1", "+100", "hi")}, nil)

	f.dispatcher.Dispatch(context.Background(), n)
	f.dispatcher.Dispatch(context.Background(), n)

	if len(f.replier.calls) != 1 {
		t.Errorf("got %d auto-replies, want 1", len(f.replier.calls))
	}
}

func TestAutoReplyDisabled(t *testing.T) {
	f := newFixture(t, nil)
	f.link(t, "t1", "PN_1", false, "Welcome!")
	f.dispatcher.Dispatch(context.Background(), delivery("PN_1", []cloudapi.InboundMessage{textMsg("wamid.1", "+100", "hi")}, nil))
	if len(f.replier.calls) != 0 {
		t.Errorf("got %d auto-replies, want 0", len(f.replier.calls))
	}
}

func TestUnknownRoutingKeySkipped(t *testing.T) {
	f := newFixture(t, nil)
	f.link(t, "t1", "PN_1", true, "Welcome!")

	report := f.dispatcher.Dispatch(context.Background(), delivery("PN_404",
		[]cloudapi.InboundMessage{textMsg("wamid.1", "+100", "hi")},
		[]cloudapi.StatusUpdate{statusOf("wamid.out", "delivered")}))

	if report.Skipped != 2 || report.Failed != 0 {
		t.Errorf("report = %+v, want 2 skipped", report)
	}
	if len(f.replier.calls) != 0 {
		t.Errorf("got %d auto-replies, want 0", len(f.replier.calls))
	}
	msgs, _ := f.db.ListMessages(context.Background(), "t1", "", 0, 10)
	if len(msgs) != 0 {
		t.Errorf("got %d rows, want 0", len(msgs))
	}
}

func TestAccumulateAndContinue(t *testing.T) {
	f := newFixture(t, func(db *store.DB) MessageStore {
		return &flakyStore{MessageStore: db, failID: "wamid.2"}
	})
	f.link(t, "t1", "PN_1", false, "")
	ctx := context.Background()

	report := f.dispatcher.Dispatch(ctx, delivery("PN_1", []cloudapi.InboundMessage{
		textMsg("wamid.1", "+100", "one"),
		textMsg("wamid.2", "+100", "two"),
		textMsg("wamid.3", "+100", "three"),
	}, nil))

	if report.Accepted != 2 || report.Failed != 1 {
		t.Errorf("report = %+v, want 2 accepted 1 failed", report)
	}
	for _, id := range []string{"wamid.1", "wamid.3"} {
		m, err := f.db.GetMessage(ctx, "t1", id)
		if err != nil || m == nil {
			t.Errorf("message %s not stored: %v", id, err)
		}
	}
}

func TestStatusProgression(t *testing.T) {
	f := newFixture(t, nil)
	f.link(t, "t1", "PN_1", false, "")
	ctx := context.Background()
	if _, err := f.db.InsertMessage(ctx, &store.Message{
		TenantID: "t1", ExternalID: "wamid.out", Counterparty: "+100",
		Direction: store.Outbound, Body: "hello", Status: status.Sent, Timestamp: 1,
	}); err != nil {
		t.Fatal(err)
	}
	ch, unsub := f.bus.Subscribe(bus.Filter{Namespace: bus.KindMessageStatus, TenantID: "t1"}, 10)
	defer unsub()

	r1 := f.dispatcher.Dispatch(ctx, delivery("PN_1", nil, []cloudapi.StatusUpdate{statusOf("wamid.out", "delivered")}))
	r2 := f.dispatcher.Dispatch(ctx, delivery("PN_1", nil, []cloudapi.StatusUpdate{statusOf("wamid.out", "delivered")}))
	if r1.Accepted != 1 || r2.Duplicates != 1 {
		t.Errorf("reports = %+v, %+v", r1, r2)
	}
	m, _ := f.db.GetMessage(ctx, "t1", "wamid.out")
	if m.Status != status.Delivered {
		t.Errorf("status = %q, want delivered", m.Status)
	}

	// A late "sent" does not regress a delivered message.
	f.dispatcher.Dispatch(ctx, delivery("PN_1", nil, []cloudapi.StatusUpdate{statusOf("wamid.out", "sent")}))
	m, _ = f.db.GetMessage(ctx, "t1", "wamid.out")
	if m.Status != status.Delivered {
		t.Errorf("status after late sent = %q, want delivered", m.Status)
	}

	select {
	case evt := <-ch:
		up, ok := evt.Payload.(StatusUpdate)
		if !ok || up.Status != status.Delivered {
			t.Errorf("event payload = %#v", evt.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message.status event")
	}
	select {
	case evt := <-ch:
		t.Errorf("unexpected second status event %+v", evt)
	default:
	}
}

func TestStatusAfterDisconnectStillApplies(t *testing.T) {
	f := newFixture(t, nil)
	f.link(t, "t1", "PN_1", false, "")
	ctx := context.Background()
	if _, err := f.db.InsertMessage(ctx, &store.Message{
		TenantID: "t1", ExternalID: "wamid.X", Counterparty: "+100",
		Direction: store.Outbound, Body: "hello", Status: status.Sent, Timestamp: 1,
	}); err != nil {
		t.Fatal(err)
	}
	if err := f.db.SetChannelState(ctx, "t1", store.ChannelWhatsApp, store.Disconnected); err != nil {
		t.Fatal(err)
	}

	report := f.dispatcher.Dispatch(ctx, delivery("PN_1", nil, []cloudapi.StatusUpdate{statusOf("wamid.X", "delivered")}))
	if report.Accepted != 1 {
		t.Errorf("report = %+v, want 1 accepted", report)
	}
	m, _ := f.db.GetMessage(ctx, "t1", "wamid.X")
	if m.Status != status.Delivered {
		t.Errorf("status = %q, want delivered", m.Status)
	}

	// Inbound messages still require a connected channel.
	report = f.dispatcher.Dispatch(ctx, delivery("PN_1", []cloudapi.InboundMessage{textMsg("wamid.in", "+100", "hi")}, nil))
	if report.Skipped != 1 {
		t.Errorf("inbound report = %+v, want 1 skipped", report)
	}
}

func TestStatusAfterNumberMovedToAnotherTenant(t *testing.T) {
	f := newFixture(t, nil)
	f.link(t, "t1", "PN_1", false, "")
	ctx := context.Background()
	if _, err := f.db.InsertMessage(ctx, &store.Message{
		TenantID: "t1", ExternalID: "wamid.old", Counterparty: "+100",
		Direction: store.Outbound, Body: "hello", Status: status.Sent, Timestamp: 1,
	}); err != nil {
		t.Fatal(err)
	}
	if err := f.db.SetChannelState(ctx, "t1", store.ChannelWhatsApp, store.Disconnected); err != nil {
		t.Fatal(err)
	}
	f.link(t, "t2", "PN_1", false, "")
	ch, unsub := f.bus.Subscribe(bus.Filter{Namespace: bus.KindMessageStatus, TenantID: "t1"}, 1)
	defer unsub()

	report := f.dispatcher.Dispatch(ctx, delivery("PN_1", nil, []cloudapi.StatusUpdate{statusOf("wamid.old", "read")}))
	if report.Accepted != 1 {
		t.Errorf("report = %+v, want 1 accepted", report)
	}
	m, _ := f.db.GetMessage(ctx, "t1", "wamid.old")
	if m.Status != status.Read {
		t.Errorf("status = %q, want read", m.Status)
	}
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message.status event on t1")
	}
}

func TestStatusFailedRecordsError(t *testing.T) {
	f := newFixture(t, nil)
	f.link(t, "t1", "PN_1", false, "")
	ctx := context.Background()
	if _, err := f.db.InsertMessage(ctx, &store.Message{
		TenantID: "t1", ExternalID: "wamid.out", Counterparty: "+100",
		Direction: store.Outbound, Body: "hello", Status: status.Sent, Timestamp: 1,
	}); err != nil {
		t.Fatal(err)
	}
	su := statusOf("wamid.out", "failed")
	su.Errors = []cloudapi.ProviderError{{Code: 131026, Title: "Message undeliverable"}}

	f.dispatcher.Dispatch(ctx, delivery("PN_1", nil, []cloudapi.StatusUpdate{su}))

	m, _ := f.db.GetMessage(ctx, "t1", "wamid.out")
	if m.Status != status.Failed || m.ErrorMessage != "Message undeliverable" {
		t.Errorf("message = %+v", m)
	}
}

func TestStatusBeforeMessageDropped(t *testing.T) {
	f := newFixture(t, nil)
	f.link(t, "t1", "PN_1", false, "")
	ctx := context.Background()

	report := f.dispatcher.Dispatch(ctx, delivery("PN_1", nil, []cloudapi.StatusUpdate{statusOf("wamid.ghost", "read")}))
	if report.Skipped != 1 || report.Failed != 0 {
		t.Errorf("report = %+v, want 1 skipped", report)
	}
	m, err := f.db.GetMessage(ctx, "t1", "wamid.ghost")
	if err != nil {
		t.Fatal(err)
	}
	if m != nil {
		t.Errorf("placeholder row created: %+v", m)
	}
}

func TestMixedDeliveryAndIgnoredFields(t *testing.T) {
	f := newFixture(t, nil)
	f.link(t, "t1", "PN_1", false, "")
	ctx := context.Background()
	if _, err := f.db.InsertMessage(ctx, &store.Message{
		TenantID: "t1", ExternalID: "wamid.out", Counterparty: "+100",
		Direction: store.Outbound, Body: "hello", Status: status.Sent, Timestamp: 1,
	}); err != nil {
		t.Fatal(err)
	}

	n := delivery("PN_1",
		[]cloudapi.InboundMessage{textMsg("wamid.in", "+100", "thanks")},
		[]cloudapi.StatusUpdate{statusOf("wamid.out", "read")})
	n.Entry[0].Changes = append(n.Entry[0].Changes, cloudapi.Change{Field: "account_update"})

	report := f.dispatcher.Dispatch(ctx, n)
	if report.Accepted != 2 || report.Total() != 2 {
		t.Errorf("report = %+v, want 2 accepted", report)
	}

	other := f.dispatcher.Dispatch(ctx, &cloudapi.Notification{Object: "page"})
	if other.Total() != 0 {
		t.Errorf("report for other object = %+v", other)
	}
}
