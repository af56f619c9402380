package webhook

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"atende_backend/internal/conversation"
	"atende_backend/internal/tenants"
	"atende_backend/platform/logger"

	"github.com/google/uuid"
)

type fakeEventStore struct {
	mu        sync.Mutex
	eventIDs  map[string]bool
	statuses  map[uuid.UUID]string
	reasons   map[uuid.UUID]string
	insertErr error
}

func newFakeEventStore() *fakeEventStore {
	return &fakeEventStore{
		eventIDs: make(map[string]bool),
		statuses: make(map[uuid.UUID]string),
		reasons:  make(map[uuid.UUID]string),
	}
}

func (f *fakeEventStore) Insert(_ context.Context, rec Record) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return uuid.Nil, f.insertErr
	}
	if rec.EventID != "" {
		key := rec.Provider + ":" + rec.EventID
		if f.eventIDs[key] {
			return uuid.Nil, ErrDuplicateEvent
		}
		f.eventIDs[key] = true
	}
	id := uuid.New()
	f.statuses[id] = StatusReceived
	return id, nil
}

func (f *fakeEventStore) MarkTerminal(_ context.Context, id uuid.UUID, status, reason string, _ *uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statuses[id] != StatusReceived {
		return false, nil
	}
	f.statuses[id] = status
	f.reasons[id] = reason
	return true, nil
}

func (f *fakeEventStore) ExistsRecent(context.Context, string, string, string, time.Time) (bool, error) {
	return false, nil
}

func (f *fakeEventStore) status(id *uuid.UUID) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id == nil {
		return ""
	}
	return f.statuses[*id]
}

type fakeDeduper struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (f *fakeDeduper) Claim(_ context.Context, provider, eventType, hash string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.seen == nil {
		f.seen = make(map[string]bool)
	}
	key := provider + ":" + eventType + ":" + hash
	if f.seen[key] {
		return false, nil
	}
	f.seen[key] = true
	return true, nil
}

func (f *fakeDeduper) Release(_ context.Context, provider, eventType, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.seen, provider+":"+eventType+":"+hash)
	return nil
}

type fakeResolver struct {
	res   tenants.Resolution
	err   error
	calls int
}

func (f *fakeResolver) Resolve(context.Context, string, []string) (tenants.Resolution, error) {
	f.calls++
	return f.res, f.err
}

type fakeProcessor struct {
	mu    sync.Mutex
	calls []conversation.Inbound
	err   error
	panic bool
}

func (f *fakeProcessor) ProcessInbound(_ context.Context, in conversation.Inbound) (conversation.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, in)
	if f.panic {
		panic("boom")
	}
	if f.err != nil {
		return conversation.Outcome{}, f.err
	}
	return conversation.Outcome{Intent: "greeting", Reply: "Oi!", Delivered: true}, nil
}

func newTestService(store *fakeEventStore, resolver *fakeResolver, processor *fakeProcessor) *Service {
	return NewService(store, &fakeDeduper{}, resolver, processor, nil, logger.Nop())
}

func knownTenant() *fakeResolver {
	return &fakeResolver{res: tenants.Resolution{
		Tenant: tenants.Tenant{ID: uuid.New(), Name: "Clinica", GatewayInstance: "clinica", ProductMode: tenants.ModeFull},
		Via:    tenants.ViaInstance,
	}}
}

const messageWithID = `{"event":"messages.upsert","instance":"clinica","data":{"key":{"id":"ABC","remoteJid":"5511999998888@s.whatsapp.net","fromMe":false},"message":{"conversation":"oi"}}}`

const messageWithoutID = `{"event":"messages.upsert","instance":"clinica","data":{"key":{"remoteJid":"5511999998888@s.whatsapp.net"},"message":{"conversation":"oi"}}}`

func TestHandleProcessesMessage(t *testing.T) {
	store := newFakeEventStore()
	processor := &fakeProcessor{}
	svc := newTestService(store, knownTenant(), processor)

	ack := svc.Handle(context.Background(), "Evolution", []byte(messageWithID))

	if !ack.OK || ack.Status != StatusProcessed {
		t.Fatalf("expected processed ack, got %+v", ack)
	}
	if store.status(ack.EventID) != StatusProcessed {
		t.Fatalf("expected record processed, got %q", store.status(ack.EventID))
	}
	if len(processor.calls) != 1 {
		t.Fatalf("expected one turn, got %d", len(processor.calls))
	}
	in := processor.calls[0]
	if in.Phone != "5511999998888" || in.Text != "oi" || in.Instance != "clinica" {
		t.Fatalf("unexpected inbound %+v", in)
	}
}

func TestHandleDuplicateEventID(t *testing.T) {
	store := newFakeEventStore()
	processor := &fakeProcessor{}
	svc := newTestService(store, knownTenant(), processor)

	first := svc.Handle(context.Background(), "evolution", []byte(messageWithID))
	second := svc.Handle(context.Background(), "evolution", []byte(messageWithID))

	if first.Status != StatusProcessed {
		t.Fatalf("expected first delivery processed, got %+v", first)
	}
	if !second.OK || second.Status != StatusIgnored || second.Reason != ReasonDuplicate {
		t.Fatalf("expected duplicate ack, got %+v", second)
	}
	if len(processor.calls) != 1 {
		t.Fatalf("expected a single turn for a replayed event, got %d", len(processor.calls))
	}
}

func TestHandleDuplicateContentWithoutID(t *testing.T) {
	store := newFakeEventStore()
	processor := &fakeProcessor{}
	svc := newTestService(store, knownTenant(), processor)

	svc.Handle(context.Background(), "evolution", []byte(messageWithoutID))
	ack := svc.Handle(context.Background(), "evolution", []byte(messageWithoutID))

	if ack.Status != StatusIgnored || ack.Reason != ReasonDuplicate {
		t.Fatalf("expected duplicate ack, got %+v", ack)
	}
	if len(processor.calls) != 1 {
		t.Fatalf("expected a single turn, got %d", len(processor.calls))
	}
}

func TestHandleRedeliveryAfterInsertFailure(t *testing.T) {
	store := newFakeEventStore()
	store.insertErr = errors.New("connection refused")
	processor := &fakeProcessor{}
	svc := newTestService(store, knownTenant(), processor)

	ack := svc.Handle(context.Background(), "evolution", []byte(messageWithoutID))
	if ack.Status != StatusFailed || ack.Reason != ReasonPersistence {
		t.Fatalf("expected persistence failure ack, got %+v", ack)
	}

	store.insertErr = nil
	ack = svc.Handle(context.Background(), "evolution", []byte(messageWithoutID))
	if ack.Reason == ReasonDuplicate {
		t.Fatalf("redelivery of an unpersisted payload must not be a duplicate, got %+v", ack)
	}
	if len(processor.calls) != 1 {
		t.Fatalf("expected the redelivery to run one turn, got %d", len(processor.calls))
	}
}

func TestHandleIgnoreReasons(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		reason string
	}{
		{"from me", `{"event":"messages.upsert","data":{"key":{"id":"1","remoteJid":"5511999998888@s.whatsapp.net","fromMe":true},"message":{"conversation":"oi"}}}`, ReasonFromMe},
		{"group", `{"event":"messages.upsert","data":{"key":{"id":"2","remoteJid":"1203630@g.us"},"message":{"conversation":"oi"}}}`, ReasonInvalidPhone},
		{"empty", `{"event":"messages.upsert","data":{"key":{"id":"3","remoteJid":"5511999998888@s.whatsapp.net"},"message":{}}}`, ReasonEmpty},
		{"connection", `{"event":"connection.update","data":{"state":"open"}}`, ReasonNotMessage},
		{"garbage", `not json at all`, ReasonInvalidPhone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeEventStore()
			resolver := knownTenant()
			processor := &fakeProcessor{}
			svc := newTestService(store, resolver, processor)

			ack := svc.Handle(context.Background(), "evolution", []byte(tt.body))

			if !ack.OK || ack.Status != StatusIgnored || ack.Reason != tt.reason {
				t.Fatalf("expected ignored:%s, got %+v", tt.reason, ack)
			}
			if store.status(ack.EventID) != StatusIgnored {
				t.Fatalf("expected record ignored, got %q", store.status(ack.EventID))
			}
			if resolver.calls != 0 || len(processor.calls) != 0 {
				t.Fatalf("expected no downstream work, resolver=%d processor=%d", resolver.calls, len(processor.calls))
			}
		})
	}
}

func TestHandleUnknownSender(t *testing.T) {
	store := newFakeEventStore()
	processor := &fakeProcessor{}
	svc := newTestService(store, &fakeResolver{err: tenants.ErrTenantNotFound}, processor)

	ack := svc.Handle(context.Background(), "evolution", []byte(messageWithID))

	if ack.Status != StatusIgnored || ack.Reason != ReasonUnknown {
		t.Fatalf("expected unrecognized sender, got %+v", ack)
	}
	if len(processor.calls) != 0 {
		t.Fatal("expected no turn for an unknown sender")
	}
}

func TestHandleSelfMessage(t *testing.T) {
	store := newFakeEventStore()
	resolver := knownTenant()
	resolver.res.SelfMessage = true
	processor := &fakeProcessor{}
	svc := newTestService(store, resolver, processor)

	ack := svc.Handle(context.Background(), "evolution", []byte(messageWithID))

	if ack.Status != StatusIgnored || ack.Reason != ReasonSelf {
		t.Fatalf("expected self message, got %+v", ack)
	}
	if len(processor.calls) != 0 {
		t.Fatal("expected no turn for a self message")
	}
}

func TestHandleFailuresStillAcknowledge(t *testing.T) {
	t.Run("processor error", func(t *testing.T) {
		store := newFakeEventStore()
		svc := newTestService(store, knownTenant(), &fakeProcessor{err: errors.New("db gone")})

		ack := svc.Handle(context.Background(), "evolution", []byte(messageWithID))

		if !ack.OK || ack.Status != StatusFailed || ack.Reason != ReasonProcessing {
			t.Fatalf("expected failed ack, got %+v", ack)
		}
		if store.status(ack.EventID) != StatusFailed {
			t.Fatalf("expected record failed, got %q", store.status(ack.EventID))
		}
	})

	t.Run("processor panic", func(t *testing.T) {
		store := newFakeEventStore()
		svc := newTestService(store, knownTenant(), &fakeProcessor{panic: true})

		ack := svc.Handle(context.Background(), "evolution", []byte(messageWithID))

		if !ack.OK || ack.Status != StatusFailed {
			t.Fatalf("expected failed ack after panic, got %+v", ack)
		}
		if store.status(ack.EventID) != StatusFailed {
			t.Fatalf("expected record failed, got %q", store.status(ack.EventID))
		}
	})

	t.Run("insert error", func(t *testing.T) {
		store := newFakeEventStore()
		store.insertErr = errors.New("connection refused")
		svc := newTestService(store, knownTenant(), &fakeProcessor{})

		ack := svc.Handle(context.Background(), "evolution", []byte(messageWithID))

		if !ack.OK || ack.Status != StatusFailed || ack.Reason != ReasonPersistence {
			t.Fatalf("expected persistence failure ack, got %+v", ack)
		}
	})
}
