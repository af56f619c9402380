package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

type fakeMemoryRepo struct {
	mu      sync.Mutex
	rows    map[string]Memory
	writes  int
	failErr error
}

func newFakeMemoryRepo() *fakeMemoryRepo {
	return &fakeMemoryRepo{rows: make(map[string]Memory)}
}

func (f *fakeMemoryRepo) Find(_ context.Context, tenantID uuid.UUID, phone string) (Memory, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	mem, ok := f.rows[memoryKey(tenantID, phone)]
	return mem, ok, nil
}

func (f *fakeMemoryRepo) Upsert(_ context.Context, mem Memory) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return 0, f.failErr
	}
	f.writes++
	mem.Version++
	f.rows[memoryKey(mem.TenantID, mem.Phone)] = mem
	return mem.Version, nil
}

func TestLoadReturnsEmptyMemoryWhenAbsent(t *testing.T) {
	store := NewStore(newFakeMemoryRepo())
	tenantID := uuid.New()

	mem, err := store.Load(context.Background(), tenantID, "5511999998888")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mem.TenantID != tenantID || mem.Phone != "5511999998888" {
		t.Fatalf("unexpected identity %+v", mem)
	}
	if mem.Booking() != nil || mem.Fiscal() != nil || len(mem.History()) != 0 {
		t.Fatalf("expected empty memory, got %+v", mem.Context)
	}
}

func TestLoadDropsExpiredSubStates(t *testing.T) {
	repo := newFakeMemoryRepo()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	store := NewStore(repo).WithClock(func() time.Time { return now })
	tenantID := uuid.New()
	phone := "5511999998888"

	mem := NewMemory(tenantID, phone)
	mem.SaveBooking(BookingTriage{ClientName: "Joao"}, now.Add(-7*time.Hour))
	mem.SaveFiscal([]NoteRef{{Key: "1", Amount: 10}}, false, now.Add(-23*time.Hour))
	if err := store.Save(context.Background(), &mem); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := store.Load(context.Background(), tenantID, phone)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Booking() != nil {
		t.Fatalf("expected booking triage older than 6h to expire")
	}
	if loaded.Fiscal() == nil {
		t.Fatalf("expected fiscal state younger than 24h to survive")
	}

	now = now.Add(2 * time.Hour)
	loaded, _ = store.Load(context.Background(), tenantID, phone)
	if loaded.Fiscal() != nil {
		t.Fatalf("expected fiscal state older than 24h to expire")
	}
}

func TestTranscriptKeepsLastTwentyMessages(t *testing.T) {
	mem := NewMemory(uuid.New(), "5511999998888")
	start := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 25; i++ {
		mem.RecordInbound(fmt.Sprintf("msg %d", i), "", start.Add(time.Duration(i)*time.Second))
	}

	history := mem.History()
	if len(history) != MaxRecentMessages {
		t.Fatalf("expected %d messages, got %d", MaxRecentMessages, len(history))
	}
	if history[0].Text != "msg 5" || history[len(history)-1].Text != "msg 24" {
		t.Fatalf("unexpected FIFO window: first=%q last=%q", history[0].Text, history[len(history)-1].Text)
	}
}

func TestRecordOutboundTracksIntent(t *testing.T) {
	mem := NewMemory(uuid.New(), "5511999998888")
	at := time.Now()
	mem.RecordInbound("oi", "Maria", at)
	mem.RecordOutbound("Olá Maria!", "greeting", at.Add(time.Second))

	if mem.UserName != "Maria" || mem.LastIntent != "greeting" {
		t.Fatalf("unexpected memory fields %+v", mem)
	}
	if mem.LastOutboundAt == nil || !mem.LastActivityAt.Equal(at.Add(time.Second)) {
		t.Fatalf("expected activity timestamps to be updated")
	}
}

func TestSaveFiscalKeepsSelectionOnlyWhenStillListed(t *testing.T) {
	mem := NewMemory(uuid.New(), "5511999998888")
	at := time.Now()
	mem.SaveFiscal([]NoteRef{{Key: "A"}, {Key: "B"}}, false, at)
	mem.SelectNote("B", at)

	mem.SaveFiscal([]NoteRef{{Key: "B"}, {Key: "C"}}, false, at)
	if mem.Fiscal().SelectedKey != "B" {
		t.Fatalf("expected selection to survive relisting")
	}

	mem.SaveFiscal([]NoteRef{{Key: "C"}}, false, at)
	if mem.Fiscal().SelectedKey != "" {
		t.Fatalf("expected selection to be dropped when note is no longer listed")
	}
}

func TestUpdateDoesNotSaveOnError(t *testing.T) {
	repo := newFakeMemoryRepo()
	store := NewStore(repo)
	boom := errors.New("boom")

	_, err := store.Update(context.Background(), uuid.New(), "5511999998888", func(mem *Memory) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected callback error, got %v", err)
	}
	if repo.writes != 0 {
		t.Fatalf("expected no writes, got %d", repo.writes)
	}
}

func TestUpdateSerializesConcurrentTurns(t *testing.T) {
	repo := newFakeMemoryRepo()
	store := NewStore(repo)
	tenantID := uuid.New()
	phone := "5511999998888"

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := store.Update(context.Background(), tenantID, phone, func(mem *Memory) error {
				mem.RecordInbound(fmt.Sprintf("m%d", i), "", time.Now())
				return nil
			})
			if err != nil {
				t.Errorf("update: %v", err)
			}
		}(i)
	}
	wg.Wait()

	mem, _ := store.Load(context.Background(), tenantID, phone)
	if len(mem.History()) != 20 {
		t.Fatalf("expected no lost updates, got %d messages", len(mem.History()))
	}
	if store.locks.Len() != 0 {
		t.Fatalf("expected keyed mutex to release all keys, got %d", store.locks.Len())
	}
}

func TestResetKeepsTranscript(t *testing.T) {
	repo := newFakeMemoryRepo()
	store := NewStore(repo)
	tenantID := uuid.New()
	phone := "5511999998888"

	_, _ = store.Update(context.Background(), tenantID, phone, func(mem *Memory) error {
		mem.RecordInbound("quero agendar", "", time.Now())
		mem.SaveBooking(BookingTriage{ClientName: "Ana"}, time.Now())
		mem.LastIntent = "booking"
		return nil
	})

	mem, err := store.Reset(context.Background(), tenantID, phone)
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if mem.Booking() != nil || mem.LastIntent != "" {
		t.Fatalf("expected state to be cleared, got %+v", mem)
	}
	if len(mem.History()) != 1 {
		t.Fatalf("expected transcript to be kept")
	}
}
