package webhook

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"atende_backend/internal/events"
	"atende_backend/platform/logger"

	"github.com/google/uuid"
)

func TestFailedEventsAreLogged(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewWithWriter("production", &buf)
	bus := events.NewInMemoryBus(log)
	(&Module{log: log}).RegisterHandlers(bus)

	id := uuid.New()
	err := bus.PublishSync(context.Background(), events.WebhookEventFailed{
		BaseEvent:     events.NewBaseEvent(),
		EventRecordID: id,
		Reason:        "boom",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "webhook: delivery marked failed") || !strings.Contains(out, id.String()) {
		t.Fatalf("expected failure log, got %q", out)
	}
}
