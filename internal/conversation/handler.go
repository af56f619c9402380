package conversation

import (
	"context"
	"time"

	"atende_backend/platform/apperr"
	"atende_backend/platform/httpkit"
	"atende_backend/platform/phone"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const adminLogLimit = 50

// LogLister reads recent message log rows for the admin view.
type LogLister interface {
	ListLogs(ctx context.Context, tenantID uuid.UUID, phone string, limit int) ([]LogEntry, error)
}

// Handler serves the admin conversation endpoints.
type Handler struct {
	store *Store
	logs  LogLister
}

// NewHandler creates a new conversation handler.
func NewHandler(store *Store, logs LogLister) *Handler {
	return &Handler{store: store, logs: logs}
}

type messageResponse struct {
	Role string    `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

type logResponse struct {
	ID        uuid.UUID `json:"id"`
	Direction Direction `json:"direction"`
	Kind      Kind      `json:"kind"`
	Content   string    `json:"content"`
	Intent    string    `json:"intent,omitempty"`
	Status    LogStatus `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// SnapshotResponse is the admin view of a conversation.
type SnapshotResponse struct {
	Phone          string            `json:"phone"`
	UserName       string            `json:"userName,omitempty"`
	LastIntent     string            `json:"lastIntent,omitempty"`
	LastInboundAt  *time.Time        `json:"lastInboundAt,omitempty"`
	LastOutboundAt *time.Time        `json:"lastOutboundAt,omitempty"`
	Version        int               `json:"version"`
	BookingTriage  *BookingTriage    `json:"bookingTriage,omitempty"`
	FiscalState    *FiscalState      `json:"fiscalState,omitempty"`
	RecentMessages []messageResponse `json:"recentMessages"`
	Logs           []logResponse     `json:"logs,omitempty"`
}

// HandleGet returns the memory snapshot for a phone.
// GET /api/v1/admin/conversations/:phone
func (h *Handler) HandleGet(c *gin.Context) {
	tenantID, ok := httpkit.MustGetTenantID(c)
	if !ok {
		return
	}
	canonical, ok := phoneParam(c)
	if !ok {
		return
	}

	mem, err := h.store.Load(c.Request.Context(), tenantID, canonical)
	if err != nil {
		httpkit.HandleError(c, apperr.Internal("failed to load conversation", err))
		return
	}

	resp := toSnapshot(mem)
	if h.logs != nil {
		entries, err := h.logs.ListLogs(c.Request.Context(), tenantID, canonical, adminLogLimit)
		if httpkit.HandleError(c, err) {
			return
		}
		for _, e := range entries {
			resp.Logs = append(resp.Logs, logResponse{
				ID:        e.ID,
				Direction: e.Direction,
				Kind:      e.Kind,
				Content:   e.Content,
				Intent:    e.Intent,
				Status:    e.Status,
				CreatedAt: e.CreatedAt,
			})
		}
	}

	httpkit.OK(c, resp)
}

// HandleReset clears booking and fiscal state for a phone.
// DELETE /api/v1/admin/conversations/:phone/state
func (h *Handler) HandleReset(c *gin.Context) {
	tenantID, ok := httpkit.MustGetTenantID(c)
	if !ok {
		return
	}
	canonical, ok := phoneParam(c)
	if !ok {
		return
	}

	mem, err := h.store.Reset(c.Request.Context(), tenantID, canonical)
	if err != nil {
		httpkit.HandleError(c, apperr.Internal("failed to reset conversation", err))
		return
	}
	httpkit.OK(c, toSnapshot(mem))
}

func phoneParam(c *gin.Context) (string, bool) {
	canonical := phone.Normalize(c.Param("phone"))
	if canonical == "" {
		httpkit.HandleError(c, apperr.Validation("invalid phone"))
		return "", false
	}
	return canonical, true
}

func toSnapshot(mem Memory) SnapshotResponse {
	msgs := make([]messageResponse, 0, len(mem.Context.RecentMessages))
	for _, m := range mem.Context.RecentMessages {
		msgs = append(msgs, messageResponse{Role: string(m.Role), Text: m.Text, At: m.At})
	}
	return SnapshotResponse{
		Phone:          mem.Phone,
		UserName:       mem.UserName,
		LastIntent:     mem.LastIntent,
		LastInboundAt:  mem.LastInboundAt,
		LastOutboundAt: mem.LastOutboundAt,
		Version:        mem.Version,
		BookingTriage:  mem.Context.BookingTriage,
		FiscalState:    mem.Context.FiscalState,
		RecentMessages: msgs,
	}
}
