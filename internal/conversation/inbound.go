package conversation

import "github.com/google/uuid"

// Inbound is a message that has been deduplicated and attributed to a
// tenant, ready for a conversation turn.
type Inbound struct {
	EventRecordID uuid.UUID
	TenantID      uuid.UUID
	TenantName    string
	ProductMode   string
	Instance      string
	Phone         string
	Candidates    []string
	Text          string
	PushName      string
	HasMedia      bool
	MediaType     string
}

// Outcome summarizes a completed turn.
type Outcome struct {
	Intent    string
	Reply     string
	Delivered bool
}
