// Package fiscal resolves references to fiscal documents (NF-e) made in
// free text and serves the note actions offered in the conversation.
package fiscal

import (
	"errors"
	"time"

	"atende_backend/internal/conversation"

	"github.com/google/uuid"
)

var (
	// ErrAmbiguousReference means the text does not single out one note.
	ErrAmbiguousReference = errors.New("ambiguous fiscal reference")
	ErrNoteNotFound       = errors.New("fiscal note not found")
)

// KeyLength is the length of an NF-e access key.
const KeyLength = 44

// Note is a persisted fiscal note.
type Note struct {
	ID               uuid.UUID
	TenantID         uuid.UUID
	Key              string
	Amount           float64
	Status           string
	IssuerName       string
	CustomerDocument string
	CreatedAt        time.Time
}

// Ref returns the snapshot kept in conversation memory.
func (n Note) Ref() conversation.NoteRef {
	return conversation.NoteRef{
		Key:        n.Key,
		Amount:     n.Amount,
		Status:     n.Status,
		IssuerName: n.IssuerName,
		CreatedAt:  n.CreatedAt,
	}
}
