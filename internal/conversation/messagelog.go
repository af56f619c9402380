package conversation

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

type Kind string

const (
	KindText  Kind = "text"
	KindMedia Kind = "media"
)

type LogStatus string

const (
	LogReceived  LogStatus = "received"
	LogProcessed LogStatus = "processed"
	LogFailed    LogStatus = "failed"
)

// LogEntry is one row per physical message.
type LogEntry struct {
	ID            uuid.UUID
	TenantID      uuid.UUID
	Phone         string
	EventRecordID *uuid.UUID
	Direction     Direction
	Kind          Kind
	Content       string
	Intent        string
	Status        LogStatus
	CreatedAt     time.Time
}

// MessageLog is the append-only message log.
type MessageLog interface {
	AppendLog(ctx context.Context, entry LogEntry) (uuid.UUID, error)
	UpdateLogStatus(ctx context.Context, id uuid.UUID, status LogStatus, intent string) error
}
