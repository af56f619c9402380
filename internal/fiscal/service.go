package fiscal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"atende_backend/internal/adapters/storage"
	"atende_backend/internal/conversation"
	"atende_backend/internal/whatsapp"
	"atende_backend/platform/logger"
	"atende_backend/platform/sanitize"

	"github.com/google/uuid"
)

// Action requested on a resolved note.
type Action string

const (
	ActionDetails  Action = "details"
	ActionDocument Action = "document"
	ActionStatus   Action = "status"
)

var (
	listKeywords     = []string{"listar", "lista", "minhas notas", "ultimas notas", "quais notas", "todas as notas", "ver notas"}
	documentKeywords = []string{"pdf", "danfe", "enviar", "envia", "manda", "mandar", "reenviar", "arquivo"}
	statusKeywords   = []string{"status", "situacao", "importada", "foi importada"}
)

// NoteStore reads persisted notes.
type NoteStore interface {
	ListRecent(ctx context.Context, tenantID uuid.UUID, customerDocument string, limit int) ([]Note, error)
	GetByKey(ctx context.Context, tenantID uuid.UUID, key string) (Note, error)
}

// Request is one fiscal turn.
type Request struct {
	TenantID         uuid.UUID
	Text             string
	State            *conversation.FiscalState
	CustomerDocument string
}

// Response carries the reply and the fiscal state to remember.
type Response struct {
	Reply       string
	Listed      []conversation.NoteRef
	Awaiting    bool
	SelectedKey string
	Action      Action
	Document    *whatsapp.Attachment
}

// Service serves the fiscal conversation flow.
type Service struct {
	store  NoteStore
	docs   storage.ObjectStore
	bucket string
	log    *logger.Logger
}

// NewService creates a fiscal service. docs may be nil when object storage
// is not configured; document requests then fall back to the note details.
func NewService(store NoteStore, docs storage.ObjectStore, bucket string, log *logger.Logger) *Service {
	return &Service{store: store, docs: docs, bucket: bucket, log: log}
}

// ListRecent returns snapshots of the most recent notes, newest first.
func (s *Service) ListRecent(ctx context.Context, tenantID uuid.UUID, customerDocument string) ([]conversation.NoteRef, error) {
	notes, err := s.store.ListRecent(ctx, tenantID, customerDocument, conversation.MaxListedNotes)
	if err != nil {
		return nil, err
	}
	refs := make([]conversation.NoteRef, 0, len(notes))
	for _, n := range notes {
		refs = append(refs, n.Ref())
	}
	return refs, nil
}

// Respond resolves the note the text refers to and performs the requested
// action. An ambiguous reference yields the numbered selection prompt.
func (s *Service) Respond(ctx context.Context, req Request) (Response, error) {
	folded := sanitize.Fold(req.Text)
	q := QueryFromState(req.Text, req.State)

	explicitList := containsAny(folded, listKeywords)
	if explicitList || len(q.Listed) == 0 {
		listed, err := s.ListRecent(ctx, req.TenantID, req.CustomerDocument)
		if err != nil {
			return Response{}, fmt.Errorf("list fiscal notes: %w", err)
		}
		q.Listed = listed
		q.AwaitingSelection = false
		if explicitList {
			return s.listing(listed), nil
		}
	}

	res, err := Resolve(q)
	if errors.Is(err, ErrAmbiguousReference) {
		return s.listing(q.Listed), nil
	}
	if err != nil {
		return Response{}, err
	}

	note := res.Note
	if !res.Listed {
		found, err := s.store.GetByKey(ctx, req.TenantID, note.Key)
		if errors.Is(err, ErrNoteNotFound) {
			return Response{Reply: "Não encontrei nenhuma nota com essa chave.", Listed: q.Listed}, nil
		}
		if err != nil {
			return Response{}, fmt.Errorf("load fiscal note: %w", err)
		}
		note = found.Ref()
	}

	out := Response{Listed: q.Listed, SelectedKey: note.Key, Action: detectAction(folded)}
	switch out.Action {
	case ActionDocument:
		doc, err := s.Document(ctx, req.TenantID, note)
		if err != nil {
			s.log.Warn("fiscal: danfe unavailable", "tenantId", req.TenantID, "keySuffix", KeySuffix(note.Key), "error", err)
			out.Reply = NoteDetails(note) + " O PDF dessa nota ainda não está disponível."
			return out, nil
		}
		out.Document = doc
		out.Reply = fmt.Sprintf("Enviando o DANFE da nota final %s.", KeySuffix(note.Key))
	case ActionStatus:
		out.Reply = fmt.Sprintf("A nota final %s está %s.", KeySuffix(note.Key), StatusLabel(note.Status))
	default:
		out.Reply = NoteDetails(note)
	}
	return out, nil
}

func (s *Service) listing(listed []conversation.NoteRef) Response {
	if len(listed) == 1 {
		return Response{Reply: NoteDetails(listed[0]), Listed: listed, SelectedKey: listed[0].Key, Action: ActionDetails}
	}
	return Response{Reply: SelectionPrompt(listed), Listed: listed, Awaiting: len(listed) > 1}
}

// Document builds the DANFE attachment stored under {tenantId}/{key}.pdf.
func (s *Service) Document(ctx context.Context, tenantID uuid.UUID, note conversation.NoteRef) (*whatsapp.Attachment, error) {
	if s.docs == nil || s.bucket == "" {
		return nil, errors.New("object storage not configured")
	}
	fileKey := tenantID.String() + "/" + note.Key + ".pdf"
	exists, err := s.docs.ObjectExists(ctx, s.bucket, fileKey)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, storage.ErrObjectNotFound
	}
	link, err := s.docs.GenerateDownloadURL(ctx, s.bucket, fileKey)
	if err != nil {
		return nil, err
	}
	return &whatsapp.Attachment{
		FileName: "DANFE-" + KeySuffix(note.Key) + ".pdf",
		MimeType: "application/pdf",
		Caption:  "DANFE " + FormatBRL(note.Amount),
		URL:      link.URL,
	}, nil
}

// Apply stores the response's fiscal state in memory.
func (r Response) Apply(mem *conversation.Memory, now time.Time) {
	if r.Listed != nil {
		mem.SaveFiscal(r.Listed, r.Awaiting, now)
	}
	if r.SelectedKey != "" {
		mem.SelectNote(r.SelectedKey, now)
	}
}

func detectAction(folded string) Action {
	switch {
	case containsAny(folded, documentKeywords):
		return ActionDocument
	case containsAny(folded, statusKeywords):
		return ActionStatus
	}
	return ActionDetails
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
