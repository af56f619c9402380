package fiscal

import (
	"fmt"
	"strings"

	"atende_backend/internal/conversation"
)

var statusLabels = map[string]string{
	conversation.NoteDetected: "detectada",
	conversation.NoteImported: "importada",
	conversation.NoteFailed:   "com falha",
}

// StatusLabel renders a note status for chat.
func StatusLabel(status string) string {
	if label, ok := statusLabels[status]; ok {
		return label
	}
	return status
}

// KeySuffix returns the last 8 digits of a key.
func KeySuffix(key string) string {
	if len(key) <= 8 {
		return key
	}
	return key[len(key)-8:]
}

// SelectionPrompt lists the notes as a numbered menu: index, amount, last 8
// digits of the key and status.
func SelectionPrompt(notes []conversation.NoteRef) string {
	if len(notes) == 0 {
		return "Não encontrei notas fiscais recentes para você."
	}
	lines := make([]string, 0, len(notes)+2)
	lines = append(lines, "Encontrei estas notas. Qual delas você quer? Responda com o número:")
	for i, n := range notes {
		lines = append(lines, fmt.Sprintf("%d) %s - final %s - %s", i+1, FormatBRL(n.Amount), KeySuffix(n.Key), StatusLabel(n.Status)))
	}
	return strings.Join(lines, "\n")
}

// NoteDetails describes a single note.
func NoteDetails(n conversation.NoteRef) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Nota final %s: %s, situação %s.", KeySuffix(n.Key), FormatBRL(n.Amount), StatusLabel(n.Status))
	if n.IssuerName != "" {
		fmt.Fprintf(&b, " Emitente: %s.", n.IssuerName)
	}
	if !n.CreatedAt.IsZero() {
		fmt.Fprintf(&b, " Registrada em %s.", n.CreatedAt.Format("02/01/2006"))
	}
	return b.String()
}
