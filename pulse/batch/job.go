// Package batch drives one enrichment job from its checkpoint to completion,
// suspension or failure.
package batch

import (
	"fmt"
	"strings"

	"github.com/teranos/pegabatch/pegabot"
)

// Row is one raw input row keyed by header name.
type Row = map[string]any

// Status is the orchestrator's view of a job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSuspended  Status = "suspended"
	StatusComplete   Status = "complete"
	StatusFailed     Status = "failed"
)

// Job is one batch-analysis request. ID derives the checkpoint keys; Rows are
// immutable once a run starts.
type Job struct {
	ID     string
	Rows   []Row
	Status Status
	Cursor int
}

// PartialResult maps an identifier to its successful payload. Absence means
// not yet attempted or not resolved.
type PartialResult map[string]*pegabot.Payload

// Clone returns a shallow copy; payloads are never mutated after insertion.
func (p PartialResult) Clone() PartialResult {
	out := make(PartialResult, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// LineError is a failure tied to one input row. RowIndex is zero-based over
// data rows (the header is not counted).
type LineError struct {
	RowIndex int    `json:"line"`
	Message  string `json:"msg"`
}

// RowOffset converts RowIndex to the line number a user sees in their
// spreadsheet: one for the header, one for 1-based numbering.
const RowOffset = 2

func (e LineError) String() string {
	return fmt.Sprintf("Linha %d: %s", e.RowIndex+RowOffset, e.Message)
}

// FormatErrors renders line errors one per line for users.
func FormatErrors(errs []LineError) string {
	lines := make([]string, 0, len(errs))
	for _, e := range errs {
		lines = append(lines, e.String())
	}
	return strings.Join(lines, "\n")
}

// Checkpoint is the durable snapshot of a job's progress.
type Checkpoint struct {
	Results PartialResult
	Errors  []LineError
}

// User-facing messages.
const (
	MsgMissingColumn     = `Adicione uma coluna para servir de header da lista de usuários chamada "Perfil"`
	MsgInvalidIdentifier = "Nome de perfil inválido! Tenha certeza de que é apenas um texto!"
)

// enrichmentMessage is the line error for an identifier the API did not resolve.
func enrichmentMessage(identifier, reason string) string {
	msg := fmt.Sprintf(`Erro ao analisar handle "%s"`, identifier)
	if reason != "" {
		msg += " - " + reason
	}
	return msg
}
