// Package record defines the task record model shared by ingestion, storage and the KPI engine.
// It contains the closed status and completion enumerations, column schema definitions and
// the tolerant time normalization applied to raw spreadsheet cells.
package record

import (
	"cmp"
	"fmt"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

type (
	Status     string
	Completion string
	Record     struct {
		ProtocolID      string         `json:"protocol_id"`
		Analyst         string         `json:"analyst"`
		Status          Status         `json:"status"`
		Completion      Completion     `json:"completion,omitempty"`
		Queue           string         `json:"queue"`
		OperationalTime *time.Duration `json:"operational_time,omitempty"`
		StartedAt       *time.Time     `json:"started_at,omitempty"`
		CompletedAt     *time.Time     `json:"completed_at,omitempty"`
		CreatedAt       *time.Time     `json:"created_at,omitempty"`
		TaskType        string         `json:"task_type,omitempty"`
		CauseType       string         `json:"cause_type,omitempty"`
		Justification   string         `json:"justification,omitempty"`
	}
)

const (
	StatusUnknown   Status = ""
	StatusPending   Status = "pending"
	StatusFinished  Status = "finished"
	StatusCancelled Status = "cancelled"
)

const (
	CompletionNone        Completion = ""
	CompletionRegistered  Completion = "registered"
	CompletionUpdated     Completion = "updated"
	CompletionDistributed Completion = "distributed"
	CompletionOutOfScope  Completion = "out_of_scope"
)

var completionLabels = map[Completion]string{
	CompletionRegistered:  "CADASTRADO",
	CompletionUpdated:     "ATUALIZADO",
	CompletionDistributed: "REALIZADO",
	CompletionOutOfScope:  "FORA DO ESCOPO",
}

var statusLabels = map[Status]string{
	StatusPending:   "Pendente",
	StatusFinished:  "Finalizada",
	StatusCancelled: "Cancelada",
}

var pendingPrefixes = []string{"PENDENTE", "EM ANDAMENTO", "ABERTA", "AGUARDANDO", "NOVA"}

// ParseStatus maps the export's task situation text onto Status.
// Matching ignores case, accents and surrounding whitespace. An empty cell is StatusUnknown.
func ParseStatus(raw string) (Status, error) {
	key := Fold(raw)
	switch key {
	case "":
		return StatusUnknown, nil
	case "FINALIZADA", "FINALIZADO":
		return StatusFinished, nil
	case "CANCELADA", "CANCELADO":
		return StatusCancelled, nil
	}
	for _, prefix := range pendingPrefixes {
		if strings.HasPrefix(key, prefix) {
			return StatusPending, nil
		}
	}

	return "", fmt.Errorf("unrecognized task status %q", strings.TrimSpace(raw))
}

// ParseCompletion maps the export's completion text onto Completion. An empty cell is CompletionNone.
func ParseCompletion(raw string) (Completion, error) {
	switch Fold(raw) {
	case "":
		return CompletionNone, nil
	case "CADASTRADO":
		return CompletionRegistered, nil
	case "ATUALIZADO":
		return CompletionUpdated, nil
	case "REALIZADO":
		return CompletionDistributed, nil
	case "FORA DO ESCOPO":
		return CompletionOutOfScope, nil
	}

	return "", fmt.Errorf("unrecognized completion code %q", strings.TrimSpace(raw))
}

// Label returns the spreadsheet spelling of the status.
func (s Status) Label() string {
	return statusLabels[s]
}

// Label returns the spreadsheet spelling of the completion code.
func (c Completion) Label() string {
	return completionLabels[c]
}

func (s Status) Closed() bool {
	return s == StatusFinished || s == StatusCancelled
}

func (c Completion) Present() bool {
	return c != CompletionNone
}

// Fold upper-cases s, strips accents and collapses inner whitespace.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}

	return strings.ToUpper(strings.Join(strings.Fields(folded), " "))
}

// CompletionDate returns the completion day bucket, or false when the completion time is unknown.
func (r Record) CompletionDate() (time.Time, bool) {
	if r.CompletedAt == nil {
		return time.Time{}, false
	}

	return DateOf(*r.CompletedAt), true
}

// OpTime returns the operational time, zero when unknown.
func (r Record) OpTime() time.Duration {
	if r.OperationalTime == nil {
		return 0
	}

	return *r.OperationalTime
}

// DateOf truncates t to midnight in its own location.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// CompareDates orders a and b by calendar day, each read in its own location. A filter day
// parsed as UTC midnight therefore matches records stamped in the local zone.
func CompareDates(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return cmp.Or(cmp.Compare(ay, by), cmp.Compare(am, bm), cmp.Compare(ad, bd))
}

// MonthOf truncates t to the first day of its month.
func MonthOf(t time.Time) time.Time {
	y, m, _ := t.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, t.Location())
}
