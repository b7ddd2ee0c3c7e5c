// Package kpi is the metrics aggregation engine. Every operation is a pure function of a
// record.Table and the engine rules: it validates its required columns, never mutates the
// table, and degrades to a typed error or a zero value instead of panicking.
package kpi

import (
	"fmt"
	"slices"
	"time"

	"github.com/nadmax/opskpi/internal/record"
)

type (
	Group struct {
		Name   string   `yaml:"name" json:"name"`
		Queues []string `yaml:"queues" json:"queues"`
	}
	SLARules struct {
		Queues       []string `yaml:"queues" json:"queues"`
		TaskTypes    []string `yaml:"task_types" json:"task_types"`
		DeadlineDays int      `yaml:"deadline_days" json:"deadline_days"`
	}
	Rules struct {
		DoubtQueue             string        `yaml:"doubt_queue" json:"doubt_queue"`
		DoubtCap               time.Duration `yaml:"doubt_cap" json:"doubt_cap"`
		DistributionQueue      string        `yaml:"distribution_queue" json:"distribution_queue"`
		UnknownQueue           string        `yaml:"unknown_queue" json:"unknown_queue"`
		OtherGroup             string        `yaml:"other_group" json:"other_group"`
		Groups                 []Group       `yaml:"groups" json:"groups"`
		EmailRegistrationQueue string        `yaml:"email_registration_queue" json:"email_registration_queue"`
		EmailQueues            []string      `yaml:"email_queues" json:"email_queues"`
		IdleCap                time.Duration `yaml:"idle_cap" json:"idle_cap"`
		SLA                    SLARules      `yaml:"sla" json:"sla"`
	}
)

// DefaultRules returns the thresholds and lookup tables used by the operations team.
func DefaultRules() Rules {
	return Rules{
		DoubtQueue:        "DÚVIDA",
		DoubtCap:          60 * time.Minute,
		DistributionQueue: "Distribuição",
		UnknownQueue:      "Desconhecida",
		OtherGroup:        "OUTROS",
		Groups: []Group{
			{Name: "CAPTURA ANTECIPADA", Queues: []string{"CADASTRO ROBÔ", "INCIDENTE PROCESSUAL", "CADASTRO ANS"}},
			{Name: "SHAREPOINT", Queues: []string{"CADASTRO SHAREPOINT", "ATUALIZAÇÃO - SHAREPOINT"}},
			{Name: "CITAÇÃO ELETRÔNICA", Queues: []string{"CADASTRO CITAÇÃO ELETRÔNICA", "ATUALIZAÇÃO CITAÇÃO ELETRÔNICA"}},
			{Name: "E-MAIL", Queues: []string{"CADASTRO E-MAIL", "OFICIOS E-MAIL", "CADASTRO DE ÓRGÃOS E OFÍCIOS"}},
			{Name: "PRE CADASTRO E DIJUR", Queues: []string{"PRE CADASTRO E DIJUR"}},
		},
		EmailRegistrationQueue: "CADASTRO E-MAIL",
		EmailQueues:            []string{"OFICIOS", "CADASTRO DE ÓRGÃOS E OFÍCIOS"},
		IdleCap:                time.Hour,
		SLA: SLARules{
			Queues:       []string{"CADASTRO ROBÔ", "INCIDENTE PROCESSUAL", "CADASTRO ANS"},
			TaskTypes:    []string{"CADASTRAR ROBO", "CADASTRAR ANS", "ATUALIZAR"},
			DeadlineDays: 3,
		},
	}
}

// Validate rejects rules that would make an aggregator meaningless.
func (r Rules) Validate() error {
	if r.IdleCap <= 0 {
		return fmt.Errorf("idle cap must be positive, got %s", r.IdleCap)
	}
	if r.DoubtCap <= 0 {
		return fmt.Errorf("doubt cap must be positive, got %s", r.DoubtCap)
	}
	if r.SLA.DeadlineDays < 0 {
		return fmt.Errorf("sla deadline must not be negative, got %d", r.SLA.DeadlineDays)
	}
	if r.OtherGroup == "" {
		return fmt.Errorf("other group name is required")
	}
	return nil
}

type Engine struct {
	rules Rules
}

func New(rules Rules) *Engine {
	return &Engine{rules: rules}
}

func (e *Engine) Rules() Rules {
	return e.rules
}

// DiagnosticError replaces a result when a computation failed unexpectedly.
type DiagnosticError struct {
	Op    string
	Cause any
}

func (e *DiagnosticError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Cause)
}

func recoverDiagnostic(op string, err *error) {
	if r := recover(); r != nil {
		*err = &DiagnosticError{Op: op, Cause: r}
	}
}

// tally accumulates operational time for one bucket. count includes rows without a
// parsed operational time, timed only those with one.
type tally struct {
	total time.Duration
	count int
	timed int
}

func (t *tally) add(r record.Record) {
	t.count++
	if r.OperationalTime != nil {
		t.total += *r.OperationalTime
		t.timed++
	}
}

func (t tally) mean() time.Duration {
	return average(t.total, t.count)
}

func (t tally) timedMean() time.Duration {
	return average(t.total, t.timed)
}

func average(total time.Duration, n int) time.Duration {
	if n == 0 {
		return 0
	}
	return total / time.Duration(n)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func sortedDays[V any](m map[time.Time]V) []time.Time {
	days := make([]time.Time, 0, len(m))
	for d := range m {
		days = append(days, d)
	}
	slices.SortFunc(days, func(a, b time.Time) int { return a.Compare(b) })
	return days
}

func containsName(names []string, name string) bool {
	return slices.ContainsFunc(names, func(n string) bool { return record.SameName(n, name) })
}

// uniqueByProtocol keeps the first row of each protocol number.
func uniqueByProtocol(rows []record.Record) []record.Record {
	seen := make(map[string]struct{}, len(rows))
	out := make([]record.Record, 0, len(rows))
	for _, r := range rows {
		if _, ok := seen[r.ProtocolID]; ok {
			continue
		}
		seen[r.ProtocolID] = struct{}{}
		out = append(out, r)
	}
	return out
}
