package kpi

import (
	"github.com/nadmax/opskpi/internal/record"
)

type (
	// GroupProduction counts every row of a group. OutOfScopeUnique repeats the
	// out-of-scope count after keeping one row per protocol.
	GroupProduction struct {
		Group            string `json:"group"`
		Rows             int    `json:"rows"`
		Registered       int    `json:"registered"`
		Updated          int    `json:"updated"`
		OutOfScope       int    `json:"out_of_scope"`
		OutOfScopeUnique int    `json:"out_of_scope_unique"`
	}
	EmailProduction struct {
		Label      string `json:"label"`
		Quantity   int    `json:"quantity"`
		Registered int    `json:"registered"`
		Updated    int    `json:"updated"`
		OutOfScope int    `json:"out_of_scope"`
	}
)

var (
	groupSchema = record.Schema{record.ColQueue, record.ColCompletion, record.ColProtocol}
	emailSchema = record.Schema{record.ColQueue, record.ColCompletion, record.ColProtocol, record.ColTaskType}
)

// GroupOf maps a queue to its configured group, or to the catch-all group.
func (e *Engine) GroupOf(queue string) string {
	for _, g := range e.rules.Groups {
		if containsName(g.Queues, queue) {
			return g.Name
		}
	}
	return e.rules.OtherGroup
}

// ProductionByGroup lists groups in configured order with the catch-all last, skipping
// groups without rows. The Rows column sums to the table length.
func (e *Engine) ProductionByGroup(t *record.Table) ([]GroupProduction, error) {
	if err := t.Require(groupSchema); err != nil {
		return nil, err
	}

	rows := t.Records()
	byGroup := make(map[string]*GroupProduction)
	for _, r := range rows {
		name := e.GroupOf(r.Queue)
		g := byGroup[name]
		if g == nil {
			g = &GroupProduction{Group: name}
			byGroup[name] = g
		}
		g.Rows++
		switch r.Completion {
		case record.CompletionRegistered:
			g.Registered++
		case record.CompletionUpdated:
			g.Updated++
		default:
			g.OutOfScope++
		}
	}
	for _, r := range uniqueByProtocol(rows) {
		if r.Completion != record.CompletionRegistered && r.Completion != record.CompletionUpdated {
			byGroup[e.GroupOf(r.Queue)].OutOfScopeUnique++
		}
	}

	order := make([]string, 0, len(e.rules.Groups)+1)
	for _, g := range e.rules.Groups {
		order = append(order, g.Name)
	}
	order = append(order, e.rules.OtherGroup)

	out := make([]GroupProduction, 0, len(byGroup))
	for _, name := range order {
		if g, ok := byGroup[name]; ok {
			out = append(out, *g)
			delete(byGroup, name)
		}
	}
	return out, nil
}

// EmailProductionDetail splits the e-mail registration queue by task type and reports each
// other e-mail queue on its own line.
func (e *Engine) EmailProductionDetail(t *record.Table) ([]EmailProduction, error) {
	if err := t.Require(emailSchema); err != nil {
		return nil, err
	}

	byTask := make(map[string][]record.Record)
	byQueue := make(map[string][]record.Record)
	t.Each(func(r record.Record) {
		switch {
		case record.SameName(r.Queue, e.rules.EmailRegistrationQueue):
			byTask[r.TaskType] = append(byTask[r.TaskType], r)
		case containsName(e.rules.EmailQueues, r.Queue):
			byQueue[r.Queue] = append(byQueue[r.Queue], r)
		}
	})

	out := make([]EmailProduction, 0, len(byTask)+len(byQueue))
	for _, task := range sortedKeys(byTask) {
		out = append(out, emailLine(task, byTask[task]))
	}
	for _, queue := range sortedKeys(byQueue) {
		out = append(out, emailLine(queue, byQueue[queue]))
	}
	return out, nil
}

func emailLine(label string, rows []record.Record) EmailProduction {
	line := EmailProduction{Label: label, Quantity: len(rows)}
	for _, r := range rows {
		switch r.Completion {
		case record.CompletionRegistered:
			line.Registered++
		case record.CompletionUpdated:
			line.Updated++
		}
	}
	for _, r := range uniqueByProtocol(rows) {
		if r.Completion != record.CompletionRegistered && r.Completion != record.CompletionUpdated {
			line.OutOfScope++
		}
	}
	return line
}
