package report

import (
	"github.com/nadmax/opskpi/internal/kpi"
	"github.com/nadmax/opskpi/internal/record"
	"github.com/nadmax/opskpi/internal/repository/models"
)

var tierNames = map[kpi.Tier]string{
	kpi.TierBlue:   "Azul",
	kpi.TierGreen:  "Verde",
	kpi.TierYellow: "Amarelo",
	kpi.TierRed:    "Vermelho",
}

func slaParams(e *kpi.Engine, f Filter) kpi.SLAParams {
	return e.Params(f.From, f.To)
}

func dayTMORows(days []kpi.DayTMO) [][]string {
	rows := make([][]string, 0, len(days))
	for _, d := range days {
		rows = append(rows, []string{day(d.Day), itoa(d.Count), d.Formatted})
	}
	return rows
}

func init() {
	register("tmo-day", "TMO por Dia", models.DatasetTasks, tabular(
		[]string{"Dia", "Quantidade", "TMO"},
		func(e *kpi.Engine, t *record.Table, _ Filter) ([]kpi.DayTMO, error) { return e.TMOByDay(t) },
		dayTMORows,
	))

	register("tmo-day-registration", "TMO de Cadastro por Dia", models.DatasetTasks, tabular(
		[]string{"Dia", "Quantidade", "TMO"},
		func(e *kpi.Engine, t *record.Table, _ Filter) ([]kpi.DayTMO, error) { return e.TMOByDayRegistration(t) },
		dayTMORows,
	))

	register("tmo-month", "TMO por Mês", models.DatasetTasks, tabular(
		[]string{"Mês", "Quantidade", "TMO (min)", "TMO"},
		func(e *kpi.Engine, t *record.Table, _ Filter) ([]kpi.MonthTMO, error) { return e.TMOByMonth(t) },
		func(months []kpi.MonthTMO) [][]string {
			rows := make([][]string, 0, len(months))
			for _, m := range months {
				rows = append(rows, []string{m.Label, itoa(m.Count), fmtFloat(m.Minutes), m.Formatted})
			}
			return rows
		},
	))

	register("tmo-queue", "TMO por Fila", models.DatasetTasks, tabular(
		[]string{"Fila", "Quantidade", "Cadastrados", "Atualizados", "Fora do Escopo", "TMO Cadastro", "TMO Atualização"},
		func(e *kpi.Engine, t *record.Table, _ Filter) ([]kpi.QueueTMO, error) { return e.TMOByQueue(t) },
		func(queues []kpi.QueueTMO) [][]string {
			rows := make([][]string, 0, len(queues))
			for _, q := range queues {
				rows = append(rows, []string{
					q.Queue, itoa(q.Quantity), itoa(q.Registered), itoa(q.Updated), itoa(q.OutOfScope),
					q.RegistrationFormatted, q.UpdateFormatted,
				})
			}
			return rows
		},
	))

	register("tmo-analyst", "TMO por Analista", models.DatasetTasks, tabular(
		[]string{"Analista", "Cadastrados", "Tempo Total", "TMO"},
		func(e *kpi.Engine, t *record.Table, _ Filter) ([]kpi.AnalystTMO, error) { return e.TMOByAnalyst(t) },
		func(analysts []kpi.AnalystTMO) [][]string {
			rows := make([][]string, 0, len(analysts))
			for _, a := range analysts {
				rows = append(rows, []string{a.Analyst, itoa(a.Count), record.FormatClock(a.Total), a.Formatted})
			}
			return rows
		},
	))

	register("tmo-analyst-queue", "TMO do Analista por Fila", models.DatasetTasks, tabular(
		[]string{"Fila", "Quantidade", "TMO Cadastro", "TMO Atualização"},
		func(e *kpi.Engine, t *record.Table, f Filter) ([]kpi.AnalystQueueTMO, error) {
			return e.QueueTMOForAnalyst(t, f.Analyst)
		},
		func(queues []kpi.AnalystQueueTMO) [][]string {
			rows := make([][]string, 0, len(queues))
			for _, q := range queues {
				rows = append(rows, []string{q.Queue, itoa(q.Quantity), q.RegistrationFormatted, q.UpdateFormatted})
			}
			return rows
		},
	))

	register("tmo-analyst-day", "TMO de Cadastro por Analista e Dia", models.DatasetTasks, tabular(
		[]string{"Analista", "TMO", "Quantidade", "Dia"},
		func(e *kpi.Engine, t *record.Table, _ Filter) ([]kpi.AnalystDayTMO, error) {
			return e.DailyRegistrationTMOByAnalyst(t)
		},
		func(days []kpi.AnalystDayTMO) [][]string {
			rows := make([][]string, 0, len(days))
			for _, d := range days {
				rows = append(rows, []string{d.Analyst, d.Formatted, itoa(d.Count), day(d.Day)})
			}
			return rows
		},
	))

	registerComparison("tmo-comparison", "Comparativo de TMO", tabular(
		[]string{"Analista", "TMO Antes", "Qtd Antes", "TMO Depois", "Qtd Depois"},
		func(e *kpi.Engine, t *record.Table, f Filter) ([]kpi.TMOComparison, error) {
			return e.CompareTMO(t, f.Analysts, f.Before(), f.After)
		},
		func(cmp []kpi.TMOComparison) [][]string {
			rows := make([][]string, 0, len(cmp))
			for _, c := range cmp {
				rows = append(rows, []string{c.Analyst, c.BeforeFormatted, itoa(c.BeforeCount), c.AfterFormatted, itoa(c.AfterCount)})
			}
			return rows
		},
	))

	register("causes", "TP Causa", models.DatasetTasks, tabular(
		[]string{"TP Causa", "Quantidade"},
		func(e *kpi.Engine, t *record.Table, f Filter) ([]kpi.CauseCount, error) {
			return e.CauseBreakdown(t, f.Analyst)
		},
		func(causes []kpi.CauseCount) [][]string {
			rows := make([][]string, 0, len(causes))
			for _, c := range causes {
				rows = append(rows, []string{c.Cause, itoa(c.Count)})
			}
			return rows
		},
	))

	register("productivity", "Produtividade Diária", models.DatasetTasks, tabular(
		[]string{"Dia", "Finalizações"},
		func(e *kpi.Engine, t *record.Table, _ Filter) ([]kpi.DayProductivity, error) {
			return e.DailyProductivity(t)
		},
		func(days []kpi.DayProductivity) [][]string {
			rows := make([][]string, 0, len(days))
			for _, d := range days {
				rows = append(rows, []string{day(d.Day), itoa(d.Count)})
			}
			return rows
		},
	))

	register("productivity-registration", "Produtividade de Cadastro", models.DatasetTasks, tabular(
		[]string{"Dia", "Cadastrados", "Atualizados", "Total"},
		func(e *kpi.Engine, t *record.Table, _ Filter) ([]kpi.DayRegistrationProductivity, error) {
			return e.DailyRegistrationProductivity(t)
		},
		func(days []kpi.DayRegistrationProductivity) [][]string {
			rows := make([][]string, 0, len(days))
			for _, d := range days {
				rows = append(rows, []string{day(d.Day), itoa(d.Registered), itoa(d.Updated), itoa(d.Total)})
			}
			return rows
		},
	))

	register("production-group", "Produção por Grupo", models.DatasetTasks, tabular(
		[]string{"Grupo", "Quantidade", "Cadastrados", "Atualizados", "Fora do Escopo", "Fora do Escopo (protocolos únicos)"},
		func(e *kpi.Engine, t *record.Table, _ Filter) ([]kpi.GroupProduction, error) {
			return e.ProductionByGroup(t)
		},
		func(groups []kpi.GroupProduction) [][]string {
			rows := make([][]string, 0, len(groups))
			for _, g := range groups {
				rows = append(rows, []string{
					g.Group, itoa(g.Rows), itoa(g.Registered), itoa(g.Updated), itoa(g.OutOfScope), itoa(g.OutOfScopeUnique),
				})
			}
			return rows
		},
	))

	register("production-email", "Produção E-mail", models.DatasetTasks, tabular(
		[]string{"Tarefa/Fila", "Quantidade", "Cadastrados", "Atualizados", "Fora do Escopo"},
		func(e *kpi.Engine, t *record.Table, _ Filter) ([]kpi.EmailProduction, error) {
			return e.EmailProductionDetail(t)
		},
		func(lines []kpi.EmailProduction) [][]string {
			rows := make([][]string, 0, len(lines))
			for _, l := range lines {
				rows = append(rows, []string{l.Label, itoa(l.Quantity), itoa(l.Registered), itoa(l.Updated), itoa(l.OutOfScope)})
			}
			return rows
		},
	))

	register("idle", "Tempo Ocioso", models.DatasetTasks, tabular(
		[]string{"Analista", "Dia", "Tempo Ocioso"},
		func(e *kpi.Engine, t *record.Table, _ Filter) ([]kpi.IdleRow, error) { return e.IdleTime(t) },
		func(idle []kpi.IdleRow) [][]string {
			rows := make([][]string, 0, len(idle))
			for _, r := range idle {
				rows = append(rows, []string{r.Analyst, day(r.Day), r.Formatted})
			}
			return rows
		},
	))

	register("ranking", "Ranking de Analistas", models.DatasetTasks, tabular(
		[]string{"Posição", "Analista", "Cadastrados", "Realizados", "Atualizados", "Total", "Faixa"},
		func(e *kpi.Engine, t *record.Table, f Filter) ([]kpi.RankRow, error) { return e.Rank(t, f.Analysts) },
		func(ranking []kpi.RankRow) [][]string {
			rows := make([][]string, 0, len(ranking))
			for _, r := range ranking {
				rows = append(rows, []string{
					itoa(r.Position) + "º", r.Analyst, itoa(r.Registered), itoa(r.Distributed), itoa(r.Updated),
					itoa(r.Total), tierNames[r.Tier],
				})
			}
			return rows
		},
	))

	register("sla", "SLA por Fila", models.DatasetSLA, tabular(
		[]string{"Fila", "Entradas", "Tratados", "Dentro do Prazo", "% SLA"},
		func(e *kpi.Engine, t *record.Table, f Filter) (kpi.SLAReport, error) { return e.SLA(t, slaParams(e, f)) },
		func(rep kpi.SLAReport) [][]string {
			rows := make([][]string, 0, len(rep.Queues)+1)
			for _, q := range rep.Queues {
				rows = append(rows, []string{q.Queue, itoa(q.Entries), itoa(q.Treated), itoa(q.OnTime), pct(q.Percent)})
			}
			return append(rows, []string{"Total", itoa(rep.Entries), "", itoa(rep.OnTime), pct(rep.Overall)})
		},
	))

	register("intake", "Entradas por Dia", models.DatasetSLA, tabular(
		[]string{"Dia", "Fila", "Entradas"},
		func(e *kpi.Engine, t *record.Table, f Filter) ([]kpi.IntakeDay, error) {
			return e.IntakeByDay(t, slaParams(e, f))
		},
		func(days []kpi.IntakeDay) [][]string {
			var rows [][]string
			for _, d := range days {
				for _, q := range d.Queues {
					rows = append(rows, []string{day(d.Day), q.Queue, itoa(q.Count)})
				}
				rows = append(rows, []string{day(d.Day), "Total", itoa(d.Total)})
			}
			return rows
		},
	))

	register("sla-daily", "Tratamento Diário", models.DatasetSLA, tabular(
		[]string{"Dia", "Fila", "Entradas", "Tratados", "% Tratado"},
		func(e *kpi.Engine, t *record.Table, f Filter) ([]kpi.TreatmentDay, error) {
			return e.DailyTreatment(t, slaParams(e, f))
		},
		func(days []kpi.TreatmentDay) [][]string {
			var rows [][]string
			for _, d := range days {
				for _, q := range d.Queues {
					rows = append(rows, []string{day(d.Day), q.Queue, itoa(q.Entries), itoa(q.Treated), ""})
				}
				rows = append(rows, []string{day(d.Day), "Total", itoa(d.Entries), itoa(d.Treated), pct(d.Rate)})
			}
			return rows
		},
	))
}
