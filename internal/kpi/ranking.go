package kpi

import (
	"slices"

	"github.com/nadmax/opskpi/internal/record"
)

type Tier int

const (
	TierBlue Tier = iota + 1
	TierGreen
	TierYellow
	TierRed
)

var tierColors = map[Tier]string{
	TierBlue:   "rgba(135, 206, 250, 0.4)",
	TierGreen:  "rgba(144, 238, 144, 0.4)",
	TierYellow: "rgba(255, 255, 102, 0.4)",
	TierRed:    "rgba(255, 99, 132, 0.4)",
}

func (t Tier) Color() string {
	return tierColors[t]
}

type RankRow struct {
	Position    int    `json:"position"`
	Analyst     string `json:"analyst"`
	Registered  int    `json:"registered"`
	Distributed int    `json:"distributed"`
	Updated     int    `json:"updated"`
	Total       int    `json:"total"`
	Tier        Tier   `json:"tier"`
	Color       string `json:"color"`
}

var rankingSchema = record.Schema{record.ColAnalyst, record.ColCompletion}

// TierSize is the number of positions per tier for n ranked analysts.
func TierSize(n int) int {
	if n > 12 {
		return 4
	}
	return (n + 3) / 4
}

// TierFor maps a 1-based position to its tier; positions past the fourth tier stay red.
func TierFor(position, n int) Tier {
	size := TierSize(n)
	if size == 0 {
		return TierRed
	}
	tier := Tier((position-1)/size + 1)
	return min(tier, TierRed)
}

// Rank orders the selected analysts, or every analyst when selected is empty, by total
// work descending. Analysts with equal totals keep their first-appearance order.
func (e *Engine) Rank(t *record.Table, selected []string) ([]RankRow, error) {
	if err := t.Require(rankingSchema); err != nil {
		return nil, err
	}

	index := make(map[string]int)
	var rows []RankRow
	t.Each(func(r record.Record) {
		if r.Analyst == "" {
			return
		}
		if len(selected) > 0 && !containsName(selected, r.Analyst) {
			return
		}
		i, ok := index[r.Analyst]
		if !ok {
			i = len(rows)
			index[r.Analyst] = i
			rows = append(rows, RankRow{Analyst: r.Analyst})
		}
		row := &rows[i]
		switch r.Completion {
		case record.CompletionRegistered:
			row.Registered++
		case record.CompletionDistributed:
			row.Distributed++
		case record.CompletionUpdated:
			row.Updated++
		}
	})

	for i := range rows {
		rows[i].Total = rows[i].Registered + rows[i].Distributed + rows[i].Updated
	}
	slices.SortStableFunc(rows, func(a, b RankRow) int { return b.Total - a.Total })

	for i := range rows {
		rows[i].Position = i + 1
		rows[i].Tier = TierFor(i+1, len(rows))
		rows[i].Color = rows[i].Tier.Color()
	}
	return rows, nil
}
