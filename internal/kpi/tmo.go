package kpi

import (
	"time"

	"github.com/nadmax/opskpi/internal/record"
)

type (
	DayTMO struct {
		Day       time.Time     `json:"day"`
		Count     int           `json:"count"`
		Total     time.Duration `json:"total"`
		TMO       time.Duration `json:"tmo"`
		Formatted string        `json:"formatted"`
	}
	MonthTMO struct {
		Month     time.Time     `json:"month"`
		Label     string        `json:"label"`
		Count     int           `json:"count"`
		Total     time.Duration `json:"total"`
		Minutes   float64       `json:"minutes"`
		Formatted string        `json:"formatted"`
	}
	QueueTMO struct {
		Queue                 string        `json:"queue"`
		Quantity              int           `json:"quantity"`
		Registered            int           `json:"registered"`
		Updated               int           `json:"updated"`
		OutOfScope            int           `json:"out_of_scope"`
		TMORegistration       time.Duration `json:"tmo_registration"`
		TMOUpdate             time.Duration `json:"tmo_update"`
		RegistrationFormatted string        `json:"registration_formatted"`
		UpdateFormatted       string        `json:"update_formatted"`
	}
	AnalystTMO struct {
		Analyst   string        `json:"analyst"`
		Count     int           `json:"count"`
		Total     time.Duration `json:"total"`
		TMO       time.Duration `json:"tmo"`
		Formatted string        `json:"formatted"`
	}
	TeamTMO struct {
		Registration          time.Duration `json:"registration"`
		Update                time.Duration `json:"update"`
		RegistrationFormatted string        `json:"registration_formatted"`
		UpdateFormatted       string        `json:"update_formatted"`
	}
	AnalystMonthTMO struct {
		Month        time.Time     `json:"month"`
		Label        string        `json:"label"`
		General      time.Duration `json:"general"`
		Registration time.Duration `json:"registration"`
		Update       time.Duration `json:"update"`
	}
)

var (
	dayTMOSchema     = record.Schema{record.ColStatus, record.ColOperationalTime, record.ColCompletedAt}
	dayRegTMOSchema  = record.Schema{record.ColCompletion, record.ColOperationalTime, record.ColCompletedAt}
	monthTMOSchema   = record.Schema{record.ColCompletion, record.ColOperationalTime, record.ColCompletedAt}
	queueTMOSchema   = record.Schema{record.ColQueue, record.ColOperationalTime, record.ColCompletion, record.ColProtocol}
	analystTMOSchema = record.Schema{record.ColStatus, record.ColOperationalTime, record.ColAnalyst, record.ColCompletion}
	teamTMOSchema    = record.Schema{record.ColCompletion, record.ColOperationalTime}
	analystMonSchema = record.Schema{record.ColAnalyst, record.ColCompletion, record.ColOperationalTime, record.ColCompletedAt}
)

func (e *Engine) TMOByDay(t *record.Table) ([]DayTMO, error) {
	if err := t.Require(dayTMOSchema); err != nil {
		return nil, err
	}
	return tmoByDay(t, func(r record.Record) bool { return r.Status.Closed() }), nil
}

func (e *Engine) TMOByDayRegistration(t *record.Table) ([]DayTMO, error) {
	if err := t.Require(dayRegTMOSchema); err != nil {
		return nil, err
	}
	return tmoByDay(t, func(r record.Record) bool { return r.Completion == record.CompletionRegistered }), nil
}

// tmoByDay divides by every matching row of the day, timed or not.
func tmoByDay(t *record.Table, keep func(record.Record) bool) []DayTMO {
	buckets := make(map[time.Time]*tally)
	t.Each(func(r record.Record) {
		day, ok := r.CompletionDate()
		if !ok || !keep(r) {
			return
		}
		if buckets[day] == nil {
			buckets[day] = &tally{}
		}
		buckets[day].add(r)
	})

	out := make([]DayTMO, 0, len(buckets))
	for _, day := range sortedDays(buckets) {
		b := buckets[day]
		tmo := b.mean()
		out = append(out, DayTMO{Day: day, Count: b.count, Total: b.total, TMO: tmo, Formatted: FormatMinSec(tmo)})
	}
	return out
}

// TMOByMonth averages over the rows of the month that carry an operational time.
func (e *Engine) TMOByMonth(t *record.Table) ([]MonthTMO, error) {
	if err := t.Require(monthTMOSchema); err != nil {
		return nil, err
	}

	buckets := make(map[time.Time]*tally)
	t.Each(func(r record.Record) {
		if r.CompletedAt == nil || !worked(r.Completion) {
			return
		}
		month := record.MonthOf(*r.CompletedAt)
		if buckets[month] == nil {
			buckets[month] = &tally{}
		}
		buckets[month].add(r)
	})

	out := make([]MonthTMO, 0, len(buckets))
	for _, month := range sortedDays(buckets) {
		b := buckets[month]
		mins := b.timedMean().Minutes()
		out = append(out, MonthTMO{
			Month:     month,
			Label:     MonthLabel(month),
			Count:     b.timed,
			Total:     b.total,
			Minutes:   round(mins, 2),
			Formatted: FormatMonthMinutes(mins),
		})
	}
	return out, nil
}

func worked(c record.Completion) bool {
	switch c {
	case record.CompletionRegistered, record.CompletionUpdated, record.CompletionDistributed:
		return true
	}
	return false
}

type queueCounts struct {
	quantity, registered, updated int
}

// TMOByQueue only considers rows with an operational time. The distribution queue is
// reported last and measured on its distributed rows alone.
func (e *Engine) TMOByQueue(t *record.Table) ([]QueueTMO, error) {
	if err := t.Require(queueTMOSchema); err != nil {
		return nil, err
	}

	var timed []record.Record
	t.Each(func(r record.Record) {
		if r.OperationalTime != nil {
			timed = append(timed, r)
		}
	})

	counts := make(map[string]*queueCounts)
	regTime := make(map[string]*tally)
	updTime := make(map[string]*tally)
	var dist tally
	for _, r := range timed {
		isDistQueue := record.SameName(r.Queue, e.rules.DistributionQueue)
		switch r.Completion {
		case record.CompletionRegistered, record.CompletionUpdated:
			acc := regTime
			if r.Completion == record.CompletionUpdated {
				acc = updTime
			}
			if acc[r.Queue] == nil {
				acc[r.Queue] = &tally{}
			}
			acc[r.Queue].add(r)

			if isDistQueue {
				continue
			}
			c := counts[r.Queue]
			if c == nil {
				c = &queueCounts{}
				counts[r.Queue] = c
			}
			c.quantity++
			if r.Completion == record.CompletionRegistered {
				c.registered++
			} else {
				c.updated++
			}
		case record.CompletionDistributed:
			if isDistQueue {
				dist.add(r)
			}
		}
	}

	outOfScope := make(map[string]int)
	var distOutOfScope int
	for _, r := range uniqueByProtocol(timed) {
		if r.Completion == record.CompletionRegistered || r.Completion == record.CompletionUpdated {
			continue
		}
		if record.SameName(r.Queue, e.rules.DistributionQueue) {
			distOutOfScope++
			continue
		}
		outOfScope[r.Queue]++
	}

	out := make([]QueueTMO, 0, len(counts)+1)
	for _, queue := range sortedKeys(counts) {
		c := counts[queue]
		row := QueueTMO{
			Queue:      queue,
			Quantity:   c.quantity,
			Registered: c.registered,
			Updated:    c.updated,
			OutOfScope: outOfScope[queue],
		}
		if reg := regTime[queue]; reg != nil {
			row.TMORegistration = reg.mean()
		}
		if upd := updTime[queue]; upd != nil {
			row.TMOUpdate = upd.mean()
		}
		row.RegistrationFormatted = record.FormatClock(row.TMORegistration)
		row.UpdateFormatted = record.FormatClock(row.TMOUpdate)
		out = append(out, row)
	}

	if dist.count > 0 {
		tmo := dist.mean()
		out = append(out, QueueTMO{
			Queue:                 e.rules.DistributionQueue,
			Quantity:              dist.count,
			OutOfScope:            distOutOfScope,
			TMORegistration:       tmo,
			RegistrationFormatted: record.FormatClock(tmo),
			UpdateFormatted:       record.FormatClock(0),
		})
	}
	return out, nil
}

// doubtful reports rows of the doubt queue whose operational time exceeds the cap.
func (e *Engine) doubtful(r record.Record) bool {
	return r.OperationalTime != nil &&
		*r.OperationalTime > e.rules.DoubtCap &&
		record.SameName(r.Queue, e.rules.DoubtQueue)
}

// TMOByAnalyst measures registered rows only. Doubt-queue outliers are dropped when the
// table carries the queue column.
func (e *Engine) TMOByAnalyst(t *record.Table) ([]AnalystTMO, error) {
	if err := t.Require(analystTMOSchema); err != nil {
		return nil, err
	}
	withQueue := t.Has(record.ColQueue)

	buckets := make(map[string]*tally)
	t.Each(func(r record.Record) {
		if !r.Status.Closed() || r.Analyst == "" {
			return
		}
		if withQueue && e.doubtful(r) {
			return
		}
		b := buckets[r.Analyst]
		if b == nil {
			b = &tally{}
			buckets[r.Analyst] = b
		}
		if r.Completion == record.CompletionRegistered {
			b.add(r)
		}
	})

	out := make([]AnalystTMO, 0, len(buckets))
	for _, analyst := range sortedKeys(buckets) {
		b := buckets[analyst]
		tmo := b.mean()
		out = append(out, AnalystTMO{Analyst: analyst, Count: b.count, Total: b.total, TMO: tmo, Formatted: record.FormatClock(tmo)})
	}
	return out, nil
}

func (e *Engine) TeamTMO(t *record.Table) (TeamTMO, error) {
	if err := t.Require(teamTMOSchema); err != nil {
		return TeamTMO{}, err
	}

	var reg, upd tally
	t.Each(func(r record.Record) {
		switch r.Completion {
		case record.CompletionRegistered:
			reg.add(r)
		case record.CompletionUpdated:
			upd.add(r)
		}
	})

	team := TeamTMO{Registration: reg.timedMean(), Update: upd.timedMean()}
	team.RegistrationFormatted = record.FormatClock(team.Registration)
	team.UpdateFormatted = record.FormatClock(team.Update)
	return team, nil
}

// TMOByAnalystMonth reports the months in which the analyst worked any code, with a
// general, registration and update mean for each.
func (e *Engine) TMOByAnalystMonth(t *record.Table, analyst string) ([]AnalystMonthTMO, error) {
	if err := t.Require(analystMonSchema); err != nil {
		return nil, err
	}

	type monthTallies struct{ general, reg, upd tally }
	buckets := make(map[time.Time]*monthTallies)
	t.Each(func(r record.Record) {
		if r.CompletedAt == nil || !worked(r.Completion) || !record.SameName(r.Analyst, analyst) {
			return
		}
		month := record.MonthOf(*r.CompletedAt)
		b := buckets[month]
		if b == nil {
			b = &monthTallies{}
			buckets[month] = b
		}
		b.general.add(r)
		switch r.Completion {
		case record.CompletionRegistered:
			b.reg.add(r)
		case record.CompletionUpdated:
			b.upd.add(r)
		}
	})

	out := make([]AnalystMonthTMO, 0, len(buckets))
	for _, month := range sortedDays(buckets) {
		b := buckets[month]
		out = append(out, AnalystMonthTMO{
			Month:        month,
			Label:        MonthLabel(month),
			General:      b.general.timedMean(),
			Registration: b.reg.timedMean(),
			Update:       b.upd.timedMean(),
		})
	}
	return out, nil
}
