package kpi

import (
	"fmt"
	"math"
	"time"

	"github.com/nadmax/opskpi/internal/record"
)

var monthNames = [...]string{
	"Janeiro", "Fevereiro", "Março", "Abril", "Maio", "Junho",
	"Julho", "Agosto", "Setembro", "Outubro", "Novembro", "Dezembro",
}

// FormatMinSec renders d as "M min Ss"; zero renders as "0 min 0s".
func FormatMinSec(d time.Duration) string {
	if d <= 0 {
		return "0 min 0s"
	}
	secs := int64(d / time.Second)
	return fmt.Sprintf("%d min %ds", secs/60, secs%60)
}

// FormatMonthMinutes renders a mean in minutes as "Xh Ym Zs", or "X min Ys" under an hour.
// The value is rounded to whole seconds before the hour threshold is checked.
func FormatMonthMinutes(minutes float64) string {
	if minutes <= 0 || math.IsNaN(minutes) || math.IsInf(minutes, 0) {
		return "0 min 0s"
	}
	secs := int64(math.Round(minutes * 60))
	if secs >= 3600 {
		return fmt.Sprintf("%dh %dm %ds", secs/3600, secs%3600/60, secs%60)
	}
	return fmt.Sprintf("%d min %ds", secs/60, secs%60)
}

// FormatIdle renders the time-of-day part of d, dropping whole days.
func FormatIdle(d time.Duration) string {
	if d <= 0 {
		return record.FormatClock(0)
	}
	return record.FormatClock(d % (24 * time.Hour))
}

// MonthLabel renders "Março de 2024".
func MonthLabel(month time.Time) string {
	return fmt.Sprintf("%s de %d", monthNames[month.Month()-1], month.Year())
}

func round(value float64, places int) float64 {
	factor := math.Pow(10, float64(places))
	return math.Round(value*factor) / factor
}

func percent(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return round(float64(part)/float64(total)*100, 2)
}
