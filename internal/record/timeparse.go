package record

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const TimestampLayout = "02/01/2006 15:04:05"

var timestampLayouts = []string{
	TimestampLayout,
	"02/01/2006 15:04",
	"02/01/2006",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
	time.RFC3339Nano,
}

var daysPrefix = regexp.MustCompile(`(?i)^(\d+)\s+days?,?\s*(.*)$`)

// excelEpoch is day zero of spreadsheet serial dates.
var excelEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

// ParseDuration parses an operational time cell. It returns nil for empty,
// malformed or negative input instead of failing.
func ParseDuration(raw string) *time.Duration {
	s := strings.TrimSpace(raw)
	if s == "" || strings.HasPrefix(s, "-") {
		return nil
	}

	var days int
	if m := daysPrefix.FindStringSubmatch(s); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return nil
		}
		days = n
		s = strings.TrimSpace(m[2])
		if s == "" {
			s = "0:00:00"
		}
	}

	d, ok := parseClock(s)
	if !ok {
		d, ok = parseLoose(s)
	}
	if !ok || d < 0 {
		return nil
	}

	d += time.Duration(days) * 24 * time.Hour
	return &d
}

func parseClock(s string) (time.Duration, bool) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, false
	}

	var hours, minutes int
	var err error
	withHours := len(parts) == 3
	if withHours {
		if hours, err = strconv.Atoi(parts[0]); err != nil || hours < 0 {
			return 0, false
		}
		parts = parts[1:]
	}
	if minutes, err = strconv.Atoi(parts[0]); err != nil || minutes < 0 {
		return 0, false
	}
	if withHours && minutes > 59 {
		return 0, false
	}

	seconds, err := strconv.ParseFloat(parts[1], 64)
	if err != nil || seconds < 0 || seconds >= 60 {
		return 0, false
	}

	d := time.Duration(hours)*time.Hour +
		time.Duration(minutes)*time.Minute +
		time.Duration(math.Round(seconds*1e9))
	return d, true
}

func parseLoose(s string) (time.Duration, bool) {
	if d, err := time.ParseDuration(s); err == nil {
		return d, true
	}

	// Spreadsheet time cells read unformatted are fractions of a day.
	f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
	if err != nil || f < 0 || f >= 1 {
		return 0, false
	}

	return time.Duration(math.Round(f*86400)) * time.Second, true
}

// ParseTimestamp parses a date cell in loc (UTC when nil). It returns nil for empty or malformed input.
func ParseTimestamp(raw string, loc *time.Location) *time.Time {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}
	if loc == nil {
		loc = time.UTC
	}

	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return &t
		}
	}

	if f, err := strconv.ParseFloat(s, 64); err == nil && f >= 1 && f < 100000 {
		whole := math.Floor(f)
		secs := math.Round((f - whole) * 86400)
		base := excelEpoch.AddDate(0, 0, int(whole))
		t := time.Date(base.Year(), base.Month(), base.Day(), 0, 0, int(secs), 0, loc)
		return &t
	}

	return nil
}

// FormatTimestamp renders t in the export's day-first layout.
func FormatTimestamp(t time.Time) string {
	return t.Format(TimestampLayout)
}

// FormatClock renders d as HH:MM:SS with unbounded hours, truncating sub-second precision.
func FormatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}
