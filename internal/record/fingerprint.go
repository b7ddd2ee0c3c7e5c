package record

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// Fingerprint identifies a row by every field it carries; two uploads of the same export line collide.
func (r Record) Fingerprint() string {
	fields := []string{
		r.ProtocolID,
		r.Analyst,
		string(r.Status),
		string(r.Completion),
		r.Queue,
		durationKey(r.OperationalTime),
		timeKey(r.StartedAt),
		timeKey(r.CompletedAt),
		timeKey(r.CreatedAt),
		r.TaskType,
		r.CauseType,
	}

	sum := sha256.Sum256([]byte(strings.Join(fields, "\x1f")))
	return hex.EncodeToString(sum[:])
}

func durationKey(d *time.Duration) string {
	if d == nil {
		return ""
	}
	return strconv.FormatInt(int64(*d), 10)
}

func timeKey(t *time.Time) string {
	if t == nil {
		return ""
	}
	return strconv.FormatInt(t.UnixNano(), 10)
}
