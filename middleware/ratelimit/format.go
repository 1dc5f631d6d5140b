package ratelimit

import (
	"math"
	"strconv"
	"time"
)

func formatInt(v int) string { return strconv.Itoa(v) }

// formatSeconds arredonda d para cima, com mínimo de 1s (Retry-After: 0
// convidaria o cliente a repetir na hora).
func formatSeconds(d time.Duration) string {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}

func formatUnix(t time.Time) string { return strconv.FormatInt(t.Unix(), 10) }
