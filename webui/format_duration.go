package webui

import (
	"fmt"
	"time"
)

var durationUnits = []struct {
	suffix string
	size   time.Duration
}{
	{"d", 24 * time.Hour},
	{"h", time.Hour},
	{"m", time.Minute},
	{"s", time.Second},
}

// FormatDuration renders d with its two largest units, e.g. "2h 34m" or
// "3d 5h". Durations under a second are shown in milliseconds.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		return "-" + FormatDuration(-d)
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}

	for i, u := range durationUnits {
		if d < u.size {
			continue
		}
		major := d / u.size
		if i == len(durationUnits)-1 {
			return fmt.Sprintf("%d%s", major, u.suffix)
		}
		minor := durationUnits[i+1]
		return fmt.Sprintf("%d%s %d%s", major, u.suffix, (d%u.size)/minor.size, minor.suffix)
	}
	return "0s"
}
