package console

import (
	"strconv"
	"strings"
	"time"
)

// maskKey shows the first eight characters of a key followed by "...".
// Keys of eight characters or fewer are shown as is.
func maskKey(key string) string {
	r := []rune(key)
	if len(r) <= 8 {
		return key
	}
	return string(r[:8]) + "..."
}

// statusColor maps a key status to a badge color.
func statusColor(status string) string {
	switch status {
	case "active":
		return "success"
	case "inactive":
		return "secondary"
	case "error":
		return "danger"
	default:
		return "secondary"
	}
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC1123,
	time.RFC1123Z,
}

// formatDate renders a backend timestamp in local time. Empty input gives
// "-"; unparsable input is returned unchanged.
func formatDate(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "-"
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Local().Format("2006-01-02 15:04:05")
		}
	}
	return s
}

// hourLabel turns "2006-01-02 15:00" into "15:00" style "H:00" labels.
func hourLabel(hour string) string {
	for _, layout := range []string{"2006-01-02 15:04", "2006-01-02 15:04:05", time.RFC3339, "2006-01-02T15:04"} {
		if t, err := time.Parse(layout, hour); err == nil {
			return strconv.Itoa(t.Hour()) + ":00"
		}
	}
	if i := strings.LastIndex(hour, " "); i >= 0 {
		hour = hour[i+1:]
	}
	if h, _, ok := strings.Cut(hour, ":"); ok {
		if n, err := strconv.Atoi(h); err == nil {
			return strconv.Itoa(n) + ":00"
		}
	}
	return hour
}

// preview shortens s to n runes for list views.
func preview(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
