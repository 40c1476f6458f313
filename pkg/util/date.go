package util

import (
	"strconv"
	"time"
)

// DateTimeLayout is the layout used for human readable timestamps in exports.
const DateTimeLayout = "2006-01-02 15:04:05"

// ParseTime tries RFC3339, RFC3339Nano, DateTimeLayout (UTC) and unix seconds. Returns (t, true) if any worked.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	if t, err := time.ParseInLocation(DateTimeLayout, s, time.UTC); err == nil {
		return t, true
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
		return time.Unix(ts, 0), true
	}
	return time.Time{}, false
}

// ParseTimeDefault parses time or returns default if empty/invalid.
func ParseTimeDefault(s string, def time.Time) time.Time {
	if t, ok := ParseTime(s); ok {
		return t
	}
	return def
}

// FormatUnixUTC renders unix seconds with DateTimeLayout in UTC.
func FormatUnixUTC(ts int64) string {
	return time.Unix(ts, 0).UTC().Format(DateTimeLayout)
}
