package parser

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrDurationFormat is returned for durations not shaped HH:MM:SS[:mmm].
	ErrDurationFormat = errors.New("invalid duration format")

	// ErrTimestampFormat is returned for unparsable timestamp fields.
	ErrTimestampFormat = errors.New("invalid timestamp format")
)

// timestampLayout matches "yyyy-MM-dd HH:mm:ss"; SIPp appends ":SSS" which
// time.Parse cannot express, so milliseconds are handled separately.
const timestampLayout = "2006-01-02 15:04:05"

// epochField is the timestamp field used by the empty snapshot.
const epochField = "1970-01-01\t00:00:00:000\t0.000000"

// ParseDuration decodes SIPp durations of the form HH:MM:SS[:mmm].
// Hours may exceed 24.
func ParseDuration(s string) (time.Duration, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 3 || len(parts) > 4 {
		return 0, fmt.Errorf("%w: %q", ErrDurationFormat, s)
	}

	var fields [4]int64
	for i, p := range parts {
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("%w: %q", ErrDurationFormat, s)
		}
		fields[i] = n
	}

	return time.Duration(fields[0])*time.Hour +
		time.Duration(fields[1])*time.Minute +
		time.Duration(fields[2])*time.Second +
		time.Duration(fields[3])*time.Millisecond, nil
}

// ParseTimestamp decodes a SIPp timestamp field. The field holds the date,
// the time of day and the unix time separated by tabs, e.g.
// "2016-02-26\t15:13:39:882\t1456528419.882808". The wall clock part is
// interpreted as UTC since SIPp writes no zone.
func ParseTimestamp(s string) (time.Time, error) {
	fields := strings.Fields(s)
	if len(fields) < 2 {
		return time.Time{}, fmt.Errorf("%w: %q", ErrTimestampFormat, s)
	}
	joined := fields[0] + " " + fields[1]

	sep := strings.LastIndexByte(joined, ':')
	if sep < 0 || len(joined)-sep-1 != 3 {
		return time.Time{}, fmt.Errorf("%w: %q", ErrTimestampFormat, s)
	}

	t, err := time.ParseInLocation(timestampLayout, joined[:sep], time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q: %v", ErrTimestampFormat, s, err)
	}
	ms, err := strconv.Atoi(joined[sep+1:])
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrTimestampFormat, s)
	}

	return t.Add(time.Duration(ms) * time.Millisecond), nil
}

// FormatDuration renders d in the SIPp HH:MM:SS:mmm form.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	sec := d / time.Second
	d -= sec * time.Second
	return fmt.Sprintf("%02d:%02d:%02d:%03d", h, m, sec, d/time.Millisecond)
}
