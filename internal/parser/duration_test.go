package parser

import (
	"errors"
	"testing"
	"time"
)

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"18:14:43:202", 18*time.Hour + 14*time.Minute + 43*time.Second + 202*time.Millisecond, false},
		{"00:00:05", 5 * time.Second, false},
		{"00:00:00:000", 0, false},
		{"100:00:00", 100 * time.Hour, false},
		{" 01:02:03:004 ", time.Hour + 2*time.Minute + 3*time.Second + 4*time.Millisecond, false},
		{"aa:00:00", 0, true},
		{"00:bb:00", 0, true},
		{"00:00:cc", 0, true},
		{"00:00", 0, true},
		{"", 0, true},
		{"00:00:00:000:000", 0, true},
		{"-1:00:00", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDuration(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrDurationFormat) {
					t.Errorf("ParseDuration(%q) error = %v, want ErrDurationFormat", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseDuration(%q) error = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseDuration(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseDuration_Components(t *testing.T) {
	d, err := ParseDuration("18:14:43:202")
	if err != nil {
		t.Fatalf("ParseDuration() error = %v", err)
	}
	if h := int64(d.Hours()); h != 18 {
		t.Errorf("hours = %d, want 18", h)
	}
	if m := int64(d.Minutes()); m != 18*60+14 {
		t.Errorf("minutes = %d, want %d", m, 18*60+14)
	}
	if ms := (d % time.Second).Milliseconds(); ms != 202 {
		t.Errorf("millis = %d, want 202", ms)
	}

	d, err = ParseDuration("00:00:05")
	if err != nil {
		t.Fatalf("ParseDuration() error = %v", err)
	}
	if ms := (d % time.Second).Milliseconds(); ms != 0 {
		t.Errorf("millis = %d, want 0", ms)
	}
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"tabs", "2016-02-26\t15:13:39:882\t1456528419.882808", "2016-02-26 15:13:39.882", false},
		{"spaces", "2016-02-26      15:13:39:882    1456528419.882808", "2016-02-26 15:13:39.882", false},
		{"no unix part", "2016-02-26\t00:00:00:001", "2016-02-26 00:00:00.001", false},
		{"epoch", epochField, "1970-01-01 00:00:00.000", false},
		{"single field", "2016-02-26", "", true},
		{"bad millis", "2016-02-26\t15:13:39:88", "", true},
		{"bad date", "2016-13-26\t15:13:39:882", "", true},
		{"empty", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTimestamp(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrTimestampFormat) {
					t.Errorf("ParseTimestamp(%q) error = %v, want ErrTimestampFormat", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseTimestamp(%q) error = %v", tt.in, err)
			}
			if s := got.Format("2006-01-02 15:04:05.000"); s != tt.want {
				t.Errorf("ParseTimestamp(%q) = %s, want %s", tt.in, s, tt.want)
			}
		})
	}
}

func TestFormatDuration(t *testing.T) {
	d := 18*time.Hour + 14*time.Minute + 43*time.Second + 202*time.Millisecond
	if got := FormatDuration(d); got != "18:14:43:202" {
		t.Errorf("FormatDuration() = %q, want 18:14:43:202", got)
	}
	back, err := ParseDuration(FormatDuration(d))
	if err != nil || back != d {
		t.Errorf("ParseDuration(FormatDuration(d)) = %v, %v; want %v", back, err, d)
	}
	if got := FormatDuration(-time.Second); got != "00:00:00:000" {
		t.Errorf("FormatDuration(negative) = %q", got)
	}
}
