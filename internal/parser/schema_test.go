package parser

import (
	"bufio"
	"errors"
	"os"
	"strings"
	"testing"
)

// =============================================================================
// Test Helpers
// =============================================================================

const testStatsFile = "testdata/uac_20157_.csv"

// loadStatsFile returns the header and data lines of the test statistics file.
func loadStatsFile(t *testing.T) (string, []string) {
	t.Helper()

	f, err := os.Open(testStatsFile)
	if err != nil {
		t.Fatalf("open %s: %v", testStatsFile, err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan %s: %v", testStatsFile, err)
	}
	if len(lines) < 2 {
		t.Fatalf("%s has %d lines, want header plus data", testStatsFile, len(lines))
	}
	return lines[0], lines[1:]
}

func loadSchema(t *testing.T) *Schema {
	t.Helper()
	header, _ := loadStatsFile(t)
	s, err := NewSchema(Version33, header)
	if err != nil {
		t.Fatalf("NewSchema() error = %v", err)
	}
	return s
}

// =============================================================================
// Schema
// =============================================================================

func TestNewSchema_FindIndex(t *testing.T) {
	s := loadSchema(t)

	tests := []struct {
		label string
		want  int
	}{
		{LabelStartTime, 0},
		{LabelCurrentTime, 2},
		{LabelTargetRate, 5},
		{LabelCallRateP, 6},
		{LabelCallRateC, 7},
		{LabelResponseTimeRepartition1, 68},
		{"NoSuchLabel", -1},
		{"", -1},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			if got := s.FindIndex(tt.label); got != tt.want {
				t.Errorf("FindIndex(%q) = %d, want %d", tt.label, got, tt.want)
			}
		})
	}

	if s.Len() != 87 {
		t.Errorf("Len() = %d, want 87", s.Len())
	}
}

func TestNewSchema_Versions(t *testing.T) {
	header := "StartTime;TargetRate;"

	tests := []struct {
		name    string
		version Version
		wantErr bool
	}{
		{"3.0", Version30, false},
		{"3.2", Version32, false},
		{"3.4", Version34, false},
		{"unknown", VersionUnknown, true},
		{"future", Version34 + 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewSchema(tt.version, header)
			if tt.wantErr {
				if !errors.Is(err, ErrUnsupportedVersion) {
					t.Fatalf("NewSchema() error = %v, want ErrUnsupportedVersion", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewSchema() error = %v", err)
			}
			if s.Version() != tt.version {
				t.Errorf("Version() = %v, want %v", s.Version(), tt.version)
			}
		})
	}
}

func TestNewSchema_TrimsLabels(t *testing.T) {
	s, err := NewSchema(Version34, "  StartTime ; TargetRate\t;CallRate(P) ;\r\n")
	if err != nil {
		t.Fatalf("NewSchema() error = %v", err)
	}
	want := []string{"StartTime", "TargetRate", "CallRate(P)"}
	got := s.Labels()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Labels() = %v, want %v", got, want)
	}
}

func TestNewSchema_EmptyHeader(t *testing.T) {
	if _, err := NewSchema(Version34, " ; ;"); !errors.Is(err, ErrEmptyHeader) {
		t.Errorf("NewSchema() error = %v, want ErrEmptyHeader", err)
	}
}

func TestSchema_Label(t *testing.T) {
	s := loadSchema(t)

	got, err := s.Label(5)
	if err != nil || got != LabelTargetRate {
		t.Errorf("Label(5) = %q, %v; want %q", got, err, LabelTargetRate)
	}

	for _, i := range []int{-1, s.Len(), s.Len() + 10} {
		if _, err := s.Label(i); !errors.Is(err, ErrLabelOutOfRange) {
			t.Errorf("Label(%d) error = %v, want ErrLabelOutOfRange", i, err)
		}
	}
}

func TestSchema_NewSnapshot_CountMismatch(t *testing.T) {
	s := loadSchema(t)

	values := make([]string, s.Len()-1)
	if _, err := s.NewSnapshot(values); !errors.Is(err, ErrValueCount) {
		t.Errorf("NewSnapshot(%d values) error = %v, want ErrValueCount", len(values), err)
	}

	values = make([]string, s.Len()+1)
	if _, err := s.NewSnapshot(values); !errors.Is(err, ErrValueCount) {
		t.Errorf("NewSnapshot(%d values) error = %v, want ErrValueCount", len(values), err)
	}

	if _, err := s.ParseLine("1;2;3"); !errors.Is(err, ErrValueCount) {
		t.Errorf("ParseLine(short) error = %v, want ErrValueCount", err)
	}
}

func TestSchema_RoundTrip(t *testing.T) {
	s := loadSchema(t)
	_, data := loadStatsFile(t)

	for n, line := range data {
		snap, err := s.ParseLine(line)
		if err != nil {
			t.Fatalf("line %d: ParseLine() error = %v", n+1, err)
		}

		fields := strings.Split(line, FieldSeparator)
		for i, label := range s.Labels() {
			want := strings.TrimSpace(fields[i])
			// Duplicate bucket labels such as "<10" resolve to their first column.
			if s.FindIndex(label) != i {
				continue
			}
			got, ok := snap.Value(label)
			if !ok || got != want {
				t.Errorf("line %d: Value(%q) = %q, %v; want %q", n+1, label, got, ok, want)
			}
		}
	}
}

func TestSchema_Empty(t *testing.T) {
	s := loadSchema(t)
	e := s.Empty()

	if !e.IsEmpty() {
		t.Error("IsEmpty() = false, want true")
	}
	if got := e.TargetRate(); got != 0 {
		t.Errorf("TargetRate() = %d, want 0", got)
	}
	if got := e.CallRate(); got != 0 {
		t.Errorf("CallRate() = %v, want 0", got)
	}
	if got := e.Retransmissions(); got != 0 {
		t.Errorf("Retransmissions() = %d, want 0", got)
	}
	ts, err := e.CurrentTime()
	if err != nil {
		t.Fatalf("CurrentTime() error = %v", err)
	}
	if ts.Unix() != 0 {
		t.Errorf("CurrentTime() = %v, want epoch", ts)
	}
	if d, err := e.ResponseTime(); err != nil || d != 0 {
		t.Errorf("ResponseTime() = %v, %v; want 0", d, err)
	}
	h, err := e.ResponseTimeHistogram()
	if err != nil {
		t.Fatalf("ResponseTimeHistogram() error = %v", err)
	}
	if h.Total() != 0 {
		t.Errorf("histogram Total() = %d, want 0", h.Total())
	}
}

func TestParseVersion(t *testing.T) {
	tests := []struct {
		in      string
		want    Version
		wantErr bool
	}{
		{"3.0", Version30, false},
		{"3.3", Version33, false},
		{"v3.4.1", Version34, false},
		{"SIPp v3.4.1-SCTP-PCAP-RTPSTREAM", Version34, false},
		{"3.5", VersionUnknown, true},
		{"2.0", VersionUnknown, true},
		{"none", VersionUnknown, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseVersion(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseVersion(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseVersion(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}

	if Version34.String() != "3.4" {
		t.Errorf("Version34.String() = %q", Version34.String())
	}
}
