package parser

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// FieldSeparator separates columns in SIPp statistics files.
const FieldSeparator = ";"

var (
	// ErrLabelOutOfRange is returned by Schema.Label for an unknown index.
	ErrLabelOutOfRange = errors.New("label index out of range")

	// ErrValueCount is returned when a line does not have one value per label.
	ErrValueCount = errors.New("value count does not match label count")

	// ErrEmptyHeader is returned when the header line holds no labels.
	ErrEmptyHeader = errors.New("empty statistics header")
)

// Schema is the ordered list of column labels parsed from the first line
// of a statistics file. It is immutable after NewSchema returns.
type Schema struct {
	version Version
	labels  []string
	logger  *slog.Logger
}

// NewSchema parses a header line written by the given SIPp version.
func NewSchema(version Version, header string) (*Schema, error) {
	if !version.Supported() {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedVersion, version)
	}

	labels := splitFields(header)
	if len(labels) == 0 {
		return nil, ErrEmptyHeader
	}

	return &Schema{
		version: version,
		labels:  labels,
		logger:  slog.Default(),
	}, nil
}

// WithLogger returns a copy of the schema that reports field decode
// problems to logger.
func (s *Schema) WithLogger(logger *slog.Logger) *Schema {
	if logger == nil {
		return s
	}
	c := *s
	c.logger = logger
	return &c
}

// Version returns the SIPp version the schema was built for.
func (s *Schema) Version() Version {
	return s.version
}

// Len returns the number of columns.
func (s *Schema) Len() int {
	return len(s.labels)
}

// Labels returns a copy of the column labels.
func (s *Schema) Labels() []string {
	out := make([]string, len(s.labels))
	copy(out, s.labels)
	return out
}

// FindIndex returns the column of the first label equal to label, or -1.
func (s *Schema) FindIndex(label string) int {
	for i, l := range s.labels {
		if l == label {
			return i
		}
	}
	return -1
}

// Label returns the label at index i.
func (s *Schema) Label(i int) (string, error) {
	if i < 0 || i >= len(s.labels) {
		return "", fmt.Errorf("%w: %d (have %d labels)", ErrLabelOutOfRange, i, len(s.labels))
	}
	return s.labels[i], nil
}

// ParseLine decodes one data line into a snapshot.
func (s *Schema) ParseLine(line string) (*Snapshot, error) {
	return s.NewSnapshot(splitFields(line))
}

// NewSnapshot builds a snapshot from already split values.
func (s *Schema) NewSnapshot(values []string) (*Snapshot, error) {
	if len(values) != len(s.labels) {
		return nil, fmt.Errorf("%w: got %d values for %d labels", ErrValueCount, len(values), len(s.labels))
	}

	v := make([]string, len(values))
	for i, val := range values {
		v[i] = strings.TrimSpace(val)
	}
	return &Snapshot{schema: s, values: v}, nil
}

// Empty returns a snapshot with zero counters, zero durations and epoch
// timestamps. It stands in for real telemetry before the first line arrives.
func (s *Schema) Empty() *Snapshot {
	values := make([]string, len(s.labels))
	for i, label := range s.labels {
		switch {
		case isTimestampLabel(label):
			values[i] = epochField
		case isDurationLabel(label):
			values[i] = "00:00:00:000"
		case isRepartitionLabel(label):
			values[i] = ""
		default:
			values[i] = "0"
		}
	}
	return &Snapshot{schema: s, values: values, empty: true}
}

// String joins the labels the way they appear in the file header.
func (s *Schema) String() string {
	return strings.Join(s.labels, ", ")
}

// splitFields splits on the field separator and trims every field. The
// empty field produced by a terminating separator is dropped.
func splitFields(line string) []string {
	line = strings.TrimRight(line, "\r\n")
	parts := strings.Split(line, FieldSeparator)
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	for len(parts) > 0 && parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}
	return parts
}
