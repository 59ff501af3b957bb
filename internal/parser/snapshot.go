package parser

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// ErrUnknownLabel is returned by accessors asked for a column the schema lacks.
var ErrUnknownLabel = errors.New("unknown statistics label")

// Snapshot is one decoded line of a statistics file.
// Numeric accessors return -1 when the field is missing or unparsable.
type Snapshot struct {
	schema *Schema
	values []string
	empty  bool
}

// Schema returns the schema the snapshot was decoded with.
func (s *Snapshot) Schema() *Schema {
	return s.schema
}

// IsEmpty reports whether this is the placeholder returned before any
// telemetry arrived.
func (s *Snapshot) IsEmpty() bool {
	return s.empty
}

// Values returns a copy of the trimmed field values.
func (s *Snapshot) Values() []string {
	out := make([]string, len(s.values))
	copy(out, s.values)
	return out
}

// Value returns the raw field for label.
func (s *Snapshot) Value(label string) (string, bool) {
	i := s.schema.FindIndex(label)
	if i < 0 {
		return "", false
	}
	return s.values[i], true
}

// Int returns the field for label as an integer.
func (s *Snapshot) Int(label string) int {
	return s.intAt(s.schema.FindIndex(label))
}

// Float returns the field for label as a float.
func (s *Snapshot) Float(label string) float64 {
	i := s.schema.FindIndex(label)
	if i < 0 {
		return -1
	}
	f, err := strconv.ParseFloat(s.values[i], 64)
	if err != nil {
		s.invalid(i, "float", err)
		return -1
	}
	return f
}

// Duration returns the field for label decoded as HH:MM:SS[:mmm].
func (s *Snapshot) Duration(label string) (time.Duration, error) {
	v, ok := s.Value(label)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownLabel, label)
	}
	return ParseDuration(v)
}

// Time returns the timestamp field for label.
func (s *Snapshot) Time(label string) (time.Time, error) {
	v, ok := s.Value(label)
	if !ok {
		return time.Time{}, fmt.Errorf("%w: %s", ErrUnknownLabel, label)
	}
	return ParseTimestamp(v)
}

func (s *Snapshot) intAt(i int) int {
	if i < 0 || i >= len(s.values) {
		return -1
	}
	n, err := strconv.Atoi(s.values[i])
	if err != nil {
		s.invalid(i, "int", err)
		return -1
	}
	return n
}

func (s *Snapshot) invalid(i int, kind string, err error) {
	s.schema.logger.Warn("stats_field_invalid",
		"label", s.schema.labels[i],
		"value", s.values[i],
		"type", kind,
		"error", err,
	)
}

// Timestamps

// CurrentTime is the time the line was written.
func (s *Snapshot) CurrentTime() (time.Time, error) { return s.Time(LabelCurrentTime) }

// StartTime is the time SIPp started.
func (s *Snapshot) StartTime() (time.Time, error) { return s.Time(LabelStartTime) }

// LastResetTime is the start of the current reporting period.
func (s *Snapshot) LastResetTime() (time.Time, error) { return s.Time(LabelLastResetTime) }

func (s *Snapshot) ElapsedTime() (time.Duration, error) { return s.Duration(LabelElapsedTimeP) }

func (s *Snapshot) ElapsedTimeCumulative() (time.Duration, error) {
	return s.Duration(LabelElapsedTimeC)
}

// Rates

// TargetRate is the call rate SIPp is trying to reach.
func (s *Snapshot) TargetRate() int { return s.Int(LabelTargetRate) }

// CallRate is the achieved calls per second in the last period.
func (s *Snapshot) CallRate() float64 { return s.Float(LabelCallRateP) }

func (s *Snapshot) CallRateCumulative() float64 { return s.Float(LabelCallRateC) }

// Calls

func (s *Snapshot) IncomingCall() int             { return s.Int(LabelIncomingCallP) }
func (s *Snapshot) IncomingCallCumulative() int   { return s.Int(LabelIncomingCallC) }
func (s *Snapshot) OutgoingCall() int             { return s.Int(LabelOutgoingCallP) }
func (s *Snapshot) OutgoingCallCumulative() int   { return s.Int(LabelOutgoingCallC) }
func (s *Snapshot) TotalCallCreated() int         { return s.Int(LabelTotalCallCreated) }
func (s *Snapshot) CurrentCall() int              { return s.Int(LabelCurrentCall) }
func (s *Snapshot) SuccessfulCall() int           { return s.Int(LabelSuccessfulCallP) }
func (s *Snapshot) SuccessfulCallCumulative() int { return s.Int(LabelSuccessfulCallC) }
func (s *Snapshot) FailedCall() int               { return s.Int(LabelFailedCallP) }
func (s *Snapshot) FailedCallCumulative() int     { return s.Int(LabelFailedCallC) }

// Failures returns the periodic failure counters keyed by label.
func (s *Snapshot) Failures() map[string]int {
	out := make(map[string]int, len(FailureLabels))
	for _, label := range FailureLabels {
		if s.schema.FindIndex(label) >= 0 {
			out[label] = s.Int(label)
		}
	}
	return out
}

// Messages and health

func (s *Snapshot) OutOfCallMsgs() int            { return s.Int(LabelOutOfCallMsgsP) }
func (s *Snapshot) DeadCallMsgs() int             { return s.Int(LabelDeadCallMsgsP) }
func (s *Snapshot) Retransmissions() int          { return s.Int(LabelRetransmissionsP) }
func (s *Snapshot) RetransmissionsCumulative() int { return s.Int(LabelRetransmissionsC) }
func (s *Snapshot) AutoAnswered() int             { return s.Int(LabelAutoAnsweredP) }
func (s *Snapshot) Warnings() int                 { return s.Int(LabelWarningsP) }
func (s *Snapshot) WarningsCumulative() int       { return s.Int(LabelWarningsC) }
func (s *Snapshot) FatalErrors() int              { return s.Int(LabelFatalErrorsP) }
func (s *Snapshot) FatalErrorsCumulative() int    { return s.Int(LabelFatalErrorsC) }
func (s *Snapshot) WatchdogMajor() int            { return s.Int(LabelWatchdogMajorP) }
func (s *Snapshot) WatchdogMinor() int            { return s.Int(LabelWatchdogMinorP) }

// Response time and call length

func (s *Snapshot) ResponseTime() (time.Duration, error) { return s.Duration(LabelResponseTime1P) }

func (s *Snapshot) ResponseTimeCumulative() (time.Duration, error) {
	return s.Duration(LabelResponseTime1C)
}

func (s *Snapshot) ResponseTimeStDev() (time.Duration, error) {
	return s.Duration(LabelResponseTime1StDevP)
}

func (s *Snapshot) CallLength() (time.Duration, error) { return s.Duration(LabelCallLengthP) }

func (s *Snapshot) CallLengthCumulative() (time.Duration, error) {
	return s.Duration(LabelCallLengthC)
}

// CallLengthStDev is returned verbatim; SIPp does not format it consistently
// across releases.
func (s *Snapshot) CallLengthStDev() string {
	v, _ := s.Value(LabelCallLengthStDevP)
	return v
}

func (s *Snapshot) CallLengthStDevCumulative() string {
	v, _ := s.Value(LabelCallLengthStDevC)
	return v
}

// ResponseTimeHistogram decodes the ResponseTimeRepartition1 columns.
func (s *Snapshot) ResponseTimeHistogram() (*Histogram, error) {
	return s.decodeHistogram(LabelResponseTimeRepartition1)
}

// CallLengthHistogram decodes the CallLengthRepartition columns.
func (s *Snapshot) CallLengthHistogram() (*Histogram, error) {
	return s.decodeHistogram(LabelCallLengthRepartition)
}

// Summary is a flattened view of the most used fields, suitable for JSON.
type Summary struct {
	Time                 time.Time      `json:"time"`
	Elapsed              string         `json:"elapsed"`
	TargetRate           int            `json:"target_rate"`
	CallRate             float64        `json:"call_rate"`
	CallRateCumulative   float64        `json:"call_rate_cumulative"`
	CurrentCalls         int            `json:"current_calls"`
	TotalCallsCreated    int            `json:"total_calls_created"`
	SuccessfulCalls      int            `json:"successful_calls"`
	SuccessfulCallsTotal int            `json:"successful_calls_total"`
	FailedCalls          int            `json:"failed_calls"`
	FailedCallsTotal     int            `json:"failed_calls_total"`
	Retransmissions      int            `json:"retransmissions"`
	RetransmissionsTotal int            `json:"retransmissions_total"`
	Warnings             int            `json:"warnings"`
	FatalErrors          int            `json:"fatal_errors"`
	ResponseTimeMs       int64          `json:"response_time_ms"`
	Failures             map[string]int `json:"failures,omitempty"`
	ResponseTimes        []Bucket       `json:"response_times,omitempty"`
}

// Summary collects the common fields. Timestamp and duration decode errors
// leave the zero value in place.
func (s *Snapshot) Summary() Summary {
	sum := Summary{
		TargetRate:           s.TargetRate(),
		CallRate:             s.CallRate(),
		CallRateCumulative:   s.CallRateCumulative(),
		CurrentCalls:         s.CurrentCall(),
		TotalCallsCreated:    s.TotalCallCreated(),
		SuccessfulCalls:      s.SuccessfulCall(),
		SuccessfulCallsTotal: s.SuccessfulCallCumulative(),
		FailedCalls:          s.FailedCall(),
		FailedCallsTotal:     s.FailedCallCumulative(),
		Retransmissions:      s.Retransmissions(),
		RetransmissionsTotal: s.RetransmissionsCumulative(),
		Warnings:             s.Warnings(),
		FatalErrors:          s.FatalErrors(),
		Failures:             s.Failures(),
	}
	if t, err := s.CurrentTime(); err == nil {
		sum.Time = t
	}
	if d, err := s.ElapsedTimeCumulative(); err == nil {
		sum.Elapsed = d.String()
	}
	if d, err := s.ResponseTime(); err == nil {
		sum.ResponseTimeMs = d.Milliseconds()
	}
	if h, err := s.ResponseTimeHistogram(); err == nil {
		sum.ResponseTimes = h.Buckets()
	}
	return sum
}
