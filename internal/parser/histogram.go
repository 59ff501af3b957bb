package parser

import (
	"errors"
	"fmt"
	"strings"

	"github.com/influxdata/tdigest"
)

// Unbounded marks the open upper end of the last histogram bucket.
const Unbounded = -1

var (
	// ErrEmptyHistogram is returned when a histogram has no buckets.
	ErrEmptyHistogram = errors.New("histogram has no buckets")

	// ErrBucketBounds is returned for overlapping, gapped or inverted buckets.
	ErrBucketBounds = errors.New("invalid histogram bucket bounds")

	// ErrNoHistogram is returned when the schema lacks the histogram columns.
	ErrNoHistogram = errors.New("histogram columns not present")
)

// Bucket counts observations in [Lower, Upper) milliseconds. The last
// bucket of a histogram has Upper == Unbounded.
type Bucket struct {
	Lower int `json:"lower"`
	Upper int `json:"upper"`
	Count int `json:"count"`
}

// IsUnbounded reports whether the bucket has no upper limit.
func (b Bucket) IsUnbounded() bool {
	return b.Upper == Unbounded
}

func (b Bucket) String() string {
	if b.IsUnbounded() {
		return fmt.Sprintf("[%d,inf)=%d", b.Lower, b.Count)
	}
	return fmt.Sprintf("[%d,%d)=%d", b.Lower, b.Upper, b.Count)
}

// Histogram is an ordered, contiguous sequence of buckets ending in a single
// unbounded bucket.
type Histogram struct {
	buckets []Bucket
}

// NewHistogram validates buckets and wraps them in a Histogram.
func NewHistogram(buckets []Bucket) (*Histogram, error) {
	if len(buckets) == 0 {
		return nil, ErrEmptyHistogram
	}

	last := len(buckets) - 1
	for i, b := range buckets {
		if b.IsUnbounded() {
			if i != last {
				return nil, fmt.Errorf("%w: unbounded bucket %d is not last", ErrBucketBounds, i)
			}
		} else if b.Lower > b.Upper {
			return nil, fmt.Errorf("%w: bucket %d lower %d > upper %d", ErrBucketBounds, i, b.Lower, b.Upper)
		}
		if i > 0 && buckets[i-1].Upper != b.Lower {
			return nil, fmt.Errorf("%w: gap between bucket %d and %d", ErrBucketBounds, i-1, i)
		}
	}
	if !buckets[last].IsUnbounded() {
		return nil, fmt.Errorf("%w: last bucket is bounded", ErrBucketBounds)
	}

	out := make([]Bucket, len(buckets))
	copy(out, buckets)
	return &Histogram{buckets: out}, nil
}

// Buckets returns a copy of the buckets.
func (h *Histogram) Buckets() []Bucket {
	out := make([]Bucket, len(h.buckets))
	copy(out, h.buckets)
	return out
}

// Len returns the number of buckets.
func (h *Histogram) Len() int {
	return len(h.buckets)
}

// Total returns the sum of all bucket counts. Negative counts, which mark
// unparsable fields, are ignored.
func (h *Histogram) Total() int {
	total := 0
	for _, b := range h.buckets {
		if b.Count > 0 {
			total += b.Count
		}
	}
	return total
}

// Quantile estimates the q-th quantile in milliseconds. Each bucket adds its
// midpoint with the bucket count as weight; the unbounded bucket adds its
// lower bound. Returns 0 when the histogram holds no observations.
func (h *Histogram) Quantile(q float64) float64 {
	if h.Total() == 0 {
		return 0
	}

	td := tdigest.NewWithCompression(100)
	for _, b := range h.buckets {
		if b.Count <= 0 {
			continue
		}
		value := float64(b.Lower)
		if !b.IsUnbounded() {
			value = float64(b.Lower+b.Upper) / 2
		}
		td.Add(value, float64(b.Count))
	}
	return td.Quantile(q)
}

func (h *Histogram) String() string {
	parts := make([]string, len(h.buckets))
	for i, b := range h.buckets {
		parts[i] = b.String()
	}
	return strings.Join(parts, " ")
}

// decodeHistogram walks the bucket columns that follow anchor. Bucket labels
// look like "<10" or ">=200"; the digits are the upper bound. A bound equal
// to the running lower bound marks the open-ended last bucket.
func (s *Snapshot) decodeHistogram(anchor string) (*Histogram, error) {
	start := s.schema.FindIndex(anchor)
	if start < 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoHistogram, anchor)
	}

	var buckets []Bucket
	lower := 0
	for i := start + 1; i < len(s.schema.labels); i++ {
		label := s.schema.labels[i]
		if !strings.HasPrefix(label, "<") && !strings.HasPrefix(label, ">=") {
			break
		}

		upper := labelDigits(label)
		if upper < 0 {
			break
		}

		bound := upper
		if upper == lower {
			bound = Unbounded
		}
		buckets = append(buckets, Bucket{
			Lower: lower,
			Upper: bound,
			Count: s.intAt(i),
		})
		lower = upper
	}

	return NewHistogram(buckets)
}

// labelDigits concatenates the decimal digits found in label, or returns -1
// when there are none.
func labelDigits(label string) int {
	n, seen := 0, false
	for _, r := range label {
		if r >= '0' && r <= '9' {
			n = n*10 + int(r-'0')
			seen = true
		}
	}
	if !seen {
		return -1
	}
	return n
}
