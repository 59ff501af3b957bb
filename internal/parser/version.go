// Package parser decodes the statistics files written by SIPp.
//
// SIPp started with -trace_stat writes a semicolon separated CSV file whose
// first line names the columns. The Schema type captures that header once
// and turns every following line into a Snapshot with typed accessors.
package parser

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

// Version identifies the SIPp release that produced a statistics file.
type Version int

const (
	// VersionUnknown is the zero value and is never accepted by NewSchema.
	VersionUnknown Version = iota
	Version30
	Version31
	Version32
	Version33
	Version34
)

// ErrUnsupportedVersion is returned for SIPp versions outside 3.0 - 3.4.
var ErrUnsupportedVersion = errors.New("unsupported sipp version")

var versionPattern = regexp.MustCompile(`v?(\d+)\.(\d+)`)

// ParseVersion accepts "3.4", "3.4.1", "v3.3" and similar strings.
func ParseVersion(s string) (Version, error) {
	m := versionPattern.FindStringSubmatch(s)
	if m == nil {
		return VersionUnknown, fmt.Errorf("%w: %q", ErrUnsupportedVersion, s)
	}
	major, _ := strconv.Atoi(m[1])
	minor, _ := strconv.Atoi(m[2])
	if major != 3 || minor > 4 {
		return VersionUnknown, fmt.Errorf("%w: %d.%d", ErrUnsupportedVersion, major, minor)
	}
	return Version30 + Version(minor), nil
}

// Supported reports whether statistics of this version can be decoded.
func (v Version) Supported() bool {
	return v >= Version30 && v <= Version34
}

// String returns the dotted version number.
func (v Version) String() string {
	if !v.Supported() {
		return "unknown"
	}
	return fmt.Sprintf("3.%d", int(v-Version30))
}
