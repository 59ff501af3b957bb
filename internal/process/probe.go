package process

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"

	"github.com/randomizedcoder/go-sipp-swarm/internal/parser"
)

// ErrVersionNotFound is returned when the sipp banner carries no version.
var ErrVersionNotFound = errors.New("sipp version not found in output")

// bannerPattern matches the version in the banner printed by `sipp -v`,
// e.g. " SIPp v3.4.1-TLS-PCAP-RTPSTREAM."
var bannerPattern = regexp.MustCompile(`SIPp\s+v?(\d+\.\d+(?:\.\d+)?)`)

// ProbeVersion runs `sipp -v` and returns the statistics format version of
// the installed binary.
func ProbeVersion(ctx context.Context, binaryPath string) (parser.Version, error) {
	cmd := exec.CommandContext(ctx, binaryPath, "-v")

	// sipp exits non-zero after printing its banner, so the output is
	// inspected before the error.
	output, runErr := cmd.CombinedOutput()

	v, err := ParseBanner(string(output))
	if err != nil {
		if runErr != nil {
			return parser.VersionUnknown, fmt.Errorf("sipp -v failed: %w", runErr)
		}
		return parser.VersionUnknown, err
	}
	return v, nil
}

// ParseBanner extracts the version from sipp's -v output.
func ParseBanner(output string) (parser.Version, error) {
	m := bannerPattern.FindStringSubmatch(output)
	if m == nil {
		return parser.VersionUnknown, ErrVersionNotFound
	}
	return parser.ParseVersion(m[1])
}

// Available checks if the sipp binary can be found.
func Available(binaryPath string) bool {
	_, err := exec.LookPath(binaryPath)
	return err == nil
}
