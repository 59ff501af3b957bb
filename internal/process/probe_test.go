package process

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/randomizedcoder/go-sipp-swarm/internal/parser"
)

func TestParseBanner(t *testing.T) {
	tests := []struct {
		name    string
		output  string
		want    parser.Version
		wantErr error
	}{
		{"tls build", " SIPp v3.4.1-TLS-PCAP-RTPSTREAM.\n This program is free software", parser.Version34, nil},
		{"plain", "SIPp v3.3", parser.Version33, nil},
		{"no v", "SIPp 3.2-PCAP", parser.Version32, nil},
		{"too new", "SIPp v3.7.2-TLS", parser.VersionUnknown, parser.ErrUnsupportedVersion},
		{"garbage", "command not found", parser.VersionUnknown, ErrVersionNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseBanner(tt.output)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("ParseBanner() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseBanner() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseBanner() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestProbeVersion_FakeBinary(t *testing.T) {
	dir := t.TempDir()
	bin := filepath.Join(dir, "sipp")
	// Real sipp exits 99 after printing the banner.
	script := "#!/bin/sh\necho ' SIPp v3.4.1-TLS-PCAP-RTPSTREAM.'\nexit 99\n"
	if err := os.WriteFile(bin, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	v, err := ProbeVersion(ctx, bin)
	if err != nil {
		t.Fatalf("ProbeVersion() error = %v", err)
	}
	if v != parser.Version34 {
		t.Errorf("ProbeVersion() = %v, want 3.4", v)
	}
}

func TestProbeVersion_MissingBinary(t *testing.T) {
	_, err := ProbeVersion(context.Background(), filepath.Join(t.TempDir(), "nope"))
	if err == nil {
		t.Error("ProbeVersion() on missing binary should fail")
	}
	if Available(filepath.Join(t.TempDir(), "nope")) {
		t.Error("Available() = true for missing binary")
	}
}
