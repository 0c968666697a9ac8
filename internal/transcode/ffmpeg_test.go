package transcode

import (
	"strings"
	"testing"
)

func TestBuildFFmpegArgs(t *testing.T) {
	args := buildFFmpegArgs("uploads/a.mp4", "outputs/a.mp3")

	joined := strings.Join(args, " ")
	for _, want := range []string{"-i uploads/a.mp4", "-vn", "-f mp3", "-progress pipe:1", "-nostats"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("args missing %q: %v", want, args)
		}
	}
	if args[len(args)-1] != "outputs/a.mp3" {
		t.Fatalf("output path must be the last argument: %v", args)
	}
}

func TestParseProgressLine(t *testing.T) {
	tests := []struct {
		line    string
		total   float64
		percent int
		ok      bool
	}{
		{"out_time_us=5000000", 10, 50, true},
		{"out_time_ms=5000000", 10, 50, true}, // out_time_ms もマイクロ秒単位
		{"out_time_us=20000000", 10, 100, true},
		{"progress=end", 10, 100, true},
		{"progress=end", 0, 100, true},
		{"out_time_us=5000000", 0, 0, false},
		{"out_time_us=bogus", 10, 0, false},
		{"frame=120", 10, 0, false},
		{"not a progress line", 10, 0, false},
	}

	for _, tt := range tests {
		percent, ok := parseProgressLine(tt.line, tt.total)
		if ok != tt.ok {
			t.Fatalf("parseProgressLine(%q, %f) ok=%v, want %v", tt.line, tt.total, ok, tt.ok)
		}
		if ok && percent != tt.percent {
			t.Fatalf("parseProgressLine(%q, %f) = %d, want %d", tt.line, tt.total, percent, tt.percent)
		}
	}
}

func TestParseDuration(t *testing.T) {
	value, err := parseDuration("12.345\n")
	if err != nil {
		t.Fatalf("parseDuration returned error: %v", err)
	}
	if value != 12.345 {
		t.Fatalf("unexpected duration: %f", value)
	}

	if _, err := parseDuration("N/A"); err == nil {
		t.Fatal("expected error for non-numeric duration")
	}
	if _, err := parseDuration("0"); err == nil {
		t.Fatal("expected error for zero duration")
	}
}

func TestLastStderrLine(t *testing.T) {
	stderr := "ffmpeg version 6.0\nStream mapping:\nError while decoding stream\n\n"
	if got := lastStderrLine(stderr); got != "Error while decoding stream" {
		t.Fatalf("unexpected stderr summary: %q", got)
	}
	if got := lastStderrLine("  \n"); got != "unknown error" {
		t.Fatalf("unexpected empty stderr summary: %q", got)
	}
}
