package inspect

import (
	"testing"
	"time"
)

func TestFormatBytes(t *testing.T) {
	cases := []struct {
		size int64
		want string
	}{
		{size: 0, want: "0 B"},
		{size: 1023, want: "1023 B"},
		{size: 1024, want: "1.00 KiB"},
		{size: 1536, want: "1.50 KiB"},
		{size: 5 * 1024 * 1024, want: "5.00 MiB"},
	}
	for _, tc := range cases {
		if got := formatBytes(tc.size); got != tc.want {
			t.Fatalf("formatBytes(%d)=%q want %q", tc.size, got, tc.want)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	cases := []struct {
		d    time.Duration
		want string
	}{
		{d: 0, want: ""},
		{d: 250 * time.Millisecond, want: "250 ms"},
		{d: 1500 * time.Millisecond, want: "1 s 500 ms"},
		{d: 61 * time.Second, want: "1 min 1 s"},
		{d: 3661 * time.Second, want: "1 h 1 min 1 s"},
	}
	for _, tc := range cases {
		if got := formatDuration(tc.d); got != tc.want {
			t.Fatalf("formatDuration(%v)=%q want %q", tc.d, got, tc.want)
		}
	}
}

func TestFormatThousands(t *testing.T) {
	if got := formatThousands(1920); got != "1 920" {
		t.Fatalf("formatThousands=%q", got)
	}
	if got := formatThousands(12); got != "12" {
		t.Fatalf("formatThousands=%q", got)
	}
}

func TestFormatScaled(t *testing.T) {
	if got := formatScaled(45455); got != "0.45455" {
		t.Fatalf("formatScaled=%q", got)
	}
	if got := formatScaled(100000); got != "1" {
		t.Fatalf("formatScaled=%q", got)
	}
}
