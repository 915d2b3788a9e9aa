package progress

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestReporterLifecycle(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter(Options{
		TotalBytes:     2048,
		TotalTasks:     3,
		Workers:        2,
		Output:         &buf,
		UpdateInterval: 10 * time.Millisecond,
	})

	r.Start()
	r.TaskStarted()
	r.AddBytes(1024)
	r.TaskDone()
	r.TaskSkipped()
	r.TaskStarted()
	r.TaskFailed()
	time.Sleep(30 * time.Millisecond)
	r.Stop()

	out := buf.String()
	if !strings.Contains(out, "[oqpd] Downloading 3 patch file(s)") {
		t.Errorf("missing header in output: %q", out)
	}
	if !strings.Contains(out, "1 done | 1 skipped | 1 failed") {
		t.Errorf("missing final counts in output: %q", out)
	}
}

func TestReporterStopIdempotent(t *testing.T) {
	r := NewReporter(Options{Output: &bytes.Buffer{}})
	r.Start()
	r.Stop()
	r.Stop() // must not panic or block
}

func TestFormatBytes(t *testing.T) {
	cases := []struct {
		in   int64
		want string
	}{
		{512, "512 B"},
		{2048, "2.00 KB"},
		{5 * 1024 * 1024, "5.00 MB"},
		{3 * 1024 * 1024 * 1024, "3.00 GB"},
	}
	for _, tc := range cases {
		if got := FormatBytes(tc.in); got != tc.want {
			t.Errorf("FormatBytes(%d) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	cases := []struct {
		in   time.Duration
		want string
	}{
		{30 * time.Second, "30s"},
		{90 * time.Second, "1m 30s"},
		{3661 * time.Second, "1h 1m 1s"},
	}
	for _, tc := range cases {
		if got := formatDuration(tc.in); got != tc.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
