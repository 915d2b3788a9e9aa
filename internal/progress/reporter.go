package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Options configures the progress reporter.
type Options struct {
	// TotalBytes is the expected transfer size for the whole run.
	TotalBytes int64

	// TotalTasks is the number of download tasks in the plan.
	TotalTasks int

	// Workers is the number of parallel workers.
	Workers int

	// Output is where to write progress output.
	// Default: os.Stdout
	Output io.Writer

	// UpdateInterval is how often to update the progress display.
	// Default: 500ms
	UpdateInterval time.Duration
}

// Reporter outputs human-readable progress information.
type Reporter struct {
	opts Options

	mu             sync.Mutex
	downloadedByte atomic.Int64
	doneTasks      atomic.Int32
	skippedTasks   atomic.Int32
	failedTasks    atomic.Int32
	inProgress     atomic.Int32
	startTime      time.Time
	lastUpdate     time.Time
	lastBytes      int64
	stopCh         chan struct{}
	doneCh         chan struct{}
	stopped        bool
}

// NewReporter creates a new progress reporter.
func NewReporter(opts Options) *Reporter {
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.UpdateInterval == 0 {
		opts.UpdateInterval = 500 * time.Millisecond
	}

	return &Reporter{
		opts:   opts,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start begins outputting progress information.
func (r *Reporter) Start() {
	r.startTime = time.Now()
	r.lastUpdate = r.startTime

	fmt.Fprintf(r.opts.Output, "[oqpd] Downloading %d patch file(s), %s total | Workers: %d\n",
		r.opts.TotalTasks,
		formatBytes(r.opts.TotalBytes),
		r.opts.Workers,
	)

	go r.updateLoop()
}

// Stop stops the progress reporter and prints the final status line.
func (r *Reporter) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	r.mu.Unlock()

	close(r.stopCh)
	<-r.doneCh
	r.printFinalStatus()
}

// TaskStarted marks a task as in progress.
func (r *Reporter) TaskStarted() {
	r.inProgress.Add(1)
}

// TaskDone marks a task as completed.
func (r *Reporter) TaskDone() {
	r.doneTasks.Add(1)
	r.inProgress.Add(-1)
}

// TaskSkipped marks a task as skipped without ever starting it.
func (r *Reporter) TaskSkipped() {
	r.skippedTasks.Add(1)
}

// TaskFailed marks a task as failed.
func (r *Reporter) TaskFailed() {
	r.failedTasks.Add(1)
	r.inProgress.Add(-1)
}

// AddBytes records transferred bytes. Negative deltas rewind the counter
// when a failed attempt is retried from scratch.
func (r *Reporter) AddBytes(n int64) {
	r.downloadedByte.Add(n)
}

// updateLoop periodically updates the progress display.
func (r *Reporter) updateLoop() {
	ticker := time.NewTicker(r.opts.UpdateInterval)
	defer ticker.Stop()

	defer close(r.doneCh)
	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.printProgress()
		}
	}
}

// printProgress outputs the current progress.
func (r *Reporter) printProgress() {
	now := time.Now()
	downloaded := r.downloadedByte.Load()
	done := int(r.doneTasks.Load())
	skipped := int(r.skippedTasks.Load())
	failed := int(r.failedTasks.Load())
	inProgress := int(r.inProgress.Load())

	// Calculate speed over the last interval
	elapsed := now.Sub(r.lastUpdate).Seconds()
	if elapsed < 0.1 {
		elapsed = 0.1
	}
	bytesThisPeriod := downloaded - r.lastBytes
	speed := float64(bytesThisPeriod) / elapsed

	r.lastUpdate = now
	r.lastBytes = downloaded

	var percent float64
	if r.opts.TotalBytes > 0 {
		percent = float64(downloaded) / float64(r.opts.TotalBytes) * 100
	}

	pending := r.opts.TotalTasks - done - skipped - failed - inProgress
	if pending < 0 {
		pending = 0
	}

	fmt.Fprintf(r.opts.Output, "\r[oqpd] Progress: %.1f%% | %s / %s | Speed: %s/s    ",
		percent,
		formatBytes(downloaded),
		formatBytes(r.opts.TotalBytes),
		formatBytes(int64(speed)),
	)
	fmt.Fprintf(r.opts.Output, "\n[oqpd] Files: %d done | %d skipped | %d failed | %d in-progress | %d pending    \033[A",
		done,
		skipped,
		failed,
		inProgress,
		pending,
	)
}

// printFinalStatus outputs the final status.
func (r *Reporter) printFinalStatus() {
	downloaded := r.downloadedByte.Load()
	done := int(r.doneTasks.Load())
	skipped := int(r.skippedTasks.Load())
	failed := int(r.failedTasks.Load())
	duration := time.Since(r.startTime)
	avgSpeed := float64(downloaded) / duration.Seconds()

	fmt.Fprintf(r.opts.Output, "\r[oqpd] Files: %d done | %d skipped | %d failed    \n",
		done,
		skipped,
		failed,
	)
	fmt.Fprintf(r.opts.Output, "[oqpd] Total time: %s | Average speed: %s/s\n",
		formatDuration(duration),
		formatBytes(int64(avgSpeed)),
	)
}

// formatBytes formats bytes as a human-readable string.
func formatBytes(b int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
		TB = GB * 1024
	)

	switch {
	case b >= TB:
		return fmt.Sprintf("%.2f TB", float64(b)/float64(TB))
	case b >= GB:
		return fmt.Sprintf("%.2f GB", float64(b)/float64(GB))
	case b >= MB:
		return fmt.Sprintf("%.2f MB", float64(b)/float64(MB))
	case b >= KB:
		return fmt.Sprintf("%.2f KB", float64(b)/float64(KB))
	default:
		return fmt.Sprintf("%d B", b)
	}
}

// formatDuration formats a duration as a human-readable string.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm %ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%dh %dm %ds", h, m, s)
}

// FormatBytes is exported for use by other packages.
func FormatBytes(b int64) string {
	return formatBytes(b)
}
