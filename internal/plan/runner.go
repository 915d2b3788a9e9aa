package plan

import (
	"context"
	"sync"

	"github.com/lucaslellis/oracle-quarter-patch-downloader/internal/logging"
)

var log = logging.L("plan")

// Outcome classifies how a task execution ended.
type Outcome int

const (
	// OutcomeDone: the artifact was transferred and verified.
	OutcomeDone Outcome = iota

	// OutcomeSkipped: the destination already held a complete copy; no
	// transfer happened.
	OutcomeSkipped

	// OutcomeFailed: the transfer failed after exhausting retries.
	OutcomeFailed
)

// Result is the outcome of executing one task.
type Result struct {
	Outcome Outcome

	// Bytes actually transferred (zero for skips).
	Bytes int64

	Err error
}

// Executor runs a single task's transfer.
type Executor interface {
	Execute(ctx context.Context, t *Task) Result
}

// Recorder persists the manifest entries for a completed task.
type Recorder interface {
	Record(ctx context.Context, t *Task) error
}

// Summary aggregates the outcomes of a run.
type Summary struct {
	Done    int
	Skipped int
	Failed  int

	// TransferredBytes counts bytes actually downloaded; skipped tasks
	// contribute nothing.
	TransferredBytes int64

	// FailedFiles lists the target paths of failed tasks, in completion
	// order, so the operator knows what a re-run will retry.
	FailedFiles []string
}

// Runner executes a plan's tasks over a bounded pool of workers.
type Runner struct {
	// Workers bounds concurrent transfers. Default: 4.
	Workers int

	Executor Executor

	// Recorder, if non-nil, is invoked once per completed task.
	Recorder Recorder
}

// Run executes every task in the plan and returns the aggregated summary.
// A failed task never aborts the batch. Cancelling ctx stops scheduling of
// new tasks; in-flight tasks finish or fail cleanly.
func (r *Runner) Run(ctx context.Context, p *Plan) Summary {
	workers := r.Workers
	if workers <= 0 {
		workers = 4
	}
	if workers > len(p.Tasks) && len(p.Tasks) > 0 {
		workers = len(p.Tasks)
	}

	jobs := make(chan *Task)
	var wg sync.WaitGroup

	var mu sync.Mutex
	var sum Summary

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range jobs {
				r.runOne(ctx, t, &mu, &sum)
			}
		}()
	}

	// Feed tasks until done or cancelled.
	go func() {
		defer close(jobs)
		for _, t := range p.Tasks {
			select {
			case jobs <- t:
			case <-ctx.Done():
				return
			}
		}
	}()

	wg.Wait()
	return sum
}

func (r *Runner) runOne(ctx context.Context, t *Task, mu *sync.Mutex, sum *Summary) {
	res := r.Executor.Execute(ctx, t)

	if res.Outcome != OutcomeFailed && r.Recorder != nil {
		if err := r.Recorder.Record(ctx, t); err != nil {
			log.Error("manifest write failed", "target", t.TargetPath, "error", err)
			res = Result{Outcome: OutcomeFailed, Err: err}
		}
	}

	mu.Lock()
	defer mu.Unlock()

	switch res.Outcome {
	case OutcomeDone:
		t.Complete()
		sum.Done++
		sum.TransferredBytes += res.Bytes
	case OutcomeSkipped:
		t.Complete()
		sum.Skipped++
	case OutcomeFailed:
		t.Fail()
		sum.Failed++
		sum.FailedFiles = append(sum.FailedFiles, t.TargetPath)
		if res.Err != nil {
			log.Error("task failed", "target", t.TargetPath, "error", res.Err)
		}
	}
}
