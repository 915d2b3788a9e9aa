package plan

import (
	"github.com/lucaslellis/oracle-quarter-patch-downloader/internal/catalog"
)

// Status is the lifecycle state of a download task.
//
// Valid transitions: Pending -> InProgress -> {Done | Failed}, plus
// Pending -> Done directly when an already-present file short-circuits the
// transfer. Done and Failed are terminal.
type Status int

const (
	StatusPending Status = iota
	StatusInProgress
	StatusDone
	StatusFailed
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "Pending"
	case StatusInProgress:
		return "InProgress"
	case StatusDone:
		return "Done"
	case StatusFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusFailed
}

// Task is one artifact to fetch. Created by Build, owned by a single
// worker while executing.
type Task struct {
	// TargetPath is the destination key relative to the download root.
	// Unique across a plan.
	TargetPath string

	// URL is the authenticated download link.
	URL string

	// ExpectedSize is the byte count the catalog reports for the artifact.
	ExpectedSize int64

	// SHA256 is the catalog-reported checksum, empty when unknown.
	SHA256 string

	status  Status
	records []catalog.PatchRecord
}

// Status returns the task's current lifecycle state.
func (t *Task) Status() Status {
	return t.status
}

// Records returns every catalog record satisfied by this task. A task
// fetched once may be recorded in several manifests.
func (t *Task) Records() []catalog.PatchRecord {
	return t.records
}

// Begin transitions Pending -> InProgress. Any other state is left alone.
func (t *Task) Begin() {
	if t.status == StatusPending {
		t.status = StatusInProgress
	}
}

// Complete transitions to Done unless the task is already terminal.
func (t *Task) Complete() {
	if !t.status.Terminal() {
		t.status = StatusDone
	}
}

// Fail transitions to Failed unless the task is already terminal.
func (t *Task) Fail() {
	if !t.status.Terminal() {
		t.status = StatusFailed
	}
}
