// Package plan deduplicates the resolved patch set into unique download
// tasks, estimates the total transfer size, and schedules task execution
// over a bounded worker pool.
package plan

import (
	"github.com/lucaslellis/oracle-quarter-patch-downloader/internal/catalog"
)

// Plan is a deduplicated set of download tasks.
type Plan struct {
	Tasks []*Task

	// TotalBytes is the sum of expected sizes over the deduplicated set.
	// This is the dry-run estimate; it is independent of input ordering.
	TotalBytes int64
}

// Build collapses records into unique tasks. pathFor maps a record to its
// destination key relative to the download root.
//
// Duplicate records (same patch number, platform, release and file) are
// dropped. An artifact referenced by several distinct records, such as the
// same file recommended for two release lines, is fetched once: the first
// record wins the target path and the rest only contribute manifest
// entries.
func Build(records []catalog.PatchRecord, pathFor func(catalog.PatchRecord) string) *Plan {
	seen := make(map[string]bool)
	byURL := make(map[string]*Task)
	byPath := make(map[string]*Task)

	p := &Plan{}
	for _, r := range records {
		key := r.Key()
		if seen[key] {
			continue
		}
		seen[key] = true

		if t, ok := byURL[r.DownloadURL]; ok {
			t.records = append(t.records, r)
			continue
		}

		target := pathFor(r)
		if t, ok := byPath[target]; ok {
			// Distinct links resolving to the same destination; treat as
			// the same artifact rather than letting two tasks race on one
			// path.
			t.records = append(t.records, r)
			continue
		}

		t := &Task{
			TargetPath:   target,
			URL:          r.DownloadURL,
			ExpectedSize: r.SizeBytes,
			SHA256:       r.SHA256,
			records:      []catalog.PatchRecord{r},
		}
		byURL[r.DownloadURL] = t
		byPath[target] = t
		p.Tasks = append(p.Tasks, t)
		p.TotalBytes += r.SizeBytes
	}

	return p
}
