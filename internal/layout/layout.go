// Package layout maps patch records onto the on-disk tree under the
// download root and maintains the per-directory manifest files.
//
// The tree mirrors the catalog's own structure:
//
//	opatch/*.zip
//	ahf/*.zip
//	quarter_patches/<release>/<platform-name>/{description.txt, *.zip}
//	<group>/*.zip            (patch-list mode, group column)
package layout

import (
	"context"
	"fmt"
	"path"
	"strings"
	"sync"

	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"

	"github.com/lucaslellis/oracle-quarter-patch-downloader/internal/catalog"
	"github.com/lucaslellis/oracle-quarter-patch-downloader/internal/plan"
)

// ManifestName is the per-directory manifest file.
const ManifestName = "description.txt"

// DirFor returns the directory key for a record, relative to the download
// root. Platform names are used verbatim, spaces included.
func DirFor(r catalog.PatchRecord) string {
	switch r.Category {
	case catalog.CategoryOPatch:
		return "opatch"
	case catalog.CategoryAHF:
		return "ahf"
	case catalog.CategoryCustom:
		return r.Group
	default:
		return path.Join("quarter_patches", r.Release, r.Platform.Name)
	}
}

// PathFor returns the destination key for a record's artifact.
func PathFor(r catalog.PatchRecord) string {
	return path.Join(DirFor(r), r.FileName)
}

// Writer appends manifest entries beneath the download root. Safe for
// concurrent use; the manifest files are append-only and never reordered.
type Writer struct {
	bucket *blob.Bucket

	mu sync.Mutex
}

// NewWriter creates a Writer over the destination bucket.
func NewWriter(bucket *blob.Bucket) *Writer {
	return &Writer{bucket: bucket}
}

// Record appends one manifest line per catalog record satisfied by the
// task. A task shared by several release lines is listed in every
// directory that references it. A line already present is not appended
// again, so re-running over a complete tree leaves the manifests
// unchanged.
func (w *Writer) Record(ctx context.Context, t *plan.Task) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, r := range t.Records() {
		key := path.Join(DirFor(r), ManifestName)
		line := fmt.Sprintf("%s - %s\n", r.FileName, r.Description)
		if err := w.append(ctx, key, line); err != nil {
			return fmt.Errorf("manifest %s: %w", key, err)
		}
	}
	return nil
}

func (w *Writer) append(ctx context.Context, key, line string) error {
	existing, err := w.bucket.ReadAll(ctx, key)
	if err != nil && gcerrors.Code(err) != gcerrors.NotFound {
		return err
	}
	if hasLine(existing, line) {
		return nil
	}
	return w.bucket.WriteAll(ctx, key, append(existing, line...), nil)
}

func hasLine(manifest []byte, line string) bool {
	want := strings.TrimSuffix(line, "\n")
	for _, got := range strings.Split(string(manifest), "\n") {
		if got == want {
			return true
		}
	}
	return false
}
