// Package fetch transfers patch artifacts into the download root. It is
// the execution side of a download plan: each task is checked against the
// destination bucket, streamed from the vendor site when missing, and
// verified against the catalog-reported size and checksum.
package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"

	oqpdhttp "github.com/lucaslellis/oracle-quarter-patch-downloader/internal/http"
	"github.com/lucaslellis/oracle-quarter-patch-downloader/internal/logging"
	"github.com/lucaslellis/oracle-quarter-patch-downloader/internal/plan"
)

var log = logging.L("fetch")

// Reporter receives transfer progress. All methods must be safe for
// concurrent use.
type Reporter interface {
	TaskStarted()
	TaskDone()
	TaskSkipped()
	TaskFailed()
	AddBytes(n int64)
}

type nopReporter struct{}

func (nopReporter) TaskStarted()   {}
func (nopReporter) TaskDone()      {}
func (nopReporter) TaskSkipped()   {}
func (nopReporter) TaskFailed()    {}
func (nopReporter) AddBytes(int64) {}

// Fetcher downloads task artifacts into a bucket.
type Fetcher struct {
	// Client issues the authenticated HTTP requests.
	Client *oqpdhttp.Client

	// Bucket is the destination, rooted at the download root.
	Bucket *blob.Bucket

	// Reporter, if non-nil, receives progress callbacks.
	Reporter Reporter

	// Attempts is the number of whole-file transfer attempts.
	// Default: 3.
	Attempts int
}

// Execute fetches one task. Implements the plan executor contract: the
// artifact is skipped when the destination already holds a file of the
// expected size, otherwise it is streamed, size-checked, and, when a
// checksum is known, digest-checked before the write is committed.
func (f *Fetcher) Execute(ctx context.Context, t *plan.Task) plan.Result {
	rep := f.Reporter
	if rep == nil {
		rep = nopReporter{}
	}

	present, err := f.alreadyPresent(ctx, t)
	if err != nil {
		// TaskFailed retires an in-progress task, so the task must be
		// started first to keep the reporter's counters balanced.
		rep.TaskStarted()
		rep.TaskFailed()
		return plan.Result{Outcome: plan.OutcomeFailed, Err: err}
	}
	if present {
		log.Debug("already present, skipping", "target", t.TargetPath)
		rep.TaskSkipped()
		return plan.Result{Outcome: plan.OutcomeSkipped}
	}

	t.Begin()
	rep.TaskStarted()

	attempts := f.Attempts
	if attempts <= 0 {
		attempts = 3
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if err := oqpdhttp.Backoff(ctx, attempt, oqpdhttp.DefaultOptions().RetryBackoff, oqpdhttp.DefaultOptions().RetryMaxBackoff); err != nil {
				lastErr = err
				break
			}
			log.Warn("retrying transfer", "target", t.TargetPath, "attempt", attempt+1, "error", lastErr)
		}

		n, err := f.transfer(ctx, t, rep)
		if err == nil {
			rep.TaskDone()
			return plan.Result{Outcome: plan.OutcomeDone, Bytes: n}
		}

		// Rewind the progress counter so a retried file is not counted
		// twice.
		rep.AddBytes(-n)
		lastErr = err

		if !retryable(err) {
			break
		}
	}

	rep.TaskFailed()
	return plan.Result{Outcome: plan.OutcomeFailed, Err: lastErr}
}

// alreadyPresent reports whether the destination already holds the artifact
// at the expected size. A size mismatch means an interrupted earlier run;
// the file is re-fetched.
func (f *Fetcher) alreadyPresent(ctx context.Context, t *plan.Task) (bool, error) {
	attrs, err := f.Bucket.Attributes(ctx, t.TargetPath)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return false, nil
		}
		return false, fmt.Errorf("stat %s: %w", t.TargetPath, err)
	}
	return attrs.Size == t.ExpectedSize, nil
}

// transfer performs one whole-file download attempt. Returns the bytes
// read from the source, whether or not the attempt succeeded, so the
// caller can rewind progress accounting on failure.
func (f *Fetcher) transfer(ctx context.Context, t *plan.Task, rep Reporter) (int64, error) {
	resp, err := f.Client.Get(ctx, t.URL, nil)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.ContentLength > 0 && resp.ContentLength != t.ExpectedSize {
		return 0, &verifyError{msg: fmt.Sprintf("server reports %d bytes, catalog expects %d", resp.ContentLength, t.ExpectedSize)}
	}

	// A writer-scoped cancel aborts the blob write on error so a partial
	// object is never committed.
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w, err := f.Bucket.NewWriter(wctx, t.TargetPath, nil)
	if err != nil {
		return 0, fmt.Errorf("open writer %s: %w", t.TargetPath, err)
	}

	hash := sha256.New()
	src := &countingReader{r: io.TeeReader(resp.Body, hash), rep: rep}

	n, err := io.Copy(w, src)
	if err != nil {
		cancel()
		w.Close()
		return n, fmt.Errorf("transfer %s: %w", t.TargetPath, err)
	}

	if n != t.ExpectedSize {
		cancel()
		w.Close()
		return n, &verifyError{msg: fmt.Sprintf("got %d bytes, expected %d", n, t.ExpectedSize)}
	}

	if t.SHA256 != "" {
		got := hex.EncodeToString(hash.Sum(nil))
		if !strings.EqualFold(got, t.SHA256) {
			cancel()
			w.Close()
			return n, &verifyError{
				msg:       fmt.Sprintf("sha256 mismatch: got %s, expected %s", got, strings.ToLower(t.SHA256)),
				permanent: true,
			}
		}
	}

	if err := w.Close(); err != nil {
		return n, fmt.Errorf("commit %s: %w", t.TargetPath, err)
	}

	log.Info("downloaded", "target", t.TargetPath, "bytes", n)
	return n, nil
}

// verifyError marks integrity failures. A short read is retried (the
// connection may have dropped); a checksum mismatch on a complete transfer
// is permanent, since the bytes are simply wrong.
type verifyError struct {
	msg       string
	permanent bool
}

func (e *verifyError) Error() string {
	return "verify: " + e.msg
}

func retryable(err error) bool {
	var ve *verifyError
	if errors.As(err, &ve) {
		return !ve.permanent
	}
	switch {
	case errors.Is(err, oqpdhttp.ErrNotFound),
		errors.Is(err, oqpdhttp.ErrForbidden),
		errors.Is(err, oqpdhttp.ErrUnauthorized),
		errors.Is(err, context.Canceled):
		return false
	}
	return true
}

type countingReader struct {
	r   io.Reader
	rep Reporter
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.rep.AddBytes(int64(n))
	}
	return n, err
}
