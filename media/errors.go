package media

import (
	"fmt"
)

// ValidationError rejects an upload before any ingestion side effect.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "Invalid upload: " + e.Reason
}

// ResolveError is returned when no free filename could be found within the
// attempt budget.
type ResolveError struct {
	Desired  string
	Attempts int
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf(
		"no free filename found for %q after %d attempts",
		e.Desired,
		e.Attempts,
	)
}

// DuplicateError is returned when content with the same hash already exists
// and the caller asked for duplicates to be rejected.
type DuplicateError struct {
	Hash string
}

func (e *DuplicateError) Error() string {
	return "image with identical content already exists: " + e.Hash
}

// TranscodeError fails an ingestion whose legacy source format could not be
// converted. A missing primary rendition is not acceptable.
type TranscodeError struct {
	Format string
	Inner  error
}

func (e *TranscodeError) Error() string {
	return fmt.Sprintf("failed to transcode %s source: %v", e.Format, e.Inner)
}

func (e *TranscodeError) Unwrap() error {
	return e.Inner
}

// FileDeletionError aborts a deletion whose file phase did not fully
// succeed. The database record is preserved so a later retry stays safe.
type FileDeletionError struct {
	Deleted int
	Failed  int
}

func (e *FileDeletionError) Error() string {
	return fmt.Sprintf(
		"deleted %d file(s) but %d deletion(s) failed; database record preserved to allow a safe retry",
		e.Deleted,
		e.Failed,
	)
}

// CriticalError reports that every file was removed but the metadata
// deletion exhausted its retries. The remaining rows reference missing files
// and need out-of-band reconciliation.
type CriticalError struct {
	Hash    string
	Deleted int
	Inner   error
}

func (e *CriticalError) Error() string {
	return fmt.Sprintf(
		"deleted %d file(s) for %s but metadata deletion failed: %v",
		e.Deleted,
		e.Hash,
		e.Inner,
	)
}

func (e *CriticalError) Unwrap() error {
	return e.Inner
}
