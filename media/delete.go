package media

import (
	"context"
	"errors"
	"fmt"
	"time"

	"image-registry/orm"
	"image-registry/store"

	"github.com/rs/zerolog/log"
)

// metaRetryBackoff is the linear backoff unit between metadata deletion
// attempts.
var metaRetryBackoff = 500 * time.Millisecond

// DeleteResult reports how far a deletion got. DeletedFiles counts files
// actually removed, not attempted, so operators can assess blast radius.
type DeleteResult struct {
	DeletedFiles int          `json:"deletedFiles"`
	Errors       []string     `json:"errors,omitempty"`
	Usage        *UsageReport `json:"usage,omitempty"`
}

// DeleteImage removes an image and all its variant files under an exclusive
// per-hash lock. Files are deleted strictly before metadata: when any file
// deletion fails the metadata is preserved so a retry stays safe, and only a
// fully clean file phase may proceed to the transactional metadata delete.
func (s *Service) DeleteImage(
	ctx context.Context,
	hash string,
	force bool,
) (*DeleteResult, error) {
	lease, err := s.locker.Acquire(ctx, "image:"+hash, "delete-image", s.opts.LockWait)
	if err != nil {
		// Includes the distinct, retryable redislock.ErrLockTimeout.
		return nil, err
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			log.Warn().Err(err).Str("hash", hash).Msg("failed to release deletion lock")
		}
	}()

	usage, err := s.CheckImageUsage(ctx, hash)
	if err != nil {
		return nil, err
	}
	if !usage.Exists {
		return nil, &orm.NotFoundError{Search: "image hash=" + hash}
	}

	if usage.InUse() && !force {
		log.Warn().
			Str("hash", hash).
			Strs("entities", usage.UsedInEntities).
			Strs("labels", usage.UsedInLabels).
			Msg("deleting an image that is still in use")
	}

	image, err := s.db.GetImage(ctx, hash)
	if err != nil {
		return nil, err
	}

	result := &DeleteResult{Usage: usage}

	// File deletion phase: attempt every file, never abort on the first
	// failure.
	for _, variant := range image.Variants {
		err := s.store.Delete(ctx, variant.Src)
		if err != nil && !errors.Is(err, store.ErrFileNotFound) {
			log.Error().
				Err(err).
				Str("hash", hash).
				Str("src", variant.Src).
				Msg("failed to delete variant file")
			result.Errors = append(result.Errors, fmt.Sprintf(
				"failed to delete %s: %v", variant.Src, err,
			))

			continue
		}

		// A file already missing counts as deleted, which keeps retries of
		// a previously failed deletion converging.
		result.DeletedFiles++
	}

	if len(result.Errors) > 0 {
		return result, &FileDeletionError{
			Deleted: result.DeletedFiles,
			Failed:  len(result.Errors),
		}
	}

	// Metadata deletion phase: only reached when every file is gone.
	var lastErr error
	for attempt := 1; attempt <= s.opts.MetaDeleteAttempts; attempt++ {
		lastErr = s.db.DeleteImageMeta(ctx, hash)
		if lastErr == nil {
			break
		}

		log.Warn().
			Err(lastErr).
			Str("hash", hash).
			Int("attempt", attempt).
			Msg("metadata deletion failed")

		if attempt < s.opts.MetaDeleteAttempts {
			time.Sleep(time.Duration(attempt) * metaRetryBackoff)
		}
	}

	if lastErr != nil {
		// Files are gone but metadata remains: the worst inconsistency this
		// protocol can produce. Logged distinctly so it can be alerted on.
		log.Error().
			Err(lastErr).
			Bool("critical", true).
			Str("hash", hash).
			Int("deleted_files", result.DeletedFiles).
			Msg("image files deleted but metadata deletion exhausted retries; manual reconciliation required")

		return result, &CriticalError{
			Hash:    hash,
			Deleted: result.DeletedFiles,
			Inner:   lastErr,
		}
	}

	log.Info().
		Str("hash", hash).
		Int("deleted_files", result.DeletedFiles).
		Msg("image deleted")

	return result, nil
}

// SweepAbandoned deletes images that have stayed unlabeled longer than
// maxAge, through the regular deletion protocol so its consistency rules
// hold. Returns the number of images removed.
func (s *Service) SweepAbandoned(
	ctx context.Context,
	maxAge time.Duration,
) (int, error) {
	abandoned, err := s.db.AbandonedImages(ctx, time.Now().Add(-maxAge))
	if err != nil {
		return 0, err
	}

	swept := 0
	for _, image := range abandoned {
		if _, err := s.DeleteImage(ctx, image.Hash, true); err != nil {
			log.Warn().
				Err(err).
				Str("hash", image.Hash).
				Msg("retention sweep failed to delete abandoned image")

			continue
		}
		swept++
	}

	if swept > 0 {
		log.Info().Int("count", swept).Msg("retention sweep removed abandoned images")
	}

	return swept, nil
}
