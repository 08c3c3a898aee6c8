package media

import (
	"context"
	"fmt"
	"time"

	"image-registry/codec"
	"image-registry/orm"
	"image-registry/redislock"
	"image-registry/store"
)

// Options tunes the media service. Zero values fall back to defaults.
type Options struct {
	DefaultFolder string
	MaxDimension  int
	MinDimension  int
	// NameAttempts bounds the numeric-suffix probing of FindFileName.
	NameAttempts int
	// LockWait bounds how long a deletion waits for the per-image lock.
	// Sized for large variant sets.
	LockWait time.Duration
	// MetaDeleteAttempts bounds the metadata deletion retries.
	MetaDeleteAttempts int
	// Oracles are the best-effort secondary usage channels consulted by the
	// usage scanner in addition to the relational data.
	Oracles []UsageOracle
}

func (o *Options) applyDefaults() {
	if o.DefaultFolder == "" {
		o.DefaultFolder = "images"
	}
	if o.MaxDimension == 0 {
		o.MaxDimension = 6000
	}
	if o.MinDimension == 0 {
		o.MinDimension = 10
	}
	if o.NameAttempts == 0 {
		o.NameAttempts = 50
	}
	if o.LockWait == 0 {
		o.LockWait = 30 * time.Second
	}
	if o.MetaDeleteAttempts == 0 {
		o.MetaDeleteAttempts = 3
	}
}

// Service owns the image lifecycle: ingestion, usage scanning and deletion.
// All collaborators are injected so the components stay testable in
// isolation.
type Service struct {
	db     *orm.DB
	store  store.Store
	codec  codec.Codec
	locker redislock.Locker
	opts   Options
}

// NewService creates a media service over the given metadata store, blob
// store, codec and lock client.
func NewService(
	db *orm.DB,
	blobStore store.Store,
	imageCodec codec.Codec,
	locker redislock.Locker,
	opts Options,
) *Service {
	opts.applyDefaults()

	return &Service{
		db:     db,
		store:  blobStore,
		codec:  imageCodec,
		locker: locker,
		opts:   opts,
	}
}

// FindFileName sanitizes the desired name and probes the blob store for a
// free slot, appending -0, -1, ... up to the attempt budget. The returned
// name was free at check time only; concurrent callers may still collide at
// write time, and such a write failure is retryable.
func (s *Service) FindFileName(
	ctx context.Context,
	desired, defaultFolder string,
) (PathParts, error) {
	parts := CleanPath(desired, defaultFolder)
	if parts.Empty() || parts.IsDirectory() {
		return parts, nil
	}

	return s.resolveSlots(ctx, parts)
}

// resolveSlots probes for a name whose whole rendition family is free: the
// base path plus every size-tagged and alternate-format path an ingestion of
// that name may write. Probing only the base path would let a later upload's
// size-tagged rendition clobber an earlier upload's file.
func (s *Service) resolveSlots(
	ctx context.Context,
	parts PathParts,
) (PathParts, error) {
	candidate := parts
	for attempt := -1; attempt < s.opts.NameAttempts; attempt++ {
		if attempt >= 0 {
			candidate.Name = fmt.Sprintf("%s-%d", parts.Name, attempt)
		}

		free, err := s.familyFree(ctx, candidate)
		if err != nil {
			return PathParts{}, err
		}
		if free {
			return candidate, nil
		}
	}

	return PathParts{}, &ResolveError{
		Desired:  parts.Src(),
		Attempts: s.opts.NameAttempts,
	}
}

func (s *Service) familyFree(ctx context.Context, parts PathParts) (bool, error) {
	for _, src := range renditionPaths(parts) {
		exists, err := s.store.Exists(ctx, src)
		if err != nil {
			return false, fmt.Errorf("failed to probe filename %q: %w", src, err)
		}
		if exists {
			return false, nil
		}
	}

	return true, nil
}
