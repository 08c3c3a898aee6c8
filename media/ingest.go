package media

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"image-registry/codec"
	"image-registry/orm"

	"github.com/rs/zerolog/log"
)

// SaveRequest describes one uploaded file. Either Data holds the bytes
// in-memory or TempPath points at a spooled temporary file; a temporary
// file is always removed before SaveImage returns.
type SaveRequest struct {
	Data     []byte
	TempPath string

	FileName    string
	ContentType string

	Alt         string
	Description string
	Labels      []string

	// ErrorOnDuplicate rejects content whose hash already exists instead of
	// refreshing it.
	ErrorOnDuplicate bool
}

// SaveResult reports a successful ingestion. Warnings carry non-fatal
// problems, typically missing alternate-format renditions.
type SaveResult struct {
	Hash     string   `json:"hash"`
	Src      string   `json:"src"`
	Width    int      `json:"width"`
	Height   int      `json:"height"`
	Warnings []string `json:"warnings,omitempty"`
}

// SaveImage validates an uploaded file, derives its content-addressed
// identity, generates the variant matrix and persists the metadata. It
// either fully succeeds (possibly with warnings) or fully fails with no
// orphaned metadata. Re-running it for byte-identical content reproduces the
// same hash and wholesale-replaces variants and labels, so it is safe to
// retry after a partial prior failure.
func (s *Service) SaveImage(
	ctx context.Context,
	req SaveRequest,
) (*SaveResult, error) {
	data := req.Data
	if req.TempPath != "" {
		// The spooled file must not outlive this call, success or not.
		defer func() {
			if err := os.Remove(req.TempPath); err != nil && !os.IsNotExist(err) {
				log.Warn().
					Err(err).
					Str("path", req.TempPath).
					Msg("failed to remove temporary upload file")
			}
		}()

		if data == nil {
			var err error
			data, err = os.ReadFile(req.TempPath)
			if err != nil {
				return nil, fmt.Errorf("failed to read temporary upload file: %w", err)
			}
		}
	}

	if len(data) == 0 {
		return nil, &ValidationError{Reason: "upload is empty"}
	}

	if !strings.HasPrefix(req.ContentType, "image/") {
		return nil, &ValidationError{
			Reason: "declared MIME type is not an image type: " + req.ContentType,
		}
	}

	ext := strings.ToLower(filepath.Ext(req.FileName))
	extFormat, ok := codec.FormatFromExtension(ext)
	if !ok {
		return nil, &ValidationError{
			Reason: "file extension is not supported: " + ext,
		}
	}

	parts, err := s.FindFileName(ctx, req.FileName, s.opts.DefaultFolder)
	if err != nil {
		return nil, err
	}
	if parts.Name == "" {
		return nil, &ValidationError{
			Reason: "filename does not resolve to a file: " + req.FileName,
		}
	}

	img, srcFormat, err := s.codec.Decode(data)
	if err != nil {
		if extFormat == codec.FormatHEIC {
			// No in-process decoder, so the mandatory transcode to the
			// primary format cannot happen.
			return nil, &TranscodeError{
				Format: string(extFormat),
				Inner:  codec.ErrTranscodeUnavailable,
			}
		}

		return nil, &ValidationError{Reason: "image data could not be decoded"}
	}

	width := img.Bounds().Dx()
	height := img.Bounds().Dy()
	if width > s.opts.MaxDimension || height > s.opts.MaxDimension {
		return nil, &ValidationError{
			Reason: fmt.Sprintf(
				"image dimensions %dx%d exceed the maximum of %dpx",
				width, height, s.opts.MaxDimension,
			),
		}
	}
	if width < s.opts.MinDimension || height < s.opts.MinDimension {
		return nil, &ValidationError{
			Reason: fmt.Sprintf(
				"image dimensions %dx%d fall below the minimum of %dpx",
				width, height, s.opts.MinDimension,
			),
		}
	}

	if srcFormat.IsLegacy() {
		transcoded, err := s.codec.Transcode(data, srcFormat)
		if err != nil {
			return nil, &TranscodeError{Format: string(srcFormat), Inner: err}
		}

		data = transcoded
		srcFormat = codec.FormatJPEG
		parts.Ext = srcFormat.Extension()

		// The extension changed, so the resolved slot family must be
		// re-checked under the new name.
		parts, err = s.resolveSlots(ctx, parts)
		if err != nil {
			return nil, err
		}

		img, _, err = s.codec.Decode(data)
		if err != nil {
			return nil, &TranscodeError{Format: string(srcFormat), Inner: err}
		}
	}

	// The content hash over the (possibly transcoded) bytes is the image's
	// permanent identity.
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	exists, err := s.db.ImageExists(ctx, hash)
	if err != nil {
		return nil, err
	}
	if exists && req.ErrorOnDuplicate {
		return nil, &DuplicateError{Hash: hash}
	}

	var warnings []string
	var alternateFailures []string

	// Full-size rendition in the primary format.
	if err := s.store.Write(ctx, parts.Src(), data); err != nil {
		return nil, fmt.Errorf("failed to write full-size rendition: %w", err)
	}

	fullVariants := []orm.ImageVariant{{
		Src:     parts.Src(),
		SizeTag: FullSizeTag,
		Width:   width,
		Height:  height,
	}}

	// No alternate when the primary already is WebP, by format or by
	// extension: alternateSrc would collide with the primary path.
	wantAlternate := srcFormat != codec.FormatWebP && parts.Ext != ".webp"

	if wantAlternate {
		webpSrc := alternateSrc(parts, "")
		webpData, err := s.codec.EncodeWebP(img)
		if err == nil {
			err = s.store.Write(ctx, webpSrc, webpData)
		}
		if err != nil {
			// Non-fatal: the primary-format file remains authoritative.
			log.Warn().
				Err(err).
				Str("src", webpSrc).
				Msg("failed to generate alternate-format rendition")
			alternateFailures = append(alternateFailures, FullSizeTag)
		} else {
			fullVariants = append(fullVariants, orm.ImageVariant{
				Src:     webpSrc,
				SizeTag: FullSizeTag,
				Width:   width,
				Height:  height,
			})
		}
	}

	image := &orm.Image{
		Hash:        hash,
		Alt:         req.Alt,
		Description: req.Description,
	}
	if err := s.db.UpsertImage(ctx, image, len(req.Labels) > 0); err != nil {
		return nil, err
	}

	if err := s.db.ReplaceVariants(ctx, hash, fullVariants); err != nil {
		return nil, err
	}

	if err := s.db.ReplaceLabels(ctx, hash, req.Labels); err != nil {
		return nil, err
	}

	longer := width
	if height > longer {
		longer = height
	}

	for _, size := range PlanSizes(width, height) {
		if size.MaxSide == longer {
			// Already covered by the full-size rendition.
			continue
		}

		resized := s.codec.Resize(img, size.MaxSide)
		resizedWidth := resized.Bounds().Dx()
		resizedHeight := resized.Bounds().Dy()

		primarySrc := sizedSrc(parts, size.Tag)
		primaryData, err := s.codec.Encode(resized, srcFormat)
		if err == nil {
			err = s.store.Write(ctx, primarySrc, primaryData)
		}
		if err != nil {
			// Fatal for this size only; remaining sizes still run.
			log.Error().
				Err(err).
				Str("src", primarySrc).
				Msg("failed to generate resized rendition")
			warnings = append(warnings, fmt.Sprintf(
				"failed to generate %q rendition: %v", size.Tag, err,
			))

			continue
		}

		if err := s.db.AddVariant(ctx, &orm.ImageVariant{
			Hash:    hash,
			Src:     primarySrc,
			SizeTag: size.Tag,
			Width:   resizedWidth,
			Height:  resizedHeight,
		}); err != nil {
			return nil, err
		}

		if !wantAlternate {
			continue
		}

		webpSrc := alternateSrc(parts, size.Tag)
		webpData, err := s.codec.EncodeWebP(resized)
		if err == nil {
			err = s.store.Write(ctx, webpSrc, webpData)
		}
		if err != nil {
			log.Warn().
				Err(err).
				Str("src", webpSrc).
				Msg("failed to generate alternate-format rendition")
			alternateFailures = append(alternateFailures, size.Tag)

			continue
		}

		if err := s.db.AddVariant(ctx, &orm.ImageVariant{
			Hash:    hash,
			Src:     webpSrc,
			SizeTag: size.Tag,
			Width:   resizedWidth,
			Height:  resizedHeight,
		}); err != nil {
			return nil, err
		}
	}

	if len(alternateFailures) > 0 {
		warnings = append(warnings, fmt.Sprintf(
			"alternate-format rendition failed for %d size(s): %s",
			len(alternateFailures),
			strings.Join(alternateFailures, ", "),
		))
	}

	log.Info().
		Str("hash", hash).
		Str("src", parts.Src()).
		Int("width", width).
		Int("height", height).
		Int("warnings", len(warnings)).
		Msg("image ingested")

	return &SaveResult{
		Hash:     hash,
		Src:      parts.Src(),
		Width:    width,
		Height:   height,
		Warnings: warnings,
	}, nil
}

// sizedSrc names a resized rendition in the primary format.
func sizedSrc(parts PathParts, tag string) string {
	sized := parts
	sized.Name = parts.Name + "-" + tag

	return sized.Src()
}

// alternateSrc names a WebP rendition; an empty tag means full size.
func alternateSrc(parts PathParts, tag string) string {
	alternate := parts
	if tag != "" {
		alternate.Name = parts.Name + "-" + tag
	}
	alternate.Ext = ".webp"

	return alternate.Src()
}

// renditionPaths lists every path an ingestion of the given name may write:
// the full-size primary, each ladder rendition and the WebP alternates. The
// name resolver probes all of them so no upload can land a rendition on
// another upload's file.
func renditionPaths(parts PathParts) []string {
	alternates := parts.Ext != ".webp"

	paths := []string{parts.Src()}
	if alternates {
		paths = append(paths, alternateSrc(parts, ""))
	}
	for _, size := range sizeLadder {
		paths = append(paths, sizedSrc(parts, size.Tag))
		if alternates {
			paths = append(paths, alternateSrc(parts, size.Tag))
		}
	}

	return paths
}
