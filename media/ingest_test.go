package media

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"image-registry/codec"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveImage(t *testing.T) {
	ctx := t.Context()

	t.Run("happy path generates the variant matrix", func(t *testing.T) {
		env := newTestEnv(t, Options{})

		result, err := env.svc.SaveImage(ctx, SaveRequest{
			Data:        pngUpload(t, 500, 300),
			FileName:    "test.png",
			ContentType: "image/png",
			Alt:         "a test image",
		})
		require.NoError(t, err)
		assert.Len(t, result.Hash, 64)
		assert.Equal(t, "images/test.png", result.Src)
		assert.Equal(t, 500, result.Width)
		assert.Equal(t, 300, result.Height)
		assert.Empty(t, result.Warnings)

		// xxl + 3 planned sizes (icon, thumb, xs), each in png and webp.
		assert.Equal(t, 8, env.store.Count())

		img, err := env.db.GetImage(ctx, result.Hash)
		require.NoError(t, err)
		assert.Len(t, img.Variants, 8)
		assert.NotNil(t, img.UnlabeledSince)

		// Every variant row references a file that exists.
		for _, variant := range img.Variants {
			exists, err := env.store.Exists(ctx, variant.Src)
			require.NoError(t, err)
			assert.True(t, exists, "variant %s has no file", variant.Src)
		}
	})

	t.Run("labels clear the unlabeled timestamp and keep order", func(t *testing.T) {
		env := newTestEnv(t, Options{})

		result, err := env.svc.SaveImage(ctx, SaveRequest{
			Data:        pngUpload(t, 120, 120),
			FileName:    "labeled.png",
			ContentType: "image/png",
			Labels:      []string{"gallery", "seasonal"},
		})
		require.NoError(t, err)

		img, err := env.db.GetImage(ctx, result.Hash)
		require.NoError(t, err)
		assert.Nil(t, img.UnlabeledSince)
		require.Len(t, img.Labels, 2)
	})

	t.Run("re-ingesting identical content is idempotent", func(t *testing.T) {
		env := newTestEnv(t, Options{})
		data := pngUpload(t, 200, 200)

		first, err := env.svc.SaveImage(ctx, SaveRequest{
			Data: data, FileName: "dup.png", ContentType: "image/png",
		})
		require.NoError(t, err)

		second, err := env.svc.SaveImage(ctx, SaveRequest{
			Data: data, FileName: "dup.png", ContentType: "image/png",
		})
		require.NoError(t, err)

		assert.Equal(t, first.Hash, second.Hash)

		// Exactly one image row; variants were wholesale-replaced and point
		// at the re-resolved filenames.
		img, err := env.db.GetImage(ctx, first.Hash)
		require.NoError(t, err)
		for _, variant := range img.Variants {
			assert.Contains(t, variant.Src, "dup-0")
		}
	})

	t.Run("errorOnDuplicate rejects identical content", func(t *testing.T) {
		env := newTestEnv(t, Options{})
		data := pngUpload(t, 150, 150)

		_, err := env.svc.SaveImage(ctx, SaveRequest{
			Data: data, FileName: "once.png", ContentType: "image/png",
		})
		require.NoError(t, err)

		_, err = env.svc.SaveImage(ctx, SaveRequest{
			Data: data, FileName: "twice.png", ContentType: "image/png",
			ErrorOnDuplicate: true,
		})

		var dupErr *DuplicateError
		assert.ErrorAs(t, err, &dupErr)
	})

	t.Run("non-image MIME type is rejected", func(t *testing.T) {
		env := newTestEnv(t, Options{})

		_, err := env.svc.SaveImage(ctx, SaveRequest{
			Data: pngUpload(t, 100, 100), FileName: "doc.png",
			ContentType: "application/pdf",
		})

		var validationErr *ValidationError
		assert.ErrorAs(t, err, &validationErr)
		assert.Equal(t, 0, env.store.Count())
	})

	t.Run("unsupported extension is rejected", func(t *testing.T) {
		env := newTestEnv(t, Options{})

		_, err := env.svc.SaveImage(ctx, SaveRequest{
			Data: pngUpload(t, 100, 100), FileName: "tool.exe",
			ContentType: "image/png",
		})

		var validationErr *ValidationError
		assert.ErrorAs(t, err, &validationErr)
	})

	t.Run("oversized image leaves no trace", func(t *testing.T) {
		env := newTestEnv(t, Options{MaxDimension: 256})

		_, err := env.svc.SaveImage(ctx, SaveRequest{
			Data: pngUpload(t, 300, 100), FileName: "big.png",
			ContentType: "image/png",
		})

		var validationErr *ValidationError
		require.ErrorAs(t, err, &validationErr)
		assert.Equal(t, 0, env.store.Count())

		abandoned, err := env.db.AbandonedImages(ctx, time.Now().Add(time.Hour))
		require.NoError(t, err)
		assert.Empty(t, abandoned)
	})

	t.Run("degenerate image is rejected", func(t *testing.T) {
		env := newTestEnv(t, Options{})

		_, err := env.svc.SaveImage(ctx, SaveRequest{
			Data: pngUpload(t, 4, 4), FileName: "dot.png",
			ContentType: "image/png",
		})

		var validationErr *ValidationError
		assert.ErrorAs(t, err, &validationErr)
	})

	t.Run("corrupt data is rejected", func(t *testing.T) {
		env := newTestEnv(t, Options{})

		_, err := env.svc.SaveImage(ctx, SaveRequest{
			Data: []byte("not an image at all"), FileName: "bad.png",
			ContentType: "image/png",
		})

		var validationErr *ValidationError
		assert.ErrorAs(t, err, &validationErr)
	})

	t.Run("rendition of a new upload never lands on an existing file", func(t *testing.T) {
		env := newTestEnv(t, Options{})

		first, err := env.svc.SaveImage(ctx, SaveRequest{
			Data: pngUpload(t, 500, 300), FileName: "pic-icon.png",
			ContentType: "image/png",
		})
		require.NoError(t, err)
		require.Equal(t, "images/pic-icon.png", first.Src)

		original, err := env.store.Read(ctx, "images/pic-icon.png")
		require.NoError(t, err)

		// This upload's icon rendition would be named pic-icon.png; the
		// resolver must push the whole family to a fresh name instead.
		second, err := env.svc.SaveImage(ctx, SaveRequest{
			Data: pngUpload(t, 400, 200), FileName: "pic.png",
			ContentType: "image/png",
		})
		require.NoError(t, err)
		assert.Equal(t, "images/pic-0.png", second.Src)

		kept, err := env.store.Read(ctx, "images/pic-icon.png")
		require.NoError(t, err)
		assert.Equal(t, original, kept)
	})

	t.Run("webp upload has no colliding alternate renditions", func(t *testing.T) {
		env := newTestEnv(t, Options{})

		result, err := env.svc.SaveImage(ctx, SaveRequest{
			Data: pngUpload(t, 500, 300), FileName: "shot.webp",
			ContentType: "image/webp",
		})
		require.NoError(t, err)
		assert.Empty(t, result.Warnings)

		img, err := env.db.GetImage(ctx, result.Hash)
		require.NoError(t, err)

		// Full size plus icon/thumb/xs, primary format only: every src is
		// distinct and backed by exactly one file.
		require.Len(t, img.Variants, 4)
		seen := map[string]bool{}
		for _, variant := range img.Variants {
			assert.False(t, seen[variant.Src])
			seen[variant.Src] = true
		}
		assert.Equal(t, 4, env.store.Count())
	})

	t.Run("legacy upload is transcoded to jpeg", func(t *testing.T) {
		env := newTestEnv(t, Options{})

		src, _, err := env.codec.Decode(pngUpload(t, 300, 200))
		require.NoError(t, err)
		bmpData, err := env.codec.Encode(src, codec.FormatBMP)
		require.NoError(t, err)

		result, err := env.svc.SaveImage(ctx, SaveRequest{
			Data: bmpData, FileName: "scan.bmp", ContentType: "image/bmp",
		})
		require.NoError(t, err)
		assert.Equal(t, "images/scan.jpg", result.Src)

		// Identity is the digest of the transcoded bytes, not the upload.
		jpegData, err := env.codec.Transcode(bmpData, codec.FormatBMP)
		require.NoError(t, err)
		expected := sha256.Sum256(jpegData)
		assert.Equal(t, hex.EncodeToString(expected[:]), result.Hash)

		stored, err := env.store.Read(ctx, "images/scan.jpg")
		require.NoError(t, err)
		assert.Equal(t, jpegData, stored)

		// Re-ingesting the same bmp reproduces the hash and stays one image.
		again, err := env.svc.SaveImage(ctx, SaveRequest{
			Data: bmpData, FileName: "scan.bmp", ContentType: "image/bmp",
		})
		require.NoError(t, err)
		assert.Equal(t, result.Hash, again.Hash)

		exists, err := env.db.ImageExists(ctx, result.Hash)
		require.NoError(t, err)
		assert.True(t, exists)
	})

	t.Run("heic upload fails as transcode unavailable", func(t *testing.T) {
		env := newTestEnv(t, Options{})

		_, err := env.svc.SaveImage(ctx, SaveRequest{
			Data: []byte("heic container bytes"), FileName: "photo.heic",
			ContentType: "image/heic",
		})

		var transcodeErr *TranscodeError
		require.ErrorAs(t, err, &transcodeErr)
		assert.ErrorIs(t, err, codec.ErrTranscodeUnavailable)
		assert.Zero(t, env.store.Count())
	})

	t.Run("alternate-format failures are warnings, not errors", func(t *testing.T) {
		env := newTestEnv(t, Options{})
		env.codec.webpErr = errors.New("encoder unavailable")

		result, err := env.svc.SaveImage(ctx, SaveRequest{
			Data: pngUpload(t, 500, 300), FileName: "warned.png",
			ContentType: "image/png",
		})
		require.NoError(t, err)
		require.NotEmpty(t, result.Warnings)
		assert.Contains(t, result.Warnings[len(result.Warnings)-1],
			"alternate-format rendition failed for 4 size(s)")

		// Only the primary-format files were written.
		assert.Equal(t, 4, env.store.Count())

		img, err := env.db.GetImage(ctx, result.Hash)
		require.NoError(t, err)
		assert.Len(t, img.Variants, 4)
	})

	t.Run("temporary file is removed on success and failure", func(t *testing.T) {
		env := newTestEnv(t, Options{})

		tempPath := filepath.Join(t.TempDir(), "spool.png")
		require.NoError(t, os.WriteFile(tempPath, pngUpload(t, 100, 100), 0644))

		_, err := env.svc.SaveImage(ctx, SaveRequest{
			TempPath: tempPath, FileName: "spooled.png",
			ContentType: "image/png",
		})
		require.NoError(t, err)
		assert.NoFileExists(t, tempPath)

		tempPath = filepath.Join(t.TempDir(), "bad-spool.png")
		require.NoError(t, os.WriteFile(tempPath, []byte("garbage"), 0644))

		_, err = env.svc.SaveImage(ctx, SaveRequest{
			TempPath: tempPath, FileName: "bad-spool.png",
			ContentType: "image/png",
		})
		require.Error(t, err)
		assert.NoFileExists(t, tempPath)
	})
}
