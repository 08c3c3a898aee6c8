package codec

import (
	"errors"
	"image"
	"strings"
)

// ErrTranscodeUnavailable is returned when the runtime has no decoder for a
// legacy format. A missing primary rendition is not acceptable, so callers
// must fail the whole ingestion on this error.
var ErrTranscodeUnavailable = errors.New("transcoding unavailable for format")

// ErrUnsupportedFormat is returned for data that no registered decoder
// understands
var ErrUnsupportedFormat = errors.New("unsupported image format")

// Format identifies an image encoding.
type Format string

const (
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
	FormatGIF  Format = "gif"
	FormatTIFF Format = "tiff"
	FormatBMP  Format = "bmp"
	FormatWebP Format = "webp"
	FormatHEIC Format = "heic"
)

// FormatFromExtension maps a file extension (with leading dot) to a format.
func FormatFromExtension(ext string) (Format, bool) {
	switch strings.ToLower(ext) {
	case ".jpg", ".jpeg":
		return FormatJPEG, true
	case ".png":
		return FormatPNG, true
	case ".gif":
		return FormatGIF, true
	case ".tif", ".tiff":
		return FormatTIFF, true
	case ".bmp":
		return FormatBMP, true
	case ".webp":
		return FormatWebP, true
	case ".heic", ".heif":
		return FormatHEIC, true
	}

	return "", false
}

// Extension returns the canonical file extension for the format, with the
// leading dot.
func (f Format) Extension() string {
	switch f {
	case FormatJPEG:
		return ".jpg"
	case FormatPNG:
		return ".png"
	case FormatGIF:
		return ".gif"
	case FormatTIFF:
		return ".tif"
	case FormatBMP:
		return ".bmp"
	case FormatWebP:
		return ".webp"
	case FormatHEIC:
		return ".heic"
	}

	return ""
}

// IsLegacy reports whether the format belongs to the legacy/non-web set that
// must be transcoded before ingestion proceeds.
func (f Format) IsLegacy() bool {
	switch f {
	case FormatTIFF, FormatBMP, FormatHEIC:
		return true
	}

	return false
}

// Codec is the raster decode/encode/resize boundary. Implementations wrap an
// external image-codec library; the pipeline never touches pixels directly.
type Codec interface {
	// Decode parses the data into pixels and reports the detected format.
	Decode(data []byte) (image.Image, Format, error)
	// Resize scales the image so its longer side equals maxSide, preserving
	// aspect ratio.
	Resize(img image.Image, maxSide int) image.Image
	// Encode renders the image in the given primary format.
	Encode(img image.Image, format Format) ([]byte, error)
	// EncodeWebP renders the compressed alternate-format rendition.
	EncodeWebP(img image.Image) ([]byte, error)
	// Transcode converts legacy-format data into JPEG bytes. Returns
	// ErrTranscodeUnavailable when no decoder exists in this runtime.
	Transcode(data []byte, from Format) ([]byte, error)
}
