package codec

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/kolesa-team/go-webp/decoder"
	"github.com/kolesa-team/go-webp/encoder"
	"github.com/kolesa-team/go-webp/webp"
)

const (
	jpegQuality = 90
	webpQuality = 85
)

// ImagingCodec implements Codec on the imaging and go-webp libraries.
type ImagingCodec struct{}

func NewImagingCodec() *ImagingCodec {
	return &ImagingCodec{}
}

func (c *ImagingCodec) Decode(data []byte) (image.Image, Format, error) {
	// imaging registers jpeg/png/gif/tiff/bmp decoders with the image
	// package; webp needs the dedicated decoder.
	img, name, err := image.Decode(bytes.NewReader(data))
	if err == nil {
		switch name {
		case "jpeg":
			return img, FormatJPEG, nil
		case "png":
			return img, FormatPNG, nil
		case "gif":
			return img, FormatGIF, nil
		case "tiff":
			return img, FormatTIFF, nil
		case "bmp":
			return img, FormatBMP, nil
		}
		return img, Format(name), nil
	}

	webpImg, werr := webp.Decode(bytes.NewReader(data), &decoder.Options{})
	if werr == nil {
		return webpImg, FormatWebP, nil
	}

	return nil, "", fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
}

func (c *ImagingCodec) Resize(img image.Image, maxSide int) image.Image {
	bounds := img.Bounds()
	if bounds.Dx() >= bounds.Dy() {
		return imaging.Resize(img, maxSide, 0, imaging.Lanczos)
	}

	return imaging.Resize(img, 0, maxSide, imaging.Lanczos)
}

func (c *ImagingCodec) Encode(img image.Image, format Format) ([]byte, error) {
	var buf bytes.Buffer
	var err error

	switch format {
	case FormatJPEG:
		err = imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(jpegQuality))
	case FormatPNG:
		err = imaging.Encode(&buf, img, imaging.PNG)
	case FormatGIF:
		err = imaging.Encode(&buf, img, imaging.GIF)
	case FormatTIFF:
		err = imaging.Encode(&buf, img, imaging.TIFF)
	case FormatBMP:
		err = imaging.Encode(&buf, img, imaging.BMP)
	case FormatWebP:
		return c.EncodeWebP(img)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to encode %s image: %w", format, err)
	}

	return buf.Bytes(), nil
}

func (c *ImagingCodec) EncodeWebP(img image.Image) ([]byte, error) {
	options, err := encoder.NewLossyEncoderOptions(encoder.PresetDefault, webpQuality)
	if err != nil {
		return nil, fmt.Errorf("error creating webp encoder options: %w", err)
	}

	var buf bytes.Buffer
	if err := webp.Encode(&buf, img, options); err != nil {
		return nil, fmt.Errorf("error encoding webp image: %w", err)
	}

	return buf.Bytes(), nil
}

func (c *ImagingCodec) Transcode(data []byte, from Format) ([]byte, error) {
	if from == FormatHEIC {
		// No in-process HEIC decoder is linked.
		return nil, fmt.Errorf("%w: %s", ErrTranscodeUnavailable, from)
	}

	img, _, err := c.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrTranscodeUnavailable, from)
	}

	return c.Encode(img, FormatJPEG)
}
