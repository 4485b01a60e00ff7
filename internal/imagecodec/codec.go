// Package imagecodec normalizes uploaded screenshots into the single raster
// format sent to model providers.
package imagecodec

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"

	"github.com/rwcarlsen/goexif/exif"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"shotlate/internal/domain"
	"shotlate/internal/infra"
)

const (
	// TransportMIMEType is the canonical format of every encoded image.
	TransportMIMEType = "image/png"

	// DefaultMaxDimension bounds the longest edge of the transport image.
	// Screenshot text stays legible at this size and payloads stay small.
	DefaultMaxDimension = 2048

	maxSourcePixels = 100_000_000
)

// TransportImage is the re-encoded payload sent to a backend.
type TransportImage struct {
	MIMEType     string
	Data         []byte
	Width        int
	Height       int
	SourceFormat string
}

// Base64 returns the standard base64 encoding of the payload.
func (t TransportImage) Base64() string {
	return base64.StdEncoding.EncodeToString(t.Data)
}

// DataURL returns the payload as a data: URL.
func (t TransportImage) DataURL() string {
	return "data:" + t.MIMEType + ";base64," + t.Base64()
}

// Options configures a Codec.
type Options struct {
	MaxDimension int
	Logger       *infra.Logger
}

// Codec decodes any supported raster image and re-encodes it as PNG.
type Codec struct {
	maxDimension int
	logger       *infra.Logger
}

// New constructs a Codec. A non-positive MaxDimension selects the default.
func New(opts Options) *Codec {
	maxDim := opts.MaxDimension
	if maxDim <= 0 {
		maxDim = DefaultMaxDimension
	}
	return &Codec{maxDimension: maxDim, logger: infra.LoggerOrDiscard(opts.Logger)}
}

// Encode decodes raw and returns the canonical transport image. It never
// touches the network or shared state. Unsupported or corrupt input yields an
// error wrapping domain.ErrDecode.
func (c *Codec) Encode(raw []byte) (TransportImage, error) {
	if len(raw) == 0 {
		return TransportImage{}, fmt.Errorf("%w: empty payload", domain.ErrDecode)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return TransportImage{}, fmt.Errorf("%w: %v", domain.ErrDecode, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width*cfg.Height > maxSourcePixels {
		return TransportImage{}, fmt.Errorf("%w: unsupported dimensions %dx%d", domain.ErrDecode, cfg.Width, cfg.Height)
	}

	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return TransportImage{}, fmt.Errorf("%w: %v", domain.ErrDecode, err)
	}

	if format == "jpeg" {
		if orientation := exifOrientation(raw); orientation != 1 {
			img = applyOrientation(img, orientation)
			c.logger.Debug().Int("orientation", orientation).Msg("imagecodec: applied exif orientation")
		}
	}

	img = c.fit(img)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return TransportImage{}, fmt.Errorf("%w: encode png: %v", domain.ErrDecode, err)
	}

	bounds := img.Bounds()
	c.logger.Debug().
		Str("source_format", format).
		Int("source_bytes", len(raw)).
		Int("transport_bytes", buf.Len()).
		Int("width", bounds.Dx()).
		Int("height", bounds.Dy()).
		Msg("imagecodec: encoded image")

	return TransportImage{
		MIMEType:     TransportMIMEType,
		Data:         buf.Bytes(),
		Width:        bounds.Dx(),
		Height:       bounds.Dy(),
		SourceFormat: format,
	}, nil
}

// fit scales img down so its longest edge is at most maxDimension,
// preserving the aspect ratio. Smaller images are returned unchanged.
func (c *Codec) fit(img image.Image) image.Image {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width <= c.maxDimension && height <= c.maxDimension {
		return img
	}

	scale := float64(c.maxDimension) / float64(width)
	if s := float64(c.maxDimension) / float64(height); s < scale {
		scale = s
	}
	newWidth := maxInt(1, int(float64(width)*scale))
	newHeight := maxInt(1, int(float64(height)*scale))

	dst := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Src, nil)
	return dst
}

func exifOrientation(raw []byte) int {
	x, err := exif.Decode(bytes.NewReader(raw))
	if err != nil {
		return 1
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 1
	}
	v, err := tag.Int(0)
	if err != nil {
		return 1
	}
	return v
}

// applyOrientation rotates/flips img according to an EXIF orientation value
// (2..8). Other values return img unchanged.
func applyOrientation(img image.Image, orientation int) image.Image {
	if orientation < 2 || orientation > 8 {
		return img
	}
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	dw, dh := w, h
	if orientation >= 5 {
		dw, dh = h, w
	}
	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dx, dy := orientedPoint(orientation, x, y, w, h)
			dst.Set(dx, dy, img.At(bounds.Min.X+x, bounds.Min.Y+y))
		}
	}
	return dst
}

func orientedPoint(orientation, x, y, w, h int) (int, int) {
	switch orientation {
	case 2: // mirror horizontal
		return w - 1 - x, y
	case 3: // rotate 180
		return w - 1 - x, h - 1 - y
	case 4: // mirror vertical
		return x, h - 1 - y
	case 5: // transpose
		return y, x
	case 6: // rotate 90 clockwise
		return h - 1 - y, x
	case 7: // transverse
		return h - 1 - y, w - 1 - x
	case 8: // rotate 90 counter-clockwise
		return y, w - 1 - x
	default:
		return x, y
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
