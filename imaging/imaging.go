// Package imaging normalizes uploaded doodles onto a fixed canvas,
// fingerprints them and screens out blank submissions.
package imaging

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"regexp"
	"strings"

	"github.com/nfnt/resize"
	_ "golang.org/x/image/webp"
)

const (
	// CanvasSize is the edge length in pixels of the normalized square canvas.
	CanvasSize = 400
	// MaxBytes is the size ceiling for raw uploads.
	MaxBytes = 5 << 20
	// MaxSide and MaxPixels bound the dimensions an upload may declare
	// before its pixels are decoded.
	MaxSide   = 8192
	MaxPixels = 4096 * 4096

	blankLow  = 10
	blankHigh = 245
)

var (
	ErrEmpty    = errors.New("empty image")
	ErrTooLarge = errors.New("image exceeds size limit")
	ErrTooBig   = errors.New("image dimensions exceed limit")
)

var dataURIPrefix = regexp.MustCompile(`^data:image/[\w.+-]+;base64,`)

// DecodeDataURI returns the bytes encoded in a base64 image data URI. A bare
// base64 string without the data: prefix is accepted too.
func DecodeDataURI(s string) ([]byte, error) {
	payload := strings.TrimSpace(dataURIPrefix.ReplaceAllString(s, ""))
	if payload == "" {
		return nil, nil
	}
	b, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		b, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		if err != nil {
			return nil, fmt.Errorf("decode base64: %w", err)
		}
	}
	return b, nil
}

// Processor implements the normalization steps of the submission pipeline.
// The zero value is ready to use.
type Processor struct{}

// Normalize decodes raw, scales it to fit a CanvasSize square while keeping
// its aspect ratio, centers it on a white background and encodes the result
// as PNG.
func (Processor) Normalize(raw []byte) ([]byte, error) {
	if len(raw) == 0 {
		return nil, ErrEmpty
	}
	if len(raw) > MaxBytes {
		return nil, ErrTooLarge
	}

	src, err := decode(raw)
	if err != nil {
		return nil, err
	}

	w, h := fit(src.Bounds().Dx(), src.Bounds().Dy(), CanvasSize)
	scaled := resize.Resize(uint(w), uint(h), src, resize.Lanczos3)

	canvas := image.NewNRGBA(image.Rect(0, 0, CanvasSize, CanvasSize))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	offset := image.Pt((CanvasSize-w)/2, (CanvasSize-h)/2)
	dst := image.Rectangle{Min: offset, Max: offset.Add(image.Pt(w, h))}
	draw.Draw(canvas, dst, scaled, scaled.Bounds().Min, draw.Over)

	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.DefaultCompression}
	if err := enc.Encode(&buf, canvas); err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	return buf.Bytes(), nil
}

// decode reads the header of b and rejects oversized dimensions before
// allocating the pixel buffer.
func decode(b []byte) (image.Image, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Width > MaxSide || cfg.Height > MaxSide || cfg.Width*cfg.Height > MaxPixels {
		return nil, fmt.Errorf("%w: %dx%d", ErrTooBig, cfg.Width, cfg.Height)
	}
	img, _, err := image.Decode(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return img, nil
}

// fit returns the dimensions of a w×h rectangle scaled to fit a size×size
// square.
func fit(w, h, size int) (int, int) {
	if w <= 0 || h <= 0 {
		return size, size
	}
	if w >= h {
		nh := (h*size + w/2) / w
		return size, max(nh, 1)
	}
	nw := (w*size + h/2) / h
	return max(nw, 1), size
}

// Fingerprint returns the hex SHA-256 digest of b.
func (Processor) Fingerprint(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// IsLikelyBlank reports whether the encoded image is near-black or near-white
// across all of its red, green and blue channels.
func (Processor) IsLikelyBlank(b []byte) (bool, error) {
	img, err := decode(b)
	if err != nil {
		return false, err
	}
	r, g, bl := ChannelMeans(img)
	dark := r < blankLow && g < blankLow && bl < blankLow
	light := r > blankHigh && g > blankHigh && bl > blankHigh
	return dark || light, nil
}

// ChannelMeans returns the mean 8-bit brightness of each color channel.
func ChannelMeans(img image.Image) (r, g, b float64) {
	bounds := img.Bounds()
	n := float64(bounds.Dx() * bounds.Dy())
	if n == 0 {
		return 0, 0, 0
	}
	var sr, sg, sb uint64
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			sr += uint64(c.R)
			sg += uint64(c.G)
			sb += uint64(c.B)
		}
	}
	return float64(sr) / n, float64(sg) / n, float64(sb) / n
}
