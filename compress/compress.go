// Package compress re-encodes images to fit under a byte ceiling.
//
// The search starts at the highest encode quality and walks the quality
// down in fixed steps until the output fits or the quality floor is
// reached. The number of encode attempts is therefore bounded by
// (MaxQuality-MinQuality)/Step + 1 regardless of the input.
package compress

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"

	// Registered for image.Decode.
	_ "image/gif"
	_ "image/png"
)

// Quality search defaults. Qualities follow image/jpeg's 1..100 scale.
const (
	DefaultMaxQuality = 100
	DefaultMinQuality = 10
	DefaultStep       = 10
)

// DefaultMaxPixels bounds the decoded size of an image. Decoding allocates
// the full pixel buffer, so the limit is checked against the header first.
const DefaultMaxPixels = 50_000_000

var (
	// ErrDecode is returned when the input is not a decodable image.
	ErrDecode = errors.New("compress: cannot decode image")

	// ErrExhausted is returned when even the lowest quality exceeds the ceiling.
	ErrExhausted = errors.New("compress: size ceiling unreachable")

	// ErrEncode is returned when the encoder fails.
	ErrEncode = errors.New("compress: encode failed")
)

// ExhaustedError reports the best result reached by a failed search.
type ExhaustedError struct {
	Ceiling  int64
	BestSize int64
	Quality  int
	Attempts int
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("compress: ceiling %d bytes unreachable, best %d bytes at quality %d after %d attempts",
		e.Ceiling, e.BestSize, e.Quality, e.Attempts)
}

// Is reports ErrExhausted so callers can use errors.Is.
func (e *ExhaustedError) Is(target error) bool {
	return target == ErrExhausted
}

// Encoder turns a decoded image into bytes at the given quality.
// Implementations must be stateless and safe for concurrent use.
type Encoder interface {
	Encode(img image.Image, quality int) ([]byte, error)
}

// EncoderFunc adapts a function to Encoder.
type EncoderFunc func(img image.Image, quality int) ([]byte, error)

// Encode calls f.
func (f EncoderFunc) Encode(img image.Image, quality int) ([]byte, error) {
	return f(img, quality)
}

// JPEGEncoder encodes baseline JPEG with image/jpeg.
type JPEGEncoder struct{}

// Encode implements Encoder.
func (JPEGEncoder) Encode(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Result is the outcome of a successful search.
type Result struct {
	Data     []byte
	Quality  int
	Attempts int
}

// Compressor runs the quality search. The zero value is not usable; use New.
type Compressor struct {
	encoder    Encoder
	maxQuality int
	minQuality int
	step       int
	maxPixels  int64
}

// Option configures a Compressor.
type Option func(*Compressor)

// WithEncoder replaces the default JPEG encoder.
func WithEncoder(enc Encoder) Option {
	return func(c *Compressor) {
		c.encoder = enc
	}
}

// WithQualityRange sets the starting quality, the floor and the decrement.
func WithQualityRange(maxQuality, minQuality, step int) Option {
	return func(c *Compressor) {
		c.maxQuality = maxQuality
		c.minQuality = minQuality
		c.step = step
	}
}

// WithMaxPixels sets the largest width*height Decode accepts.
func WithMaxPixels(n int64) Option {
	return func(c *Compressor) {
		c.maxPixels = n
	}
}

// New creates a Compressor.
func New(opts ...Option) (*Compressor, error) {
	c := &Compressor{
		encoder:    JPEGEncoder{},
		maxQuality: DefaultMaxQuality,
		minQuality: DefaultMinQuality,
		step:       DefaultStep,
		maxPixels:  DefaultMaxPixels,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.encoder == nil {
		return nil, errors.New("compress: encoder is nil")
	}
	if c.minQuality < 1 || c.maxQuality > 100 || c.minQuality > c.maxQuality {
		return nil, fmt.Errorf("compress: invalid quality range [%d, %d]", c.minQuality, c.maxQuality)
	}
	if c.step <= 0 {
		return nil, fmt.Errorf("compress: quality step must be > 0, got %d", c.step)
	}
	if c.maxPixels <= 0 {
		return nil, fmt.Errorf("compress: max pixels must be > 0, got %d", c.maxPixels)
	}
	return c, nil
}

// MaxAttempts returns the upper bound on encode calls per Compress.
func (c *Compressor) MaxAttempts() int {
	return (c.maxQuality-c.minQuality)/c.step + 1
}

// Decode parses raw as an image after checking that its declared
// dimensions do not exceed maxPixels. Every pixel is decoded, so truncated
// or corrupt payloads are rejected even when their header is intact.
func Decode(raw []byte, maxPixels int64) (image.Image, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrDecode)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("%w: empty %dx%d image", ErrDecode, cfg.Width, cfg.Height)
	}
	if int64(cfg.Width)*int64(cfg.Height) > maxPixels {
		return nil, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrDecode, cfg.Width, cfg.Height, maxPixels)
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return img, nil
}

// Decode parses raw with the compressor's pixel limit.
func (c *Compressor) Decode(raw []byte) (image.Image, error) {
	return Decode(raw, c.maxPixels)
}

// Compress decodes raw and re-encodes it at decreasing quality until the
// output is at most ceiling bytes.
func (c *Compressor) Compress(raw []byte, ceiling int64) (Result, error) {
	if ceiling <= 0 {
		return Result{}, fmt.Errorf("compress: ceiling must be > 0, got %d", ceiling)
	}
	img, err := c.Decode(raw)
	if err != nil {
		return Result{}, err
	}

	var (
		best        []byte
		bestQuality int
		attempts    int
	)
	for quality := c.maxQuality; quality >= c.minQuality; quality -= c.step {
		attempts++
		out, err := c.encoder.Encode(img, quality)
		if err != nil {
			return Result{}, fmt.Errorf("%w at quality %d: %v", ErrEncode, quality, err)
		}
		if int64(len(out)) <= ceiling {
			return Result{Data: out, Quality: quality, Attempts: attempts}, nil
		}
		if best == nil || len(out) < len(best) {
			best, bestQuality = out, quality
		}
	}

	return Result{}, &ExhaustedError{
		Ceiling:  ceiling,
		BestSize: int64(len(best)),
		Quality:  bestQuality,
		Attempts: attempts,
	}
}
