package testutil

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math/rand/v2"
	"testing"
)

// SolidJPEG encodes a single-colour w×h JPEG. Such images compress to a
// few hundred bytes at any quality.
func SolidJPEG(tb testing.TB, w, h int) []byte {
	tb.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	fill := color.RGBA{R: 200, G: 120, B: 40, A: 255}
	for y := range h {
		for x := range w {
			img.Set(x, y, fill)
		}
	}
	return encodeJPEG(tb, img)
}

// NoiseJPEG encodes w×h of seeded random pixels. Noise is close to
// incompressible, so output size falls only slowly with quality.
func NoiseJPEG(tb testing.TB, w, h int, seed uint64) []byte {
	tb.Helper()
	return encodeJPEG(tb, noise(w, h, seed))
}

// NoisePNG is NoiseJPEG in PNG form, for exercising non-JPEG input.
func NoisePNG(tb testing.TB, w, h int, seed uint64) []byte {
	tb.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, noise(w, h, seed)); err != nil {
		tb.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func noise(w, h int, seed uint64) *image.RGBA {
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)) //nolint:gosec // test fixture
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = byte(r.UintN(256))
	}
	return img
}

func encodeJPEG(tb testing.TB, img image.Image) []byte {
	tb.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}); err != nil {
		tb.Fatalf("encode jpeg: %v", err)
	}
	return buf.Bytes()
}

// PNGHeader returns a PNG signature and IHDR chunk declaring a w×h 8-bit
// grayscale image with no pixel data. image.DecodeConfig accepts it.
func PNGHeader(tb testing.TB, w, h uint32) []byte {
	tb.Helper()
	var ihdr [13]byte
	binary.BigEndian.PutUint32(ihdr[0:4], w)
	binary.BigEndian.PutUint32(ihdr[4:8], h)
	ihdr[8] = 8 // bit depth; colour type, compression, filter, interlace are 0

	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	_ = binary.Write(&buf, binary.BigEndian, uint32(len(ihdr)))
	crc := crc32.NewIEEE()
	_, _ = crc.Write([]byte("IHDR"))
	_, _ = crc.Write(ihdr[:])
	buf.WriteString("IHDR")
	buf.Write(ihdr[:])
	_ = binary.Write(&buf, binary.BigEndian, crc.Sum32())
	return buf.Bytes()
}

// Truncate returns the first third of data. For JPEG fixtures the header
// survives, so the result passes image.DecodeConfig but not image.Decode.
func Truncate(data []byte) []byte {
	return append([]byte(nil), data[:len(data)/3]...)
}
