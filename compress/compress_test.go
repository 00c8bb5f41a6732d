package compress

import (
	"bytes"
	"errors"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/imgcache/internal/testutil"
)

func TestNew(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		opts    []Option
		wantErr bool
	}{
		{name: "defaults"},
		{name: "custom range", opts: []Option{WithQualityRange(90, 30, 20)}},
		{name: "single quality", opts: []Option{WithQualityRange(50, 50, 1)}},
		{name: "nil encoder", opts: []Option{WithEncoder(nil)}, wantErr: true},
		{name: "floor below 1", opts: []Option{WithQualityRange(100, 0, 10)}, wantErr: true},
		{name: "max above 100", opts: []Option{WithQualityRange(101, 10, 10)}, wantErr: true},
		{name: "inverted range", opts: []Option{WithQualityRange(10, 20, 5)}, wantErr: true},
		{name: "zero step", opts: []Option{WithQualityRange(100, 10, 0)}, wantErr: true},
		{name: "negative step", opts: []Option{WithQualityRange(100, 10, -10)}, wantErr: true},
		{name: "zero max pixels", opts: []Option{WithMaxPixels(0)}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c, err := New(tt.opts...)
			if tt.wantErr {
				require.Error(t, err)
				assert.Nil(t, c)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, c)
		})
	}
}

func TestMaxAttempts(t *testing.T) {
	t.Parallel()

	c, err := New()
	require.NoError(t, err)
	assert.Equal(t, 10, c.MaxAttempts())

	c, err = New(WithQualityRange(90, 30, 20))
	require.NoError(t, err)
	assert.Equal(t, 4, c.MaxAttempts()) // 90, 70, 50, 30
}

func TestCompressFitsFirstAttempt(t *testing.T) {
	t.Parallel()

	c, err := New()
	require.NoError(t, err)

	raw := testutil.SolidJPEG(t, 64, 64)
	res, err := c.Compress(raw, 1<<20)
	require.NoError(t, err)

	assert.Equal(t, DefaultMaxQuality, res.Quality)
	assert.Equal(t, 1, res.Attempts)
	assert.LessOrEqual(t, len(res.Data), 1<<20)

	cfg, format, err := image.DecodeConfig(bytes.NewReader(res.Data))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 64, cfg.Width)
	assert.Equal(t, 64, cfg.Height)
}

func TestCompressStepsDownQuality(t *testing.T) {
	t.Parallel()

	// Output size shrinks linearly with quality; only q<=60 fits.
	var seen []int
	enc := EncoderFunc(func(_ image.Image, quality int) ([]byte, error) {
		seen = append(seen, quality)
		return make([]byte, quality*10), nil
	})
	c, err := New(WithEncoder(enc))
	require.NoError(t, err)

	res, err := c.Compress(testutil.SolidJPEG(t, 8, 8), 600)
	require.NoError(t, err)

	assert.Equal(t, 60, res.Quality)
	assert.Equal(t, 5, res.Attempts)
	assert.Len(t, res.Data, 600)
	assert.Equal(t, []int{100, 90, 80, 70, 60}, seen)
}

func TestCompressRealImageUnderCeiling(t *testing.T) {
	t.Parallel()

	c, err := New()
	require.NoError(t, err)

	raw := testutil.NoiseJPEG(t, 128, 128, 1)
	ceiling := int64(len(raw)) / 2

	res, err := c.Compress(raw, ceiling)
	require.NoError(t, err)
	assert.LessOrEqual(t, int64(len(res.Data)), ceiling)
	assert.Less(t, res.Quality, DefaultMaxQuality)
	assert.LessOrEqual(t, res.Attempts, c.MaxAttempts())
}

func TestCompressPNGInput(t *testing.T) {
	t.Parallel()

	c, err := New()
	require.NoError(t, err)

	res, err := c.Compress(testutil.NoisePNG(t, 32, 32, 7), 1<<20)
	require.NoError(t, err)

	_, format, err := image.DecodeConfig(bytes.NewReader(res.Data))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
}

func TestCompressExhausted(t *testing.T) {
	t.Parallel()

	calls := 0
	enc := EncoderFunc(func(_ image.Image, quality int) ([]byte, error) {
		calls++
		// Never drops below 1000 bytes; lowest quality is smallest.
		return make([]byte, 1000+quality), nil
	})
	c, err := New(WithEncoder(enc))
	require.NoError(t, err)

	_, err = c.Compress(testutil.SolidJPEG(t, 8, 8), 100)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExhausted)

	var exh *ExhaustedError
	require.ErrorAs(t, err, &exh)
	assert.Equal(t, int64(100), exh.Ceiling)
	assert.Equal(t, int64(1010), exh.BestSize)
	assert.Equal(t, DefaultMinQuality, exh.Quality)
	assert.Equal(t, c.MaxAttempts(), exh.Attempts)
	assert.Equal(t, 10, calls)
}

func TestCompressEncoderError(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	c, err := New(WithEncoder(EncoderFunc(func(image.Image, int) ([]byte, error) {
		return nil, boom
	})))
	require.NoError(t, err)

	_, err = c.Compress(testutil.SolidJPEG(t, 8, 8), 1<<20)
	assert.ErrorIs(t, err, ErrEncode)
}

func TestCompressInvalidInput(t *testing.T) {
	t.Parallel()

	c, err := New()
	require.NoError(t, err)

	tests := []struct {
		name string
		raw  []byte
	}{
		{name: "nil", raw: nil},
		{name: "empty", raw: []byte{}},
		{name: "garbage", raw: []byte("definitely not an image")},
		{name: "truncated jpeg", raw: testutil.SolidJPEG(t, 16, 16)[:20]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := c.Compress(tt.raw, 1<<20)
			assert.ErrorIs(t, err, ErrDecode)
		})
	}
}

func TestCompressRejectsNonPositiveCeiling(t *testing.T) {
	t.Parallel()

	c, err := New()
	require.NoError(t, err)

	for _, ceiling := range []int64{0, -1} {
		_, err := c.Compress(testutil.SolidJPEG(t, 8, 8), ceiling)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrDecode)
	}
}

func TestDecode(t *testing.T) {
	t.Parallel()

	img, err := Decode(testutil.SolidJPEG(t, 4, 4), DefaultMaxPixels)
	require.NoError(t, err)
	assert.Equal(t, 4, img.Bounds().Dx())

	_, err = Decode(testutil.NoisePNG(t, 4, 4, 1), DefaultMaxPixels)
	require.NoError(t, err)

	_, err = Decode(nil, DefaultMaxPixels)
	require.ErrorIs(t, err, ErrDecode)
	_, err = Decode([]byte("GIF89"), DefaultMaxPixels)
	require.ErrorIs(t, err, ErrDecode)
}

func TestDecodeRejectsTruncatedImage(t *testing.T) {
	t.Parallel()

	truncated := testutil.Truncate(testutil.NoiseJPEG(t, 64, 64, 9))

	// The header is intact, only the pixel data is missing.
	_, _, err := image.DecodeConfig(bytes.NewReader(truncated))
	require.NoError(t, err)

	_, err = Decode(truncated, DefaultMaxPixels)
	assert.ErrorIs(t, err, ErrDecode)
}

func TestDecodePixelLimit(t *testing.T) {
	t.Parallel()

	raw := testutil.NoisePNG(t, 16, 16, 2)
	_, err := Decode(raw, 256)
	require.NoError(t, err)
	_, err = Decode(raw, 255)
	require.ErrorIs(t, err, ErrDecode)

	// 60000x60000 would need a 3.6 GB buffer; the header alone is rejected.
	huge := testutil.PNGHeader(t, 60000, 60000)
	_, err = Decode(huge, DefaultMaxPixels)
	require.ErrorIs(t, err, ErrDecode)
	assert.Contains(t, err.Error(), "exceeds")
}

func TestCompressRespectsMaxPixels(t *testing.T) {
	t.Parallel()

	calls := 0
	c, err := New(
		WithMaxPixels(100),
		WithEncoder(EncoderFunc(func(image.Image, int) ([]byte, error) {
			calls++
			return []byte{1}, nil
		})),
	)
	require.NoError(t, err)

	_, err = c.Compress(testutil.SolidJPEG(t, 16, 16), 1<<20)
	require.ErrorIs(t, err, ErrDecode)
	assert.Zero(t, calls)

	_, err = c.Compress(testutil.PNGHeader(t, 1<<16, 1<<16), 1<<20)
	require.ErrorIs(t, err, ErrDecode)
}
