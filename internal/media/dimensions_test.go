package media_test

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color/palette"
	imagegif "image/gif"
	imagejpeg "image/jpeg"
	imagepng "image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenart/curator/internal/media"
)

func encodePNG(t *testing.T, width, height int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, imagepng.Encode(&buf, image.NewRGBA(image.Rect(0, 0, width, height))))
	return buf.Bytes()
}

func encodeJPEG(t *testing.T, width, height int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, imagejpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, width, height)), nil))
	return buf.Bytes()
}

func encodeGIF(t *testing.T, width, height int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, imagegif.Encode(&buf, image.NewPaletted(image.Rect(0, 0, width, height), palette.Plan9), nil))
	return buf.Bytes()
}

// lossless WebP header with the given canvas size, padded past the minimum
// length the parser needs
func webpVP8LHeader(width, height int) []byte {
	var buf bytes.Buffer
	buf.WriteString("RIFF")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(30))
	buf.WriteString("WEBP")
	buf.WriteString("VP8L")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(9))
	buf.WriteByte(0x2F)
	bits := uint32(width-1) | uint32(height-1)<<14
	_ = binary.Write(&buf, binary.LittleEndian, bits)
	buf.Write(make([]byte, 8))
	return buf.Bytes()
}

func TestExtractDimensions(t *testing.T) {
	d := media.ExtractDimensions(encodePNG(t, 320, 240))
	require.NotNil(t, d)
	assert.Equal(t, 320, d.Width)
	assert.Equal(t, 240, d.Height)

	assert.Nil(t, media.ExtractDimensions([]byte("definitely not an image")))
	assert.Nil(t, media.ExtractDimensions(nil))
}

// The manual header parser must agree with the full decoder on the formats it
// understands, since it is the path taken when decoding fails.
func TestParseDimensionsFromHeader_MatchesDecoder(t *testing.T) {
	tests := []struct {
		name    string
		content []byte
		width   int
		height  int
	}{
		{"png", encodePNG(t, 320, 240), 320, 240},
		{"jpeg", encodeJPEG(t, 64, 48), 64, 48},
		{"gif", encodeGIF(t, 17, 29), 17, 29},
		{"webp-vp8l", webpVP8LHeader(100, 50), 100, 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := media.ParseDimensionsFromHeader(tt.content)
			require.NotNil(t, d)
			assert.Equal(t, tt.width, d.Width)
			assert.Equal(t, tt.height, d.Height)

			cfg, _, err := image.DecodeConfig(bytes.NewReader(tt.content))
			if err == nil {
				assert.Equal(t, cfg.Width, d.Width)
				assert.Equal(t, cfg.Height, d.Height)
			}
		})
	}
}

func TestParseDimensionsFromHeader_Truncated(t *testing.T) {
	png := encodePNG(t, 320, 240)

	// The header parser only needs the IHDR chunk
	d := media.ParseDimensionsFromHeader(png[:24])
	require.NotNil(t, d)
	assert.Equal(t, 320, d.Width)

	assert.Nil(t, media.ParseDimensionsFromHeader(png[:10]))
	assert.Nil(t, media.ParseDimensionsFromHeader([]byte("GIF89a")))
	assert.Nil(t, media.ParseDimensionsFromHeader([]byte{0xFF, 0xD8, 0xFF}))
}
