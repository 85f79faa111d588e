package media

import (
	"bytes"
	"encoding/binary"
	"image"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"github.com/lumenart/curator/internal/domain"
)

// ExtractDimensions reads pixel dimensions from image bytes. The registered
// decoders are tried first; when they cannot handle the payload (truncated
// file, exotic encoder output) the raw container headers are parsed directly.
// Returns nil when no valid dimensions can be read, never fabricated defaults.
func ExtractDimensions(content []byte) *domain.Dimensions {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(content))
	if err == nil {
		d := &domain.Dimensions{Width: cfg.Width, Height: cfg.Height}
		if d.Valid() {
			return d
		}
	}
	return ParseDimensionsFromHeader(content)
}

// ParseDimensionsFromHeader reads the dimension fields straight out of
// PNG/JPEG/GIF/WebP container headers without decoding pixel data. It is the
// degrade-gracefully path behind ExtractDimensions and is intentionally kept
// callable on its own.
func ParseDimensionsFromHeader(content []byte) *domain.Dimensions {
	switch {
	case bytes.HasPrefix(content, []byte("\x89PNG\r\n\x1a\n")):
		return parsePNGHeader(content)
	case bytes.HasPrefix(content, []byte("GIF87a")) || bytes.HasPrefix(content, []byte("GIF89a")):
		return parseGIFHeader(content)
	case bytes.HasPrefix(content, []byte{0xFF, 0xD8}):
		return parseJPEGHeader(content)
	case len(content) >= 12 && bytes.Equal(content[0:4], []byte("RIFF")) && bytes.Equal(content[8:12], []byte("WEBP")):
		return parseWebPHeader(content)
	}
	return nil
}

// parsePNGHeader reads the IHDR chunk, which the format guarantees comes
// first: width and height are big-endian uint32 at fixed offsets
func parsePNGHeader(content []byte) *domain.Dimensions {
	if len(content) < 24 || !bytes.Equal(content[12:16], []byte("IHDR")) {
		return nil
	}
	return validDimensions(
		int(binary.BigEndian.Uint32(content[16:20])),
		int(binary.BigEndian.Uint32(content[20:24])),
	)
}

// parseGIFHeader reads the logical screen descriptor directly after the magic
func parseGIFHeader(content []byte) *domain.Dimensions {
	if len(content) < 10 {
		return nil
	}
	return validDimensions(
		int(binary.LittleEndian.Uint16(content[6:8])),
		int(binary.LittleEndian.Uint16(content[8:10])),
	)
}

// parseJPEGHeader walks the marker segments until a start-of-frame marker,
// which carries the frame height and width
func parseJPEGHeader(content []byte) *domain.Dimensions {
	i := 2
	for i+4 <= len(content) {
		if content[i] != 0xFF {
			i++
			continue
		}
		marker := content[i+1]
		switch {
		case marker == 0xFF:
			// fill byte
			i++
		case marker == 0xD8 || marker == 0x01 || (marker >= 0xD0 && marker <= 0xD7):
			// standalone markers carry no length field
			i += 2
		case marker == 0xD9:
			// end of image before any frame header
			return nil
		case isJPEGFrameMarker(marker):
			if i+9 > len(content) {
				return nil
			}
			return validDimensions(
				int(binary.BigEndian.Uint16(content[i+7:i+9])),
				int(binary.BigEndian.Uint16(content[i+5:i+7])),
			)
		default:
			i += 2 + int(binary.BigEndian.Uint16(content[i+2:i+4]))
		}
	}
	return nil
}

// isJPEGFrameMarker reports whether marker is one of the SOF0..SOF15 frame
// markers. 0xC4, 0xC8 and 0xCC fall in the same range but are table
// definitions, not frames.
func isJPEGFrameMarker(marker byte) bool {
	return marker >= 0xC0 && marker <= 0xCF &&
		marker != 0xC4 && marker != 0xC8 && marker != 0xCC
}

// parseWebPHeader handles the three WebP flavors: lossy VP8, lossless VP8L
// and the extended VP8X container
func parseWebPHeader(content []byte) *domain.Dimensions {
	if len(content) < 30 {
		return nil
	}
	switch {
	case bytes.Equal(content[12:16], []byte("VP8 ")):
		// key frame starts with a 3-byte frame tag then the 9D 01 2A sync code
		if !bytes.Equal(content[23:26], []byte{0x9D, 0x01, 0x2A}) {
			return nil
		}
		return validDimensions(
			int(binary.LittleEndian.Uint16(content[26:28])&0x3FFF),
			int(binary.LittleEndian.Uint16(content[28:30])&0x3FFF),
		)
	case bytes.Equal(content[12:16], []byte("VP8L")):
		if content[20] != 0x2F {
			return nil
		}
		bits := binary.LittleEndian.Uint32(content[21:25])
		return validDimensions(
			int(bits&0x3FFF)+1,
			int((bits>>14)&0x3FFF)+1,
		)
	case bytes.Equal(content[12:16], []byte("VP8X")):
		// canvas size is stored as 24-bit little-endian minus one
		width := int(content[24]) | int(content[25])<<8 | int(content[26])<<16
		height := int(content[27]) | int(content[28])<<8 | int(content[29])<<16
		return validDimensions(width+1, height+1)
	}
	return nil
}

func validDimensions(width, height int) *domain.Dimensions {
	d := &domain.Dimensions{Width: width, Height: height}
	if !d.Valid() {
		return nil
	}
	return d
}
