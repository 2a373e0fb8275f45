package imagerender

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image/jpeg"
	"os"

	"github.com/gen2brain/go-fitz"
	"github.com/rs/zerolog/log"

	"github.com/local/visionbatch/internal/filetype"
)

var (
	// ErrRead covers missing or unreadable inputs.
	ErrRead = errors.New("read image")
	// ErrTooLarge is returned when an input exceeds EncodeOptions.MaxBytes.
	ErrTooLarge = errors.New("image too large")
)

// Encoded is an image ready to be embedded in a data URI.
type Encoded struct {
	Base64 string
	MIME   string
	Size   int
}

// EncodeOptions controls size limits and the declared media type.
type EncodeOptions struct {
	MaxBytes  int64 // 0 disables the cap
	LegacyPNG bool  // always declare image/png
}

var detector = filetype.New()

// EncodeFile reads path and returns its base64 form with a media type derived from content.
func EncodeFile(path string, opts EncodeOptions) (Encoded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Encoded{}, fmt.Errorf("%w: %w", ErrRead, err)
	}
	return encodeBytes(path, data, opts)
}

func encodeBytes(name string, data []byte, opts EncodeOptions) (Encoded, error) {
	if opts.MaxBytes > 0 && int64(len(data)) > opts.MaxBytes {
		return Encoded{}, fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrTooLarge, len(data), opts.MaxBytes)
	}
	mime := "image/png"
	if !opts.LegacyPNG {
		mime = detector.ImageMIME(name, data)
	}
	enc := Encoded{Base64: EncodeToBase64(data), MIME: mime, Size: len(data)}
	log.Debug().Str("file", name).Int("size", enc.Size).Int("base64_len", len(enc.Base64)).Str("mime", mime).Msg("encoded image")
	return enc, nil
}

// EncodePDFPage renders one page (1-based) of a PDF to JPEG and encodes it.
func EncodePDFPage(path string, page, dpi, quality int, opts EncodeOptions) (Encoded, error) {
	jpegBytes, err := RenderPageToJPEG(path, page, dpi, quality)
	if err != nil {
		return Encoded{}, err
	}
	if opts.MaxBytes > 0 && int64(len(jpegBytes)) > opts.MaxBytes {
		return Encoded{}, fmt.Errorf("%w: page %d renders to %d bytes, limit %d", ErrTooLarge, page, len(jpegBytes), opts.MaxBytes)
	}
	return Encoded{Base64: EncodeToBase64(jpegBytes), MIME: "image/jpeg", Size: len(jpegBytes)}, nil
}

// RenderPageToJPEG renders a PDF page as JPEG image (in-memory)
func RenderPageToJPEG(pdfPath string, pageNum, dpi, quality int) ([]byte, error) {
	if _, err := os.Stat(pdfPath); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRead, err)
	}
	doc, err := fitz.New(pdfPath)
	if err != nil {
		return nil, fmt.Errorf("%w: open PDF: %w", ErrRead, err)
	}
	defer doc.Close()

	// go-fitz uses 0-based indexing
	img, err := doc.ImageDPI(pageNum-1, float64(dpi))
	if err != nil {
		return nil, fmt.Errorf("render page %d: %w", pageNum, err)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode JPEG: %w", err)
	}

	b := img.Bounds()
	log.Debug().
		Int("page", pageNum).
		Int("width", b.Dx()).
		Int("height", b.Dy()).
		Int("jpeg_size", buf.Len()).
		Int("dpi", dpi).
		Msg("rendered PDF page")

	return buf.Bytes(), nil
}

// EncodeToBase64 converts binary data to base64 string
func EncodeToBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// DecodeFromBase64 converts base64 string back to binary data
func DecodeFromBase64(b64 string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(b64)
}
