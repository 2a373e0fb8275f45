package filetype

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
)

func TestIsImageName(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"scan.png", true},
		{"SCAN.PNG", true},
		{"photo.JpEg", true},
		{"photo.jpg", true},
		{"anim.gif", true},
		{"old.bmp", true},
		{"web.WEBP", true},
		{"doc.pdf", false},
		{"notes.txt", false},
		{"scan.tiff", false},
		{"png", false},
		{"archive.png.zip", false},
	}
	for _, tc := range tests {
		if got := IsImageName(tc.name); got != tc.want {
			t.Errorf("IsImageName(%q) = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestIsPDFName(t *testing.T) {
	if !IsPDFName("Report.PDF") {
		t.Error("expected .PDF to match")
	}
	if IsPDFName("report.png") {
		t.Error("png is not a pdf")
	}
}

func encodePNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.White)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png encode: %v", err)
	}
	return buf.Bytes()
}

func encodeJPEG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("jpeg encode: %v", err)
	}
	return buf.Bytes()
}

func TestImageMIMEPrefersContent(t *testing.T) {
	d := New()

	if got := d.ImageMIME("scan.png", encodePNG(t)); got != "image/png" {
		t.Errorf("png: got %q", got)
	}
	// JPEG bytes with a .png name: content wins
	if got := d.ImageMIME("mislabeled.png", encodeJPEG(t)); got != "image/jpeg" {
		t.Errorf("jpeg named png: got %q", got)
	}
	// unrecognised bytes: fall back to the extension
	if got := d.ImageMIME("noise.webp", []byte("not an image at all")); got != "image/webp" {
		t.Errorf("fallback to extension: got %q", got)
	}
	if got := d.ImageMIME("noise.bin", []byte("???")); got != "image/png" {
		t.Errorf("final fallback: got %q", got)
	}
}

func TestDetectBytesPDF(t *testing.T) {
	info := New().DetectBytes("doc.pdf", []byte("%PDF-1.4\n%âãÏÓ\n1 0 obj\n"))
	if !info.IsPDF || !info.Supported {
		t.Errorf("expected supported pdf, got %+v", info)
	}
}
