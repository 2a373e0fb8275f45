package filetype

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"
)

// imageExtensions is the batch allow-list, matched case-insensitively.
var imageExtensions = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".bmp":  "image/bmp",
	".webp": "image/webp",
}

// FileTypeInfo contains detected file type information
type FileTypeInfo struct {
	MIMEType    string
	Extension   string
	IsImage     bool
	IsPDF       bool
	Supported   bool
	Description string
}

// IsImageName reports whether name carries an allow-listed image extension.
func IsImageName(name string) bool {
	_, ok := imageExtensions[strings.ToLower(filepath.Ext(name))]
	return ok
}

// IsPDFName reports whether name ends in .pdf (any case).
func IsPDFName(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".pdf")
}

// MIMEFromExtension returns the MIME type implied by the file name, or "" if not allow-listed.
func MIMEFromExtension(name string) string {
	return imageExtensions[strings.ToLower(filepath.Ext(name))]
}

// Detector handles file type detection using magic bytes
type Detector struct{}

// New creates a new file type detector
func New() *Detector {
	return &Detector{}
}

// DetectBytes detects the actual file type using magic bytes, not filename.
// name is only used for logging a mismatch.
func (d *Detector) DetectBytes(name string, data []byte) *FileTypeInfo {
	mtype := mimetype.Detect(data)
	info := &FileTypeInfo{
		MIMEType:  mtype.String(),
		Extension: mtype.Extension(),
	}
	// mimetype may append parameters (e.g. charset) to text types
	if i := strings.IndexByte(info.MIMEType, ';'); i >= 0 {
		info.MIMEType = strings.TrimSpace(info.MIMEType[:i])
	}
	d.classify(info)

	if want := MIMEFromExtension(name); want != "" && info.IsImage && want != info.MIMEType {
		log.Debug().Str("file", name).Str("by_ext", want).Str("by_content", info.MIMEType).Msg("extension does not match content")
	}
	return info
}

// ImageMIME picks the data-URI media type for an image: sniffed content first,
// then the extension, then image/png.
func (d *Detector) ImageMIME(name string, data []byte) string {
	info := d.DetectBytes(name, data)
	if info.IsImage {
		return info.MIMEType
	}
	if m := MIMEFromExtension(name); m != "" {
		return m
	}
	return "image/png"
}

// classify determines file characteristics and processing requirements
func (d *Detector) classify(info *FileTypeInfo) {
	switch {
	case info.MIMEType == "application/pdf":
		info.IsPDF = true
		info.Supported = true
		info.Description = "PDF document"

	case strings.HasPrefix(info.MIMEType, "image/"):
		info.IsImage = true
		info.Supported = true
		info.Description = "Image file"

	default:
		info.Supported = false
		info.Description = fmt.Sprintf("Unsupported file type: %s", info.MIMEType)
	}
}
