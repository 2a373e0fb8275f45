package batch

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/rs/zerolog/log"

	"github.com/local/visionbatch/internal/filetype"
)

// Listing is the result of scanning the image folder.
type Listing struct {
	Tasks      []ImageTask
	TotalFiles int // every directory entry, matching or not
}

// Enumerate lists dir in lexicographic order and keeps regular files whose extension is on the
// image allow-list. With includePDF each page of every PDF becomes its own task.
func Enumerate(dir string, includePDF bool) (Listing, error) {
	fi, err := os.Stat(dir)
	if err != nil {
		return Listing{}, fmt.Errorf("%w: %w", ErrDirectory, err)
	}
	if !fi.IsDir() {
		return Listing{}, fmt.Errorf("%w: %s is not a directory", ErrDirectory, dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return Listing{}, fmt.Errorf("%w: %w", ErrDirectory, err)
	}

	out := Listing{TotalFiles: len(entries)}
	for _, e := range entries {
		name := e.Name()
		isImage := filetype.IsImageName(name)
		isPDF := includePDF && filetype.IsPDFName(name)
		if !isImage && !isPDF {
			continue
		}

		p := filepath.Join(dir, name)
		// follows symlinks
		info, err := os.Stat(p)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}

		if isImage {
			out.Tasks = append(out.Tasks, ImageTask{Path: p, Name: name, SizeBytes: info.Size()})
			continue
		}

		pages, err := api.PageCountFile(p)
		if err != nil {
			log.Warn().Err(err).Str("file", name).Msg("pdf page count failed; skipping")
			continue
		}
		for page := 1; page <= pages; page++ {
			out.Tasks = append(out.Tasks, ImageTask{
				Path:      p,
				Name:      fmt.Sprintf("%s (page %d/%d)", name, page, pages),
				SizeBytes: info.Size(),
				Page:      page,
			})
		}
	}
	return out, nil
}
