// Package output persists a capture's artifacts to disk.
package output

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio/v2"
	"github.com/use-agent/pagecapture/capture"
	"github.com/use-agent/pagecapture/models"
)

const (
	DefaultDir    = "./output"
	DefaultPrefix = "capture"
)

// Writer stores artifacts as <Prefix>_screenshot.<ext>, <Prefix>_page.html
// and <Prefix>_headers.json inside Dir.
type Writer struct {
	Dir    string
	Prefix string
}

type artifactFile struct {
	name string
	data []byte
}

// Paths returns the three destination paths for the given screenshot
// extension, in write order.
func (w Writer) Paths(screenshotExt string) []string {
	dir, prefix := w.dirAndPrefix()
	return []string{
		filepath.Join(dir, prefix+"_screenshot."+screenshotExt),
		filepath.Join(dir, prefix+"_page.html"),
		filepath.Join(dir, prefix+"_headers.json"),
	}
}

// Write stores all three artifacts or none of them. Every file is staged as
// a renameio pending file first; nothing is renamed into place until all
// three have been written. If a rename fails midway the files already
// committed by this call are removed again.
func (w Writer) Write(a *capture.Artifacts) ([]string, error) {
	if a == nil {
		return nil, models.NewCaptureError(models.ErrCodeInvalidInput, "no artifacts to write", nil)
	}
	if err := ValidatePrefix(w.Prefix); err != nil {
		return nil, err
	}
	dir, _ := w.dirAndPrefix()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, models.NewCaptureError(models.ErrCodeWriteFailed,
			fmt.Sprintf("create output directory %s", dir), err)
	}

	paths := w.Paths(a.ScreenshotExt)
	files := []artifactFile{
		{name: paths[0], data: a.Screenshot},
		{name: paths[1], data: a.HTML},
		{name: paths[2], data: a.HeadersJSON},
	}

	pending := make([]*renameio.PendingFile, 0, len(files))
	defer func() {
		for _, pf := range pending {
			// No-op for files that were committed.
			if err := pf.Cleanup(); err != nil {
				slog.Debug("cleanup pending artifact", "file", pf.Name(), "error", err)
			}
		}
	}()

	for _, f := range files {
		pf, err := renameio.NewPendingFile(f.name, renameio.WithPermissions(0o644))
		if err != nil {
			return nil, models.NewCaptureError(models.ErrCodeWriteFailed,
				fmt.Sprintf("create pending file for %s", f.name), err)
		}
		pending = append(pending, pf)
		if _, err := pf.Write(f.data); err != nil {
			return nil, models.NewCaptureError(models.ErrCodeWriteFailed,
				fmt.Sprintf("write %s", f.name), err)
		}
	}

	committed := make([]string, 0, len(files))
	for i, pf := range pending {
		if err := pf.CloseAtomicallyReplace(); err != nil {
			for _, p := range committed {
				if rmErr := os.Remove(p); rmErr != nil {
					slog.Warn("failed to roll back artifact", "file", p, "error", rmErr)
				}
			}
			return nil, models.NewCaptureError(models.ErrCodeWriteFailed,
				fmt.Sprintf("commit %s", files[i].name), err)
		}
		committed = append(committed, files[i].name)
	}

	slog.Debug("artifacts written", "dir", dir, "files", committed)
	return committed, nil
}

func (w Writer) dirAndPrefix() (string, string) {
	dir, prefix := w.Dir, w.Prefix
	if dir == "" {
		dir = DefaultDir
	}
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return dir, prefix
}

// ValidatePrefix rejects prefixes that would escape the output directory.
// An empty prefix is allowed and means DefaultPrefix.
func ValidatePrefix(prefix string) error {
	switch {
	case prefix == "":
		return nil
	case prefix == "." || prefix == "..":
		return models.NewCaptureError(models.ErrCodeInvalidInput,
			fmt.Sprintf("invalid file prefix %q", prefix), nil)
	case strings.ContainsAny(prefix, `/\`) || strings.ContainsRune(prefix, 0):
		return models.NewCaptureError(models.ErrCodeInvalidInput,
			fmt.Sprintf("file prefix %q must not contain path separators", prefix), nil)
	}
	return nil
}
