package batch

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	apperrors "github.com/webimg/webimg/errors"
)

// supportedExts are the input extensions the optimizer picks up during
// directory discovery. Matching is case-insensitive.
var supportedExts = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".webp": {},
}

// Discover walks root recursively and returns the sorted list of supported
// image files. Hidden directories are skipped. It returns ErrNoSupportedFiles
// when the walk finds nothing to process.
func Discover(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if _, ok := supportedExts[ext]; ok {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryInput, "batch.discover", err)
	}
	if len(files) == 0 {
		return nil, apperrors.Wrap(apperrors.CategoryInput, "batch.discover", apperrors.ErrNoSupportedFiles)
	}
	sort.Strings(files)
	return files, nil
}

// IsSupported reports whether path carries a supported input extension.
func IsSupported(path string) bool {
	_, ok := supportedExts[strings.ToLower(filepath.Ext(path))]
	return ok
}
