package loader

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

// maxWalkFileSize is the largest file the walker will emit (10 MB).
const maxWalkFileSize = 10 << 20

var skippedDirs = map[string]bool{
	".git": true, ".svn": true, ".hg": true,
	"node_modules": true, "vendor": true, "__pycache__": true,
	".idea": true, ".vscode": true, ".docrag": true,
	"dist": true, "build": true,
}

// CollectFiles walks root and returns every file with a supported format, in
// sorted order. Unsupported extensions are silently skipped — the walker's
// job is discovery, not validation.
func CollectFiles(root string) ([]string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	var files []string
	err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entries are skipped, not fatal
		}
		if d.IsDir() {
			name := d.Name()
			if path != absRoot && (skippedDirs[name] || strings.HasPrefix(name, ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		if _, derr := Detect(path); derr != nil {
			return nil
		}
		info, ierr := d.Info()
		if ierr != nil || info.Size() == 0 || info.Size() > maxWalkFileSize {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}
