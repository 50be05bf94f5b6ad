package assistant

import (
	"io/fs"
	"path/filepath"
	"strings"
)

// discoverFiles enumerates model file paths for the requested types, in
// resolver order. Types the resolver does not know are skipped with a
// warning; unreadable directories are skipped the same way. Discovery
// failures never abort the batch.
func (s *syncer) discoverFiles(types []ModelType) []string {
	var files []string

	for _, t := range types {
		dir, ok := s.resolver.Dir(t)
		if !ok || dir == "" {
			s.logger.Warn("unknown or unconfigured model type", "type", string(t))
			continue
		}

		found, err := findModelFiles(dir, s.extensions)
		if err != nil {
			s.logger.Warn("scanning model directory", "dir", dir, "error", err)
			continue
		}
		files = append(files, found...)
	}

	s.logger.Debug("discovered model files", "count", len(files))
	return files
}

// findModelFiles walks root recursively and returns every regular file
// whose extension matches one of exts.
func findModelFiles(root string, exts []string) ([]string, error) {
	var files []string

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		for _, ext := range exts {
			if strings.EqualFold(filepath.Ext(path), ext) {
				files = append(files, path)
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return files, nil
}
