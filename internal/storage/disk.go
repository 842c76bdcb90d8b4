package storage

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// DiskUsageBytes sums the sizes of the regular files under paths. A path may name a
// file or a directory. Files reachable from more than one path are counted once,
// so a database kept inside the data directory is not added twice. Empty and
// missing paths contribute nothing.
func DiskUsageBytes(paths ...string) (int64, error) {
	seen := make(map[string]struct{})
	var total int64
	for _, p := range paths {
		if p == "" {
			continue
		}
		n, err := usage(filepath.Clean(p), seen)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

func usage(root string, seen map[string]struct{}) (int64, error) {
	var total int64
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root && errors.Is(err, fs.ErrNotExist) {
				return fs.SkipAll
			}
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if _, dup := seen[path]; dup {
			return nil
		}
		seen[path] = struct{}{}
		info, err := d.Info()
		if errors.Is(err, os.ErrNotExist) {
			// removed between listing and stat, e.g. a temp file being committed
			return nil
		}
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	return total, err
}
