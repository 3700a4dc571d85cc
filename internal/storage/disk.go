package storage

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// Usage summarizes the on-disk footprint of the catalog and index root.
type Usage struct {
	Bytes int64
	Files int
}

// DiskUsage sums file sizes under the given paths. A path may be a file or a
// directory. Empty and missing paths are skipped, as are files that vanish
// mid-walk (index temp files are renamed or removed concurrently).
func DiskUsage(paths ...string) (Usage, error) {
	var u Usage
	for _, p := range paths {
		if p == "" {
			continue
		}
		info, err := os.Stat(p)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return Usage{}, err
		}
		if !info.IsDir() {
			u.Bytes += info.Size()
			u.Files++
			continue
		}
		if err := walkUsage(p, &u); err != nil {
			return Usage{}, err
		}
	}
	return u, nil
}

// DiskUsageBytes is DiskUsage reduced to the byte total.
func DiskUsageBytes(paths ...string) (int64, error) {
	u, err := DiskUsage(paths...)
	return u.Bytes, err
}

func walkUsage(dir string, u *Usage) error {
	return filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		u.Bytes += info.Size()
		u.Files++
		return nil
	})
}
