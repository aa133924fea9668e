package storage

import (
	"io/fs"
	"os"
	"path/filepath"
)

// DiskUsage returns the size in bytes of each labeled path (files or directories, summed recursively).
// Missing paths report 0.
func DiskUsage(paths map[string]string) (map[string]int64, error) {
	out := make(map[string]int64, len(paths))
	for label, p := range paths {
		n, err := pathSize(p)
		if err != nil {
			return nil, err
		}
		out[label] = n
	}
	return out, nil
}

func pathSize(p string) (int64, error) {
	if p == "" {
		return 0, nil
	}
	info, err := os.Stat(p)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if !info.IsDir() {
		return info.Size(), nil
	}
	var total int64
	err = filepath.WalkDir(p, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		total += fi.Size()
		return nil
	})
	return total, err
}
