//go:build !linux

package disk

import "os"

func syncFile(file *os.File) error {
	if file == nil {
		return nil
	}
	return file.Sync()
}

// syncDir is best effort; some platforms refuse to fsync a directory.
func syncDir(string) error { return nil }
