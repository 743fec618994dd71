//go:build linux

package disk

import (
	"os"
	"syscall"
)

// syncFile flushes file data (not metadata) before the temp file is renamed
// over the snapshot.
func syncFile(file *os.File) error {
	if file == nil {
		return nil
	}
	return syscall.Fdatasync(int(file.Fd()))
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}
