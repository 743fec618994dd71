//go:build !unix

package disk

import "os"

// lockFile is a stub on non-Unix platforms; concurrent writers from other
// processes are not serialized there.
func lockFile(f *os.File, exclusive bool) error { return nil }

// unlockFile is a stub counterpart to lockFile on non-Unix platforms.
func unlockFile(f *os.File) error { return nil }
