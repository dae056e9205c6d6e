//go:build windows

package savecore

import "os"

// diskSync forces a host-level flush on Windows, where there is no syscall.Fsync.
func diskSync(f *os.File) error {
	return f.Sync()
}
