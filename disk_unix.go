//go:build !windows

package savecore

import (
	"os"
	"syscall"
)

// diskSync forces the kernel to flush dirty pages for f to the backing
// device, following the GOOS-specific file split the teacher uses for
// platform divergence (inode_linux.go / inode_darwin.go).
func diskSync(f *os.File) error {
	return syscall.Fsync(int(f.Fd()))
}
