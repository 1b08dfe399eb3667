//go:build unix

package logging

import (
	"os"

	"golang.org/x/sys/unix"
)

func lockFile(f *os.File) {
	_ = unix.Flock(int(f.Fd()), unix.LOCK_EX)
}

func unlockFile(f *os.File) {
	_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
}
