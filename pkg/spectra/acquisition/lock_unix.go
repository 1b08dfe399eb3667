//go:build unix

package acquisition

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/jamesainslie/spectra/pkg/spectra/errcode"
)

// folderLock is an exclusive advisory lock on a dataset folder.
type folderLock struct {
	f *os.File
}

// lockFolder takes the lock without blocking.
func lockFolder(dir string) (*folderLock, error) {
	f, err := os.OpenFile(filepath.Join(dir, lockFileName), os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errcode.ErrDatasetFolderLocked, err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %s", errcode.ErrDatasetFolderLocked, dir)
	}
	return &folderLock{f: f}, nil
}

func (l *folderLock) release() error {
	if l == nil || l.f == nil {
		return nil
	}
	err := unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
	if cerr := l.f.Close(); err == nil {
		err = cerr
	}
	l.f = nil
	return err
}
