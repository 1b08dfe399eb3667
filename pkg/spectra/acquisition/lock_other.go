//go:build !unix

package acquisition

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jamesainslie/spectra/pkg/spectra/errcode"
)

// folderLock is an exclusive lock file in a dataset folder.
type folderLock struct {
	path string
}

// lockFolder takes the lock without blocking.
func lockFolder(dir string) (*folderLock, error) {
	path := filepath.Join(dir, lockFileName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("%w: %s", errcode.ErrDatasetFolderLocked, dir)
		}
		return nil, fmt.Errorf("%w: %v", errcode.ErrDatasetFolderLocked, err)
	}
	f.Close()
	return &folderLock{path: path}, nil
}

func (l *folderLock) release() error {
	if l == nil || l.path == "" {
		return nil
	}
	err := os.Remove(l.path)
	l.path = ""
	return err
}
