// Package fsutil holds filesystem helpers shared by the artifact writers.
package fsutil

import (
	"io"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/afero"
)

// WriteAtomic writes path through write. Data goes to a temp file in the
// same directory, which is renamed over path only after write and close
// succeed, so readers never observe a partial file.
func WriteAtomic(fs afero.Fs, path string, write func(w io.Writer) error) (err error) {
	dir := filepath.Dir(path)
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "fsutil: create dir %s", dir)
	}

	tmp, err := afero.TempFile(fs, dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return eris.Wrap(err, "fsutil: create temp file")
	}
	defer func() {
		if err != nil {
			_ = fs.Remove(tmp.Name())
		}
	}()

	if err := write(tmp); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrap(err, "fsutil: close temp file")
	}
	if err := fs.Rename(tmp.Name(), path); err != nil {
		return eris.Wrapf(err, "fsutil: rename to %s", path)
	}
	return nil
}

// Exists reports whether path exists and is a non-empty regular file.
func Exists(fs afero.Fs, path string) (bool, error) {
	info, err := fs.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, eris.Wrapf(err, "fsutil: stat %s", path)
	}
	return info.Mode().IsRegular() && info.Size() > 0, nil
}
