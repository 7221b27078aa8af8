package blob

import (
	"context"
	"io"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/afero"

	"github.com/sells-group/tract-series/internal/fsutil"
)

// Dir stores objects as files below a root directory. It stands in for a
// bucket on shared disks and in offline runs.
type Dir struct {
	remote afero.Fs // rooted at the store directory
	local  afero.Fs
	prefix string
}

// NewDir creates a directory-backed store rooted at root.
func NewDir(root, prefix string) *Dir {
	return newDirFs(afero.NewBasePathFs(afero.NewOsFs(), root), afero.NewOsFs(), prefix)
}

func newDirFs(remote, local afero.Fs, prefix string) *Dir {
	return &Dir{remote: remote, local: local, prefix: prefix}
}

func (d *Dir) path(key string) string {
	return filepath.FromSlash("/" + objectKey(d.prefix, key))
}

// Has implements Store.
func (d *Dir) Has(_ context.Context, key string) (bool, error) {
	return fsutil.Exists(d.remote, d.path(key))
}

// Upload implements Store.
func (d *Dir) Upload(ctx context.Context, localPath, key string, overwrite bool) error {
	if !overwrite {
		ok, err := d.Has(ctx, key)
		if err != nil {
			return err
		}
		if ok {
			return eris.Wrapf(ErrExists, "blob: %s", key)
		}
	}
	return copyFile(d.local, localPath, d.remote, d.path(key))
}

// Download implements Store.
func (d *Dir) Download(ctx context.Context, key, localPath string) error {
	ok, err := d.Has(ctx, key)
	if err != nil {
		return err
	}
	if !ok {
		return eris.Wrapf(ErrNotFound, "blob: %s", key)
	}
	return copyFile(d.remote, d.path(key), d.local, localPath)
}

func copyFile(srcFs afero.Fs, src string, dstFs afero.Fs, dst string) error {
	in, err := srcFs.Open(src)
	if err != nil {
		return eris.Wrapf(err, "blob: open %s", src)
	}
	defer in.Close() //nolint:errcheck

	return fsutil.WriteAtomic(dstFs, dst, func(w io.Writer) error {
		if _, err := io.Copy(w, in); err != nil {
			return eris.Wrapf(err, "blob: copy %s", src)
		}
		return nil
	})
}
