package crosswalk

import (
	"context"
	"io"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/sells-group/tract-series/internal/blob"
	"github.com/sells-group/tract-series/internal/fsutil"
)

// ErrNotFound is returned when an artifact exists neither locally nor in
// the durable store.
var ErrNotFound = eris.New("crosswalk: artifact not found; run `tract-series crosswalk` to build it")

// Store keeps crosswalk artifacts in a local directory mirrored to a
// durable blob store. remote may be nil for local-only operation.
type Store struct {
	dir       string
	remote    blob.Store
	precision int
	fs        afero.Fs
}

// NewStore creates a Store for artifacts of the given precision.
func NewStore(dir string, remote blob.Store, precision int) *Store {
	return &Store{dir: dir, remote: remote, precision: precision, fs: afero.NewOsFs()}
}

// Key is the artifact file name, used as the blob key as well.
func (s *Store) Key(dir Direction) string {
	return dir.FileName(s.precision)
}

// LocalPath is where the direction's artifact lives on disk.
func (s *Store) LocalPath(dir Direction) string {
	return filepath.Join(s.dir, s.Key(dir))
}

// Load reads a direction, downloading it from the durable store when no
// local copy exists.
func (s *Store) Load(ctx context.Context, dir Direction) (*Map, error) {
	path := s.LocalPath(dir)
	ok, err := fsutil.Exists(s.fs, path)
	if err != nil {
		return nil, err
	}
	if !ok {
		if err := s.fetchRemote(ctx, dir); err != nil {
			return nil, err
		}
	}

	f, err := s.fs.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "crosswalk: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	m, err := Decode(f, dir)
	if err != nil {
		return nil, eris.Wrapf(err, "crosswalk: decode %s", path)
	}
	return m, nil
}

func (s *Store) fetchRemote(ctx context.Context, dir Direction) error {
	if s.remote == nil {
		return eris.Wrapf(ErrNotFound, "crosswalk: %s", s.Key(dir))
	}
	has, err := s.remote.Has(ctx, s.Key(dir))
	if err != nil {
		return eris.Wrap(err, "crosswalk: check durable store")
	}
	if !has {
		return eris.Wrapf(ErrNotFound, "crosswalk: %s", s.Key(dir))
	}
	if err := s.remote.Download(ctx, s.Key(dir), s.LocalPath(dir)); err != nil {
		return eris.Wrap(err, "crosswalk: download from durable store")
	}
	return nil
}

// Save writes a direction locally and, when a durable store is configured,
// uploads it. An existing remote object is only replaced with
// overwriteRemote; otherwise it is kept and a warning logged.
func (s *Store) Save(ctx context.Context, m *Map, overwriteRemote bool) error {
	dir := m.Direction()
	path := s.LocalPath(dir)
	err := fsutil.WriteAtomic(s.fs, path, func(w io.Writer) error {
		return Encode(w, m)
	})
	if err != nil {
		return eris.Wrapf(err, "crosswalk: save %s", path)
	}
	if s.remote == nil {
		return nil
	}

	err = s.remote.Upload(ctx, path, s.Key(dir), overwriteRemote)
	if eris.Is(err, blob.ErrExists) {
		zap.L().Warn("durable copy exists and overwrite_remote is off; kept remote copy",
			zap.String("component", "crosswalk.store"),
			zap.String("key", s.Key(dir)),
		)
		return nil
	}
	if err != nil {
		return eris.Wrapf(err, "crosswalk: upload %s", s.Key(dir))
	}
	return nil
}

// Options control Ensure.
type Options struct {
	OverwriteLocal  bool
	OverwriteRemote bool
}

// Outcome reports what Ensure did.
type Outcome string

// Ensure outcomes.
const (
	UsedLocal  Outcome = "local"
	Downloaded Outcome = "downloaded"
	Rebuilt    Outcome = "built"
)

// BuildFunc computes both directions from scratch.
type BuildFunc func(ctx context.Context) (*Result, error)

// Ensure makes both artifacts available locally:
//
//  1. If every local artifact exists and OverwriteLocal is off, nothing is done.
//  2. Else, if every durable copy exists and OverwriteRemote is off, they are downloaded.
//  3. Else both directions are rebuilt, written locally and uploaded.
func (s *Store) Ensure(ctx context.Context, opts Options, build BuildFunc) (Outcome, error) {
	log := zap.L().With(
		zap.String("component", "crosswalk.store"),
		zap.Bool("overwrite_local", opts.OverwriteLocal),
		zap.Bool("overwrite_remote", opts.OverwriteRemote),
	)

	allLocal, allRemote := true, s.remote != nil
	for _, dir := range Directions {
		ok, err := fsutil.Exists(s.fs, s.LocalPath(dir))
		if err != nil {
			return "", err
		}
		allLocal = allLocal && ok

		has := false
		if s.remote != nil {
			has, err = s.remote.Has(ctx, s.Key(dir))
			if err != nil {
				return "", eris.Wrap(err, "crosswalk: check durable store")
			}
			allRemote = allRemote && has
		}
		log.Info("crosswalk availability", zap.String("file", s.Key(dir)), zap.Bool("local", ok), zap.Bool("remote", has))
	}

	if allLocal && !opts.OverwriteLocal {
		log.Info("local crosswalks exist, using them")
		return UsedLocal, nil
	}

	if allRemote && !opts.OverwriteRemote {
		log.Info("downloading crosswalks from durable store")
		for _, dir := range Directions {
			if err := s.remote.Download(ctx, s.Key(dir), s.LocalPath(dir)); err != nil {
				return "", eris.Wrapf(err, "crosswalk: download %s", s.Key(dir))
			}
		}
		return Downloaded, nil
	}

	log.Info("building crosswalks")
	res, err := build(ctx)
	if err != nil {
		return "", err
	}
	for _, dir := range Directions {
		if err := s.Save(ctx, res.Map(dir), opts.OverwriteRemote); err != nil {
			return "", err
		}
	}
	return Rebuilt, nil
}
