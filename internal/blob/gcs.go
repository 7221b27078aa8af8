package blob

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"

	"cloud.google.com/go/storage"
	"github.com/rotisserie/eris"
	"github.com/spf13/afero"
	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/sells-group/tract-series/internal/fsutil"
)

// bucket is the subset of a GCS bucket handle the store needs.
type bucket interface {
	Exists(ctx context.Context, name string) (bool, error)
	Writer(ctx context.Context, name string, ifAbsent bool) io.WriteCloser
	Reader(ctx context.Context, name string) (io.ReadCloser, error)
}

// GCS stores objects in a Google Cloud Storage bucket.
type GCS struct {
	bucket bucket
	name   string
	prefix string
	local  afero.Fs
}

// NewGCS creates a GCS-backed store. Credentials come from
// CredentialsFile when set, otherwise from the environment.
func NewGCS(ctx context.Context, cfg Config) (*GCS, error) {
	if cfg.Bucket == "" {
		return nil, eris.New("blob: gcs provider requires blob.bucket")
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		if _, err := os.Stat(cfg.CredentialsFile); err != nil {
			return nil, eris.Wrapf(err, "blob: credentials file %s", cfg.CredentialsFile)
		}
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, eris.Wrap(err, "blob: create GCS client")
	}
	return &GCS{
		bucket: gcsBucket{client.Bucket(cfg.Bucket)},
		name:   cfg.Bucket,
		prefix: cfg.Prefix,
		local:  afero.NewOsFs(),
	}, nil
}

// Has implements Store.
func (g *GCS) Has(ctx context.Context, key string) (bool, error) {
	ok, err := g.bucket.Exists(ctx, objectKey(g.prefix, key))
	if err != nil {
		return false, eris.Wrapf(err, "blob: stat gs://%s/%s", g.name, objectKey(g.prefix, key))
	}
	return ok, nil
}

// Upload implements Store. Without overwrite the write carries a
// does-not-exist precondition, so a concurrent writer cannot be clobbered.
func (g *GCS) Upload(ctx context.Context, localPath, key string, overwrite bool) error {
	name := objectKey(g.prefix, key)
	in, err := g.local.Open(localPath)
	if err != nil {
		return eris.Wrapf(err, "blob: open %s", localPath)
	}
	defer in.Close() //nolint:errcheck

	w := g.bucket.Writer(ctx, name, !overwrite)
	if _, err := io.Copy(w, in); err != nil {
		_ = w.Close()
		return eris.Wrapf(err, "blob: upload %s", name)
	}
	if err := w.Close(); err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed {
			return eris.Wrapf(ErrExists, "blob: gs://%s/%s", g.name, name)
		}
		return eris.Wrapf(err, "blob: finalize upload %s", name)
	}

	zap.L().Info("uploaded object",
		zap.String("component", "blob.gcs"),
		zap.String("local", localPath),
		zap.String("object", "gs://"+g.name+"/"+name),
	)
	return nil
}

// Download implements Store.
func (g *GCS) Download(ctx context.Context, key, localPath string) error {
	name := objectKey(g.prefix, key)
	r, err := g.bucket.Reader(ctx, name)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return eris.Wrapf(ErrNotFound, "blob: gs://%s/%s", g.name, name)
		}
		return eris.Wrapf(err, "blob: open gs://%s/%s", g.name, name)
	}
	defer r.Close() //nolint:errcheck

	return fsutil.WriteAtomic(g.local, localPath, func(w io.Writer) error {
		if _, err := io.Copy(w, r); err != nil {
			return eris.Wrapf(err, "blob: download %s", name)
		}
		return nil
	})
}

type gcsBucket struct {
	h *storage.BucketHandle
}

func (b gcsBucket) Exists(ctx context.Context, name string) (bool, error) {
	_, err := b.h.Object(name).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (b gcsBucket) Writer(ctx context.Context, name string, ifAbsent bool) io.WriteCloser {
	obj := b.h.Object(name)
	if ifAbsent {
		obj = obj.If(storage.Conditions{DoesNotExist: true})
	}
	w := obj.NewWriter(ctx)
	w.ContentType = "application/x-ndjson"
	w.CacheControl = "no-cache, no-store, must-revalidate"
	return w
}

func (b gcsBucket) Reader(ctx context.Context, name string) (io.ReadCloser, error) {
	return b.h.Object(name).NewReader(ctx)
}
