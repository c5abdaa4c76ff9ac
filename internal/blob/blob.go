package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	gcblob "gocloud.dev/blob"
	_ "gocloud.dev/blob/azureblob"
	"gocloud.dev/blob/fileblob"
	"gocloud.dev/gcerrors"
)

var ErrNotFound = errors.New("blob: not found")

// Storage keeps uploaded and generated documents under slash separated keys.
type Storage interface {
	Put(ctx context.Context, key, contentType string, r io.Reader) (string, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// Upload is a file received from a client.
type Upload struct {
	Filename    string
	ContentType string
	Body        io.Reader
}

// Ext returns the lowercase extension of the uploaded file name, including the dot.
func (u Upload) Ext() string {
	return strings.ToLower(path.Ext(u.Filename))
}

// Bucket is a Storage backed by a Go CDK bucket. The returned URL is the key itself.
type Bucket struct {
	b *gcblob.Bucket
}

// Open opens a bucket from a URL such as file:///var/lib/tallybook?create_dir=true
// or azblob://documents.
func Open(ctx context.Context, url string) (*Bucket, error) {
	if strings.TrimSpace(url) == "" {
		return nil, errors.New("blob: bucket url is required")
	}
	b, err := gcblob.OpenBucket(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("blob: open %s: %w", url, err)
	}
	return &Bucket{b: b}, nil
}

// NewFS opens a bucket on a local directory, creating it when missing.
func NewFS(root string) (*Bucket, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("blob: root directory is required")
	}
	b, err := fileblob.OpenBucket(root, &fileblob.Options{CreateDir: true, NoTempDir: true, DirFileMode: 0o750})
	if err != nil {
		return nil, fmt.Errorf("blob: open %s: %w", root, err)
	}
	return &Bucket{b: b}, nil
}

func (s *Bucket) Put(ctx context.Context, key, contentType string, r io.Reader) (string, error) {
	k, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	if err := s.b.Upload(ctx, k, r, &gcblob.WriterOptions{ContentType: contentType}); err != nil {
		return "", fmt.Errorf("blob: write %s: %w", key, err)
	}
	return k, nil
}

func (s *Bucket) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	k, err := cleanKey(key)
	if err != nil {
		return nil, err
	}
	rd, err := s.b.NewReader(ctx, k, nil)
	if gcerrors.Code(err) == gcerrors.NotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("blob: open %s: %w", key, err)
	}
	return rd, nil
}

func (s *Bucket) Delete(ctx context.Context, key string) error {
	k, err := cleanKey(key)
	if err != nil {
		return err
	}
	err = s.b.Delete(ctx, k)
	if gcerrors.Code(err) == gcerrors.NotFound {
		return ErrNotFound
	}
	return err
}

func (s *Bucket) Close() error { return s.b.Close() }

// cleanKey rejects empty keys and strips parent references.
func cleanKey(key string) (string, error) {
	clean := path.Clean("/" + strings.TrimSpace(key))
	if clean == "/" {
		return "", fmt.Errorf("blob: invalid key %q", key)
	}
	return strings.TrimPrefix(clean, "/"), nil
}

// ReadAll fetches a blob fully into memory.
func ReadAll(ctx context.Context, s Storage, key string) ([]byte, error) {
	rc, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
