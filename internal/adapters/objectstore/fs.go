package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/target/namescreen/internal/core"
)

// FSStore implements core.ObjectStore on a directory tree laid out as
// <root>/<bucket>/<key>.
type FSStore struct {
	root string
}

var _ core.ObjectStore = (*FSStore)(nil)

// NewFSStore returns a store rooted at root. The directory is created if missing.
func NewFSStore(root string) (*FSStore, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("object store root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve object store root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("create object store root: %w", err)
	}
	return &FSStore{root: abs}, nil
}

// Open opens <root>/<bucket>/<key>. A missing file matches core.ErrObjectNotFound.
func (s *FSStore) Open(_ context.Context, bucket, key string) (io.ReadCloser, error) {
	path, err := s.path(bucket, key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path) // #nosec G304 -- path is confined to the store root
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("open %s/%s: %w", bucket, key, core.ErrObjectNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s/%s: %w", bucket, key, err)
	}
	return f, nil
}

// Put writes the object through a temporary file so readers never see a partial body.
func (s *FSStore) Put(_ context.Context, params core.PutObjectParams) error {
	if params.Body == nil {
		return errors.New("object body is required")
	}
	path, err := s.path(params.Bucket, params.Key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create directory for %s/%s: %w", params.Bucket, params.Key, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		// no-op once renamed
		_ = os.Remove(tmp.Name())
	}()
	if _, err := io.Copy(tmp, params.Body); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s/%s: %w", params.Bucket, params.Key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s/%s: %w", params.Bucket, params.Key, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("commit %s/%s: %w", params.Bucket, params.Key, err)
	}
	return nil
}

// path maps bucket and key under the root and rejects anything that escapes it.
func (s *FSStore) path(bucket, key string) (string, error) {
	if bucket == "" || key == "" {
		return "", errors.New("bucket and key are required")
	}
	if strings.ContainsAny(bucket, `/\`) {
		return "", fmt.Errorf("invalid bucket name %q", bucket)
	}
	p := filepath.Join(s.root, bucket, filepath.FromSlash(key))
	rel, err := filepath.Rel(filepath.Join(s.root, bucket), p)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return p, nil
}
