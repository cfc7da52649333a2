// Package storage persists raster collections as parquet pixel tables in a
// local directory tree or an S3 compatible object store.
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

//go:generate mockgen -destination=mocks/mock_store.go -package=mocks github.com/openet/core/pkg/storage ObjectStore

// ObjectStore is the minimal bucket/key interface used by the pipeline
type ObjectStore interface {
	EnsureBucket(ctx context.Context, bucket string) error
	BucketExists(ctx context.Context, bucket string) (bool, error)
	PutObject(ctx context.Context, bucket, key string, data []byte) error
	GetObject(ctx context.Context, bucket, key string) ([]byte, error)
	ListPrefix(ctx context.Context, bucket, prefix string) ([]string, error)
}

// LocalStore keeps objects on disk under root/bucket/key
type LocalStore struct {
	root string
}

// NewLocalStore creates a local store rooted at root
func NewLocalStore(root string) (*LocalStore, error) {
	if root == "" {
		return nil, wrapError(CodeBucketNotFound, false, fmt.Errorf("store root is required"))
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, wrapError(CodePermissionDenied, false, err)
	}
	return &LocalStore{root: root}, nil
}

// Root returns the store directory
func (s *LocalStore) Root() string { return s.root }

func (s *LocalStore) EnsureBucket(ctx context.Context, bucket string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if bucket == "" {
		return wrapError(CodeBucketNotFound, false, os.ErrNotExist)
	}
	if err := os.MkdirAll(s.bucketPath(bucket), 0o755); err != nil {
		return wrapError(CodePermissionDenied, false, err)
	}
	return nil
}

func (s *LocalStore) BucketExists(ctx context.Context, bucket string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	info, err := os.Stat(s.bucketPath(bucket))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, wrapError(CodeReadFailed, true, err)
	}
	return info.IsDir(), nil
}

// PutObject writes the object through a temp file and rename
func (s *LocalStore) PutObject(ctx context.Context, bucket, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if key == "" {
		return wrapError(CodeWriteFailed, false, fmt.Errorf("object key is required"))
	}
	if err := s.EnsureBucket(ctx, bucket); err != nil {
		return err
	}

	fullPath, err := s.objectPath(bucket, key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return wrapError(CodePermissionDenied, false, err)
	}
	tmp := fullPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return wrapError(CodeWriteFailed, true, err)
	}
	if err := os.Rename(tmp, fullPath); err != nil {
		_ = os.Remove(tmp)
		return wrapError(CodeWriteFailed, true, err)
	}
	return nil
}

func (s *LocalStore) GetObject(ctx context.Context, bucket, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if bucket == "" {
		return nil, wrapError(CodeBucketNotFound, false, os.ErrNotExist)
	}
	fullPath, err := s.objectPath(bucket, key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, wrapError(CodeObjectNotFound, false, err)
		}
		return nil, wrapError(CodeReadFailed, true, err)
	}
	return data, nil
}

// ListPrefix returns the sorted keys under prefix
func (s *LocalStore) ListPrefix(ctx context.Context, bucket, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if bucket == "" {
		return nil, wrapError(CodeBucketNotFound, false, os.ErrNotExist)
	}
	base := s.bucketPath(bucket)

	var keys []string
	err := filepath.WalkDir(base, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || strings.HasSuffix(path, ".tmp") {
			return nil
		}
		rel, err := filepath.Rel(base, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, wrapError(CodeReadFailed, true, err)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *LocalStore) bucketPath(bucket string) string {
	return filepath.Join(s.root, filepath.Base(filepath.Clean("/"+bucket)))
}

// objectPath resolves key inside the bucket, rejecting keys that escape it
func (s *LocalStore) objectPath(bucket, key string) (string, error) {
	base := s.bucketPath(bucket)
	full := filepath.Join(base, filepath.FromSlash(key))
	if full != base && !strings.HasPrefix(full, base+string(filepath.Separator)) {
		return "", wrapError(CodePermissionDenied, false, fmt.Errorf("key %q escapes bucket", key))
	}
	return full, nil
}

// JoinKey joins key segments with forward slashes
func JoinKey(parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p = strings.Trim(p, "/"); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "/")
}
