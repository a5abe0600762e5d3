// Package objectstore abstracts where uploaded files land: a local
// directory in development, a Supabase storage bucket in production.
package objectstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/readspeed/backend/internal/database"
)

// Store persists uploaded objects and returns their public URL.
type Store interface {
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
	Delete(ctx context.Context, key string) error
}

// Local stores objects under a directory on disk. The HTTP server exposes
// the directory, so the public URL is publicBase joined with the key.
type Local struct {
	dir        string
	publicBase string
}

var _ Store = (*Local)(nil)

// NewLocal creates a Local store rooted at dir.
func NewLocal(dir, publicBase string) (*Local, error) {
	if dir == "" {
		return nil, fmt.Errorf("upload directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Local{dir: dir, publicBase: strings.TrimRight(publicBase, "/")}, nil
}

func (l *Local) path(key string) (string, error) {
	cleaned := filepath.Clean("/" + key)
	if cleaned == "/" {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return filepath.Join(l.dir, filepath.FromSlash(cleaned)), nil
}

func (l *Local) Put(_ context.Context, key, _ string, data []byte) (string, error) {
	path, err := l.path(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create object dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write object: %w", err)
	}
	return l.publicBase + "/" + strings.TrimLeft(key, "/"), nil
}

func (l *Local) Delete(_ context.Context, key string) error {
	path, err := l.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove object: %w", err)
	}
	return nil
}

// Dir returns the directory objects are written to.
func (l *Local) Dir() string {
	return l.dir
}

// Supabase stores objects in a Supabase storage bucket.
type Supabase struct {
	client *database.Client
	bucket string
}

var _ Store = (*Supabase)(nil)

// NewSupabase creates a bucket-backed store over client.
func NewSupabase(client *database.Client, bucket string) (*Supabase, error) {
	if bucket == "" {
		return nil, fmt.Errorf("storage bucket is required")
	}
	return &Supabase{client: client, bucket: bucket}, nil
}

func (s *Supabase) Put(ctx context.Context, key, contentType string, data []byte) (string, error) {
	if err := s.client.Upload(ctx, s.bucket, key, contentType, data); err != nil {
		return "", err
	}
	return s.client.PublicURL(s.bucket, key), nil
}

func (s *Supabase) Delete(ctx context.Context, key string) error {
	return s.client.DeleteObject(ctx, s.bucket, key)
}
