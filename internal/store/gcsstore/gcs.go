// Package gcsstore implements a Google Cloud Storage bucket.
package gcsstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/discochess/coach/internal/store"
	"github.com/discochess/coach/internal/store/blobstore"
)

// Compile-time check that Bucket implements blobstore.Bucket.
var _ blobstore.Bucket = (*Bucket)(nil)

// objects is the subset of bucket operations used by Bucket.
type objects interface {
	read(ctx context.Context, name string) ([]byte, error)
	write(ctx context.Context, name string, data []byte) error
	remove(ctx context.Context, name string) error
}

// Bucket is a Google Cloud Storage bucket.
type Bucket struct {
	client  *storage.Client
	objects objects
	prefix  string
}

// Option configures a Bucket.
type Option func(*Bucket)

// WithPrefix sets a key prefix for all operations.
func WithPrefix(prefix string) Option {
	return func(b *Bucket) {
		b.prefix = strings.TrimSuffix(prefix, "/")
		if b.prefix != "" {
			b.prefix += "/"
		}
	}
}

// New creates a bucket using application default credentials.
// The bucket must already exist.
func New(ctx context.Context, bucketName string, opts ...Option) (*Bucket, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating GCS client: %w", err)
	}

	b := &Bucket{
		client:  client,
		objects: handle{client.Bucket(bucketName)},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Get reads an object.
func (b *Bucket) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := b.objects.read(ctx, b.prefix+key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("reading object: %w", err)
	}
	return data, nil
}

// Put writes an object.
func (b *Bucket) Put(ctx context.Context, key string, data []byte) error {
	if err := b.objects.write(ctx, b.prefix+key, data); err != nil {
		return fmt.Errorf("writing object: %w", err)
	}
	return nil
}

// Delete removes an object.
func (b *Bucket) Delete(ctx context.Context, key string) error {
	err := b.objects.remove(ctx, b.prefix+key)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("deleting object: %w", err)
	}
	return nil
}

// Close releases resources.
func (b *Bucket) Close() error {
	if b.client == nil {
		return nil
	}
	return b.client.Close()
}

// handle adapts a storage.BucketHandle to objects.
type handle struct {
	bucket *storage.BucketHandle
}

func (h handle) read(ctx context.Context, name string) ([]byte, error) {
	r, err := h.bucket.Object(name).NewReader(ctx)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

func (h handle) write(ctx context.Context, name string, data []byte) error {
	w := h.bucket.Object(name).NewWriter(ctx)
	if _, err := w.Write(data); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

func (h handle) remove(ctx context.Context, name string) error {
	return h.bucket.Object(name).Delete(ctx)
}
