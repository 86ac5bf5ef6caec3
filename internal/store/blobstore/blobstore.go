// Package blobstore stores games and analyses as compressed JSON documents
// in a key-value bucket.
package blobstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/discochess/coach/internal/store"
)

// Bucket is a flat key-value object store.
type Bucket interface {
	// Get returns the object at key, or store.ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put writes the object at key, replacing any previous one.
	Put(ctx context.Context, key string, data []byte) error

	// Delete removes the object at key. Missing objects are not an error.
	Delete(ctx context.Context, key string) error

	// Close releases any resources held by the bucket.
	Close() error
}

// ErrInvalidID indicates an id that cannot be used as an object key.
var ErrInvalidID = errors.New("blobstore: invalid id")

// Compile-time check that Store implements store.Store.
var _ store.Store = (*Store)(nil)

// Store implements store.Store over a Bucket.
type Store struct {
	bucket Bucket
	codec  codec
	logger *zap.Logger
}

// Option configures a Store.
type Option func(*options)

type options struct {
	compression Compression
	logger      *zap.Logger
}

// WithCompression sets document compression. Default is zstd.
func WithCompression(c Compression) Option {
	return func(o *options) { o.compression = c }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// New creates a store over bucket.
func New(bucket Bucket, opts ...Option) (*Store, error) {
	o := options{compression: CompressionZstd, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	c, err := newCodec(o.compression)
	if err != nil {
		return nil, err
	}
	return &Store{bucket: bucket, codec: c, logger: o.logger}, nil
}

// Game returns a stored game.
func (s *Store) Game(ctx context.Context, id string) (*store.Game, error) {
	var g store.Game
	if err := s.read(ctx, "games", id, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

// PutGame stores a game.
func (s *Store) PutGame(ctx context.Context, g *store.Game) error {
	return s.write(ctx, "games", g.ID, g)
}

// Analysis returns a game's analysis.
func (s *Store) Analysis(ctx context.Context, gameID string) (*store.Analysis, error) {
	var a store.Analysis
	if err := s.read(ctx, "analysis", gameID, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// ReplaceAnalysis stores a game's analysis.
func (s *Store) ReplaceAnalysis(ctx context.Context, a *store.Analysis) error {
	return s.write(ctx, "analysis", a.GameID, a)
}

// DeleteAnalysis removes a game's analysis.
func (s *Store) DeleteAnalysis(ctx context.Context, gameID string) error {
	key, err := s.key("analysis", gameID)
	if err != nil {
		return err
	}
	if err := s.bucket.Delete(ctx, key); err != nil {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	return nil
}

// Close closes the bucket.
func (s *Store) Close() error {
	return s.bucket.Close()
}

func (s *Store) read(ctx context.Context, kind, id string, v any) error {
	key, err := s.key(kind, id)
	if err != nil {
		return err
	}
	raw, err := s.bucket.Get(ctx, key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.ErrNotFound
		}
		return fmt.Errorf("reading %s: %w", key, err)
	}
	data, err := s.codec.decode(raw)
	if err != nil {
		return fmt.Errorf("decompressing %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding %s: %w", key, err)
	}
	return nil
}

func (s *Store) write(ctx context.Context, kind, id string, v any) error {
	key, err := s.key(kind, id)
	if err != nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	compressed, err := s.codec.encode(data)
	if err != nil {
		return fmt.Errorf("compressing %s: %w", key, err)
	}
	if err := s.bucket.Put(ctx, key, compressed); err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	s.logger.Debug("stored document",
		zap.String("key", key),
		zap.Int("bytes", len(compressed)),
	)
	return nil
}

// key returns the object key for a document, e.g. "games/abc.json.zst".
func (s *Store) key(kind, id string) (string, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	name := kind + "/" + id + ".json"
	if ext := s.codec.extension(); ext != "" {
		name += "." + ext
	}
	return name, nil
}
