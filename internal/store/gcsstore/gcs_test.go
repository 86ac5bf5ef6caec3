package gcsstore

import (
	"context"
	"errors"
	"testing"

	"cloud.google.com/go/storage"

	"github.com/discochess/coach/internal/store"
)

// fakeObjects is an in-memory object set.
type fakeObjects map[string][]byte

func (f fakeObjects) read(ctx context.Context, name string) ([]byte, error) {
	data, ok := f[name]
	if !ok {
		return nil, storage.ErrObjectNotExist
	}
	return data, nil
}

func (f fakeObjects) write(ctx context.Context, name string, data []byte) error {
	f[name] = data
	return nil
}

func (f fakeObjects) remove(ctx context.Context, name string) error {
	if _, ok := f[name]; !ok {
		return storage.ErrObjectNotExist
	}
	delete(f, name)
	return nil
}

func TestWithPrefix(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"", ""},
		{"prefix", "prefix/"},
		{"prefix/", "prefix/"},
		{"a/b/c/", "a/b/c/"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			b := &Bucket{}
			WithPrefix(tt.input)(b)
			if b.prefix != tt.want {
				t.Errorf("prefix = %q, want %q", b.prefix, tt.want)
			}
		})
	}
}

func TestBucket_PutGetDelete(t *testing.T) {
	objs := fakeObjects{}
	b := &Bucket{objects: objs, prefix: "data/v1/"}
	ctx := context.Background()

	if err := b.Put(ctx, "analysis/g1.json.zst", []byte("rows")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if _, ok := objs["data/v1/analysis/g1.json.zst"]; !ok {
		t.Errorf("object not stored under prefixed name: %v", objs)
	}

	got, err := b.Get(ctx, "analysis/g1.json.zst")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(got) != "rows" {
		t.Errorf("Get() = %q, want rows", got)
	}

	if err := b.Delete(ctx, "analysis/g1.json.zst"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := b.Delete(ctx, "analysis/g1.json.zst"); err != nil {
		t.Errorf("Delete() of missing object error = %v", err)
	}
	if _, err := b.Get(ctx, "analysis/g1.json.zst"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestBucket_CloseWithoutClient(t *testing.T) {
	b := &Bucket{objects: fakeObjects{}}
	if err := b.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
