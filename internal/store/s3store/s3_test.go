package s3store

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/discochess/coach/internal/store"
	"github.com/discochess/coach/internal/store/blobstore"
)

// fakeS3 is an in-memory S3 API.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte)}
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func TestWithPrefix(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"", ""},
		{"prefix", "prefix/"},
		{"prefix/", "prefix/"},
		{"a/b/c", "a/b/c/"},
		{"a/b/c/", "a/b/c/"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			var s settings
			WithPrefix(tt.input)(&s)
			if s.prefix != tt.want {
				t.Errorf("prefix = %q, want %q", s.prefix, tt.want)
			}
		})
	}
}

func TestBucket_PutGetDelete(t *testing.T) {
	fake := newFakeS3()
	b := &Bucket{client: fake, bucket: "coach", prefix: "prod/"}
	ctx := context.Background()

	if err := b.Put(ctx, "games/g1.json.zst", []byte("payload")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if _, ok := fake.objects["coach/prod/games/g1.json.zst"]; !ok {
		t.Errorf("object not stored under prefixed key: %v", fake.objects)
	}

	got, err := b.Get(ctx, "games/g1.json.zst")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(got) != "payload" {
		t.Errorf("Get() = %q, want payload", got)
	}

	if err := b.Delete(ctx, "games/g1.json.zst"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := b.Get(ctx, "games/g1.json.zst"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Get() after delete error = %v, want ErrNotFound", err)
	}
}

func TestBucket_WithBlobstore(t *testing.T) {
	b := &Bucket{client: newFakeS3(), bucket: "coach"}
	s, err := blobstore.New(b, blobstore.WithCompression(blobstore.CompressionZstd))
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if err := s.ReplaceAnalysis(ctx, &store.Analysis{GameID: "g1", Incomplete: true}); err != nil {
		t.Fatal(err)
	}
	a, err := s.Analysis(ctx, "g1")
	if err != nil {
		t.Fatalf("Analysis() error = %v", err)
	}
	if !a.Incomplete {
		t.Error("Incomplete flag lost")
	}
}

func TestBucket_Close(t *testing.T) {
	b := &Bucket{}
	if err := b.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
