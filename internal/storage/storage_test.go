package storage

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"

	"media-ingest/internal/filesystem"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := filesystem.EnsureDir(filepath.Dir(path)); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestPublisherKey(t *testing.T) {
	root := filepath.Join(t.TempDir(), "media")
	p := NewPublisher(NewLocal(root), root)

	tests := []struct {
		name    string
		path    string
		want    string
		wantErr bool
	}{
		{name: "primary", path: filepath.Join(root, "upload", "cat.jpg"), want: "upload/cat.jpg"},
		{name: "nested", path: filepath.Join(root, "upload", "posters", "thumbnails", "cat.jpg"), want: "upload/posters/thumbnails/cat.jpg"},
		{name: "root itself", path: root, wantErr: true},
		{name: "outside", path: filepath.Join(root, "..", "etc", "passwd"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.Key(tt.path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Key(%q) error = %v, wantErr %v", tt.path, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Key(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestLocalInPlace(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "upload", "cat.jpg")
	writeFile(t, src, "meow")

	keys, err := NewPublisher(NewLocal(root), root).Publish(context.Background(), []string{src})
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if !reflect.DeepEqual(keys, []string{"upload/cat.jpg"}) {
		t.Errorf("keys = %v", keys)
	}
	data, err := os.ReadFile(src)
	if err != nil || string(data) != "meow" {
		t.Errorf("file changed after in-place publish: %q %v", data, err)
	}
}

func TestLocalCopy(t *testing.T) {
	media := t.TempDir()
	archive := t.TempDir()
	src := filepath.Join(media, "upload", "thumbnails", "cat.jpg")
	writeFile(t, src, "small meow")

	p := NewPublisher(NewLocal(archive), media)
	keys, err := p.Publish(context.Background(), []string{src})
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	dst := filepath.Join(archive, "upload", "thumbnails", "cat.jpg")
	data, err := os.ReadFile(dst)
	if err != nil || string(data) != "small meow" {
		t.Fatalf("copy = %q, %v", data, err)
	}
	if filesystem.Exists(dst + ".part") {
		t.Error("partial file left behind")
	}

	if err := p.Unpublish(context.Background(), keys); err != nil {
		t.Fatalf("Unpublish() error = %v", err)
	}
	if filesystem.Exists(dst) {
		t.Error("copy still present after Unpublish")
	}
	if !filesystem.Exists(src) {
		t.Error("Unpublish removed the source")
	}
}

type failingBackend struct {
	failOn string
	puts   []string
}

func (f *failingBackend) Name() string { return "fake" }

func (f *failingBackend) Put(_ context.Context, key, _ string) error {
	if key == f.failOn {
		return errors.New("bucket on fire")
	}
	f.puts = append(f.puts, key)
	return nil
}

func (f *failingBackend) Delete(context.Context, string) error { return nil }

func TestPublishStopsAtFirstFailure(t *testing.T) {
	root := t.TempDir()
	backend := &failingBackend{failOn: "b.jpg"}
	p := NewPublisher(backend, root)

	paths := []string{
		filepath.Join(root, "a.jpg"),
		filepath.Join(root, "b.jpg"),
		filepath.Join(root, "c.jpg"),
	}
	keys, err := p.Publish(context.Background(), paths)
	if err == nil {
		t.Fatal("Publish() should fail")
	}
	if !reflect.DeepEqual(keys, []string{"a.jpg"}) {
		t.Errorf("published keys = %v, want [a.jpg]", keys)
	}
	if !reflect.DeepEqual(backend.puts, []string{"a.jpg"}) {
		t.Errorf("backend saw %v", backend.puts)
	}
}

func TestNewS3RequiresBucket(t *testing.T) {
	if _, err := NewS3(context.Background(), S3Config{Region: "us-east-1"}); err == nil {
		t.Fatal("NewS3() without a bucket should fail")
	}
}

func TestS3PutAndDelete(t *testing.T) {
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")

	var mu sync.Mutex
	var requests []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		mu.Lock()
		requests = append(requests, r.Method+" "+r.URL.Path)
		mu.Unlock()
		if r.Method == http.MethodDelete {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx := context.Background()
	backend, err := NewS3(ctx, S3Config{
		Bucket:          "media",
		Region:          "us-east-1",
		Endpoint:        srv.URL,
		AccessKeyID:     "test",
		SecretAccessKey: "test",
		Prefix:          "/site/",
		UsePathStyle:    true,
	})
	if err != nil {
		t.Fatalf("NewS3() error = %v", err)
	}

	root := t.TempDir()
	src := filepath.Join(root, "upload", "cat.jpg")
	writeFile(t, src, "meow")

	p := NewPublisher(backend, root)
	keys, err := p.Publish(ctx, []string{src})
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if err := p.Unpublish(ctx, keys); err != nil {
		t.Fatalf("Unpublish() error = %v", err)
	}

	want := []string{
		"PUT /media/site/upload/cat.jpg",
		"DELETE /media/site/upload/cat.jpg",
	}
	mu.Lock()
	defer mu.Unlock()
	if !reflect.DeepEqual(requests, want) {
		t.Errorf("requests = %v, want %v", requests, want)
	}
}
