package localfs

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/memohai/omnirelay/internal/media"
)

func TestProviderRoundTrip(t *testing.T) {
	t.Parallel()

	p, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	ctx := context.Background()
	if err := p.Put(ctx, "abc_doc.txt", strings.NewReader("payload")); err != nil {
		t.Fatalf("put: %v", err)
	}
	rc, err := p.Open(ctx, "abc_doc.txt")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "payload" {
		t.Fatalf("unexpected content: %q", data)
	}
	size, err := p.Stat(ctx, "abc_doc.txt")
	if err != nil || size != int64(len("payload")) {
		t.Fatalf("unexpected stat: %d %v", size, err)
	}
}

func TestProviderNeverOverwrites(t *testing.T) {
	t.Parallel()

	p, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	ctx := context.Background()
	if err := p.Put(ctx, "same.bin", strings.NewReader("one")); err != nil {
		t.Fatalf("first put: %v", err)
	}
	if err := p.Put(ctx, "same.bin", strings.NewReader("two")); err == nil {
		t.Fatal("expected second put to fail")
	}
}

func TestProviderRejectsTraversal(t *testing.T) {
	t.Parallel()

	p, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	ctx := context.Background()
	for _, key := range []string{"../escape", "/etc/passwd", "..", "a/../../b"} {
		if _, err := p.Open(ctx, key); !errors.Is(err, media.ErrPathTraversal) {
			t.Fatalf("key %q: expected traversal error, got %v", key, err)
		}
	}
}

func TestProviderOpenMissing(t *testing.T) {
	t.Parallel()

	p, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	if _, err := p.Open(context.Background(), "nope.bin"); !errors.Is(err, media.ErrAssetNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := p.Delete(context.Background(), "nope.bin"); err != nil {
		t.Fatalf("delete of missing file should succeed: %v", err)
	}
}
