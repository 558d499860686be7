package media

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
)

type memoryProvider struct {
	mu    sync.Mutex
	files map[string][]byte
}

func newMemoryProvider() *memoryProvider {
	return &memoryProvider{files: map[string][]byte{}}
}

func (p *memoryProvider) Put(_ context.Context, key string, reader io.Reader) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.files[key] = data
	return nil
}

func (p *memoryProvider) Open(_ context.Context, key string) (io.ReadCloser, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	data, ok := p.files[key]
	if !ok {
		return nil, ErrAssetNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (p *memoryProvider) Delete(_ context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.files, key)
	return nil
}

func (p *memoryProvider) Stat(_ context.Context, key string) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	data, ok := p.files[key]
	if !ok {
		return 0, ErrAssetNotFound
	}
	return int64(len(data)), nil
}

func TestIngestNamesAndURL(t *testing.T) {
	t.Parallel()

	provider := newMemoryProvider()
	svc := NewService(nil, provider, "http://relay.local/", 0)
	svc.newID = func() string { return "0123456789ab" }

	asset, err := svc.Ingest(context.Background(), IngestInput{
		Reader:       strings.NewReader("%PDF-1.4"),
		OriginalName: "Contract final.PDF",
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if asset.Name != "0123456789ab_Contract_final.pdf" {
		t.Fatalf("unexpected name: %s", asset.Name)
	}
	if asset.URL != "http://relay.local/get_file/0123456789ab_Contract_final.pdf" {
		t.Fatalf("unexpected url: %s", asset.URL)
	}
	if asset.Mime != "application/pdf" {
		t.Fatalf("unexpected mime: %s", asset.Mime)
	}
	if asset.SizeBytes != 8 {
		t.Fatalf("unexpected size: %d", asset.SizeBytes)
	}
	name, ok := svc.NameFromURL(asset.URL)
	if !ok || name != asset.Name {
		t.Fatalf("NameFromURL mismatch: %q %v", name, ok)
	}
	rc, opened, err := svc.Open(context.Background(), name)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_ = rc.Close()
	if opened.SizeBytes != 8 || opened.Mime != "application/pdf" {
		t.Fatalf("unexpected opened asset: %+v", opened)
	}
}

func TestIngestExtensionFromMime(t *testing.T) {
	t.Parallel()

	svc := NewService(nil, newMemoryProvider(), "http://relay.local", 0)
	svc.newID = func() string { return "aaaaaaaaaaaa" }
	asset, err := svc.Ingest(context.Background(), IngestInput{
		Reader: strings.NewReader("img"),
		Mime:   "image/jpeg; charset=binary",
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if asset.Name != "aaaaaaaaaaaa_file.jpg" {
		t.Fatalf("unexpected name: %s", asset.Name)
	}
	if asset.Mime != "image/jpeg" {
		t.Fatalf("unexpected mime: %s", asset.Mime)
	}
}

func TestIngestRejectsOversizeAndEmpty(t *testing.T) {
	t.Parallel()

	provider := newMemoryProvider()
	svc := NewService(nil, provider, "http://relay.local", 4)
	_, err := svc.Ingest(context.Background(), IngestInput{Reader: strings.NewReader("0123456789")})
	if !errors.Is(err, ErrAssetTooLarge) {
		t.Fatalf("expected ErrAssetTooLarge, got %v", err)
	}
	_, err = svc.Ingest(context.Background(), IngestInput{Reader: strings.NewReader("")})
	if !errors.Is(err, ErrAssetEmpty) {
		t.Fatalf("expected ErrAssetEmpty, got %v", err)
	}
	if len(provider.files) != 0 {
		t.Fatalf("failed ingests must not leave blobs behind: %v", provider.files)
	}
}

func TestOpenValidatesName(t *testing.T) {
	t.Parallel()

	svc := NewService(nil, newMemoryProvider(), "http://relay.local", 0)
	if _, _, err := svc.Open(context.Background(), "../../etc/passwd"); !errors.Is(err, ErrInvalidName) {
		t.Fatalf("expected ErrInvalidName, got %v", err)
	}
	if _, _, err := svc.Open(context.Background(), "0123456789ab_missing.txt"); !errors.Is(err, ErrAssetNotFound) {
		t.Fatalf("expected ErrAssetNotFound, got %v", err)
	}
}

func TestSafeBaseName(t *testing.T) {
	t.Parallel()

	cases := []struct{ in, want string }{
		{"", "file"},
		{"photo.jpg", "photo"},
		{"../../evil name.sh", "evil_name"},
		{"Привет.txt", "file"},
	}
	for _, tc := range cases {
		if got := safeBaseName(tc.in); got != tc.want {
			t.Fatalf("safeBaseName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
