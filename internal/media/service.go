package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"github.com/google/uuid"
)

const (
	getFilePath   = "/get_file/"
	maxBaseLength = 64
)

var (
	assetNamePattern = regexp.MustCompile(`^[0-9a-f]{12}_[A-Za-z0-9._-]+$`)
	extensionPattern = regexp.MustCompile(`^\.[a-z0-9]{1,9}$`)
)

// Service stores and serves attachment blobs by generated name.
type Service struct {
	provider StorageProvider
	baseURL  string
	maxBytes int64
	logger   *slog.Logger
	newID    func() string
}

// NewService creates a media service. publicBaseURL prefixes retrieval URLs.
func NewService(log *slog.Logger, provider StorageProvider, publicBaseURL string, maxBytes int64) *Service {
	if log == nil {
		log = slog.Default()
	}
	if maxBytes <= 0 {
		maxBytes = MaxAssetBytes
	}
	return &Service{
		provider: provider,
		baseURL:  strings.TrimRight(strings.TrimSpace(publicBaseURL), "/"),
		maxBytes: maxBytes,
		logger:   log.With(slog.String("service", "media")),
		newID: func() string {
			return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
		},
	}
}

// Ingest stores a new blob under a random name and returns its descriptor.
func (s *Service) Ingest(ctx context.Context, input IngestInput) (Asset, error) {
	if s.provider == nil {
		return Asset{}, ErrProviderUnavailable
	}
	if input.Reader == nil {
		return Asset{}, fmt.Errorf("reader is required")
	}
	maxBytes := input.MaxBytes
	if maxBytes <= 0 {
		maxBytes = s.maxBytes
	}
	name := s.newID() + "_" + safeBaseName(input.OriginalName) + resolveExtension(input.OriginalName, input.Mime)
	counter := &limitedReader{r: input.Reader, max: maxBytes}
	if err := s.provider.Put(ctx, name, counter); err != nil {
		_ = s.provider.Delete(ctx, name)
		if errors.Is(err, ErrAssetTooLarge) {
			return Asset{}, fmt.Errorf("%w: max %d bytes", ErrAssetTooLarge, maxBytes)
		}
		return Asset{}, fmt.Errorf("store attachment: %w", err)
	}
	if counter.read == 0 {
		_ = s.provider.Delete(ctx, name)
		return Asset{}, ErrAssetEmpty
	}
	asset := Asset{
		Name:      name,
		Mime:      resolveMime(name, input.Mime),
		SizeBytes: counter.read,
		URL:       s.URL(name),
	}
	s.logger.Debug("attachment stored", slog.String("name", name), slog.Int64("size", asset.SizeBytes))
	return asset, nil
}

// Open returns a reader for a stored blob. Caller must close the reader.
func (s *Service) Open(ctx context.Context, name string) (io.ReadCloser, Asset, error) {
	if s.provider == nil {
		return nil, Asset{}, ErrProviderUnavailable
	}
	if !ValidName(name) {
		return nil, Asset{}, ErrInvalidName
	}
	reader, err := s.provider.Open(ctx, name)
	if err != nil {
		if errors.Is(err, ErrAssetNotFound) {
			return nil, Asset{}, ErrAssetNotFound
		}
		return nil, Asset{}, fmt.Errorf("open attachment: %w", err)
	}
	asset := Asset{Name: name, Mime: resolveMime(name, ""), URL: s.URL(name)}
	if size, err := s.provider.Stat(ctx, name); err == nil {
		asset.SizeBytes = size
	}
	return reader, asset, nil
}

// URL returns the public retrieval URL for name.
func (s *Service) URL(name string) string {
	return s.baseURL + getFilePath + name
}

// NameFromURL extracts a stored name from a URL this service produced.
func (s *Service) NameFromURL(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	prefix := s.baseURL + getFilePath
	if !strings.HasPrefix(raw, prefix) {
		return "", false
	}
	name := strings.TrimPrefix(raw, prefix)
	if !ValidName(name) {
		return "", false
	}
	return name, true
}

// ValidName reports whether name has the shape produced by Ingest.
func ValidName(name string) bool {
	return assetNamePattern.MatchString(name) && !strings.Contains(name, "..")
}

func safeBaseName(original string) string {
	base := filepath.Base(strings.TrimSpace(original))
	base = strings.TrimSuffix(base, filepath.Ext(base))
	var b strings.Builder
	for _, r := range base {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
		case r == '-' || r == '_':
			b.WriteRune(r)
		case r == ' ' || r == '.':
			b.WriteRune('_')
		}
		if b.Len() >= maxBaseLength {
			break
		}
	}
	out := strings.Trim(b.String(), "_")
	if out == "" {
		return "file"
	}
	return out
}

func resolveExtension(original, mimeType string) string {
	ext := strings.ToLower(filepath.Ext(strings.TrimSpace(original)))
	if extensionPattern.MatchString(ext) {
		return ext
	}
	return extensionFromMime(mimeType)
}

func resolveMime(name, declared string) string {
	declared = strings.TrimSpace(declared)
	if idx := strings.Index(declared, ";"); idx >= 0 {
		declared = strings.TrimSpace(declared[:idx])
	}
	if declared != "" {
		return declared
	}
	if byExt := mime.TypeByExtension(filepath.Ext(name)); byExt != "" {
		return byExt
	}
	return "application/octet-stream"
}

func extensionFromMime(mimeType string) string {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if idx := strings.Index(mimeType, ";"); idx >= 0 {
		mimeType = strings.TrimSpace(mimeType[:idx])
	}
	switch mimeType {
	case "image/png":
		return ".png"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "audio/mpeg", "audio/mp3":
		return ".mp3"
	case "audio/ogg":
		return ".ogg"
	case "video/mp4":
		return ".mp4"
	case "application/pdf":
		return ".pdf"
	case "text/plain":
		return ".txt"
	default:
		return ".bin"
	}
}
