package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"github.com/portailagence/knowledgeflow/internal/gcp"
	"google.golang.org/api/googleapi"
)

// MediaKind selects the logical bucket a blob belongs to. Buckets are
// partitioned by media kind so lifecycle rules and access policies can differ
// per kind.
type MediaKind string

const (
	KindDocuments MediaKind = "documents"
	KindImages    MediaKind = "images"
	KindVideos    MediaKind = "videos"
	KindHomepage  MediaKind = "homepage"
)

// MediaStoreConfig holds the bucket names backing each media kind.
type MediaStoreConfig struct {
	DocumentsBucket string
	ImagesBucket    string
	VideosBucket    string
	HomepageBucket  string
	PublicBaseURL   string
}

func loadMediaStoreConfig() (*MediaStoreConfig, error) {
	config := &MediaStoreConfig{
		DocumentsBucket: gcp.GetEnv("DOCUMENTS_BUCKET", ""),
		ImagesBucket:    gcp.GetEnv("IMAGES_BUCKET", ""),
		VideosBucket:    gcp.GetEnv("VIDEOS_BUCKET", ""),
		HomepageBucket:  gcp.GetEnv("HOMEPAGE_BUCKET", ""),
		PublicBaseURL:   gcp.GetEnv("MEDIA_PUBLIC_BASE_URL", "https://storage.googleapis.com"),
	}
	if config.DocumentsBucket == "" {
		return nil, fmt.Errorf("DOCUMENTS_BUCKET environment variable must be set")
	}
	return config, nil
}

// StoredObject describes one successfully stored blob.
type StoredObject struct {
	URL        string
	Bucket     string
	ObjectPath string
	FileType   string
}

// StoragePath is the "<bucket>/<object>" form carried on registry records so
// the processing workflow can locate the blob without resolving the URL.
func (o *StoredObject) StoragePath() string {
	return o.Bucket + "/" + o.ObjectPath
}

// MediaStore is content-addressed blob storage over GCS. Object paths mix in
// a random token, so concurrent uploads of identically named files never
// collide.
type MediaStore struct {
	client *storage.Client
	config MediaStoreConfig
}

// NewMediaStore creates a MediaStore from environment configuration.
func NewMediaStore(ctx context.Context) (*MediaStore, error) {
	config, err := loadMediaStoreConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	return &MediaStore{client: client, config: *config}, nil
}

func (m *MediaStore) bucketFor(kind MediaKind) (string, error) {
	var bucket string
	switch kind {
	case KindDocuments:
		bucket = m.config.DocumentsBucket
	case KindImages:
		bucket = m.config.ImagesBucket
	case KindVideos:
		bucket = m.config.VideosBucket
	case KindHomepage:
		bucket = m.config.HomepageBucket
	default:
		return "", fmt.Errorf("unknown media kind %q", kind)
	}
	if bucket == "" {
		return "", fmt.Errorf("no bucket configured for media kind %q", kind)
	}
	return bucket, nil
}

// FileTypeOf derives the lowercase extension tag for a filename, "bin" when
// the name carries no extension.
func FileTypeOf(filename string) string {
	ext := strings.TrimPrefix(path.Ext(filename), ".")
	if ext == "" {
		return "bin"
	}
	return strings.ToLower(ext)
}

func (m *MediaStore) objectName(category, filename string) string {
	category = strings.Trim(strings.ToLower(category), "/")
	if category == "" {
		category = "divers"
	}
	return fmt.Sprintf("%s/%s.%s", category, uuid.NewString(), FileTypeOf(filename))
}

func (m *MediaStore) publicURL(bucket, objectName string) string {
	return fmt.Sprintf("%s/%s/%s", strings.TrimSuffix(m.config.PublicBaseURL, "/"), bucket, objectName)
}

// Put streams r into a freshly named object under the kind's bucket and
// returns its public URL. The registry record for the blob must only be
// created after Put returns successfully.
func (m *MediaStore) Put(ctx context.Context, kind MediaKind, category, filename string, r io.Reader) (*StoredObject, error) {
	bucket, err := m.bucketFor(kind)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpload, err)
	}

	objectName := m.objectName(category, filename)
	writer := m.client.Bucket(bucket).Object(objectName).NewWriter(ctx)

	if _, err := io.Copy(writer, r); err != nil {
		_ = writer.Close()
		return nil, fmt.Errorf("%w: copy to gs://%s/%s: %v", ErrUpload, bucket, objectName, err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("%w: finalize gs://%s/%s: %v", ErrUpload, bucket, objectName, err)
	}

	return &StoredObject{
		URL:        m.publicURL(bucket, objectName),
		Bucket:     bucket,
		ObjectPath: objectName,
		FileType:   FileTypeOf(filename),
	}, nil
}

// PutText stores pasted text as a document blob. The write is conditional on
// the object not existing, which the random token already guarantees; the
// shared helper keeps the error handling uniform.
func (m *MediaStore) PutText(ctx context.Context, category, filename, content string) (*StoredObject, error) {
	bucket, err := m.bucketFor(KindDocuments)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpload, err)
	}

	objectName := m.objectName(category, filename)
	if err := gcp.SaveToGCSAtomically(ctx, m.client.Bucket(bucket), objectName, content); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpload, err)
	}

	return &StoredObject{
		URL:        m.publicURL(bucket, objectName),
		Bucket:     bucket,
		ObjectPath: objectName,
		FileType:   FileTypeOf(filename),
	}, nil
}

// Remove deletes the blob behind a public URL. It is idempotent: removing an
// object that no longer exists is not an error.
func (m *MediaStore) Remove(ctx context.Context, fileURL string) error {
	bucket, objectName, err := m.splitURL(fileURL)
	if err != nil {
		return err
	}

	err = m.client.Bucket(bucket).Object(objectName).Delete(ctx)
	if err == nil || errors.Is(err, storage.ErrObjectNotExist) {
		return nil
	}
	if gerr, ok := err.(*googleapi.Error); ok && gerr.Code == 404 {
		return nil
	}
	slog.Warn("Failed to delete blob.", "fileUrl", fileURL, "error", err)
	return fmt.Errorf("failed to delete gs://%s/%s: %w", bucket, objectName, err)
}

func (m *MediaStore) splitURL(fileURL string) (bucket, objectName string, err error) {
	base := strings.TrimSuffix(m.config.PublicBaseURL, "/") + "/"
	rest, ok := strings.CutPrefix(fileURL, base)
	if !ok {
		return "", "", fmt.Errorf("url %q is not served by this media store", fileURL)
	}
	bucket, objectName, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || objectName == "" {
		return "", "", fmt.Errorf("url %q has no bucket/object path", fileURL)
	}
	return bucket, objectName, nil
}
