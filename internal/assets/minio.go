// Package assets stores uploaded images for image layers in S3-compatible
// object storage.
package assets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"craftboard/api/internal/util"
)

// ErrUnsupportedType is returned for uploads that are not images.
var ErrUnsupportedType = errors.New("unsupported content type")

// MaxUploadSize caps a single image upload.
const MaxUploadSize = 10 << 20

var allowedTypes = map[string]string{
	"image/png":     ".png",
	"image/jpeg":    ".jpg",
	"image/gif":     ".gif",
	"image/webp":    ".webp",
	"image/svg+xml": ".svg",
}

// Store uploads image assets to a MinIO bucket and hands back the URL a
// layer's image payload should reference.
type Store struct {
	client  *minio.Client
	bucket  string
	baseURL string
}

type Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// BaseURL is prepended to object keys in returned URLs. When empty the
	// endpoint itself is used.
	BaseURL string
}

// NewStore connects to MinIO and ensures the bucket exists.
func NewStore(ctx context.Context, opts Options) (*Store, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, opts.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", opts.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, opts.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", opts.Bucket, err)
		}
		log.Printf("assets: created bucket %s", opts.Bucket)
	}

	baseURL := strings.TrimSuffix(opts.BaseURL, "/")
	if baseURL == "" {
		scheme := "http"
		if opts.UseSSL {
			scheme = "https"
		}
		baseURL = fmt.Sprintf("%s://%s/%s", scheme, opts.Endpoint, opts.Bucket)
	}

	return &Store{client: client, bucket: opts.Bucket, baseURL: baseURL}, nil
}

// Upload stores an image and returns its public URL. The caller is expected
// to have bounded the reader at MaxUploadSize.
func (s *Store) Upload(ctx context.Context, contentType string, size int64, body io.Reader) (string, error) {
	key, err := ObjectKey(contentType)
	if err != nil {
		return "", err
	}

	_, err = s.client.PutObject(ctx, s.bucket, key, body, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}
	return s.baseURL + "/" + key, nil
}

// ObjectKey builds a unique object key for the given content type, or
// ErrUnsupportedType if the type is not an allowed image format.
func ObjectKey(contentType string) (string, error) {
	ext, ok := allowedTypes[normalizeContentType(contentType)]
	if !ok {
		return "", ErrUnsupportedType
	}
	return "uploads/" + util.NewID("img") + ext, nil
}

func normalizeContentType(ct string) string {
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = ct[:i]
	}
	return strings.ToLower(strings.TrimSpace(ct))
}
