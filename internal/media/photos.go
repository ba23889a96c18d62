// Package media issues presigned URLs for profile photos kept in S3-compatible storage.
package media

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/quickbites/identity-service/internal/config"
	"github.com/quickbites/identity-service/internal/domain"
)

var (
	// ErrStorageDisabled is returned when no bucket is configured.
	ErrStorageDisabled = errors.New("photo storage is not configured")
	// ErrUnsupportedContentType is returned for anything but jpeg, png or webp.
	ErrUnsupportedContentType = errors.New("unsupported content type")
)

var allowedContentTypes = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/webp": "webp",
}

// Upload is a presigned PUT the client performs directly against storage.
type Upload struct {
	Key       string    `json:"key"`
	URL       string    `json:"url"`
	Method    string    `json:"method"`
	ExpiresAt time.Time `json:"expires_at"`
}

// PhotoStore issues upload and download URLs for profile photos.
type PhotoStore interface {
	PresignUpload(ctx context.Context, role domain.Role, principalID, contentType string) (*Upload, error)
	PresignDownload(ctx context.Context, key string) (string, error)
}

type presigner interface {
	PresignPutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3PhotoStore presigns against an S3 or MinIO bucket.
type S3PhotoStore struct {
	presign presigner
	bucket  string
	ttl     time.Duration
	now     func() time.Time
}

// NewS3PhotoStore loads AWS config with static credentials when given, or the
// default chain otherwise.
func NewS3PhotoStore(ctx context.Context, cfg config.StorageConfig) (*S3PhotoStore, error) {
	if cfg.Bucket == "" {
		return nil, ErrStorageDisabled
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3PhotoStore{
		presign: s3.NewPresignClient(client),
		bucket:  cfg.Bucket,
		ttl:     cfg.PresignTTL(),
		now:     time.Now,
	}, nil
}

// PresignUpload returns a PUT URL for a fresh object key under the principal's prefix.
func (s *S3PhotoStore) PresignUpload(ctx context.Context, role domain.Role, principalID, contentType string) (*Upload, error) {
	ext, ok := allowedContentTypes[strings.ToLower(contentType)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedContentType, contentType)
	}

	key := photoKey(role, principalID, ext)
	req, err := s.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(s.ttl))
	if err != nil {
		return nil, fmt.Errorf("presign put: %w", err)
	}
	return &Upload{Key: key, URL: req.URL, Method: req.Method, ExpiresAt: s.now().Add(s.ttl)}, nil
}

// PresignDownload returns a GET URL for a stored photo.
func (s *S3PhotoStore) PresignDownload(ctx context.Context, key string) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.ttl))
	if err != nil {
		return "", fmt.Errorf("presign get: %w", err)
	}
	return req.URL, nil
}

// OwnsKey reports whether key lives under the principal's photo prefix.
func OwnsKey(role domain.Role, principalID, key string) bool {
	return strings.HasPrefix(key, photoPrefix(role, principalID))
}

func photoPrefix(role domain.Role, principalID string) string {
	return fmt.Sprintf("profiles/%s/%s/", role.Slug(), principalID)
}

func photoKey(role domain.Role, principalID, ext string) string {
	return fmt.Sprintf("%s%s.%s", photoPrefix(role, principalID), uuid.NewString(), ext)
}
