// Package storage keeps subdomain avatar images in S3-compatible object storage.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/welldanyogia/colancer-registry/internal/config"
)

// MaxAvatarSize is the largest avatar accepted (2 MiB)
const MaxAvatarSize = 2 << 20

// AvatarPrefix is the key prefix every avatar is stored under
const AvatarPrefix = "avatars/"

// Avatar errors
var (
	ErrUnsupportedContentType = errors.New("unsupported avatar content type")
	ErrAvatarTooLarge         = errors.New("avatar exceeds maximum size")
)

// allowedContentTypes maps accepted image types to file extensions
var allowedContentTypes = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// AvatarStore uploads avatars to S3/MinIO and hands out pre-signed download URLs
type AvatarStore struct {
	client             *s3.Client
	presignClient      *s3.PresignClient
	bucket             string
	presignedURLExpiry time.Duration
}

// NewAvatarStore creates an AvatarStore with an S3 client configured for MinIO compatibility
func NewAvatarStore(cfg *config.StorageConfig) *AvatarStore {
	endpointURL := cfg.Endpoint
	if !strings.HasPrefix(endpointURL, "http://") && !strings.HasPrefix(endpointURL, "https://") {
		protocol := "http"
		if cfg.UseSSL {
			protocol = "https"
		}
		endpointURL = protocol + "://" + endpointURL
	}

	client := s3.New(s3.Options{
		Region: cfg.Region,
		Credentials: credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		),
		BaseEndpoint: aws.String(endpointURL),
		UsePathStyle: true,
	})

	expiry := cfg.PresignedURLExpiry
	if expiry == 0 {
		expiry = 15 * time.Minute
	}

	return &AvatarStore{
		client:             client,
		presignClient:      s3.NewPresignClient(client),
		bucket:             cfg.Bucket,
		presignedURLExpiry: expiry,
	}
}

// AvatarKey returns the object key for a label's avatar
func AvatarKey(label, contentType string) (string, error) {
	ext, ok := allowedContentTypes[contentType]
	if !ok {
		return "", ErrUnsupportedContentType
	}
	return path.Join(strings.TrimSuffix(AvatarPrefix, "/"), label, fmt.Sprintf("%d%s", time.Now().UTC().UnixNano(), ext)), nil
}

// Put uploads an avatar and returns its object key
func (s *AvatarStore) Put(ctx context.Context, label, contentType string, body []byte) (string, error) {
	if len(body) > MaxAvatarSize {
		return "", ErrAvatarTooLarge
	}
	key, err := AvatarKey(label, contentType)
	if err != nil {
		return "", err
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(body))),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload avatar %s: %w", key, err)
	}
	return key, nil
}

// Delete removes a stored avatar
func (s *AvatarStore) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object %s: %w", key, err)
	}
	return nil
}

// PresignedURL generates a download URL valid for the configured expiry
func (s *AvatarStore) PresignedURL(ctx context.Context, key string) (string, error) {
	req, err := s.presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.presignedURLExpiry))
	if err != nil {
		return "", fmt.Errorf("failed to generate pre-signed URL: %w", err)
	}
	return req.URL, nil
}

// ListAvatars walks every object under AvatarPrefix one page at a time
func (s *AvatarStore) ListAvatars(ctx context.Context, fn func(page []StoredObject) error) error {
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(AvatarPrefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("failed to list avatars: %w", err)
		}

		objects := make([]StoredObject, 0, len(page.Contents))
		for _, obj := range page.Contents {
			if obj.Key == nil {
				continue
			}
			objects = append(objects, StoredObject{
				Key:          *obj.Key,
				Size:         aws.ToInt64(obj.Size),
				LastModified: aws.ToTime(obj.LastModified),
			})
		}
		if err := fn(objects); err != nil {
			return err
		}
	}
	return nil
}

// DeleteAvatars removes keys in one request and returns the keys that were
// deleted. Per-key failures are reported in failed.
func (s *AvatarStore) DeleteAvatars(ctx context.Context, keys []string) (deleted []string, failed []string, err error) {
	if len(keys) == 0 {
		return nil, nil, nil
	}

	ids := make([]types.ObjectIdentifier, len(keys))
	for i, key := range keys {
		ids[i] = types.ObjectIdentifier{Key: aws.String(key)}
	}

	out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(s.bucket),
		Delete: &types.Delete{
			Objects: ids,
			Quiet:   aws.Bool(false),
		},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to delete avatars: %w", err)
	}

	for _, d := range out.Deleted {
		if d.Key != nil {
			deleted = append(deleted, *d.Key)
		}
	}
	for _, e := range out.Errors {
		failed = append(failed, fmt.Sprintf("%s: %s", aws.ToString(e.Key), aws.ToString(e.Message)))
	}
	return deleted, failed, nil
}
