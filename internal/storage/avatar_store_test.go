package storage

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/welldanyogia/colancer-registry/internal/config"
)

func TestAvatarKey(t *testing.T) {
	key, err := AvatarKey("user123456abcdef", "image/png")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(key, "avatars/user123456abcdef/") || !strings.HasSuffix(key, ".png") {
		t.Errorf("unexpected key %q", key)
	}

	if _, err := AvatarKey("user123456abcdef", "text/html"); !errors.Is(err, ErrUnsupportedContentType) {
		t.Errorf("expected ErrUnsupportedContentType, got %v", err)
	}
}

func TestPut_RejectsBeforeUpload(t *testing.T) {
	store := NewAvatarStore(&config.StorageConfig{
		Endpoint: "127.0.0.1:1",
		Region:   "us-east-1",
		Bucket:   "test",
	})

	_, err := store.Put(context.Background(), "abc", "image/png", make([]byte, MaxAvatarSize+1))
	if !errors.Is(err, ErrAvatarTooLarge) {
		t.Errorf("expected ErrAvatarTooLarge, got %v", err)
	}

	_, err = store.Put(context.Background(), "abc", "application/pdf", []byte("x"))
	if !errors.Is(err, ErrUnsupportedContentType) {
		t.Errorf("expected ErrUnsupportedContentType, got %v", err)
	}
}

func TestPresignedURL(t *testing.T) {
	store := NewAvatarStore(&config.StorageConfig{
		Endpoint:        "minio.local:9000",
		Region:          "us-east-1",
		Bucket:          "avatars",
		AccessKeyID:     "key",
		SecretAccessKey: "secret",
	})

	url, err := store.PresignedURL(context.Background(), "avatars/abc/1.png")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(url, "http://minio.local:9000/avatars/avatars/abc/1.png") {
		t.Errorf("unexpected url %q", url)
	}
	if !strings.Contains(url, "X-Amz-Signature=") {
		t.Errorf("url is not signed: %q", url)
	}
}
