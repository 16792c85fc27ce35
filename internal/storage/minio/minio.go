package minio

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"chatserver/internal/storage"
)

// Client is the subset of the MinIO SDK the store uses.
type Client interface {
	PresignedPutObject(ctx context.Context, bucketName, objectName string, expires time.Duration) (*url.URL, error)
	PresignedGetObject(ctx context.Context, bucketName, objectName string, expires time.Duration, reqParams url.Values) (*url.URL, error)
	StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
}

type Minio struct {
	mc         Client
	bucketName string
	expires    time.Duration
}

var _ storage.ObjectStore = (*Minio)(nil)

func New(mc Client, bucketName string, expires time.Duration) *Minio {
	return &Minio{
		mc:         mc,
		bucketName: bucketName,
		expires:    expires,
	}
}

// Connect dials the MinIO endpoint and makes sure the bucket exists.
func Connect(ctx context.Context, endpoint, user, password, bucketName string, useSSL bool) (*minio.Client, error) {
	const op = "storage.minio.Connect"

	mc, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(user, password, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	exists, err := mc.BucketExists(ctx, bucketName)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !exists {
		if err := mc.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	return mc, nil
}

func (m *Minio) PresignUpload(ctx context.Context) (*storage.UploadTarget, error) {
	const op = "storage.minio.PresignUpload"

	objectID := uuid.NewString()
	u, err := m.mc.PresignedPutObject(ctx, m.bucketName, objectID, m.expires)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &storage.UploadTarget{
		ObjectID: objectID,
		URL:      u.String(),
	}, nil
}

func (m *Minio) ResolveURL(ctx context.Context, objectID string) (string, error) {
	const op = "storage.minio.ResolveURL"

	if _, err := m.mc.StatObject(ctx, m.bucketName, objectID, minio.StatObjectOptions{}); err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" {
			return "", storage.ErrObjectNotFound
		}
		return "", fmt.Errorf("%s: %w", op, err)
	}

	u, err := m.mc.PresignedGetObject(ctx, m.bucketName, objectID, m.expires, nil)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return u.String(), nil
}
