package filestore

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"

	"github.com/Gh0st0ne/fuzzbench/config"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// Client wraps the object store holding experiment inputs and results.
type Client struct {
	client *minio.Client
	bucket string
	logger *zap.Logger
}

func New(cfg config.FilestoreConfig, logger *zap.Logger) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("filestore endpoint is not configured")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create filestore client: %w", err)
	}
	return &Client{client: client, bucket: cfg.Bucket, logger: logger}, nil
}

// EnsureBucket creates the experiment bucket when it does not exist.
func (c *Client) EnsureBucket(ctx context.Context) error {
	exists, err := c.client.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", c.bucket, err)
	}
	if exists {
		return nil
	}
	return c.client.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{})
}

// UploadFile stores one local file under the given key.
func (c *Client) UploadFile(ctx context.Context, localPath, key string) error {
	_, err := c.client.FPutObject(ctx, c.bucket, key, localPath, minio.PutObjectOptions{})
	if err != nil {
		return fmt.Errorf("upload %s: %w", localPath, err)
	}
	c.logger.Debug("Uploaded file", zap.String("path", localPath), zap.String("key", key))
	return nil
}

// SyncDir mirrors a local directory under the given key prefix.
func (c *Client) SyncDir(ctx context.Context, localDir, prefix string) error {
	return filepath.WalkDir(localDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(localDir, p)
		if err != nil {
			return err
		}
		return c.UploadFile(ctx, p, path.Join(prefix, filepath.ToSlash(rel)))
	})
}
