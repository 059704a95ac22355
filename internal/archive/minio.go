// Package archive uploads version snapshots to an S3-compatible object
// store. Uploads are best effort: the lineage in Postgres stays the source
// of truth, the archive is for off-box retention.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"flowline/api/internal/version"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type Uploader struct {
	client *minio.Client
	bucket string
}

func New(endpoint, accessKey, secretKey, bucket string, useSSL bool) (*Uploader, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create object store client: %w", err)
	}
	return &Uploader{client: client, bucket: bucket}, nil
}

// EnsureBucket creates the snapshot bucket if it does not exist yet.
func (u *Uploader) EnsureBucket(ctx context.Context) error {
	exists, err := u.client.BucketExists(ctx, u.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", u.bucket, err)
	}
	if exists {
		return nil
	}
	if err := u.client.MakeBucket(ctx, u.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", u.bucket, err)
	}
	return nil
}

// PutSnapshot uploads the full version record as <workflowID>/v<N>.json.
func (u *Uploader) PutSnapshot(ctx context.Context, v version.WorkflowVersion) error {
	payload, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	object := fmt.Sprintf("%s/v%d.json", v.WorkflowID, v.Version)
	_, err = u.client.PutObject(ctx, u.bucket, object, bytes.NewReader(payload), int64(len(payload)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("upload snapshot %s: %w", object, err)
	}
	return nil
}
