package consumer

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// Archiver uploads enriched review documents to object storage.
type Archiver interface {
	Archive(ctx context.Context, r *Enriched) (key string, err error)
}

// S3Archiver writes enriched reviews to paths like:
//
//	s3://<bucket>/<prefix>/YYYY/MM/DD/<id>.json
type S3Archiver struct {
	bucket   string
	prefix   string
	uploader *manager.Uploader
}

// NewS3Archiver uses the default AWS credential chain (AWS_REGION, AWS_PROFILE, ...).
func NewS3Archiver(ctx context.Context, bucket, prefix string) (*S3Archiver, error) {
	cfg, err := awsConfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewS3ArchiverFromClient(s3.NewFromConfig(cfg), bucket, prefix)
}

func NewS3ArchiverFromClient(client manager.UploadAPIClient, bucket, prefix string) (*S3Archiver, error) {
	if bucket == "" {
		return nil, fmt.Errorf("bucket required")
	}
	return &S3Archiver{bucket: bucket, prefix: prefix, uploader: manager.NewUploader(client)}, nil
}

// ObjectKey is the key r is archived under.
func (s *S3Archiver) ObjectKey(r *Enriched) string {
	year, month, day := r.ConsumedAt.UTC().Date()
	return path.Join(s.prefix,
		fmt.Sprintf("%04d", year),
		fmt.Sprintf("%02d", int(month)),
		fmt.Sprintf("%02d", day),
		r.ID+".json",
	)
}

func (s *S3Archiver) Archive(ctx context.Context, r *Enriched) (string, error) {
	if r == nil {
		return "", fmt.Errorf("nil review")
	}
	key := s.ObjectKey(r)
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:               aws.String(s.bucket),
		Key:                  aws.String(key),
		Body:                 bytes.NewReader(r.Document),
		ContentType:          aws.String("application/json"),
		ServerSideEncryption: s3types.ServerSideEncryptionAes256,
	})
	if err != nil {
		return "", fmt.Errorf("s3 upload failed: %w", err)
	}
	return key, nil
}
