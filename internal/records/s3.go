package records

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Source reads record files (JSON lines or CSV) out of object storage. Region and credentials
// come from the default AWS chain (AWS_REGION, AWS_PROFILE, ...).
type S3Source struct {
	downloader *manager.Downloader
}

func NewS3Source(ctx context.Context) (*S3Source, error) {
	cfg, err := awsConfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewS3SourceFromClient(s3.NewFromConfig(cfg)), nil
}

func NewS3SourceFromClient(client manager.DownloadAPIClient) *S3Source {
	return &S3Source{downloader: manager.NewDownloader(client)}
}

// Open downloads bucket/key fully and returns a reader over its contents.
func (s *S3Source) Open(ctx context.Context, bucket, key string) (io.Reader, error) {
	if bucket == "" || key == "" {
		return nil, fmt.Errorf("s3 bucket and key required")
	}
	buf := manager.NewWriteAtBuffer(nil)
	if _, err := s.downloader.Download(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}); err != nil {
		return nil, fmt.Errorf("s3 download s3://%s/%s: %w", bucket, key, err)
	}
	return bytes.NewReader(buf.Bytes()), nil
}

// ObjectOpener is satisfied by *S3Source.
type ObjectOpener interface {
	Open(ctx context.Context, bucket, key string) (io.Reader, error)
}

// LoadObject opens bucket/key, indexes it on keyField and closes the reader when it is an
// io.Closer.
func LoadObject(ctx context.Context, src ObjectOpener, bucket, key, keyField string) (*Index, error) {
	r, err := src.Open(ctx, bucket, key)
	if err != nil {
		return nil, err
	}
	if c, ok := r.(io.Closer); ok {
		defer c.Close()
	}
	ix, err := Load(r, keyField)
	if err != nil {
		return nil, fmt.Errorf("s3://%s/%s: %w", bucket, key, err)
	}
	return ix, nil
}
