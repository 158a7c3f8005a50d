package consumer

import (
	"context"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUploadClient struct {
	bucket, key string
	body        []byte
}

func (f *fakeUploadClient) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.bucket = aws.ToString(in.Bucket)
	f.key = aws.ToString(in.Key)
	b, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.body = b
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeUploadClient) UploadPart(context.Context, *s3.UploadPartInput, ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	return &s3.UploadPartOutput{}, nil
}

func (f *fakeUploadClient) CreateMultipartUpload(context.Context, *s3.CreateMultipartUploadInput, ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	return &s3.CreateMultipartUploadOutput{}, nil
}

func (f *fakeUploadClient) CompleteMultipartUpload(context.Context, *s3.CompleteMultipartUploadInput, ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	return &s3.CompleteMultipartUploadOutput{}, nil
}

func (f *fakeUploadClient) AbortMultipartUpload(context.Context, *s3.AbortMultipartUploadInput, ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	return &s3.AbortMultipartUploadOutput{}, nil
}

func TestS3ArchiverUploadsDocument(t *testing.T) {
	client := &fakeUploadClient{}
	a, err := NewS3ArchiverFromClient(client, "frothly-archive", "reviews")
	require.NoError(t, err)

	r := sampleEnriched()
	key, err := a.Archive(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, "reviews/2024/03/09/"+r.ID+".json", key)
	assert.Equal(t, "frothly-archive", client.bucket)
	assert.Equal(t, key, client.key)
	assert.Equal(t, `{"stars":1}`, string(client.body))
}

func TestS3ArchiverRequiresBucket(t *testing.T) {
	_, err := NewS3ArchiverFromClient(&fakeUploadClient{}, "", "reviews")
	assert.Error(t, err)
}
