package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// ErrObjectNotFound marks a Get on a key that does not exist. Callers use
// errors.Is to tell a missing object from a real store failure.
var ErrObjectNotFound = errors.New("object not found")

// defaultMaxObjectSize caps how much of a raw payload Get will read.
// Scraped batches run a few megabytes; anything past this is a broken
// upload.
const defaultMaxObjectSize int64 = 256 << 20

// S3Operator is the object-storage adapter the pipeline reads raw batches
// from and writes partitions and rescrape lists to.
type S3Operator struct {
	Client *s3.Client

	maxObjectSize int64
}

type OperatorOption func(*S3Operator)

// WithMaxObjectSize overrides the read-size cap on Get.
func WithMaxObjectSize(maxSize int64) OperatorOption {
	return func(operator *S3Operator) {
		operator.maxObjectSize = maxSize
	}
}

func NewS3Operator(client *s3.Client, opts ...OperatorOption) (*S3Operator, error) {
	if client == nil {
		return nil, errors.New("s3 client cannot be nil")
	}
	operator := &S3Operator{Client: client, maxObjectSize: defaultMaxObjectSize}
	for _, opt := range opts {
		opt(operator)
	}
	return operator, nil
}

// Get reads the full object body. A missing key yields ErrObjectNotFound;
// a body larger than the configured cap fails with ReachLimitError.
func (operator *S3Operator) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	const op = "Get"
	output, err := operator.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, fmt.Errorf("[%s] bucket=%s, key=%s, err=%w", op, bucket, key, ErrObjectNotFound)
		}
		return nil, fmt.Errorf("[%s] Fail to get object, bucket=%s, key=%s, err=%w", op, bucket, key, err)
	}
	defer output.Body.Close()

	body, err := io.ReadAll(NewMaxSizeReader(output.Body, operator.maxObjectSize))
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to read object body, bucket=%s, key=%s, err=%w", op, bucket, key, err)
	}
	return body, nil
}

// Put uploads the body, replacing any existing object at the key.
func (operator *S3Operator) Put(ctx context.Context, bucket, key string, body []byte, contentType string) error {
	const op = "Put"
	_, err := operator.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("[%s] Fail to put object, bucket=%s, key=%s, err=%w", op, bucket, key, err)
	}
	return nil
}

// Exists reports whether the key holds an object, via a HEAD request.
func (operator *S3Operator) Exists(ctx context.Context, bucket, key string) (bool, error) {
	const op = "Exists"
	_, err := operator.Client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, fmt.Errorf("[%s] Fail to head object, bucket=%s, key=%s, err=%w", op, bucket, key, err)
	}
	return true, nil
}
