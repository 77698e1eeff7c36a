// Package storage fetches ifcJSON documents from local disk or from
// S3-compatible object storage. Anywhere a document path is accepted, an
// s3://bucket/key URI is too.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/OFFIS-RIT/bimrag/internal/util"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// NewS3Client builds an S3 client from the AWS_* environment. Returns nil
// when the environment is not configured; callers then only support local
// paths.
func NewS3Client(ctx context.Context) *s3.Client {
	region := util.GetEnv("AWS_REGION")
	endpoint := util.GetEnv("AWS_ENDPOINT")
	accessKey := util.GetEnv("AWS_ACCESS_KEY")
	secretKey := util.GetEnv("AWS_SECRET_KEY")
	if accessKey == "" && secretKey == "" {
		return nil
	}

	cfg, err := config.LoadDefaultConfig(
		ctx,
		config.WithRegion(region),
		config.WithBaseEndpoint(endpoint),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			accessKey,
			secretKey,
			"",
		)),
	)
	if err != nil {
		return nil
	}

	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})
}

// getFileMaxTries bounds retries of a single object download.
const getFileMaxTries = 3

// GetFile downloads one object, retrying transient failures. An empty
// bucket falls back to AWS_BUCKET.
func GetFile(ctx context.Context, client *s3.Client, bucket string, key string) ([]byte, error) {
	if bucket == "" {
		bucket = util.GetEnv("AWS_BUCKET")
	}
	return util.RetryWithContext(ctx, getFileMaxTries, func(ctx context.Context) ([]byte, error) {
		result, err := client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to get s3://%s/%s: %w", bucket, key, err)
		}
		defer result.Body.Close()

		buf := new(bytes.Buffer)
		if _, err := io.Copy(buf, result.Body); err != nil {
			return nil, fmt.Errorf("failed to read s3://%s/%s: %w", bucket, key, err)
		}
		return buf.Bytes(), nil
	})
}

// ParseURI splits an s3://bucket/key URI. ok is false for anything else.
func ParseURI(uri string) (bucket string, key string, ok bool) {
	rest, found := strings.CutPrefix(uri, "s3://")
	if !found {
		return "", "", false
	}
	bucket, key, _ = strings.Cut(rest, "/")
	if key == "" {
		return "", "", false
	}
	return bucket, key, true
}

// ReadDocument loads a document from an s3:// URI or a local path and
// returns its display name together with the raw bytes.
func ReadDocument(ctx context.Context, client *s3.Client, pathOrURI string) (string, []byte, error) {
	if bucket, key, ok := ParseURI(pathOrURI); ok {
		if client == nil {
			return "", nil, fmt.Errorf("s3 not configured, cannot fetch %s", pathOrURI)
		}
		data, err := GetFile(ctx, client, bucket, key)
		if err != nil {
			return "", nil, err
		}
		return path.Base(key), data, nil
	}

	data, err := os.ReadFile(pathOrURI)
	if err != nil {
		return "", nil, fmt.Errorf("failed to read %s: %w", pathOrURI, err)
	}
	return path.Base(pathOrURI), data, nil
}
