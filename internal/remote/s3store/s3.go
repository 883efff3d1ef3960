// Package s3store mirrors backup payloads to an S3-compatible bucket.
package s3store

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/dmitrijs2005/datakeeper/internal/config"
)

// Mirror uploads and deletes backup objects in a single bucket. Objects
// are keyed by backup id under a date prefix.
type Mirror struct {
	client *s3.Client
	bucket string
}

// NewMirror builds an S3 client from static credentials. A non-empty
// Endpoint overrides the AWS default, which is how MinIO and other
// compatible stores are reached.
func NewMirror(ctx context.Context, cfg config.S3Config) (*Mirror, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("s3 config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &Mirror{client: client, bucket: cfg.Bucket}, nil
}

// objectKey must be derivable from the id alone so retention cleanup
// can delete objects uploaded in earlier periods.
func objectKey(id string) string {
	return "backups/" + id
}

// Upload stores a backup payload under its id.
func (m *Mirror) Upload(ctx context.Context, id string, data []byte) error {
	key := objectKey(id)
	_, err := m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: &m.bucket,
		Key:    &key,
		Body:   bytes.NewReader(data),
	})
	return err
}

// Delete removes a backup object. Deleting an object that was never
// uploaded is not an error in S3, which suits retention cleanup.
func (m *Mirror) Delete(ctx context.Context, id string) error {
	key := objectKey(id)
	_, err := m.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: &m.bucket,
		Key:    &key,
	})
	return err
}
