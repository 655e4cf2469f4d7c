// Package archive stores raw downloaded export parts in an S3-compatible
// object store. The archive is an audit/replay side copy: the pipeline never
// reads it back, and a failed store never fails a run.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"metrika-etl/internal/domain"
)

var _ domain.PartArchiver = (*S3Archiver)(nil)

// Config holds the archive construction parameters.
type Config struct {
	KeyID    string
	Secret   string
	Endpoint string // S3-compatible endpoint host, without scheme
	Region   string
	Bucket   string
	Prefix   string // object key prefix, may be empty
}

// S3Archiver writes part payloads to an S3-compatible bucket using static
// credentials and path-style addressing, which custom endpoints require.
type S3Archiver struct {
	client *s3.Client
	bucket string
	prefix string
	logger *slog.Logger
}

// New creates an S3Archiver.
func New(cfg Config, logger *slog.Logger) *S3Archiver {
	client := s3.New(s3.Options{
		Region: cfg.Region,
		Credentials: credentials.NewStaticCredentialsProvider(
			cfg.KeyID, cfg.Secret, "",
		),
		BaseEndpoint: aws.String("https://" + cfg.Endpoint),
		UsePathStyle: true,
	})

	return &S3Archiver{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		logger: logger.With("component", "archive"),
	}
}

// StorePart uploads one raw TSV part payload.
func (a *S3Archiver) StorePart(ctx context.Context, runID string, kind domain.SourceKind, part int, payload []byte) error {
	key := ObjectKey(a.prefix, runID, kind, part)
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String("text/tab-separated-values"),
	})
	if err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", a.bucket, key, err)
	}

	a.logger.Debug("part archived", "key", key, "bytes", len(payload))
	return nil
}

// ObjectKey builds the archive key for one part. Parts of one run group
// under the run ID so a run's raw inputs can be replayed together.
func ObjectKey(prefix, runID string, kind domain.SourceKind, part int) string {
	key := fmt.Sprintf("%s/%s/part_%d.tsv", runID, kind, part)
	if prefix != "" {
		key = prefix + "/" + key
	}
	return key
}
