// Package archival best-effort mirrors finished match logs to S3, adapted
// from the teacher's storage/s3.go canvas-snapshot client.
package archival

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"

	"tetriduel/internal/model"
)

// S3Archiver uploads a MatchLog as a JSON object keyed by match id. A
// failed upload never fails the caller's write path (persistence.Service
// only logs it); the database row remains the record of truth.
type S3Archiver struct {
	client *s3.S3
	bucket string
	prefix string
}

// NewS3Archiver builds an archiver for the given region/bucket. prefix is
// prepended to every object key, e.g. "match-logs/".
func NewS3Archiver(region, bucket, prefix string) (*S3Archiver, error) {
	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(region),
	})
	if err != nil {
		return nil, err
	}
	return &S3Archiver{
		client: s3.New(sess),
		bucket: bucket,
		prefix: prefix,
	}, nil
}

// ArchiveGameLog uploads log as a JSON object to s3://bucket/<prefix><match id>.json.
func (a *S3Archiver) ArchiveGameLog(ctx context.Context, log *model.MatchLog) error {
	body, err := json.Marshal(log)
	if err != nil {
		return err
	}
	key := fmt.Sprintf("%s%s.json", a.prefix, log.MatchID)
	_, err = a.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	return err
}

// NoopArchiver discards every log; used when no bucket is configured.
type NoopArchiver struct{}

func (NoopArchiver) ArchiveGameLog(ctx context.Context, log *model.MatchLog) error { return nil }
