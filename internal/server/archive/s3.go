// Package archive copies signed reports to S3-compatible object storage so
// they outlive the enclave's database. Uploads are best-effort.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dmitrijs2005/enclavekeeper/internal/besteffort"
	"github.com/dmitrijs2005/enclavekeeper/internal/common"
	"github.com/dmitrijs2005/enclavekeeper/internal/server/models"
)

// PutObjectAPI is the subset of *s3.Client used here.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type S3Archiver struct {
	client  PutObjectAPI
	bucket  string
	timeout time.Duration
}

func NewS3Archiver(client PutObjectAPI, bucket string, timeout time.Duration) *S3Archiver {
	return &S3Archiver{client: client, bucket: bucket, timeout: timeout}
}

// Options configure the S3 client. Static credentials are used when both
// keys are set; otherwise the default AWS credential chain applies.
type Options struct {
	Region       string
	BaseEndpoint string
	AccessKey    string
	SecretKey    string
}

func NewS3Client(ctx context.Context, o Options) (*s3.Client, error) {
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(o.Region)}
	if o.AccessKey != "" && o.SecretKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(o.AccessKey, o.SecretKey, ""),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return s3.NewFromConfig(cfg, func(opts *s3.Options) {
		if o.BaseEndpoint != "" {
			opts.BaseEndpoint = aws.String(o.BaseEndpoint)
			opts.UsePathStyle = true
		}
	}), nil
}

// Key is the object key a report is archived under.
func Key(reportID string) string {
	return "reports/" + reportID + ".json"
}

// Archive uploads the signed report and returns its object key.
func (a *S3Archiver) Archive(ctx context.Context, r *models.SignedReport) besteffort.Outcome[string] {
	body, err := json.Marshal(r)
	if err != nil {
		return besteffort.Failed[string](err)
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	key := Key(r.ReportID)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
		Metadata: map[string]string{
			"report-signature": r.Signature,
		},
	})
	if err != nil {
		return besteffort.Unavailable[string](fmt.Errorf("%w: put %s: %v", common.ErrExternalCall, key, err))
	}
	return besteffort.OK(key)
}

// NopArchiver is used when no bucket is configured.
type NopArchiver struct{}

func (NopArchiver) Archive(context.Context, *models.SignedReport) besteffort.Outcome[string] {
	return besteffort.Skipped[string]("no report bucket configured")
}
