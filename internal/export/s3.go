package export

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Uploader stores an export file under key and returns its location.
type Uploader interface {
	Upload(ctx context.Context, key string, body io.ReadSeeker, contentType string) (string, error)
}

// S3Options configure the S3 uploader. Credentials default to the AWS
// chain (environment, shared config, instance role).
type S3Options struct {
	Bucket string
	Region string
	// Endpoint points at an S3-compatible service such as MinIO.
	Endpoint  string
	Prefix    string
	PathStyle bool
	// Credentials overrides the default chain.
	Credentials aws.CredentialsProvider
}

// S3Uploader puts export files into one bucket.
type S3Uploader struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Uploader builds an uploader from opts.
func NewS3Uploader(ctx context.Context, opts S3Options) (*S3Uploader, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}
	region := opts.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if opts.Credentials != nil {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(opts.Credentials))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = opts.PathStyle
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			// Most S3-compatible services reject the newer default checksums.
			o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		}
	})
	return &S3Uploader{client: client, bucket: opts.Bucket, prefix: strings.Trim(opts.Prefix, "/")}, nil
}

// Upload implements Uploader. The key is placed under the configured prefix.
func (u *S3Uploader) Upload(ctx context.Context, key string, body io.ReadSeeker, contentType string) (string, error) {
	if u.prefix != "" {
		key = path.Join(u.prefix, key)
	}
	input := &s3.PutObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(key),
		Body:   body,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := u.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("failed to upload s3://%s/%s: %w", u.bucket, key, err)
	}
	return fmt.Sprintf("s3://%s/%s", u.bucket, key), nil
}

// UploadResult sends the database file of res to up under
// <run id>/<file name> and records the location on res.
func UploadResult(ctx context.Context, up Uploader, res *Result) error {
	if res.Path == "" {
		return fmt.Errorf("%s export has no local file to upload", res.Driver)
	}
	f, err := os.Open(res.Path)
	if err != nil {
		return fmt.Errorf("failed to open export file: %w", err)
	}
	defer func() { _ = f.Close() }()

	loc, err := up.Upload(ctx, res.RunID+"/"+filepath.Base(res.Path), f, "application/octet-stream")
	if err != nil {
		return err
	}
	res.Location = loc
	return nil
}
