// Package s3 stages simulation databases stored in S3 on local disk so they
// can be opened like any other source.
package s3

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/logflow/trackgen/internal/model"
	"github.com/logflow/trackgen/pkg/source"
)

// Config holds S3 client configuration.
type Config struct {
	// Region is the AWS region (e.g., "us-east-1")
	Region string

	// Endpoint overrides the default S3 endpoint (for S3-compatible services)
	Endpoint string

	// UsePathStyle forces path-style addressing (for MinIO, LocalStack)
	UsePathStyle bool

	// Credentials (optional - uses default chain if not provided)
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string

	// StagingDir receives downloaded databases. Empty means os.TempDir().
	StagingDir string

	DownloadTimeout time.Duration
}

// DefaultConfig returns sensible defaults for S3 configuration.
func DefaultConfig(region string) Config {
	return Config{
		Region:          region,
		DownloadTimeout: 10 * time.Minute,
	}
}

// objectGetter is the part of the S3 API the stager needs.
type objectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Stager downloads s3:// sources to local files. Local sources pass through.
type Stager struct {
	cfg    Config
	client objectGetter
}

// NewStager creates a stager backed by a real S3 client.
func NewStager(ctx context.Context, cfg Config) (*Stager, error) {
	var opts []func(*config.LoadOptions) error

	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID,
				cfg.SecretAccessKey,
				cfg.SessionToken,
			),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}
	if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	return newStager(cfg, s3.NewFromConfig(awsCfg, s3Opts...)), nil
}

func newStager(cfg Config, client objectGetter) *Stager {
	if cfg.DownloadTimeout <= 0 {
		cfg.DownloadTimeout = 10 * time.Minute
	}
	return &Stager{cfg: cfg, client: client}
}

// Stage implements sqlstore.Stager. The returned release removes the
// downloaded file.
func (s *Stager) Stage(ctx context.Context, src model.Source) (string, func() error, error) {
	if !source.IsRemote(src) {
		return string(src), nil, nil
	}

	bucket, key, ok := source.ParseS3(src)
	if !ok {
		return "", nil, fmt.Errorf("invalid s3 source %q", src)
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.DownloadTimeout)
	defer cancel()

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", nil, fmt.Errorf("failed to get object %s/%s: %w", bucket, key, err)
	}
	defer out.Body.Close()

	f, err := os.CreateTemp(s.cfg.StagingDir, "trackgen-*-"+path.Base(key))
	if err != nil {
		return "", nil, fmt.Errorf("failed to create staging file: %w", err)
	}
	name := f.Name()
	release := func() error {
		if err := os.Remove(name); err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	}

	if _, err := io.Copy(f, out.Body); err != nil {
		f.Close()
		release()
		return "", nil, fmt.Errorf("failed to download %s/%s: %w", bucket, key, err)
	}
	if err := f.Close(); err != nil {
		release()
		return "", nil, fmt.Errorf("failed to close staging file: %w", err)
	}

	return name, release, nil
}
