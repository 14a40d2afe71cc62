package enum

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// S3Options configures access to S3.
type S3Options struct {
	Region  string // defaults to the shared config region, then us-east-1
	Profile string // shared config profile
	RoleARN string // role to assume through STS before reading
	// Endpoint replaces the AWS endpoint and switches to path-style
	// addressing, e.g. "http://localhost:9000" for S3-compatible stores.
	Endpoint string
	// AccessKeyID and SecretAccessKey, when set, replace the default
	// credential chain.
	AccessKeyID     string
	SecretAccessKey string
	HTTPClient      *http.Client
}

// S3Enumerator yields one object for "s3://bucket/key", or every object
// under the prefix for "s3://bucket/prefix/" and "s3://bucket".
type S3Enumerator struct {
	config Config
	client *s3.Client
	bucket string
	key    string
}

// NewS3Enumerator parses an S3 URL and resolves credentials.
func NewS3Enumerator(ctx context.Context, config Config, rawURL string, opts S3Options) (*S3Enumerator, error) {
	bucket, key, err := splitObjectURL(rawURL, "s3://")
	if err != nil {
		return nil, err
	}

	awsCfg, err := loadAWSConfig(ctx, opts)
	if err != nil {
		return nil, err
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(strings.TrimSuffix(opts.Endpoint, "/"))
			o.UsePathStyle = true
		}
		if opts.HTTPClient != nil {
			o.HTTPClient = opts.HTTPClient
		}
	})

	return &S3Enumerator{config: config, client: client, bucket: bucket, key: key}, nil
}

func loadAWSConfig(ctx context.Context, opts S3Options) (aws.Config, error) {
	var loadOpts []func(*config.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(opts.Region))
	}
	if opts.Profile != "" {
		loadOpts = append(loadOpts, config.WithSharedConfigProfile(opts.Profile))
	}
	if opts.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, "")))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if opts.RoleARN != "" {
		provider := stscreds.NewAssumeRoleProvider(sts.NewFromConfig(cfg), opts.RoleARN)
		cfg.Credentials = aws.NewCredentialsCache(provider)
	}
	return cfg, nil
}

func (e *S3Enumerator) Enumerate(ctx context.Context, fn func(Input) error) error {
	if e.key != "" && !strings.HasSuffix(e.key, "/") {
		return fn(e.input(e.key, -1))
	}

	input := &s3.ListObjectsV2Input{Bucket: aws.String(e.bucket)}
	if e.key != "" {
		input.Prefix = aws.String(e.key)
	}
	pager := s3.NewListObjectsV2Paginator(e.client, input)
	for pager.HasMorePages() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("failed to list s3://%s/%s: %w", e.bucket, e.key, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			// Zero-byte keys ending in "/" are folder markers.
			if key == "" || strings.HasSuffix(key, "/") {
				continue
			}
			size := aws.ToInt64(obj.Size)
			if e.config.MaxFileSize > 0 && size > e.config.MaxFileSize {
				continue
			}
			if err := fn(e.input(key, size)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *S3Enumerator) input(key string, size int64) Input {
	name := "s3://" + e.bucket + "/" + key
	return Input{
		Name: name,
		Size: size,
		Open: func(ctx context.Context) (io.ReadCloser, error) {
			out, err := e.client.GetObject(ctx, &s3.GetObjectInput{
				Bucket: aws.String(e.bucket),
				Key:    aws.String(key),
			})
			if err != nil {
				return nil, fmt.Errorf("failed to fetch %s: %w", name, err)
			}
			if n := aws.ToInt64(out.ContentLength); e.config.MaxFileSize > 0 && n > e.config.MaxFileSize {
				out.Body.Close()
				return nil, fmt.Errorf("%s exceeds max size (%d bytes)", name, n)
			}
			return out.Body, nil
		},
	}
}
