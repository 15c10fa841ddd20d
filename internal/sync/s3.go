package sync

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/alfredjeanlab/chattobot/internal/model"
)

// S3Options locates the cursor backup object.
type S3Options struct {
	Bucket string
	Key    string
	Region string
	// Endpoint overrides the AWS endpoint (MinIO and friends); it switches
	// the client to path-style addressing.
	Endpoint string
}

// S3Destination keeps the latest cursor snapshot as a single object,
// overwritten on every checkpoint.
type S3Destination struct {
	client *s3.Client
	opts   S3Options
}

// NewS3Destination resolves AWS credentials the standard way (environment,
// shared config, instance role) and returns a destination for opts.
func NewS3Destination(ctx context.Context, opts S3Options) (*S3Destination, error) {
	if opts.Bucket == "" || opts.Key == "" {
		return nil, errors.New("s3 backup needs a bucket and a key")
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(opts.Region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return &S3Destination{
		client: s3.NewFromConfig(cfg, endpointOptions(opts.Endpoint)...),
		opts:   opts,
	}, nil
}

func endpointOptions(endpoint string) []func(*s3.Options) {
	if endpoint == "" {
		return nil
	}
	return []func(*s3.Options){func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	}}
}

func (d *S3Destination) Name() string { return "s3" }

// Write replaces the backup object with data, an ExportJSON snapshot.
func (d *S3Destination) Write(ctx context.Context, data []byte) error {
	_, err := d.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(d.opts.Bucket),
		Key:         aws.String(d.opts.Key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
		Metadata:    map[string]string{"snapshot-version": strconv.Itoa(SnapshotVersion)},
	})
	if err != nil {
		return fmt.Errorf("uploading cursor snapshot to s3://%s/%s: %w", d.opts.Bucket, d.opts.Key, err)
	}
	return nil
}

// ErrNoBackup is returned by Fetch when the backup object does not exist.
var ErrNoBackup = errors.New("no cursor backup")

// Fetch downloads and decodes the backup object.
func (d *S3Destination) Fetch(ctx context.Context) (model.Cursors, error) {
	out, err := d.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(d.opts.Bucket),
		Key:    aws.String(d.opts.Key),
	})
	if err != nil {
		var missing *types.NoSuchKey
		if errors.As(err, &missing) {
			return nil, fmt.Errorf("s3://%s/%s: %w", d.opts.Bucket, d.opts.Key, ErrNoBackup)
		}
		return nil, fmt.Errorf("downloading cursor snapshot: %w", err)
	}
	defer out.Body.Close()
	return ImportJSON(out.Body)
}
