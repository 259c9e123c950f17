// Package s3 stores blobs in one bucket of an S3-compatible service (AWS S3
// or MinIO), optionally below a fixed key prefix.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"batchcore/internal/blob/core"
)

const defaultRegion = "us-east-1"

// Config holds construction parameters. Static credentials are optional; the
// default AWS chain applies when AccessKeyID is empty.
type Config struct {
	Region          string
	Bucket          string
	Prefix          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	PathStyle       bool
}

type Store struct {
	client *s3.Client
	bucket string
	prefix string
}

// New builds a client from cfg. optFns run after the config-derived options.
func New(ctx context.Context, cfg Config, optFns ...func(*s3.Options)) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = defaultRegion
	}
	load := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		load = append(load, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken)))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, load...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		for _, fn := range optFns {
			fn(o)
		}
	})
	return &Store{client: client, bucket: cfg.Bucket, prefix: strings.Trim(cfg.Prefix, "/")}, nil
}

func (s *Store) Driver() core.Driver { return core.DriverS3 }

func (s *Store) object(key string) *string {
	if s.prefix == "" {
		return aws.String(key)
	}
	return aws.String(s.prefix + "/" + key)
}

func (s *Store) keyOf(object string) string {
	if s.prefix == "" {
		return object
	}
	return strings.TrimPrefix(object, s.prefix+"/")
}

// Put uploads r after checking that the key is free.
func (s *Store) Put(ctx context.Context, key string, r io.Reader, opts core.PutOptions) (core.Info, error) {
	if err := core.ValidateKey(key); err != nil {
		return core.Info{}, err
	}
	switch _, err := s.Stat(ctx, key); {
	case err == nil:
		return core.Info{}, core.Exists(key)
	case !errors.Is(err, core.ErrNotFound):
		return core.Info{}, err
	}
	in := &s3.PutObjectInput{Bucket: &s.bucket, Key: s.object(key), Body: r}
	if opts.ContentType != "" {
		in.ContentType = aws.String(opts.ContentType)
	}
	if len(opts.Metadata) > 0 {
		in.Metadata = core.CloneMetadata(opts.Metadata)
	}
	if _, err := s.client.PutObject(ctx, in); err != nil {
		return core.Info{}, fmt.Errorf("put %s: %w", key, err)
	}
	return s.Stat(ctx, key)
}

// Get streams the object body; the caller closes it.
func (s *Store) Get(ctx context.Context, key string) (core.Info, io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &s.bucket, Key: s.object(key)})
	if err != nil {
		return core.Info{}, nil, translate(key, err)
	}
	info := objectInfo(key, aws.ToInt64(out.ContentLength), out.ContentType, out.ETag, out.Metadata, out.LastModified)
	return info, out.Body, nil
}

func (s *Store) Stat(ctx context.Context, key string) (core.Info, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: &s.bucket, Key: s.object(key)})
	if err != nil {
		return core.Info{}, translate(key, err)
	}
	return objectInfo(key, aws.ToInt64(out.ContentLength), out.ContentType, out.ETag, out.Metadata, out.LastModified), nil
}

// Delete reports false for a missing key. S3 deletes are idempotent, so the
// existence check runs first.
func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	if _, err := s.Stat(ctx, key); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: &s.bucket, Key: s.object(key)}); err != nil {
		return false, fmt.Errorf("delete %s: %w", key, err)
	}
	return true, nil
}

// List pages through ListObjectsV2 below prefix.
func (s *Store) List(ctx context.Context, prefix string) ([]core.Info, error) {
	var out []core.Info
	pages := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{Bucket: &s.bucket, Prefix: s.object(prefix)})
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			out = append(out, core.Info{
				Key:          s.keyOf(aws.ToString(obj.Key)),
				Size:         aws.ToInt64(obj.Size),
				ETag:         unquote(obj.ETag),
				LastModified: aws.ToTime(obj.LastModified),
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func translate(key string, err error) error {
	var (
		noKey    *types.NoSuchKey
		notFound *types.NotFound
		status   interface{ HTTPStatusCode() int }
	)
	switch {
	case errors.As(err, &noKey), errors.As(err, &notFound):
		return core.NotFound(key)
	case errors.As(err, &status) && status.HTTPStatusCode() == http.StatusNotFound:
		return core.NotFound(key)
	}
	return err
}

func unquote(etag *string) string { return strings.Trim(aws.ToString(etag), `"`) }

func objectInfo(key string, size int64, contentType, etag *string, md map[string]string, modified *time.Time) core.Info {
	info := core.Info{
		Key:         key,
		Size:        size,
		ContentType: aws.ToString(contentType),
		ETag:        unquote(etag),
		Metadata:    md,
	}
	if modified != nil {
		info.LastModified = *modified
	}
	return info
}
