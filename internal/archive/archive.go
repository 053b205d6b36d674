// Package archive mirrors daily index JSON and per-language summary files
// to an S3-compatible bucket, giving the local filesystem layout an
// off-host copy. Every write here is best-effort and failure never blocks
// the caller's own unit of work.
package archive

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"log/slog"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/chungachanga/crhoy-pipeline/internal/config"
)

// Client wraps an S3-compatible object store. A zero-value Endpoint in
// the supplied config disables mirroring entirely (Configured reports
// false), so a deployment without a bucket degrades gracefully.
type Client struct {
	s3     *s3.Client
	bucket string
}

// New creates a Client. If cfg.Endpoint is empty, the returned Client is
// inert: every Put call is a silent no-op (the disabled mirror is logged
// once, here).
func New(ctx context.Context, cfg config.S3Config) (*Client, error) {
	if cfg.Endpoint == "" {
		slog.Info("archive: S3 endpoint not configured, mirror disabled")
		return &Client{bucket: cfg.Bucket}, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("archive: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = &cfg.Endpoint
		o.UsePathStyle = true
	})

	return &Client{s3: client, bucket: cfg.Bucket}, nil
}

// Configured reports whether the archive mirror is actually wired to a
// bucket.
func (c *Client) Configured() bool {
	return c.s3 != nil
}

// PutIndex mirrors a day's saved index JSON under metadata/YYYY/MM/DD.json,
// gzip-compressed, keyed the same way the local filestore lays it out.
// Mirroring failures are logged and never propagated: the local
// file on disk remains the source of truth.
func (c *Client) PutIndex(ctx context.Context, key string, raw []byte) {
	c.put(ctx, "metadata/"+key+".gz", raw)
}

// PutSummary mirrors a generated per-language summary file under
// news/YYYY-MM-DD/HH-MM-{id}-sum.{lang}.txt.gz.
func (c *Client) PutSummary(ctx context.Context, key string, raw []byte) {
	c.put(ctx, "news/"+key+".gz", raw)
}

func (c *Client) put(ctx context.Context, key string, raw []byte) {
	if c.s3 == nil {
		return
	}
	compressed, err := gzipCompress(raw)
	if err != nil {
		slog.Warn("archive: compress failed", "key", key, "err", err)
		return
	}
	_, err = c.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket: &c.bucket,
		Key:    &key,
		Body:   bytes.NewReader(compressed),
	})
	if err != nil {
		slog.Warn("archive: upload failed", "key", key, "err", err)
		return
	}
	slog.Debug("archive: mirrored", "key", key, "bytes", len(compressed))
}

func gzipCompress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
