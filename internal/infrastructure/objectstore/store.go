// Package objectstore reads meeting text from S3-compatible object storage.
package objectstore

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"meeting-rag-api/internal/config"
	apperrors "meeting-rag-api/pkg/errors"
)

var tracer = otel.Tracer("objectstore")

// maxObjectBytes bounds how much of a single transcript is read into memory.
const maxObjectBytes = 64 << 20

// MinioStore reads objects through minio-go.
type MinioStore struct {
	client        *minio.Client
	defaultBucket string
}

// NewMinioStore builds a client for cfg.Endpoint; a scheme in the endpoint overrides UseSSL.
func NewMinioStore(cfg *config.ObjectStorageConfig) (*MinioStore, error) {
	if cfg == nil || strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, fmt.Errorf("object storage endpoint is required")
	}

	endpoint := cfg.Endpoint
	useSSL := cfg.UseSSL
	if u, err := url.Parse(cfg.Endpoint); err == nil && u.Host != "" {
		endpoint = u.Host
		useSSL = u.Scheme == "https"
	}

	opts := &minio.Options{
		Secure: useSSL,
		Region: cfg.Region,
	}
	if cfg.AccessKeyID != "" {
		opts.Creds = credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, "")
	} else {
		opts.Creds = credentials.NewEnvAWS()
	}

	client, err := minio.New(endpoint, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}
	return &MinioStore{client: client, defaultBucket: cfg.DefaultBucket}, nil
}

// Ping lists buckets.
func (s *MinioStore) Ping(ctx context.Context) error {
	if _, err := s.client.ListBuckets(ctx); err != nil {
		return classifyError(err)
	}
	return nil
}

// ReadText fetches the object at locator as UTF-8 text.
func (s *MinioStore) ReadText(ctx context.Context, locator string) (string, error) {
	loc, err := ParseLocator(locator, s.defaultBucket)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeInvalidParam, "invalid object locator")
	}

	ctx, span := tracer.Start(ctx, "objectstore.ReadText",
		trace.WithAttributes(
			attribute.String("bucket", loc.Bucket),
			attribute.String("key", loc.Key),
		))
	defer span.End()

	obj, err := s.client.GetObject(ctx, loc.Bucket, loc.Key, minio.GetObjectOptions{})
	if err != nil {
		span.RecordError(err)
		return "", classifyError(err)
	}
	defer obj.Close()

	data, err := io.ReadAll(io.LimitReader(obj, maxObjectBytes+1))
	if err != nil {
		span.RecordError(err)
		return "", classifyError(err)
	}
	if len(data) > maxObjectBytes {
		return "", apperrors.New(apperrors.CodeStorageError, "object too large").WithDetail(loc.String())
	}
	span.SetAttributes(attribute.Int("bytes", len(data)))
	return string(data), nil
}

// classifyError maps minio error responses onto application error codes.
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	resp := minio.ToErrorResponse(err)
	switch resp.Code {
	case "NoSuchKey", "NoSuchBucket":
		return apperrors.Wrap(err, apperrors.CodeObjectNotFound, "object not found")
	case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch":
		return apperrors.Wrap(err, apperrors.CodeStorageError, "object storage access denied")
	}
	return apperrors.Wrap(err, apperrors.CodeStorageError, "object storage error")
}
