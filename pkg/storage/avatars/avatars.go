// Package avatars stores player avatar images in S3-compatible object
// storage and hands out presigned download URLs.
//
// Avatars live in a single bucket, one object per account, keyed by the
// account id. Uploading a new avatar overwrites the previous one, so there
// is never more than one object per player to garbage collect.
//
// For testing, [NewFromStore] accepts any [ObjectStore] implementation, so
// unit tests run against a mock without a MinIO server.
package avatars

import (
	"context"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mathchange/backend/pkg/config"
	mcerr "github.com/mathchange/backend/pkg/errors"
)

// tracerName is the OpenTelemetry instrumentation scope name for this package.
const tracerName = "github.com/mathchange/backend/pkg/storage/avatars"

// MaxAvatarSize is the largest accepted avatar upload (2 MB).
const MaxAvatarSize = 2 << 20

// allowedContentTypes are the image formats accepted for avatars.
var allowedContentTypes = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/webp": ".webp",
}

// ObjectStore defines the object storage operations this package needs.
// It is satisfied by [*minio.Client] and by mock implementations for unit
// testing; all methods follow the minio-go v7 API signatures exactly.
type ObjectStore interface {
	// PutObject uploads an object to a bucket.
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)

	// RemoveObject deletes an object from a bucket.
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error

	// PresignedGetObject generates a presigned URL for downloading an object.
	PresignedGetObject(ctx context.Context, bucketName, objectName string, expires time.Duration, reqParams url.Values) (*url.URL, error)

	// BucketExists checks whether a bucket exists on the server.
	BucketExists(ctx context.Context, bucketName string) (bool, error)

	// MakeBucket creates a new bucket with the given name and options.
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
}

// Compile-time interface compliance check.
var _ ObjectStore = (*minio.Client)(nil)

// Config holds the object storage connection and bucket settings.
type Config struct {
	// Endpoint is the host:port of the S3-compatible server.
	Endpoint string `env:"ENDPOINT" yaml:"endpoint" required:"true"`

	// AccessKey authenticates this service to the server.
	AccessKey string `env:"ACCESS_KEY" yaml:"accessKey" required:"true"`

	// SecretKey is the secret half of the credential pair.
	SecretKey config.Secret `env:"SECRET_KEY" yaml:"secretKey" required:"true"`

	// UseSSL enables TLS for the storage connection.
	UseSSL bool `env:"USE_SSL" envDefault:"false" yaml:"useSSL"`

	// Bucket is the bucket avatars are stored in.
	Bucket string `env:"BUCKET" envDefault:"avatars" yaml:"bucket"`

	// URLExpiry is how long presigned avatar URLs stay valid.
	URLExpiry time.Duration `env:"URL_EXPIRY" envDefault:"24h" yaml:"urlExpiry"`
}

// Store uploads, serves, and removes avatar objects.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	store  ObjectStore
	bucket string
	expiry time.Duration
	tracer trace.Tracer
}

// New connects to the object storage server, creates the avatar bucket if
// it does not exist yet, and returns a Store.
//
// Error codes returned:
//   - [mcerr.CodeValidation]: invalid configuration
//   - [mcerr.CodeUnavailableDependency]: cannot reach the server
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, mcerr.New(mcerr.CodeValidation, "avatars: endpoint and bucket must be set")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey.Value(), ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, mcerr.Wrap(err, mcerr.CodeValidation, "avatars: failed to create storage client")
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, mcerr.Wrap(err, mcerr.CodeUnavailableDependency, "avatars: failed to reach storage server")
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, mcerr.Wrap(err, mcerr.CodeUnavailableDependency, "avatars: failed to create bucket")
		}
	}

	return NewFromStore(client, cfg), nil
}

// NewFromStore creates a Store with a pre-existing [ObjectStore]. Intended
// for testing with mocks; the configuration is not validated and the
// bucket is assumed to exist.
func NewFromStore(store ObjectStore, cfg Config) *Store {
	expiry := cfg.URLExpiry
	if expiry <= 0 {
		expiry = 24 * time.Hour
	}
	return &Store{
		store:  store,
		bucket: cfg.Bucket,
		expiry: expiry,
		tracer: otel.Tracer(tracerName),
	}
}

// Upload stores the avatar image for the given account, replacing any
// previous one, and returns the object name to persist on the account.
//
// The upload is validated before any byte reaches storage: the declared
// content type must be an allowed image format and size must be positive
// and at most [MaxAvatarSize]. Violations return VAL-coded errors.
func (s *Store) Upload(ctx context.Context, accountID string, r io.Reader, size int64, contentType string) (string, error) {
	ctx, span := s.startSpan(ctx, "Upload", accountID)
	defer span.End()

	if accountID == "" {
		return "", s.fail(span, mcerr.New(mcerr.CodeValidation, "avatars: account id must not be empty"))
	}
	ext, ok := allowedContentTypes[contentType]
	if !ok {
		return "", s.fail(span, mcerr.Newf(mcerr.CodeValidation, "avatars: unsupported content type %q", contentType))
	}
	if size <= 0 || size > MaxAvatarSize {
		return "", s.fail(span, mcerr.Newf(mcerr.CodeValidation, "avatars: size %d outside (0, %d]", size, int64(MaxAvatarSize)))
	}

	objectName := accountID + ext
	_, err := s.store.PutObject(ctx, s.bucket, objectName, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", s.fail(span, mcerr.Wrap(err, mcerr.CodeUnavailableDependency, "avatars: upload failed"))
	}
	return objectName, nil
}

// URL returns a presigned download URL for the given avatar object.
func (s *Store) URL(ctx context.Context, objectName string) (string, error) {
	ctx, span := s.startSpan(ctx, "URL", objectName)
	defer span.End()

	if objectName == "" {
		return "", s.fail(span, mcerr.New(mcerr.CodeValidation, "avatars: object name must not be empty"))
	}
	u, err := s.store.PresignedGetObject(ctx, s.bucket, objectName, s.expiry, nil)
	if err != nil {
		return "", s.fail(span, mcerr.Wrap(err, mcerr.CodeUnavailableDependency, "avatars: presign failed"))
	}
	return u.String(), nil
}

// Remove deletes the given avatar object. Removing an object that does not
// exist is not an error; S3 deletes are idempotent.
func (s *Store) Remove(ctx context.Context, objectName string) error {
	ctx, span := s.startSpan(ctx, "Remove", objectName)
	defer span.End()

	if objectName == "" {
		return s.fail(span, mcerr.New(mcerr.CodeValidation, "avatars: object name must not be empty"))
	}
	if err := s.store.RemoveObject(ctx, s.bucket, objectName, minio.RemoveObjectOptions{}); err != nil {
		return s.fail(span, mcerr.Wrap(err, mcerr.CodeUnavailableDependency, "avatars: remove failed"))
	}
	return nil
}

func (s *Store) startSpan(ctx context.Context, operationName, objectName string) (context.Context, trace.Span) {
	ctx, span := s.tracer.Start(ctx, "avatars."+operationName,
		trace.WithSpanKind(trace.SpanKindClient),
	)
	span.SetAttributes(
		attribute.String("db.system", "s3"),
		attribute.String("storage.bucket", s.bucket),
		attribute.String("storage.object", objectName),
	)
	return ctx, span
}

// fail records err on the span and returns it unchanged.
func (s *Store) fail(span trace.Span, err *mcerr.Error) *mcerr.Error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
