package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/ruteri/credential-registry-backend/interfaces"
)

// S3Config configures an S3Backend.
type S3Config struct {
	Bucket    string
	Prefix    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	// ForcePathStyle is required by S3-compatible services such as Filebase and MinIO.
	ForcePathStyle bool
	// ACL applied to uploaded objects, empty for the bucket default.
	ACL string
}

// S3Backend implements a storage backend using Amazon S3 or compatible services.
type S3Backend struct {
	client         s3iface.S3API
	bucketName     string
	prefix         string
	acl            string
	log            *slog.Logger
	locationURI    string
	hasWriteAccess bool
}

// NewS3Backend creates a new S3 storage backend.
// If AccessKey and SecretKey are set the backend signs requests and can write.
// Otherwise it relies on the default credential chain.
func NewS3Backend(cfg S3Config, log *slog.Logger) (*S3Backend, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("%w: s3 bucket is required", interfaces.ErrInvalidLocationURI)
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if log == nil {
		log = slog.Default()
	}

	awsCfg := aws.Config{
		Region:           aws.String(cfg.Region),
		S3ForcePathStyle: aws.Bool(cfg.ForcePathStyle),
	}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
	}

	hasWriteAccess := cfg.AccessKey != "" && cfg.SecretKey != ""
	if hasWriteAccess {
		awsCfg.Credentials = credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, "")
	} else {
		log.Warn("No S3 credentials provided - using default credential chain")
	}

	sess, err := session.NewSession(&awsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return newS3BackendWithClient(s3.New(sess), cfg, hasWriteAccess, log), nil
}

func newS3BackendWithClient(client s3iface.S3API, cfg S3Config, hasWriteAccess bool, log *slog.Logger) *S3Backend {
	q := url.Values{}
	q.Set("region", cfg.Region)
	if cfg.Endpoint != "" {
		q.Set("endpoint", cfg.Endpoint)
	}
	if cfg.ForcePathStyle {
		q.Set("s3ForcePathStyle", "true")
	}
	prefix := strings.Trim(cfg.Prefix, "/")

	return &S3Backend{
		client:         client,
		bucketName:     cfg.Bucket,
		prefix:         prefix,
		acl:            cfg.ACL,
		log:            log,
		locationURI:    fmt.Sprintf("s3://%s/%s?%s", cfg.Bucket, prefix, q.Encode()),
		hasWriteAccess: hasWriteAccess,
	}
}

// Fetch retrieves an object by locator and checks it against the content
// hash in its key. Returns ErrContentNotFound if the object doesn't exist.
func (b *S3Backend) Fetch(ctx context.Context, loc interfaces.Locator) ([]byte, error) {
	start := time.Now()
	key, contentHash, err := b.keyFor(loc)
	if err != nil {
		return nil, err
	}

	result, err := b.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			b.log.Debug("Content not found in S3",
				slog.String("bucket", b.bucketName),
				slog.String("key", key),
				slog.Duration("duration", time.Since(start)))
			return nil, fmt.Errorf("%w: %s", interfaces.ErrContentNotFound, loc)
		}

		b.log.Error("Failed to get object from S3",
			slog.String("bucket", b.bucketName),
			slog.String("key", key),
			"err", err,
			slog.Duration("duration", time.Since(start)))
		return nil, fmt.Errorf("%w: failed to get object from S3: %v", interfaces.ErrBackendUnavailable, err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read object body: %v", interfaces.ErrBackendUnavailable, err)
	}
	if err := verifyContent(data, contentHash); err != nil {
		return nil, err
	}

	b.log.Debug("Fetched content from S3",
		slog.String("bucket", b.bucketName),
		slog.String("key", key),
		slog.Int("size", len(data)),
		slog.Duration("duration", time.Since(start)))

	return data, nil
}

// Store uploads data under <prefix>/<content type>/<sha256 hex>.
func (b *S3Backend) Store(ctx context.Context, data []byte, contentType interfaces.ContentType) (interfaces.Locator, error) {
	key := b.objectKey(contentKey(data), contentType)

	input := &s3.PutObjectInput{
		Bucket:      aws.String(b.bucketName),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
	}
	if b.acl != "" {
		input.ACL = aws.String(b.acl)
	}

	if _, err := b.client.PutObjectWithContext(ctx, input); err != nil {
		if !b.hasWriteAccess {
			return "", fmt.Errorf("%w: failed to upload object to S3 (no write credentials provided): %v", interfaces.ErrBackendUnavailable, err)
		}
		return "", fmt.Errorf("%w: failed to upload object to S3: %v", interfaces.ErrBackendUnavailable, err)
	}

	b.log.Debug("Stored content in S3",
		slog.String("bucket", b.bucketName),
		slog.String("key", key))

	return interfaces.Locator(fmt.Sprintf("s3://%s/%s", b.bucketName, key)), nil
}

// Available checks if the S3 backend is accessible by attempting to head the bucket.
func (b *S3Backend) Available(ctx context.Context) bool {
	start := time.Now()

	_, err := b.client.HeadBucketWithContext(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(b.bucketName),
	})
	if err != nil {
		b.log.Warn("S3 backend unavailable",
			slog.String("bucket", b.bucketName),
			"err", err,
			slog.Duration("duration", time.Since(start)))
		return false
	}

	return true
}

// Name returns a unique identifier for this storage backend.
func (b *S3Backend) Name() string {
	return fmt.Sprintf("s3-%s", b.bucketName)
}

// LocationURI returns the URI that identifies this storage backend.
func (b *S3Backend) LocationURI() string {
	return b.locationURI
}

func (b *S3Backend) objectKey(hash string, contentType interfaces.ContentType) string {
	return path.Join(b.prefix, contentType.String(), hash)
}

func (b *S3Backend) keyFor(loc interfaces.Locator) (key, contentHash string, err error) {
	raw, ok := strings.CutPrefix(loc.String(), "s3://"+b.bucketName+"/")
	if !ok || (b.prefix != "" && !strings.HasPrefix(raw, b.prefix+"/")) {
		return "", "", fmt.Errorf("%w: %s is not in bucket %s", interfaces.ErrInvalidLocationURI, loc, b.bucketName)
	}
	_, contentHash, err = splitKeyPath(raw)
	if err != nil {
		return "", "", err
	}
	return raw, contentHash, nil
}

func isS3NotFound(err error) bool {
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		switch aerr.Code() {
		case s3.ErrCodeNoSuchKey, "NotFound":
			return true
		}
	}
	return strings.Contains(err.Error(), "NoSuchKey")
}
