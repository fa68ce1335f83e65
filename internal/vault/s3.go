package vault

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"apod-go/internal/apod"
	"apod-go/internal/config"
)

// versionMetadataKey holds the metadata version as S3 user metadata.
// S3 lower-cases user metadata keys.
const versionMetadataKey = "version"

// s3API is the subset of the S3 client the vault uses.
type s3API interface {
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// uploaderAPI is the subset of the upload manager the vault uses.
type uploaderAPI interface {
	Upload(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Vault stores content and metadata in an S3 bucket:
//
//	<prefix>/content/<hash>
//	<prefix>/metadata/<hostID>/<name>   (version in user metadata)
type S3Vault struct {
	name     string
	bucket   string
	prefix   string
	client   s3API
	uploader uploaderAPI
}

// NewS3Vault creates a vault from config. Credentials come from the config
// when both key fields are set, otherwise from the default AWS chain.
// S3Endpoint points the client at an S3-compatible service such as MinIO.
func NewS3Vault(ctx context.Context, cfg config.VaultConfig) (*S3Vault, error) {
	if cfg.S3Bucket == "" {
		return nil, fmt.Errorf("s3 vault requires s3_bucket to be set")
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.S3Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.S3Region))
	}
	if cfg.S3AccessKeyID != "" && cfg.S3SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKeyID, cfg.S3SecretAccessKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})

	return newS3VaultWithClient(cfg.Name, cfg.S3Bucket, cfg.S3Prefix, client, manager.NewUploader(client)), nil
}

func newS3VaultWithClient(name, bucket, prefix string, client s3API, uploader uploaderAPI) *S3Vault {
	return &S3Vault{
		name:     name,
		bucket:   bucket,
		prefix:   prefix,
		client:   client,
		uploader: uploader,
	}
}

func (v *S3Vault) contentKey(hash string) string {
	return path.Join(v.prefix, "content", hash)
}

func (v *S3Vault) metadataKey(hostID, name string) string {
	return path.Join(v.prefix, "metadata", hostID, name)
}

// PutContent uploads content unless an object for hash already exists.
func (v *S3Vault) PutContent(ctx context.Context, hash string, r io.Reader, size int64) error {
	if !validKey(hash) {
		return fmt.Errorf("invalid content key %q", hash)
	}
	exists, err := v.HasContent(ctx, hash)
	if err != nil {
		return err
	}
	if exists {
		written, err := io.Copy(io.Discard, r)
		if err != nil {
			return fmt.Errorf("failed to read content: %w", err)
		}
		if written != size {
			return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, written)
		}
		return nil
	}
	return v.upload(ctx, v.contentKey(hash), r, size, nil)
}

// GetContent downloads content by hash and writes it to w.
func (v *S3Vault) GetContent(ctx context.Context, hash string, w io.Writer) error {
	if !validKey(hash) {
		return fmt.Errorf("invalid content key %q", hash)
	}
	key := v.contentKey(hash)
	out, err := v.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(v.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return fmt.Errorf("content %s: %w", hash, apod.ErrNotFound)
		}
		return fmt.Errorf("getting s3://%s/%s: %w", v.bucket, key, err)
	}
	defer out.Body.Close()

	if _, err := io.Copy(w, out.Body); err != nil {
		return fmt.Errorf("reading s3://%s/%s: %w", v.bucket, key, err)
	}
	return nil
}

// HasContent reports whether an object for hash exists.
func (v *S3Vault) HasContent(ctx context.Context, hash string) (bool, error) {
	if !validKey(hash) {
		return false, fmt.Errorf("invalid content key %q", hash)
	}
	_, err := v.head(ctx, v.contentKey(hash))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, apod.ErrNotFound) {
		return false, nil
	}
	return false, err
}

// PutMetadata uploads a metadata item with its version in user metadata.
func (v *S3Vault) PutMetadata(ctx context.Context, hostID, name string, r io.Reader, size int64, version int64) error {
	if !validKey(hostID) || !validKey(name) {
		return fmt.Errorf("invalid metadata key %q/%q", hostID, name)
	}
	return v.upload(ctx, v.metadataKey(hostID, name), r, size, map[string]string{
		versionMetadataKey: strconv.FormatInt(version, 10),
	})
}

// GetMetadataVersion reads the version stored with a metadata item, or 0.
func (v *S3Vault) GetMetadataVersion(ctx context.Context, hostID, name string) (int64, error) {
	if !validKey(hostID) || !validKey(name) {
		return 0, fmt.Errorf("invalid metadata key %q/%q", hostID, name)
	}
	out, err := v.head(ctx, v.metadataKey(hostID, name))
	if errors.Is(err, apod.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	raw, ok := out.Metadata[versionMetadataKey]
	if !ok {
		return 0, nil
	}
	version, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing version %q: %w", raw, err)
	}
	return version, nil
}

// ValidateSetup checks that the bucket exists and is reachable.
func (v *S3Vault) ValidateSetup(ctx context.Context) error {
	if _, err := v.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(v.bucket)}); err != nil {
		return fmt.Errorf("s3 bucket %s not accessible: %w", v.bucket, err)
	}
	return nil
}

func (v *S3Vault) head(ctx context.Context, key string) (*s3.HeadObjectOutput, error) {
	out, err := v.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(v.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nf *types.NotFound
		if errors.As(err, &nf) {
			return nil, fmt.Errorf("s3://%s/%s: %w", v.bucket, key, apod.ErrNotFound)
		}
		return nil, fmt.Errorf("head s3://%s/%s: %w", v.bucket, key, err)
	}
	return out, nil
}

// upload streams r to key. If r yields a different byte count than size the
// object is deleted again.
func (v *S3Vault) upload(ctx context.Context, key string, r io.Reader, size int64, metadata map[string]string) error {
	cr := &countingReader{r: r}
	_, err := v.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:   aws.String(v.bucket),
		Key:      aws.String(key),
		Body:     cr,
		Metadata: metadata,
	})
	if err != nil {
		return fmt.Errorf("uploading s3://%s/%s: %w", v.bucket, key, err)
	}

	if cr.n != size {
		if _, delErr := v.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(v.bucket),
			Key:    aws.String(key),
		}); delErr != nil {
			return fmt.Errorf("size mismatch: expected %d bytes, got %d (cleanup failed: %v)", size, cr.n, delErr)
		}
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, cr.n)
	}
	return nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// Compile-time check that S3Vault implements apod.Vault interface
var _ apod.Vault = (*S3Vault)(nil)
