package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"mime"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/mosaic/creator/common/config"
	"github.com/mosaic/creator/common/logger"
)

// S3Store stores objects in an S3-compatible service; containers map to buckets
type S3Store struct {
	client   *s3.Client
	uploader *manager.Uploader
	region   string
	urls     URLBuilder
	log      *logger.Logger
}

// NewS3Store builds a client from the object store config. Static
// credentials are used when configured, otherwise the default AWS chain.
func NewS3Store(ctx context.Context, cfg config.ObjectStoreConfig, log *logger.Logger) (*S3Store, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
		// MinIO and friends do not all speak the newer default checksums
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
	})

	urls := URLBuilder{Scheme: cfg.PublicScheme, Account: cfg.PublicAccount, Domain: cfg.PublicDomain}
	return NewS3StoreFromClient(client, cfg.Region, urls, log), nil
}

// NewS3StoreFromClient wraps an existing client
func NewS3StoreFromClient(client *s3.Client, region string, urls URLBuilder, log *logger.Logger) *S3Store {
	return &S3Store{
		client:   client,
		uploader: manager.NewUploader(client),
		region:   region,
		urls:     urls,
		log:      log,
	}
}

// EnsureContainer creates the bucket unless it already exists
func (s *S3Store) EnsureContainer(ctx context.Context, container string) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(container),
	})
	if err == nil {
		s.log.Debug("bucket exists", "container", container)
		return nil
	}

	var notFound *types.NotFound
	if !errors.As(err, &notFound) {
		return classify(err, ErrUnreachable)
	}

	input := &s3.CreateBucketInput{Bucket: aws.String(container)}
	// us-east-1 rejects an explicit location constraint
	if s.region != "" && s.region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(s.region),
		}
	}

	_, err = s.client.CreateBucket(ctx, input)
	if err != nil {
		var owned *types.BucketAlreadyOwnedByYou
		var exists *types.BucketAlreadyExists
		if errors.As(err, &owned) || errors.As(err, &exists) {
			// Lost a creation race with another request
			return nil
		}
		return classify(err, ErrUnreachable)
	}

	s.log.Info("bucket created", "container", container)
	return nil
}

// WriteObject uploads through the transfer manager. Multipart uploads are
// not visible until completed and are aborted on failure.
func (s *S3Store) WriteObject(ctx context.Context, container, name string, r io.Reader, length int64) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(container),
		Key:    aws.String(name),
		Body:   limitExact(r, length),
	}
	if ct := mime.TypeByExtension(path.Ext(name)); ct != "" {
		input.ContentType = aws.String(ct)
	}

	if _, err := s.uploader.Upload(ctx, input); err != nil {
		return classify(err, ErrWriteAborted)
	}

	s.log.Debug("object written", "container", container, "blob", name, "declared_length", length)
	return nil
}

// ListObjects pages through ListObjectsV2 on demand
func (s *S3Store) ListObjects(ctx context.Context, container string) iter.Seq2[ObjectRef, error] {
	return func(yield func(ObjectRef, error) bool) {
		pages := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
			Bucket: aws.String(container),
		})
		for pages.HasMorePages() {
			page, err := pages.NextPage(ctx)
			if err != nil {
				yield(ObjectRef{}, classify(err, ErrUnreachable))
				return
			}
			for _, obj := range page.Contents {
				name := aws.ToString(obj.Key)
				ref := ObjectRef{
					Container: container,
					Name:      name,
					SizeBytes: aws.ToInt64(obj.Size),
					URL:       s.URL(container, name),
				}
				if !yield(ref, nil) {
					return
				}
			}
		}
	}
}

// URL returns the public URL of an object
func (s *S3Store) URL(container, name string) string {
	return s.urls.URL(container, name)
}

func classify(err, fallback error) error {
	if errors.Is(err, ErrWriteAborted) {
		return err
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "QuotaExceeded", "TooManyBuckets", "EntityTooLarge", "InsufficientStorage", "XMinioStorageFull":
			return fmt.Errorf("%w: %w", ErrQuotaExceeded, err)
		case "ServiceUnavailable", "SlowDown", "RequestTimeout":
			return fmt.Errorf("%w: %w", ErrUnreachable, err)
		}
		return fmt.Errorf("%w: %w", fallback, err)
	}

	var sendErr *smithyhttp.RequestSendError
	if errors.As(err, &sendErr) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrUnreachable, err)
	}

	return fmt.Errorf("%w: %w", fallback, err)
}
