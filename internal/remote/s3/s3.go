package s3store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/sirupsen/logrus"

	"github.com/dev-tams/dumpvault/internal/remote"
)

// Files above this size go through the S3 multipart protocol, split into
// parts of this size.
const partSize = 100 * 1024 * 1024

// Storage is an S3-backed remote.ObjectStore, for deployments that target a
// bucket instead of the native store API.
type Storage struct {
	name   string
	bucket string
	prefix string
	client *s3.Client
	log    *logrus.Entry
}

type Options struct {
	Name      string
	Bucket    string
	Region    string
	Prefix    string
	AccessKey string
	SecretKey string
}

func New(ctx context.Context, opt Options) (*Storage, error) {
	if opt.Bucket == "" || opt.Region == "" {
		return nil, fmt.Errorf("s3: bucket and region are required")
	}

	creds := credentials.NewStaticCredentialsProvider(opt.AccessKey, opt.SecretKey, "")

	cfg, err := awsconfig.LoadDefaultConfig(
		ctx,
		awsconfig.WithRegion(opt.Region),
		awsconfig.WithCredentialsProvider(creds),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return &Storage{
		name:   opt.Name,
		bucket: opt.Bucket,
		prefix: strings.Trim(opt.Prefix, "/"),
		client: s3.NewFromConfig(cfg),
		log:    logrus.WithField("storage", opt.Name),
	}, nil
}

func (s *Storage) Name() string { return s.name }

// Authenticate verifies the credentials against the bucket. The SDK signs
// each request itself, so there is no session to establish beyond this
// check.
func (s *Storage) Authenticate(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err != nil {
		return fmt.Errorf("s3: head bucket %s: %w", s.bucket, apiMessage(err))
	}
	return nil
}

func (s *Storage) ListObjects(ctx context.Context, prefix string) ([]remote.Object, error) {
	fullPrefix := s.key(prefix)

	var out []remote.Object
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(fullPrefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			// Partial results are discarded; the diff must never see a
			// truncated listing.
			return nil, fmt.Errorf("s3: list objects: %w", apiMessage(err))
		}
		for _, o := range page.Contents {
			key := aws.ToString(o.Key)
			out = append(out, remote.Object{
				Name:       s.stripPrefix(key),
				ID:         key,
				Size:       aws.ToInt64(o.Size),
				SHA1:       strings.Trim(aws.ToString(o.ETag), `"`),
				UploadedAt: aws.ToTime(o.LastModified),
			})
		}
	}
	return out, nil
}

func (s *Storage) UploadObject(ctx context.Context, localPath, name string) (remote.Object, error) {
	key := s.key(name)

	// Skip-if-present: uploads are idempotent per object name.
	head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		s.log.WithField("object", name).Info("object already present, skipping upload")
		return remote.Object{
			Name:       name,
			ID:         key,
			Size:       aws.ToInt64(head.ContentLength),
			SHA1:       strings.Trim(aws.ToString(head.ETag), `"`),
			UploadedAt: aws.ToTime(head.LastModified),
		}, nil
	}
	var nf *types.NotFound
	var apiErr smithy.APIError
	if !errors.As(err, &nf) && !(errors.As(err, &apiErr) && apiErr.ErrorCode() == "NotFound") {
		return remote.Object{}, fmt.Errorf("s3: head object %s: %w", name, apiMessage(err))
	}

	fi, err := os.Stat(localPath)
	if err != nil {
		return remote.Object{}, fmt.Errorf("s3: stat local file: %w", err)
	}

	if fi.Size() <= partSize {
		return s.uploadSingle(ctx, localPath, name, key, fi.Size())
	}
	return s.uploadMultipart(ctx, localPath, name, key, fi.Size())
}

func (s *Storage) uploadSingle(ctx context.Context, localPath, name, key string, size int64) (remote.Object, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return remote.Object{}, fmt.Errorf("s3: open local file: %w", err)
	}
	defer f.Close()

	put, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return remote.Object{}, fmt.Errorf("s3: put object %s: %w", name, apiMessage(err))
	}

	s.log.WithFields(logrus.Fields{"object": name, "bytes": size}).Info("uploaded object")
	return remote.Object{
		Name:       name,
		ID:         key,
		Size:       size,
		SHA1:       strings.Trim(aws.ToString(put.ETag), `"`),
		UploadedAt: time.Now().UTC(),
	}, nil
}

// uploadMultipart sends parts sequentially in ascending order and completes
// the upload with the ordered part list, mirroring the native store's
// session protocol.
func (s *Storage) uploadMultipart(ctx context.Context, localPath, name, key string, size int64) (remote.Object, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return remote.Object{}, fmt.Errorf("s3: open local file: %w", err)
	}
	defer f.Close()

	created, err := s.client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return remote.Object{}, fmt.Errorf("s3: create multipart upload %s: %w", name, apiMessage(err))
	}
	uploadID := created.UploadId

	abort := func() {
		_, _ = s.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
			Bucket:   aws.String(s.bucket),
			Key:      aws.String(key),
			UploadId: uploadID,
		})
	}

	partCount := int((size + partSize - 1) / partSize)
	completed := make([]types.CompletedPart, 0, partCount)

	for part := 1; part <= partCount; part++ {
		offset := int64(part-1) * partSize
		length := int64(partSize)
		if remaining := size - offset; remaining < length {
			length = remaining
		}

		up, err := s.client.UploadPart(ctx, &s3.UploadPartInput{
			Bucket:        aws.String(s.bucket),
			Key:           aws.String(key),
			UploadId:      uploadID,
			PartNumber:    aws.Int32(int32(part)),
			Body:          io.NewSectionReader(f, offset, length),
			ContentLength: aws.Int64(length),
		})
		if err != nil {
			abort()
			return remote.Object{}, fmt.Errorf("s3: upload part %d/%d of %s: %w", part, partCount, name, apiMessage(err))
		}
		completed = append(completed, types.CompletedPart{
			ETag:       up.ETag,
			PartNumber: aws.Int32(int32(part)),
		})
		s.log.WithFields(logrus.Fields{"object": name, "part": part, "parts": partCount}).Info("uploaded part")
	}

	done, err := s.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(s.bucket),
		Key:             aws.String(key),
		UploadId:        uploadID,
		MultipartUpload: &types.CompletedMultipartUpload{Parts: completed},
	})
	if err != nil {
		abort()
		return remote.Object{}, fmt.Errorf("s3: complete multipart upload %s: %w", name, apiMessage(err))
	}

	s.log.WithFields(logrus.Fields{"object": name, "bytes": size, "parts": partCount}).Info("uploaded object")
	return remote.Object{
		Name:       name,
		ID:         key,
		Size:       size,
		SHA1:       strings.Trim(aws.ToString(done.ETag), `"`),
		UploadedAt: time.Now().UTC(),
	}, nil
}

func (s *Storage) DownloadObject(ctx context.Context, name string, w io.Writer) error {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(name)),
	})
	if err != nil {
		return fmt.Errorf("s3: get object %s: %w", name, apiMessage(err))
	}
	defer out.Body.Close()

	if _, err := io.Copy(w, out.Body); err != nil {
		return fmt.Errorf("s3: download %s: %w", name, err)
	}
	return nil
}

func (s *Storage) DeleteObject(ctx context.Context, name, _ string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(name)),
	})
	if err != nil {
		return fmt.Errorf("s3: delete object %s: %w", name, apiMessage(err))
	}
	return nil
}

func (s *Storage) key(name string) string {
	if s.prefix == "" {
		return name
	}
	return path.Join(s.prefix, name)
}

func (s *Storage) stripPrefix(key string) string {
	if s.prefix == "" {
		return key
	}
	return strings.TrimPrefix(key, s.prefix+"/")
}

// apiMessage flattens SDK errors to their API code and message, the detail
// an operator actually wants in a log line.
func apiMessage(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s: %s", apiErr.ErrorCode(), apiErr.ErrorMessage())
	}
	return err
}
