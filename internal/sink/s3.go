package sink

import (
	"context"
	"errors"
	"fmt"
	"io"
	nethttp "net/http"
	"os"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog/log"

	"github.com/neptunelabs/fsi-client/internal/config"
)

// S3 writes objects below a prefix of an S3 bucket.
type S3 struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3 creates the sink. Credentials come from the static keys in cfg
// when set, otherwise from the default AWS chain (environment, shared
// profile, instance role).
func NewS3(ctx context.Context, bucket, prefix string, cfg *config.Config, hc *nethttp.Client) (*S3, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.S3Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.S3Region))
	}
	if cfg.S3Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(cfg.S3Profile))
	}
	if cfg.S3AccessKey != "" && cfg.S3SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, "")))
	}
	if hc != nil {
		opts = append(opts, awsconfig.WithHTTPClient(hc))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			// S3 compatible stores (MinIO, Ceph) rarely support virtual hosts.
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
	})
	return &S3{client: client, bucket: bucket, prefix: prefix}, nil
}

func (s *S3) String() string {
	if s.prefix == "" {
		return SchemeS3 + s.bucket
	}
	return SchemeS3 + s.bucket + "/" + s.prefix
}

// Exists implements Sink.
func (s *S3) Exists(ctx context.Context, rel string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey(s.prefix, rel)),
	})
	if err == nil {
		return true, nil
	}
	if isS3NotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("head %s: %w", objectKey(s.prefix, rel), err)
}

func isS3NotFound(err error) bool {
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var re *awshttp.ResponseError
	return errors.As(err, &re) && re.HTTPStatusCode() == nethttp.StatusNotFound
}

// MkdirAll implements Sink. Buckets have no directories.
func (s *S3) MkdirAll(context.Context, string) error {
	return nil
}

// Create implements Sink. PutObject needs a seekable body of known length,
// so the data is spooled to a temp file and uploaded on Close.
func (s *S3) Create(ctx context.Context, rel string, _ int64, modTime time.Time, overwrite bool) (io.WriteCloser, error) {
	if !overwrite {
		exists, err := s.Exists(ctx, rel)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, fmt.Errorf("%s: %w", objectKey(s.prefix, rel), ErrExists)
		}
	}
	f, err := os.CreateTemp("", "fsi-s3-*.part")
	if err != nil {
		return nil, fmt.Errorf("create spool file: %w", err)
	}
	return &s3Writer{ctx: ctx, sink: s, key: objectKey(s.prefix, rel), f: f, modTime: modTime}, nil
}

type s3Writer struct {
	ctx     context.Context
	sink    *S3
	key     string
	f       *os.File
	modTime time.Time
	done    bool
}

func (w *s3Writer) Write(p []byte) (int, error) {
	return w.f.Write(p)
}

func (w *s3Writer) Close() error {
	if w.done {
		return nil
	}
	w.done = true
	defer os.Remove(w.f.Name())
	defer w.f.Close()

	size, err := w.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	if _, err := w.f.Seek(0, io.SeekStart); err != nil {
		return err
	}

	input := &s3.PutObjectInput{
		Bucket:        aws.String(w.sink.bucket),
		Key:           aws.String(w.key),
		Body:          w.f,
		ContentLength: aws.Int64(size),
	}
	if !w.modTime.IsZero() {
		input.Metadata = map[string]string{"mtime": strconv.FormatInt(w.modTime.Unix(), 10)}
	}
	if _, err := w.sink.client.PutObject(w.ctx, input); err != nil {
		return fmt.Errorf("put %s: %w", w.key, err)
	}
	log.Debug().Str("bucket", w.sink.bucket).Str("key", w.key).Int64("size", size).Msg("uploaded object")
	return nil
}

func (w *s3Writer) Abort() error {
	if w.done {
		return nil
	}
	w.done = true
	w.f.Close()
	return os.Remove(w.f.Name())
}
