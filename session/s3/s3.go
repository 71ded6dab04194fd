// Package s3 implements a canonical session store backed by Amazon S3 (or
// any S3 compatible API such as MinIO or LocalStack).
//
// Each session is one object at "<prefix><name>/<id>". Clean lists the
// namespace and deletes objects whose LastModified is older than the
// maximum lifetime. Configuration (bucket, prefix, region, endpoint,
// credentials) is explicit via Config.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/hupe1980/sessionmesh/core"
	"github.com/hupe1980/sessionmesh/logging"
)

// API is the subset of the S3 client used by Store.
type API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Config configures a Store.
type Config struct {
	Bucket string
	// Prefix prepended to every key, e.g. "sessions/".
	Prefix string
	// Region defaults to us-east-1.
	Region string
	// Endpoint overrides the S3 endpoint and enables path-style addressing.
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	// Timeout bounds every S3 request (defaults to 10s).
	Timeout time.Duration
	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// Store is a core.Handler persisting sessions as S3 objects.
type Store struct {
	client API
	bucket string
	prefix string

	mu   sync.RWMutex
	name string

	timeout time.Duration
	now     func() time.Time
	logger  logging.Logger
}

var _ core.Handler = (*Store)(nil)

// NewFromConfig builds an S3 client from cfg and returns a Store using it.
func NewFromConfig(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 session store requires bucket")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	loadOpts = append(loadOpts, awsconfig.WithRegion(region))
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var client *s3.Client
	if cfg.Endpoint != "" {
		client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true // Required for localstack/MinIO
		})
	} else {
		client = s3.NewFromConfig(awsCfg)
	}
	return New(client, cfg), nil
}

// New returns a Store using client.
func New(client API, cfg Config) *Store {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Store{
		client:  client,
		bucket:  cfg.Bucket,
		prefix:  cfg.Prefix,
		name:    "default",
		timeout: timeout,
		now:     time.Now,
		logger:  logging.OrNoOp(cfg.Logger),
	}
}

func (s *Store) namespace() string {
	return s.prefix + s.sessionName() + "/"
}

// sessionName returns the namespace selected by Create.
func (s *Store) sessionName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.name
}

func (s *Store) key(id string) string {
	return s.namespace() + id
}

func (s *Store) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.timeout)
}

// isNotFound reports whether err means the object does not exist.
func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "NoSuchKey" || code == "NotFound" || code == "404"
	}
	return false
}

// Create selects the key namespace.
func (s *Store) Create(_, name string, _ core.CreateNext) bool {
	if name != "" {
		s.mu.Lock()
		s.name = name
		s.mu.Unlock()
	}
	return true
}

// Read downloads the session object, returning "" when it does not exist.
func (s *Store) Read(id string, _ core.ReadNext) string {
	ctx, cancel := s.ctx()
	defer cancel()

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(id)),
	})
	if err != nil {
		if !isNotFound(err) {
			s.logger.Error("failed to get session object", "id", id, "error", err)
		}
		return ""
	}
	defer func() { _ = out.Body.Close() }()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		s.logger.Error("failed to read session object", "id", id, "error", err)
		return ""
	}
	return string(data)
}

// Write uploads the session payload.
func (s *Store) Write(id, data string, _ core.WriteNext) bool {
	ctx, cancel := s.ctx()
	defer cancel()

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.key(id)),
		Body:          strings.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		s.logger.Error("failed to put session object", "id", id, "error", err)
		return false
	}
	return true
}

// Delete removes the session object. S3 treats deleting a missing key as
// success.
func (s *Store) Delete(id string, _ core.DeleteNext) bool {
	ctx, cancel := s.ctx()
	defer cancel()

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(id)),
	})
	if err != nil && !isNotFound(err) {
		s.logger.Error("failed to delete session object", "id", id, "error", err)
		return false
	}
	return true
}

// Clean deletes session objects last modified more than maxLifetime
// seconds ago.
func (s *Store) Clean(maxLifetime int, _ core.CleanNext) bool {
	ctx, cancel := s.ctx()
	defer cancel()

	cutoff := s.now().Add(-time.Duration(maxLifetime) * time.Second)
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.namespace()),
	})

	ok, removed := true, 0
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			s.logger.Error("failed to list session objects", "error", err)
			return false
		}
		for _, obj := range page.Contents {
			if obj.LastModified == nil || !obj.LastModified.Before(cutoff) {
				continue
			}
			_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
				Bucket: aws.String(s.bucket),
				Key:    obj.Key,
			})
			if err != nil && !isNotFound(err) {
				s.logger.Error("failed to delete expired session object", "key", aws.ToString(obj.Key), "error", err)
				ok = false
				continue
			}
			removed++
		}
	}
	s.logger.Debug("s3 sessions collected", "removed", removed)
	return ok
}
