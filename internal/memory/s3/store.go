// Package s3 implements the conversation store on Amazon S3. Each
// session is one object named <prefix><session_id>.json; a missing
// object means the session has no history yet.
package s3

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	json "github.com/goccy/go-json"

	"github.com/densefog/parley/pkg/errors"
	"github.com/densefog/parley/pkg/types"
)

// Config contains settings for the S3 store. Static credentials are
// optional; the default AWS credential chain is used when they are empty.
type Config struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string // custom endpoint (MinIO, etc.)
	AccessKeyID     string
	SecretAccessKey string
}

// Client is the subset of the S3 API the store uses.
type Client interface {
	GetObject(ctx context.Context, params *awss3.GetObjectInput, optFns ...func(*awss3.Options)) (*awss3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *awss3.PutObjectInput, optFns ...func(*awss3.Options)) (*awss3.PutObjectOutput, error)
}

// Store is an S3-backed conversation store.
type Store struct {
	client Client
	bucket string
	prefix string
}

// New returns a store using the given client.
func New(client Client, bucket, prefix string) *Store {
	return &Store{
		client: client,
		bucket: bucket,
		prefix: prefix,
	}
}

// NewFromConfig builds the real S3 client and returns a store over it.
func NewFromConfig(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3: bucket is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{}

	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("s3: failed to load AWS config: %w", err)
	}

	s3Opts := []func(*awss3.Options){}
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *awss3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	return New(awss3.NewFromConfig(awsCfg, s3Opts...), cfg.Bucket, cfg.Prefix), nil
}

// Backend implements memory.Store.
func (s *Store) Backend() string {
	return "s3"
}

// Load fetches the session object. NoSuchKey yields an empty log.
func (s *Store) Load(ctx context.Context, sessionID string) ([]types.Message, error) {
	out, err := s.client.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(sessionID)),
	})
	if err != nil {
		var noKey *s3types.NoSuchKey
		if stderrors.As(err, &noKey) {
			return []types.Message{}, nil
		}
		return nil, errors.NewStorageError(s.Backend(), "load", err.Error())
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, errors.NewStorageError(s.Backend(), "load", err.Error())
	}

	var messages []types.Message
	if err := json.Unmarshal(data, &messages); err != nil {
		return nil, errors.NewStorageError(s.Backend(), "load",
			fmt.Sprintf("decode session %s: %v", sessionID, err))
	}
	return messages, nil
}

// Save replaces the session object with the full message sequence.
func (s *Store) Save(ctx context.Context, sessionID string, messages []types.Message) error {
	if messages == nil {
		messages = []types.Message{}
	}

	data, err := json.MarshalIndent(messages, "", "  ")
	if err != nil {
		return errors.NewStorageError(s.Backend(), "save", err.Error())
	}

	_, err = s.client.PutObject(ctx, &awss3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key(sessionID)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return errors.NewStorageError(s.Backend(), "save", err.Error())
	}
	return nil
}

func (s *Store) key(sessionID string) string {
	name := sessionID + ".json"
	if s.prefix == "" {
		return name
	}
	return strings.TrimSuffix(s.prefix, "/") + "/" + name
}
