package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/almsbox/internal/proof"
)

// API is the subset of the S3 client the store uses.
type API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Store keeps proof files as objects under a key prefix. Locators are object keys.
type Store struct {
	client API
	bucket string
	prefix string
}

func New(client API, bucket, prefix string) *Store {
	return &Store{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
	}
}

var _ proof.Store = (*Store)(nil)

func (s *Store) Save(ctx context.Context, filename string, r io.Reader) (proof.Artifact, error) {
	mediaType, body, err := proof.Detect(r)
	if err != nil {
		return proof.Artifact{}, err
	}

	// Buffered so the SDK can sign a seekable payload; uploads are size-capped upstream.
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, body); err != nil {
		return proof.Artifact{}, fmt.Errorf("reading proof body: %w", err)
	}

	key := uuid.NewString() + strings.ToLower(path.Ext(filename))
	if s.prefix != "" {
		key = s.prefix + "/" + key
	}

	size := int64(buf.Len())

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(buf.Bytes()),
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(mediaType),
	})
	if err != nil {
		return proof.Artifact{}, fmt.Errorf("%w: putting object: %w", proof.ErrUnavailable, err)
	}

	return proof.Artifact{Locator: key, MediaType: mediaType, Size: size}, nil
}

func (s *Store) Stat(ctx context.Context, locator string) (proof.Artifact, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(locator),
	})
	if err != nil {
		var nf *types.NotFound
		if errors.As(err, &nf) {
			return proof.Artifact{}, fmt.Errorf("%w: %s", proof.ErrNotFound, locator)
		}

		return proof.Artifact{}, fmt.Errorf("%w: heading object: %w", proof.ErrUnavailable, err)
	}

	return proof.Artifact{
		Locator:   locator,
		MediaType: aws.ToString(out.ContentType),
		Size:      aws.ToInt64(out.ContentLength),
	}, nil
}

func (s *Store) Open(ctx context.Context, locator string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(locator),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("%w: %s", proof.ErrNotFound, locator)
		}

		return nil, fmt.Errorf("%w: getting object: %w", proof.ErrUnavailable, err)
	}

	return out.Body, nil
}
