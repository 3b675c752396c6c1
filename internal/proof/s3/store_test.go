package s3_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrJamesThe3rd/almsbox/internal/proof"
	proofs3 "github.com/MrJamesThe3rd/almsbox/internal/proof/s3"
)

type object struct {
	body        []byte
	contentType string
}

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]object
	err     error
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string]object{}}
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}

	b, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.objects[aws.ToString(in.Key)] = object{body: b, contentType: aws.ToString(in.ContentType)}

	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	o, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NotFound{}
	}

	return &s3.HeadObjectOutput{
		ContentType:   aws.String(o.contentType),
		ContentLength: aws.Int64(int64(len(o.body))),
	}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	o, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}

	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(o.body))}, nil
}

func TestStore_SaveStatOpen(t *testing.T) {
	ctx := context.Background()
	client := newFakeS3()
	store := proofs3.New(client, "proofs", "/uploads/")

	png := "\x89PNG\r\n\x1a\n" + strings.Repeat("\x00", 32)

	a, err := store.Save(ctx, "transfer.png", strings.NewReader(png))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(a.Locator, "uploads/"))
	assert.True(t, strings.HasSuffix(a.Locator, ".png"))
	assert.Equal(t, "image/png", a.MediaType)

	st, err := store.Stat(ctx, a.Locator)
	require.NoError(t, err)
	assert.Equal(t, "image/png", st.MediaType)
	assert.Equal(t, int64(len(png)), st.Size)

	rc, err := store.Open(ctx, a.Locator)
	require.NoError(t, err)

	defer rc.Close()

	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, png, string(got))
}

func TestStore_Missing(t *testing.T) {
	store := proofs3.New(newFakeS3(), "proofs", "")

	_, err := store.Stat(context.Background(), "nope.pdf")
	assert.ErrorIs(t, err, proof.ErrNotFound)

	_, err = store.Open(context.Background(), "nope.pdf")
	assert.ErrorIs(t, err, proof.ErrNotFound)
}

func TestStore_Unavailable(t *testing.T) {
	client := newFakeS3()
	client.err = errors.New("connection refused")
	store := proofs3.New(client, "proofs", "")

	_, err := store.Save(context.Background(), "a.pdf", strings.NewReader("%PDF-1.4"))
	assert.ErrorIs(t, err, proof.ErrUnavailable)

	_, err = store.Stat(context.Background(), "a.pdf")
	assert.ErrorIs(t, err, proof.ErrUnavailable)
}
