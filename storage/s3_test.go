package storage

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/ruteri/credential-registry-backend/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 keeps objects in memory. Unimplemented methods panic through the
// embedded nil interface.
type fakeS3 struct {
	s3iface.S3API
	mu      sync.Mutex
	objects map[string][]byte
	acls    map[string]string
	down    bool
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}, acls: map[string]string{}}
}

func (f *fakeS3) PutObjectWithContext(ctx aws.Context, in *s3.PutObjectInput, _ ...request.Option) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return nil, awserr.New("RequestError", "send request failed", nil)
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	key := aws.StringValue(in.Bucket) + "/" + aws.StringValue(in.Key)
	f.objects[key] = data
	f.acls[key] = aws.StringValue(in.ACL)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObjectWithContext(ctx aws.Context, in *s3.GetObjectInput, _ ...request.Option) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return nil, awserr.New("RequestError", "send request failed", nil)
	}
	data, ok := f.objects[aws.StringValue(in.Bucket)+"/"+aws.StringValue(in.Key)]
	if !ok {
		return nil, awserr.New(s3.ErrCodeNoSuchKey, "The specified key does not exist.", nil)
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) HeadBucketWithContext(ctx aws.Context, in *s3.HeadBucketInput, _ ...request.Option) (*s3.HeadBucketOutput, error) {
	if f.down {
		return nil, awserr.New("RequestError", "send request failed", nil)
	}
	return &s3.HeadBucketOutput{}, nil
}

func TestS3Backend_StoreFetch(t *testing.T) {
	fake := newFakeS3()
	backend := newS3BackendWithClient(fake, S3Config{Bucket: "creds", Prefix: "issued", Region: "us-east-1", ACL: "private"}, true, discardLogger)
	ctx := context.Background()

	assert.True(t, backend.Available(ctx))

	loc, err := backend.Store(ctx, []byte("TESTFILE0\n"), interfaces.CiphertextType)
	require.NoError(t, err)
	assert.Equal(t, interfaces.Locator("s3://creds/issued/ciphertext/64ee83233cb4069f3eca00ed12de1a1a2b36fb8cb0ae43d07c5fbe742c2cfccd"), loc)
	assert.Equal(t, "private", fake.acls["creds/issued/ciphertext/64ee83233cb4069f3eca00ed12de1a1a2b36fb8cb0ae43d07c5fbe742c2cfccd"])

	data, err := backend.Fetch(ctx, loc)
	require.NoError(t, err)
	assert.Equal(t, []byte("TESTFILE0\n"), data)
}

func TestS3Backend_FetchErrors(t *testing.T) {
	fake := newFakeS3()
	backend := newS3BackendWithClient(fake, S3Config{Bucket: "creds", Region: "us-east-1"}, true, discardLogger)
	ctx := context.Background()
	hash := strings.Repeat("cd", 32)

	_, err := backend.Fetch(ctx, interfaces.Locator("s3://creds/ciphertext/"+hash))
	assert.ErrorIs(t, err, interfaces.ErrContentNotFound)

	_, err = backend.Fetch(ctx, interfaces.Locator("s3://other/ciphertext/"+hash))
	assert.ErrorIs(t, err, interfaces.ErrInvalidLocationURI)

	fake.objects["creds/ciphertext/"+hash] = []byte("wrong bytes")
	_, err = backend.Fetch(ctx, interfaces.Locator("s3://creds/ciphertext/"+hash))
	assert.ErrorIs(t, err, ErrIntegrity)

	fake.down = true
	assert.False(t, backend.Available(ctx))
	_, err = backend.Fetch(ctx, interfaces.Locator("s3://creds/ciphertext/"+hash))
	assert.ErrorIs(t, err, interfaces.ErrBackendUnavailable)
	_, err = backend.Store(ctx, []byte("x"), interfaces.BundleType)
	assert.ErrorIs(t, err, interfaces.ErrBackendUnavailable)
}
