package objectstore

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	putErr  error
	getErr  error
	objects map[string][]byte
	puts    []string
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	if f.objects == nil {
		f.objects = map[string][]byte{}
	}
	f.objects[*in.Key] = data
	f.puts = append(f.puts, *in.Key)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	data, ok := f.objects[*in.Key]
	if !ok {
		return nil, errors.New("not found")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytesReader(data))}, nil
}

func bytesReader(b []byte) io.Reader {
	return &sliceReader{data: b}
}

type sliceReader struct {
	data []byte
	pos  int
}

func (r *sliceReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	n := copy(p, r.data[r.pos:])
	r.pos += n
	return n, nil
}

func TestStorePutThenGetRoundTrips(t *testing.T) {
	fake := &fakeS3{}
	store := NewStore(fake, "temp-storage.godbolt.org")

	type payload struct {
		GUID string `json:"guid"`
		Code int    `json:"code"`
	}
	in := payload{GUID: "abc-123", Code: 0}
	data := []byte(`{"guid":"abc-123","code":0}`)

	require.NoError(t, store.PutJSON(context.Background(), "sqs-overflow/prod/key.json", data, map[string]string{"guid": in.GUID}))

	var out payload
	require.NoError(t, store.GetJSON(context.Background(), "sqs-overflow/prod/key.json", &out))
	assert.Equal(t, in, out)
}

func TestStorePutPropagatesError(t *testing.T) {
	fake := &fakeS3{putErr: errors.New("access denied")}
	store := NewStore(fake, "bucket")

	err := store.PutJSON(context.Background(), "key.json", []byte(`{}`), nil)
	require.Error(t, err)
}

func TestStoreGetPropagatesError(t *testing.T) {
	fake := &fakeS3{getErr: errors.New("not found")}
	store := NewStore(fake, "bucket")

	var out map[string]interface{}
	err := store.GetJSON(context.Background(), "missing.json", &out)
	require.Error(t, err)
}
