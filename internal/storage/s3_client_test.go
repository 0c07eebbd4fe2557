package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	huddle_errors "huddle-chat/pkg/errors"
)

type fakeS3 struct {
	mu      sync.Mutex
	puts    map[string][]byte
	headers map[string]http.Header
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.puts[r.URL.Path] = body
	f.headers[r.URL.Path] = r.Header.Clone()
	f.mu.Unlock()
	w.Header().Set("ETag", `"abc"`)
	w.WriteHeader(http.StatusOK)
}

func newTestClient(t *testing.T) (*Client, *fakeS3) {
	t.Helper()
	fake := &fakeS3{puts: map[string][]byte{}, headers: map[string]http.Header{}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	c, err := NewClient(context.Background(), S3Config{
		Region:     "us-east-1",
		Bucket:     "avatars-bucket",
		AccessKey:  "key",
		SecretKey:  "secret",
		Endpoint:   srv.URL,
		PublicBase: "https://cdn.example.com/",
		ACL:        "public-read",
	})
	require.NoError(t, err)
	return c, fake
}

func TestPresignAvatarUpload(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	up, err := c.PresignAvatarUpload(ctx, "u1", "image/png", 1024)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(up.Key, "avatars/u1/"))
	assert.True(t, strings.HasSuffix(up.Key, ".png"))
	assert.Contains(t, up.URL, "/avatars-bucket/"+up.Key)
	assert.Contains(t, up.URL, "X-Amz-Signature=")
	assert.Equal(t, http.MethodPut, up.Method)
	assert.Equal(t, "image/png", up.Headers["Content-Type"])
	assert.Equal(t, "https://cdn.example.com/"+up.Key, up.PublicURL)
	assert.True(t, OwnsKey("u1", up.Key))
	assert.False(t, OwnsKey("u2", up.Key))

	_, err = c.PresignAvatarUpload(ctx, "u1", "application/pdf", 10)
	assert.ErrorIs(t, err, huddle_errors.ErrInvalidInput)

	_, err = c.PresignAvatarUpload(ctx, "u1", "image/png", MaxAvatarBytes+1)
	assert.ErrorIs(t, err, huddle_errors.ErrTooLarge)
}

func TestPutAvatar(t *testing.T) {
	c, fake := newTestClient(t)
	ctx := context.Background()

	url, err := c.PutAvatar(ctx, "u1", "image/jpeg", strings.NewReader("jpeg bytes"))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(url, "https://cdn.example.com/avatars/u1/"))

	key := strings.TrimPrefix(url, "https://cdn.example.com/")
	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Contains(t, string(fake.puts["/avatars-bucket/"+key]), "jpeg bytes")
	assert.Equal(t, "image/jpeg", fake.headers["/avatars-bucket/"+key].Get("Content-Type"))
	assert.Equal(t, "public-read", fake.headers["/avatars-bucket/"+key].Get("X-Amz-Acl"))
}

func TestPutAvatarLimits(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	_, err := c.PutAvatar(ctx, "u1", "image/png", strings.NewReader(strings.Repeat("x", MaxAvatarBytes+1)))
	assert.ErrorIs(t, err, huddle_errors.ErrTooLarge)

	_, err = c.PutAvatar(ctx, "u1", "image/png", strings.NewReader(""))
	assert.ErrorIs(t, err, huddle_errors.ErrInvalidInput)

	_, err = NewClient(ctx, S3Config{Region: "us-east-1", Bucket: "b", ACL: "everyone"})
	assert.Error(t, err)
}
