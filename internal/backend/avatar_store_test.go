package backend

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMinIOAvatarStorePresignsGetURL(t *testing.T) {
	client, err := minio.New("localhost:9000", &minio.Options{
		Creds:  credentials.NewStaticV4("access", "secret", ""),
		Region: "us-east-1",
	})
	require.NoError(t, err)

	store := NewMinIOAvatarStore(client, "avatars", 10*time.Minute)
	raw, err := store.URL(context.Background(), "avatars/1/a.png")
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "/avatars/avatars/1/a.png", u.Path)
	assert.Equal(t, "600", u.Query().Get("X-Amz-Expires"))
	assert.NotEmpty(t, u.Query().Get("X-Amz-Signature"))
}

func TestMemoryAvatarStore(t *testing.T) {
	store := NewMemoryAvatarStore("/media")
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "k", "image/png", pngHeader))
	contentType, data, ok := store.Open("k")
	require.True(t, ok)
	assert.Equal(t, "image/png", contentType)
	assert.Equal(t, pngHeader, data)

	u, err := store.URL(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "/media/k", u)

	require.NoError(t, store.Remove(ctx, "k"))
	_, _, ok = store.Open("k")
	assert.False(t, ok)
}
