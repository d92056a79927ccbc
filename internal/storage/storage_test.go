package storage

import (
	"context"
	"testing"

	"github.com/abduss/messenger/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMinIOClientDefaultsPort(t *testing.T) {
	client, err := NewMinIOClient(config.MinIOConfig{
		Endpoint:        "localhost",
		AccessKeyID:     "access",
		SecretAccessKey: "secret",
		Region:          "us-east-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "localhost:9000", client.EndpointURL().Host)
	assert.Equal(t, "http", client.EndpointURL().Scheme)
}

func TestEndpointAddress(t *testing.T) {
	cases := []struct {
		raw        string
		useSSL     bool
		wantHost   string
		wantSecure bool
	}{
		{raw: "minio", wantHost: "minio:9000"},
		{raw: "minio:9001", wantHost: "minio:9001"},
		{raw: "minio", useSSL: true, wantHost: "minio:443", wantSecure: true},
		{raw: "https://s3.example.com/", wantHost: "s3.example.com:443", wantSecure: true},
		{raw: "http://minio:9000", useSSL: true, wantHost: "minio:9000"},
	}
	for _, tc := range cases {
		host, secure, err := endpointAddress(tc.raw, tc.useSSL)
		require.NoError(t, err, tc.raw)
		assert.Equal(t, tc.wantHost, host, tc.raw)
		assert.Equal(t, tc.wantSecure, secure, tc.raw)
	}

	_, _, err := endpointAddress("http://minio:9000/bucket", false)
	assert.Error(t, err)
}

func TestNewMinIOClientRequiresEndpoint(t *testing.T) {
	_, err := NewMinIOClient(config.MinIOConfig{})
	assert.Error(t, err)
}

func TestNewPostgresPoolRequiresHost(t *testing.T) {
	_, err := NewPostgresPool(context.Background(), config.PostgresConfig{})
	assert.Error(t, err)
}
