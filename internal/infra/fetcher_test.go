package infra

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestFetch_Success verifies a plain download.
func TestFetch_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "shellmon", r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte("payload bytes"))
	}))
	defer srv.Close()

	var buf bytes.Buffer
	n, err := NewHTTPFetcher().Fetch(context.Background(), srv.URL, &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(len("payload bytes")), n)
	assert.Equal(t, "payload bytes", buf.String())
}

// TestFetch_NonSuccessStatus verifies non-2xx responses are errors.
func TestFetch_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	var buf bytes.Buffer
	_, err := NewHTTPFetcher().Fetch(context.Background(), srv.URL, &buf)
	assert.Error(t, err)
}

// TestFetch_ContextCancellation verifies the caller can abort a fetch.
func TestFetch_ContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var buf bytes.Buffer
	_, err := NewHTTPFetcher().Fetch(ctx, srv.URL, &buf)
	assert.Error(t, err)
}
