package storage

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetcherReadsOwnObjectsFromStore(t *testing.T) {
	objectStore, _ := setupTestObjectStore(t)
	ctx := context.Background()

	obj, err := objectStore.PutObject(ctx, "uploads/doc.pdf", "application/pdf", []byte("%PDF"))
	require.NoError(t, err)

	data, err := NewFetcher(objectStore).Fetch(ctx, obj.URL)
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF"), data)

	_, err = NewFetcher(objectStore).Fetch(ctx, testBaseURL+"/uploads/missing.pdf")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestFetcherFallsBackToHTTP(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/cat.png" {
			w.Write([]byte("png-bytes"))
			return
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	fetcher := NewFetcher(nil)

	data, err := fetcher.Fetch(context.Background(), server.URL+"/cat.png")
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), data)

	_, err = fetcher.Fetch(context.Background(), server.URL+"/dog.png")
	assert.Error(t, err)
}

func TestFetcherStopsReadingOversizedBodies(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Write([]byte("this body is well over sixteen bytes"))
	}))
	defer server.Close()

	fetcher := NewFetcher(nil)
	assert.Equal(t, maxFetchBytes, fetcher.client.ResponseBodyLimit)
	fetcher.client.SetResponseBodyLimit(16)

	_, err := fetcher.Fetch(context.Background(), server.URL+"/huge.png")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "larger than the 16 byte limit")
	assert.Equal(t, int32(1), requests.Load())
}

func TestValidateUpload(t *testing.T) {
	assert.NoError(t, ValidateUpload("image/png", 100))
	assert.NoError(t, ValidateUpload("text/plain; charset=utf-8", 100))
	assert.NoError(t, ValidateUpload("application/pdf", MaxUploadBytes))

	assert.ErrorIs(t, ValidateUpload("image/png", 0), ErrInvalidUpload)
	assert.ErrorIs(t, ValidateUpload("image/png", MaxUploadBytes+1), ErrInvalidUpload)
	assert.ErrorIs(t, ValidateUpload("application/zip", 100), ErrInvalidUpload)
}

func TestMediaTypeFor(t *testing.T) {
	assert.Equal(t, "image", MediaTypeFor("image/webp"))
	assert.Equal(t, "pdf", MediaTypeFor("application/pdf"))
	assert.Equal(t, "video", MediaTypeFor("video/mp4"))
	assert.Equal(t, "audio", MediaTypeFor("audio/mpeg"))
	assert.Equal(t, "document", MediaTypeFor("text/plain"))
}

func TestUploadKeyKeepsExtension(t *testing.T) {
	key := UploadKey("Holiday Photo.JPG")
	assert.Regexp(t, `^uploads/[0-9a-f-]{36}\.jpg$`, key)
	assert.NotEqual(t, key, UploadKey("Holiday Photo.JPG"))
}
