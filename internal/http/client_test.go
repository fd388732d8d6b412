package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostJSON(t *testing.T) {
	var gotAccept, gotAgent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAccept = r.Header.Get("Accept")
		gotAgent = r.Header.Get("User-Agent")
		w.Write([]byte(`{"answer": 42}`))
	}))
	defer srv.Close()

	c := NewClient(5 * time.Second)
	var out struct {
		Answer int `json:"answer"`
	}
	require.NoError(t, c.PostJSON(context.Background(), srv.URL, map[string]any{"q": "?"}, &out))
	assert.Equal(t, 42, out.Answer)
	assert.Equal(t, "application/json", gotAccept)
	assert.Equal(t, "SloohDownloader/1.0", gotAgent)
}

func TestPostJSONNonOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewClient(5 * time.Second)
	err := c.PostJSON(context.Background(), srv.URL, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestSetCookieSentOnRequests(t *testing.T) {
	var gotCookie string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if cookie, err := r.Cookie("_sloohsstkn"); err == nil {
			gotCookie = cookie.Value
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewClient(5 * time.Second)
	require.NoError(t, c.SetCookie(srv.URL, "_sloohsstkn", "tok-9"))
	require.NoError(t, c.PostJSON(context.Background(), srv.URL, nil, nil))
	assert.Equal(t, "tok-9", gotCookie)
}

func TestDownloadFile(t *testing.T) {
	payload := []byte("fits file contents")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "a.fits")
	c := NewClient(5 * time.Second)

	var calls int
	var lastWritten int64
	n, err := c.DownloadFile(context.Background(), srv.URL, dest, func(written, total int64) {
		calls++
		lastWritten = written
	})
	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), n)
	assert.Positive(t, calls)
	assert.Equal(t, int64(len(payload)), lastWritten)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, payload, data)
}

func TestDownloadFileNotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "missing.png")
	c := NewClient(5 * time.Second)

	_, err := c.DownloadFile(context.Background(), srv.URL, dest, nil)
	require.Error(t, err)
	_, statErr := os.Stat(dest)
	assert.True(t, os.IsNotExist(statErr))
}

func TestDownloadFileCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	c := NewClient(5 * time.Second)
	_, err := c.DownloadFile(ctx, srv.URL, filepath.Join(t.TempDir(), "x"), nil)
	assert.Error(t, err)
}
