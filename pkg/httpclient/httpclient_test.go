package httpclient

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/require"
)

func TestPerformToCallbackCollectsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("hello from badgehub"))
	}))
	defer srv.Close()

	h := Init()
	h.SetURL(srv.URL)

	var got []byte
	h.SetWriteCallback(func(p []byte) (int, error) {
		got = append(got, p...)
		return len(p), nil
	})

	require.NoError(t, h.Perform())
	require.Equal(t, "hello from badgehub", string(got))
	require.Equal(t, http.StatusOK, h.ResponseCode)
	require.Equal(t, "text/plain", h.ContentType)
}

func TestPerformHTTPErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	h := Init()
	h.SetURL(srv.URL)
	err := h.Perform()
	require.Error(t, err)

	var httpErr *Error
	require.ErrorAs(t, err, &httpErr)
	require.Equal(t, HTTPReturnedError, httpErr.Code)
}

func TestPerformWithProxyIsUnsupported(t *testing.T) {
	h := Init()
	h.SetURL("https://example.com")
	h.SetProxy("http://proxy.local:8080")

	err := h.Perform()
	require.Error(t, err)

	var httpErr *Error
	require.ErrorAs(t, err, &httpErr)
	require.Equal(t, UnsupportedProtocol, httpErr.Code)
}

func TestPerformNoURLFails(t *testing.T) {
	h := Init()
	err := h.Perform()
	require.Error(t, err)
}

func TestSetHeaderAppliesToRequest(t *testing.T) {
	var gotHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("X-Badge-Id")
	}))
	defer srv.Close()

	h := Init()
	h.SetURL(srv.URL)
	h.SetHeader("X-Badge-Id", "deadbeef")
	require.NoError(t, h.Perform())
	require.Equal(t, "deadbeef", gotHeader)
}

func TestPerformInflatesGzipContentEncoding(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "gzip", r.Header.Get("Accept-Encoding"))
		w.Header().Set("Content-Encoding", "gzip")
		gz := gzip.NewWriter(w)
		gz.Write([]byte("manifest body, compressed"))
		gz.Close()
	}))
	defer srv.Close()

	h := Init()
	h.SetURL(srv.URL)

	var got []byte
	h.SetWriteCallback(func(p []byte) (int, error) {
		got = append(got, p...)
		return len(p), nil
	})

	require.NoError(t, h.Perform())
	require.Equal(t, "manifest body, compressed", string(got))
}

func TestPerformToFileDownloadsContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("firmware bytes"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	dest := filepath.Join(dir, "badgevms.bin")

	h := Init()
	h.SetURL(srv.URL)
	h.SetDestFile(dest)

	require.NoError(t, h.Perform())

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, "firmware bytes", string(data))
}
