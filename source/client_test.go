package source

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/poiesic/doajsync/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const twoRecords = `{"total": 2, "results": [
  {"id": "r1", "bibjson": {"title": "First"}},
  {"id": "r2", "bibjson": {"title": "Second"}}
]}`

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(server.URL+"/api/search/articles", WithHTTPClient(server.Client()))
	require.NoError(t, err)
	return client
}

func TestNewClient_RequiresBaseURL(t *testing.T) {
	_, err := NewClient("  ")
	assert.ErrorIs(t, err, ErrBaseURLRequired)
}

func TestFetchPage_BuildsRequest(t *testing.T) {
	var gotPath, gotPage, gotSize, gotEncoding string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotPage = r.URL.Query().Get("page")
		gotSize = r.URL.Query().Get("pageSize")
		gotEncoding = r.Header.Get("Accept-Encoding")
		_, _ = w.Write([]byte(twoRecords))
	})

	page, err := client.FetchPage(context.Background(), "science", 8, 100)
	require.NoError(t, err)

	assert.Equal(t, "/api/search/articles/science", gotPath)
	assert.Equal(t, "8", gotPage)
	assert.Equal(t, "100", gotSize)
	assert.Contains(t, gotEncoding, "br")
	assert.Equal(t, 2, page.Total)
	require.Len(t, page.Records, 2)
	assert.Equal(t, "r1", page.Records[0].ID)
	assert.Equal(t, "Second", page.Records[1].Bibjson.Title)
}

func TestFetchPage_MixedTypesKeepPage(t *testing.T) {
	var logs bytes.Buffer
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"total": 3, "results": [
  {"id": "r1", "bibjson": {"title": "Numeric year", "year": 2023, "start_page": 7, "journal": {"volume": 4}}},
  {"id": "r2", "bibjson": "not an object"},
  {"id": "r3", "bibjson": {"title": "Plain", "year": "2024"}}
]}`))
	}))
	t.Cleanup(server.Close)

	client, err := NewClient(server.URL,
		WithHTTPClient(server.Client()),
		WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))
	require.NoError(t, err)

	page, err := client.FetchPage(context.Background(), "science", 1, 100)
	require.NoError(t, err)
	require.Len(t, page.Records, 3)

	assert.Equal(t, core.Text("2023"), page.Records[0].Bibjson.Year)
	assert.Equal(t, core.Text("7"), page.Records[0].Bibjson.StartPage)
	assert.Equal(t, core.Text("4"), page.Records[0].Bibjson.Journal.Volume)

	assert.Equal(t, "r2", page.Records[1].ID)
	assert.Nil(t, page.Records[1].Bibjson)
	assert.Contains(t, logs.String(), "malformed record")

	assert.Equal(t, core.Text("2024"), page.Records[2].Bibjson.Year)
}

func TestFetchPage_EscapesCategory(t *testing.T) {
	var gotPath string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		_, _ = w.Write([]byte(`{"total": 0, "results": []}`))
	})

	_, err := client.FetchPage(context.Background(), "earth science", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, "/api/search/articles/earth%20science", gotPath)
}

func TestFetchPage_EmptyIsNotAnError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"total": 250, "results": []}`))
	})

	page, err := client.FetchPage(context.Background(), "biology", 4, 100)
	require.NoError(t, err)
	assert.Empty(t, page.Records)
	assert.Equal(t, 250, page.Total)
}

func TestFetchPage_NonSuccessStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	})

	page, err := client.FetchPage(context.Background(), "science", 3, 100)
	require.Error(t, err)
	assert.Nil(t, page)
	assert.ErrorIs(t, err, ErrFetchFailed)

	var fetchErr *FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, http.StatusTooManyRequests, fetchErr.StatusCode)
	assert.Equal(t, core.Category("science"), fetchErr.Category)
	assert.Equal(t, 3, fetchErr.Page)
}

func TestFetchPage_InvalidJSON(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"results": [`))
	})

	_, err := client.FetchPage(context.Background(), "science", 1, 100)
	assert.ErrorIs(t, err, ErrFetchFailed)
}

func TestFetchPage_TransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	client, err := NewClient(server.URL)
	require.NoError(t, err)
	server.Close()

	_, err = client.FetchPage(context.Background(), "science", 1, 100)
	require.Error(t, err)

	var fetchErr *FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, 0, fetchErr.StatusCode)
}

func TestFetchPage_InvalidRequestMakesNoCall(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	})

	_, err := client.FetchPage(context.Background(), "science", 0, 100)
	assert.ErrorIs(t, err, core.ErrInvalidPageRequest)

	_, err = client.FetchPage(context.Background(), "science", 1, 0)
	assert.ErrorIs(t, err, core.ErrInvalidPageRequest)

	assert.Equal(t, int32(0), calls.Load())
}

func TestFetchPage_BrotliBody(t *testing.T) {
	var compressed bytes.Buffer
	bw := brotli.NewWriter(&compressed)
	_, err := bw.Write([]byte(twoRecords))
	require.NoError(t, err)
	require.NoError(t, bw.Close())

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "br")
		_, _ = w.Write(compressed.Bytes())
	})

	page, err := client.FetchPage(context.Background(), "science", 1, 100)
	require.NoError(t, err)
	assert.Len(t, page.Records, 2)
}

func TestFetchPage_GzipBody(t *testing.T) {
	var compressed bytes.Buffer
	gw := gzip.NewWriter(&compressed)
	_, err := gw.Write([]byte(twoRecords))
	require.NoError(t, err)
	require.NoError(t, gw.Close())

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "gzip")
		_, _ = w.Write(compressed.Bytes())
	})

	page, err := client.FetchPage(context.Background(), "science", 1, 100)
	require.NoError(t, err)
	assert.Len(t, page.Records, 2)
}

func TestFetchPage_ContextCanceled(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(twoRecords))
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.FetchPage(ctx, "science", 1, 100)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, err, ErrFetchFailed)
}

type trackingBody struct {
	io.Reader
	closed bool
}

func (b *trackingBody) Close() error {
	b.closed = true
	return nil
}

func TestDecodedBody_ClosesDecoderNotResponse(t *testing.T) {
	var compressed bytes.Buffer
	gw := gzip.NewWriter(&compressed)
	_, err := gw.Write([]byte(twoRecords))
	require.NoError(t, err)
	require.NoError(t, gw.Close())

	tests := []struct {
		name     string
		encoding string
		data     []byte
	}{
		{"identity", "", []byte(twoRecords)},
		{"gzip", "gzip", compressed.Bytes()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := &trackingBody{Reader: bytes.NewReader(tt.data)}
			resp := &http.Response{Header: http.Header{}, Body: raw}
			if tt.encoding != "" {
				resp.Header.Set("Content-Encoding", tt.encoding)
			}

			body, err := decodedBody(resp)
			require.NoError(t, err)
			data, err := io.ReadAll(body)
			require.NoError(t, err)
			assert.Equal(t, twoRecords, string(data))

			require.NoError(t, body.Close())
			assert.False(t, raw.closed)
		})
	}
}

func TestDecodedBody_UnsupportedEncoding(t *testing.T) {
	resp := &http.Response{Header: http.Header{"Content-Encoding": {"zstd"}}, Body: io.NopCloser(bytes.NewReader(nil))}

	_, err := decodedBody(resp)
	assert.Error(t, err)
}
