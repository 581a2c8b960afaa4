package sources

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/loopwidget/planscope/pkg/cache"
	"github.com/loopwidget/planscope/pkg/whttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFetcher(t *testing.T, c cache.Cache) *Fetcher {
	t.Helper()
	client, err := whttp.NewClient(whttp.ClientConfig{Retries: 1, RetryWaitMin: time.Millisecond, RetryWaitMax: time.Millisecond})
	require.NoError(t, err)
	return &Fetcher{Client: client, Cache: c, TTL: time.Minute}
}

func TestFetchCachesSuccessfulBodies(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_, _ = w.Write([]byte(`{"id":1}`))
	}))
	defer srv.Close()

	f := newFetcher(t, cache.NewMemory())
	for i := 0; i < 3; i++ {
		body, err := f.Fetch(context.Background(), &whttp.WHTTPReq{URL: srv.URL + "/products/a.js"})
		require.NoError(t, err)
		assert.Equal(t, `{"id":1}`, body)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	// A different body is a different key.
	_, err := f.Fetch(context.Background(), &whttp.WHTTPReq{Method: "POST", URL: srv.URL + "/products/a.js", Body: "x"})
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestFetchRejectsNon2xx(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	f := newFetcher(t, cache.NewMemory())
	for i := 0; i < 2; i++ {
		_, err := f.Fetch(context.Background(), &whttp.WHTTPReq{URL: srv.URL})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "HTTP 401")
	}
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls), "failures must not be cached")
}

func TestFetchValidSkipsCacheForRejectedBodies(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			_, _ = w.Write([]byte(`{"errors":[{"message":"Throttled"}]}`))
			return
		}
		_, _ = w.Write([]byte(`{"data":{}}`))
	}))
	defer srv.Close()

	errBody := errors.New("error document")
	valid := func(body string) error {
		if body == `{"data":{}}` {
			return nil
		}
		return errBody
	}

	f := newFetcher(t, cache.NewMemory())
	req := &whttp.WHTTPReq{Method: "POST", URL: srv.URL + "/api/graphql.json", Body: "q"}
	_, err := f.FetchValid(context.Background(), req, valid)
	require.ErrorIs(t, err, errBody)

	for i := 0; i < 2; i++ {
		body, err := f.FetchValid(context.Background(), req, valid)
		require.NoError(t, err)
		assert.Equal(t, `{"data":{}}`, body)
	}
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestUnavailableWraps(t *testing.T) {
	err := Unavailable("remote", context.DeadlineExceeded)
	assert.ErrorIs(t, err, ErrSourceUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStoreURL(t *testing.T) {
	assert.Equal(t, "https://s.example.com/products/a.js", StoreURL("https://s.example.com/", "/products/a.js"))
	assert.Equal(t, "https://s.example.com/api", StoreURL("https://s.example.com", "api"))
}
