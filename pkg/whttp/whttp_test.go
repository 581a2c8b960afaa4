package whttp

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fastRetries = ClientConfig{Retries: 2, RetryWaitMin: time.Millisecond, RetryWaitMax: 5 * time.Millisecond}

func TestSendHTTPRequestSetsHeadersAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "tok", r.Header.Get("X-Token"))
		assert.Equal(t, DefaultUserAgent, r.Header.Get("User-Agent"))
		b, _ := io.ReadAll(r.Body)
		assert.Equal(t, `{"q":1}`, string(b))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	client, err := NewClient(fastRetries)
	require.NoError(t, err)

	res, err := SendHTTPRequest(context.Background(), &WHTTPReq{
		Method:  http.MethodPost,
		URL:     srv.URL,
		Headers: []WHTTPHeader{{Name: "X-Token", Value: "tok"}},
		Body:    `{"q":1}`,
	}, client)
	require.NoError(t, err)
	assert.True(t, res.OK())
	assert.Equal(t, `{"ok":true}`, res.BodyString)
	assert.Equal(t, 11, res.ResponseLength)
	assert.Equal(t, "application/json", res.ContentType)
}

func TestSendHTTPRequestRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("fine"))
	}))
	defer srv.Close()

	client, err := NewClient(fastRetries)
	require.NoError(t, err)

	res, err := SendHTTPRequest(context.Background(), &WHTTPReq{URL: srv.URL}, client)
	require.NoError(t, err)
	assert.Equal(t, "fine", res.BodyString)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestSendHTTPRequestReturnsClientErrors(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	client, err := NewClient(fastRetries)
	require.NoError(t, err)

	res, err := SendHTTPRequest(context.Background(), &WHTTPReq{URL: srv.URL}, client)
	require.NoError(t, err)
	assert.False(t, res.OK())
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestSendHTTPRequestHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	client, err := NewClient(fastRetries)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = SendHTTPRequest(ctx, &WHTTPReq{URL: srv.URL}, client)
	assert.Error(t, err)
}

func TestNewClientRejectsBadProxy(t *testing.T) {
	_, err := NewClient(ClientConfig{Proxy: "://nope"})
	assert.Error(t, err)
}
