package whttp

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

const DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0 planscope"

type WHTTPHeader struct {
	Name  string
	Value string
}

type WHTTPReq struct {
	URL     string
	Method  string
	Headers []WHTTPHeader
	Body    string
}

type WHTTPRes struct {
	StatusCode     int
	ResponseLength int
	ContentType    string
	BodyString     string
}

// OK reports a 2xx status.
func (r *WHTTPRes) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// ClientConfig tunes the retrying client every source shares.
type ClientConfig struct {
	Retries      int
	Timeout      time.Duration
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	Proxy        string
	// Logger receives retry attempts; nil silences them.
	Logger retryablehttp.LeveledLogger
}

// NewClient builds a retryablehttp client. Zero values fall back to 3 retries,
// a 15s timeout and 200ms..2s backoff.
func NewClient(cfg ClientConfig) (*retryablehttp.Client, error) {
	c := retryablehttp.NewClient()
	c.Logger = nil
	if cfg.Logger != nil {
		c.Logger = cfg.Logger
	}

	c.RetryMax = 3
	if cfg.Retries > 0 {
		c.RetryMax = cfg.Retries
	}
	c.RetryWaitMin = 200 * time.Millisecond
	if cfg.RetryWaitMin > 0 {
		c.RetryWaitMin = cfg.RetryWaitMin
	}
	c.RetryWaitMax = 2 * time.Second
	if cfg.RetryWaitMax > 0 {
		c.RetryWaitMax = cfg.RetryWaitMax
	}
	c.HTTPClient.Timeout = 15 * time.Second
	if cfg.Timeout > 0 {
		c.HTTPClient.Timeout = cfg.Timeout
	}

	if cfg.Proxy != "" {
		proxyURL, err := url.Parse(cfg.Proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL: %v", err)
		}
		c.HTTPClient.Transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
	}
	return c, nil
}

// SendHTTPRequest performs wReq with client and reads the whole body. Non-2xx
// responses are returned, not turned into errors; callers decide.
func SendHTTPRequest(ctx context.Context, wReq *WHTTPReq, client *retryablehttp.Client) (*WHTTPRes, error) {
	var body io.Reader
	if wReq.Body != "" {
		body = strings.NewReader(wReq.Body)
	}
	method := wReq.Method
	if method == "" {
		method = http.MethodGet
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, wReq.URL, body)
	if err != nil {
		return nil, err
	}

	// Set common headers
	req.Header.Set("User-Agent", DefaultUserAgent)
	req.Header.Set("Accept-Language", "en")

	for _, h := range wReq.Headers {
		req.Header.Set(h.Name, h.Value)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	return &WHTTPRes{
		StatusCode:     resp.StatusCode,
		ResponseLength: len(bodyBytes),
		ContentType:    resp.Header.Get("Content-Type"),
		BodyString:     string(bodyBytes),
	}, nil
}
