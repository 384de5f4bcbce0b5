package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
)

const defaultTimeout = 20 * time.Second

// DefaultUserAgent is sent when no user agent is configured.
const DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

// ClientConfig controls collector behavior.
type ClientConfig struct {
	UserAgent     string
	RespectRobots bool
	Timeout       time.Duration
	Transport     http.RoundTripper
}

// Response is the part of a colly response callers inspect.
type Response struct {
	URL         string
	StatusCode  int
	ContentType string
	Body        []byte
}

// Client issues one request at a time on clones of a base collector.
// Every status code is delivered as a Response; only transport failures are errors.
type Client struct {
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// NewClient builds a Client.
func NewClient(cfg ClientConfig) *Client {
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	c := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
		colly.UserAgent(userAgent),
	)
	c.IgnoreRobotsTxt = !cfg.RespectRobots

	transport := cfg.Transport
	if transport == nil {
		transport = newHTTPTransport()
	}
	c.WithTransport(transport)

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c.SetRequestTimeout(timeout)

	return &Client{baseCollector: c}
}

// Get issues a GET, following redirects.
func (c *Client) Get(ctx context.Context, url string) (Response, error) {
	return c.do(ctx, url, func(collector *colly.Collector) error {
		return collector.Visit(url)
	})
}

// PostForm issues a form-encoded POST.
func (c *Client) PostForm(ctx context.Context, url string, form map[string]string) (Response, error) {
	return c.do(ctx, url, func(collector *colly.Collector) error {
		return collector.Post(url, form)
	})
}

func (c *Client) do(ctx context.Context, url string, send func(*colly.Collector) error) (Response, error) {
	var (
		result   Response
		fetchErr error
	)
	collector := c.baseCollector.Clone()
	collector.Context = ctx
	configureCollectorHooks(collector, &result, &fetchErr)

	done := make(chan error, 1)
	go func() {
		done <- send(collector)
	}()

	select {
	case <-ctx.Done():
		return Response{}, fmt.Errorf("colly request canceled: %w", ctx.Err())
	case err := <-done:
		if fetchErr != nil {
			return Response{}, fmt.Errorf("colly response failed: %w", fetchErr)
		}
		if err != nil {
			return Response{}, fmt.Errorf("colly request %s failed: %w", url, err)
		}
		if result.StatusCode == 0 {
			return Response{}, fmt.Errorf("colly request %s: no response", url)
		}
		return result, nil
	}
}

func configureCollectorHooks(hooks collectorHooks, result *Response, fetchErr *error) {
	hooks.OnResponse(func(r *colly.Response) {
		contentType := ""
		if r.Headers != nil {
			contentType = r.Headers.Get("Content-Type")
		}
		finalURL := ""
		if r.Request != nil && r.Request.URL != nil {
			finalURL = r.Request.URL.String()
		}
		*result = Response{
			URL:         finalURL,
			StatusCode:  r.StatusCode,
			ContentType: contentType,
			Body:        append([]byte(nil), r.Body...),
		}
	})

	hooks.OnError(func(_ *colly.Response, err error) {
		*fetchErr = err
	})
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
