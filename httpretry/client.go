// Package httpretry fetches JSON over HTTP through a retryable.Controller.
//
// 2xx bodies are decoded as JSON; a body that is not JSON yields a nil payload rather
// than an error. Responses with status 400 and above fail the run at once, other
// non-2xx responses and transport errors are retried.
package httpretry

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/bjaus/retryable"
)

// DefaultRequestIDHeader carries a fresh id on every attempt.
const DefaultRequestIDHeader = "X-Request-ID"

// ValidateFunc inspects a decoded 2xx payload and reports whether it is acceptable.
type ValidateFunc func(payload any) bool

// FetchOptions adjusts a single fetch.
type FetchOptions struct {
	// Validate rejects otherwise successful responses.
	Validate ValidateFunc
	// ValidationError is the message of the error produced by a rejected payload.
	ValidationError string
}

// Client issues HTTP requests with retry. Safe for concurrent use.
type Client struct {
	http              *http.Client
	limiter           *rate.Limiter
	logger            zerolog.Logger
	requestIDHeader   string
	newRequestID      func() string
	retryOpts         []retryable.Option
	retryOnValidation bool
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout sets the per-attempt timeout of the default HTTP client.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			hc := *c.http
			hc.Timeout = d
			c.http = &hc
		}
	}
}

// WithRateLimiter makes every attempt wait for l first.
func WithRateLimiter(l *rate.Limiter) ClientOption {
	return func(c *Client) {
		c.limiter = l
	}
}

// WithLogger sets the logger for the client and its controllers.
func WithLogger(l zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = l
	}
}

// WithRequestIDHeader changes the header carrying the per-attempt request id.
func WithRequestIDHeader(header string) ClientOption {
	return func(c *Client) {
		if header != "" {
			c.requestIDHeader = header
		}
	}
}

// WithRequestIDFunc replaces the request id generator.
func WithRequestIDFunc(fn func() string) ClientOption {
	return func(c *Client) {
		if fn != nil {
			c.newRequestID = fn
		}
	}
}

// WithRetryOptions sets the controller options applied to every fetch. Options passed
// to a single call come after these.
func WithRetryOptions(opts ...retryable.Option) ClientOption {
	return func(c *Client) {
		c.retryOpts = append(c.retryOpts, opts...)
	}
}

// WithRetryOnValidationFailure makes payloads rejected by FetchOptions.Validate
// retryable instead of terminal.
func WithRetryOnValidationFailure(retry bool) ClientOption {
	return func(c *Client) {
		c.retryOnValidation = retry
	}
}

// NewClient creates a Client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		http:            &http.Client{Timeout: 30 * time.Second},
		logger:          zerolog.Nop(),
		requestIDHeader: DefaultRequestIDHeader,
		newRequestID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch performs req with retry and returns the decoded JSON payload.
// Pass retryable.WithSignal among opts to make the fetch cancellable.
func (c *Client) Fetch(ctx context.Context, req Request, fo *FetchOptions, opts ...retryable.Option) (any, error) {
	req = req.Clone()
	all := make([]retryable.Option, 0, len(c.retryOpts)+len(opts)+2)
	all = append(all, retryable.WithLogger(c.logger), retryable.WithTitle(req.Method+" "+req.URL))
	all = append(all, c.retryOpts...)
	all = append(all, opts...)

	return retryable.DoValue(ctx, func(ctx context.Context) (any, error) {
		return c.do(ctx, req, fo)
	}, all...)
}

// Get fetches url with retry.
func (c *Client) Get(ctx context.Context, url string, fo *FetchOptions, opts ...retryable.Option) (any, error) {
	return c.Fetch(ctx, GET(url), fo, opts...)
}

// PostJSON posts data as JSON to url with retry.
func (c *Client) PostJSON(ctx context.Context, url string, fo *FetchOptions, data any, opts ...retryable.Option) (any, error) {
	req, err := POSTJSON(url, data)
	if err != nil {
		return nil, err
	}
	return c.Fetch(ctx, req, fo, opts...)
}

// FetchOnce performs req a single time, without delay, through the same controller
// machinery as Fetch so that signals and error classification still apply.
func (c *Client) FetchOnce(ctx context.Context, req Request, opts ...retryable.Option) (any, error) {
	once := append(append([]retryable.Option{}, opts...),
		retryable.WithMaxAttempts(1),
		retryable.WithDelay(retryable.NoDelay),
	)
	return c.Fetch(ctx, req, nil, once...)
}

// GetOnce fetches url a single time.
func (c *Client) GetOnce(ctx context.Context, url string, opts ...retryable.Option) (any, error) {
	return c.FetchOnce(ctx, GET(url), opts...)
}

// PostJSONOnce posts data as JSON to url a single time.
func (c *Client) PostJSONOnce(ctx context.Context, url string, data any, opts ...retryable.Option) (any, error) {
	req, err := POSTJSON(url, data)
	if err != nil {
		return nil, err
	}
	return c.FetchOnce(ctx, req, opts...)
}

// do performs one attempt.
func (c *Client) do(ctx context.Context, req Request, fo *FetchOptions) (any, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, retryable.Stop(fmt.Errorf("httpretry: rate limiter: %w", err))
		}
	}

	hreq, err := req.build(ctx)
	if err != nil {
		return nil, retryable.Stop(err)
	}
	requestID := c.newRequestID()
	hreq.Header.Set(c.requestIDHeader, requestID)

	log := c.logger.With().
		Str("method", hreq.Method).
		Str("url", req.URL).
		Str("request_id", requestID).
		Logger()

	start := time.Now()
	resp, err := c.http.Do(hreq)
	if err != nil {
		log.Debug().Err(err).Dur("elapsed", time.Since(start)).Msg("request failed")
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("httpretry: read body: %w", err)
	}

	log.Debug().
		Int("status", resp.StatusCode).
		Int("bytes", len(body)).
		Dur("elapsed", time.Since(start)).
		Msg("response received")

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &StatusError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Message:    errorMessage(body, resp.Status),
			Body:       body,
			Header:     resp.Header,
		}
	}

	payload := decode(body)
	if fo != nil && fo.Validate != nil && !fo.Validate(payload) {
		return nil, &ValidationError{
			Message:   fo.ValidationError,
			Payload:   payload,
			resumable: c.retryOnValidation,
		}
	}
	return payload, nil
}

// decode parses body as JSON, returning nil for anything that does not parse.
func decode(body []byte) any {
	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil
	}
	return payload
}
