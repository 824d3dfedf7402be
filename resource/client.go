package resource

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/goliatone/go-resource-sync/metrics"
)

const (
	DefaultTimeout   = 30 * time.Second
	DefaultUserAgent = "go-resource-sync"

	headerRequestID = "X-Request-ID"
)

// Request describes one call against the API. URL is either a path relative
// to the client base URL or an absolute URL.
type Request struct {
	URL    string
	Method string
	Body   any
	Query  map[string]string
	// RawBody sends a string or []byte Body verbatim as text/plain.
	RawBody bool
	// ErrorMessage replaces the message of any resulting RequestError.
	ErrorMessage string
}

// Response is a decoded API response.
type Response[T any] struct {
	Data   T
	Status int
}

// Client is the single entry point for API traffic. Auth, request ids, rate
// limiting, error normalization and request metrics are applied here for
// every call.
type Client struct {
	http    *resty.Client
	limiter *rate.Limiter
	logger  *zap.Logger
	metrics metrics.Recorder
}

type options struct {
	token     string
	timeout   time.Duration
	rateLimit float64
	burst     int
	logger    *zap.Logger
	metrics   metrics.Recorder
	transport http.RoundTripper
	userAgent string
	debug     bool
}

// Option configures a Client.
type Option func(*options)

// WithToken attaches a bearer token to every request.
func WithToken(token string) Option {
	return func(o *options) { o.token = token }
}

// WithTimeout bounds every request. Zero keeps DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithRateLimit limits outgoing requests to rps per second with the given
// burst. A non-positive rps disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(o *options) {
		o.rateLimit = rps
		o.burst = burst
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func WithMetrics(recorder metrics.Recorder) Option {
	return func(o *options) {
		if recorder != nil {
			o.metrics = recorder
		}
	}
}

// WithTransport replaces the HTTP transport, mainly for tests.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) { o.transport = rt }
}

func WithUserAgent(ua string) Option {
	return func(o *options) {
		if ua != "" {
			o.userAgent = ua
		}
	}
}

// WithDebug enables resty request/response dumps through the logger.
func WithDebug(debug bool) Option {
	return func(o *options) { o.debug = debug }
}

// New creates a Client for the API rooted at baseURL.
func New(baseURL string, opts ...Option) *Client {
	o := options{
		timeout:   DefaultTimeout,
		logger:    zap.NewNop(),
		metrics:   metrics.Noop{},
		userAgent: DefaultUserAgent,
	}
	for _, opt := range opts {
		opt(&o)
	}

	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(o.timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", o.userAgent).
		SetLogger(o.logger.Sugar()).
		SetDebug(o.debug)
	if o.token != "" {
		httpClient.SetAuthToken(o.token)
	}
	if o.transport != nil {
		httpClient.SetTransport(o.transport)
	}

	c := &Client{
		http:    httpClient,
		logger:  o.logger,
		metrics: o.metrics,
	}
	if o.rateLimit > 0 {
		burst := o.burst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(o.rateLimit), burst)
		httpClient.OnBeforeRequest(func(_ *resty.Client, r *resty.Request) error {
			return c.limiter.Wait(r.Context())
		})
	}
	return c
}

// Do performs req and returns the raw response body. Any failure, including
// a non-2xx status, is returned as a *RequestError.
func (c *Client) Do(ctx context.Context, req Request) (*Response[[]byte], error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	r := c.http.R().
		SetContext(ctx).
		SetHeader(headerRequestID, uuid.NewString())
	if len(req.Query) > 0 {
		r.SetQueryParams(req.Query)
	}
	if req.Body != nil {
		if req.RawBody {
			r.SetHeader("Content-Type", "text/plain; charset=utf-8")
		} else {
			r.SetHeader("Content-Type", "application/json")
		}
		r.SetBody(req.Body)
	}

	start := time.Now()
	resp, err := r.Execute(method, req.URL)
	elapsed := time.Since(start)

	if err != nil {
		c.metrics.Request(method, 0, elapsed)
		c.logger.Debug("request failed",
			zap.String("method", method),
			zap.String("url", req.URL),
			zap.Duration("duration", elapsed),
			zap.Error(err),
		)
		return nil, c.override(&RequestError{
			Kind:    KindNetwork,
			Message: err.Error(),
			Method:  method,
			URL:     req.URL,
			Err:     err,
		}, req)
	}

	status := resp.StatusCode()
	c.metrics.Request(method, status, elapsed)
	c.logger.Debug("request completed",
		zap.String("method", method),
		zap.String("url", req.URL),
		zap.Int("status", status),
		zap.Duration("duration", elapsed),
	)

	if !resp.IsSuccess() {
		return nil, c.override(statusError(method, req.URL, status, errorMessage(status, resp.Body())), req)
	}
	return &Response[[]byte]{Data: resp.Body(), Status: status}, nil
}

func (c *Client) override(err *RequestError, req Request) *RequestError {
	if req.ErrorMessage != "" {
		err.Message = req.ErrorMessage
	}
	return err
}

// Fetch performs req and decodes the JSON response body into T. An empty
// body yields the zero T.
func Fetch[T any](ctx context.Context, c *Client, req Request) (Response[T], error) {
	raw, err := c.Do(ctx, req)
	if err != nil {
		return Response[T]{}, err
	}

	out := Response[T]{Status: raw.Status}
	if len(raw.Data) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw.Data, &out.Data); err != nil {
		method := req.Method
		if method == "" {
			method = http.MethodGet
		}
		return Response[T]{}, &RequestError{
			Kind:       KindDecode,
			StatusCode: raw.Status,
			Message:    "decode response: " + err.Error(),
			Method:     method,
			URL:        req.URL,
			Err:        err,
		}
	}
	return out, nil
}

// errorMessage extracts a human readable message from an error body. JSON
// bodies with a message, error or detail field are unwrapped; anything else
// is used as is.
func errorMessage(status int, body []byte) string {
	text := strings.TrimSpace(string(body))
	if text == "" {
		return http.StatusText(status)
	}

	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
		Detail  string `json:"detail"`
	}
	if json.Unmarshal(body, &payload) == nil {
		for _, msg := range []string{payload.Message, payload.Error, payload.Detail} {
			if msg != "" {
				return msg
			}
		}
	}
	return text
}
