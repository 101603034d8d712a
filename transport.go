package goquerycache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	headerAuthorization = "Authorization"
	headerContentType   = "Content-Type"
	headerAccept        = "Accept"
	headerETAG          = "etag"
	headerIfNoneMatch   = "If-None-Match"

	headerLastModified    = "Last-Modified"
	headerIfModifiedSince = "If-Modified-Since"

	contentTypeJSON = "application/json"
)

const tracerName = "github.com/dgduncan/go-query-cache"

// Executor sends a Request to the backend and returns its JSON payload.
type Executor interface {
	Execute(ctx context.Context, r Request) (json.RawMessage, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, r Request) (json.RawMessage, error)

func (f ExecutorFunc) Execute(ctx context.Context, r Request) (json.RawMessage, error) {
	return f(ctx, r)
}

// RequestError is the failure payload stored on rejected entries and
// returned from failed mutations. StatusCode is zero when the request never
// got a response.
type RequestError struct {
	Endpoint   string
	Method     string
	Path       string
	StatusCode int
	Body       json.RawMessage
	Err        error
}

func (e *RequestError) Error() string {
	var b strings.Builder
	if e.Endpoint != "" {
		b.WriteString(e.Endpoint)
		b.WriteString(": ")
	}
	if e.Method != "" {
		fmt.Fprintf(&b, "%s %s: ", e.Method, e.Path)
	}
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, "status %d", e.StatusCode)
		if e.Err != nil {
			b.WriteString(": ")
		}
	}
	if e.Err != nil {
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *RequestError) Unwrap() error { return e.Err }

// TokenProvider returns the current bearer token, or "" when signed out.
type TokenProvider interface {
	AccessToken() string
}

// AuthTransport implements http.RoundTripper and attaches the provider's
// bearer token to every outgoing request.
type AuthTransport struct {
	Wrapped http.RoundTripper

	tokens TokenProvider
}

func (t *AuthTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	token := t.tokens.AccessToken()
	if token == "" {
		return t.Wrapped.RoundTrip(r)
	}

	// RoundTrippers must not modify the caller's request
	r = r.Clone(r.Context())
	r.Header.Set(headerAuthorization, "Bearer "+token)
	return t.Wrapped.RoundTrip(r)
}

// NewAuthTransport returns a middleware that wraps a RoundTripper with
// bearer token injection. The token is read on every request.
func NewAuthTransport(tokens TokenProvider) func(http.RoundTripper) http.RoundTripper {
	return func(rt http.RoundTripper) http.RoundTripper {
		if rt == nil {
			rt = http.DefaultTransport
		}
		return &AuthTransport{Wrapped: rt, tokens: tokens}
	}
}

type validator struct {
	etag         string
	lastModified *time.Time
	body         json.RawMessage
}

// HTTPExecutor executes requests against a JSON REST API rooted at a base
// URL. Successful GET responses that carry an ETag or Last-Modified header
// are remembered, and later GETs of the same URL are sent as conditional
// requests; a 304 answer yields the remembered body.
type HTTPExecutor struct {
	client  *http.Client
	baseURL *url.URL
	logger  *slog.Logger
	tracer  trace.Tracer

	mu         sync.Mutex
	validators map[string]validator
}

// HTTPExecutorOption customises an HTTPExecutor.
type HTTPExecutorOption func(*HTTPExecutor)

// WithTracerProvider sets the provider request spans are created from.
func WithTracerProvider(tp trace.TracerProvider) HTTPExecutorOption {
	return func(e *HTTPExecutor) {
		e.tracer = tp.Tracer(tracerName)
	}
}

// NewHTTPExecutor creates an executor for the API at baseURL. If client is
// nil http.DefaultClient is used; if logger is nil, logs are discarded.
func NewHTTPExecutor(client *http.Client, baseURL string, logger *slog.Logger, opts ...HTTPExecutorOption) (*HTTPExecutor, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", baseURL)
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}

	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	e := &HTTPExecutor{
		client:     client,
		baseURL:    u,
		logger:     logger,
		tracer:     otel.GetTracerProvider().Tracer(tracerName),
		validators: make(map[string]validator),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Execute implements Executor.
func (e *HTTPExecutor) Execute(ctx context.Context, r Request) (json.RawMessage, error) {
	method := r.Method
	if method == "" {
		method = http.MethodGet
	}

	target := e.resolve(r)

	ctx, span := e.tracer.Start(ctx, method+" "+r.Path, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("http.request.method", method),
		attribute.String("url.full", target),
	)

	fail := func(status int, body json.RawMessage, err error) (json.RawMessage, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, &RequestError{
			Method:     method,
			Path:       r.Path,
			StatusCode: status,
			Body:       body,
			Err:        err,
		}
	}

	var body io.Reader
	if r.Body != nil {
		buf, err := json.Marshal(r.Body)
		if err != nil {
			return fail(0, nil, fmt.Errorf("encode body: %w", err))
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fail(0, nil, err)
	}
	req.Header.Set(headerAccept, contentTypeJSON)
	if body != nil {
		req.Header.Set(headerContentType, contentTypeJSON)
	}

	cached, conditional := e.addConditionalHeaders(req, target)

	resp, err := e.client.Do(req)
	if err != nil {
		return fail(0, nil, err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fail(resp.StatusCode, nil, fmt.Errorf("read body: %w", err))
	}

	if resp.StatusCode == http.StatusNotModified && conditional {
		e.logger.DebugContext(ctx, "response revalidated", "url", target)
		return cached.body, nil
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fail(resp.StatusCode, rawOrString(payload), errors.New(http.StatusText(resp.StatusCode)))
	}

	data := json.RawMessage("null")
	if len(bytes.TrimSpace(payload)) > 0 {
		if !json.Valid(payload) {
			return fail(resp.StatusCode, nil, errors.New("response is not valid JSON"))
		}
		data = json.RawMessage(payload)
	}

	if method == http.MethodGet {
		e.remember(ctx, target, resp, data)
	}

	return data, nil
}

func (e *HTTPExecutor) resolve(r Request) string {
	ref := &url.URL{Path: strings.TrimPrefix(r.Path, "/")}
	u := e.baseURL.ResolveReference(ref)
	if len(r.Query) > 0 {
		u.RawQuery = r.Query.Encode()
	}
	return u.String()
}

func (e *HTTPExecutor) addConditionalHeaders(req *http.Request, target string) (validator, bool) {
	if req.Method != http.MethodGet {
		return validator{}, false
	}

	e.mu.Lock()
	v, ok := e.validators[target]
	e.mu.Unlock()
	if !ok {
		return validator{}, false
	}

	if v.etag != "" {
		req.Header.Set(headerIfNoneMatch, v.etag)
	}
	if v.lastModified != nil {
		req.Header.Set(headerIfModifiedSince, v.lastModified.Format(http.TimeFormat))
	}
	return v, true
}

func (e *HTTPExecutor) remember(ctx context.Context, target string, resp *http.Response, data json.RawMessage) {
	etag := getETAGHeader(resp)
	lastModified := getLastModifiedHeader(resp)

	e.mu.Lock()
	defer e.mu.Unlock()

	if etag == "" && lastModified == nil {
		delete(e.validators, target)
		return
	}

	e.logger.DebugContext(ctx, "storing validators", "url", target, "etag", etag)
	e.validators[target] = validator{etag: etag, lastModified: lastModified, body: data}
}

func getETAGHeader(r *http.Response) string {
	return r.Header.Get(headerETAG)
}

func getLastModifiedHeader(r *http.Response) *time.Time {
	lastModified := r.Header.Get(headerLastModified)
	if lastModified == "" {
		return nil
	}
	parsedTime, err := time.Parse(http.TimeFormat, lastModified)
	if err != nil {
		return nil
	}
	return &parsedTime
}

// rawOrString keeps JSON error bodies as they are and quotes anything else.
func rawOrString(b []byte) json.RawMessage {
	if len(bytes.TrimSpace(b)) == 0 {
		return nil
	}
	if json.Valid(b) {
		return json.RawMessage(b)
	}
	quoted, _ := json.Marshal(string(b))
	return quoted
}
