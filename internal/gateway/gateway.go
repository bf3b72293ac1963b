// Package gateway is the HTTP boundary to the storage-management (SM) and
// traffic-control (TC) services.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// ErrRemoteCallFailed matches every error produced by Send.
var ErrRemoteCallFailed = errors.New("remote call failed")

// RemoteCallError describes a failed call: either a transport failure (Err
// set, StatusCode zero) or a non-2xx response.
type RemoteCallError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
	Err        error
}

func (e *RemoteCallError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

func (e *RemoteCallError) Unwrap() error {
	return e.Err
}

func (e *RemoteCallError) Is(target error) bool {
	return target == ErrRemoteCallFailed
}

// Request is a single call to a remote service.
type Request struct {
	Method string
	URL    string
	// Body is encoded as JSON when non-nil.
	Body    any
	Query   url.Values
	Headers http.Header
	// Timeout overrides the client default when positive.
	Timeout time.Duration
}

// Response is a successful (2xx) reply.
type Response struct {
	StatusCode int
	Body       []byte
}

// Decode unmarshals the response body into v.
func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Client sends requests without retrying. Callers own their retry policy.
type Client struct {
	httpClient *http.Client
	timeout    time.Duration
	failures   metric.Int64Counter
}

// New creates a Client whose requests time out after timeout unless the
// request sets its own. A zero timeout disables the default.
func New(timeout time.Duration) *Client {
	failures, _ := otel.Meter("mosaic-gateway").Int64Counter("mosaic.gateway.failures",
		metric.WithDescription("Remote calls that failed or returned a non-2xx status"),
	)

	return &Client{
		httpClient: &http.Client{},
		timeout:    timeout,
		failures:   failures,
	}
}

// Send performs the request. Any transport error or non-2xx status is
// returned as a *RemoteCallError.
func (c *Client) Send(ctx context.Context, req Request) (*Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	target := req.URL
	if len(req.Query) > 0 {
		target = target + "?" + req.Query.Encode()
	}

	timeout := c.timeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	ctx, span := otel.Tracer("mosaic-gateway").Start(ctx, "gateway.send",
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("http.url", req.URL),
		),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	defer span.End()

	fail := func(callErr *RemoteCallError) (*Response, error) {
		span.RecordError(callErr)
		span.SetStatus(codes.Error, callErr.Error())
		if c.failures != nil {
			c.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("method", method)))
		}
		return nil, callErr
	}

	var body io.Reader
	if req.Body != nil {
		payload, err := json.Marshal(req.Body)
		if err != nil {
			return fail(&RemoteCallError{Method: method, URL: target, Err: fmt.Errorf("failed to encode body: %w", err)})
		}
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fail(&RemoteCallError{Method: method, URL: target, Err: err})
	}

	httpReq.Header.Set("Content-Type", "application/json")
	for key, values := range req.Headers {
		httpReq.Header.Del(key)
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(httpReq.Header))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fail(&RemoteCallError{Method: method, URL: target, Err: err})
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fail(&RemoteCallError{Method: method, URL: target, StatusCode: resp.StatusCode, Err: err})
	}

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fail(&RemoteCallError{
			Method:     method,
			URL:        target,
			StatusCode: resp.StatusCode,
			Body:       string(respBody),
		})
	}

	return &Response{StatusCode: resp.StatusCode, Body: respBody}, nil
}
