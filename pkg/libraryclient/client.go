// Package libraryclient talks to the library REST API on behalf of a session.
package libraryclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"librarydesk/pkg/session"
)

const (
	defaultTimeout  = 10 * time.Second
	maxResponseBody = 4 << 20
	tracerName      = "librarydesk/libraryclient"
)

// Config configures a Client. Zero values fall back to defaults.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Tracer     trace.Tracer
}

// Client calls the library API. It is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tracer     trace.Tracer
}

// APIError is a failed API call: an HTTP error status or a success=false envelope.
type APIError struct {
	Status  int
	Message string
	Code    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("library api: status %d", e.Status)
	}
	return e.Message
}

// MessageOf returns the user-facing message carried by err, or fallback when the
// error has none (transport failures, empty bodies).
func MessageOf(err error, fallback string) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && strings.TrimSpace(apiErr.Message) != "" {
		return apiErr.Message
	}
	return fallback
}

// IsStatus reports whether err is an APIError with the given HTTP status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

func New(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("libraryclient: base url is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	return &Client{baseURL: base, httpClient: httpClient, tracer: tracer}, nil
}

// BaseURL is the API root without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// CoverURL resolves a book cover reference against this client's API root.
func (c *Client) CoverURL(ref string) string {
	return CoverURL(c.baseURL, ref)
}

// do sends one request and returns the raw body of a successful response.
func (c *Client) do(ctx context.Context, op, method, path string, sess session.Session, payload any) ([]byte, error) {
	ctx, span := c.tracer.Start(ctx, op, trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.path", path),
		))
	defer span.End()

	body, err := c.roundTrip(ctx, method, path, sess, payload, span)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetStatus(codes.Ok, "")
	return body, nil
}

func (c *Client) roundTrip(ctx context.Context, method, path string, sess session.Session, payload any, span trace.Span) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	addAuthHeader(req, sess.Token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, errorFromBody(resp, body)
	}
	return body, nil
}

func errorFromBody(resp *http.Response, body []byte) *APIError {
	var errResp struct {
		Message string `json:"message"`
		Error   string `json:"error"`
		Code    string `json:"code"`
	}
	_ = json.Unmarshal(body, &errResp)
	msg := strings.TrimSpace(errResp.Message)
	if msg == "" {
		msg = strings.TrimSpace(errResp.Error)
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &APIError{Status: resp.StatusCode, Message: msg, Code: strings.TrimSpace(errResp.Code)}
}

func addAuthHeader(req *http.Request, token string) {
	if strings.TrimSpace(token) == "" {
		return
	}
	req.Header.Set("Authorization", "Bearer "+token)
}
