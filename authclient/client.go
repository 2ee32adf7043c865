package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const (
	defaultTimeout = 20 * time.Second

	// maxResponseBytes bounds response reads; auth payloads are small
	maxResponseBytes = 1 << 20
)

// Client wraps the Capture auth backend's REST surface. It is stateless:
// tokens are passed per call and never cached here. Methods never retry;
// retry policy belongs to the session layer.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client (primarily for testing)
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTimeout sets the per-request timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// New creates an auth API client for the given base URL
func New(baseURL string, opts ...ClientOption) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, configErrorf("base URL is required")
	}

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// errorBody is the backend's error envelope
type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// do executes one JSON request. A non-nil body is encoded as JSON; a
// non-nil out receives the decoded response. accessToken, when set, is
// sent as a bearer credential.
func (c *Client) do(ctx context.Context, method, path string, body any, out any, accessToken string) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return &Error{Kind: KindUnknown, Message: "failed to encode request", cause: err}
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return &Error{Kind: KindUnknown, Message: "failed to create request", cause: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyTransport(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &Error{Kind: KindNetwork, Message: "failed to read response", cause: err}
	}

	if resp.StatusCode >= 400 {
		return classifyStatus(resp.StatusCode, raw)
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return &Error{
				Kind:       KindUnknown,
				Message:    "malformed response body",
				HTTPStatus: resp.StatusCode,
				cause:      err,
			}
		}
	}
	return nil
}

func classifyTransport(err error) *Error {
	switch {
	case errors.Is(err, context.Canceled):
		return &Error{Kind: KindCancelled, Message: "request cancelled", cause: err}
	case errors.Is(err, context.DeadlineExceeded):
		return &Error{Kind: KindNetwork, Message: "request timed out", cause: err}
	default:
		return &Error{Kind: KindNetwork, Message: "network request failed", cause: err}
	}
}

// classifyStatus maps an error response onto the Kind taxonomy. The
// backend's own code wins over the HTTP status: an invalid refresh
// token is unauthenticated regardless of how it was transported.
func classifyStatus(status int, raw []byte) *Error {
	var body errorBody
	_ = json.Unmarshal(raw, &body)

	e := &Error{
		Code:       body.Error.Code,
		Message:    body.Error.Message,
		HTTPStatus: status,
	}
	if e.Message == "" {
		e.Message = strings.ToLower(http.StatusText(status))
	}

	switch {
	case e.Code == CodeInvalidRefreshToken:
		e.Kind = KindUnauthenticated
	case status == http.StatusUnauthorized:
		e.Kind = KindUnauthenticated
	case status == http.StatusBadRequest,
		status == http.StatusNotFound,
		status == http.StatusConflict,
		status == http.StatusUnprocessableEntity:
		e.Kind = KindValidation
	case status >= 500:
		e.Kind = KindServer
	default:
		e.Kind = KindUnknown
	}
	return e
}
