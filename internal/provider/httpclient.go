package provider

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

	"github.com/jmehdipour/sms-bridge/internal/metrics"
	"github.com/jmehdipour/sms-bridge/internal/model"
)

// HTTPError is a non-2xx vendor response.
type HTTPError struct {
	Provider   string
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("provider=%s %s %s status=%d body=%q", e.Provider, e.Method, e.Path, e.StatusCode, e.Body)
}

// ClientError reports 4xx responses: the vendor refused the request and
// retrying it unchanged will not help.
func (e *HTTPError) ClientError() bool { return e.StatusCode >= 400 && e.StatusCode < 500 }

// HTTPClient is the JSON transport shared by the HTTP vendors: base URL,
// per-request timeout, basic auth and a circuit breaker.
type HTTPClient struct {
	name     string
	baseURL  string
	username string
	password string
	client   *http.Client
	br       *MicroBreaker
}

type HTTPClientOpts struct {
	Name          string
	BaseURL       string
	Username      string
	Password      string
	TimeoutMs     int
	FailThreshold int
	OpenForMs     int
	Client        *http.Client // optional, tests pass httptest clients
}

func NewHTTPClient(o HTTPClientOpts) *HTTPClient {
	if o.TimeoutMs <= 0 {
		o.TimeoutMs = 10000
	}
	if o.FailThreshold <= 0 {
		o.FailThreshold = 3
	}
	if o.OpenForMs <= 0 {
		o.OpenForMs = 15000
	}
	c := o.Client
	if c == nil {
		c = &http.Client{}
	}
	c.Timeout = time.Duration(o.TimeoutMs) * time.Millisecond

	return &HTTPClient{
		name:     o.Name,
		baseURL:  strings.TrimRight(o.BaseURL, "/"),
		username: o.Username,
		password: o.Password,
		client:   c,
		br:       NewMicroBreaker(o.FailThreshold, time.Duration(o.OpenForMs)*time.Millisecond),
	}
}

func (c *HTTPClient) Breaker() *MicroBreaker { return c.br }

// Do sends in as JSON (when non-nil) and decodes the response into out (when
// non-nil). Transport errors and 5xx responses count against the breaker;
// 4xx responses do not.
func (c *HTTPClient) Do(ctx context.Context, op, method, path string, in, out any) error {
	err := c.br.Call(func() error {
		return c.do(ctx, method, path, in, out)
	}, countsAgainstBreaker)

	result := "ok"
	switch {
	case errors.Is(err, ErrUnavailable):
		result = "breaker_open"
	case err != nil:
		result = "error"
	}
	metrics.VendorRequests.WithLabelValues(c.name, op, result).Inc()
	return err
}

func countsAgainstBreaker(err error) bool {
	var he *HTTPError
	if errors.As(err, &he) {
		return !he.ClientError()
	}
	return true
}

func (c *HTTPClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.username != "" || c.password != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	res, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode/100 != 2 {
		snippet, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return &HTTPError{Provider: c.name, Method: method, Path: path, StatusCode: res.StatusCode, Body: string(snippet)}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, res.Body)
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// SendError classifies a vendor send failure into the provider sentinels.
func SendError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrUnavailable) {
		return err
	}
	var he *HTTPError
	if errors.As(err, &he) && he.ClientError() {
		return fmt.Errorf("%w: %v", ErrRejected, err)
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

// MapVendorStatus folds the usual vendor status vocabularies into ours.
// Only an explicit "unknown" is terminal Unknown; empty or unrecognised
// words keep the message pending.
func MapVendorStatus(s string) model.MessageStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "delivered", "read", "ok", "success":
		return model.StatusDelivered
	case "failed", "expired", "rejected", "undeliverable", "undelivered", "error", "cancelled", "canceled":
		return model.StatusFailed
	case "unknown":
		return model.StatusUnknown
	default:
		return model.StatusPending
	}
}

// Healthy reports the breaker: an open breaker means sends fail fast.
func (c *HTTPClient) Healthy() (bool, string) {
	st := c.br.State()
	return st != open.String(), "breaker " + st
}
