package facebook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fbpage-agent/internal/config"
	"github.com/fbpage-agent/pkg/logger"
	"github.com/fbpage-agent/pkg/ratelimit"
)

const (
	defaultBaseURL      = "https://graph.facebook.com"
	defaultGraphVersion = "v19.0"
)

// Client handles Graph API requests. Every call takes the access token of the
// page or user it acts for; the client itself holds no credentials.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	version     string
	rateLimiter *ratelimit.MultiLimiter
	location    *time.Location
	log         *logger.Logger
}

// Option configures a Client
type Option func(*Client)

// WithBaseURL points the client at a different Graph host
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient replaces the underlying http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLocation sets the zone insights hours are converted into
func WithLocation(loc *time.Location) Option {
	return func(c *Client) { c.location = loc }
}

// NewClient creates a new Graph API client
func NewClient(cfg config.FacebookConfig, limiter *ratelimit.MultiLimiter, log *logger.Logger, opts ...Option) *Client {
	version := cfg.GraphVersion
	if version == "" {
		version = defaultGraphVersion
	}
	c := &Client{
		// uploads of large videos can take a while; the run loop imposes no deadline of its own
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
		baseURL:     defaultBaseURL,
		version:     version,
		rateLimiter: limiter,
		location:    time.Local,
		log:         log.WithComponent("facebook"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// do performs an authenticated Graph request
func (c *Client) do(ctx context.Context, method, path, token string, body io.Reader, contentType string) (*http.Response, error) {
	if c.rateLimiter != nil {
		if err := c.rateLimiter.Wait(ctx, ratelimit.LimiterGraph); err != nil {
			return nil, fmt.Errorf("rate limit error: %w", err)
		}
	}

	endpoint := c.baseURL + "/" + c.version + path
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	c.log.Debug().
		Str("method", method).
		Str("path", path).
		Msg("Making Graph API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	c.log.Debug().
		Int("status", resp.StatusCode).
		Str("path", path).
		Msg("Graph API response")

	return resp, nil
}

// get issues a GET with query parameters and decodes the JSON response into out
func (c *Client) get(ctx context.Context, path, token string, query url.Values, out interface{}) error {
	if len(query) > 0 {
		path += "?" + query.Encode()
	}
	resp, err := c.do(ctx, http.MethodGet, path, token, nil, "")
	if err != nil {
		return err
	}
	return decode(resp, out)
}

// postForm issues a form-encoded POST
func (c *Client) postForm(ctx context.Context, path, token string, form url.Values, out interface{}) error {
	resp, err := c.do(ctx, http.MethodPost, path, token,
		strings.NewReader(form.Encode()), "application/x-www-form-urlencoded")
	if err != nil {
		return err
	}
	return decode(resp, out)
}

// postMultipart uploads data as the "source" file next to the given fields
func (c *Client) postMultipart(ctx context.Context, path, token string, fields url.Values, fileName string, data []byte, out interface{}) error {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	for key, values := range fields {
		for _, v := range values {
			if err := writer.WriteField(key, v); err != nil {
				return fmt.Errorf("failed to write field %s: %w", key, err)
			}
		}
	}

	part, err := writer.CreateFormFile("source", fileName)
	if err != nil {
		return fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return fmt.Errorf("failed to write media: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, path, token, body, writer.FormDataContentType())
	if err != nil {
		return err
	}
	return decode(resp, out)
}

// decode reads the response, turning Graph error envelopes into *APIError
func decode(resp *http.Response, out interface{}) error {
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return parseAPIError(resp.StatusCode, body)
	}

	// Graph occasionally reports failures with a 200 status
	if bytes.Contains(body, []byte(`"error"`)) {
		var env errorEnvelope
		if json.Unmarshal(body, &env) == nil && env.Error != nil && env.Error.Message != "" {
			env.Error.Status = resp.StatusCode
			return env.Error
		}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("malformed Graph response: %w", err)
	}
	return nil
}
