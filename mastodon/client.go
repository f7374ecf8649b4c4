// Package mastodon is a small REST client for Mastodon-compatible
// instances. It covers application registration, the OAuth grants, and
// the handful of read/write endpoints the session needs.
package mastodon

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/alexjbarnes/fedi-client/internal/models"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	// maxRedirects is the maximum number of HTTP redirects to follow
	// before giving up, matching the default net/http limit.
	maxRedirects = 10

	// httpClientTimeout is the timeout for the default HTTP client used
	// by the API client when no custom client is provided.
	httpClientTimeout = 30 * time.Second

	// maxAPIResponseBytes caps response body reads to prevent a
	// misbehaving server from consuming unbounded memory.
	maxAPIResponseBytes = 4 * 1024 * 1024

	userAgent = "fedi-client/1.0"
)

// APIError is a non-success response from the instance.
type APIError struct {
	Endpoint    string
	StatusCode  int
	Code        string
	Description string
}

func (e *APIError) Error() string {
	msg := e.Code
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}

	if e.Description != "" && e.Description != msg {
		msg += ": " + e.Description
	}

	return fmt.Sprintf("API %s (%d): %s", e.Endpoint, e.StatusCode, msg)
}

// HTTPStatus returns the response status code.
func (e *APIError) HTTPStatus() int { return e.StatusCode }

// Client talks to a single instance's REST API. A Client built with
// WithAccessToken sends that token as a bearer credential on every call.
type Client struct {
	// plain never carries a bearer token; it is used for the token
	// endpoint and as the base of the authorized client.
	plain      *http.Client
	httpClient *http.Client
	baseURL    string
	token      string
	limiter    *rate.Limiter
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying http.Client (timeouts, TLS, proxies).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.plain = hc
		}
	}
}

// WithAccessToken binds the client to a bearer token.
func WithAccessToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// WithLimiter paces outgoing requests. Share one limiter between the
// anonymous and authorized clients of a session.
func WithLimiter(l *rate.Limiter) Option {
	return func(c *Client) {
		c.limiter = l
	}
}

// WithTimeout sets the per-request timeout. A client passed through
// WithHTTPClient is copied first and left untouched.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			hc := *c.plain
			hc.Timeout = d
			c.plain = &hc
		}
	}
}

// WithBaseURL overrides the https://<hostname> base, e.g. for a plain
// http development instance.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = u
	}
}

// sameHostRedirectPolicy follows redirects only when the target host
// matches the original request host, so bearer tokens never reach a
// third-party domain.
func sameHostRedirectPolicy(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return errors.New("stopped after 10 redirects")
	}

	if len(via) > 0 {
		origHost := via[0].URL.Host
		if req.URL.Host != origHost {
			return fmt.Errorf("redirect to different host blocked: %s -> %s", origHost, req.URL.Host)
		}
	}

	return nil
}

// NewClient creates a client for hostname. Without WithHTTPClient a
// client with a 30-second timeout and same-host redirect policy is used.
func NewClient(hostname string, opts ...Option) *Client {
	c := &Client{
		plain: &http.Client{
			Timeout:       httpClientTimeout,
			CheckRedirect: sameHostRedirectPolicy,
		},
		baseURL: "https://" + hostname,
	}

	for _, opt := range opts {
		opt(c)
	}

	c.httpClient = c.plain
	if c.token != "" {
		c.httpClient = &http.Client{
			Timeout:       c.plain.Timeout,
			CheckRedirect: c.plain.CheckRedirect,
			Jar:           c.plain.Jar,
			Transport: &oauth2.Transport{
				Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: c.token, TokenType: "Bearer"}),
				Base:   c.plain.Transport,
			},
		}
	}

	return c
}

// Authorized reports whether the client carries a bearer token.
func (c *Client) Authorized() bool {
	return c.token != ""
}

// sanitizeResponseBody truncates and sanitizes a response body for
// inclusion in error messages. Limits to 256 bytes and replaces
// non-printable characters to prevent log injection.
func sanitizeResponseBody(body []byte) string {
	const maxLen = 256
	if len(body) > maxLen {
		body = body[:maxLen]
	}

	var clean []byte

	for len(body) > 0 {
		r, size := utf8.DecodeRune(body)
		if r == utf8.RuneError && size <= 1 {
			clean = append(clean, '?')
			body = body[1:]

			continue
		}

		if r < 0x20 && r != '\n' && r != '\r' && r != '\t' {
			clean = append(clean, '?')
		} else {
			clean = append(clean, body[:size]...)
		}

		body = body[size:]
	}

	return string(clean)
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("waiting for rate limiter: %w", err)
	}

	return nil
}

// do sends a request and returns the raw response body. body is JSON
// encoded when non-nil. Any non-2xx status becomes an *APIError.
func (c *Client) do(ctx context.Context, method, endpoint string, query url.Values, body interface{}, header http.Header) ([]byte, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	var reqBody io.Reader

	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshalling request body: %w", err)
		}

		reqBody = bytes.NewReader(payload)
	}

	u := c.baseURL + endpoint
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request to %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxAPIResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("reading response from %s: %w", endpoint, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newAPIError(endpoint, resp.StatusCode, respBody)
	}

	return respBody, nil
}

// doJSON is do followed by decoding the body into result.
func (c *Client) doJSON(ctx context.Context, method, endpoint string, query url.Values, body, result interface{}, header http.Header) error {
	respBody, err := c.do(ctx, method, endpoint, query, body, header)
	if err != nil {
		return err
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decoding response from %s: %w", endpoint, err)
		}
	}

	return nil
}

// newAPIError extracts Mastodon's {"error": ..., "error_description": ...}
// body when present and falls back to a sanitized body excerpt.
func newAPIError(endpoint string, status int, body []byte) *APIError {
	apiErr := &APIError{Endpoint: endpoint, StatusCode: status}

	if gjson.ValidBytes(body) {
		apiErr.Code = gjson.GetBytes(body, "error").String()
		apiErr.Description = gjson.GetBytes(body, "error_description").String()
	}

	if apiErr.Code == "" && len(body) > 0 && !gjson.ValidBytes(body) {
		apiErr.Description = sanitizeResponseBody(body)
	}

	return apiErr
}

// CreateApplication registers a client application with the instance.
func (c *Client) CreateApplication(ctx context.Context, name, redirect, website, scope string) (*models.Application, error) {
	req := CreateAppRequest{
		ClientName:   name,
		RedirectURIs: redirect,
		Scopes:       scope,
		Website:      website,
	}

	var app models.Application
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/apps", nil, req, &app, nil); err != nil {
		return nil, fmt.Errorf("creating application: %w", err)
	}

	if app.Scope == "" {
		app.Scope = scope
	}

	return &app, nil
}

// VerifyAppCredentials returns the application the bearer token belongs to.
func (c *Client) VerifyAppCredentials(ctx context.Context) (*models.Application, error) {
	var app models.Application
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/apps/verify_credentials", nil, nil, &app, nil); err != nil {
		return nil, fmt.Errorf("verifying app credentials: %w", err)
	}

	return &app, nil
}

// RegisterAccount creates a user account. The client must carry a
// request token. The returned token authorizes the new user.
func (c *Client) RegisterAccount(ctx context.Context, req RegisterRequest) (*models.Token, error) {
	var tok models.Token
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/accounts", nil, req, &tok, nil); err != nil {
		return nil, fmt.Errorf("registering account: %w", err)
	}

	return &tok, nil
}

// InstanceRules returns the instance's rules in server order.
func (c *Client) InstanceRules(ctx context.Context) ([]string, error) {
	body, err := c.do(ctx, http.MethodGet, "/api/v1/instance/rules", nil, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("fetching instance rules: %w", err)
	}

	if !gjson.ValidBytes(body) || !gjson.ParseBytes(body).IsArray() {
		return nil, fmt.Errorf("decoding response from /api/v1/instance/rules: expected array")
	}

	var rules []string
	for _, r := range gjson.GetBytes(body, "#.text").Array() {
		rules = append(rules, r.String())
	}

	return rules, nil
}

// VerifyUserCredentials returns the account the bearer token belongs to.
func (c *Client) VerifyUserCredentials(ctx context.Context) (*models.Account, error) {
	var acct models.Account
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/accounts/verify_credentials", nil, nil, &acct, nil); err != nil {
		return nil, fmt.Errorf("verifying user credentials: %w", err)
	}

	return &acct, nil
}

// HomeTimeline returns the first page of the user's home timeline.
func (c *Client) HomeTimeline(ctx context.Context) ([]models.Status, error) {
	var statuses []models.Status
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/timelines/home", nil, nil, &statuses, nil); err != nil {
		return nil, fmt.Errorf("fetching home timeline: %w", err)
	}

	return statuses, nil
}

// PublicTimeline returns the first page of the federated timeline.
func (c *Client) PublicTimeline(ctx context.Context) ([]models.Status, error) {
	var statuses []models.Status
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/timelines/public", nil, nil, &statuses, nil); err != nil {
		return nil, fmt.Errorf("fetching public timeline: %w", err)
	}

	return statuses, nil
}

// SearchAccounts looks up accounts matching query.
func (c *Client) SearchAccounts(ctx context.Context, query string, limit int) ([]models.Account, error) {
	q := url.Values{
		"q":     {query},
		"limit": {strconv.Itoa(limit)},
	}

	var accounts []models.Account
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/accounts/search", q, nil, &accounts, nil); err != nil {
		return nil, fmt.Errorf("searching accounts: %w", err)
	}

	return accounts, nil
}

// PostStatus publishes a status. Each call carries a fresh
// Idempotency-Key so a transport-level resend cannot double-post.
func (c *Client) PostStatus(ctx context.Context, text string) (*models.Status, error) {
	var st models.Status
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/statuses", nil, PostStatusRequest{Status: text}, &st, idempotencyHeader()); err != nil {
		return nil, fmt.Errorf("posting status: %w", err)
	}

	return &st, nil
}

// ScheduleStatus queues a status for publication at the given time.
func (c *Client) ScheduleStatus(ctx context.Context, text string, at time.Time) (*models.ScheduledStatus, error) {
	req := PostStatusRequest{
		Status:      text,
		ScheduledAt: at.UTC().Format(time.RFC3339),
	}

	var resp scheduledStatusResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/statuses", nil, req, &resp, idempotencyHeader()); err != nil {
		return nil, fmt.Errorf("scheduling status: %w", err)
	}

	return resp.model(), nil
}

func idempotencyHeader() http.Header {
	return http.Header{"Idempotency-Key": []string{uuid.NewString()}}
}
