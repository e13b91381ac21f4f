// Package client provides a Supabase client for the ApplyFlow API.
// A Client presents the project's publishable key on every call and, once
// bound to a caller's access token, presents that token as well so row level
// security in the database is evaluated for the caller.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/R3E-Network/applyflow/internal/httputil"
)

const (
	maxResponseBytes  = 8 << 20  // 8 MiB
	maxErrorBodyBytes = 32 << 10 // 32 KiB
)

// Client is a Supabase REST API client.
type Client struct {
	baseURL     string
	apiKey      string
	accessToken string
	httpClient  *http.Client

	maxResponseBytes int64
}

// Config holds client configuration.
type Config struct {
	URL        string
	APIKey     string
	HTTPClient *http.Client
	// MaxResponseBytes bounds successful response bodies. Defaults to 8 MiB.
	MaxResponseBytes int64
}

// New creates a new Supabase client.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("URL is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("APIKey is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: 30 * time.Second,
		}
	}

	maxResponse := cfg.MaxResponseBytes
	if maxResponse <= 0 {
		maxResponse = maxResponseBytes
	}

	return &Client{
		baseURL:          strings.TrimSuffix(cfg.URL, "/"),
		apiKey:           cfg.APIKey,
		httpClient:       httpClient,
		maxResponseBytes: maxResponse,
	}, nil
}

// WithAccessToken returns a copy of the client that presents token as the
// caller's credential. The copy shares the underlying HTTP client.
func (c *Client) WithAccessToken(token string) *Client {
	bound := *c
	bound.accessToken = token
	return &bound
}

// AccessToken returns the caller token the client is bound to, if any.
func (c *Client) AccessToken() string {
	return c.accessToken
}

// =============================================================================
// Database Operations (PostgREST)
// =============================================================================

// From starts a query builder for a table.
func (c *Client) From(table string) *QueryBuilder {
	return &QueryBuilder{
		client: c,
		table:  table,
		params: url.Values{},
	}
}

// QueryBuilder builds PostgREST queries.
type QueryBuilder struct {
	client  *Client
	table   string
	columns string
	params  url.Values
	orders  []string
	limit   int
	offset  int
	count   string // exact, planned, estimated
}

// Select specifies columns to select.
func (q *QueryBuilder) Select(columns string) *QueryBuilder {
	q.columns = columns
	return q
}

func (q *QueryBuilder) filter(column, op string, value any) *QueryBuilder {
	q.params.Add(column, fmt.Sprintf("%s.%v", op, value))
	return q
}

// Eq adds an equality filter.
func (q *QueryBuilder) Eq(column string, value any) *QueryBuilder {
	return q.filter(column, "eq", value)
}

// Or adds a disjunction of filter expressions written in PostgREST logic
// tree syntax, e.g. `company.ilike."*acme*"`. Values that may contain
// separator characters must be double-quoted by the caller.
func (q *QueryBuilder) Or(expressions ...string) *QueryBuilder {
	q.params.Add("or", "("+strings.Join(expressions, ",")+")")
	return q
}

// Order adds an ORDER BY clause.
func (q *QueryBuilder) Order(column string, ascending bool) *QueryBuilder {
	dir := "asc"
	if !ascending {
		dir = "desc"
	}
	q.orders = append(q.orders, fmt.Sprintf("%s.%s", column, dir))
	return q
}

// Limit sets the LIMIT.
func (q *QueryBuilder) Limit(n int) *QueryBuilder {
	q.limit = n
	return q
}

// Offset sets the OFFSET.
func (q *QueryBuilder) Offset(n int) *QueryBuilder {
	q.offset = n
	return q
}

// Count includes count in response.
func (q *QueryBuilder) Count(countType string) *QueryBuilder {
	q.count = countType
	return q
}

func (q *QueryBuilder) url(withPaging bool) string {
	reqURL := fmt.Sprintf("%s/rest/v1/%s", q.client.baseURL, url.PathEscape(q.table))

	params := url.Values{}
	for k, vs := range q.params {
		params[k] = append([]string(nil), vs...)
	}
	if q.columns != "" {
		params.Set("select", q.columns)
	}
	if withPaging {
		if len(q.orders) > 0 {
			params.Set("order", strings.Join(q.orders, ","))
		}
		if q.limit > 0 {
			params.Set("limit", strconv.Itoa(q.limit))
		}
		if q.offset > 0 {
			params.Set("offset", strconv.Itoa(q.offset))
		}
	}

	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}
	return reqURL
}

// Execute executes a SELECT query.
func (q *QueryBuilder) Execute(ctx context.Context) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, q.url(true), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	q.client.setHeaders(req)
	if q.count != "" {
		req.Header.Set("Prefer", fmt.Sprintf("count=%s", q.count))
	}

	return q.client.do(req)
}

// ExecuteInsert executes an INSERT operation and returns the inserted rows.
func (q *QueryBuilder) ExecuteInsert(ctx context.Context, data any) (*Response, error) {
	return q.executeWithBody(ctx, http.MethodPost, data)
}

// ExecuteUpdate executes an UPDATE restricted by the builder's filters and
// returns the updated rows.
func (q *QueryBuilder) ExecuteUpdate(ctx context.Context, data any) (*Response, error) {
	return q.executeWithBody(ctx, http.MethodPatch, data)
}

// ExecuteDelete executes a DELETE restricted by the builder's filters and
// returns the deleted rows.
func (q *QueryBuilder) ExecuteDelete(ctx context.Context) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, q.url(false), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	q.client.setHeaders(req)
	req.Header.Set("Prefer", "return=representation")

	return q.client.do(req)
}

func (q *QueryBuilder) executeWithBody(ctx context.Context, method string, data any) (*Response, error) {
	body, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal data: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, q.url(false), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	q.client.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "return=representation")

	return q.client.do(req)
}

// =============================================================================
// Auth Operations
// =============================================================================

// Auth returns an auth client.
func (c *Client) Auth() *AuthClient {
	return &AuthClient{client: c}
}

// AuthClient handles authentication operations.
type AuthClient struct {
	client *Client
}

// GetUser asks Supabase Auth for the user owning the client's access token.
func (a *AuthClient) GetUser(ctx context.Context) (*User, error) {
	if a.client.accessToken == "" {
		return nil, fmt.Errorf("no access token bound to client")
	}

	reqURL := fmt.Sprintf("%s/auth/v1/user", a.client.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	a.client.setHeaders(req)

	resp, err := a.client.do(req)
	if err != nil {
		return nil, err
	}
	if err := resp.Error(); err != nil {
		return nil, err
	}

	var user User
	if err := json.Unmarshal(resp.Body, &user); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	return &user, nil
}

// User represents a Supabase user.
type User struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	Phone        string         `json:"phone"`
	Role         string         `json:"role"`
	Aud          string         `json:"aud"`
	CreatedAt    string         `json:"created_at"`
	UpdatedAt    string         `json:"updated_at"`
	AppMetadata  map[string]any `json:"app_metadata"`
	UserMetadata map[string]any `json:"user_metadata"`
}

// =============================================================================
// Response Types
// =============================================================================

// Response is a generic API response.
type Response struct {
	StatusCode int
	Body       []byte
	Headers    http.Header
}

// JSON unmarshals the response body into v.
func (r *Response) JSON(v any) error {
	return json.Unmarshal(r.Body, v)
}

// Error returns an *APIError if the response indicates failure.
func (r *Response) Error() error {
	if r.StatusCode < 400 {
		return nil
	}

	apiErr := &APIError{StatusCode: r.StatusCode}
	if gjson.ValidBytes(r.Body) {
		parsed := gjson.ParseBytes(r.Body)
		apiErr.Code = parsed.Get("code").String()
		apiErr.Details = parsed.Get("details").String()
		apiErr.Hint = parsed.Get("hint").String()
		for _, key := range []string{"message", "msg", "error_description", "error"} {
			if v := parsed.Get(key); v.Type == gjson.String && v.String() != "" {
				apiErr.Message = v.String()
				break
			}
		}
	}
	return apiErr
}

// Total parses the total row count PostgREST reports in Content-Range
// ("0-19/57", "*/0") when a count was requested.
func (r *Response) Total() (int, bool) {
	cr := r.Headers.Get("Content-Range")
	idx := strings.LastIndex(cr, "/")
	if idx < 0 {
		return 0, false
	}
	n, err := strconv.Atoi(cr[idx+1:])
	if err != nil {
		return 0, false
	}
	return n, true
}

// APIError is an error reported by Supabase.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Details    string
	Hint       string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("supabase error: %s", e.Message)
	}
	return fmt.Sprintf("supabase error: status %d", e.StatusCode)
}

// =============================================================================
// Internal Methods
// =============================================================================

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("apikey", c.apiKey)
	token := c.apiKey
	if c.accessToken != "" {
		token = c.accessToken
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
}

func (c *Client) do(req *http.Request) (*Response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	// Error bodies only feed messages and may be cut short. A truncated
	// success body would decode into a wrong result, so it fails instead.
	var body []byte
	if resp.StatusCode >= 400 {
		body, _, err = httputil.ReadAllWithLimit(resp.Body, maxErrorBodyBytes)
	} else {
		body, err = httputil.ReadAllStrict(resp.Body, c.maxResponseBytes)
	}
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Body:       body,
		Headers:    resp.Header,
	}, nil
}
