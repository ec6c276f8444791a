// Package supabase is a minimal client for a Supabase-style backend: password
// sign-in against the auth API, PostgREST table access and RPC calls. Each
// call is made exactly once; there is no retry.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const maxResponseBytes = 8 << 20

// Client talks to one backend project. AccessToken is set by a successful
// SignInWithPassword; until then requests are authorized with the API key.
type Client struct {
	BaseURL     string
	APIKey      string
	HTTPClient  *http.Client
	UserAgent   string
	AccessToken string
}

// New returns a client for the project at baseURL.
func New(baseURL, apiKey string, httpClient *http.Client) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		APIKey:     apiKey,
		HTTPClient: httpClient,
	}
}

// User is the subset of the auth user object the smoke check needs.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Session is returned by a successful sign-in.
type Session struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	User         User   `json:"user"`
}

// SignInWithPassword exchanges email and password for a session and uses its
// access token for all later requests.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (Session, error) {
	var s Session
	body := map[string]string{"email": email, "password": password}
	q := url.Values{"grant_type": {"password"}}
	if err := c.do(ctx, http.MethodPost, "/auth/v1/token", q, body, nil, &s); err != nil {
		return Session{}, fmt.Errorf("sign in: %w", err)
	}
	if s.AccessToken == "" {
		return Session{}, fmt.Errorf("sign in: response carried no access token")
	}
	c.AccessToken = s.AccessToken
	return s, nil
}

// RPC calls the database function fn with params encoded as a JSON object.
// dst may be nil when the result is not needed.
func (c *Client) RPC(ctx context.Context, fn string, params any, dst any) error {
	if err := c.do(ctx, http.MethodPost, "/rest/v1/rpc/"+url.PathEscape(fn), nil, params, nil, dst); err != nil {
		return fmt.Errorf("rpc %s: %w", fn, err)
	}
	return nil
}

// Query is a PostgREST request against one table.
type Query struct {
	c      *Client
	table  string
	params url.Values
}

// From starts a query against table.
func (c *Client) From(table string) *Query {
	return &Query{c: c, table: table, params: url.Values{}}
}

// Select sets the column projection, e.g. "*" or "user_id,contacts".
func (q *Query) Select(columns string) *Query {
	q.params.Set("select", columns)
	return q
}

// Eq filters rows where column equals value.
func (q *Query) Eq(column, value string) *Query {
	q.params.Add(column, "eq."+value)
	return q
}

// Limit caps the number of returned rows.
func (q *Query) Limit(n int) *Query {
	q.params.Set("limit", strconv.Itoa(n))
	return q
}

// Execute runs the query as a read and decodes the row array into dst.
func (q *Query) Execute(ctx context.Context, dst any) error {
	if err := q.c.do(ctx, http.MethodGet, q.path(), q.params, nil, nil, dst); err != nil {
		return fmt.Errorf("select %s: %w", q.table, err)
	}
	return nil
}

// Insert adds row (an object or an array of objects) and decodes the inserted
// rows into dst.
func (q *Query) Insert(ctx context.Context, row any, dst any) error {
	h := http.Header{"Prefer": {"return=representation"}}
	if err := q.c.do(ctx, http.MethodPost, q.path(), q.params, row, h, dst); err != nil {
		return fmt.Errorf("insert %s: %w", q.table, err)
	}
	return nil
}

// Upsert inserts row or merges it into the existing row that conflicts on
// onConflict, and decodes the resulting rows into dst.
func (q *Query) Upsert(ctx context.Context, row any, onConflict string, dst any) error {
	h := http.Header{"Prefer": {"resolution=merge-duplicates,return=representation"}}
	params := cloneValues(q.params)
	if onConflict != "" {
		params.Set("on_conflict", onConflict)
	}
	if err := q.c.do(ctx, http.MethodPost, q.path(), params, row, h, dst); err != nil {
		return fmt.Errorf("upsert %s: %w", q.table, err)
	}
	return nil
}

func (q *Query) path() string { return "/rest/v1/" + url.PathEscape(q.table) }

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, header http.Header, dst any) error {
	u := c.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode body: %w", err)
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rdr)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("apikey", c.APIKey)
	token := c.AccessToken
	if token == "" {
		token = c.APIKey
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}

	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	start := time.Now()
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Int64("elapsed", time.Since(start).Milliseconds()).
		Msg("backend request")
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newAPIError(resp.StatusCode, data)
	}
	if dst == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for k, vs := range v {
		out[k] = append([]string(nil), vs...)
	}
	return out
}
