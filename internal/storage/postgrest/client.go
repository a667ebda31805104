package postgrest

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/conspectus/internal/common"
)

// Client is a thin PostgREST client bound to one Supabase project. Every
// request carries the service role key as both apikey and bearer token, and
// Prefer: return=representation so writes echo the stored rows back.
type Client struct {
	http   *resty.Client
	logger arbor.ILogger
}

// NewClient creates a new PostgREST client from database config.
func NewClient(cfg *common.Config, logger arbor.ILogger) *Client {
	if logger == nil {
		logger = common.GetLogger()
	}

	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(cfg.Database.URL, "/")).
		SetTimeout(cfg.DatabaseTimeout()).
		SetHeader("apikey", cfg.Database.APIKey).
		SetHeader("Authorization", "Bearer "+cfg.Database.APIKey).
		SetHeader("Content-Type", "application/json").
		SetHeader("Prefer", "return=representation")

	return &Client{
		http:   httpClient,
		logger: logger,
	}
}

// Select runs a filtered GET against a table, decoding the row array into out.
func (c *Client) Select(ctx context.Context, table string, params map[string]string, out interface{}) error {
	req := c.http.R().SetContext(ctx).SetQueryParams(params)
	if out != nil {
		req.SetResult(out)
	}
	resp, err := req.Get(tableURL(table))
	return c.check("GET", table, resp, err)
}

// Insert POSTs one row or a slice of rows. The stored representation is
// decoded into out when out is non-nil.
func (c *Client) Insert(ctx context.Context, table string, body interface{}, out interface{}) error {
	req := c.http.R().SetContext(ctx).SetBody(body)
	if out != nil {
		req.SetResult(out)
	}
	resp, err := req.Post(tableURL(table))
	return c.check("POST", table, resp, err)
}

// Update PATCHes the rows matching params with the given column values.
func (c *Client) Update(ctx context.Context, table string, body interface{}, params map[string]string, out interface{}) error {
	req := c.http.R().SetContext(ctx).SetQueryParams(params).SetBody(body)
	if out != nil {
		req.SetResult(out)
	}
	resp, err := req.Patch(tableURL(table))
	return c.check("PATCH", table, resp, err)
}

// Delete removes the rows matching params, echoing them into out when out is
// non-nil so callers can distinguish deleted-something from matched-nothing.
func (c *Client) Delete(ctx context.Context, table string, params map[string]string, out interface{}) error {
	req := c.http.R().SetContext(ctx).SetQueryParams(params)
	if out != nil {
		req.SetResult(out)
	}
	resp, err := req.Delete(tableURL(table))
	return c.check("DELETE", table, resp, err)
}

// RPC invokes a database function with a JSON payload.
func (c *Client) RPC(ctx context.Context, fn string, payload interface{}, out interface{}) error {
	req := c.http.R().SetContext(ctx).SetBody(payload)
	if out != nil {
		req.SetResult(out)
	}
	resp, err := req.Post("/rest/v1/rpc/" + fn)
	return c.check("RPC", fn, resp, err)
}

// Ping verifies the database is reachable and the programs table accessible.
// Schema is managed by migrations outside this service.
func (c *Client) Ping(ctx context.Context) error {
	var rows []map[string]interface{}
	return c.Select(ctx, "programs", map[string]string{"select": "id", "limit": "1"}, &rows)
}

func (c *Client) check(method, resource string, resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("postgrest %s %s: %w", method, resource, err)
	}
	if resp.IsError() {
		c.logger.Error().
			Str("method", method).
			Str("resource", resource).
			Int("status", resp.StatusCode()).
			Str("body", resp.String()).
			Msg("PostgREST request failed")
		return fmt.Errorf("postgrest %s %s: status %d", method, resource, resp.StatusCode())
	}
	return nil
}

func tableURL(table string) string {
	return "/rest/v1/" + table
}

// eq formats a PostgREST equality filter value.
func eq(value string) string {
	return "eq." + value
}
