// Package airtable implements the store.Client interface against an
// Airtable-style REST API.
package airtable

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"bdr-engine/internal/config"
	"bdr-engine/internal/retry"
	"bdr-engine/internal/store"
)

type Client struct {
	baseURL string
	baseID  string
	token   string
	httpc   *http.Client
}

func New(cfg config.Store, baseID, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.Airtable.BaseURL, "/"),
		baseID:  baseID,
		token:   token,
		httpc:   &http.Client{Timeout: 30 * time.Second},
	}
}

type record struct {
	ID     string       `json:"id"`
	Fields store.Fields `json:"fields"`
}

type recordsResponse struct {
	Records []record `json:"records"`
	Offset  string   `json:"offset"`
}

func (c *Client) FindByField(ctx context.Context, table, field, value string) (*store.Row, error) {
	q := url.Values{}
	q.Set("filterByFormula", formulaEquals(field, value))
	q.Set("maxRecords", "1")

	var resp recordsResponse
	if err := c.do(ctx, http.MethodGet, c.tableURL(table)+"?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	if len(resp.Records) == 0 {
		return nil, nil
	}
	r := resp.Records[0]
	return &store.Row{ID: r.ID, Fields: r.Fields}, nil
}

func (c *Client) ListByField(ctx context.Context, table, field, value string) ([]store.Row, error) {
	var rows []store.Row
	offset := ""
	for {
		q := url.Values{}
		q.Set("filterByFormula", formulaEquals(field, value))
		q.Set("pageSize", "100")
		if offset != "" {
			q.Set("offset", offset)
		}

		var resp recordsResponse
		if err := c.do(ctx, http.MethodGet, c.tableURL(table)+"?"+q.Encode(), nil, &resp); err != nil {
			return nil, err
		}
		for _, r := range resp.Records {
			rows = append(rows, store.Row{ID: r.ID, Fields: r.Fields})
		}
		if resp.Offset == "" {
			return rows, nil
		}
		offset = resp.Offset
	}
}

func (c *Client) Insert(ctx context.Context, table string, fields store.Fields) (string, error) {
	var resp record
	if err := c.do(ctx, http.MethodPost, c.tableURL(table), map[string]any{"fields": fields}, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (c *Client) Update(ctx context.Context, table, recordID string, fields store.Fields) error {
	var resp record
	return c.do(ctx, http.MethodPatch, c.tableURL(table)+"/"+url.PathEscape(recordID), map[string]any{"fields": fields}, &resp)
}

func (c *Client) tableURL(table string) string {
	return fmt.Sprintf("%s/%s/%s", c.baseURL, url.PathEscape(c.baseID), url.PathEscape(table))
}

// formulaEquals builds an exact-match filter formula, escaping quotes in
// the value so emails like o'brien@x.com stay intact.
func formulaEquals(field, value string) string {
	escaped := strings.ReplaceAll(value, `'`, `\'`)
	return fmt.Sprintf("{%s} = '%s'", field, escaped)
}

func (c *Client) do(ctx context.Context, method, rawURL string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, rdr)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return retry.MarkTransient(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		if retry.RetryableStatus(resp.StatusCode) {
			return retry.MarkTransient(fmt.Errorf("airtable %s: %d: %s", method, resp.StatusCode, strings.TrimSpace(string(msg))))
		}
		return &store.RejectedError{Status: resp.StatusCode, Msg: strings.TrimSpace(string(msg))}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
