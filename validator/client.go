/*
 * Copyright 2019 The CovenantSQL Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package validator is the client of the validator HTTP API which
// materializes registry transactions into queryable tables.
package validator

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dghubble/sling"
	"github.com/pkg/errors"

	"github.com/CovenantSQL/tablebridge/metric"
	"github.com/CovenantSQL/tablebridge/types"
)

// Format is the row format of a query response.
type Format string

// Query response formats.
const (
	Objects Format = "objects"
	Table   Format = "table"
)

// DefaultHTTPTimeout bounds a single validator request.
const DefaultHTTPTimeout = 30 * time.Second

var (
	// ErrNotFound is returned when the validator has no such resource.
	ErrNotFound = errors.New("not found")
)

// APIError is a non successful validator response.
type APIError struct {
	StatusCode int    `json:"-"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return "validator responded " + strconv.Itoa(e.StatusCode) + ": " + e.Message
}

// Column is a result column of the table format.
type Column struct {
	Name string `json:"name"`
}

// TableResult is a query result in the table format.
type TableResult struct {
	Columns []Column        `json:"columns"`
	Rows    [][]interface{} `json:"rows"`
}

// ColumnSchema describes one column of a table.
type ColumnSchema struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Constraints []string `json:"constraints,omitempty"`
}

// Schema is a table schema.
type Schema struct {
	Columns          []ColumnSchema `json:"columns"`
	TableConstraints []string       `json:"table_constraints,omitempty"`
}

// TableMeta is the validator metadata of a table.
type TableMeta struct {
	Name        string                   `json:"name"`
	ExternalURL string                   `json:"external_url"`
	Image       string                   `json:"image,omitempty"`
	Attributes  []map[string]interface{} `json:"attributes,omitempty"`
	Schema      Schema                   `json:"schema"`
}

// VersionInfo is the validator build information.
type VersionInfo struct {
	Version       int    `json:"version"`
	GitCommit     string `json:"git_commit"`
	GitBranch     string `json:"git_branch"`
	GitState      string `json:"git_state"`
	GitSummary    string `json:"git_summary"`
	BuildDate     string `json:"build_date"`
	BinaryVersion string `json:"binary_version"`
}

type queryParams struct {
	Statement string `url:"statement"`
	Format    Format `url:"format,omitempty"`
}

// ReceiptFetcher looks up a materialization receipt.
type ReceiptFetcher interface {
	ReceiptByTransactionHash(ctx context.Context, chainID int64, hash string) (*types.TransactionReceipt, bool, error)
}

// Client calls one validator.
type Client struct {
	base   string
	client *http.Client
	sling  *sling.Sling
}

// NewClient returns a client of the validator at baseURL. A nil httpClient
// uses a client with DefaultHTTPTimeout.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	base := strings.TrimRight(baseURL, "/")
	return &Client{
		base:   base,
		client: httpClient,
		sling: sling.New().Client(httpClient).Base(base+"/").
			Set("Accept", "application/json"),
	}
}

// BaseURL returns the validator base url.
func (c *Client) BaseURL() string {
	return c.base
}

// WithBaseURL returns a client of another validator sharing the http client.
func (c *Client) WithBaseURL(baseURL string) *Client {
	if strings.TrimRight(baseURL, "/") == c.base {
		return c
	}
	return NewClient(baseURL, c.client)
}

func (c *Client) do(ctx context.Context, endpoint string, s *sling.Sling, success interface{}) (err error) {
	req, err := s.Request()
	if err != nil {
		return errors.Wrapf(err, "build %s request", endpoint)
	}
	apiErr := &APIError{}
	resp, err := s.Do(req.WithContext(ctx), success, apiErr)
	code := "error"
	if resp != nil {
		code = strconv.Itoa(resp.StatusCode)
	}
	metric.ValidatorRequests.WithLabelValues(endpoint, code).Inc()

	if resp != nil && resp.StatusCode == http.StatusNotFound {
		return errors.Wrapf(ErrNotFound, "%s %s", endpoint, req.URL.Path)
	}
	if err != nil {
		return errors.Wrapf(err, "%s request", endpoint)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr.StatusCode = resp.StatusCode
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return errors.Wrapf(apiErr, "%s request", endpoint)
	}
	return
}

// Health reports whether the validator is serving.
func (c *Client) Health(ctx context.Context) (bool, error) {
	if err := c.do(ctx, "health", c.sling.New().Get("health"), nil); err != nil {
		return false, err
	}
	return true, nil
}

// Version returns the validator build information.
func (c *Client) Version(ctx context.Context) (v *VersionInfo, err error) {
	v = &VersionInfo{}
	if err = c.do(ctx, "version", c.sling.New().Get("version"), v); err != nil {
		return nil, err
	}
	return
}

// ReceiptByTransactionHash returns the receipt of hash on chainID, found is
// false while the validator has not processed the transaction.
func (c *Client) ReceiptByTransactionHash(ctx context.Context, chainID int64, hash string) (
	r *types.TransactionReceipt, found bool, err error) {
	r = &types.TransactionReceipt{}
	path := "receipt/" + strconv.FormatInt(chainID, 10) + "/" + url.PathEscape(hash)
	err = c.do(ctx, "receipt", c.sling.New().Get(path), r)
	if errors.Cause(err) == ErrNotFound {
		return nil, false, nil
	} else if err != nil {
		return nil, false, err
	}
	return r, true, nil
}

// Query runs a read statement, the result is []map[string]interface{} for
// Objects and *TableResult for Table.
func (c *Client) Query(ctx context.Context, statement string, format Format) (interface{}, error) {
	switch format {
	case Table:
		return c.QueryTable(ctx, statement)
	default:
		return c.QueryObjects(ctx, statement)
	}
}

// QueryObjects runs a read statement returning rows as objects.
func (c *Client) QueryObjects(ctx context.Context, statement string) (rows []map[string]interface{}, err error) {
	s := c.sling.New().Get("query").QueryStruct(&queryParams{Statement: statement, Format: Objects})
	err = c.do(ctx, "query", s, &rows)
	if errors.Cause(err) == ErrNotFound {
		// empty results are reported as not found
		return []map[string]interface{}{}, nil
	}
	if rows == nil && err == nil {
		rows = []map[string]interface{}{}
	}
	return
}

// QueryTable runs a read statement returning columns and value rows.
func (c *Client) QueryTable(ctx context.Context, statement string) (t *TableResult, err error) {
	t = &TableResult{}
	s := c.sling.New().Get("query").QueryStruct(&queryParams{Statement: statement, Format: Table})
	err = c.do(ctx, "query", s, t)
	if errors.Cause(err) == ErrNotFound {
		return &TableResult{Columns: []Column{}, Rows: [][]interface{}{}}, nil
	} else if err != nil {
		return nil, err
	}
	return
}

// GetTableByID returns the metadata of a table.
func (c *Client) GetTableByID(ctx context.Context, chainID int64, tableID string) (t *TableMeta, err error) {
	t = &TableMeta{}
	path := "tables/" + strconv.FormatInt(chainID, 10) + "/" + url.PathEscape(tableID)
	if err = c.do(ctx, "tables", c.sling.New().Get(path), t); err != nil {
		return nil, err
	}
	return
}
