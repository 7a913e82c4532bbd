// Package hasura is a minimal client for the engine's admin APIs: the
// metadata API (/v1/metadata) and the SQL query API (/v2/query). Both are
// authenticated with the admin secret header.
package hasura

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
)

// ErrUnauthorized reports that the engine rejected the admin credential.
// Callers treat this differently from transient upstream failures: it
// points at misconfiguration, not an outage.
var ErrUnauthorized = errors.New("admin API rejected credentials")

const (
	adminSecretHeader = "x-hasura-admin-secret"
	defaultTimeout    = 10 * time.Second
)

// Client issues authenticated requests against one engine instance.
type Client struct {
	endpoint    string
	adminSecret string
	http        *http.Client
}

// NewClient creates a client for the engine at endpoint (scheme://host[:port],
// no trailing path). The HTTP client may be nil; a default with a request
// timeout is used.
func NewClient(endpoint, adminSecret string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		endpoint:    strings.TrimRight(endpoint, "/"),
		adminSecret: adminSecret,
		http:        httpClient,
	}
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding %s request: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(adminSecretHeader, c.adminSecret)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("admin API request %s: %w", path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s returned %d", ErrUnauthorized, path, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("admin API %s returned %d: %s", path, resp.StatusCode, string(b))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

type runSQLRequest struct {
	Type string     `json:"type"`
	Args runSQLArgs `json:"args"`
}

type runSQLArgs struct {
	SQL      string `json:"sql"`
	ReadOnly bool   `json:"read_only"`
}

type runSQLResponse struct {
	ResultType string     `json:"result_type"`
	Result     [][]string `json:"result"`
}

// RunSQL executes a read-only SQL statement against the engine's metadata
// database and returns the result rows without the header row.
func (c *Client) RunSQL(ctx context.Context, sql string) ([][]string, error) {
	var resp runSQLResponse
	req := runSQLRequest{Type: "run_sql", Args: runSQLArgs{SQL: sql, ReadOnly: true}}
	if err := c.post(ctx, "/v2/query", req, &resp); err != nil {
		return nil, err
	}
	if resp.ResultType != "TuplesOk" {
		return nil, fmt.Errorf("unexpected run_sql result type %q", resp.ResultType)
	}
	if len(resp.Result) == 0 {
		return nil, nil
	}
	return resp.Result[1:], nil
}

type metadataRequest struct {
	Type string   `json:"type"`
	Args struct{} `json:"args"`
}

type inconsistentMetadataResponse struct {
	IsConsistent        bool              `json:"is_consistent"`
	InconsistentObjects []json.RawMessage `json:"inconsistent_objects"`
}

// InconsistentMetadata returns the number of inconsistent metadata
// objects reported by the engine.
func (c *Client) InconsistentMetadata(ctx context.Context) (int, error) {
	var resp inconsistentMetadataResponse
	req := metadataRequest{Type: "get_inconsistent_metadata"}
	if err := c.post(ctx, "/v1/metadata", req, &resp); err != nil {
		return 0, err
	}
	return len(resp.InconsistentObjects), nil
}
