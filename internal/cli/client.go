package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	gojson "github.com/goccy/go-json"

	"github.com/hyperjump/ruiji/internal/models"
	rjerr "github.com/hyperjump/ruiji/pkg/errors"
)

// ErrServerNotRunning is returned when nothing accepts connections at the server address.
var ErrServerNotRunning = errors.New("ruiji server is not running")

// Client talks to a running ruiji server.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a client for baseURL ("http://localhost:8080"). A bare host:port
// gets the http scheme.
func NewClient(baseURL string) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 2 * time.Minute},
	}
}

// Recommend asks the server for k recommendations. k <= 0 uses the server default.
func (c *Client) Recommend(ctx context.Context, prompt string, k int) (*models.RecommendResponse, error) {
	var out models.RecommendResponse
	err := c.do(ctx, http.MethodPost, "/api/recommend", models.RecommendRequest{Prompt: prompt, K: k}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Ingest sends one batch of items.
func (c *Client) Ingest(ctx context.Context, items []models.ItemInput) (*models.UpsertResult, error) {
	var out models.IngestResponse
	if err := c.do(ctx, http.MethodPost, "/api/ingest/items", models.IngestRequest{Items: items}, &out); err != nil {
		return nil, err
	}
	return &out.UpsertResult, nil
}

// Status fetches index state and configuration.
func (c *Client) Status(ctx context.Context) (*models.StatusResponse, error) {
	var out models.StatusResponse
	if err := c.do(ctx, http.MethodGet, "/api/status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// errorBody is the server's error response.
type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := gojson.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		if isDialError(err) {
			return ErrServerNotRunning
		}
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		var eb errorBody
		if gojson.Unmarshal(raw, &eb) == nil && eb.Code != "" {
			// Keep the server's code so callers classify remote errors like local ones.
			return rjerr.New(rjerr.Code(eb.Code), eb.Error, rjerr.Field("status", resp.StatusCode))
		}
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if err := gojson.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// isDialError reports whether err is a failed connection attempt.
func isDialError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Op == "dial"
	}
	return false
}
