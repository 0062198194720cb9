// Package remote talks to a model server that hosts the forecasting and
// anomaly models behind a small JSON API.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jgoulah/homeenergy/internal/mlmodel"
	"github.com/jgoulah/homeenergy/pkg/models"
)

// Client calls the model server. It implements both mlmodel.Forecaster and
// mlmodel.Scorer.
type Client struct {
	baseURL    string
	httpClient *http.Client
	apiKey     string
}

var (
	_ mlmodel.Forecaster = (*Client)(nil)
	_ mlmodel.Scorer     = (*Client)(nil)
)

// ClientOption configures a Client
type ClientOption func(*Client)

// NewClient creates a client for the server at baseURL
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithTimeout sets the per-request timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithAPIKey sends key in the X-API-Key header
func WithAPIKey(key string) ClientOption {
	return func(c *Client) {
		c.apiKey = key
	}
}

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

type historyPoint struct {
	DS string  `json:"ds"`
	Y  float64 `json:"y"`
}

type forecastRequest struct {
	History []historyPoint `json:"history"`
	Horizon int            `json:"horizon"`
}

type forecastRow struct {
	DS        string  `json:"ds"`
	YHat      float64 `json:"yhat"`
	YHatLower float64 `json:"yhat_lower"`
	YHatUpper float64 `json:"yhat_upper"`
}

type scoreRequest struct {
	Columns []string    `json:"columns"`
	Rows    [][]float64 `json:"rows"`
}

type scoreResponse struct {
	Labels []int     `json:"labels"` // 1 normal, -1 outlier
	Scores []float64 `json:"scores"`
}

// Ping checks that the server is reachable and healthy
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.doRequest(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// Forecast posts the history to /forecast
func (c *Client) Forecast(ctx context.Context, history []models.GlobalDailyPoint, horizon int) ([]models.ForecastPoint, error) {
	req := forecastRequest{History: make([]historyPoint, len(history)), Horizon: horizon}
	for i, h := range history {
		req.History[i] = historyPoint{DS: h.Date.Format(models.DateLayout), Y: h.Y}
	}

	resp, err := c.doRequest(ctx, http.MethodPost, "/forecast", req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var rows []forecastRow
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("failed to decode forecast response: %w", err)
	}

	out := make([]models.ForecastPoint, len(rows))
	for i, r := range rows {
		d, err := parseDS(r.DS)
		if err != nil {
			return nil, fmt.Errorf("forecast row %d: %w", i, err)
		}
		out[i] = models.ForecastPoint{Date: d, YHat: r.YHat, YHatLower: r.YHatLower, YHatUpper: r.YHatUpper}
	}
	return out, nil
}

// Score posts the feature rows to /score
func (c *Client) Score(ctx context.Context, columns []string, rows [][]float64) ([]mlmodel.Prediction, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/score", scoreRequest{Columns: columns, Rows: rows})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var sr scoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("failed to decode score response: %w", err)
	}
	if len(sr.Labels) != len(sr.Scores) {
		return nil, fmt.Errorf("score response has %d labels and %d scores", len(sr.Labels), len(sr.Scores))
	}

	out := make([]mlmodel.Prediction, len(sr.Labels))
	for i := range sr.Labels {
		out[i] = mlmodel.Prediction{Outlier: sr.Labels[i] == -1, Score: sr.Scores[i]}
	}
	return out, nil
}

// parseDS accepts a bare date or a full timestamp
func parseDS(s string) (time.Time, error) {
	if d, err := models.ParseDate(s); err == nil {
		return d, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return models.DateOf(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable ds %q", s)
}

func (c *Client) doRequest(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		resp.Body.Close()
		return nil, fmt.Errorf("HTTP error: status %d, response: %s", resp.StatusCode, string(msg))
	}
	return resp, nil
}
