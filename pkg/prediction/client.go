package prediction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sethvargo/go-retry"

	"github.com/dvega/clienthub-backend/pkg/config"
	"github.com/dvega/clienthub-backend/pkg/logger"
)

// Features carries the aggregate signals sent to the scoring service.
type Features struct {
	TotalOrders        int     `json:"total_orders"`
	TotalSpent         float64 `json:"total_spent"`
	AverageOrderValue  float64 `json:"average_order_value"`
	DaysSinceLastOrder *int    `json:"days_since_last_order,omitempty"`
	DaysAsCustomer     *int    `json:"days_as_customer,omitempty"`
}

// Profile carries the categorical signals used for embedding generation.
type Profile struct {
	Segment     string         `json:"segment"`
	Tags        []string       `json:"tags,omitempty"`
	Preferences map[string]any `json:"preferences,omitempty"`
}

type scoreResponse struct {
	Score float64 `json:"score"`
}

type vectorResponse struct {
	Vector []float64 `json:"vector"`
}

// Client calls an external ML scoring service over HTTP.
type Client struct {
	http       *resty.Client
	logg       *logger.Logger
	maxRetries uint64
	retryBase  time.Duration
}

// New builds a prediction client; returns nil when no base URL is configured.
func New(cfg config.PredictionConfig, logg *logger.Logger) *Client {
	if !cfg.Enabled() {
		return nil
	}

	http := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json")
	if cfg.APIKey != "" {
		http.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	}

	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	retryBase := time.Duration(cfg.RetryBaseMS) * time.Millisecond
	if retryBase <= 0 {
		retryBase = 100 * time.Millisecond
	}

	return &Client{
		http:       http,
		logg:       logg,
		maxRetries: uint64(maxRetries),
		retryBase:  retryBase,
	}
}

// PredictChurn asks the scoring service for a churn probability in [0,1].
func (c *Client) PredictChurn(ctx context.Context, features Features) (float64, error) {
	var out scoreResponse
	if err := c.post(ctx, "/v1/churn", features, &out); err != nil {
		return 0, err
	}
	if out.Score < 0 || out.Score > 1 {
		return 0, fmt.Errorf("churn score %f out of range", out.Score)
	}
	return out.Score, nil
}

// PredictCLV asks the scoring service for a lifetime-value estimate over the horizon.
func (c *Client) PredictCLV(ctx context.Context, features Features, months int) (float64, error) {
	payload := struct {
		Features
		Months int `json:"months"`
	}{Features: features, Months: months}

	var out scoreResponse
	if err := c.post(ctx, "/v1/clv", payload, &out); err != nil {
		return 0, err
	}
	return out.Score, nil
}

// Embed asks the scoring service for an embedding vector of the customer profile.
func (c *Client) Embed(ctx context.Context, profile Profile) ([]float64, error) {
	var out vectorResponse
	if err := c.post(ctx, "/v1/embed", profile, &out); err != nil {
		return nil, err
	}
	if len(out.Vector) == 0 {
		return nil, errors.New("scoring service returned an empty vector")
	}
	return out.Vector, nil
}

func (c *Client) post(ctx context.Context, path string, body any, result any) error {
	if c == nil || c.http == nil {
		return errors.New("prediction client not configured")
	}

	backoff := retry.WithMaxRetries(c.maxRetries, retry.NewExponential(c.retryBase))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		resp, err := c.http.R().
			SetContext(ctx).
			SetBody(body).
			SetResult(result).
			Post(path)
		if err != nil {
			return retry.RetryableError(fmt.Errorf("calling scoring service: %w", err))
		}
		if resp.StatusCode() >= 500 {
			return retry.RetryableError(fmt.Errorf("scoring service returned %d", resp.StatusCode()))
		}
		if resp.IsError() {
			return fmt.Errorf("scoring service returned %d", resp.StatusCode())
		}
		return nil
	})
}
