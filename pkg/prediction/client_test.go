package prediction

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvega/clienthub-backend/pkg/config"
	"github.com/dvega/clienthub-backend/pkg/logger"
)

func newPredictionClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	client := New(config.PredictionConfig{
		BaseURL:     baseURL,
		Timeout:     2 * time.Second,
		MaxRetries:  2,
		RetryBaseMS: 1,
	}, logger.New(logger.Options{ServiceName: "test", Output: io.Discard}))
	require.NotNil(t, client)
	return client
}

func TestNewDisabledWithoutBaseURL(t *testing.T) {
	client := New(config.PredictionConfig{}, logger.New(logger.Options{ServiceName: "test", Output: io.Discard}))
	assert.Nil(t, client)
}

func TestPredictChurn(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/churn", r.URL.Path)

		var features Features
		require.NoError(t, json.NewDecoder(r.Body).Decode(&features))
		assert.Equal(t, 5, features.TotalOrders)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"score":0.42}`))
	}))
	defer server.Close()

	client := newPredictionClient(t, server.URL)
	score, err := client.PredictChurn(context.Background(), Features{TotalOrders: 5})
	require.NoError(t, err)
	assert.InDelta(t, 0.42, score, 1e-9)
}

func TestPredictChurnRejectsOutOfRangeScore(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"score":1.5}`))
	}))
	defer server.Close()

	client := newPredictionClient(t, server.URL)
	_, err := client.PredictChurn(context.Background(), Features{})
	assert.Error(t, err)
}

func TestPredictCLVSendsHorizon(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/clv", r.URL.Path)

		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, float64(12), payload["months"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"score":980.25}`))
	}))
	defer server.Close()

	client := newPredictionClient(t, server.URL)
	clv, err := client.PredictCLV(context.Background(), Features{TotalOrders: 3}, 12)
	require.NoError(t, err)
	assert.InDelta(t, 980.25, clv, 1e-9)
}

func TestEmbedRejectsEmptyVector(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"vector":[]}`))
	}))
	defer server.Close()

	client := newPredictionClient(t, server.URL)
	_, err := client.Embed(context.Background(), Profile{Segment: "active"})
	assert.Error(t, err)
}

func TestRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"vector":[0.1,0.2]}`))
	}))
	defer server.Close()

	client := newPredictionClient(t, server.URL)
	vector, err := client.Embed(context.Background(), Profile{Segment: "active"})
	require.NoError(t, err)
	assert.Len(t, vector, 2)
	assert.Equal(t, int32(2), calls.Load())
}

func TestDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	client := newPredictionClient(t, server.URL)
	_, err := client.PredictChurn(context.Background(), Features{})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}
