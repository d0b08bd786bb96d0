// Package rag implements the retrieval capability behind rag_search steps as
// a thin client over an HTTP retrieval service.
package rag

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/agentrun/agentrun/internal/common/config"
	"github.com/agentrun/agentrun/internal/plugins"
)

const (
	defaultTimeout = 30 * time.Second
	defaultTopK    = 5
)

// Client queries a retrieval service over HTTP.
type Client struct {
	url               string
	defaultCollection string
	defaultTopK       int
	httpClient        *http.Client
}

// New creates a retrieval client from configuration.
func New(cfg config.RAGConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("rag: service url is required")
	}
	timeout := defaultTimeout
	if cfg.Timeout > 0 {
		timeout = time.Duration(cfg.Timeout) * time.Second
	}
	topK := cfg.TopK
	if topK <= 0 {
		topK = defaultTopK
	}
	return &Client{
		url:               cfg.URL,
		defaultCollection: cfg.DefaultCollection,
		defaultTopK:       topK,
		httpClient:        &http.Client{Timeout: timeout},
	}, nil
}

type searchRequest struct {
	Query      string `json:"query"`
	Collection string `json:"collection,omitempty"`
	TopK       int    `json:"top_k"`
}

type searchResponse struct {
	Results []map[string]any `json:"results"`
	Error   string           `json:"error,omitempty"`
}

// Search runs a retrieval query and returns the raw result documents.
func (c *Client) Search(ctx context.Context, query, collection string, topK int) (*plugins.RAGResult, error) {
	if query == "" {
		return nil, errors.New("rag: query is required")
	}
	if collection == "" {
		collection = c.defaultCollection
	}
	if topK <= 0 {
		topK = c.defaultTopK
	}

	body, err := json.Marshal(searchRequest{Query: query, Collection: collection, TopK: topK})
	if err != nil {
		return nil, fmt.Errorf("rag: marshal search request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("rag: build search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rag: search request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("rag: read search response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rag: search returned status %d: %s", resp.StatusCode, data)
	}
	var decoded searchResponse
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, fmt.Errorf("rag: decode search response: %w", err)
	}
	if decoded.Error != "" {
		return nil, fmt.Errorf("rag: search failed: %s", decoded.Error)
	}
	return &plugins.RAGResult{Status: "success", Results: decoded.Results}, nil
}
