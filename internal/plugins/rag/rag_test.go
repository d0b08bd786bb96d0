package rag

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/agentrun/agentrun/internal/common/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := New(config.RAGConfig{
		URL:               server.URL,
		DefaultCollection: "docs",
		TopK:              3,
		Timeout:           5,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return client
}

func TestSearch(t *testing.T) {
	var gotBody map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &gotBody)
		_, _ = w.Write([]byte(`{"results":[{"text":"chunk one","score":0.9}]}`))
	})

	result, err := client.Search(context.Background(), "what is agentrun", "", 0)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(result.Results) != 1 || result.Results[0]["text"] != "chunk one" {
		t.Fatalf("unexpected results: %+v", result.Results)
	}
	// defaults from config fill missing collection and top_k
	if gotBody["collection"] != "docs" || gotBody["top_k"] != float64(3) {
		t.Fatalf("defaults not applied: %+v", gotBody)
	}
}

func TestSearch_ServiceError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`boom`))
	})

	if _, err := client.Search(context.Background(), "q", "", 0); err == nil {
		t.Fatalf("expected error")
	}
}

func TestSearch_RequiresQuery(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})

	if _, err := client.Search(context.Background(), "", "", 0); err == nil {
		t.Fatalf("expected error for empty query")
	}
}
