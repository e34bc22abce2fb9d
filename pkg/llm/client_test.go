package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"docchat-go/internal/config"
)

func newTestClient(serverURL string) Client {
	return NewClient(config.LLMConfig{
		APIKey:  "test-key",
		BaseURL: serverURL,
		Model:   "test-model",
	})
}

func TestComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req struct {
			Stream      bool      `json:"stream"`
			Messages    []Message `json:"messages"`
			Temperature *float64  `json:"temperature"`
			MaxTokens   *int      `json:"max_tokens"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.False(t, req.Stream)
		require.Len(t, req.Messages, 2)
		require.NotNil(t, req.Temperature)
		require.Equal(t, 0.2, *req.Temperature)
		require.NotNil(t, req.MaxTokens)
		require.Equal(t, 800, *req.MaxTokens)

		resp := map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": "the answer"}},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	temp := 0.2
	maxTokens := 800
	answer, err := newTestClient(srv.URL).Complete(context.Background(),
		[]Message{{Role: "system", Content: "ctx"}, {Role: "user", Content: "q"}},
		&GenerationParams{Temperature: &temp, MaxTokens: &maxTokens})
	require.NoError(t, err)
	require.Equal(t, "the answer", answer)
}

func TestCompleteUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Complete(context.Background(), []Message{{Role: "user", Content: "q"}}, nil)
	require.Error(t, err)
}

func sseChunk(content string) string {
	b, _ := json.Marshal(map[string]interface{}{
		"choices": []map[string]interface{}{
			{"delta": map[string]string{"content": content}},
		},
	})
	return fmt.Sprintf("data: %s\n", b)
}

func TestStreamCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Stream bool `json:"stream"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.True(t, req.Stream)

		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, frag := range []string{"Hel", "lo ", "world"} {
			fmt.Fprint(w, sseChunk(frag))
			flusher.Flush()
		}
		fmt.Fprint(w, "data: [DONE]\n")
	}))
	defer srv.Close()

	stream, err := newTestClient(srv.URL).StreamCompletion(context.Background(), []Message{{Role: "user", Content: "q"}}, nil)
	require.NoError(t, err)
	defer stream.Close()

	var got []string
	for frag := range stream.Fragments() {
		got = append(got, frag)
	}
	require.NoError(t, stream.Err())
	require.Equal(t, []string{"Hel", "lo ", "world"}, got)
}

func TestStreamCompletionSkipsMalformedFrames(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {not json}\n")
		fmt.Fprint(w, ": keepalive comment\n")
		fmt.Fprint(w, sseChunk("ok"))
		fmt.Fprint(w, "data: [DONE]\n")
	}))
	defer srv.Close()

	stream, err := newTestClient(srv.URL).StreamCompletion(context.Background(), []Message{{Role: "user", Content: "q"}}, nil)
	require.NoError(t, err)
	defer stream.Close()

	var got []string
	for frag := range stream.Fragments() {
		got = append(got, frag)
	}
	require.NoError(t, stream.Err())
	require.Equal(t, []string{"ok"}, got)
}

func TestStreamCompletionNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).StreamCompletion(context.Background(), []Message{{Role: "user", Content: "q"}}, nil)
	require.Error(t, err)
}
