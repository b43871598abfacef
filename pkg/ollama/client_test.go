package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/progwatch/progwatch-cli/internal/resilience"
)

func TestChat_Success(t *testing.T) {
	var gotReq ChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/chat", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		json.NewEncoder(w).Encode(ChatResponse{
			Model:   "llama3.1",
			Message: Message{Role: "assistant", Content: `{"tuition_fee": "EUR 20,000"}`},
			Done:    true,
		})
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL))
	resp, err := client.Chat(context.Background(), ChatRequest{
		Messages: []Message{
			{Role: "system", Content: "extract fields"},
			{Role: "user", Content: "page text"},
		},
		Format: "json",
	})

	require.NoError(t, err)
	assert.Equal(t, `{"tuition_fee": "EUR 20,000"}`, resp.Message.Content)
	assert.True(t, resp.Done)

	// The default model fills in when the request leaves it empty.
	assert.Equal(t, "llama3.1", gotReq.Model)
	assert.Equal(t, "json", gotReq.Format)
	assert.False(t, gotReq.Stream)
	require.Len(t, gotReq.Messages, 2)
}

func TestChat_ModelOverride(t *testing.T) {
	var gotModel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotModel = req.Model
		json.NewEncoder(w).Encode(ChatResponse{Done: true})
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL), WithModel("mistral"))
	_, err := client.Chat(context.Background(), ChatRequest{})

	require.NoError(t, err)
	assert.Equal(t, "mistral", gotModel)
}

func TestChat_ServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model loading", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL))
	_, err := client.Chat(context.Background(), ChatRequest{})

	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
	assert.Contains(t, err.Error(), "503")
}

func TestChat_ClientErrorIsNotTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such model", http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL))
	_, err := client.Chat(context.Background(), ChatRequest{})

	require.Error(t, err)
	assert.False(t, resilience.IsTransient(err))
}

func TestChat_InvalidResponseBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL))
	_, err := client.Chat(context.Background(), ChatRequest{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal response")
}

func TestIsRunning(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tags", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL))
	assert.True(t, client.IsRunning(context.Background()))
}

func TestIsRunning_Down(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	srv.Close()

	client := NewClient(WithBaseURL(srv.URL))
	assert.False(t, client.IsRunning(context.Background()))
}

func TestWithBaseURL_TrimsTrailingSlash(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		json.NewEncoder(w).Encode(ChatResponse{Done: true})
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL + "/"))
	_, err := client.Chat(context.Background(), ChatRequest{})
	require.NoError(t, err)
}
