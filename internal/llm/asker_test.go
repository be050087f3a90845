package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPAskerCarriesConversation(t *testing.T) {
	var mu sync.Mutex
	var requests []chatRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		mu.Lock()
		requests = append(requests, req)
		mu.Unlock()

		_ = json.NewEncoder(w).Encode(chatResponse{
			Choices: []struct {
				Message chatMessage `json:"message"`
			}{{Message: chatMessage{Role: "assistant", Content: "ok"}}},
		})
	}))
	defer srv.Close()

	asker := NewHTTPAsker(srv.URL, "test-model", "test-key")

	reply, err := asker.Ask(context.Background(), "first")
	require.NoError(t, err)
	assert.Equal(t, "ok", reply)

	_, err = asker.Ask(context.Background(), "second")
	require.NoError(t, err)

	require.Len(t, requests, 2)
	assert.Equal(t, "test-model", requests[0].Model)
	require.Len(t, requests[0].Messages, 1)
	// The second request replays the first exchange.
	require.Len(t, requests[1].Messages, 3)
	assert.Equal(t, "first", requests[1].Messages[0].Content)
	assert.Equal(t, "assistant", requests[1].Messages[1].Role)
	assert.Equal(t, "second", requests[1].Messages[2].Content)
}

func TestHTTPAskerRejectsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	asker := NewHTTPAsker(srv.URL, "test-model", "test-key")
	_, err := asker.Ask(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
}
