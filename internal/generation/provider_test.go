package generation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProvider(t *testing.T) {
	p, err := NewProvider(Config{Enabled: false})
	require.NoError(t, err)
	assert.Nil(t, p)

	_, err = NewProvider(Config{Enabled: true})
	require.ErrorIs(t, err, ErrProviderUnavailable)

	p, err = NewProvider(Config{Enabled: true, APIKey: "sk-test"})
	require.NoError(t, err)
	assert.NotNil(t, p)
}

func TestCompleteSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)

		var req map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		messages := req["messages"].([]interface{})
		require.Len(t, messages, 2)

		resp := map[string]interface{}{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"model":  "gpt-4o-mini",
			"choices": []map[string]interface{}{
				{
					"index":         0,
					"message":       map[string]string{"role": "assistant", "content": "  A concise summary.  "},
					"finish_reason": "stop",
				},
			},
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer server.Close()

	p, err := NewProvider(Config{Enabled: true, APIKey: "sk-test", BaseURL: server.URL})
	require.NoError(t, err)

	out, err := p.Complete(context.Background(), "Summarize.", "Long document text.")
	require.NoError(t, err)
	assert.Equal(t, "A concise summary.", out)
}

func TestCompleteEmptyPrompt(t *testing.T) {
	p, err := NewProvider(Config{Enabled: true, APIKey: "sk-test"})
	require.NoError(t, err)

	_, err = p.Complete(context.Background(), "Summarize.", "   ")
	require.ErrorIs(t, err, ErrEmptyInput)
}

func TestCompleteServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": {"message": "overloaded"}}`, http.StatusInternalServerError)
	}))
	defer server.Close()

	p, err := NewProvider(Config{Enabled: true, APIKey: "sk-test", BaseURL: server.URL})
	require.NoError(t, err)

	_, err = p.Complete(context.Background(), "Summarize.", "text")
	require.ErrorIs(t, err, ErrGenerationFailed)
}
