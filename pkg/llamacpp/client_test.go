package llamacpp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, status int, body string, seen *ChatCompletionRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		if seen != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(seen))
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
}

func TestQuery_StringContent(t *testing.T) {
	var seen ChatCompletionRequest
	srv := newServer(t, http.StatusOK, `{"choices":[{"index":0,"message":{"role":"assistant","content":"[]"}}]}`, &seen)
	defer srv.Close()

	c, err := NewClient(srv.URL + "/")
	require.NoError(t, err)

	reply, err := c.Query(context.Background(), "model", "prompt", "aGk=")
	require.NoError(t, err)
	assert.Equal(t, "[]", reply)
	assert.Equal(t, "model", seen.Model)
	assert.Equal(t, 4096, seen.MaxTokens)
	assert.False(t, seen.Stream)
}

func TestQuery_PartsContent(t *testing.T) {
	srv := newServer(t, http.StatusOK, `{"choices":[{"message":{"role":"assistant","content":[{"type":"text","text":"hello"}]}}]}`, nil)
	defer srv.Close()

	c, _ := NewClient(srv.URL)
	reply, err := c.SimpleQuery(context.Background(), "model", "prompt", "")
	require.NoError(t, err)
	assert.Equal(t, "hello", reply)
}

func TestQuery_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, "boom"},
		{"no choices", http.StatusOK, `{"choices":[]}`},
		{"empty content", http.StatusOK, `{"choices":[{"message":{"role":"assistant","content":""}}]}`},
		{"bad json", http.StatusOK, `not json`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newServer(t, tt.status, tt.body, nil)
			defer srv.Close()

			c, _ := NewClient(srv.URL)
			_, err := c.Query(context.Background(), "model", "prompt", "")
			assert.Error(t, err)
		})
	}
}
