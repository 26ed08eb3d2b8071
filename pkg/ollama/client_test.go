package ollama

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient_InvalidURL(t *testing.T) {
	_, err := NewClient("localhost")
	assert.Error(t, err)

	_, err = NewClient("http://localhost:11434/api/chat")
	assert.NoError(t, err)
}

func TestQuery(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"model":"m","message":{"role":"assistant","content":"{\"ok\":true}"},"done":true}`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	require.NoError(t, err)

	img := base64.StdEncoding.EncodeToString([]byte{1, 2, 3})
	reply, err := c.Query(context.Background(), "minicpm-v4", "prompt", img)
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, reply)

	assert.Equal(t, "minicpm-v4", got["model"])
	opts, ok := got["options"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 4096.0, opts["num_ctx"])
}

func TestQuery_BadImage(t *testing.T) {
	c, err := NewClient("http://localhost:1")
	require.NoError(t, err)

	_, err = c.Query(context.Background(), "m", "p", "%%%")
	assert.Error(t, err)
}
