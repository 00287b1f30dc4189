package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcticwatch/arcticwatch/internal/providers"
)

func TestDescribeSendsDataURL(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")

	var got struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content []struct {
				Type     string `json:"type"`
				Text     string `json:"text"`
				ImageURL struct {
					URL string `json:"url"`
				} `json:"image_url"`
			} `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"A plot was allocated."}}]}`))
	}))
	defer srv.Close()

	text, err := (&OpenAI{BaseURL: srv.URL}).Describe(context.Background(), providers.Config{
		Model:  "gpt-4o",
		Prompt: "describe",
		Image:  []byte{0x89, 'P', 'N', 'G'},
	})

	require.NoError(t, err)
	assert.Equal(t, "A plot was allocated.", text)
	require.Len(t, got.Messages, 1)
	require.Len(t, got.Messages[0].Content, 2)
	assert.Equal(t, "describe", got.Messages[0].Content[0].Text)
	assert.True(t, strings.HasPrefix(got.Messages[0].Content[1].ImageURL.URL, "data:image/png;base64,"))
}

func TestDescribeNoChoices(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	_, err := (&OpenAI{BaseURL: srv.URL}).Describe(context.Background(), providers.Config{Model: "gpt-4o"})
	assert.Error(t, err)
}

func TestDescribeRequiresAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	_, err := New().Describe(context.Background(), providers.Config{})
	assert.Error(t, err)
}
