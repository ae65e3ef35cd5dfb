package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateMessage(t *testing.T) {
	var body map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Contains(t, r.URL.Path, "/messages")
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":   "msg_001",
			"type": "message",
			"role": "assistant",
			"content": []map[string]any{
				{"type": "text", "text": `{"claims":`},
				{"type": "text", "text": `[]}`},
			},
			"model":       "claude-haiku-4-5",
			"stop_reason": "end_turn",
			"usage": map[string]any{
				"input_tokens":            120,
				"output_tokens":           30,
				"cache_read_input_tokens": 100,
			},
		})
	}))
	defer ts.Close()

	temp := 0.1
	client := NewClient("test-key", ts.URL)
	resp, err := client.CreateMessage(context.Background(), MessageRequest{
		Model:       "claude-haiku-4-5",
		MaxTokens:   512,
		System:      []SystemBlock{{Text: "extract facts", Cacheable: true}},
		Messages:    []Message{{Role: "user", Content: "pages"}},
		Temperature: &temp,
	})
	require.NoError(t, err)

	assert.Equal(t, "msg_001", resp.ID)
	assert.Equal(t, `{"claims":[]}`, resp.Text())
	assert.Equal(t, int64(120), resp.Usage.InputTokens)
	assert.Equal(t, int64(100), resp.Usage.CacheReadInputTokens)

	assert.Equal(t, "claude-haiku-4-5", body["model"])
	assert.InDelta(t, 0.1, body["temperature"], 1e-9)
	system, ok := body["system"].([]any)
	require.True(t, ok)
	require.Len(t, system, 1)
	assert.Contains(t, system[0], "cache_control")
}

func TestCreateMessage_APIError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"invalid_request_error","message":"bad model"}}`))
	}))
	defer ts.Close()

	client := NewClient("test-key", ts.URL)
	_, err := client.CreateMessage(context.Background(), MessageRequest{
		Model:     "nope",
		MaxTokens: 10,
		Messages:  []Message{{Role: "user", Content: "hi"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic: create message")
}

func TestToSDKMessages_Roles(t *testing.T) {
	msgs := toSDKMessages([]Message{{Role: "user", Content: "a"}, {Role: "assistant", Content: "b"}, {Role: "other", Content: "c"}})
	require.Len(t, msgs, 3)
	assert.Equal(t, "user", string(msgs[0].Role))
	assert.Equal(t, "assistant", string(msgs[1].Role))
	assert.Equal(t, "user", string(msgs[2].Role))
}

func TestEstimateCost(t *testing.T) {
	tests := []struct {
		name  string
		model string
		usage TokenUsage
		want  float64
	}{
		{"haiku", "claude-haiku-4-5", TokenUsage{InputTokens: 1_000_000, OutputTokens: 1_000_000}, 6.0},
		{"sonnet", "claude-sonnet-4-5", TokenUsage{InputTokens: 1_000_000}, 3.0},
		{"cache read", "claude-sonnet-4-5", TokenUsage{CacheReadInputTokens: 1_000_000}, 0.3},
		{"unknown", "gpt-x", TokenUsage{InputTokens: 1_000_000}, 0},
		{"zero", "claude-haiku-4-5", TokenUsage{}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, tt.usage.EstimateCost(tt.model), 1e-9)
		})
	}
}

func TestLogCost_DoesNotPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		TokenUsage{InputTokens: 10, OutputTokens: 5}.LogCost("claude-haiku-4-5", "facts")
	})
}

func TestStatusCode(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"authentication_error","message":"bad key"}}`))
	}))
	defer ts.Close()

	_, err := NewClient("bad", ts.URL).CreateMessage(context.Background(), MessageRequest{
		Model:     "claude-haiku-4-5",
		MaxTokens: 10,
		Messages:  []Message{{Role: "user", Content: "hi"}},
	})
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, StatusCode(err))
	assert.Zero(t, StatusCode(nil))
}
