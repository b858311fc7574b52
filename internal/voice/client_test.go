package voice

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/physio-voice-agent/pkg/logging"
)

func TestCreateCall(t *testing.T) {
	var got CallConfig
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/calls", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("X-API-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"callId": "call-1", "joinUrl": "wss://voice.example/join/1", "created": "2024-06-10T09:00:00Z"}`))
	}))
	defer srv.Close()

	client := NewClient(Options{BaseURL: srv.URL + "/", APIKey: "secret"}, logging.Discard())
	call, err := client.CreateCall(context.Background(), CallConfig{
		SystemPrompt:  "prompt",
		Model:         DefaultModel,
		Voice:         DefaultVoice,
		Temperature:   DefaultTemperature,
		LanguageHint:  DefaultLanguageHint,
		SelectedTools: []SelectedTool{{ToolID: "tool-1"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "call-1", call.CallID)
	assert.Equal(t, "wss://voice.example/join/1", call.JoinURL)
	assert.Equal(t, "prompt", got.SystemPrompt)
	assert.Equal(t, DefaultModel, got.Model)
	require.Len(t, got.SelectedTools, 1)
	assert.Equal(t, "tool-1", got.SelectedTools[0].ToolID)
}

func TestCreateCallErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewClient(Options{BaseURL: srv.URL}, logging.Discard()).CreateCall(context.Background(), CallConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing api key")

	_, err = NewClient(Options{BaseURL: srv.URL, APIKey: "k"}, logging.Discard()).CreateCall(context.Background(), CallConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 429")
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestCreateCallRequiresJoinURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"callId": "call-1"}`))
	}))
	defer srv.Close()

	_, err := NewClient(Options{BaseURL: srv.URL, APIKey: "k"}, logging.Discard()).CreateCall(context.Background(), CallConfig{})
	assert.Error(t, err)
}
