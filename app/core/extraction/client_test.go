package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"auratask/app/pkg/types"
)

type capturedRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func newCompletionServer(t *testing.T, reply string, captured *capturedRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if captured != nil {
			if err := json.NewDecoder(r.Body).Decode(captured); err != nil {
				t.Errorf("decode request failed: %v", err)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id":      "cmpl-test",
			"object":  "chat.completion",
			"created": time.Now().Unix(),
			"model":   "llama-3.1-8b-instant",
			"choices": []map[string]interface{}{
				{
					"index":         0,
					"finish_reason": "stop",
					"message": map[string]interface{}{
						"role":    "assistant",
						"content": reply,
					},
				},
			},
		})
	}))
}

func TestCompleteSendsSystemPromptFirst(t *testing.T) {
	var captured capturedRequest
	srv := newCompletionServer(t, "When should I schedule that?", &captured)
	defer srv.Close()

	client := NewClient(ClientConfig{
		APIKey:  "test-key",
		BaseURL: srv.URL,
		Model:   "llama-3.1-8b-instant",
	})

	transcript := []types.Message{
		{Sender: types.SenderAssistant, Text: "Hello! How can I help you schedule your day?"},
		{Sender: types.SenderUser, Text: "remind me to call mom"},
	}
	out, err := client.Complete(context.Background(), "system contract", transcript)
	if err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	if out != "When should I schedule that?" {
		t.Fatalf("unexpected completion: %s", out)
	}

	if len(captured.Messages) != 3 {
		t.Fatalf("unexpected message count: %d", len(captured.Messages))
	}
	if captured.Messages[0].Role != "system" || captured.Messages[0].Content != "system contract" {
		t.Fatalf("system message not first: %+v", captured.Messages[0])
	}
	if captured.Messages[1].Role != "assistant" {
		t.Fatalf("unexpected second role: %s", captured.Messages[1].Role)
	}
	if captured.Messages[2].Role != "user" || captured.Messages[2].Content != "remind me to call mom" {
		t.Fatalf("unexpected user message: %+v", captured.Messages[2])
	}
	if captured.Model != "llama-3.1-8b-instant" {
		t.Fatalf("unexpected model: %s", captured.Model)
	}
}

func TestCompleteWrapsTransportFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient(ClientConfig{APIKey: "test-key", BaseURL: srv.URL, Model: "m"})
	_, err := client.Complete(context.Background(), "p", []types.Message{{Sender: types.SenderUser, Text: "hi"}})
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("expected ErrTransport, got: %v", err)
	}
}

func TestCompleteRequiresAPIKey(t *testing.T) {
	client := NewClient(ClientConfig{Model: "m"})
	_, err := client.Complete(context.Background(), "p", nil)
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("expected ErrTransport, got: %v", err)
	}
}

func TestCompleteTrimsCompletionText(t *testing.T) {
	srv := newCompletionServer(t, "  padded reply \n", nil)
	defer srv.Close()

	client := NewClient(ClientConfig{APIKey: "test-key", BaseURL: srv.URL, Model: "m"})
	out, err := client.Complete(context.Background(), "p", []types.Message{{Sender: types.SenderUser, Text: "hi"}})
	if err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	if out != "padded reply" {
		t.Fatalf("unexpected completion: %q", out)
	}
}
