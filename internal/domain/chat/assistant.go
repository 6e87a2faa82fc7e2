package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ErrAssistantUnavailable reports a failed call to the language-model
// backend.
var ErrAssistantUnavailable = errors.New("assistant unavailable")

// Assistant is the language-model backend contract.
type Assistant interface {
	// Reply answers a user message given the prior transcript.
	Reply(ctx context.Context, transcript []*ChatMessage, message string) (string, error)
	// GenerateNote turns a transcript into a clinical note draft.
	GenerateNote(ctx context.Context, transcript []*ChatMessage) (string, error)
}

// HTTPAssistant talks to the assistant service over JSON.
type HTTPAssistant struct {
	baseURL string
	client  *http.Client
}

func NewHTTPAssistant(baseURL string, timeout time.Duration) *HTTPAssistant {
	return &HTTPAssistant{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type assistantTurn struct {
	Sender string `json:"sender"`
	Text   string `json:"text"`
}

func toTurns(transcript []*ChatMessage) []assistantTurn {
	turns := make([]assistantTurn, 0, len(transcript))
	for _, msg := range transcript {
		turns = append(turns, assistantTurn{Sender: msg.Sender, Text: msg.Text})
	}
	return turns
}

func (a *HTTPAssistant) Reply(ctx context.Context, transcript []*ChatMessage, message string) (string, error) {
	req := struct {
		Message string          `json:"message"`
		History []assistantTurn `json:"history"`
	}{Message: message, History: toTurns(transcript)}

	var resp struct {
		Reply string `json:"reply"`
	}
	if err := a.post(ctx, "/chat", req, &resp); err != nil {
		return "", err
	}
	return resp.Reply, nil
}

func (a *HTTPAssistant) GenerateNote(ctx context.Context, transcript []*ChatMessage) (string, error) {
	req := struct {
		Transcript []assistantTurn `json:"transcript"`
	}{Transcript: toTurns(transcript)}

	var resp struct {
		Note string `json:"note"`
	}
	if err := a.post(ctx, "/generate-note", req, &resp); err != nil {
		return "", err
	}
	return resp.Note, nil
}

func (a *HTTPAssistant) post(ctx context.Context, path string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAssistantUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAssistantUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d from %s", ErrAssistantUnavailable, resp.StatusCode, path)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrAssistantUnavailable, err)
	}
	return nil
}
