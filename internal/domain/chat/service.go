package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// historyLimit caps how much transcript is loaded per request.
const historyLimit = 200

type Service struct {
	repo      Repository
	assistant Assistant
	logger    zerolog.Logger
}

func NewService(repo Repository, assistant Assistant, logger zerolog.Logger) *Service {
	return &Service{repo: repo, assistant: assistant, logger: logger}
}

// Send persists the user's message, asks the assistant for a reply with
// the prior transcript as context, persists the reply, and returns it.
// The user message is durable even when the assistant call fails.
func (s *Service) Send(ctx context.Context, userID, text string) (*ChatMessage, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("message text is required")
	}

	history, err := s.repo.ListByUser(ctx, userID, historyLimit)
	if err != nil {
		return nil, fmt.Errorf("load transcript: %w", err)
	}

	userMsg := &ChatMessage{UserID: userID, Sender: SenderUser, Text: text}
	if err := s.repo.Append(ctx, userMsg); err != nil {
		return nil, fmt.Errorf("persist message: %w", err)
	}

	reply, err := s.assistant.Reply(ctx, history, text)
	if err != nil {
		return nil, err
	}

	replyMsg := &ChatMessage{UserID: userID, Sender: SenderAssistant, Text: reply}
	if err := s.repo.Append(ctx, replyMsg); err != nil {
		return nil, fmt.Errorf("persist reply: %w", err)
	}
	return replyMsg, nil
}

// History returns the caller's transcript, oldest first.
func (s *Service) History(ctx context.Context, userID string) ([]*ChatMessage, error) {
	return s.repo.ListByUser(ctx, userID, historyLimit)
}

// GenerateNote flattens the caller's transcript and asks the assistant for
// a clinical note draft.
func (s *Service) GenerateNote(ctx context.Context, userID string) (string, error) {
	history, err := s.repo.ListByUser(ctx, userID, historyLimit)
	if err != nil {
		return "", fmt.Errorf("load transcript: %w", err)
	}
	if len(history) == 0 {
		return "", fmt.Errorf("no transcript to summarize")
	}
	return s.assistant.GenerateNote(ctx, history)
}
