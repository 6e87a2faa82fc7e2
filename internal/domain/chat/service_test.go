package chat

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type mockRepo struct {
	messages []*ChatMessage
	err      error
}

func (m *mockRepo) Append(_ context.Context, msg *ChatMessage) error {
	if m.err != nil {
		return m.err
	}
	msg.ID = uuid.New()
	msg.Timestamp = time.Now().UTC()
	m.messages = append(m.messages, msg)
	return nil
}

func (m *mockRepo) ListByUser(_ context.Context, userID string, limit int) ([]*ChatMessage, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []*ChatMessage
	for _, msg := range m.messages {
		if msg.UserID == userID {
			out = append(out, msg)
		}
	}
	// Newest messages win, returned oldest first like the real store.
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

type fakeAssistant struct {
	reply      string
	note       string
	err        error
	sawHistory int
}

func (f *fakeAssistant) Reply(_ context.Context, transcript []*ChatMessage, _ string) (string, error) {
	f.sawHistory = len(transcript)
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeAssistant) GenerateNote(_ context.Context, transcript []*ChatMessage) (string, error) {
	f.sawHistory = len(transcript)
	if f.err != nil {
		return "", f.err
	}
	return f.note, nil
}

func TestService_Send(t *testing.T) {
	repo := &mockRepo{}
	assistant := &fakeAssistant{reply: "Take rest and fluids."}
	svc := NewService(repo, assistant, zerolog.Nop())

	reply, err := svc.Send(context.Background(), "u1", "I have a headache")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply.Sender != SenderAssistant || reply.Text != "Take rest and fluids." {
		t.Errorf("unexpected reply: %+v", reply)
	}
	if len(repo.messages) != 2 {
		t.Fatalf("expected user+assistant messages persisted, got %d", len(repo.messages))
	}
	if repo.messages[0].Sender != SenderUser {
		t.Errorf("expected user message first, got %s", repo.messages[0].Sender)
	}
}

func TestService_SendEmptyText(t *testing.T) {
	svc := NewService(&mockRepo{}, &fakeAssistant{}, zerolog.Nop())
	if _, err := svc.Send(context.Background(), "u1", "   "); err == nil {
		t.Fatal("expected error for empty text")
	}
}

func TestService_SendAssistantFailureKeepsUserMessage(t *testing.T) {
	repo := &mockRepo{}
	assistant := &fakeAssistant{err: ErrAssistantUnavailable}
	svc := NewService(repo, assistant, zerolog.Nop())

	_, err := svc.Send(context.Background(), "u1", "hello")
	if !errors.Is(err, ErrAssistantUnavailable) {
		t.Fatalf("expected ErrAssistantUnavailable, got %v", err)
	}
	if len(repo.messages) != 1 || repo.messages[0].Sender != SenderUser {
		t.Errorf("expected the user message to survive, got %v", repo.messages)
	}
}

func TestService_HistoryScopedToUser(t *testing.T) {
	repo := &mockRepo{}
	svc := NewService(repo, &fakeAssistant{reply: "ok"}, zerolog.Nop())

	if _, err := svc.Send(context.Background(), "u1", "mine"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.Send(context.Background(), "u2", "theirs"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	history, err := svc.History(context.Background(), "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 messages for u1, got %d", len(history))
	}
	for _, msg := range history {
		if msg.UserID != "u1" {
			t.Errorf("leaked message from %s", msg.UserID)
		}
	}
}

func TestService_HistoryKeepsNewestTurns(t *testing.T) {
	repo := &mockRepo{}
	svc := NewService(repo, &fakeAssistant{reply: "ok"}, zerolog.Nop())

	for i := 0; i < historyLimit+5; i++ {
		repo.messages = append(repo.messages, &ChatMessage{
			UserID: "u1",
			Sender: SenderUser,
			Text:   fmt.Sprintf("turn %d", i),
		})
	}

	history, err := svc.History(context.Background(), "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(history) != historyLimit {
		t.Fatalf("expected %d messages, got %d", historyLimit, len(history))
	}
	if got := history[len(history)-1].Text; got != fmt.Sprintf("turn %d", historyLimit+4) {
		t.Errorf("expected the newest turn last, got %q", got)
	}
	if got := history[0].Text; got != "turn 5" {
		t.Errorf("expected the oldest surviving turn first, got %q", got)
	}
}

func TestService_GenerateNote(t *testing.T) {
	repo := &mockRepo{}
	assistant := &fakeAssistant{reply: "ok", note: "Patient reports headache."}
	svc := NewService(repo, assistant, zerolog.Nop())

	if _, err := svc.GenerateNote(context.Background(), "u1"); err == nil {
		t.Fatal("expected error for empty transcript")
	}

	if _, err := svc.Send(context.Background(), "u1", "I have a headache"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	note, err := svc.GenerateNote(context.Background(), "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if note != "Patient reports headache." {
		t.Errorf("unexpected note: %q", note)
	}
	if assistant.sawHistory != 2 {
		t.Errorf("expected assistant to see the full transcript, saw %d", assistant.sawHistory)
	}
}
