package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/aviya/internal/completion"
	"github.com/ashureev/aviya/internal/domain"
	"github.com/ashureev/aviya/internal/metrics"
	"github.com/ashureev/aviya/internal/moderation"
	"github.com/ashureev/aviya/internal/prompt"
)

// ErrEmptyMessage is returned for a turn with no text.
var ErrEmptyMessage = errors.New("message is required")

// SessionStore holds the per-conversation state.
type SessionStore interface {
	GetOrCreate(ctx context.Context, id string) (domain.Session, error)
	Update(ctx context.Context, id string, s domain.Session) error
}

// MemoryStore holds the long-term memory of signed-in identities.
type MemoryStore interface {
	RecentMemory(ctx context.Context, identityID string, limit int) ([]domain.MemoryEntry, error)
	AppendMemory(ctx context.Context, identityID string, entries []domain.MemoryEntry, limit int) error
}

// Decorator adds the cosmetic suffix to generated replies.
type Decorator interface {
	Decorate(reply string, greeted bool) (string, bool)
}

// Promoter applies the creator role to a signed-in identity when it qualifies.
type Promoter interface {
	Promote(ctx context.Context, identity *domain.Identity) error
}

// Service runs one chat turn end to end.
type Service struct {
	sessions  SessionStore
	memory    MemoryStore
	completer completion.Gateway
	decorator Decorator
	promoter  Promoter
	now       func() time.Time
}

// NewService creates a chat service.
func NewService(sessions SessionStore, memory MemoryStore, completer completion.Gateway, decorator Decorator) *Service {
	return &Service{
		sessions:  sessions,
		memory:    memory,
		completer: completer,
		decorator: decorator,
		now:       time.Now,
	}
}

// SetPromoter makes every signed-in chat turn re-check the creator role.
func (s *Service) SetPromoter(p Promoter) {
	s.promoter = p
}

// Chat processes a user message and returns the reply.
//
// Refusal branches only persist the moderation outcome. The generating branch
// pulls long-term memory (signed-in callers only), composes the prompt, asks
// the completion gateway, decorates the reply, and records the turn in both
// the session transcript and long-term memory. Memory failures are logged and
// skipped; session store failures are returned.
func (s *Service) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	if strings.TrimSpace(req.Message) == "" {
		return ChatResponse{}, ErrEmptyMessage
	}
	s.promote(ctx, req.Identity)

	sess, err := s.sessions.GetOrCreate(ctx, req.SessionID)
	if err != nil {
		return ChatResponse{}, fmt.Errorf("load session %s: %w", req.SessionID, err)
	}
	sess.Touch(s.now())

	verdict := moderation.Detect(req.Message)
	transition := sess.Moderate(verdict)
	metrics.ChatTransitions.WithLabelValues(string(transition)).Inc()

	if !transition.Generates() {
		if err := s.sessions.Update(ctx, req.SessionID, sess); err != nil {
			return ChatResponse{}, fmt.Errorf("save session %s: %w", req.SessionID, err)
		}
		slog.Info("Chat turn refused",
			"session_id", req.SessionID,
			"transition", transition)
		return ChatResponse{Reply: transition.Reply(), Transition: transition}, nil
	}

	memory := s.recall(ctx, req.Identity)

	full := prompt.Compose(prompt.Input{
		Mood:       sess.Mood,
		Memory:     memory,
		Transcript: sess.Transcript,
		Message:    req.Message,
	})

	start := time.Now()
	result := s.completer.Complete(ctx, full)
	metrics.CompletionLatency.Observe(time.Since(start).Seconds())
	metrics.CompletionOutcomes.WithLabelValues(string(result.Outcome)).Inc()

	// Only real completions are decorated; the greeting waits for the first one.
	reply := result.Text
	if result.Outcome == completion.OutcomeOK {
		reply, sess.Greeted = s.decorator.Decorate(result.Text, sess.Greeted)
	}
	sess.AppendTurn(req.Message, reply)
	sess.SettleMood(verdict)

	if err := s.sessions.Update(ctx, req.SessionID, sess); err != nil {
		return ChatResponse{}, fmt.Errorf("save session %s: %w", req.SessionID, err)
	}

	s.remember(ctx, req.Identity, req.Message, reply)

	slog.Info("Chat turn completed",
		"session_id", req.SessionID,
		"outcome", result.Outcome,
		"mood", sess.Mood)
	return ChatResponse{Reply: reply, Transition: transition}, nil
}

func (s *Service) promote(ctx context.Context, identity *domain.Identity) {
	if identity == nil || s.promoter == nil {
		return
	}
	if err := s.promoter.Promote(ctx, identity); err != nil {
		metrics.IdentityErrors.WithLabelValues("promote").Inc()
		slog.Warn("Failed to apply creator role, continuing",
			"identity_id", identity.ID,
			"error", err)
	}
}

func (s *Service) recall(ctx context.Context, identity *domain.Identity) []domain.MemoryEntry {
	if identity == nil || s.memory == nil {
		return nil
	}
	entries, err := s.memory.RecentMemory(ctx, identity.ID, prompt.MemoryWindow)
	if err != nil {
		metrics.MemoryErrors.WithLabelValues("fetch").Inc()
		slog.Warn("Failed to load long-term memory, continuing without it",
			"identity_id", identity.ID,
			"error", err)
		return nil
	}
	return entries
}

func (s *Service) remember(ctx context.Context, identity *domain.Identity, message, reply string) {
	if identity == nil || s.memory == nil {
		return
	}
	now := s.now()
	entries := []domain.MemoryEntry{
		{Speaker: domain.SpeakerUser, Text: message, Timestamp: now},
		{Speaker: domain.SpeakerAgent, Text: reply, Timestamp: now},
	}
	if err := s.memory.AppendMemory(ctx, identity.ID, entries, domain.MemoryLimit); err != nil {
		metrics.MemoryErrors.WithLabelValues("append").Inc()
		slog.Warn("Failed to save long-term memory",
			"identity_id", identity.ID,
			"error", err)
	}
}
