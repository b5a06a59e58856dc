// Package notify pushes progress updates and notifications to learners over
// registered channels (WebSocket in production).
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/mathcode-academy/mathcode/internal/progress"
)

// Kind tags a pushed message.
type Kind string

const (
	KindLessonCompleted Kind = "lesson_completed"
	KindError           Kind = "error"
	KindProgress        Kind = "progress"
)

// Message is one notification for a learner.
type Message struct {
	Kind        Kind                   `json:"kind"`
	Title       string                 `json:"title"`
	Description string                 `json:"description,omitempty"`
	LessonID    string                 `json:"lesson_id,omitempty"`
	Progress    *progress.UserProgress `json:"progress,omitempty"`
}

// Channel is the interface each push transport must implement.
type Channel interface {
	Send(ctx context.Context, userID string, msg Message) error
	Close() error
}

// Gateway fans messages out to every registered channel. It implements
// progress.Publisher.
type Gateway struct {
	channels map[string]Channel
	mu       sync.RWMutex
	printer  *message.Printer
}

// NewGateway creates a new notification gateway.
func NewGateway() *Gateway {
	return &Gateway{
		channels: make(map[string]Channel),
		printer:  message.NewPrinter(language.English),
	}
}

// Register adds a channel to the gateway.
func (g *Gateway) Register(name string, ch Channel) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.channels[name] = ch
	slog.Info("notify channel registered", "channel", name)
}

// HasChannel returns true if the named channel is registered.
func (g *Gateway) HasChannel(name string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.channels[name]
	return ok
}

// Notify sends msg to userID on every channel.
func (g *Gateway) Notify(ctx context.Context, userID string, msg Message) error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var errs []error
	for name, ch := range g.channels {
		if err := ch.Send(ctx, userID, msg); err != nil {
			errs = append(errs, fmt.Errorf("channel %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// Completed pushes the success notification with the new progress.
func (g *Gateway) Completed(ctx context.Context, c progress.Completion) {
	if err := g.Notify(ctx, c.UserID, g.CompletedMessage(c)); err != nil {
		slog.Warn("failed to push completion", "user_id", c.UserID, "error", err)
	}
}

// CompletionFailed pushes the generic save failure notification.
func (g *Gateway) CompletionFailed(ctx context.Context, userID, lessonID string) {
	if err := g.Notify(ctx, userID, FailedMessage(lessonID)); err != nil {
		slog.Warn("failed to push completion failure", "user_id", userID, "error", err)
	}
}

// CompletedMessage builds the notification for a committed completion.
func (g *Gateway) CompletedMessage(c progress.Completion) Message {
	p := c.Progress
	return Message{
		Kind:        KindLessonCompleted,
		Title:       "Lesson Completed! 🎉",
		Description: g.printer.Sprintf("You earned %v XP!", number.Decimal(c.EarnedXP)),
		LessonID:    c.LessonID,
		Progress:    &p,
	}
}

// FailedMessage builds the notification for a completion that was not saved.
func FailedMessage(lessonID string) Message {
	return Message{
		Kind:        KindError,
		Title:       "Error",
		Description: progress.FailureMessage,
		LessonID:    lessonID,
	}
}

// ProgressMessage carries a progress snapshot, e.g. on connect.
func ProgressMessage(p progress.UserProgress) Message {
	return Message{Kind: KindProgress, Title: "Progress", Progress: &p}
}

// Close closes every channel.
func (g *Gateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	var errs []error
	for name, ch := range g.channels {
		if err := ch.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing channel %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// MockChannel is a test double for Channel.
type MockChannel struct {
	mu   sync.Mutex
	Sent []SentMessage
	Err  error
}

// SentMessage is a message recorded by MockChannel.
type SentMessage struct {
	UserID  string
	Message Message
}

func (m *MockChannel) Send(_ context.Context, userID string, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Sent = append(m.Sent, SentMessage{UserID: userID, Message: msg})
	return nil
}

func (m *MockChannel) Close() error {
	return nil
}

// Messages returns a copy of everything sent so far.
func (m *MockChannel) Messages() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentMessage{}, m.Sent...)
}
