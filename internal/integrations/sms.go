package integrations

import (
	"context"
	"sync"

	"github.com/foyerlink/foyer-core/internal/infrastructure/logging"
)

// SMSSender delivers a text message to a phone number.
// Satisfies visitor.Notifier.
type SMSSender interface {
	Send(ctx context.Context, phone, message string) error
}

// LogSMSSender writes messages to the log instead of a carrier gateway.
// The default in development deployments.
type LogSMSSender struct {
	logger *logging.Logger
}

// NewLogSMSSender creates a log-backed sender.
func NewLogSMSSender(logger *logging.Logger) *LogSMSSender {
	return &LogSMSSender{logger: logger}
}

// Send logs the message.
func (s *LogSMSSender) Send(_ context.Context, phone, message string) error {
	s.logger.Info("sms (log sink)", "to", phone, "message", message)
	return nil
}

// MemorySMSSender records messages in memory. Test double.
type MemorySMSSender struct {
	mu       sync.Mutex
	messages []SentMessage
}

// SentMessage is one recorded send.
type SentMessage struct {
	Phone   string
	Message string
}

// NewMemorySMSSender creates an empty recording sender.
func NewMemorySMSSender() *MemorySMSSender {
	return &MemorySMSSender{}
}

// Send records the message.
func (s *MemorySMSSender) Send(_ context.Context, phone, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, SentMessage{Phone: phone, Message: message})
	return nil
}

// Sent returns a copy of all recorded messages.
func (s *MemorySMSSender) Sent() []SentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SentMessage, len(s.messages))
	copy(out, s.messages)
	return out
}
