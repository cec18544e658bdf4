package infra

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/gabework/tradeguard/internal/domain"
)

// defaultAckTimeout caps how long the warning phase waits for the trader.
// The sequence proceeds either way; the wait only gives them a moment to
// switch attention before the overlay lands.
const defaultAckTimeout = 10 * time.Second

// ConsoleAcknowledger implements domain.Acknowledger on an input stream.
// Pressing Enter acknowledges; silence acknowledges after a timeout.
type ConsoleAcknowledger struct {
	in      io.Reader
	out     io.Writer
	timeout time.Duration
	logger  *zap.Logger
}

// NewConsoleAcknowledger creates an acknowledger reading from in.
func NewConsoleAcknowledger(in io.Reader, out io.Writer, timeout time.Duration, logger *zap.Logger) *ConsoleAcknowledger {
	if timeout <= 0 {
		timeout = defaultAckTimeout
	}
	return &ConsoleAcknowledger{in: in, out: out, timeout: timeout, logger: logger}
}

// AwaitAcknowledgment blocks until Enter is pressed, the timeout passes, or
// the context is cancelled.
func (a *ConsoleAcknowledger) AwaitAcknowledgment(ctx context.Context, sessionID string) error {
	fmt.Fprintln(a.out, "LOSS LIMIT HIT. Lockout sequence engaged. Press Enter to acknowledge.")

	pressed := make(chan struct{})
	go func() {
		reader := bufio.NewReader(a.in)
		if _, err := reader.ReadString('\n'); err == nil {
			close(pressed)
		}
	}()

	select {
	case <-pressed:
		a.logger.Info("warning acknowledged", zap.String("session", sessionID))
		return nil
	case <-time.After(a.timeout):
		a.logger.Info("warning timed out, proceeding", zap.String("session", sessionID))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Ensure ConsoleAcknowledger implements domain.Acknowledger.
var _ domain.Acknowledger = (*ConsoleAcknowledger)(nil)
