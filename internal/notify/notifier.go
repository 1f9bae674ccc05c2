// Package notify defines the outbound notification gateway contract.
// Delivery transport (push, email) lives behind the Notifier interface and
// is out of this service's hands; callers fire and forget.
package notify

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// Kind classifies a notification for the delivery layer.
type Kind string

// Notification kinds produced by the task lifecycle and sweep jobs.
const (
	KindAssigned  Kind = "assigned"
	KindCompleted Kind = "completed"
	KindDueSoon   Kind = "due-soon"
	KindOverdue   Kind = "overdue"
)

// Notification is a request to tell one user about one task.
type Notification struct {
	RecipientID uuid.UUID
	TaskID      uuid.UUID
	TaskTitle   string
	Kind        Kind
	Message     string
}

// Notifier accepts notification requests. Implementations must not block on
// delivery; errors are for the caller's log only and never change task state.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// LogNotifier is the default Notifier: it records the notification in the
// structured log and considers it delivered. Real transports (push, email)
// replace it at wiring time.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a LogNotifier.
// If logger is nil, a default logger will be used.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}

	return &LogNotifier{
		logger: logger.With(slog.String("component", "notifier")),
	}
}

// Ensure LogNotifier implements Notifier.
var _ Notifier = (*LogNotifier)(nil)

// Notify implements Notifier.
func (n *LogNotifier) Notify(_ context.Context, notification Notification) error {
	n.logger.Info("notification",
		slog.String("recipient_id", notification.RecipientID.String()),
		slog.String("task_id", notification.TaskID.String()),
		slog.String("task_title", notification.TaskTitle),
		slog.String("kind", string(notification.Kind)),
		slog.String("message", notification.Message))
	return nil
}
