package notify

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogNotifier(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	notifier := NewLogNotifier(slog.New(slog.NewJSONHandler(&buf, nil)))

	n := Notification{
		RecipientID: uuid.New(),
		TaskID:      uuid.New(),
		TaskTitle:   "Water the plants",
		Kind:        KindDueSoon,
		Message:     "\"Water the plants\" is due within 24 hours",
	}
	require.NoError(t, notifier.Notify(context.Background(), n))

	out := buf.String()
	assert.Contains(t, out, n.RecipientID.String())
	assert.Contains(t, out, n.TaskID.String())
	assert.Contains(t, out, "due-soon")
	assert.Contains(t, out, `"component":"notifier"`)
}

func TestNewLogNotifierNilLogger(t *testing.T) {
	t.Parallel()

	notifier := NewLogNotifier(nil)
	require.NotNil(t, notifier)
	assert.NoError(t, notifier.Notify(context.Background(), Notification{Kind: KindAssigned}))
}
