package notification

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/stanstork/pricesync-api/internal/models"
)

// Notifier delivers a persisted notification over an extra channel.
type Notifier interface {
	Notify(ctx context.Context, notification models.Notification) error
}

// LogNotifier writes every notification to the service log.
type LogNotifier struct {
	logger zerolog.Logger
}

func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("notifier", "log").Logger()}
}

func (n *LogNotifier) Notify(_ context.Context, notif models.Notification) error {
	evt := n.logger.Info()
	if notif.Severity == models.NotificationSeverityError {
		evt = n.logger.Warn()
	}
	evt.Str("notification_id", notif.ID).
		Str("tenant", notif.TenantID).
		Str("event_type", string(notif.EventType)).
		Msg(notif.Title)
	return nil
}

func (n *LogNotifier) String() string {
	return "log"
}

func logNotifyError(logger zerolog.Logger, err error, channel string, notif models.Notification) {
	if err == nil {
		return
	}
	logger.Warn().
		Err(err).
		Str("notification_id", notif.ID).
		Str("event_type", string(notif.EventType)).
		Str("channel", channel).
		Msg("failed to deliver notification")
}
