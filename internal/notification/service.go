package notification

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/stanstork/pricesync-api/internal/models"
	"github.com/stanstork/pricesync-api/internal/repository"
)

type Event struct {
	TenantID string
	Event    models.NotificationEvent
	Severity models.NotificationSeverity
	Title    string
	Message  string
	Metadata map[string]interface{}
}

type Service interface {
	Publish(ctx context.Context, evt Event) (models.Notification, error)
	NotifyExportReady(ctx context.Context, tenantID, jobID string, rows int) error
	NotifyExportFailed(ctx context.Context, tenantID, jobID, reason string) error
	NotifyImportCompleted(ctx context.Context, tenantID, jobID string, result models.ImportResult) error
	NotifyImportFailed(ctx context.Context, tenantID, jobID, reason string) error
	ListRecent(ctx context.Context, tenantID string, limit int) ([]models.Notification, error)
	MarkRead(ctx context.Context, tenantID, notificationID string) (models.Notification, error)
}

type service struct {
	repo      repository.NotificationRepository
	logger    zerolog.Logger
	notifiers []Notifier
}

func NewService(repo repository.NotificationRepository, logger zerolog.Logger, notifiers ...Notifier) Service {
	active := make([]Notifier, 0, len(notifiers))
	for _, notifier := range notifiers {
		if notifier != nil {
			active = append(active, notifier)
		}
	}
	return &service{
		repo:      repo,
		logger:    logger.With().Str("component", "notification_service").Logger(),
		notifiers: active,
	}
}

func (s *service) Publish(ctx context.Context, evt Event) (models.Notification, error) {
	if evt.Event == "" {
		return models.Notification{}, fmt.Errorf("event type is required")
	}
	tenantID := strings.TrimSpace(evt.TenantID)
	if tenantID == "" {
		return models.Notification{}, fmt.Errorf("tenant id is required for %s notifications", evt.Event)
	}
	if evt.Severity == "" {
		evt.Severity = models.NotificationSeverityInfo
	}
	title := strings.TrimSpace(evt.Title)
	if title == "" {
		title = string(evt.Event)
	}

	notif, err := s.repo.Create(ctx, repository.CreateNotificationParams{
		TenantID: tenantID,
		Event:    evt.Event,
		Severity: evt.Severity,
		Title:    title,
		Message:  strings.TrimSpace(evt.Message),
		Metadata: evt.Metadata,
	})
	if err != nil {
		s.logger.Error().Err(err).Str("event_type", string(evt.Event)).Msg("failed to persist notification")
		return models.Notification{}, err
	}
	for _, notifier := range s.notifiers {
		if err := notifier.Notify(ctx, notif); err != nil {
			logNotifyError(s.logger, err, notifierChannelName(notifier), notif)
		}
	}
	return notif, nil
}

func (s *service) NotifyExportReady(ctx context.Context, tenantID, jobID string, rows int) error {
	_, err := s.Publish(ctx, Event{
		TenantID: tenantID,
		Event:    models.NotificationEventExportReady,
		Severity: models.NotificationSeverityInfo,
		Title:    "Price export ready",
		Message:  fmt.Sprintf("Your export with %d variants is ready to download.", rows),
		Metadata: map[string]interface{}{
			"job_id": jobID,
			"rows":   rows,
		},
	})
	return err
}

func (s *service) NotifyExportFailed(ctx context.Context, tenantID, jobID, reason string) error {
	reason = fallback(reason, "Unknown error")
	_, err := s.Publish(ctx, Event{
		TenantID: tenantID,
		Event:    models.NotificationEventExportFailed,
		Severity: models.NotificationSeverityError,
		Title:    "Price export failed",
		Message:  fmt.Sprintf("Export %s failed: %s", jobID, reason),
		Metadata: map[string]interface{}{
			"job_id": jobID,
			"reason": reason,
		},
	})
	return err
}

func (s *service) NotifyImportCompleted(ctx context.Context, tenantID, jobID string, result models.ImportResult) error {
	severity := models.NotificationSeverityInfo
	if len(result.Errors) > 0 {
		severity = models.NotificationSeverityWarning
	}
	_, err := s.Publish(ctx, Event{
		TenantID: tenantID,
		Event:    models.NotificationEventImportCompleted,
		Severity: severity,
		Title:    "Price import completed",
		Message: fmt.Sprintf("%d updated, %d skipped, %d failed out of %d rows.",
			result.Updated, result.Skipped, result.Failed, result.Total),
		Metadata: map[string]interface{}{
			"job_id":  jobID,
			"updated": result.Updated,
			"skipped": result.Skipped,
			"failed":  result.Failed,
			"errors":  len(result.Errors),
		},
	})
	return err
}

func (s *service) NotifyImportFailed(ctx context.Context, tenantID, jobID, reason string) error {
	reason = fallback(reason, "Unknown error")
	_, err := s.Publish(ctx, Event{
		TenantID: tenantID,
		Event:    models.NotificationEventImportFailed,
		Severity: models.NotificationSeverityError,
		Title:    "Price import failed",
		Message:  fmt.Sprintf("Import %s failed: %s", jobID, reason),
		Metadata: map[string]interface{}{
			"job_id": jobID,
			"reason": reason,
		},
	})
	return err
}

func (s *service) ListRecent(ctx context.Context, tenantID string, limit int) ([]models.Notification, error) {
	return s.repo.ListRecent(ctx, tenantID, limit)
}

func (s *service) MarkRead(ctx context.Context, tenantID, notificationID string) (models.Notification, error) {
	return s.repo.MarkRead(ctx, tenantID, notificationID)
}

func fallback(value, def string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return def
}

func notifierChannelName(n Notifier) string {
	type named interface {
		String() string
	}
	if v, ok := n.(named); ok {
		return v.String()
	}
	return fmt.Sprintf("%T", n)
}
