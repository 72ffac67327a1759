package notifying

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/vfg2006/audience-delivery-api/infrastructure/repository"
	"github.com/vfg2006/audience-delivery-api/internal/domain"
)

var ErrCreateNotification = errors.New("error creating notification")

// Notifier is the notification sink contract consumed by the delivery
// core; the sink owns persistence and TTL.
type Notifier interface {
	Notify(ctx context.Context, notificationType domain.NotificationType, category domain.NotificationCategory, description, username string) (*domain.Notification, error)
	List(ctx context.Context, pageSize, pageNumber int) ([]*domain.Notification, int64, error)
}

type Service struct {
	store repository.DocumentStore
}

func NewService(store repository.DocumentStore) Notifier {
	return &Service{store: store}
}

// Notify records a notification with the retention its type dictates
func (s *Service) Notify(ctx context.Context, notificationType domain.NotificationType, category domain.NotificationCategory, description, username string) (*domain.Notification, error) {
	now := time.Now().UTC()

	doc, err := s.store.Create(ctx, repository.CollectionNotifications, map[string]any{
		"type":        notificationType,
		"category":    category,
		"description": description,
		"username":    username,
		"expire_time": domain.ExpiryFor(notificationType, now),
	}, username)
	if err != nil {
		return nil, errors.Wrap(err, ErrCreateNotification.Error())
	}

	notification := &domain.Notification{}
	if err := repository.DecodeDocument(doc, notification); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"notification_id": notification.ID,
		"type":            notificationType,
		"category":        category,
	}).Debug("notification recorded")

	return notification, nil
}

// List returns notifications newest first. Expired notifications are
// filtered in the store query so the total matches the visible set.
func (s *Service) List(ctx context.Context, pageSize, pageNumber int) ([]*domain.Notification, int64, error) {
	page, err := s.store.GetMany(ctx, repository.CollectionNotifications, repository.QueryOptions{
		SortBy:         repository.FieldCreateTime,
		SortDescending: true,
		PageSize:       pageSize,
		PageNumber:     pageNumber,
		ExcludeExpired: true,
	})
	if err != nil {
		return nil, 0, err
	}

	notifications := make([]*domain.Notification, 0, len(page.Documents))
	for _, doc := range page.Documents {
		notification := &domain.Notification{}
		if err := repository.DecodeDocument(doc, notification); err != nil {
			return nil, 0, err
		}
		notifications = append(notifications, notification)
	}

	return notifications, page.Total, nil
}
