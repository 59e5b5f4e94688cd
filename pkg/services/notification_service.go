package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/sentify-hq/sentify-engine/pkg/database"
	"github.com/sentify-hq/sentify-engine/pkg/models"
	"github.com/sentify-hq/sentify-engine/pkg/push"
	"github.com/sentify-hq/sentify-engine/pkg/repositories"
)

// NotificationService fans ticker updates out to followers and manages the
// per-user notification inbox. Delivery is at least once: clients dedupe by id.
type NotificationService interface {
	// NotifyFollowers creates one notification per follower of ticker in a
	// single transaction, then offers each to live connections. Rows stay
	// unsent until a connection writes them and calls MarkDelivered. It
	// returns how many notifications were created.
	NotifyFollowers(ctx context.Context, ticker string) (int, error)

	// MarkDelivered marks a live-pushed notification sent once a connection
	// has written it to the client.
	MarkDelivered(ctx context.Context, id int64) error

	// CatchUp hands the user's unsent notifications to deliver in creation
	// order and marks each one deliver accepted as sent. It stops at the
	// first delivery error. Returns how many were delivered.
	CatchUp(ctx context.Context, userID int64, deliver func(models.PushEvent) error) (int, error)

	List(ctx context.Context, userID int64) ([]*models.Notification, error)
	MarkRead(ctx context.Context, userID, id int64) error
	Delete(ctx context.Context, userID, id int64) error
	DeleteAll(ctx context.Context, userID int64) (int64, error)
}

type notificationService struct {
	tx            database.TxRunner
	follows       repositories.FollowRepository
	notifications repositories.NotificationRepository
	hub           push.Hub
	logger        *zap.Logger
}

var _ NotificationService = (*notificationService)(nil)

// NewNotificationService creates a notification service.
func NewNotificationService(
	tx database.TxRunner,
	follows repositories.FollowRepository,
	notifications repositories.NotificationRepository,
	hub push.Hub,
	logger *zap.Logger,
) NotificationService {
	return &notificationService{
		tx:            tx,
		follows:       follows,
		notifications: notifications,
		hub:           hub,
		logger:        logger.Named("notification-service"),
	}
}

func (s *notificationService) NotifyFollowers(ctx context.Context, ticker string) (int, error) {
	followers, err := s.follows.FollowerIDs(ctx, ticker)
	if err != nil {
		return 0, fmt.Errorf("failed to load followers of %s: %w", ticker, err)
	}
	if len(followers) == 0 {
		return 0, nil
	}

	message := models.NewArticlesMessage(ticker)
	created := make([]*models.Notification, 0, len(followers))
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		for _, userID := range followers {
			n := &models.Notification{UserID: userID, Message: message}
			if err := s.notifications.Create(ctx, n); err != nil {
				return fmt.Errorf("failed to notify user %d: %w", userID, err)
			}
			created = append(created, n)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	// Push strictly after commit. Acceptance by the hub only means the event
	// is queued; the connection marks it sent after writing it.
	pushed := 0
	for _, n := range created {
		accepted, err := s.hub.Publish(ctx, n.UserID, n.Event())
		if err != nil {
			s.logger.Warn("Failed to push notification",
				zap.Int64("user_id", n.UserID),
				zap.Int64("notification_id", n.ID),
				zap.Error(err))
			continue
		}
		if accepted {
			pushed++
		}
	}

	s.logger.Info("Notified followers",
		zap.String("ticker", ticker),
		zap.Int("created", len(created)),
		zap.Int("pushed", pushed))

	return len(created), nil
}

func (s *notificationService) MarkDelivered(ctx context.Context, id int64) error {
	if err := s.notifications.MarkSent(ctx, []int64{id}); err != nil {
		return fmt.Errorf("failed to mark notification %d sent: %w", id, err)
	}
	return nil
}

func (s *notificationService) CatchUp(ctx context.Context, userID int64, deliver func(models.PushEvent) error) (int, error) {
	unsent, err := s.notifications.ListUnsent(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to load unsent notifications: %w", err)
	}

	var (
		delivered  []int64
		deliverErr error
	)
	for _, n := range unsent {
		if err := deliver(n.Event()); err != nil {
			deliverErr = fmt.Errorf("failed to deliver notification %d: %w", n.ID, err)
			break
		}
		delivered = append(delivered, n.ID)
	}

	if err := s.notifications.MarkSent(ctx, delivered); err != nil {
		return 0, err
	}
	return len(delivered), deliverErr
}

func (s *notificationService) List(ctx context.Context, userID int64) ([]*models.Notification, error) {
	return s.notifications.ListForUser(ctx, userID)
}

func (s *notificationService) MarkRead(ctx context.Context, userID, id int64) error {
	return s.notifications.MarkRead(ctx, userID, id)
}

func (s *notificationService) Delete(ctx context.Context, userID, id int64) error {
	return s.notifications.Delete(ctx, userID, id)
}

func (s *notificationService) DeleteAll(ctx context.Context, userID int64) (int64, error) {
	return s.notifications.DeleteAll(ctx, userID)
}
