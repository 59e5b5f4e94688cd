package repositories

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/sentify-hq/sentify-engine/pkg/apperrors"
	"github.com/sentify-hq/sentify-engine/pkg/database"
	"github.com/sentify-hq/sentify-engine/pkg/models"
)

// NotificationRepository defines the interface for notification data access.
type NotificationRepository interface {
	// Create inserts an unread, unsent notification and sets its ID and Time.
	Create(ctx context.Context, n *models.Notification) error
	// ListUnsent returns the user's unsent notifications in creation order.
	ListUnsent(ctx context.Context, userID int64) ([]*models.Notification, error)
	MarkSent(ctx context.Context, ids []int64) error
	// ListForUser returns all of a user's notifications, newest first.
	ListForUser(ctx context.Context, userID int64) ([]*models.Notification, error)
	MarkRead(ctx context.Context, userID, id int64) error
	Delete(ctx context.Context, userID, id int64) error
	DeleteAll(ctx context.Context, userID int64) (int64, error)
}

type notificationRepository struct {
	db *database.DB
}

var _ NotificationRepository = (*notificationRepository)(nil)

// NewNotificationRepository creates a new notification repository.
func NewNotificationRepository(db *database.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

func (r *notificationRepository) Create(ctx context.Context, n *models.Notification) error {
	err := r.db.Querier(ctx).QueryRow(ctx, `
		INSERT INTO notifications (user_id, message)
		VALUES ($1, $2)
		RETURNING id, time, read, sent`,
		n.UserID, n.Message,
	).Scan(&n.ID, &n.Time, &n.Read, &n.Sent)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

const notificationColumns = `id, user_id, message, time, read, sent`

func (r *notificationRepository) list(ctx context.Context, query string, args ...any) ([]*models.Notification, error) {
	rows, err := r.db.Querier(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	notifications, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.Notification, error) {
		var n models.Notification
		err := row.Scan(&n.ID, &n.UserID, &n.Message, &n.Time, &n.Read, &n.Sent)
		return &n, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan notification: %w", err)
	}
	return notifications, nil
}

func (r *notificationRepository) ListUnsent(ctx context.Context, userID int64) ([]*models.Notification, error) {
	return r.list(ctx,
		`SELECT `+notificationColumns+` FROM notifications WHERE user_id = $1 AND sent = FALSE ORDER BY id`,
		userID)
}

func (r *notificationRepository) ListForUser(ctx context.Context, userID int64) ([]*models.Notification, error) {
	return r.list(ctx,
		`SELECT `+notificationColumns+` FROM notifications WHERE user_id = $1 ORDER BY id DESC`,
		userID)
}

func (r *notificationRepository) MarkSent(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := r.db.Querier(ctx).Exec(ctx,
		`UPDATE notifications SET sent = TRUE WHERE id = ANY($1)`, ids); err != nil {
		return fmt.Errorf("failed to mark notifications sent: %w", err)
	}
	return nil
}

func (r *notificationRepository) MarkRead(ctx context.Context, userID, id int64) error {
	tag, err := r.db.Querier(ctx).Exec(ctx,
		`UPDATE notifications SET read = TRUE WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *notificationRepository) Delete(ctx context.Context, userID, id int64) error {
	tag, err := r.db.Querier(ctx).Exec(ctx,
		`DELETE FROM notifications WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete notification: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *notificationRepository) DeleteAll(ctx context.Context, userID int64) (int64, error) {
	tag, err := r.db.Querier(ctx).Exec(ctx, `DELETE FROM notifications WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete notifications: %w", err)
	}
	return tag.RowsAffected(), nil
}
