package store

import (
	"context"
	"fmt"
	"time"

	"bloodlink/internal/utils"
	"bloodlink/pkg/types"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgxpool"
)

var notificationColumns = utils.StructTagValues(types.Notification{})

type NotificationRepository struct {
	pool *pgxpool.Pool
}

func NewNotificationRepository(pool *pgxpool.Pool) *NotificationRepository {
	return &NotificationRepository{pool: pool}
}

func (r *NotificationRepository) CreateNotification(ctx context.Context, notification *types.Notification) error {
	notification.ID = utils.NanoID()
	notification.IsRead = false
	notification.ReadAt = nil
	if notification.CreatedAt.IsZero() {
		notification.CreatedAt = time.Now()
	}

	query, args, err := psql().
		Insert(notificationTableName).
		SetMap(utils.StructToMap(notification)).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate create notification query: %w", err)
	}

	_, err = r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}

	return nil
}

// NotificationsByUser lists a user's notifications newest first.
func (r *NotificationRepository) NotificationsByUser(ctx context.Context, userID string, unreadOnly bool) ([]*types.Notification, error) {
	where := sq.Eq{"user_id": userID}
	if unreadOnly {
		where["is_read"] = false
	}

	query, args, err := psql().
		Select(notificationColumns...).
		From(notificationTableName).
		Where(where).
		OrderBy("created_at DESC", "id DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate notifications query: %w", err)
	}

	var notifications = make([]*types.Notification, 0)
	err = pgxscan.Select(ctx, r.pool, &notifications, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch notifications: %w", err)
	}

	return notifications, nil
}

func (r *NotificationRepository) UnreadCount(ctx context.Context, userID string) (int, error) {
	query, args, err := psql().
		Select("COUNT(*)").
		From(notificationTableName).
		Where(sq.Eq{"user_id": userID, "is_read": false}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to generate unread count query: %w", err)
	}

	var count int
	err = r.pool.QueryRow(ctx, query, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}

	return count, nil
}

// MarkRead marks one of userID's notifications as read. Marking a
// notification that belongs to someone else returns types.ErrForbidden.
func (r *NotificationRepository) MarkRead(ctx context.Context, notificationID, userID string) (*types.Notification, error) {
	query, args, err := psql().
		Select(notificationColumns...).
		From(notificationTableName).
		Where(sq.Eq{"id": notificationID}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate notification query: %w", err)
	}

	var notification = new(types.Notification)
	err = pgxscan.Get(ctx, r.pool, notification, query, args...)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, types.ErrNotificationNotFound
		}
		return nil, fmt.Errorf("failed to fetch notification: %w", err)
	}

	if notification.UserID != userID {
		return nil, fmt.Errorf("notification %s belongs to another user: %w", notificationID, types.ErrForbidden)
	}

	if notification.IsRead {
		return notification, nil
	}

	now := time.Now()
	updateQuery, updateArgs, err := psql().
		Update(notificationTableName).
		Set("is_read", true).
		Set("read_at", now).
		Where(sq.Eq{"id": notificationID, "user_id": userID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate mark read query: %w", err)
	}

	_, err = r.pool.Exec(ctx, updateQuery, updateArgs...)
	if err != nil {
		return nil, fmt.Errorf("failed to mark notification read: %w", err)
	}

	notification.IsRead = true
	notification.ReadAt = &now
	return notification, nil
}
