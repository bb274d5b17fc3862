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

var userColumns = utils.StructTagValues(types.User{})

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func (r *UserRepository) User(ctx context.Context, userID string) (*types.User, error) {
	query, args, err := psql().
		Select(userColumns...).
		From(userTableName).
		Where(sq.Eq{"id": userID}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate user query: %w", err)
	}

	var user types.User
	err = pgxscan.Get(ctx, r.pool, &user, query, args...)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, types.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to fetch user: %w", err)
	}

	return &user, nil
}

func (r *UserRepository) UsersByIDs(ctx context.Context, userIDs []string) ([]*types.User, error) {
	if len(userIDs) == 0 {
		return []*types.User{}, nil
	}

	query, args, err := psql().
		Select(userColumns...).
		From(userTableName).
		Where(sq.Eq{"id": userIDs}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate users-by-ids query: %w", err)
	}

	var users []*types.User
	err = pgxscan.Select(ctx, r.pool, &users, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch users by ids: %w", err)
	}

	return users, nil
}

func (r *UserRepository) Create(ctx context.Context, user *types.User) error {
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	query, args, err := psql().
		Insert(userTableName).
		SetMap(utils.StructToMap(user)).
		Suffix("ON CONFLICT (id) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate create user query: %w", err)
	}

	_, err = r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// UpdateProfile writes the user editable profile fields. Identity, admin
// flag and picture are left alone.
func (r *UserRepository) UpdateProfile(ctx context.Context, user *types.User) error {
	user.UpdatedAt = time.Now()

	query, args, err := psql().
		Update(userTableName).
		SetMap(map[string]any{
			"full_name":    user.FullName,
			"phone_number": user.PhoneNumber,
			"blood_type":   user.BloodType,
			"address":      user.Address,
			"location_lat": user.Lat,
			"location_lng": user.Lng,
			"is_available": user.IsAvailable,
			"updated_at":   user.UpdatedAt,
		}).
		Where(sq.Eq{"id": user.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate update user query: %w", err)
	}

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return types.ErrUserNotFound
	}

	return nil
}

// UpsertIdentity records the identity provider's view of a user the first
// time we see their token, and refreshes email on later calls.
func (r *UserRepository) UpsertIdentity(ctx context.Context, userID, email, fullName string) error {
	now := time.Now()

	query, args, err := psql().
		Insert(userTableName).
		Columns("id", "email", "full_name", "created_at", "updated_at").
		Values(userID, utils.TrimmedStringPtr(email), utils.TrimmedStringPtr(fullName), now, now).
		Suffix("ON CONFLICT (id) DO UPDATE SET email = COALESCE(EXCLUDED.email, users.email), full_name = COALESCE(users.full_name, EXCLUDED.full_name), updated_at = EXCLUDED.updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate upsert identity user query: %w", err)
	}

	_, err = r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to upsert user identity fields: %w", err)
	}

	return nil
}

func (r *UserRepository) SetProfilePicture(ctx context.Context, userID, key string) error {
	query, args, err := psql().
		Update(userTableName).
		Set("profile_picture_key", key).
		Set("updated_at", time.Now()).
		Where(sq.Eq{"id": userID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate profile picture query: %w", err)
	}

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to set profile picture: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return types.ErrUserNotFound
	}

	return nil
}
