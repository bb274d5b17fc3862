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

var bloodRequestColumns = utils.StructTagValues(types.BloodRequest{})

type BloodRequestRepository struct {
	pool *pgxpool.Pool
}

func NewBloodRequestRepository(pool *pgxpool.Pool) *BloodRequestRepository {
	return &BloodRequestRepository{pool: pool}
}

func (r *BloodRequestRepository) Request(ctx context.Context, requestID string) (*types.BloodRequest, error) {
	return getRequest(ctx, r.pool, requestID, false)
}

func (r *BloodRequestRepository) RequestsByUser(ctx context.Context, userID string) ([]*types.BloodRequest, error) {
	query, args, err := psql().
		Select(bloodRequestColumns...).
		From(bloodRequestTableName).
		Where(sq.Eq{"user_id": userID}).
		OrderBy("created_at DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate requests by user query: %w", err)
	}

	var requests = make([]*types.BloodRequest, 0)
	err = pgxscan.Select(ctx, r.pool, &requests, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch requests by user: %w", err)
	}

	return requests, nil
}

// RequestsByStatus returns requests newest first. An empty status lists all.
func (r *BloodRequestRepository) RequestsByStatus(ctx context.Context, status types.RequestStatus) ([]*types.BloodRequest, error) {
	builder := psql().
		Select(bloodRequestColumns...).
		From(bloodRequestTableName).
		OrderBy("created_at DESC")
	if status != "" {
		builder = builder.Where(sq.Eq{"status": string(status)})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate requests by status query: %w", err)
	}

	var requests = make([]*types.BloodRequest, 0)
	err = pgxscan.Select(ctx, r.pool, &requests, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch requests by status: %w", err)
	}

	return requests, nil
}

// Create stores a new pending request with no selected donor.
func (r *BloodRequestRepository) Create(ctx context.Context, request *types.BloodRequest) error {
	now := time.Now()
	if request.ID == "" {
		request.ID = utils.NanoID()
	}
	request.Status = types.RequestStatusPending
	request.SelectedDonorID = nil
	request.CreatedAt = now
	request.UpdatedAt = now

	query, args, err := psql().
		Insert(bloodRequestTableName).
		SetMap(utils.StructToMap(request)).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate create request query: %w", err)
	}

	_, err = r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	return nil
}

func getRequest(ctx context.Context, q pgxscan.Querier, requestID string, forUpdate bool) (*types.BloodRequest, error) {
	builder := psql().
		Select(bloodRequestColumns...).
		From(bloodRequestTableName).
		Where(sq.Eq{"id": requestID}).
		Limit(1)
	if forUpdate {
		builder = builder.Suffix("FOR UPDATE")
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate request query: %w", err)
	}

	var request = new(types.BloodRequest)
	err = pgxscan.Get(ctx, q, request, query, args...)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, types.ErrRequestNotFound
		}
		return nil, mapPgError(err, "failed to fetch request")
	}

	return request, nil
}
