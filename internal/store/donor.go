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

var donorColumns = utils.StructTagValues(types.Donor{})

type DonorRepository struct {
	pool *pgxpool.Pool
}

func NewDonorRepository(pool *pgxpool.Pool) *DonorRepository {
	return &DonorRepository{pool: pool}
}

func (r *DonorRepository) Donor(ctx context.Context, donorID string) (*types.Donor, error) {
	return getDonor(ctx, r.pool, sq.Eq{"id": donorID}, false)
}

func (r *DonorRepository) ByUserID(ctx context.Context, userID string) (*types.Donor, error) {
	return getDonor(ctx, r.pool, sq.Eq{"user_id": userID}, false)
}

// ListByStatus returns donors newest first. An empty status lists all.
func (r *DonorRepository) ListByStatus(ctx context.Context, status types.DonorStatus) ([]*types.Donor, error) {
	builder := psql().
		Select(donorColumns...).
		From(donorTableName).
		OrderBy("created_at DESC")
	if status != "" {
		builder = builder.Where(sq.Eq{"status": string(status)})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate donors by status query: %w", err)
	}

	var donors = make([]*types.Donor, 0)
	err = pgxscan.Select(ctx, r.pool, &donors, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch donors by status: %w", err)
	}

	return donors, nil
}

func (r *DonorRepository) ActiveDonorsByBloodType(ctx context.Context, bloodType string) ([]*types.Donor, error) {
	query, args, err := psql().
		Select(donorColumns...).
		From(donorTableName).
		Where(sq.Eq{"status": string(types.DonorStatusActive), "blood_type": bloodType}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate active donors query: %w", err)
	}

	var donors = make([]*types.Donor, 0)
	err = pgxscan.Select(ctx, r.pool, &donors, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch active donors: %w", err)
	}

	return donors, nil
}

// Create registers donor as pending and copies its blood type onto the
// owning user in the same transaction. A second registration for the same
// user returns types.ErrDonorAlreadyRegistered.
func (r *DonorRepository) Create(ctx context.Context, donor *types.Donor) error {
	now := time.Now()
	donor.ID = utils.NanoID()
	donor.Status = types.DonorStatusPending
	donor.CurrentRequestID = nil
	donor.CreatedAt = now
	donor.UpdatedAt = now
	if donor.HealthConditions == nil {
		donor.HealthConditions = []string{}
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin tx for donor create: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	insertQuery, insertArgs, err := psql().
		Insert(donorTableName).
		SetMap(utils.StructToMap(donor)).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate donor insert: %w", err)
	}

	_, err = tx.Exec(ctx, insertQuery, insertArgs...)
	if err != nil {
		if isUniqueViolation(err) {
			return types.ErrDonorAlreadyRegistered
		}
		return fmt.Errorf("failed to insert donor: %w", err)
	}

	syncQuery, syncArgs, err := psql().
		Update(userTableName).
		Set("blood_type", donor.BloodType).
		Set("updated_at", now).
		Where(sq.Eq{"id": donor.UserID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate user blood type sync: %w", err)
	}

	_, err = tx.Exec(ctx, syncQuery, syncArgs...)
	if err != nil {
		return fmt.Errorf("failed to sync user blood type: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit donor create tx: %w", err)
	}

	return nil
}

func getDonor(ctx context.Context, q pgxscan.Querier, where sq.Eq, forUpdate bool) (*types.Donor, error) {
	builder := psql().
		Select(donorColumns...).
		From(donorTableName).
		Where(where).
		Limit(1)
	if forUpdate {
		builder = builder.Suffix("FOR UPDATE")
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate donor query: %w", err)
	}

	var donor = new(types.Donor)
	err = pgxscan.Get(ctx, q, donor, query, args...)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, types.ErrDonorNotFound
		}
		return nil, mapPgError(err, "failed to fetch donor")
	}

	return donor, nil
}
