package store

import (
	"context"
	"fmt"
	"time"

	"bloodlink/internal/utils"
	"bloodlink/pkg/types"

	"github.com/jackc/pgx/v5/pgxpool"
)

type AdminLogRepository struct {
	pool *pgxpool.Pool
}

func NewAdminLogRepository(pool *pgxpool.Pool) *AdminLogRepository {
	return &AdminLogRepository{pool: pool}
}

func (r *AdminLogRepository) Create(ctx context.Context, log *types.AdminLog) error {
	log.ID = utils.NanoID()
	log.CreatedAt = time.Now()
	if log.Details == nil {
		log.Details = map[string]any{}
	}

	query, args, err := psql().
		Insert(adminLogTableName).
		SetMap(utils.StructToMap(log)).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate admin log insert: %w", err)
	}

	_, err = r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to insert admin log: %w", err)
	}

	return nil
}
