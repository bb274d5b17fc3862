package store

import (
	"context"
	"fmt"
	"time"

	"bloodlink/internal/matching"
	"bloodlink/internal/workflow"
	"bloodlink/pkg/types"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MatchStore backs candidate search and the workflow machine. Its
// transactions lock rows with SELECT ... FOR UPDATE under READ COMMITTED.
type MatchStore struct {
	pool   *pgxpool.Pool
	donors *DonorRepository
}

var (
	_ matching.DonorSource = (*MatchStore)(nil)
	_ workflow.Transactor  = (*MatchStore)(nil)
	_ workflow.Reader      = (*MatchStore)(nil)
)

func NewMatchStore(pool *pgxpool.Pool) *MatchStore {
	return &MatchStore{pool: pool, donors: NewDonorRepository(pool)}
}

func (s *MatchStore) Request(ctx context.Context, requestID string) (*types.BloodRequest, error) {
	return getRequest(ctx, s.pool, requestID, false)
}

func (s *MatchStore) Donor(ctx context.Context, donorID string) (*types.Donor, error) {
	return getDonor(ctx, s.pool, sq.Eq{"id": donorID}, false)
}

func (s *MatchStore) ActiveDonorsByBloodType(ctx context.Context, bloodType string) ([]*types.Donor, error) {
	return s.donors.ActiveDonorsByBloodType(ctx, bloodType)
}

func (s *MatchStore) Commitments(ctx context.Context, donorIDs []string) (matching.Commitments, error) {
	return loadCommitments(ctx, s.pool, donorIDs)
}

func (s *MatchStore) InTx(ctx context.Context, fn func(ctx context.Context, tx workflow.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin match tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	err = fn(ctx, &matchTx{tx: tx})
	if err != nil {
		return err
	}

	return mapPgError(tx.Commit(ctx), "failed to commit match tx")
}

type matchTx struct {
	tx pgx.Tx
}

func (t *matchTx) RequestForUpdate(ctx context.Context, requestID string) (*types.BloodRequest, error) {
	return getRequest(ctx, t.tx, requestID, true)
}

func (t *matchTx) DonorForUpdate(ctx context.Context, donorID string) (*types.Donor, error) {
	return getDonor(ctx, t.tx, sq.Eq{"id": donorID}, true)
}

func (t *matchTx) Commitments(ctx context.Context, donorIDs []string) (matching.Commitments, error) {
	return loadCommitments(ctx, t.tx, donorIDs)
}

func (t *matchTx) UpdateRequest(ctx context.Context, requestID string, update types.RequestUpdate) error {
	if err := update.Validate(); err != nil {
		return err
	}

	set := map[string]any{"updated_at": time.Now()}
	if update.Status != nil {
		set["status"] = string(*update.Status)
	}
	if update.SelectedDonorID != nil {
		set["selected_donor_id"] = *update.SelectedDonorID
	}
	if update.ClearSelectedDonor {
		set["selected_donor_id"] = nil
	}

	query, args, err := psql().
		Update(bloodRequestTableName).
		SetMap(set).
		Where(sq.Eq{"id": requestID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate request update: %w", err)
	}

	tag, err := t.tx.Exec(ctx, query, args...)
	if err != nil {
		return mapPgError(err, "failed to update request")
	}
	if tag.RowsAffected() == 0 {
		return types.ErrRequestNotFound
	}

	return nil
}

func (t *matchTx) UpdateDonor(ctx context.Context, donorID string, update types.DonorUpdate) error {
	if err := update.Validate(); err != nil {
		return err
	}

	set := map[string]any{"updated_at": time.Now()}
	if update.Status != nil {
		set["status"] = string(*update.Status)
	}
	if update.CurrentRequestID != nil {
		set["current_request_id"] = *update.CurrentRequestID
	}
	if update.ClearCurrentRequest {
		set["current_request_id"] = nil
	}
	if update.LastDonationDate != nil {
		set["last_donation_date"] = *update.LastDonationDate
	}

	query, args, err := psql().
		Update(donorTableName).
		SetMap(set).
		Where(sq.Eq{"id": donorID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate donor update: %w", err)
	}

	tag, err := t.tx.Exec(ctx, query, args...)
	if err != nil {
		return mapPgError(err, "failed to update donor")
	}
	if tag.RowsAffected() == 0 {
		return types.ErrDonorNotFound
	}

	return nil
}

func (t *matchTx) ClaimDonor(ctx context.Context, donorID, requestID string, expected *string) error {
	where := sq.Eq{"id": donorID, "current_request_id": nil}
	if expected != nil {
		where["current_request_id"] = *expected
	}

	query, args, err := psql().
		Update(donorTableName).
		Set("current_request_id", requestID).
		Set("updated_at", time.Now()).
		Where(where).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate donor claim: %w", err)
	}

	tag, err := t.tx.Exec(ctx, query, args...)
	if err != nil {
		return mapPgError(err, "failed to claim donor")
	}
	if tag.RowsAffected() == 0 {
		return types.ErrDonorClaimed
	}

	return nil
}

type commitmentRow struct {
	DonorID   string `db:"donor_id"`
	RequestID string `db:"request_id"`
}

var openRequestFilter = sq.NotEq{"r.status": terminalStatuses()}

func terminalStatuses() []string {
	out := make([]string, len(types.TerminalRequestStatuses))
	for i, s := range types.TerminalRequestStatuses {
		out[i] = string(s)
	}
	return out
}

// loadCommitments finds the open request holding each donor. A request's
// selected_donor_id takes precedence over the donor's current_request_id.
func loadCommitments(ctx context.Context, q pgxscan.Querier, donorIDs []string) (matching.Commitments, error) {
	commitments := make(matching.Commitments)
	if len(donorIDs) == 0 {
		return commitments, nil
	}

	selectedQuery, selectedArgs, err := psql().
		Select("r.selected_donor_id AS donor_id", "r.id AS request_id").
		From(bloodRequestTableName + " r").
		Where(sq.Eq{"r.selected_donor_id": donorIDs}).
		Where(openRequestFilter).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate selected donor commitments query: %w", err)
	}

	currentQuery, currentArgs, err := psql().
		Select("d.id AS donor_id", "r.id AS request_id").
		From(donorTableName + " d").
		Join(bloodRequestTableName + " r ON r.id = d.current_request_id").
		Where(sq.Eq{"d.id": donorIDs}).
		Where(openRequestFilter).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate current request commitments query: %w", err)
	}

	var selected, current []*commitmentRow
	err = pgxscan.Select(ctx, q, &selected, selectedQuery, selectedArgs...)
	if err != nil {
		return nil, mapPgError(err, "failed to fetch selected donor commitments")
	}
	err = pgxscan.Select(ctx, q, &current, currentQuery, currentArgs...)
	if err != nil {
		return nil, mapPgError(err, "failed to fetch current request commitments")
	}

	for _, row := range current {
		commitments[row.DonorID] = row.RequestID
	}
	for _, row := range selected {
		commitments[row.DonorID] = row.RequestID
	}

	return commitments, nil
}
