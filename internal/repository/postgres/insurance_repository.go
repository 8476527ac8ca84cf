package postgres

import (
	"context"
	"errors"
	"fmt"

	domainErrors "github.com/genovahq/insurance/internal/domain/errors"
	"github.com/genovahq/insurance/internal/domain/insurance"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// InsuranceRepository implements insurance.Repository using PostgreSQL.
// One row per order; each state transition lands as a single upsert so
// concurrent writers never observe a half-applied transition.
type InsuranceRepository struct {
	pool *pgxpool.Pool
}

func NewInsuranceRepository(pool *pgxpool.Pool) *InsuranceRepository {
	return &InsuranceRepository{pool: pool}
}

func (r *InsuranceRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

const recordColumns = `order_id, plan_id, fee_cents, policy_id, retry_count, last_error, policy_payload, status, created_at, updated_at`

// Get returns the record for an order, or ErrRecordNotFound.
func (r *InsuranceRepository) Get(ctx context.Context, orderID string) (*insurance.Record, error) {
	return r.scanRecord(r.db(ctx).QueryRow(ctx,
		`SELECT `+recordColumns+` FROM insurance_records WHERE order_id = $1`, orderID))
}

// GetOrCreate returns the record for an order, creating an empty no_plan row
// if none exists. The insert is conflict-safe so concurrent callers converge
// on the same row.
func (r *InsuranceRepository) GetOrCreate(ctx context.Context, orderID string) (*insurance.Record, error) {
	rec, err := r.Get(ctx, orderID)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, domainErrors.ErrRecordNotFound) {
		return nil, err
	}

	fresh := insurance.NewRecord(orderID)
	_, err = r.db(ctx).Exec(ctx,
		`INSERT INTO insurance_records (order_id, plan_id, fee_cents, policy_id, status, created_at, updated_at)
		 VALUES ($1, '', 0, '', $2, $3, $4)
		 ON CONFLICT (order_id) DO NOTHING`,
		orderID, string(fresh.Status), fresh.CreatedAt, fresh.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create insurance record: %w", err)
	}

	return r.Get(ctx, orderID)
}

// Save upserts the full record state in one statement.
func (r *InsuranceRepository) Save(ctx context.Context, rec *insurance.Record) error {
	_, err := r.db(ctx).Exec(ctx,
		`INSERT INTO insurance_records
		 (order_id, plan_id, fee_cents, policy_id, retry_count, last_error, policy_payload, status, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		 ON CONFLICT (order_id) DO UPDATE SET
		  plan_id = EXCLUDED.plan_id,
		  fee_cents = EXCLUDED.fee_cents,
		  policy_id = EXCLUDED.policy_id,
		  retry_count = EXCLUDED.retry_count,
		  last_error = EXCLUDED.last_error,
		  policy_payload = EXCLUDED.policy_payload,
		  status = EXCLUDED.status,
		  updated_at = EXCLUDED.updated_at`,
		rec.OrderID, rec.PlanID, rec.FeeCents, rec.PolicyID, rec.RetryCount, rec.LastError,
		rec.PolicyPayload, string(rec.Status), rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save insurance record: %w", err)
	}
	return nil
}

// ListFailed returns records in a failure-terminal state, oldest first.
func (r *InsuranceRepository) ListFailed(ctx context.Context, limit int) ([]*insurance.Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db(ctx).Query(ctx,
		`SELECT `+recordColumns+` FROM insurance_records
		 WHERE status = ANY($1) ORDER BY updated_at ASC LIMIT $2`,
		[]string{string(insurance.StatusFailedNoRetry), string(insurance.StatusExhausted)}, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list failed insurance records: %w", err)
	}
	defer rows.Close()

	var records []*insurance.Record
	for rows.Next() {
		rec, err := r.scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// scanner is satisfied by both pgx.Row and pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func (r *InsuranceRepository) scanRecord(s scanner) (*insurance.Record, error) {
	rec := &insurance.Record{}
	var status string
	err := s.Scan(
		&rec.OrderID, &rec.PlanID, &rec.FeeCents, &rec.PolicyID,
		&rec.RetryCount, &rec.LastError, &rec.PolicyPayload,
		&status, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrRecordNotFound
		}
		return nil, fmt.Errorf("scan insurance record: %w", err)
	}
	rec.Status = insurance.Status(status)
	return rec, nil
}
