package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/stagepass/seat-reservation/internal/domain/payment"
)

type paymentAttemptRow struct {
	ID                     string    `db:"id"`
	HoldID                 string    `db:"hold_id"`
	ProviderRef            string    `db:"provider_ref"`
	AmountPence            int       `db:"amount_pence"`
	State                  string    `db:"state"`
	RequiresReconciliation bool      `db:"requires_reconciliation"`
	CustomerEmail          *string   `db:"customer_email"`
	CreatedAt              time.Time `db:"created_at"`
	UpdatedAt              time.Time `db:"updated_at"`
}

func (r *paymentAttemptRow) toEntity() *payment.Attempt {
	return &payment.Attempt{
		ID: r.ID, HoldID: r.HoldID, ProviderRef: r.ProviderRef,
		AmountPence: r.AmountPence, State: payment.State(r.State),
		RequiresReconciliation: r.RequiresReconciliation,
		CustomerEmail:          r.CustomerEmail,
		CreatedAt:              r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
}

const paymentAttemptColumns = `id, hold_id, provider_ref, amount_pence, state, requires_reconciliation, customer_email, created_at, updated_at`

type PaymentAttemptRepository struct{ db *sqlx.DB }

func NewPaymentAttemptRepository(db *sqlx.DB) *PaymentAttemptRepository {
	return &PaymentAttemptRepository{db: db}
}

// Create は決済試行を作成する
// non-failed 試行の一意性は部分ユニークインデックスで担保され、違反は ErrAttemptAlreadyOpen
func (r *PaymentAttemptRepository) Create(ctx context.Context, a *payment.Attempt) error {
	query := `INSERT INTO payment_attempts (hold_id, provider_ref, amount_pence, state, requires_reconciliation, customer_email, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`
	if err := r.db.QueryRowContext(ctx, query,
		a.HoldID, a.ProviderRef, a.AmountPence, string(a.State),
		a.RequiresReconciliation, a.CustomerEmail, a.CreatedAt, a.UpdatedAt,
	).Scan(&a.ID); err != nil {
		if pgErr, ok := err.(*pq.Error); ok && pgErr.Code == "23505" {
			return payment.ErrAttemptAlreadyOpen
		}
		return fmt.Errorf("決済試行作成に失敗: %w", err)
	}
	return nil
}

func (r *PaymentAttemptRepository) GetByID(ctx context.Context, id string) (*payment.Attempt, error) {
	var row paymentAttemptRow
	query := `SELECT ` + paymentAttemptColumns + ` FROM payment_attempts WHERE id = $1`
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, payment.ErrAttemptNotFound
		}
		return nil, fmt.Errorf("決済試行取得に失敗: %w", err)
	}
	return row.toEntity(), nil
}

func (r *PaymentAttemptRepository) GetByProviderRef(ctx context.Context, providerRef string) (*payment.Attempt, error) {
	var row paymentAttemptRow
	query := `SELECT ` + paymentAttemptColumns + ` FROM payment_attempts WHERE provider_ref = $1`
	if err := r.db.GetContext(ctx, &row, query, providerRef); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, payment.ErrAttemptNotFound
		}
		return nil, fmt.Errorf("決済試行取得に失敗: %w", err)
	}
	return row.toEntity(), nil
}

func (r *PaymentAttemptRepository) GetOpenByHoldID(ctx context.Context, holdID string) (*payment.Attempt, error) {
	var row paymentAttemptRow
	query := `SELECT ` + paymentAttemptColumns + ` FROM payment_attempts WHERE hold_id = $1 AND state = 'pending'`
	if err := r.db.GetContext(ctx, &row, query, holdID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, payment.ErrAttemptNotFound
		}
		return nil, fmt.Errorf("決済試行取得に失敗: %w", err)
	}
	return row.toEntity(), nil
}

func (r *PaymentAttemptRepository) MarkState(ctx context.Context, id string, state payment.State, requiresReconciliation bool) error {
	query := `UPDATE payment_attempts SET state = $1, requires_reconciliation = $2, updated_at = NOW() WHERE id = $3`
	result, err := r.db.ExecContext(ctx, query, string(state), requiresReconciliation, id)
	if err != nil {
		return fmt.Errorf("決済試行更新に失敗: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return payment.ErrAttemptNotFound
	}
	return nil
}

var _ payment.Repository = (*PaymentAttemptRepository)(nil)
