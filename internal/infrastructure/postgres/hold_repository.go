package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/stagepass/seat-reservation/internal/domain/hold"
	"github.com/stagepass/seat-reservation/internal/domain/transaction"
)

type holdRow struct {
	ID             string    `db:"id"`
	ShowID         string    `db:"show_id"`
	SessionToken   string    `db:"session_token"`
	UserID         *string   `db:"user_id"`
	State          string    `db:"state"`
	TTLSeconds     int       `db:"ttl_seconds"`
	IdempotencyKey *string   `db:"idempotency_key"`
	CreatedAt      time.Time `db:"created_at"`
	ExpiresAt      time.Time `db:"expires_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

const holdColumns = `id, show_id, session_token, user_id, state, ttl_seconds, idempotency_key, created_at, expires_at, updated_at`

type HoldRepository struct{ db *sqlx.DB }

func NewHoldRepository(db *sqlx.DB) *HoldRepository { return &HoldRepository{db: db} }

func (r *HoldRepository) Create(ctx context.Context, tx transaction.Tx, h *hold.Hold) error {
	query := `INSERT INTO holds (show_id, session_token, user_id, state, ttl_seconds, idempotency_key, created_at, expires_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`
	sqlxTx := UnwrapTx(tx)
	if err := sqlxTx.QueryRowContext(ctx, query,
		h.ShowID, h.SessionToken, h.UserID, string(h.State), int(h.TTL.Seconds()),
		h.IdempotencyKey, h.CreatedAt, h.ExpiresAt, h.UpdatedAt,
	).Scan(&h.ID); err != nil {
		if pgErr, ok := err.(*pq.Error); ok && pgErr.Code == "23505" {
			return hold.ErrIdempotencyKeyAlreadyExists
		}
		return fmt.Errorf("ホールド作成に失敗: %w", err)
	}
	for _, seatID := range h.SeatIDs {
		if _, err := sqlxTx.ExecContext(ctx, `INSERT INTO hold_seats (hold_id, seat_id) VALUES ($1, $2)`, h.ID, seatID); err != nil {
			return fmt.Errorf("ホールド座席関連付けに失敗: %w", err)
		}
	}
	return nil
}

func (r *HoldRepository) GetByID(ctx context.Context, id string) (*hold.Hold, error) {
	var row holdRow
	query := `SELECT ` + holdColumns + ` FROM holds WHERE id = $1`
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, hold.ErrHoldNotFound
		}
		return nil, fmt.Errorf("ホールド取得に失敗: %w", err)
	}
	seatIDs, err := r.getSeatIDs(ctx, row.ID)
	if err != nil {
		return nil, err
	}
	return r.toEntity(&row, seatIDs), nil
}

func (r *HoldRepository) GetByIdempotencyKey(ctx context.Context, key string) (*hold.Hold, error) {
	var row holdRow
	query := `SELECT ` + holdColumns + ` FROM holds WHERE idempotency_key = $1`
	if err := r.db.GetContext(ctx, &row, query, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, hold.ErrHoldNotFound
		}
		return nil, fmt.Errorf("ホールド取得に失敗: %w", err)
	}
	seatIDs, err := r.getSeatIDs(ctx, row.ID)
	if err != nil {
		return nil, err
	}
	return r.toEntity(&row, seatIDs), nil
}

// ExtendExpiry はガード付きUPDATEで期限を元のTTL分延長する
// 期限切れ・終端・所有者不一致のいずれでも0行更新となり ErrHoldNotActive を返す
func (r *HoldRepository) ExtendExpiry(ctx context.Context, id, sessionToken string, now time.Time) (time.Time, error) {
	query := `UPDATE holds
		SET expires_at = $1 + make_interval(secs => ttl_seconds), updated_at = $1
		WHERE id = $2 AND session_token = $3 AND state = 'active' AND expires_at > $1
		RETURNING expires_at`
	var expiresAt time.Time
	if err := r.db.QueryRowContext(ctx, query, now, id, sessionToken).Scan(&expiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, hold.ErrHoldNotActive
		}
		return time.Time{}, fmt.Errorf("ホールド延長に失敗: %w", err)
	}
	return expiresAt, nil
}

// Promote は有効期限内の active ホールドのみを promoted に遷移させる
// スイープと競合した場合は先にコミットした側が勝ち、負けた側は ErrHoldNotActive を観測する
func (r *HoldRepository) Promote(ctx context.Context, tx transaction.Tx, id string, now time.Time) error {
	query := `UPDATE holds SET state = 'promoted', updated_at = $1
		WHERE id = $2 AND state = 'active' AND expires_at > $1`
	return r.execGuarded(ctx, tx, query, now, id)
}

func (r *HoldRepository) Release(ctx context.Context, tx transaction.Tx, id string) error {
	query := `UPDATE holds SET state = 'released', updated_at = NOW()
		WHERE id = $1 AND state = 'active'`
	return r.execGuarded(ctx, tx, query, id)
}

func (r *HoldRepository) Expire(ctx context.Context, tx transaction.Tx, id string, now time.Time) error {
	query := `UPDATE holds SET state = 'expired', updated_at = $1
		WHERE id = $2 AND state = 'active' AND expires_at < $1`
	return r.execGuarded(ctx, tx, query, now, id)
}

func (r *HoldRepository) execGuarded(ctx context.Context, tx transaction.Tx, query string, args ...interface{}) error {
	result, err := UnwrapTx(tx).ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("ホールド状態遷移に失敗: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return hold.ErrHoldNotActive
	}
	return nil
}

func (r *HoldRepository) ListExpiredActive(ctx context.Context, now time.Time, limit int) ([]*hold.Hold, error) {
	var rows []holdRow
	query := `SELECT ` + holdColumns + ` FROM holds
		WHERE state = 'active' AND expires_at < $1
		ORDER BY expires_at LIMIT $2`
	if err := r.db.SelectContext(ctx, &rows, query, now, limit); err != nil {
		return nil, fmt.Errorf("期限切れホールド取得に失敗: %w", err)
	}
	result := make([]*hold.Hold, len(rows))
	for i, row := range rows {
		seatIDs, err := r.getSeatIDs(ctx, row.ID)
		if err != nil {
			return nil, err
		}
		result[i] = r.toEntity(&row, seatIDs)
	}
	return result, nil
}

func (r *HoldRepository) getSeatIDs(ctx context.Context, holdID string) ([]string, error) {
	var seatIDs []string
	if err := r.db.SelectContext(ctx, &seatIDs, `SELECT seat_id FROM hold_seats WHERE hold_id = $1`, holdID); err != nil {
		return nil, fmt.Errorf("座席ID取得に失敗: %w", err)
	}
	return seatIDs, nil
}

func (r *HoldRepository) toEntity(row *holdRow, seatIDs []string) *hold.Hold {
	return &hold.Hold{
		ID: row.ID, ShowID: row.ShowID, SeatIDs: seatIDs,
		SessionToken: row.SessionToken, UserID: row.UserID,
		State: hold.State(row.State), TTL: time.Duration(row.TTLSeconds) * time.Second,
		IdempotencyKey: row.IdempotencyKey,
		CreatedAt:      row.CreatedAt, ExpiresAt: row.ExpiresAt, UpdatedAt: row.UpdatedAt,
	}
}

var _ hold.Repository = (*HoldRepository)(nil)
