package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/stagepass/seat-reservation/internal/domain/booking"
	"github.com/stagepass/seat-reservation/internal/domain/transaction"
)

type bookingRow struct {
	ID               string    `db:"id"`
	HoldID           string    `db:"hold_id"`
	ShowID           string    `db:"show_id"`
	UserID           *string   `db:"user_id"`
	CustomerEmail    *string   `db:"customer_email"`
	TotalAmountPence int       `db:"total_amount_pence"`
	PaymentRef       string    `db:"payment_ref"`
	CreatedAt        time.Time `db:"created_at"`
}

const bookingColumns = `id, hold_id, show_id, user_id, customer_email, total_amount_pence, payment_ref, created_at`

type BookingRepository struct{ db *sqlx.DB }

func NewBookingRepository(db *sqlx.DB) *BookingRepository { return &BookingRepository{db: db} }

func (r *BookingRepository) Create(ctx context.Context, tx transaction.Tx, b *booking.Booking) error {
	query := `INSERT INTO bookings (hold_id, show_id, user_id, customer_email, total_amount_pence, payment_ref, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`
	if err := UnwrapTx(tx).QueryRowContext(ctx, query,
		b.HoldID, b.ShowID, b.UserID, b.CustomerEmail, b.TotalAmountPence, b.PaymentRef, b.CreatedAt,
	).Scan(&b.ID); err != nil {
		if pgErr, ok := err.(*pq.Error); ok && pgErr.Code == "23505" {
			return booking.ErrBookingAlreadyExists
		}
		return fmt.Errorf("購入作成に失敗: %w", err)
	}
	return nil
}

func (r *BookingRepository) GetByID(ctx context.Context, id string) (*booking.Booking, error) {
	var row bookingRow
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, booking.ErrBookingNotFound
		}
		return nil, fmt.Errorf("購入取得に失敗: %w", err)
	}
	return r.toEntity(ctx, &row)
}

func (r *BookingRepository) GetByHoldID(ctx context.Context, holdID string) (*booking.Booking, error) {
	var row bookingRow
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE hold_id = $1`
	if err := r.db.GetContext(ctx, &row, query, holdID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, booking.ErrBookingNotFound
		}
		return nil, fmt.Errorf("購入取得に失敗: %w", err)
	}
	return r.toEntity(ctx, &row)
}

// 座席は hold_seats 経由で引く（購入はホールドの昇格でのみ作成されるため）
func (r *BookingRepository) toEntity(ctx context.Context, row *bookingRow) (*booking.Booking, error) {
	var seatIDs []string
	if err := r.db.SelectContext(ctx, &seatIDs, `SELECT seat_id FROM hold_seats WHERE hold_id = $1`, row.HoldID); err != nil {
		return nil, fmt.Errorf("購入座席取得に失敗: %w", err)
	}
	return &booking.Booking{
		ID: row.ID, HoldID: row.HoldID, ShowID: row.ShowID,
		UserID: row.UserID, CustomerEmail: row.CustomerEmail,
		SeatIDs: seatIDs, TotalAmountPence: row.TotalAmountPence,
		PaymentRef: row.PaymentRef, CreatedAt: row.CreatedAt,
	}, nil
}

var _ booking.Repository = (*BookingRepository)(nil)
