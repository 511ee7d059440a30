package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/stagepass/seat-reservation/internal/domain/seat"
	"github.com/stagepass/seat-reservation/internal/domain/transaction"
)

type seatRow struct {
	ID         string    `db:"id"`
	ShowID     string    `db:"show_id"`
	SectionID  string    `db:"section_id"`
	RowLabel   string    `db:"row_label"`
	SeatNumber int       `db:"seat_number"`
	PricePence int       `db:"price_pence"`
	Status     string    `db:"status"`
	HoldID     *string   `db:"hold_id"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
	Version    int       `db:"version"`
}

func (r *seatRow) toEntity() *seat.Seat {
	return &seat.Seat{
		ID: r.ID, ShowID: r.ShowID, SectionID: r.SectionID,
		Row: r.RowLabel, Number: r.SeatNumber, PricePence: r.PricePence,
		Status: seat.Status(r.Status), HoldID: r.HoldID,
		CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt, Version: r.Version,
	}
}

const seatColumns = `id, show_id, section_id, row_label, seat_number, price_pence, status, hold_id, created_at, updated_at, version`

type SeatRepository struct{ db *sqlx.DB }

func NewSeatRepository(db *sqlx.DB) *SeatRepository { return &SeatRepository{db: db} }

func (r *SeatRepository) CreateBulk(ctx context.Context, seats []*seat.Seat) error {
	if len(seats) == 0 {
		return nil
	}

	// バッチサイズごとに分割してマルチバリューINSERTを実行
	const batchSize = 1000
	for i := 0; i < len(seats); i += batchSize {
		end := i + batchSize
		if end > len(seats) {
			end = len(seats)
		}
		if err := r.createBulkBatch(ctx, seats[i:end]); err != nil {
			return err
		}
	}
	return nil
}

// createBulkBatch はバッチ単位でマルチバリューINSERTを実行
func (r *SeatRepository) createBulkBatch(ctx context.Context, seats []*seat.Seat) error {
	if len(seats) == 0 {
		return nil
	}

	query := `INSERT INTO seats (show_id, section_id, row_label, seat_number, price_pence, status, created_at, updated_at, version) VALUES `
	args := make([]interface{}, 0, len(seats)*9)
	placeholders := make([]string, 0, len(seats))

	for i, s := range seats {
		base := i * 9
		placeholders = append(placeholders, fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9))
		args = append(args, s.ShowID, s.SectionID, s.Row, s.Number, s.PricePence, string(s.Status), s.CreatedAt, s.UpdatedAt, s.Version)
	}

	query += strings.Join(placeholders, ", ") + ` RETURNING id`
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("座席一括作成に失敗: %w", err)
	}
	defer rows.Close()

	// RETURNING は VALUES の並び順で返る
	for i := 0; rows.Next(); i++ {
		if err := rows.Scan(&seats[i].ID); err != nil {
			return fmt.Errorf("座席IDの取得に失敗: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("座席一括作成に失敗: %w", err)
	}
	return nil
}

func (r *SeatRepository) GetByID(ctx context.Context, id string) (*seat.Seat, error) {
	query := `SELECT ` + seatColumns + ` FROM seats WHERE id = $1`
	var row seatRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, seat.ErrSeatNotFound
		}
		return nil, fmt.Errorf("座席取得に失敗: %w", err)
	}
	return row.toEntity(), nil
}

func (r *SeatRepository) GetByIDs(ctx context.Context, ids []string) ([]*seat.Seat, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `SELECT ` + seatColumns + ` FROM seats WHERE id = ANY($1) ORDER BY section_id, row_label, seat_number`
	var rows []seatRow
	if err := r.db.SelectContext(ctx, &rows, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("座席取得に失敗: %w", err)
	}
	return toEntities(rows), nil
}

func (r *SeatRepository) GetByShowID(ctx context.Context, showID string) ([]*seat.Seat, error) {
	query := `SELECT ` + seatColumns + ` FROM seats WHERE show_id = $1 ORDER BY section_id, row_label, seat_number`
	var rows []seatRow
	if err := r.db.SelectContext(ctx, &rows, query, showID); err != nil {
		return nil, err
	}
	return toEntities(rows), nil
}

func (r *SeatRepository) GetAvailableByShowID(ctx context.Context, showID string) ([]*seat.Seat, error) {
	query := `SELECT ` + seatColumns + ` FROM seats WHERE show_id = $1 AND status = 'available' ORDER BY section_id, row_label, seat_number`
	var rows []seatRow
	if err := r.db.SelectContext(ctx, &rows, query, showID); err != nil {
		return nil, err
	}
	return toEntities(rows), nil
}

func (r *SeatRepository) CountAvailableByShowID(ctx context.Context, showID string) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM seats WHERE show_id = $1 AND status = 'available'`, showID)
	return count, err
}

// ReclaimExpired は期限切れの active ホールドに紐づく座席を解放する
// スイープを待たずに TryHold のトランザクション内で再利用可能にするための処理
func (r *SeatRepository) ReclaimExpired(ctx context.Context, tx transaction.Tx, seatIDs []string, now time.Time) (int, error) {
	if len(seatIDs) == 0 {
		return 0, nil
	}
	query := `UPDATE seats
		SET status = 'available', hold_id = NULL, updated_at = NOW(), version = version + 1
		WHERE id = ANY($1) AND status = 'held'
		AND hold_id IN (SELECT id FROM holds WHERE state = 'active' AND expires_at < $2)`
	result, err := UnwrapTx(tx).ExecContext(ctx, query, pq.Array(seatIDs), now)
	if err != nil {
		return 0, fmt.Errorf("期限切れ座席の回収に失敗: %w", err)
	}
	rows, _ := result.RowsAffected()
	return int(rows), nil
}

// HoldSeats は座席をホールド状態に更新する
// ガード付きUPDATEとRowsAffectedの比較が原子的な取得判定そのものであり、
// 全件取得できない場合は ErrSeatConflict を返してトランザクションごと破棄させる
func (r *SeatRepository) HoldSeats(ctx context.Context, tx transaction.Tx, seatIDs []string, holdID string) error {
	if len(seatIDs) == 0 {
		return nil
	}
	query := `UPDATE seats
		SET status = 'held', hold_id = $1, updated_at = NOW(), version = version + 1
		WHERE id = ANY($2) AND status = 'available'`
	result, err := UnwrapTx(tx).ExecContext(ctx, query, holdID, pq.Array(seatIDs))
	if err != nil {
		return fmt.Errorf("座席ホールドに失敗: %w", err)
	}
	rows, _ := result.RowsAffected()
	if int(rows) != len(seatIDs) {
		return seat.ErrSeatConflict
	}
	return nil
}

func (r *SeatRepository) SellSeatsByHold(ctx context.Context, tx transaction.Tx, holdID string) ([]string, error) {
	query := `UPDATE seats
		SET status = 'sold', hold_id = NULL, updated_at = NOW(), version = version + 1
		WHERE hold_id = $1 AND status = 'held'
		RETURNING id`
	var ids []string
	if err := UnwrapTx(tx).SelectContext(ctx, &ids, query, holdID); err != nil {
		return nil, fmt.Errorf("座席販売確定に失敗: %w", err)
	}
	return ids, nil
}

func (r *SeatRepository) ReleaseSeatsByHold(ctx context.Context, tx transaction.Tx, holdID string) ([]string, error) {
	query := `UPDATE seats
		SET status = 'available', hold_id = NULL, updated_at = NOW(), version = version + 1
		WHERE hold_id = $1 AND status = 'held'
		RETURNING id`
	var ids []string
	if err := UnwrapTx(tx).SelectContext(ctx, &ids, query, holdID); err != nil {
		return nil, fmt.Errorf("座席解放に失敗: %w", err)
	}
	return ids, nil
}

func (r *SeatRepository) GetUnavailableIDs(ctx context.Context, seatIDs []string) ([]string, error) {
	if len(seatIDs) == 0 {
		return nil, nil
	}
	var ids []string
	query := `SELECT id FROM seats WHERE id = ANY($1) AND status <> 'available' ORDER BY id`
	if err := r.db.SelectContext(ctx, &ids, query, pq.Array(seatIDs)); err != nil {
		return nil, fmt.Errorf("競合座席の取得に失敗: %w", err)
	}
	return ids, nil
}

func toEntities(rows []seatRow) []*seat.Seat {
	seats := make([]*seat.Seat, len(rows))
	for i, row := range rows {
		seats[i] = row.toEntity()
	}
	return seats
}

var _ seat.Repository = (*SeatRepository)(nil)
