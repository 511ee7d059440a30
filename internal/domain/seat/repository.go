package seat

import (
	"context"
	"time"

	"github.com/stagepass/seat-reservation/internal/domain/transaction"
)

// Repository は座席リポジトリのインターフェース
type Repository interface {
	// CreateBulk は複数の座席を一括作成する
	CreateBulk(ctx context.Context, seats []*Seat) error

	// GetByID はIDから座席を取得する
	GetByID(ctx context.Context, id string) (*Seat, error)

	// GetByIDs は複数IDから座席を取得する（見つかった分のみ返す）
	GetByIDs(ctx context.Context, ids []string) ([]*Seat, error)

	// GetByShowID は公演IDから座席一覧を取得する
	GetByShowID(ctx context.Context, showID string) ([]*Seat, error)

	// GetAvailableByShowID は公演IDから空席一覧を取得する
	GetAvailableByShowID(ctx context.Context, showID string) ([]*Seat, error)

	// CountAvailableByShowID は公演の空席数を取得する
	CountAvailableByShowID(ctx context.Context, showID string) (int, error)

	// ReclaimExpired は期限切れホールドに紐づく座席を解放する（トランザクション必須）
	// スイープ前でも期限切れは読み取り時点で判定される
	ReclaimExpired(ctx context.Context, tx transaction.Tx, seatIDs []string, now time.Time) (int, error)

	// HoldSeats は座席をホールド状態に更新する（全件成功しない場合は ErrSeatConflict、トランザクション必須）
	HoldSeats(ctx context.Context, tx transaction.Tx, seatIDs []string, holdID string) error

	// SellSeatsByHold はホールド中の座席を販売済みに更新し、対象座席IDを返す（トランザクション必須）
	SellSeatsByHold(ctx context.Context, tx transaction.Tx, holdID string) ([]string, error)

	// ReleaseSeatsByHold はホールド中の座席を解放し、対象座席IDを返す（トランザクション必須）
	ReleaseSeatsByHold(ctx context.Context, tx transaction.Tx, holdID string) ([]string, error)

	// GetUnavailableIDs は指定座席のうち現在空席でないIDを返す
	GetUnavailableIDs(ctx context.Context, seatIDs []string) ([]string, error)
}
