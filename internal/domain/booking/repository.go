package booking

import (
	"context"

	"github.com/stagepass/seat-reservation/internal/domain/transaction"
)

// Repository は購入リポジトリのインターフェース
type Repository interface {
	// Create は新しい購入を作成する（トランザクション必須）
	Create(ctx context.Context, tx transaction.Tx, b *Booking) error

	// GetByID はIDから購入を取得する
	GetByID(ctx context.Context, id string) (*Booking, error)

	// GetByHoldID はホールドIDから購入を取得する
	GetByHoldID(ctx context.Context, holdID string) (*Booking, error)
}
