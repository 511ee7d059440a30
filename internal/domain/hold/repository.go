package hold

import (
	"context"
	"time"

	"github.com/stagepass/seat-reservation/internal/domain/transaction"
)

// Repository はホールドリポジトリのインターフェース
// 状態遷移は全てガード付きUPDATE（現在状態の再確認込み）で行い、
// 条件を満たさない場合は ErrHoldNotActive を返す
type Repository interface {
	// Create は新しいホールドを作成する（トランザクション必須）
	Create(ctx context.Context, tx transaction.Tx, h *Hold) error

	// GetByID はIDからホールドを取得する
	GetByID(ctx context.Context, id string) (*Hold, error)

	// GetByIdempotencyKey は冪等性キーからホールドを取得する
	GetByIdempotencyKey(ctx context.Context, key string) (*Hold, error)

	// ExtendExpiry は有効なホールドの期限を元のTTL分延長し、新しい期限を返す
	ExtendExpiry(ctx context.Context, id, sessionToken string, now time.Time) (time.Time, error)

	// Promote は有効なホールドを promoted に遷移させる（トランザクション必須）
	Promote(ctx context.Context, tx transaction.Tx, id string, now time.Time) error

	// Release は active なホールドを released に遷移させる（トランザクション必須）
	Release(ctx context.Context, tx transaction.Tx, id string) error

	// Expire は期限超過した active なホールドを expired に遷移させる（トランザクション必須）
	Expire(ctx context.Context, tx transaction.Tx, id string, now time.Time) error

	// ListExpiredActive は期限超過した active なホールドを取得する
	ListExpiredActive(ctx context.Context, now time.Time, limit int) ([]*Hold, error)
}
