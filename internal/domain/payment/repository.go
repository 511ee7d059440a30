package payment

import "context"

// Repository は決済試行リポジトリのインターフェース
type Repository interface {
	// Create は新しい決済試行を作成する
	// 同一ホールドに non-failed な試行が既にある場合は ErrAttemptAlreadyOpen
	Create(ctx context.Context, a *Attempt) error

	// GetByID はIDから決済試行を取得する
	GetByID(ctx context.Context, id string) (*Attempt, error)

	// GetByProviderRef はプロバイダー参照から決済試行を取得する
	GetByProviderRef(ctx context.Context, providerRef string) (*Attempt, error)

	// GetOpenByHoldID はホールドの進行中（pending）の試行を取得する
	GetOpenByHoldID(ctx context.Context, holdID string) (*Attempt, error)

	// MarkState は決済試行を終端状態へ更新する
	MarkState(ctx context.Context, id string, state State, requiresReconciliation bool) error
}
