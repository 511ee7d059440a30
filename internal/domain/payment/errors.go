package payment

import "errors"

// Payment ドメインのエラー定義
var (
	ErrAttemptNotFound     = errors.New("決済試行が見つかりません")
	ErrAttemptAlreadyOpen  = errors.New("ホールドに対する進行中の決済試行が既に存在します")
	ErrHoldIDRequired      = errors.New("ホールドIDは必須です")
	ErrProviderRefRequired = errors.New("プロバイダー参照は必須です")
	ErrInvalidAmount       = errors.New("金額は1以上である必要があります")

	// ErrReconciliationRequired は決済成功とホールド期限切れが競合した
	// 致命的不整合を示す。通常の失敗とは区別してログ・通知される
	ErrReconciliationRequired = errors.New("決済成功済みだがホールドを確定できません（手動照合が必要です）")
)
