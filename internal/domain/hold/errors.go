package hold

import "errors"

// Hold ドメインのエラー定義
var (
	ErrHoldNotFound                = errors.New("ホールドが見つかりません")
	ErrHoldNotActive               = errors.New("ホールドは有効ではありません")
	ErrHoldExpired                 = errors.New("ホールドの有効期限が切れています")
	ErrHoldAlreadyTerminal         = errors.New("ホールドは既に終端状態です")
	ErrHoldNotOwned                = errors.New("ホールドの所有者ではありません")
	ErrShowIDRequired              = errors.New("公演IDは必須です")
	ErrSessionTokenRequired        = errors.New("セッショントークンは必須です")
	ErrSeatIDsRequired             = errors.New("座席IDは必須です")
	ErrIdempotencyKeyAlreadyExists = errors.New("同じ冪等性キーのホールドが既に存在します")
)
