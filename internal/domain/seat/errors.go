package seat

import "errors"

// Seat ドメインのエラー定義
var (
	ErrSeatNotFound      = errors.New("座席が見つかりません")
	ErrSeatNotAvailable  = errors.New("座席はホールドできません")
	ErrSeatNotHeld       = errors.New("座席はホールドされていません")
	ErrSeatConflict      = errors.New("座席は他のホールドに取得されています")
	ErrShowIDRequired    = errors.New("公演IDは必須です")
	ErrSectionIDRequired = errors.New("セクションIDは必須です")
	ErrRowRequired       = errors.New("列は必須です")
	ErrInvalidSeatNumber = errors.New("座席番号は1以上である必要があります")
	ErrInvalidPrice      = errors.New("価格は正の値である必要があります")
)
