package booking

import "errors"

// Booking ドメインのエラー定義
var (
	ErrBookingNotFound      = errors.New("購入が見つかりません")
	ErrBookingAlreadyExists = errors.New("ホールドに対する購入が既に存在します")
	ErrHoldIDRequired       = errors.New("ホールドIDは必須です")
	ErrShowIDRequired       = errors.New("公演IDは必須です")
	ErrSeatIDsRequired      = errors.New("座席IDは必須です")
	ErrInvalidAmount        = errors.New("金額は0以上である必要があります")
)
