package booking

import "time"

// Booking は確定済み購入を表す
// ホールドの promote によってのみ作成され、以後不変
type Booking struct {
	ID               string
	HoldID           string
	ShowID           string
	UserID           *string
	CustomerEmail    *string
	SeatIDs          []string
	TotalAmountPence int
	PaymentRef       string
	CreatedAt        time.Time
}

// New は新しい購入を作成する
func New(holdID, showID string, userID, customerEmail *string, seatIDs []string, totalAmountPence int, paymentRef string) *Booking {
	return &Booking{
		HoldID:           holdID,
		ShowID:           showID,
		UserID:           userID,
		CustomerEmail:    customerEmail,
		SeatIDs:          seatIDs,
		TotalAmountPence: totalAmountPence,
		PaymentRef:       paymentRef,
		CreatedAt:        time.Now(),
	}
}

// Validate は購入の検証を行う
func (b *Booking) Validate() error {
	if b.HoldID == "" {
		return ErrHoldIDRequired
	}
	if b.ShowID == "" {
		return ErrShowIDRequired
	}
	if len(b.SeatIDs) == 0 {
		return ErrSeatIDsRequired
	}
	if b.TotalAmountPence < 0 {
		return ErrInvalidAmount
	}
	return nil
}
