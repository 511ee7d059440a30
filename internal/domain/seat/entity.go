package seat

import "time"

// Status は座席の状態を表す
type Status string

const (
	StatusAvailable Status = "available"
	StatusHeld      Status = "held"
	StatusSold      Status = "sold"
)

// Seat は座席エンティティを表す
// Status と HoldID は常に整合する（held のときのみ HoldID が設定される）
type Seat struct {
	ID         string
	ShowID     string
	SectionID  string
	Row        string
	Number     int
	PricePence int
	Status     Status
	HoldID     *string
	CreatedAt  time.Time
	UpdatedAt  time.Time
	Version    int // 楽観的ロック用
}

// NewSeat は新しい座席を作成する
func NewSeat(showID, sectionID, row string, number, pricePence int) *Seat {
	now := time.Now()
	return &Seat{
		ShowID:     showID,
		SectionID:  sectionID,
		Row:        row,
		Number:     number,
		PricePence: pricePence,
		Status:     StatusAvailable,
		CreatedAt:  now,
		UpdatedAt:  now,
		Version:    0,
	}
}

// IsAvailable は座席がホールド可能かを返す
func (s *Seat) IsAvailable() bool {
	return s.Status == StatusAvailable
}

// Hold は座席をホールド状態にする
func (s *Seat) Hold(holdID string) error {
	if s.Status != StatusAvailable {
		return ErrSeatNotAvailable
	}
	s.Status = StatusHeld
	s.HoldID = &holdID
	s.UpdatedAt = time.Now()
	return nil
}

// Sell は座席を販売済み状態にする
func (s *Seat) Sell() error {
	if s.Status != StatusHeld {
		return ErrSeatNotHeld
	}
	s.Status = StatusSold
	s.HoldID = nil
	s.UpdatedAt = time.Now()
	return nil
}

// Release は座席を解放する
func (s *Seat) Release() {
	s.Status = StatusAvailable
	s.HoldID = nil
	s.UpdatedAt = time.Now()
}

// Validate は座席の検証を行う
func (s *Seat) Validate() error {
	if s.ShowID == "" {
		return ErrShowIDRequired
	}
	if s.SectionID == "" {
		return ErrSectionIDRequired
	}
	if s.Row == "" {
		return ErrRowRequired
	}
	if s.Number <= 0 {
		return ErrInvalidSeatNumber
	}
	if s.PricePence <= 0 {
		return ErrInvalidPrice
	}
	return nil
}
