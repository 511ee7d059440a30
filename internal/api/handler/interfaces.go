package handler

import (
	"context"
	"time"

	"github.com/stagepass/seat-reservation/internal/application"
	"github.com/stagepass/seat-reservation/internal/domain/hold"
	"github.com/stagepass/seat-reservation/internal/domain/payment"
	"github.com/stagepass/seat-reservation/internal/domain/seat"
)

// HoldServiceInterface はホールドサービスのインターフェース
type HoldServiceInterface interface {
	TryHold(ctx context.Context, input application.TryHoldInput) (*application.TryHoldResult, error)
	Renew(ctx context.Context, holdID, sessionToken string) (time.Time, error)
	Release(ctx context.Context, holdID, sessionToken string) error
	GetHold(ctx context.Context, holdID string) (*hold.Hold, error)
}

// SeatServiceInterface は座席サービスのインターフェース
type SeatServiceInterface interface {
	CreateBulk(ctx context.Context, showID string, inputs []application.SeatInput) ([]*seat.Seat, error)
	GetSeat(ctx context.Context, id string) (*seat.Seat, error)
	ListByShow(ctx context.Context, showID string, availableOnly bool) ([]*seat.Seat, error)
	CountAvailable(ctx context.Context, showID string) (int, error)
}

// RulesServiceInterface は座席選択ルール検証のインターフェース
type RulesServiceInterface interface {
	ValidateSelection(ctx context.Context, showID string, seatIDs []string) (*application.ValidationResult, error)
}

// HoldRulesInterface はホールド作成前の強制ルールチェックのインターフェース
type HoldRulesInterface interface {
	ValidateHold(ctx context.Context, showID string, seatIDs []string) (*application.ValidationResult, error)
}

// PaymentServiceInterface は決済サービスのインターフェース
type PaymentServiceInterface interface {
	BeginPayment(ctx context.Context, holdID, sessionToken string, customerEmail *string) (*application.BeginPaymentResult, error)
	ConfirmPayment(ctx context.Context, providerRef string, outcome payment.Outcome) (*application.ConfirmPaymentResult, error)
}

// WebhookVerifier は決済プロバイダーからの Webhook 署名を検証する
type WebhookVerifier interface {
	Verify(payload []byte, sigHeader string) (providerRef string, outcome payment.Outcome, handled bool, err error)
}
