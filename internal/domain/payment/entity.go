package payment

import "time"

// State は決済試行の状態を表す
type State string

const (
	StatePending   State = "pending"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// Outcome は決済プロバイダーからの最終結果を表す
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
)

// Attempt は決済試行を表す
// 1つのホールドに対して non-failed な試行は同時に高々1つ
type Attempt struct {
	ID          string
	HoldID      string
	ProviderRef string
	AmountPence int
	State       State
	// RequiresReconciliation は決済成功後にホールドが確定できなかった
	// 不整合（手動対応が必要）を示す
	RequiresReconciliation bool
	CustomerEmail          *string
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// NewAttempt は新しい決済試行を作成する
func NewAttempt(holdID, providerRef string, amountPence int, customerEmail *string) *Attempt {
	now := time.Now()
	return &Attempt{
		HoldID:        holdID,
		ProviderRef:   providerRef,
		AmountPence:   amountPence,
		State:         StatePending,
		CustomerEmail: customerEmail,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// IsTerminal は決済試行が終端状態かを返す
func (a *Attempt) IsTerminal() bool {
	return a.State != StatePending
}

// Validate は決済試行の検証を行う
func (a *Attempt) Validate() error {
	if a.HoldID == "" {
		return ErrHoldIDRequired
	}
	if a.ProviderRef == "" {
		return ErrProviderRefRequired
	}
	if a.AmountPence <= 0 {
		return ErrInvalidAmount
	}
	return nil
}
