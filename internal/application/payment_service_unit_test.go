package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/stagepass/seat-reservation/internal/domain/booking"
	"github.com/stagepass/seat-reservation/internal/domain/hold"
	"github.com/stagepass/seat-reservation/internal/domain/payment"
)

type paymentTestDeps struct {
	*holdTestDeps
	paymentRepo *MockPaymentRepository
	gateway     *MockGateway
	service     *PaymentService
}

func newPaymentTestDeps() *paymentTestDeps {
	holdDeps := newHoldTestDeps()
	paymentRepo := new(MockPaymentRepository)
	gateway := new(MockGateway)

	service := NewPaymentService(holdDeps.service, paymentRepo, holdDeps.seatRepo, gateway, "gbp", nil)

	return &paymentTestDeps{
		holdTestDeps: holdDeps,
		paymentRepo:  paymentRepo,
		gateway:      gateway,
		service:      service,
	}
}

// === BeginPayment ===

func TestPaymentService_BeginPayment_Success(t *testing.T) {
	deps := newPaymentTestDeps()
	ctx := context.Background()

	h := hold.New("show-1", "session-abc", nil, []string{"seat-1", "seat-2"}, 15*time.Minute)
	h.ID = "hold-1"

	newExpiry := time.Now().Add(15 * time.Minute)
	deps.holdRepo.On("ExtendExpiry", ctx, "hold-1", "session-abc", mock.AnythingOfType("time.Time")).
		Return(newExpiry, nil)
	deps.paymentRepo.On("GetOpenByHoldID", ctx, "hold-1").Return(nil, payment.ErrAttemptNotFound)
	deps.holdRepo.On("GetByID", ctx, "hold-1").Return(h, nil)
	deps.seatRepo.On("GetByIDs", ctx, h.SeatIDs).Return(testSeats("show-1", "seat-1", "seat-2"), nil)

	deps.gateway.On("CreateIntent", ctx, payment.IntentRequest{
		AmountPence: 10000,
		Currency:    "gbp",
		Metadata:    map[string]string{"hold_id": "hold-1", "show_id": "show-1"},
	}).Return(&payment.Intent{ProviderRef: "pi_123", ClientSecret: "secret_123"}, nil)

	deps.paymentRepo.On("Create", ctx, mock.AnythingOfType("*payment.Attempt")).Return(nil)

	result, err := deps.service.BeginPayment(ctx, "hold-1", "session-abc", nil)

	require.NoError(t, err)
	assert.Equal(t, "pi_123", result.Attempt.ProviderRef)
	assert.Equal(t, 10000, result.Attempt.AmountPence)
	assert.Equal(t, payment.StatePending, result.Attempt.State)
	assert.Equal(t, "secret_123", result.ClientSecret)
	assert.Equal(t, newExpiry, result.ExpiresAt)
	deps.gateway.AssertExpectations(t)
	deps.paymentRepo.AssertExpectations(t)
}

func TestPaymentService_BeginPayment_ExpiredHold(t *testing.T) {
	deps := newPaymentTestDeps()
	ctx := context.Background()

	expired := hold.New("show-1", "session-abc", nil, []string{"seat-1"}, 15*time.Minute)
	expired.ID = "hold-1"
	expired.ExpiresAt = time.Now().Add(-time.Minute)

	deps.holdRepo.On("ExtendExpiry", ctx, "hold-1", "session-abc", mock.AnythingOfType("time.Time")).
		Return(time.Time{}, hold.ErrHoldNotActive)
	deps.holdRepo.On("GetByID", ctx, "hold-1").Return(expired, nil)

	result, err := deps.service.BeginPayment(ctx, "hold-1", "session-abc", nil)

	assert.ErrorIs(t, err, hold.ErrHoldExpired)
	assert.Nil(t, result)
	deps.gateway.AssertNotCalled(t, "CreateIntent")
}

func TestPaymentService_BeginPayment_AttemptAlreadyOpen(t *testing.T) {
	deps := newPaymentTestDeps()
	ctx := context.Background()

	deps.holdRepo.On("ExtendExpiry", ctx, "hold-1", "session-abc", mock.AnythingOfType("time.Time")).
		Return(time.Now().Add(15*time.Minute), nil)
	open := payment.NewAttempt("hold-1", "pi_old", 10000, nil)
	deps.paymentRepo.On("GetOpenByHoldID", ctx, "hold-1").Return(open, nil)

	result, err := deps.service.BeginPayment(ctx, "hold-1", "session-abc", nil)

	assert.ErrorIs(t, err, payment.ErrAttemptAlreadyOpen)
	assert.Nil(t, result)
	deps.gateway.AssertNotCalled(t, "CreateIntent")
}

// === ConfirmPayment ===

func TestPaymentService_ConfirmPayment_Succeeded(t *testing.T) {
	deps := newPaymentTestDeps()
	ctx := context.Background()

	attempt := payment.NewAttempt("hold-1", "pi_123", 10000, nil)
	attempt.ID = "attempt-1"

	h := hold.New("show-1", "session-abc", nil, []string{"seat-1", "seat-2"}, 15*time.Minute)
	h.ID = "hold-1"

	deps.paymentRepo.On("GetByProviderRef", ctx, "pi_123").Return(attempt, nil)

	deps.holdRepo.On("GetByID", ctx, "hold-1").Return(h, nil)
	deps.seatRepo.On("GetByIDs", ctx, h.SeatIDs).Return(testSeats("show-1", "seat-1", "seat-2"), nil)
	deps.txManager.On("Begin", ctx).Return(deps.tx, nil)
	deps.tx.On("Rollback").Return(nil)
	deps.tx.On("Commit").Return(nil)
	deps.holdRepo.On("Promote", ctx, deps.tx, "hold-1", mock.AnythingOfType("time.Time")).Return(nil)
	deps.seatRepo.On("SellSeatsByHold", ctx, deps.tx, "hold-1").Return([]string{"seat-1", "seat-2"}, nil)
	deps.bookingRepo.On("Create", ctx, deps.tx, mock.AnythingOfType("*booking.Booking")).Return(nil)
	deps.seatCache.On("Invalidate", ctx, "show-1").Return(nil)

	deps.paymentRepo.On("MarkState", ctx, "attempt-1", payment.StateSucceeded, false).Return(nil)

	result, err := deps.service.ConfirmPayment(ctx, "pi_123", payment.OutcomeSucceeded)

	require.NoError(t, err)
	assert.False(t, result.RequiresReconciliation)
	require.NotNil(t, result.Booking)
	assert.Equal(t, "hold-1", result.Booking.HoldID)
	assert.Equal(t, payment.StateSucceeded, result.Attempt.State)
	deps.paymentRepo.AssertExpectations(t)
}

func TestPaymentService_ConfirmPayment_Failed(t *testing.T) {
	deps := newPaymentTestDeps()
	ctx := context.Background()

	attempt := payment.NewAttempt("hold-1", "pi_123", 10000, nil)
	attempt.ID = "attempt-1"

	h := hold.New("show-1", "session-abc", nil, []string{"seat-1"}, 15*time.Minute)
	h.ID = "hold-1"

	deps.paymentRepo.On("GetByProviderRef", ctx, "pi_123").Return(attempt, nil)
	deps.paymentRepo.On("MarkState", ctx, "attempt-1", payment.StateFailed, false).Return(nil)
	// 失敗したホールドは解放されて座席が空席に戻る
	deps.holdRepo.On("GetByID", ctx, "hold-1").Return(h, nil)
	deps.txManager.On("Begin", ctx).Return(deps.tx, nil)
	deps.tx.On("Rollback").Return(nil)
	deps.tx.On("Commit").Return(nil)
	deps.holdRepo.On("Release", ctx, deps.tx, "hold-1").Return(nil)
	deps.seatRepo.On("ReleaseSeatsByHold", ctx, deps.tx, "hold-1").Return([]string{"seat-1"}, nil)
	deps.seatCache.On("Invalidate", ctx, "show-1").Return(nil)

	result, err := deps.service.ConfirmPayment(ctx, "pi_123", payment.OutcomeFailed)

	require.NoError(t, err)
	assert.Nil(t, result.Booking)
	assert.Equal(t, payment.StateFailed, result.Attempt.State)
	deps.holdRepo.AssertCalled(t, "Release", ctx, deps.tx, "hold-1")
}

func TestPaymentService_ConfirmPayment_RequiresReconciliation(t *testing.T) {
	deps := newPaymentTestDeps()
	ctx := context.Background()

	attempt := payment.NewAttempt("hold-1", "pi_123", 10000, nil)
	attempt.ID = "attempt-1"

	expired := hold.New("show-1", "session-abc", nil, []string{"seat-1"}, 15*time.Minute)
	expired.ID = "hold-1"
	expired.State = hold.StateExpired

	deps.paymentRepo.On("GetByProviderRef", ctx, "pi_123").Return(attempt, nil)
	// 決済成功の通知が届いた時点でホールドは既に失効している
	deps.holdRepo.On("GetByID", ctx, "hold-1").Return(expired, nil)
	deps.paymentRepo.On("MarkState", ctx, "attempt-1", payment.StateSucceeded, true).Return(nil)

	result, err := deps.service.ConfirmPayment(ctx, "pi_123", payment.OutcomeSucceeded)

	require.NoError(t, err)
	assert.True(t, result.RequiresReconciliation)
	assert.Nil(t, result.Booking)
	assert.Equal(t, payment.StateSucceeded, result.Attempt.State)
	deps.paymentRepo.AssertExpectations(t)
}

func TestPaymentService_ConfirmPayment_ReplayIsIdempotent(t *testing.T) {
	deps := newPaymentTestDeps()
	ctx := context.Background()

	attempt := payment.NewAttempt("hold-1", "pi_123", 10000, nil)
	attempt.ID = "attempt-1"
	attempt.State = payment.StateSucceeded

	promoted := hold.New("show-1", "session-abc", nil, []string{"seat-1"}, 15*time.Minute)
	promoted.ID = "hold-1"
	promoted.State = hold.StatePromoted

	existing := &booking.Booking{ID: "booking-1", HoldID: "hold-1"}

	deps.paymentRepo.On("GetByProviderRef", ctx, "pi_123").Return(attempt, nil)
	deps.holdRepo.On("GetByID", ctx, "hold-1").Return(promoted, nil)
	deps.bookingRepo.On("GetByHoldID", ctx, "hold-1").Return(existing, nil)

	result, err := deps.service.ConfirmPayment(ctx, "pi_123", payment.OutcomeSucceeded)

	require.NoError(t, err)
	assert.Equal(t, "booking-1", result.Booking.ID)
	// 再送では状態を書き換えない
	deps.paymentRepo.AssertNotCalled(t, "MarkState")
}

func TestPaymentService_ConfirmPayment_UnknownRef(t *testing.T) {
	deps := newPaymentTestDeps()
	ctx := context.Background()

	deps.paymentRepo.On("GetByProviderRef", ctx, "pi_unknown").Return(nil, payment.ErrAttemptNotFound)

	result, err := deps.service.ConfirmPayment(ctx, "pi_unknown", payment.OutcomeSucceeded)

	assert.ErrorIs(t, err, payment.ErrAttemptNotFound)
	assert.Nil(t, result)
}
