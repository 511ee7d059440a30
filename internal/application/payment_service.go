package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/stagepass/seat-reservation/internal/domain/booking"
	"github.com/stagepass/seat-reservation/internal/domain/hold"
	"github.com/stagepass/seat-reservation/internal/domain/payment"
	"github.com/stagepass/seat-reservation/internal/domain/seat"
	"github.com/stagepass/seat-reservation/internal/pkg/logger"
	"github.com/stagepass/seat-reservation/internal/pkg/metrics"
)

// PaymentService は決済フローとホールドのライフサイクルを接続する
// プロバイダーとの同期通信はインテント作成のみで、確定は Webhook で受ける
type PaymentService struct {
	holdSvc     *HoldService
	paymentRepo payment.Repository
	seatRepo    seat.Repository
	gateway     payment.Gateway
	metrics     *metrics.Metrics
	currency    string
}

func NewPaymentService(holdSvc *HoldService, pr payment.Repository, sr seat.Repository, gw payment.Gateway, currency string, m *metrics.Metrics) *PaymentService {
	if currency == "" {
		currency = "gbp"
	}
	return &PaymentService{
		holdSvc:     holdSvc,
		paymentRepo: pr,
		seatRepo:    sr,
		gateway:     gw,
		metrics:     m,
		currency:    currency,
	}
}

// BeginPaymentResult は決済開始の結果
type BeginPaymentResult struct {
	Attempt      *payment.Attempt
	ClientSecret string
	ExpiresAt    time.Time
}

// BeginPayment は有効なホールドに対する決済を開始する
// 決済中の失効を防ぐため、開始時にホールドの期限を延長する
func (s *PaymentService) BeginPayment(ctx context.Context, holdID, sessionToken string, customerEmail *string) (*BeginPaymentResult, error) {
	if s.gateway == nil {
		return nil, errors.New("決済ゲートウェイが構成されていません")
	}

	expiresAt, err := s.holdSvc.Renew(ctx, holdID, sessionToken)
	if err != nil {
		return nil, err
	}

	if open, err := s.paymentRepo.GetOpenByHoldID(ctx, holdID); err == nil && open != nil {
		return nil, payment.ErrAttemptAlreadyOpen
	} else if err != nil && !errors.Is(err, payment.ErrAttemptNotFound) {
		return nil, fmt.Errorf("決済試行の確認に失敗: %w", err)
	}

	h, err := s.holdSvc.GetHold(ctx, holdID)
	if err != nil {
		return nil, err
	}
	seats, err := s.seatRepo.GetByIDs(ctx, h.SeatIDs)
	if err != nil {
		return nil, fmt.Errorf("座席取得に失敗: %w", err)
	}
	amount := 0
	for _, se := range seats {
		amount += se.PricePence
	}

	intent, err := s.gateway.CreateIntent(ctx, payment.IntentRequest{
		AmountPence: amount,
		Currency:    s.currency,
		Metadata: map[string]string{
			"hold_id": holdID,
			"show_id": h.ShowID,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("決済インテント作成に失敗: %w", err)
	}

	attempt := payment.NewAttempt(holdID, intent.ProviderRef, amount, customerEmail)
	if err := attempt.Validate(); err != nil {
		return nil, err
	}
	if err := s.paymentRepo.Create(ctx, attempt); err != nil {
		// インテントは作成済みだが未使用のまま残る。プロバイダー側で期限切れになる
		logger.Warn("決済試行の保存に失敗",
			zap.String("provider_ref", intent.ProviderRef),
			zap.Error(err),
		)
		return nil, err
	}

	logger.Info("決済開始",
		zap.String("hold_id", holdID),
		zap.String("provider_ref", intent.ProviderRef),
		zap.Int("amount_pence", amount),
	)
	return &BeginPaymentResult{
		Attempt:      attempt,
		ClientSecret: intent.ClientSecret,
		ExpiresAt:    expiresAt,
	}, nil
}

// ConfirmPaymentResult は決済確定処理の結果
type ConfirmPaymentResult struct {
	Attempt                *payment.Attempt
	Booking                *booking.Booking
	RequiresReconciliation bool
}

// ConfirmPayment は Webhook で受けた最終結果を反映する
// 同じ結果の再送は冪等に処理し、最初と同じ結論を返す
func (s *PaymentService) ConfirmPayment(ctx context.Context, providerRef string, outcome payment.Outcome) (*ConfirmPaymentResult, error) {
	attempt, err := s.paymentRepo.GetByProviderRef(ctx, providerRef)
	if err != nil {
		return nil, err
	}

	if attempt.IsTerminal() {
		return s.replayResult(ctx, attempt)
	}

	switch outcome {
	case payment.OutcomeFailed:
		if err := s.paymentRepo.MarkState(ctx, attempt.ID, payment.StateFailed, false); err != nil {
			return nil, err
		}
		attempt.State = payment.StateFailed
		s.countAttempt("failed")
		// 失敗したホールドは解放して座席を空席に戻す
		if h, gerr := s.holdSvc.GetHold(ctx, attempt.HoldID); gerr == nil {
			if rerr := s.holdSvc.Release(ctx, attempt.HoldID, h.SessionToken); rerr != nil {
				logger.Warn("決済失敗後のホールド解放に失敗",
					zap.String("hold_id", attempt.HoldID),
					zap.Error(rerr),
				)
			}
		}
		logger.Info("決済失敗",
			zap.String("hold_id", attempt.HoldID),
			zap.String("provider_ref", providerRef),
		)
		return &ConfirmPaymentResult{Attempt: attempt}, nil

	case payment.OutcomeSucceeded:
		b, err := s.holdSvc.PromoteWithEmail(ctx, attempt.HoldID, providerRef, attempt.CustomerEmail)
		if err != nil {
			if errors.Is(err, hold.ErrHoldExpired) || errors.Is(err, hold.ErrHoldAlreadyTerminal) {
				// 決済は成功したがホールドを確定できない。返金等の手動対応が必要
				if merr := s.paymentRepo.MarkState(ctx, attempt.ID, payment.StateSucceeded, true); merr != nil {
					return nil, merr
				}
				attempt.State = payment.StateSucceeded
				attempt.RequiresReconciliation = true
				s.countAttempt("requires_reconciliation")
				logger.Error("決済成功とホールド失効が競合（要照合）",
					zap.String("hold_id", attempt.HoldID),
					zap.String("provider_ref", providerRef),
					zap.Int("amount_pence", attempt.AmountPence),
				)
				return &ConfirmPaymentResult{Attempt: attempt, RequiresReconciliation: true}, nil
			}
			return nil, err
		}
		if err := s.paymentRepo.MarkState(ctx, attempt.ID, payment.StateSucceeded, false); err != nil {
			return nil, err
		}
		attempt.State = payment.StateSucceeded
		s.countAttempt("succeeded")
		logger.Info("決済成功",
			zap.String("hold_id", attempt.HoldID),
			zap.String("booking_id", b.ID),
			zap.String("provider_ref", providerRef),
		)
		return &ConfirmPaymentResult{Attempt: attempt, Booking: b}, nil

	default:
		return nil, fmt.Errorf("未知の決済結果: %s", outcome)
	}
}

// replayResult は終端済みの試行に対する再送を処理する
func (s *PaymentService) replayResult(ctx context.Context, attempt *payment.Attempt) (*ConfirmPaymentResult, error) {
	result := &ConfirmPaymentResult{
		Attempt:                attempt,
		RequiresReconciliation: attempt.RequiresReconciliation,
	}
	if attempt.State == payment.StateSucceeded && !attempt.RequiresReconciliation {
		b, err := s.holdSvc.Promote(ctx, attempt.HoldID, attempt.ProviderRef)
		if err != nil {
			return nil, err
		}
		result.Booking = b
	}
	return result, nil
}

func (s *PaymentService) countAttempt(outcome string) {
	if s.metrics != nil {
		s.metrics.PaymentAttemptsTotal.WithLabelValues(outcome).Inc()
	}
}
