package handler

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/stagepass/seat-reservation/internal/domain/payment"
	"github.com/stagepass/seat-reservation/internal/pkg/logger"
)

type PaymentHandler struct {
	service  PaymentServiceInterface
	verifier WebhookVerifier
}

func NewPaymentHandler(s PaymentServiceInterface, v WebhookVerifier) *PaymentHandler {
	return &PaymentHandler{service: s, verifier: v}
}

type BeginPaymentRequest struct {
	CustomerEmail string `json:"customer_email,omitempty" validate:"omitempty,email" example:"alice@example.com"`
}

type BeginPaymentResponse struct {
	AttemptID    string    `json:"attempt_id"`
	ClientSecret string    `json:"client_secret"`
	AmountPence  int       `json:"amount_pence" example:"10000"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Begin godoc
// @Summary 決済を開始
// @Description ホールドに対する決済インテントを作成します（ホールド期限は自動延長）
// @Tags payments
// @Accept json
// @Produce json
// @Param X-Session-Token header string true "セッショントークン"
// @Param id path string true "ホールドID"
// @Param request body BeginPaymentRequest false "決済情報"
// @Success 201 {object} BeginPaymentResponse
// @Failure 401 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string "進行中の決済あり"
// @Failure 410 {object} map[string]string "期限切れ"
// @Router /holds/{id}/payment [post]
func (h *PaymentHandler) Begin(c echo.Context) error {
	sessionToken := c.Request().Header.Get(sessionTokenHeader)
	if sessionToken == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "セッショントークンが必要です")
	}
	var req BeginPaymentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無効なリクエスト")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	var customerEmail *string
	if req.CustomerEmail != "" {
		customerEmail = &req.CustomerEmail
	}

	result, err := h.service.BeginPayment(c.Request().Context(), c.Param("id"), sessionToken, customerEmail)
	if err != nil {
		if errors.Is(err, payment.ErrAttemptAlreadyOpen) {
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		}
		return holdErrorToHTTP(err)
	}
	return c.JSON(http.StatusCreated, BeginPaymentResponse{
		AttemptID:    result.Attempt.ID,
		ClientSecret: result.ClientSecret,
		AmountPence:  result.Attempt.AmountPence,
		ExpiresAt:    result.ExpiresAt,
	})
}

// Webhook godoc
// @Summary 決済プロバイダーからの Webhook を受信
// @Description 署名を検証し、決済の最終結果をホールドへ反映します（冪等）
// @Tags payments
// @Accept json
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 400 {object} map[string]string "署名検証失敗"
// @Router /payments/webhook [post]
func (h *PaymentHandler) Webhook(c echo.Context) error {
	payload, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "リクエストボディの読み取りに失敗")
	}

	providerRef, outcome, handled, err := h.verifier.Verify(payload, c.Request().Header.Get("Stripe-Signature"))
	if err != nil {
		logger.Warn("Webhook署名検証失敗", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "署名検証に失敗しました")
	}
	if !handled {
		return c.JSON(http.StatusOK, map[string]string{"status": "ignored"})
	}

	result, err := h.service.ConfirmPayment(c.Request().Context(), providerRef, outcome)
	if err != nil {
		// 未知の参照はプロバイダー側の再送を止めるため 200 で受ける
		if errors.Is(err, payment.ErrAttemptNotFound) {
			logger.Warn("未知の決済参照のWebhookを受信",
				zap.String("provider_ref", providerRef),
			)
			return c.JSON(http.StatusOK, map[string]string{"status": "unknown_reference"})
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	status := "processed"
	if result.RequiresReconciliation {
		status = "requires_reconciliation"
	}
	return c.JSON(http.StatusOK, map[string]string{"status": status})
}
