package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/stagepass/seat-reservation/internal/application"
	"github.com/stagepass/seat-reservation/internal/domain/hold"
	"github.com/stagepass/seat-reservation/internal/domain/seat"
)

const sessionTokenHeader = "X-Session-Token"

type HoldHandler struct {
	service HoldServiceInterface
	rules   HoldRulesInterface
}

func NewHoldHandler(s HoldServiceInterface, rules HoldRulesInterface) *HoldHandler {
	return &HoldHandler{service: s, rules: rules}
}

type CreateHoldRequest struct {
	SeatIDs        []string `json:"seat_ids" validate:"required,min=1" example:"seat-A1,seat-A2"`
	TTLSeconds     int      `json:"ttl_seconds,omitempty" validate:"omitempty,min=1" example:"900"`
	IdempotencyKey string   `json:"idempotency_key,omitempty" example:"checkout-2026-001"`
}

type HoldResponse struct {
	ID        string    `json:"id" example:"550e8400-e29b-41d4-a716-446655440000"`
	ShowID    string    `json:"show_id"`
	SeatIDs   []string  `json:"seat_ids"`
	State     string    `json:"state" example:"active"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

type HoldGrantedResponse struct {
	HoldResponse
	TotalAmountPence int `json:"total_amount_pence" example:"10000"`
}

type HoldConflictResponse struct {
	Error           string   `json:"error"`
	ConflictSeatIDs []string `json:"conflict_seat_ids"`
}

func toHoldResponse(h *hold.Hold) HoldResponse {
	state := h.State
	// 期限切れは書き込みを待たず読み取り時点で判定する
	if state == hold.StateActive && h.IsExpired() {
		state = hold.StateExpired
	}
	return HoldResponse{
		ID:        h.ID,
		ShowID:    h.ShowID,
		SeatIDs:   h.SeatIDs,
		State:     string(state),
		ExpiresAt: h.ExpiresAt,
		CreatedAt: h.CreatedAt,
	}
}

// Create godoc
// @Summary 座席ホールドを作成
// @Description 座席セットを時限付きで仮押さえします（全席確保できた場合のみ成立）
// @Tags holds
// @Accept json
// @Produce json
// @Param X-Session-Token header string true "セッショントークン"
// @Param show_id path string true "公演ID"
// @Param request body CreateHoldRequest true "ホールド情報"
// @Success 201 {object} HoldGrantedResponse
// @Failure 400 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Failure 409 {object} HoldConflictResponse "座席が既に確保済み"
// @Failure 422 {object} application.ValidationResult "業務ルールによる拒否"
// @Router /shows/{show_id}/holds [post]
func (h *HoldHandler) Create(c echo.Context) error {
	sessionToken := c.Request().Header.Get(sessionTokenHeader)
	if sessionToken == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "セッショントークンが必要です")
	}
	var req CreateHoldRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無効なリクエスト")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	// 業務ルールの強制チェックはホールド取得より前に通す
	verdict, err := h.rules.ValidateHold(c.Request().Context(), c.Param("show_id"), req.SeatIDs)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !verdict.Valid {
		return c.JSON(http.StatusUnprocessableEntity, verdict)
	}

	input := application.TryHoldInput{
		ShowID:       c.Param("show_id"),
		SeatIDs:      req.SeatIDs,
		SessionToken: sessionToken,
	}
	if req.TTLSeconds > 0 {
		input.TTL = time.Duration(req.TTLSeconds) * time.Second
	}
	if req.IdempotencyKey != "" {
		input.IdempotencyKey = &req.IdempotencyKey
	}
	if userID := c.Request().Header.Get("X-User-ID"); userID != "" {
		input.UserID = &userID
	}

	result, err := h.service.TryHold(c.Request().Context(), input)
	if err != nil {
		if errors.Is(err, seat.ErrSeatNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		if errors.Is(err, hold.ErrShowIDRequired) || errors.Is(err, hold.ErrSeatIDsRequired) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	if !result.Granted() {
		return c.JSON(http.StatusConflict, HoldConflictResponse{
			Error:           "座席を確保できませんでした",
			ConflictSeatIDs: result.ConflictSeatIDs,
		})
	}
	return c.JSON(http.StatusCreated, HoldGrantedResponse{
		HoldResponse:     toHoldResponse(result.Hold),
		TotalAmountPence: result.TotalAmountPence,
	})
}

type RenewHoldResponse struct {
	ExpiresAt time.Time `json:"expires_at"`
}

// Renew godoc
// @Summary ホールドの期限を延長
// @Description 有効なホールドの期限を元のTTL分延長します
// @Tags holds
// @Produce json
// @Param X-Session-Token header string true "セッショントークン"
// @Param id path string true "ホールドID"
// @Success 200 {object} RenewHoldResponse
// @Failure 401 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string "終端状態"
// @Failure 410 {object} map[string]string "期限切れ"
// @Router /holds/{id}/renew [post]
func (h *HoldHandler) Renew(c echo.Context) error {
	sessionToken := c.Request().Header.Get(sessionTokenHeader)
	if sessionToken == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "セッショントークンが必要です")
	}

	expiresAt, err := h.service.Renew(c.Request().Context(), c.Param("id"), sessionToken)
	if err != nil {
		return holdErrorToHTTP(err)
	}
	return c.JSON(http.StatusOK, RenewHoldResponse{ExpiresAt: expiresAt})
}

// Release godoc
// @Summary ホールドを解放
// @Description ホールドを明示的に解放し、座席を空席に戻します（冪等）
// @Tags holds
// @Produce json
// @Param X-Session-Token header string true "セッショントークン"
// @Param id path string true "ホールドID"
// @Success 200 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /holds/{id} [delete]
func (h *HoldHandler) Release(c echo.Context) error {
	sessionToken := c.Request().Header.Get(sessionTokenHeader)
	if sessionToken == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "セッショントークンが必要です")
	}

	if err := h.service.Release(c.Request().Context(), c.Param("id"), sessionToken); err != nil {
		return holdErrorToHTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "released"})
}

// GetByID godoc
// @Summary ホールドを取得
// @Description 指定IDのホールドを取得します（状態は読み取り時点で判定）
// @Tags holds
// @Produce json
// @Param id path string true "ホールドID"
// @Success 200 {object} HoldResponse
// @Failure 404 {object} map[string]string
// @Router /holds/{id} [get]
func (h *HoldHandler) GetByID(c echo.Context) error {
	hd, err := h.service.GetHold(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, hold.ErrHoldNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, toHoldResponse(hd))
}

// holdErrorToHTTP はホールド操作のドメインエラーをHTTPエラーへ変換する
func holdErrorToHTTP(err error) error {
	switch {
	case errors.Is(err, hold.ErrHoldNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, hold.ErrHoldNotOwned):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, hold.ErrHoldExpired):
		return echo.NewHTTPError(http.StatusGone, err.Error())
	case errors.Is(err, hold.ErrHoldAlreadyTerminal), errors.Is(err, hold.ErrHoldNotActive):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
