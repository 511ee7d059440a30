package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/stagepass/seat-reservation/internal/application"
	"github.com/stagepass/seat-reservation/internal/domain/seat"
)

type SeatHandler struct {
	seatService  SeatServiceInterface
	rulesService RulesServiceInterface
}

func NewSeatHandler(ss SeatServiceInterface, rs RulesServiceInterface) *SeatHandler {
	return &SeatHandler{seatService: ss, rulesService: rs}
}

type BulkSeatItem struct {
	SectionID  string `json:"section_id" validate:"required" example:"stalls"`
	Row        string `json:"row" validate:"required" example:"A"`
	Number     int    `json:"number" validate:"required,min=1" example:"1"`
	PricePence int    `json:"price_pence" validate:"required,min=1" example:"5000"`
}

type CreateBulkSeatsRequest struct {
	Seats []BulkSeatItem `json:"seats" validate:"required,min=1,dive"`
}

type SeatResponse struct {
	ID         string    `json:"id"`
	ShowID     string    `json:"show_id"`
	SectionID  string    `json:"section_id"`
	Row        string    `json:"row"`
	Number     int       `json:"number"`
	PricePence int       `json:"price_pence"`
	Status     string    `json:"status" example:"available"`
	HoldID     *string   `json:"hold_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

func toSeatResponse(s *seat.Seat) SeatResponse {
	return SeatResponse{
		ID:         s.ID,
		ShowID:     s.ShowID,
		SectionID:  s.SectionID,
		Row:        s.Row,
		Number:     s.Number,
		PricePence: s.PricePence,
		Status:     string(s.Status),
		HoldID:     s.HoldID,
		CreatedAt:  s.CreatedAt,
	}
}

// CreateBulk godoc
// @Summary 座席を一括登録
// @Description 公演の座席を一括登録します
// @Tags seats
// @Accept json
// @Produce json
// @Param show_id path string true "公演ID"
// @Param request body CreateBulkSeatsRequest true "座席リスト"
// @Success 201 {array} SeatResponse
// @Failure 400 {object} map[string]string
// @Router /shows/{show_id}/seats/bulk [post]
func (h *SeatHandler) CreateBulk(c echo.Context) error {
	var req CreateBulkSeatsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無効なリクエスト")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	inputs := make([]application.SeatInput, len(req.Seats))
	for i, s := range req.Seats {
		inputs[i] = application.SeatInput{
			SectionID:  s.SectionID,
			Row:        s.Row,
			Number:     s.Number,
			PricePence: s.PricePence,
		}
	}

	seats, err := h.seatService.CreateBulk(c.Request().Context(), c.Param("show_id"), inputs)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	resp := make([]SeatResponse, len(seats))
	for i, s := range seats {
		resp[i] = toSeatResponse(s)
	}
	return c.JSON(http.StatusCreated, resp)
}

// ListByShow godoc
// @Summary 公演の座席一覧を取得
// @Description 公演の座席を取得します。available=true で空席のみに絞り込み
// @Tags seats
// @Produce json
// @Param show_id path string true "公演ID"
// @Param available query bool false "空席のみ"
// @Success 200 {array} SeatResponse
// @Router /shows/{show_id}/seats [get]
func (h *SeatHandler) ListByShow(c echo.Context) error {
	availableOnly := c.QueryParam("available") == "true"
	seats, err := h.seatService.ListByShow(c.Request().Context(), c.Param("show_id"), availableOnly)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	resp := make([]SeatResponse, len(seats))
	for i, s := range seats {
		resp[i] = toSeatResponse(s)
	}
	return c.JSON(http.StatusOK, resp)
}

type SeatCountResponse struct {
	ShowID         string `json:"show_id"`
	AvailableSeats int    `json:"available_seats"`
}

// CountAvailable godoc
// @Summary 公演の空席数を取得
// @Description 公演の空席数を取得します（キャッシュあり）
// @Tags seats
// @Produce json
// @Param show_id path string true "公演ID"
// @Success 200 {object} SeatCountResponse
// @Router /shows/{show_id}/seats/count [get]
func (h *SeatHandler) CountAvailable(c echo.Context) error {
	showID := c.Param("show_id")
	count, err := h.seatService.CountAvailable(c.Request().Context(), showID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, SeatCountResponse{ShowID: showID, AvailableSeats: count})
}

// GetByID godoc
// @Summary 座席を取得
// @Tags seats
// @Produce json
// @Param id path string true "座席ID"
// @Success 200 {object} SeatResponse
// @Failure 404 {object} map[string]string
// @Router /seats/{id} [get]
func (h *SeatHandler) GetByID(c echo.Context) error {
	s, err := h.seatService.GetSeat(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, seat.ErrSeatNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, toSeatResponse(s))
}

type ValidateSelectionRequest struct {
	SeatIDs []string `json:"seat_ids" validate:"required,min=1"`
}

// ValidateSelection godoc
// @Summary 座席選択を検証
// @Description 業務ルール（人数上限・制限セクション・孤立席）に照らして選択を検証します
// @Tags seats
// @Accept json
// @Produce json
// @Param show_id path string true "公演ID"
// @Param request body ValidateSelectionRequest true "座席選択"
// @Success 200 {object} application.ValidationResult
// @Failure 400 {object} map[string]string
// @Router /shows/{show_id}/seats/validate [post]
func (h *SeatHandler) ValidateSelection(c echo.Context) error {
	var req ValidateSelectionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無効なリクエスト")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	result, err := h.rulesService.ValidateSelection(c.Request().Context(), c.Param("show_id"), req.SeatIDs)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, result)
}
