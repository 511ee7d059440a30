package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/stagepass/seat-reservation/internal/application"
	"github.com/stagepass/seat-reservation/internal/domain/seat"
)

// MockSeatService はSeatServiceInterfaceのモック
type MockSeatService struct {
	mock.Mock
}

func (m *MockSeatService) CreateBulk(ctx context.Context, showID string, inputs []application.SeatInput) ([]*seat.Seat, error) {
	args := m.Called(ctx, showID, inputs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*seat.Seat), args.Error(1)
}

func (m *MockSeatService) GetSeat(ctx context.Context, id string) (*seat.Seat, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*seat.Seat), args.Error(1)
}

func (m *MockSeatService) ListByShow(ctx context.Context, showID string, availableOnly bool) ([]*seat.Seat, error) {
	args := m.Called(ctx, showID, availableOnly)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*seat.Seat), args.Error(1)
}

func (m *MockSeatService) CountAvailable(ctx context.Context, showID string) (int, error) {
	args := m.Called(ctx, showID)
	return args.Int(0), args.Error(1)
}

// MockRulesService はRulesServiceInterfaceのモック
type MockRulesService struct {
	mock.Mock
}

func (m *MockRulesService) ValidateSelection(ctx context.Context, showID string, seatIDs []string) (*application.ValidationResult, error) {
	args := m.Called(ctx, showID, seatIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*application.ValidationResult), args.Error(1)
}

func handlerTestSeat(id, showID, row string, number int) *seat.Seat {
	return &seat.Seat{
		ID:         id,
		ShowID:     showID,
		SectionID:  "stalls",
		Row:        row,
		Number:     number,
		PricePence: 5000,
		Status:     seat.StatusAvailable,
		CreatedAt:  time.Now(),
	}
}

func TestSeatHandler_CreateBulk(t *testing.T) {
	e := NewTestEcho()

	t.Run("座席を一括登録できる", func(t *testing.T) {
		mockSeats := new(MockSeatService)
		mockRules := new(MockRulesService)
		created := []*seat.Seat{
			handlerTestSeat("seat-1", "show-1", "A", 1),
			handlerTestSeat("seat-2", "show-1", "A", 2),
		}
		mockSeats.On("CreateBulk", mock.Anything, "show-1", []application.SeatInput{
			{SectionID: "stalls", Row: "A", Number: 1, PricePence: 5000},
			{SectionID: "stalls", Row: "A", Number: 2, PricePence: 5000},
		}).Return(created, nil)

		handler := NewSeatHandler(mockSeats, mockRules)
		body := `{"seats":[
			{"section_id":"stalls","row":"A","number":1,"price_pence":5000},
			{"section_id":"stalls","row":"A","number":2,"price_pence":5000}
		]}`
		req := httptest.NewRequest(http.MethodPost, "/api/v1/shows/show-1/seats/bulk", strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("show_id")
		c.SetParamValues("show-1")

		err := handler.CreateBulk(c)

		require.NoError(t, err)
		assert.Equal(t, http.StatusCreated, rec.Code)

		var resp []SeatResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp, 2)
		assert.Equal(t, "seat-1", resp[0].ID)
		assert.Equal(t, "available", resp[0].Status)
	})

	t.Run("座席が空なら400", func(t *testing.T) {
		mockSeats := new(MockSeatService)
		mockRules := new(MockRulesService)

		handler := NewSeatHandler(mockSeats, mockRules)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/shows/show-1/seats/bulk", strings.NewReader(`{"seats":[]}`))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("show_id")
		c.SetParamValues("show-1")

		err := handler.CreateBulk(c)

		var httpErr *echo.HTTPError
		require.ErrorAs(t, err, &httpErr)
		assert.Equal(t, http.StatusBadRequest, httpErr.Code)
		mockSeats.AssertNotCalled(t, "CreateBulk")
	})
}

func TestSeatHandler_ListByShow(t *testing.T) {
	e := NewTestEcho()

	t.Run("空席のみに絞り込める", func(t *testing.T) {
		mockSeats := new(MockSeatService)
		mockRules := new(MockRulesService)
		mockSeats.On("ListByShow", mock.Anything, "show-1", true).
			Return([]*seat.Seat{handlerTestSeat("seat-1", "show-1", "A", 1)}, nil)

		handler := NewSeatHandler(mockSeats, mockRules)
		req := httptest.NewRequest(http.MethodGet, "/api/v1/shows/show-1/seats?available=true", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("show_id")
		c.SetParamValues("show-1")

		err := handler.ListByShow(c)

		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, rec.Code)

		var resp []SeatResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp, 1)
		mockSeats.AssertExpectations(t)
	})
}

func TestSeatHandler_CountAvailable(t *testing.T) {
	e := NewTestEcho()

	t.Run("空席数を返す", func(t *testing.T) {
		mockSeats := new(MockSeatService)
		mockRules := new(MockRulesService)
		mockSeats.On("CountAvailable", mock.Anything, "show-1").Return(42, nil)

		handler := NewSeatHandler(mockSeats, mockRules)
		req := httptest.NewRequest(http.MethodGet, "/api/v1/shows/show-1/seats/count", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("show_id")
		c.SetParamValues("show-1")

		err := handler.CountAvailable(c)

		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, rec.Code)

		var resp SeatCountResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "show-1", resp.ShowID)
		assert.Equal(t, 42, resp.AvailableSeats)
	})
}

func TestSeatHandler_GetByID(t *testing.T) {
	e := NewTestEcho()

	t.Run("存在しない座席は404", func(t *testing.T) {
		mockSeats := new(MockSeatService)
		mockRules := new(MockRulesService)
		mockSeats.On("GetSeat", mock.Anything, "missing").Return(nil, seat.ErrSeatNotFound)

		handler := NewSeatHandler(mockSeats, mockRules)
		req := httptest.NewRequest(http.MethodGet, "/api/v1/seats/missing", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("id")
		c.SetParamValues("missing")

		err := handler.GetByID(c)

		var httpErr *echo.HTTPError
		require.ErrorAs(t, err, &httpErr)
		assert.Equal(t, http.StatusNotFound, httpErr.Code)
	})
}

func TestSeatHandler_ValidateSelection(t *testing.T) {
	e := NewTestEcho()

	t.Run("検証結果をそのまま返す", func(t *testing.T) {
		mockSeats := new(MockSeatService)
		mockRules := new(MockRulesService)
		mockRules.On("ValidateSelection", mock.Anything, "show-1", []string{"seat-1", "seat-3"}).
			Return(&application.ValidationResult{
				Valid:    true,
				Warnings: []string{"セクションstalls A列2番が孤立席になります"},
			}, nil)

		handler := NewSeatHandler(mockSeats, mockRules)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/shows/show-1/seats/validate", strings.NewReader(`{"seat_ids":["seat-1","seat-3"]}`))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("show_id")
		c.SetParamValues("show-1")

		err := handler.ValidateSelection(c)

		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, rec.Code)

		var resp application.ValidationResult
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.True(t, resp.Valid)
		require.Len(t, resp.Warnings, 1)
	})
}
