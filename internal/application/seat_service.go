package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/stagepass/seat-reservation/internal/domain/seat"
	redisinfra "github.com/stagepass/seat-reservation/internal/infrastructure/redis"
	"github.com/stagepass/seat-reservation/internal/pkg/logger"
)

const availableCountCacheTTL = 30 * time.Second

// SeatService は座席の登録と照会を提供する
type SeatService struct {
	seatRepo seat.Repository
	cache    redisinfra.SeatCacheInterface
}

func NewSeatService(seatRepo seat.Repository, cache redisinfra.SeatCacheInterface) *SeatService {
	return &SeatService{seatRepo: seatRepo, cache: cache}
}

// SeatInput は座席一括登録の1件分
type SeatInput struct {
	SectionID  string
	Row        string
	Number     int
	PricePence int
}

// CreateBulk は公演の座席を一括登録する
func (s *SeatService) CreateBulk(ctx context.Context, showID string, inputs []SeatInput) ([]*seat.Seat, error) {
	if showID == "" {
		return nil, seat.ErrShowIDRequired
	}
	if len(inputs) == 0 {
		return nil, errors.New("座席が指定されていません")
	}

	seats := make([]*seat.Seat, 0, len(inputs))
	for _, in := range inputs {
		se := seat.NewSeat(showID, in.SectionID, in.Row, in.Number, in.PricePence)
		if err := se.Validate(); err != nil {
			return nil, fmt.Errorf("座席%s-%s-%d: %w", in.SectionID, in.Row, in.Number, err)
		}
		seats = append(seats, se)
	}

	if err := s.seatRepo.CreateBulk(ctx, seats); err != nil {
		return nil, err
	}
	s.invalidateCache(ctx, showID)

	logger.Info("座席を一括登録",
		zap.String("show_id", showID),
		zap.Int("count", len(seats)),
	)
	return seats, nil
}

// GetSeat はIDから座席を取得する
func (s *SeatService) GetSeat(ctx context.Context, id string) (*seat.Seat, error) {
	return s.seatRepo.GetByID(ctx, id)
}

// ListByShow は公演の座席を取得する。availableOnly で空席に絞り込む
func (s *SeatService) ListByShow(ctx context.Context, showID string, availableOnly bool) ([]*seat.Seat, error) {
	if availableOnly {
		return s.seatRepo.GetAvailableByShowID(ctx, showID)
	}
	return s.seatRepo.GetByShowID(ctx, showID)
}

// CountAvailable は公演の空席数を返す（キャッシュ優先、DBフォールバック）
func (s *SeatService) CountAvailable(ctx context.Context, showID string) (int, error) {
	if s.cache != nil {
		count, err := s.cache.GetAvailableCount(ctx, showID)
		if err == nil {
			return count, nil
		}
		if !errors.Is(err, redisinfra.ErrCacheMiss) {
			logger.Warn("キャッシュ取得エラー", zap.Error(err))
		}
	}

	count, err := s.seatRepo.CountAvailableByShowID(ctx, showID)
	if err != nil {
		return 0, err
	}

	if s.cache != nil {
		if err := s.cache.SetAvailableCount(ctx, showID, count, availableCountCacheTTL); err != nil {
			logger.Warn("キャッシュ設定エラー", zap.Error(err))
		}
	}
	return count, nil
}

func (s *SeatService) invalidateCache(ctx context.Context, showID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, showID); err != nil {
		logger.Warn("キャッシュ無効化エラー", zap.Error(err))
	}
}
