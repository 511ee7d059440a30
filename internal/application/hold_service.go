package application

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/stagepass/seat-reservation/internal/domain/booking"
	"github.com/stagepass/seat-reservation/internal/domain/hold"
	"github.com/stagepass/seat-reservation/internal/domain/seat"
	"github.com/stagepass/seat-reservation/internal/domain/transaction"
	redisinfra "github.com/stagepass/seat-reservation/internal/infrastructure/redis"
	"github.com/stagepass/seat-reservation/internal/notifier"
	"github.com/stagepass/seat-reservation/internal/pkg/logger"
	"github.com/stagepass/seat-reservation/internal/pkg/metrics"
)

// HoldService は座席ホールドの唯一の書き込み経路
// 座席の状態遷移とホールドのライフサイクルはすべてここを通る
type HoldService struct {
	txm         transaction.Manager
	holdRepo    hold.Repository
	seatRepo    seat.Repository
	bookingRepo booking.Repository
	lockManager redisinfra.LockManagerInterface
	cache       redisinfra.SeatCacheInterface
	events      notifier.Publisher
	metrics     *metrics.Metrics
	holdTTL     time.Duration
	lockTTL     time.Duration
	sweepBatch  int
}

// HoldServiceOption は HoldService の構成オプション
type HoldServiceOption func(*HoldService)

// WithHoldTTL はホールドのデフォルトTTLを上書きする
func WithHoldTTL(d time.Duration) HoldServiceOption {
	return func(s *HoldService) {
		if d > 0 {
			s.holdTTL = d
		}
	}
}

// WithLockManager は分散ロックを有効にする
func WithLockManager(lm redisinfra.LockManagerInterface, lockTTL time.Duration) HoldServiceOption {
	return func(s *HoldService) {
		s.lockManager = lm
		if lockTTL > 0 {
			s.lockTTL = lockTTL
		}
	}
}

// WithSeatCache は空席数キャッシュの無効化を有効にする
func WithSeatCache(cache redisinfra.SeatCacheInterface) HoldServiceOption {
	return func(s *HoldService) { s.cache = cache }
}

// WithPublisher は座席イベントの配信先を設定する
func WithPublisher(p notifier.Publisher) HoldServiceOption {
	return func(s *HoldService) { s.events = p }
}

// WithMetrics はメトリクス記録を有効にする
func WithMetrics(m *metrics.Metrics) HoldServiceOption {
	return func(s *HoldService) { s.metrics = m }
}

// WithSweepBatchSize は1回のスイープ処理件数の上限を設定する
func WithSweepBatchSize(n int) HoldServiceOption {
	return func(s *HoldService) {
		if n > 0 {
			s.sweepBatch = n
		}
	}
}

func NewHoldService(txm transaction.Manager, hr hold.Repository, sr seat.Repository, br booking.Repository, opts ...HoldServiceOption) *HoldService {
	s := &HoldService{
		txm:         txm,
		holdRepo:    hr,
		seatRepo:    sr,
		bookingRepo: br,
		events:      notifier.NopPublisher{},
		holdTTL:     hold.DefaultTTL,
		lockTTL:     10 * time.Second,
		sweepBatch:  100,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TryHoldInput はホールド取得のリクエスト
type TryHoldInput struct {
	ShowID         string
	SeatIDs        []string
	SessionToken   string
	UserID         *string
	TTL            time.Duration // 0 ならデフォルト
	IdempotencyKey *string
}

// TryHoldResult はホールド取得の結果
// 競合は想定内の結果でありエラーではない
type TryHoldResult struct {
	Hold             *hold.Hold
	ConflictSeatIDs  []string
	TotalAmountPence int
}

// Granted はホールドが成立したかを返す
func (r *TryHoldResult) Granted() bool {
	return r.Hold != nil
}

// TryHold は座席セットへの時限付き排他ホールドを試みる
// 全席同時に取得できた場合のみ成立し、部分的なホールドは決して観測されない
func (s *HoldService) TryHold(ctx context.Context, input TryHoldInput) (*TryHoldResult, error) {
	if input.ShowID == "" {
		return nil, hold.ErrShowIDRequired
	}
	if input.SessionToken == "" {
		return nil, hold.ErrSessionTokenRequired
	}
	seatIDs := dedupeSorted(input.SeatIDs)
	if len(seatIDs) == 0 {
		return nil, hold.ErrSeatIDsRequired
	}

	// 冪等性チェック：同じキーの再試行は既存の結果を返す
	if input.IdempotencyKey != nil {
		existing, err := s.holdRepo.GetByIdempotencyKey(ctx, *input.IdempotencyKey)
		if err == nil {
			return s.grantedResult(ctx, existing)
		}
		if !errors.Is(err, hold.ErrHoldNotFound) {
			return nil, fmt.Errorf("冪等性チェックに失敗: %w", err)
		}
	}

	// 分散ロックで同一座席セットへの同時処理を間引く
	// ロックは最適化であり、正確性はDBトランザクションのガードが持つ
	if s.lockManager != nil {
		lockStart := time.Now()
		lock, err := s.lockManager.AcquireLockWithRetry(ctx, seatLockKey(seatIDs), s.lockTTL, 3, 100*time.Millisecond)
		if err != nil {
			if errors.Is(err, redisinfra.ErrLockNotAcquired) {
				s.observeLock("acquire", "failed", lockStart)
				s.countHold("lock_busy")
				return &TryHoldResult{ConflictSeatIDs: seatIDs}, nil
			}
			return nil, fmt.Errorf("ロック取得に失敗: %w", err)
		}
		s.observeLock("acquire", "success", lockStart)
		defer func() {
			releaseStart := time.Now()
			if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
				s.observeLock("release", "failed", releaseStart)
				logger.Warn("座席ロックの解放に失敗", zap.Error(err))
			} else {
				s.observeLock("release", "success", releaseStart)
			}
		}()
	}

	// 座席の存在・公演帰属チェック（事前チェックは助言的、最終判定はトランザクション内）
	seats, err := s.seatRepo.GetByIDs(ctx, seatIDs)
	if err != nil {
		return nil, fmt.Errorf("座席取得に失敗: %w", err)
	}
	if len(seats) != len(seatIDs) {
		return nil, seat.ErrSeatNotFound
	}
	totalAmount := 0
	for _, se := range seats {
		if se.ShowID != input.ShowID {
			return nil, seat.ErrSeatNotFound
		}
		totalAmount += se.PricePence
	}

	ttl := input.TTL
	if ttl <= 0 {
		ttl = s.holdTTL
	}
	h := hold.New(input.ShowID, input.SessionToken, input.UserID, seatIDs, ttl)
	h.IdempotencyKey = input.IdempotencyKey
	if err := h.Validate(); err != nil {
		return nil, err
	}

	err = retryTransient(ctx, func() error {
		return s.holdInTx(ctx, h)
	})
	if err != nil {
		if errors.Is(err, seat.ErrSeatConflict) {
			conflictIDs, cerr := s.seatRepo.GetUnavailableIDs(ctx, seatIDs)
			if cerr != nil || len(conflictIDs) == 0 {
				conflictIDs = seatIDs
			}
			s.countHold("conflict")
			return &TryHoldResult{ConflictSeatIDs: conflictIDs}, nil
		}
		if errors.Is(err, hold.ErrIdempotencyKeyAlreadyExists) && input.IdempotencyKey != nil {
			existing, gerr := s.holdRepo.GetByIdempotencyKey(ctx, *input.IdempotencyKey)
			if gerr == nil {
				return s.grantedResult(ctx, existing)
			}
		}
		s.countHold("error")
		return nil, err
	}

	s.countHold("granted")
	if s.metrics != nil {
		s.metrics.ActiveHolds.Inc()
	}
	s.invalidateCache(ctx, h.ShowID)
	s.publishSeatEvents(h.ShowID, seatIDs, seat.StatusHeld, h.ID)

	logger.Info("ホールド成立",
		zap.String("hold_id", h.ID),
		zap.String("show_id", h.ShowID),
		zap.Int("seats", len(seatIDs)),
		zap.Time("expires_at", h.ExpiresAt),
	)
	return &TryHoldResult{Hold: h, TotalAmountPence: totalAmount}, nil
}

// holdInTx は回収・作成・取得を1トランザクションで行う
// 全席動くか、1席も動かないかのどちらかしかない
func (s *HoldService) holdInTx(ctx context.Context, h *hold.Hold) error {
	tx, err := s.txm.Begin(ctx)
	if err != nil {
		return fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback()

	// 期限切れホールドの座席はスイープを待たずにここで回収する（読み取り時expiry）
	if _, err := s.seatRepo.ReclaimExpired(ctx, tx, h.SeatIDs, time.Now()); err != nil {
		return err
	}
	if err := s.holdRepo.Create(ctx, tx, h); err != nil {
		return err
	}
	if err := s.seatRepo.HoldSeats(ctx, tx, h.SeatIDs, h.ID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("コミットに失敗: %w", err)
	}
	return nil
}

// Renew はホールドの期限を元のTTL分延長する
// 期限切れ・終端・所有者不一致は延長しない
func (s *HoldService) Renew(ctx context.Context, holdID, sessionToken string) (time.Time, error) {
	expiresAt, err := s.holdRepo.ExtendExpiry(ctx, holdID, sessionToken, time.Now())
	if err == nil {
		return expiresAt, nil
	}
	if !errors.Is(err, hold.ErrHoldNotActive) {
		return time.Time{}, err
	}
	// ガード付きUPDATEが0行だった理由を呼び出し側向けに精緻化する
	h, gerr := s.holdRepo.GetByID(ctx, holdID)
	if gerr != nil {
		return time.Time{}, gerr
	}
	if !h.OwnedBy(sessionToken) {
		return time.Time{}, hold.ErrHoldNotOwned
	}
	if h.State == hold.StateActive && h.IsExpired() {
		return time.Time{}, hold.ErrHoldExpired
	}
	return time.Time{}, hold.ErrHoldAlreadyTerminal
}

// Release はホールドを明示的に解放する
// 既に解放・期限切れのホールドへの再実行は成功扱い（冪等）
func (s *HoldService) Release(ctx context.Context, holdID, sessionToken string) error {
	h, err := s.holdRepo.GetByID(ctx, holdID)
	if err != nil {
		return err
	}
	if !h.OwnedBy(sessionToken) {
		return hold.ErrHoldNotOwned
	}
	if h.IsTerminal() {
		return nil
	}

	var released []string
	err = retryTransient(ctx, func() error {
		tx, err := s.txm.Begin(ctx)
		if err != nil {
			return fmt.Errorf("トランザクション開始に失敗: %w", err)
		}
		defer tx.Rollback()

		if err := s.holdRepo.Release(ctx, tx, holdID); err != nil {
			if errors.Is(err, hold.ErrHoldNotActive) {
				// 競合遷移（スイープ等）に負けた場合も解放済みとして扱う
				return nil
			}
			return err
		}
		released, err = s.seatRepo.ReleaseSeatsByHold(ctx, tx, holdID)
		if err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("コミットに失敗: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if len(released) > 0 {
		if s.metrics != nil {
			s.metrics.ActiveHolds.Dec()
		}
		s.invalidateCache(ctx, h.ShowID)
		s.publishSeatEvents(h.ShowID, released, seat.StatusAvailable, "")
		logger.Info("ホールド解放",
			zap.String("hold_id", holdID),
			zap.Int("seats", len(released)),
		)
	}
	return nil
}

// Promote は有効なホールドを購入へ昇格させる
// スイープとの競合は先にコミットした側が勝つ。既に昇格済みなら既存の購入を返す
func (s *HoldService) Promote(ctx context.Context, holdID, paymentRef string) (*booking.Booking, error) {
	h, err := s.holdRepo.GetByID(ctx, holdID)
	if err != nil {
		return nil, err
	}
	if h.State == hold.StatePromoted {
		return s.bookingRepo.GetByHoldID(ctx, holdID)
	}
	if h.IsTerminal() {
		return nil, hold.ErrHoldAlreadyTerminal
	}

	return s.promoteWithEmail(ctx, h, paymentRef, nil)
}

// PromoteWithEmail は購入者メールアドレス付きで昇格させる（決済コーディネーター用）
func (s *HoldService) PromoteWithEmail(ctx context.Context, holdID, paymentRef string, customerEmail *string) (*booking.Booking, error) {
	h, err := s.holdRepo.GetByID(ctx, holdID)
	if err != nil {
		return nil, err
	}
	if h.State == hold.StatePromoted {
		return s.bookingRepo.GetByHoldID(ctx, holdID)
	}
	if h.IsTerminal() {
		return nil, hold.ErrHoldAlreadyTerminal
	}
	return s.promoteWithEmail(ctx, h, paymentRef, customerEmail)
}

func (s *HoldService) promoteWithEmail(ctx context.Context, h *hold.Hold, paymentRef string, customerEmail *string) (*booking.Booking, error) {
	seats, err := s.seatRepo.GetByIDs(ctx, h.SeatIDs)
	if err != nil {
		return nil, fmt.Errorf("座席取得に失敗: %w", err)
	}
	totalAmount := 0
	for _, se := range seats {
		totalAmount += se.PricePence
	}

	b := booking.New(h.ID, h.ShowID, h.UserID, customerEmail, h.SeatIDs, totalAmount, paymentRef)
	if err := b.Validate(); err != nil {
		return nil, err
	}

	var sold []string
	err = retryTransient(ctx, func() error {
		tx, err := s.txm.Begin(ctx)
		if err != nil {
			return fmt.Errorf("トランザクション開始に失敗: %w", err)
		}
		defer tx.Rollback()

		if err := s.holdRepo.Promote(ctx, tx, h.ID, time.Now()); err != nil {
			return err
		}
		sold, err = s.seatRepo.SellSeatsByHold(ctx, tx, h.ID)
		if err != nil {
			return err
		}
		if err := s.bookingRepo.Create(ctx, tx, b); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("コミットに失敗: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, hold.ErrHoldNotActive) {
			// ガードに弾かれた：競合遷移後の状態を読み直して区別する
			current, gerr := s.holdRepo.GetByID(ctx, h.ID)
			if gerr != nil {
				return nil, gerr
			}
			if current.State == hold.StatePromoted {
				return s.bookingRepo.GetByHoldID(ctx, h.ID)
			}
			if current.State == hold.StateExpired || (current.State == hold.StateActive && current.IsExpired()) {
				return nil, hold.ErrHoldExpired
			}
			return nil, hold.ErrHoldAlreadyTerminal
		}
		if errors.Is(err, booking.ErrBookingAlreadyExists) {
			return s.bookingRepo.GetByHoldID(ctx, h.ID)
		}
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.ActiveHolds.Dec()
	}
	s.invalidateCache(ctx, h.ShowID)
	s.publishSeatEvents(h.ShowID, sold, seat.StatusSold, "")

	logger.Info("ホールドを購入へ昇格",
		zap.String("hold_id", h.ID),
		zap.String("booking_id", b.ID),
		zap.Int("total_amount_pence", totalAmount),
	)
	return b, nil
}

// GetHold はIDからホールドを取得する
func (s *HoldService) GetHold(ctx context.Context, holdID string) (*hold.Hold, error) {
	return s.holdRepo.GetByID(ctx, holdID)
}

// SweepExpired は期限切れホールドを回収して座席を解放する
// ホールド単位のガード付き遷移なので、自分自身や promote と競合しても安全
func (s *HoldService) SweepExpired(ctx context.Context) (int, error) {
	now := time.Now()
	expired, err := s.holdRepo.ListExpiredActive(ctx, now, s.sweepBatch)
	if err != nil {
		return 0, err
	}

	reclaimed := 0
	for _, h := range expired {
		released, swept, err := s.expireOne(ctx, h.ID, now)
		if err != nil {
			logger.Error("期限切れホールドの回収に失敗",
				zap.String("hold_id", h.ID),
				zap.Error(err),
			)
			continue
		}
		if !swept {
			// 競合遷移（promote・並行スイープ）に負けただけ
			continue
		}
		// 座席が先行する TryHold で回収済みでも期限切れ遷移は成立している
		reclaimed++
		if s.metrics != nil {
			s.metrics.SweptHoldsTotal.Inc()
			s.metrics.ActiveHolds.Dec()
		}
		s.invalidateCache(ctx, h.ShowID)
		if len(released) > 0 {
			s.publishSeatEvents(h.ShowID, released, seat.StatusAvailable, "")
		}
	}
	return reclaimed, nil
}

// expireOne は1件の期限切れ遷移をトランザクションで行う
// 遷移が成立したかと解放した座席IDを返す。ガードに弾かれた場合は成立なし
func (s *HoldService) expireOne(ctx context.Context, holdID string, now time.Time) ([]string, bool, error) {
	tx, err := s.txm.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback()

	if err := s.holdRepo.Expire(ctx, tx, holdID, now); err != nil {
		if errors.Is(err, hold.ErrHoldNotActive) {
			return nil, false, nil
		}
		return nil, false, err
	}
	released, err := s.seatRepo.ReleaseSeatsByHold(ctx, tx, holdID)
	if err != nil {
		return nil, false, err
	}
	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("コミットに失敗: %w", err)
	}
	return released, true, nil
}

func (s *HoldService) grantedResult(ctx context.Context, h *hold.Hold) (*TryHoldResult, error) {
	seats, err := s.seatRepo.GetByIDs(ctx, h.SeatIDs)
	if err != nil {
		return nil, fmt.Errorf("座席取得に失敗: %w", err)
	}
	total := 0
	for _, se := range seats {
		total += se.PricePence
	}
	return &TryHoldResult{Hold: h, TotalAmountPence: total}, nil
}

func (s *HoldService) publishSeatEvents(showID string, seatIDs []string, status seat.Status, holdID string) {
	now := time.Now()
	for _, id := range seatIDs {
		s.events.Publish(notifier.SeatStatusChanged{
			ShowID: showID,
			SeatID: id,
			Status: string(status),
			HoldID: holdID,
			At:     now,
		})
	}
}

func (s *HoldService) invalidateCache(ctx context.Context, showID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, showID); err != nil {
		logger.Warn("キャッシュ無効化エラー", zap.Error(err))
	}
}

func (s *HoldService) countHold(status string) {
	if s.metrics != nil {
		s.metrics.HoldsTotal.WithLabelValues(status).Inc()
	}
}

func (s *HoldService) observeLock(operation, status string, start time.Time) {
	if s.metrics != nil {
		s.metrics.DistributedLockDuration.WithLabelValues(operation, status).Observe(time.Since(start).Seconds())
	}
}

// seatLockKey は座席IDからロックキーを生成（ソートしてデッドロック防止）
func seatLockKey(sortedSeatIDs []string) string {
	return "seats:" + strings.Join(sortedSeatIDs, ",")
}

func dedupeSorted(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	sorted := make([]string, len(ids))
	copy(sorted, ids)
	sort.Strings(sorted)
	result := sorted[:1]
	for _, id := range sorted[1:] {
		if id != result[len(result)-1] {
			result = append(result, id)
		}
	}
	return result
}
