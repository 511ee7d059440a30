package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// MockHoldSweeper はHoldSweeperのモック
type MockHoldSweeper struct {
	mock.Mock
}

func (m *MockHoldSweeper) SweepExpired(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func TestNewExpiredHoldSweeper(t *testing.T) {
	mockService := new(MockHoldSweeper)
	interval := 20 * time.Second

	sweeper := NewExpiredHoldSweeper(mockService, interval)

	assert.NotNil(t, sweeper)
	assert.Equal(t, interval, sweeper.interval)
	assert.NotNil(t, sweeper.stopCh)
	assert.NotNil(t, sweeper.doneCh)
}

func TestExpiredHoldSweeper_SweepsOnTick(t *testing.T) {
	mockService := new(MockHoldSweeper)
	mockService.On("SweepExpired", mock.Anything).Return(2, nil)

	sweeper := NewExpiredHoldSweeper(mockService, 10*time.Millisecond)

	ctx := context.Background()
	go sweeper.Start(ctx)

	time.Sleep(50 * time.Millisecond)
	sweeper.Stop()

	mockService.AssertCalled(t, "SweepExpired", mock.Anything)
}

func TestExpiredHoldSweeper_ContinuesAfterError(t *testing.T) {
	mockService := new(MockHoldSweeper)
	mockService.On("SweepExpired", mock.Anything).Return(0, errors.New("一時的なDB障害"))

	sweeper := NewExpiredHoldSweeper(mockService, 10*time.Millisecond)

	go sweeper.Start(context.Background())
	time.Sleep(50 * time.Millisecond)
	sweeper.Stop()

	// エラーが出てもワーカーは止まらず次のtickで再試行する
	assert.GreaterOrEqual(t, len(mockService.Calls), 2)
}

func TestExpiredHoldSweeper_StopsOnContextCancel(t *testing.T) {
	mockService := new(MockHoldSweeper)
	mockService.On("SweepExpired", mock.Anything).Return(0, nil)

	sweeper := NewExpiredHoldSweeper(mockService, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sweeper.Start(ctx)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("コンテキストキャンセルでワーカーが停止しなかった")
	}
}
