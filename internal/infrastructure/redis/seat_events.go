package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/stagepass/seat-reservation/internal/notifier"
	"github.com/stagepass/seat-reservation/internal/pkg/logger"
)

const seatEventChannelPrefix = "seats:events:"

// EventBridge は座席イベントを Redis Pub/Sub 経由でファンアウトする
// 複数インスタンス構成でも全インスタンスのハブへイベントが届く
type EventBridge struct {
	client *redis.Client
	hub    *notifier.Hub
}

func NewEventBridge(client *redis.Client, hub *notifier.Hub) *EventBridge {
	return &EventBridge{client: client, hub: hub}
}

// Publish はイベントを Redis へ発行する
// 自インスタンスへの配信も購読ループ経由で行われる（at-least-once）
func (b *EventBridge) Publish(ev notifier.SeatStatusChanged) {
	payload, err := json.Marshal(ev)
	if err != nil {
		logger.Warn("座席イベントのシリアライズに失敗", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	channel := seatEventChannelPrefix + ev.ShowID
	if err := b.client.Publish(ctx, channel, payload).Err(); err != nil {
		// 配信はベストエフォート。失敗してもホールドの整合性には影響しない
		logger.Warn("座席イベントの発行に失敗",
			zap.String("channel", channel),
			zap.Error(err),
		)
		b.hub.Broadcast(ev) // せめてプロセス内には届ける
	}
}

// Run は購読ループを開始し、受信イベントをハブへ流す
// ctx のキャンセルで停止する
func (b *EventBridge) Run(ctx context.Context) error {
	pubsub := b.client.PSubscribe(ctx, seatEventChannelPrefix+"*")
	defer pubsub.Close()

	// 購読確立を待つ
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("座席イベントの購読開始に失敗: %w", err)
	}

	logger.Info("座席イベント購読を開始", zap.String("pattern", seatEventChannelPrefix+"*"))

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			logger.Info("座席イベント購読を停止")
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev notifier.SeatStatusChanged
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				logger.Warn("座席イベントのデシリアライズに失敗", zap.Error(err))
				continue
			}
			if ev.ShowID == "" {
				ev.ShowID = strings.TrimPrefix(msg.Channel, seatEventChannelPrefix)
			}
			b.hub.Broadcast(ev)
		}
	}
}

var _ notifier.Publisher = (*EventBridge)(nil)
