package notifier

import "time"

// SeatStatusChanged は座席の状態遷移イベントを表す
// at-least-once / 座席ごとベストエフォート順序の配信であり、
// 取りこぼしたクライアントは全件取得で再同期する（正確性には関与しない）
type SeatStatusChanged struct {
	ShowID string    `json:"show_id"`
	SeatID string    `json:"seat_id"`
	Status string    `json:"status"`
	HoldID string    `json:"hold_id,omitempty"`
	At     time.Time `json:"at"`
}

// Publisher は座席状態遷移の配信インターフェース
// 配信失敗はホールドの正確性に影響しないため error を返さない
type Publisher interface {
	Publish(ev SeatStatusChanged)
}

// NopPublisher は何もしない Publisher（テスト・通知無効構成用）
type NopPublisher struct{}

func (NopPublisher) Publish(SeatStatusChanged) {}
