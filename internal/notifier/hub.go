package notifier

import (
	"sync"

	"go.uber.org/zap"

	"github.com/stagepass/seat-reservation/internal/pkg/logger"
)

// subscriberBuffer は購読者ごとのチャネル容量
// 溢れた場合はイベントを落とす（クライアントは全件取得で再同期する）
const subscriberBuffer = 64

// Hub は公演ごとの購読者へ座席イベントをファンアウトする
// ソケットの生死はホールドと無関係（ホールドはTTLとセッションで駆動される）
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[chan SeatStatusChanged]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[chan SeatStatusChanged]struct{})}
}

// Subscribe は公演の購読を開始し、受信チャネルと解除関数を返す
func (h *Hub) Subscribe(showID string) (<-chan SeatStatusChanged, func()) {
	ch := make(chan SeatStatusChanged, subscriberBuffer)

	h.mu.Lock()
	if h.subs[showID] == nil {
		h.subs[showID] = make(map[chan SeatStatusChanged]struct{})
	}
	h.subs[showID][ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if set, ok := h.subs[showID]; ok {
			delete(set, ch)
			if len(set) == 0 {
				delete(h.subs, showID)
			}
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// Broadcast はイベントを該当公演の全購読者へ配る
// 詰まっている購読者へはノンブロッキングで送り、溢れた分は落とす
func (h *Hub) Broadcast(ev SeatStatusChanged) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs[ev.ShowID] {
		select {
		case ch <- ev:
		default:
			logger.Debug("購読者のバッファが溢れたためイベントを破棄",
				zap.String("show_id", ev.ShowID),
				zap.String("seat_id", ev.SeatID),
			)
		}
	}
}

// Publish は Publisher を満たす（プロセス内配信のみの構成用）
func (h *Hub) Publish(ev SeatStatusChanged) {
	h.Broadcast(ev)
}

// SubscriberCount は公演の購読者数を返す
func (h *Hub) SubscriberCount(showID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[showID])
}

var _ Publisher = (*Hub)(nil)
