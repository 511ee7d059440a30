package notifier

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_SubscribeAndBroadcast(t *testing.T) {
	hub := NewHub()

	ch, cancel := hub.Subscribe("show-1")
	defer cancel()

	ev := SeatStatusChanged{
		ShowID: "show-1",
		SeatID: "seat-1",
		Status: "held",
		HoldID: "hold-1",
		At:     time.Now(),
	}
	hub.Broadcast(ev)

	select {
	case got := <-ch:
		assert.Equal(t, ev.SeatID, got.SeatID)
		assert.Equal(t, ev.Status, got.Status)
	case <-time.After(time.Second):
		t.Fatal("イベントが届かなかった")
	}
}

func TestHub_BroadcastOnlyToMatchingShow(t *testing.T) {
	hub := NewHub()

	ch1, cancel1 := hub.Subscribe("show-1")
	defer cancel1()
	ch2, cancel2 := hub.Subscribe("show-2")
	defer cancel2()

	hub.Broadcast(SeatStatusChanged{ShowID: "show-1", SeatID: "seat-1", Status: "held"})

	select {
	case <-ch1:
	case <-time.After(time.Second):
		t.Fatal("show-1 の購読者にイベントが届かなかった")
	}

	select {
	case ev := <-ch2:
		t.Fatalf("show-2 の購読者に無関係なイベントが届いた: %+v", ev)
	default:
	}
}

func TestHub_Unsubscribe(t *testing.T) {
	hub := NewHub()

	_, cancel := hub.Subscribe("show-1")
	require.Equal(t, 1, hub.SubscriberCount("show-1"))

	cancel()
	assert.Equal(t, 0, hub.SubscriberCount("show-1"))

	// 解除後の Broadcast もパニックしない
	hub.Broadcast(SeatStatusChanged{ShowID: "show-1", SeatID: "seat-1", Status: "available"})
}

func TestHub_SlowSubscriberDoesNotBlock(t *testing.T) {
	hub := NewHub()

	// 受信しない購読者のバッファを溢れさせる
	_, cancel := hub.Subscribe("show-1")
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*2; i++ {
			hub.Broadcast(SeatStatusChanged{ShowID: "show-1", SeatID: "seat-1", Status: "held"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("遅い購読者が Broadcast をブロックした")
	}
}
