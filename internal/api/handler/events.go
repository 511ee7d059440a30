package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/stagepass/seat-reservation/internal/notifier"
	"github.com/stagepass/seat-reservation/internal/pkg/logger"
)

// keepalive の間隔。プロキシの無通信タイムアウトより短くする
const sseKeepAliveInterval = 25 * time.Second

// EventsHandler は座席状態変更を Server-Sent Events で配信する
type EventsHandler struct {
	hub *notifier.Hub
}

func NewEventsHandler(hub *notifier.Hub) *EventsHandler {
	return &EventsHandler{hub: hub}
}

// Stream godoc
// @Summary 座席状態変更をストリーム配信
// @Description 公演の座席状態変更を Server-Sent Events で配信します
// @Tags events
// @Produce text/event-stream
// @Param show_id path string true "公演ID"
// @Success 200 {string} string "SSEストリーム"
// @Router /shows/{show_id}/events [get]
func (h *EventsHandler) Stream(c echo.Context) error {
	showID := c.Param("show_id")

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set(echo.HeaderCacheControl, "no-cache")
	res.Header().Set(echo.HeaderConnection, "keep-alive")
	res.WriteHeader(http.StatusOK)
	res.Flush()

	events, unsubscribe := h.hub.Subscribe(showID)
	defer unsubscribe()

	logger.Debug("SSE購読開始", zap.String("show_id", showID))

	ticker := time.NewTicker(sseKeepAliveInterval)
	defer ticker.Stop()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			logger.Debug("SSE購読終了", zap.String("show_id", showID))
			return nil
		case ev := <-events:
			data, err := json.Marshal(ev)
			if err != nil {
				logger.Warn("SSEイベントのシリアライズに失敗", zap.Error(err))
				continue
			}
			if _, err := fmt.Fprintf(res, "event: seat_status\ndata: %s\n\n", data); err != nil {
				return nil
			}
			res.Flush()
		case <-ticker.C:
			if _, err := fmt.Fprint(res, ": keepalive\n\n"); err != nil {
				return nil
			}
			res.Flush()
		}
	}
}
