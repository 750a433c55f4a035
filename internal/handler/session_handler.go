package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/qredentials/internal/middleware"
	"github.com/hitoshi/qredentials/internal/model"
)

// DefaultHeartbeatInterval はSSE接続を維持するためのコメント送信間隔。
const DefaultHeartbeatInterval = 25 * time.Second

// SessionSubscriber はセッション状態の購読インターフェース。
type SessionSubscriber interface {
	Subscribe(ctx context.Context, sess *model.Session) (<-chan model.SessionState, error)
}

// SessionHandler はセッション状態を公開するHTTPハンドラー。
type SessionHandler struct {
	subscriber SessionSubscriber
	heartbeat  time.Duration
	shutdown   <-chan struct{}
}

// NewSessionHandler はSessionHandlerを生成する。heartbeatが0以下の場合は既定値を使う。
// shutdownが閉じられると配信中のストリームを終了する。nilなら接続が切れるまで配信を続ける。
func NewSessionHandler(subscriber SessionSubscriber, heartbeat time.Duration, shutdown <-chan struct{}) *SessionHandler {
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeatInterval
	}
	return &SessionHandler{subscriber: subscriber, heartbeat: heartbeat, shutdown: shutdown}
}

// Current は解決済みのセッション状態をJSONで返す。未ログインはidentity: nullになる。
// GET /api/session
func (h *SessionHandler) Current(w http.ResponseWriter, r *http.Request) {
	state, _ := middleware.StateFromContext(r.Context())
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	json.NewEncoder(w).Encode(state)
}

// Events はセッション状態の変化をServer-Sent Eventsで配信する。
// 最初のイベントは解決済みの現在状態。接続が切れるかサーバーが停止すると購読を解除する。
// GET /api/session/events
func (h *SessionHandler) Events(w http.ResponseWriter, r *http.Request) {
	sess, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
		return
	}

	rc := http.NewResponseController(w)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	states, err := h.subscriber.Subscribe(ctx, sess)
	if err != nil {
		slog.Error("failed to subscribe session state",
			slog.String("error", err.Error()),
		)
		middleware.WriteErrorResponse(w, http.StatusServiceUnavailable, model.NewProviderUnavailableError())
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		slog.Warn("session stream flush unsupported", slog.String("error", err.Error()))
		return
	}

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.shutdown:
			return
		case state, ok := <-states:
			if !ok {
				return
			}
			if err := writeStateEvent(w, state); err != nil {
				return
			}
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

func writeStateEvent(w http.ResponseWriter, state model.SessionState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode session state: %w", err)
	}
	_, err = fmt.Fprintf(w, "event: session\ndata: %s\n\n", data)
	return err
}
