package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// Pinger は依存先の疎通確認インターフェース。*sql.DBが実装する。
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PingFunc は関数をPingerとして扱うアダプター。
type PingFunc func(ctx context.Context) error

// PingContext はPingerを実装する。
func (f PingFunc) PingContext(ctx context.Context) error {
	return f(ctx)
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// NewHealthHandler は依存先を確認するヘルスチェックハンドラーを返す。
// nilの依存先は確認対象から除外する。
// GET /health
func NewHealthHandler(checks map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := healthResponse{Status: "ok"}
		status := http.StatusOK
		for name, p := range checks {
			if p == nil {
				continue
			}
			if resp.Checks == nil {
				resp.Checks = make(map[string]string, len(checks))
			}
			if err := p.PingContext(ctx); err != nil {
				slog.Error("health check failed",
					slog.String("dependency", name),
					slog.String("error", err.Error()),
				)
				resp.Checks[name] = "unavailable"
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(resp)
	}
}
