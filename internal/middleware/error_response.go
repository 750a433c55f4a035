package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/hitoshi/qredentials/internal/model"
)

// ErrorResponseBody はJSONエンドポイントが返すエラー本文。
type ErrorResponseBody struct {
	Status   int    `json:"status"`
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

func newErrorResponseBody(status int, apiErr *model.APIError) ErrorResponseBody {
	if apiErr == nil {
		apiErr = model.NewInternalError()
	}
	return ErrorResponseBody{
		Status:   status,
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	}
}

// WriteErrorResponse はAPIErrorをJSONで書き込む。
// エラー応答はセッション状態に依存するためキャッシュさせない。
func WriteErrorResponse(w http.ResponseWriter, status int, apiErr *model.APIError) {
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, status, newErrorResponseBody(status, apiErr))
}

// WriteInternalServerError は詳細を伏せた500応答を書き込む。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, model.NewInternalError())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode json response", slog.Int("status", status), slog.String("error", err.Error()))
	}
}
