package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// healthTimeout はDB疎通確認のタイムアウト。
const healthTimeout = 2 * time.Second

// HealthChecker はデータベースの疎通を確認する。*sqlx.DB が満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// HealthHandler は GET /health を処理する。
type HealthHandler struct {
	checker HealthChecker
	version string
}

// NewHealthHandler はHealthHandlerを生成する。
func NewHealthHandler(checker HealthChecker, version string) *HealthHandler {
	return &HealthHandler{checker: checker, version: version}
}

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Error   string `json:"error,omitempty"`
}

// Health はDBに到達できれば200、できなければ503を返す。
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	resp := healthResponse{Status: "ok", Version: h.version}
	status := http.StatusOK
	if err := h.checker.PingContext(ctx); err != nil {
		resp.Status = "unavailable"
		resp.Error = "database unreachable"
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}
