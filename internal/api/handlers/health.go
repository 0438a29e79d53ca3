// health.go — обработчики health endpoints API каталога.
// /health/live — liveness probe (процесс жив)
// /health/ready — readiness probe (каталог артефактов доступен)
// /metrics — Prometheus метрики
package handlers

import (
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/quangminh1212/TeleDrive-sub002/internal/config"
)

// HealthHandler — обработчик health endpoints.
type HealthHandler struct {
	artifactsDir string
	promHandler  http.Handler
}

// NewHealthHandler создаёт обработчик health endpoints.
// artifactsDir — каталог, в который сканер коммитит артефакты.
func NewHealthHandler(artifactsDir string) *HealthHandler {
	return &HealthHandler{
		artifactsDir: artifactsDir,
		promHandler:  promhttp.Handler(),
	}
}

// healthCheckResult — результат проверки одной зависимости.
type healthCheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// healthLiveResponse — ответ liveness probe.
type healthLiveResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
	Service   string `json:"service"`
}

// healthReadyResponse — ответ readiness probe.
type healthReadyResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
	Service   string `json:"service"`
	Checks    struct {
		Artifacts healthCheckResult `json:"artifacts"`
	} `json:"checks"`
}

// HealthLive — liveness probe. Возвращает 200 если процесс жив.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	resp := healthLiveResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   config.Version,
		Service:   "teledrive-api",
	}
	writeJSON(w, http.StatusOK, resp)
}

// HealthReady — readiness probe. Проверяет доступность каталога артефактов.
// Возвращает 200 (ok) или 503 (fail).
func (h *HealthHandler) HealthReady(w http.ResponseWriter, _ *http.Request) {
	resp := healthReadyResponse{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   config.Version,
		Service:   "teledrive-api",
	}

	status := http.StatusOK
	if st, err := os.Stat(h.artifactsDir); err != nil || !st.IsDir() {
		resp.Status = "fail"
		resp.Checks.Artifacts = healthCheckResult{
			Status:  "fail",
			Message: "каталог артефактов недоступен",
		}
		status = http.StatusServiceUnavailable
	} else {
		resp.Status = "ok"
		resp.Checks.Artifacts = healthCheckResult{Status: "ok"}
	}

	writeJSON(w, status, resp)
}

// GetMetrics — Prometheus метрики.
func (h *HealthHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.promHandler.ServeHTTP(w, r)
}
