package httpapi

import (
	"net/http"

	"gasguard/internal/repository"
	"gasguard/internal/service"

	"go.uber.org/zap"
)

// SensorHandler 读数上报、查询与清理
type SensorHandler struct {
	ingest   *service.IngestService
	readings *service.ReadingService
	logger   *zap.Logger
}

func NewSensorHandler(ingest *service.IngestService, readings *service.ReadingService, logger *zap.Logger) *SensorHandler {
	return &SensorHandler{ingest: ingest, readings: readings, logger: logger}
}

// PostMultiData POST /api/sensor/multi-data
// 读数落库后立即返回，通知流水线在后台运行
func (h *SensorHandler) PostMultiData(w http.ResponseWriter, r *http.Request) {
	var req service.IngestRequest
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid body"))
		return
	}

	result, err := h.ingest.Ingest(r.Context(), req)
	if err != nil {
		h.logger.Warn("Multi-sensor ingest failed", zap.String("device_id", req.DeviceID), zap.Error(err))
		writeError(w, err, "failed to save readings")
		return
	}
	writeJSON(w, http.StatusOK, OkMessage(result, "Lecturas guardadas correctamente"))
}

// GetMultiData GET /api/sensor/multi-data?limit=&device_id=&sensor_tipo=
func (h *SensorHandler) GetMultiData(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	items, err := h.readings.List(r.Context(), repository.ReadingFilters{
		DeviceID:   q.Get("device_id"),
		SensorType: q.Get("sensor_tipo"),
		Limit:      parseInt(q.Get("limit"), 0),
	})
	if err != nil {
		writeError(w, err, "failed to list readings")
		return
	}
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
	writeJSON(w, http.StatusOK, Ok(items))
}

// PostLegacyData POST /api/sensor/data 旧版单气体读数
func (h *SensorHandler) PostLegacyData(w http.ResponseWriter, r *http.Request) {
	var req service.LegacyGasRequest
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid body"))
		return
	}

	reading, err := h.ingest.IngestLegacyGas(r.Context(), req)
	if err != nil {
		writeError(w, err, "failed to save reading")
		return
	}
	writeJSON(w, http.StatusOK, OkMessage(reading, "Lectura guardada correctamente"))
}

// Cleanup GET /api/sensor/cleanup?mantener=N
func (h *SensorHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	keep := parseInt(r.URL.Query().Get("mantener"), 0)
	if keep < 0 {
		writeJSON(w, http.StatusBadRequest, Fail("mantener must not be negative"))
		return
	}

	result, err := h.readings.Cleanup(r.Context(), keep)
	if err != nil {
		h.logger.Error("Manual cleanup failed", zap.Error(err))
		writeError(w, err, "failed to clean up readings")
		return
	}
	writeJSON(w, http.StatusOK, Ok(result))
}
