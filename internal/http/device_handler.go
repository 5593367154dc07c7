package httpapi

import (
	"net/http"
	"time"

	"gasguard/internal/service"

	"go.uber.org/zap"
)

// DeviceHandler 设备心跳与发现
type DeviceHandler struct {
	svc    *service.DeviceService
	logger *zap.Logger
}

func NewDeviceHandler(svc *service.DeviceService, logger *zap.Logger) *DeviceHandler {
	return &DeviceHandler{svc: svc, logger: logger}
}

// Heartbeat POST /api/devices/heartbeat
func (h *DeviceHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	var req service.HeartbeatRequest
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid body"))
		return
	}
	if _, err := h.svc.Heartbeat(r.Context(), req); err != nil {
		writeError(w, err, "failed to update device")
		return
	}
	writeJSON(w, http.StatusOK, OkMessage(map[string]string{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}, "Heartbeat recibido"))
}

// Discover GET /api/devices/discover
func (h *DeviceHandler) Discover(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, Fail("unauthorized"))
		return
	}
	resp, err := h.svc.Discover(r.Context(), p)
	if err != nil {
		h.logger.Error("Discover failed", zap.Error(err))
		writeError(w, err, "failed to discover devices")
		return
	}
	writeJSON(w, http.StatusOK, Ok(resp))
}
