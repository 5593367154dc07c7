package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"gasguard/internal/service"

	"go.uber.org/zap"
)

// NotificationHandler 通知设置、历史、导出与邮件自检
type NotificationHandler struct {
	svc    *service.NotificationService
	checks *service.EmailCheckService
	loc    *time.Location
	logger *zap.Logger
}

func NewNotificationHandler(svc *service.NotificationService, checks *service.EmailCheckService, loc *time.Location, logger *zap.Logger) *NotificationHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &NotificationHandler{svc: svc, checks: checks, loc: loc, logger: logger}
}

// GetSettings GET /api/notifications/settings
func (h *NotificationHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, Fail("unauthorized"))
		return
	}
	pref, err := h.svc.GetSettings(r.Context(), p)
	if err != nil {
		h.logger.Error("GetSettings failed", zap.String("user_id", p.UserID), zap.Error(err))
		writeError(w, err, "failed to load settings")
		return
	}
	writeJSON(w, http.StatusOK, Ok(pref))
}

// UpdateSettings POST /api/notifications/settings
func (h *NotificationHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, Fail("unauthorized"))
		return
	}
	var req service.SettingsUpdate
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid body"))
		return
	}

	pref, err := h.svc.UpdateSettings(r.Context(), p, req)
	if err != nil {
		writeError(w, err, "failed to save settings")
		return
	}
	writeJSON(w, http.StatusOK, OkMessage(pref, "Configuración actualizada correctamente"))
}

func historyRequest(r *http.Request) service.HistoryRequest {
	q := r.URL.Query()
	return service.HistoryRequest{
		Limit:  parseInt(q.Get("limit"), 0),
		Estado: q.Get("estado"),
		Dias:   parseInt(q.Get("dias"), 0),
	}
}

// GetHistory GET /api/notifications/history?limit=&estado=&dias=
func (h *NotificationHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, Fail("unauthorized"))
		return
	}
	resp, err := h.svc.History(r.Context(), p, historyRequest(r))
	if err != nil {
		writeError(w, err, "failed to load notification history")
		return
	}
	writeJSON(w, http.StatusOK, Ok(resp))
}

// ExportHistory GET /api/notifications/history/export 导出 xlsx
func (h *NotificationHandler) ExportHistory(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, Fail("unauthorized"))
		return
	}
	items, err := h.svc.ExportAudits(r.Context(), p, historyRequest(r))
	if err != nil {
		writeError(w, err, "failed to load notification history")
		return
	}

	data, err := GenerateAuditExport(items, h.loc)
	if err != nil {
		h.logger.Error("Failed to generate audit export", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to generate export"))
		return
	}

	filename := fmt.Sprintf("notificaciones_%s.xlsx", time.Now().In(h.loc).Format("20060102"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// SendTestEmail GET /api/notifications/email/test?tipo=prueba|alerta
// 发往当前用户邮箱，不经过闸门
func (h *NotificationHandler) SendTestEmail(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, Fail("unauthorized"))
		return
	}
	res, err := h.checks.Send(r.Context(), p, r.URL.Query().Get("tipo"))
	if err != nil {
		writeError(w, err, "failed to send test email")
		return
	}
	if !res.Success {
		h.logger.Warn("Test email failed", zap.String("user_id", p.UserID), zap.String("error", res.Error))
		writeJSON(w, http.StatusBadGateway, Result[*service.EmailCheckResult]{
			Code: ResultError, Type: "error", Message: "Error enviando email", Result: res,
		})
		return
	}
	writeJSON(w, http.StatusOK, OkMessage(res, fmt.Sprintf("Email de %s enviado exitosamente a %s", res.Tipo, res.Destinatario)))
}
