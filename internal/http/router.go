package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Router 基于 gorilla/mux 的路由
type Router struct {
	mux    *mux.Router
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	r := &Router{mux: mux.NewRouter(), logger: logger}
	r.mux.Use(r.recoverMiddleware)
	r.mux.HandleFunc("/health", healthHandler).Methods(http.MethodGet)
	return r
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// RegisterSensorRoutes 设备上报与读数查询（固件依赖 CORS）
func (r *Router) RegisterSensorRoutes(h *SensorHandler) {
	api := r.mux.PathPrefix("/api/sensor").Subrouter()
	api.Use(corsMiddleware)
	api.HandleFunc("/multi-data", h.PostMultiData).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/multi-data", h.GetMultiData).Methods(http.MethodGet)
	api.HandleFunc("/data", h.PostLegacyData).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/cleanup", h.Cleanup).Methods(http.MethodGet)
}

// RegisterNotificationRoutes 通知设置、历史与邮件自检
func (r *Router) RegisterNotificationRoutes(h *NotificationHandler) {
	api := r.mux.PathPrefix("/api/notifications").Subrouter()
	api.HandleFunc("/settings", h.GetSettings).Methods(http.MethodGet)
	api.HandleFunc("/settings", h.UpdateSettings).Methods(http.MethodPost)
	api.HandleFunc("/history", h.GetHistory).Methods(http.MethodGet)
	api.HandleFunc("/history/export", h.ExportHistory).Methods(http.MethodGet)
	api.HandleFunc("/email/test", h.SendTestEmail).Methods(http.MethodGet)
}

// RegisterDeviceRoutes 设备心跳与发现
func (r *Router) RegisterDeviceRoutes(h *DeviceHandler) {
	api := r.mux.PathPrefix("/api/devices").Subrouter()
	api.Use(corsMiddleware)
	api.HandleFunc("/heartbeat", h.Heartbeat).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/discover", h.Discover).Methods(http.MethodGet)
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, Ok(map[string]string{"status": "ok", "service": "gasguard"}))
}

// corsMiddleware 设备固件与看板跨域访问；OPTIONS 预检直接返回
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (r *Router) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Error("Panic in HTTP handler",
					zap.String("path", req.URL.Path),
					zap.Any("panic", rec),
				)
				writeJSON(w, http.StatusInternalServerError, Fail("internal server error"))
			}
		}()
		next.ServeHTTP(w, req)
	})
}
