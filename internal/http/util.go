package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"gasguard/internal/service"
)

// 请求方身份头（由上游网关在认证后注入）
const (
	HeaderUserID    = "X-User-Id"
	HeaderUserEmail = "X-User-Email"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}

func readBodyJSON(r *http.Request, maxBytes int64, out any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBytes))
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return nil
	}
	return json.Unmarshal(body, out)
}

// principal 从身份头读取当前用户，缺失时返回 false
func principal(r *http.Request) (service.Principal, bool) {
	p := service.Principal{
		UserID: r.Header.Get(HeaderUserID),
		Email:  r.Header.Get(HeaderUserEmail),
	}
	return p, p.UserID != "" && p.Email != ""
}

// statusFor 服务层错误 → HTTP 状态码
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrUnknownDevice):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeError 4xx 返回具体原因，5xx 只返回通用信息
func writeError(w http.ResponseWriter, err error, internalMessage string) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		writeJSON(w, status, Fail(internalMessage))
		return
	}
	writeJSON(w, status, Fail(err.Error()))
}
