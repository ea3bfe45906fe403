package interfaces

import (
	"encoding/json"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"stampcard/internal/pkg/logger"
	"stampcard/internal/service/loyalty/application"
	"stampcard/internal/service/loyalty/domain"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError 根据错误类型返回不同的 HTTP 状态码，存储错误不会泄露给调用方
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		logger.Ctx(r.Context()).Error().Err(err).Msg("request failed")
	}
	writeJSON(w, status, errorBody{OK: false, Error: application.ErrorCode(err)})
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, domain.ErrMembershipNotFound),
		errors.Is(err, domain.ErrBusinessNotFound),
		errors.Is(err, domain.ErrClientNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrCardExpired),
		errors.Is(err, domain.ErrInsufficientRewards),
		errors.Is(err, domain.ErrRewardsNotSupported),
		errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrMissingClientID),
		errors.Is(err, domain.ErrSlugRequired),
		errors.Is(err, domain.ErrInvalidLanding):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidCredentials),
		errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON 解析请求体，空请求体视为 {}
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
	if err != nil && !errors.Is(err, io.EOF) {
		return domain.ErrInvalidInput
	}
	return nil
}

// parseCount 解析 count 字段：缺省或 null 为 1，接受数字和数字字符串，小数部分截断。
// 小于 1 的值交给领域层按 1 处理。
func parseCount(raw json.RawMessage) (int, error) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return 1, nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		var str string
		if err := json.Unmarshal(raw, &str); err != nil {
			return 0, domain.ErrInvalidInput
		}
		str = strings.TrimSpace(str)
		if str == "" {
			return 1, nil
		}
		if f, err = strconv.ParseFloat(str, 64); err != nil {
			return 0, domain.ErrInvalidInput
		}
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) > math.MaxInt32 {
		return 0, domain.ErrInvalidInput
	}
	return int(f), nil
}
