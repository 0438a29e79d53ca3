// Пакет errors — единый формат ошибок HTTP API:
// {"error": {"code": "...", "message": "..."}}.
// Все ответы с ошибками должны идти через WriteError или конструкторы.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"io/fs"
	"net/http"
	"strconv"

	"github.com/quangminh1212/TeleDrive-sub002/internal/query"
	"github.com/quangminh1212/TeleDrive-sub002/internal/telegram"
)

// Машиночитаемые коды ошибок API.
const (
	CodeValidationError = "VALIDATION_ERROR"
	CodeNotFound        = "NOT_FOUND"
	CodeAccessDenied    = "ACCESS_DENIED"
	CodeRateLimited     = "RATE_LIMITED"
	CodeUpstreamTimeout = "UPSTREAM_TIMEOUT"
	CodeInternalError   = "INTERNAL_ERROR"
)

// errorBody — структура тела ответа ошибки.
type errorBody struct {
	Error errorDetail `json:"error"`
}

// errorDetail — детали ошибки.
type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError записывает ответ ошибки в стандартном формате.
// statusCode — HTTP статус-код, code — машиночитаемый код, message — описание.
func WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorBody{
		Error: errorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// ValidationError — 400 некорректные входные данные.
func ValidationError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeValidationError, message)
}

// NotFound — 404 ресурс не найден.
func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeNotFound, message)
}

// InternalError — 500 внутренняя ошибка.
func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeInternalError, message)
}

// FromError отображает ошибку нижних слоёв в HTTP-ответ.
// Классы транспортных ошибок Telegram переводятся в соответствующие
// статусы; для rate_limited дополнительно выставляется Retry-After.
func FromError(w http.ResponseWriter, err error) {
	if stderrors.Is(err, query.ErrBadRequest) {
		ValidationError(w, err.Error())
		return
	}
	if stderrors.Is(err, fs.ErrNotExist) {
		NotFound(w, err.Error())
		return
	}

	if classified, ok := telegram.AsClassified(err); ok {
		switch classified.Class {
		case telegram.ClassAccessDenied:
			WriteError(w, http.StatusForbidden, CodeAccessDenied, classified.Message)
			return
		case telegram.ClassRateLimited:
			if classified.RetryAfter > 0 {
				w.Header().Set("Retry-After", strconv.Itoa(int(classified.RetryAfter.Seconds())))
			}
			WriteError(w, http.StatusTooManyRequests, CodeRateLimited, classified.Message)
			return
		case telegram.ClassNetworkTransient:
			WriteError(w, http.StatusGatewayTimeout, CodeUpstreamTimeout, classified.Message)
			return
		}
	}

	InternalError(w, err.Error())
}
