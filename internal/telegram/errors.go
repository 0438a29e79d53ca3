// Package telegram инкапсулирует работу с MTProto: сессию, резолв каналов,
// обход истории сообщений, классификацию медиа и скачивание файлов.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/gotd/td/tgerr"
)

// Class — категория ошибки Telegram-подсистемы. Каждая категория определяет
// политику обработки: повтор, остановка скана или запрос действий пользователя.
type Class string

const (
	// ClassNetworkTransient — временная сетевая ошибка, повторяемая.
	ClassNetworkTransient Class = "network_transient"
	// ClassRateLimited — FLOOD_WAIT от сервера, повтор после паузы.
	ClassRateLimited Class = "rate_limited"
	// ClassSessionInvalid — сессия отозвана или ключ недействителен,
	// требуется повторный вход.
	ClassSessionInvalid Class = "session_invalid"
	// ClassLoginRejected — сервер отклонил данные входа (код, пароль).
	ClassLoginRejected Class = "login_rejected"
	// ClassAccessDenied — нет доступа к каналу или операции.
	ClassAccessDenied Class = "access_denied"
	// ClassUnresolvable — идентификатор канала не удалось распознать
	// или разрешить.
	ClassUnresolvable Class = "unresolvable_identifier"
	// ClassCancelled — операция отменена пользователем.
	ClassCancelled Class = "cancelled"
	// ClassRPCFailed — прочая ошибка MTProto, не повторяется.
	ClassRPCFailed Class = "rpc_failed"
)

// Error — классифицированная ошибка Telegram-подсистемы. Сохраняет исходный
// код MTProto-ошибки и, для FLOOD_WAIT, требуемую паузу.
type Error struct {
	Class      Class
	Code       string        // исходный тип RPC-ошибки, например CHANNEL_PRIVATE
	RetryAfter time.Duration // только для ClassRateLimited
	Message    string
	cause      error
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s): %s", e.Class, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Class, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Retriable сообщает, имеет ли смысл повторять операцию.
func (e *Error) Retriable() bool {
	return e.Class == ClassNetworkTransient || e.Class == ClassRateLimited
}

// newError создаёт классифицированную ошибку поверх исходной.
func newError(class Class, code, message string, cause error) *Error {
	return &Error{Class: class, Code: code, Message: message, cause: cause}
}

// AsClassified возвращает классифицированную ошибку из цепочки, если она там есть.
func AsClassified(err error) (*Error, bool) {
	var ce *Error
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// IsClass проверяет принадлежность ошибки заданной категории.
func IsClass(err error, class Class) bool {
	if ce, ok := AsClassified(err); ok {
		return ce.Class == class
	}
	return false
}

// Таблицы соответствия кодов MTProto категориям. Коды сверяются по префиксу,
// потому что сервер дополняет часть из них суффиксами (_EXPIRED и т. п.).
var (
	sessionInvalidCodes = []string{
		"AUTH_KEY_UNREGISTERED", "AUTH_KEY_INVALID", "AUTH_KEY_DUPLICATED",
		"AUTH_KEY_PERM_EMPTY", "SESSION_REVOKED", "SESSION_EXPIRED",
		"USER_DEACTIVATED",
	}
	loginRejectedCodes = []string{
		"PHONE_CODE_INVALID", "PHONE_CODE_EXPIRED", "PHONE_CODE_EMPTY",
		"PHONE_NUMBER_INVALID", "PHONE_NUMBER_BANNED", "PHONE_NUMBER_FLOOD",
		"PASSWORD_HASH_INVALID", "SRP_ID_INVALID", "SRP_PASSWORD_CHANGED",
	}
	accessDeniedCodes = []string{
		"CHANNEL_PRIVATE", "CHAT_ADMIN_REQUIRED", "CHAT_FORBIDDEN",
		"CHANNEL_INVALID", "USER_BANNED_IN_CHANNEL", "CHAT_WRITE_FORBIDDEN",
	}
	unresolvableCodes = []string{
		"USERNAME_NOT_OCCUPIED", "USERNAME_INVALID", "INVITE_HASH_INVALID",
		"INVITE_HASH_EXPIRED", "INVITE_REQUEST_SENT", "PEER_ID_INVALID",
	}
)

func matchCode(code string, table []string) bool {
	for _, c := range table {
		if code == c {
			return true
		}
	}
	return false
}

// Classify переводит произвольную ошибку клиента в классифицированную.
// Уже классифицированные ошибки возвращаются как есть.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	if ce, ok := AsClassified(err); ok {
		return ce
	}

	if errors.Is(err, context.Canceled) {
		return newError(ClassCancelled, "", "операция отменена", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return newError(ClassNetworkTransient, "", "превышен таймаут запроса", err)
	}

	if wait, ok := tgerr.AsFloodWait(err); ok {
		ce := newError(ClassRateLimited, "FLOOD_WAIT",
			fmt.Sprintf("сервер требует паузу %s", wait), err)
		ce.RetryAfter = wait
		return ce
	}

	if rpc, ok := tgerr.As(err); ok {
		code := rpc.Type
		switch {
		case matchCode(code, sessionInvalidCodes):
			return newError(ClassSessionInvalid, code,
				"сессия недействительна, требуется повторный вход", err)
		case matchCode(code, loginRejectedCodes):
			return newError(ClassLoginRejected, code,
				"сервер отклонил данные входа", err)
		case matchCode(code, accessDeniedCodes):
			return newError(ClassAccessDenied, code,
				"нет доступа к каналу", err)
		case matchCode(code, unresolvableCodes):
			return newError(ClassUnresolvable, code,
				"идентификатор не удалось разрешить", err)
		case rpc.Code >= 500:
			// Внутренние ошибки сервера Telegram считаем временными.
			return newError(ClassNetworkTransient, code,
				"внутренняя ошибка сервера Telegram", err)
		default:
			return newError(ClassRPCFailed, code,
				fmt.Sprintf("ошибка RPC: %s", rpc.Message), err)
		}
	}

	if isNetworkError(err) {
		return newError(ClassNetworkTransient, "",
			fmt.Sprintf("сетевая ошибка: %v", err), err)
	}

	return newError(ClassRPCFailed, "", err.Error(), err)
}

// isNetworkError распознаёт транспортные ошибки и ошибки DNS.
func isNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	// gotd оборачивает часть транспортных ошибок простым текстом.
	msg := err.Error()
	for _, marker := range []string{"connection reset", "broken pipe", "connection refused", "i/o timeout", "EOF"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
