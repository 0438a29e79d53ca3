package telegram

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/gotd/td/session"
	tgclient "github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/telegram/dcs"
	"github.com/gotd/td/tg"

	"github.com/quangminh1212/TeleDrive-sub002/internal/config"
)

// LoginState — состояние процесса авторизации.
type LoginState string

const (
	StateDisconnected     LoginState = "disconnected"
	StateAwaitingPhone    LoginState = "awaiting_phone"
	StateAwaitingCode     LoginState = "awaiting_code"
	StateAwaitingPassword LoginState = "awaiting_password"
	StateAuthorized       LoginState = "authorized"
)

// maxLoginAttempts ограничивает число попыток ввода кода и пароля.
const maxLoginAttempts = 3

// Prompter запрашивает у пользователя данные для входа. CLI реализует его
// через терминал; тесты подставляют заранее заданные ответы.
type Prompter interface {
	Phone(ctx context.Context) (string, error)
	Code(ctx context.Context) (string, error)
	Password(ctx context.Context) (string, error)
}

// ErrLoginRequired возвращается, когда сессия не авторизована, а Prompter
// недоступен (неинтерактивный запуск).
var ErrLoginRequired = errors.New("требуется вход: запустите login в интерактивном режиме")

// Session — обёртка над клиентом gotd: файл сессии, ограничитель частоты,
// машина состояний входа. Все RPC-запросы проходят через единую цепочку
// middleware (лимитер + заморозка FLOOD_WAIT).
type Session struct {
	client  *tgclient.Client
	limiter *RateLimiter
	log     *slog.Logger
	cfg     *config.TelegramConfig

	mu    sync.RWMutex
	state LoginState
}

// SessionPath возвращает путь к файлу сессии для заданного имени.
func SessionPath(dir, name string) string {
	return filepath.Join(dir, name+".session")
}

// NewSession создаёт сессию. Файл сессии располагается в dir под именем из
// конфигурации и доступен только владельцу.
func NewSession(cfg *config.TelegramConfig, rl config.RateLimitConfig, dir string, log *slog.Logger) (*Session, error) {
	if cfg.APIID <= 0 || cfg.APIHash == "" {
		return nil, fmt.Errorf("не заданы api_id/api_hash")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию сессии %s: %w", dir, err)
	}

	limiter := NewRateLimiter(rl.RequestsPerSecond, 1)

	// Таймаут установления соединения задаётся на уровне dialer,
	// таймаут отдельного запроса — middleware rpcTimeout.
	dialer := &net.Dialer{Timeout: cfg.ConnectionTimeout}

	opts := tgclient.Options{
		SessionStorage: &session.FileStorage{Path: SessionPath(dir, cfg.SessionName)},
		Device: tgclient.DeviceConfig{
			DeviceModel:    cfg.DeviceModel,
			SystemVersion:  runtime.GOOS,
			AppVersion:     cfg.AppVersion,
			LangCode:       "en",
			SystemLangCode: "en",
		},
		Resolver:    dcs.Plain(dcs.PlainOptions{Dial: dialer.DialContext}),
		Middlewares: []tgclient.Middleware{limiter, rpcTimeout{limit: cfg.RequestTimeout}},
	}

	if err := applyServerEnvironment(&opts, cfg); err != nil {
		return nil, err
	}

	s := &Session{
		client:  tgclient.NewClient(cfg.APIID, cfg.APIHash, opts),
		limiter: limiter,
		log:     log,
		cfg:     cfg,
		state:   StateDisconnected,
	}
	return s, nil
}

// applyServerEnvironment настраивает список дата-центров. Для окружения test
// используются тестовые DC Telegram; запись в mtproto_servers переопределяет
// адрес и ключ явно.
func applyServerEnvironment(opts *tgclient.Options, cfg *config.TelegramConfig) error {
	if cfg.ServerEnvironment == "test" {
		opts.DCList = dcs.Test()
	}

	srv, ok := cfg.MTProtoServers[cfg.ServerEnvironment]
	if !ok || srv.IP == "" {
		return nil
	}

	opts.DC = srv.DCID
	opts.DCList = dcs.List{
		Options: []tg.DCOption{{
			ID:        srv.DCID,
			IPAddress: srv.IP,
			Port:      srv.Port,
		}},
	}

	if srv.PublicKey != "" {
		key, err := parseRSAPublicKey(srv.PublicKey)
		if err != nil {
			return fmt.Errorf("mtproto_servers.%s.public_key: %w", cfg.ServerEnvironment, err)
		}
		opts.PublicKeys = []tgclient.PublicKey{{RSA: key}}
	}
	return nil
}

func parseRSAPublicKey(pemData string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, errors.New("некорректный PEM")
	}
	if key, err := x509.ParsePKCS1PublicKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("разбор ключа: %w", err)
	}
	key, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("ключ не является RSA")
	}
	return key, nil
}

// State возвращает текущее состояние авторизации.
func (s *Session) State() LoginState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) setState(st LoginState) {
	s.mu.Lock()
	prev := s.state
	s.state = st
	s.mu.Unlock()
	if prev != st {
		s.log.Debug("смена состояния авторизации",
			slog.String("from", string(prev)), slog.String("to", string(st)))
	}
}

// Run устанавливает соединение и выполняет fn поверх живого клиента.
// Соединение закрывается по возврату fn.
func (s *Session) Run(ctx context.Context, fn func(ctx context.Context, api *tg.Client) error) error {
	err := s.client.Run(ctx, func(ctx context.Context) error {
		return fn(ctx, s.client.API())
	})
	if err != nil {
		return Classify(err)
	}
	return nil
}

// EnsureAuthorized проверяет сессию и при необходимости проводит вход.
// Вызывается внутри Run. Если prompter == nil, а сессия не авторизована,
// возвращается ErrLoginRequired.
func (s *Session) EnsureAuthorized(ctx context.Context, prompter Prompter) error {
	status, err := s.client.Auth().Status(ctx)
	if err != nil {
		return Classify(fmt.Errorf("проверка статуса авторизации: %w", err))
	}
	if status.Authorized {
		s.setState(StateAuthorized)
		s.log.Debug("сессия восстановлена из файла")
		return nil
	}
	if prompter == nil {
		return ErrLoginRequired
	}
	return s.login(ctx, prompter)
}

// login проводит интерактивную авторизацию: телефон → код → при включённой
// двухфакторной защите пароль. Ввод кода и пароля ограничен maxLoginAttempts
// попытками, отмена контекста прерывает любое состояние.
func (s *Session) login(ctx context.Context, prompter Prompter) error {
	phone := strings.TrimSpace(s.cfg.Phone)
	if phone == "" {
		s.setState(StateAwaitingPhone)
		p, err := prompter.Phone(ctx)
		if err != nil {
			return Classify(err)
		}
		phone = strings.TrimSpace(p)
	}
	if !strings.HasPrefix(phone, "+") {
		return newError(ClassLoginRejected, "",
			fmt.Sprintf("номер телефона %q должен начинаться с +", phone), nil)
	}

	sent, err := s.client.Auth().SendCode(ctx, phone, auth.SendCodeOptions{})
	if err != nil {
		return Classify(fmt.Errorf("отправка кода на %s: %w", maskPhone(phone), err))
	}
	code, ok := sent.(*tg.AuthSentCode)
	if !ok {
		return newError(ClassRPCFailed, "", "неожиданный ответ на запрос кода", nil)
	}

	s.setState(StateAwaitingCode)
	s.log.Info("код подтверждения отправлен", slog.String("phone", maskPhone(phone)))

	var lastErr error
	for attempt := 1; attempt <= maxLoginAttempts; attempt++ {
		input, err := prompter.Code(ctx)
		if err != nil {
			return Classify(err)
		}

		_, err = s.client.Auth().SignIn(ctx, phone, strings.TrimSpace(input), code.PhoneCodeHash)
		if err == nil {
			s.setState(StateAuthorized)
			s.log.Info("вход выполнен", slog.String("phone", maskPhone(phone)))
			return nil
		}
		if errors.Is(err, auth.ErrPasswordAuthNeeded) {
			return s.loginWithPassword(ctx, prompter, phone)
		}

		ce := Classify(err)
		if ce.Class != ClassLoginRejected {
			return ce
		}
		lastErr = ce
		s.log.Warn("код отклонён", slog.Int("attempt", attempt), slog.String("code", ce.Code))
	}
	return fmt.Errorf("исчерпаны попытки ввода кода: %w", lastErr)
}

func (s *Session) loginWithPassword(ctx context.Context, prompter Prompter, phone string) error {
	s.setState(StateAwaitingPassword)
	s.log.Info("включена двухфакторная защита, требуется пароль")

	var lastErr error
	for attempt := 1; attempt <= maxLoginAttempts; attempt++ {
		pw, err := prompter.Password(ctx)
		if err != nil {
			return Classify(err)
		}

		_, err = s.client.Auth().Password(ctx, pw)
		if err == nil {
			s.setState(StateAuthorized)
			s.log.Info("вход выполнен", slog.String("phone", maskPhone(phone)))
			return nil
		}

		ce := Classify(err)
		if ce.Class != ClassLoginRejected {
			return ce
		}
		lastErr = ce
		s.log.Warn("пароль отклонён", slog.Int("attempt", attempt))
	}
	return fmt.Errorf("исчерпаны попытки ввода пароля: %w", lastErr)
}

// Logout завершает сессию на сервере и удаляет локальный файл сессии.
func (s *Session) Logout(ctx context.Context, dir string) error {
	if _, err := s.client.API().AuthLogOut(ctx); err != nil {
		return Classify(fmt.Errorf("завершение сессии: %w", err))
	}
	path := SessionPath(dir, s.cfg.SessionName)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("удаление файла сессии %s: %w", path, err)
	}
	s.setState(StateDisconnected)
	return nil
}

// maskPhone скрывает середину номера в логах.
func maskPhone(phone string) string {
	if len(phone) < 6 {
		return "***"
	}
	return phone[:3] + strings.Repeat("*", len(phone)-5) + phone[len(phone)-2:]
}
