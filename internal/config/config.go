// Пакет config — загрузка, валидация и запись конфигурации сканера.
//
// Источник истины — JSON-документ (config.json) плюс переменные
// окружения; окружение имеет приоритет при конфликте. Документ
// версионируется (_schema_version) и валидируется по JSON Schema.
// Неизвестные ключи сохраняются при записи.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"github.com/quangminh1212/TeleDrive-sub002/internal/domain/model"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// SchemaVersion — текущая версия схемы config.json.
const SchemaVersion = "1.0"

// Канонические ошибки конфигурации.
var (
	// ErrMalformed — документ не является корректным JSON
	// или не проходит валидацию схемы.
	ErrMalformed = errors.New("некорректная конфигурация")
	// ErrIncomplete — отсутствуют обязательные учётные данные
	// telegram.api_id / api_hash / phone после наложения окружения.
	ErrIncomplete = errors.New("неполная конфигурация")
)

var (
	apiHashRe = regexp.MustCompile(`^[0-9a-fA-F]{32}$`)
	phoneRe   = regexp.MustCompile(`^\+\d{10,15}$`)
)

// envOverrides — переменные окружения, накладываемые на документ.
// Ключ — переменная, значение — dotted-путь и тип значения.
var envOverrides = []struct {
	Env  string
	Path string
	Int  bool
}{
	{"TELEGRAM_API_ID", "telegram.api_id", true},
	{"TELEGRAM_API_HASH", "telegram.api_hash", false},
	{"TELEGRAM_PHONE", "telegram.phone", false},
	{"TELEGRAM_SESSION_NAME", "telegram.session_name", false},
	{"TELEGRAM_CONNECTION_TIMEOUT", "telegram.connection_timeout", true},
	{"TELEGRAM_REQUEST_TIMEOUT", "telegram.request_timeout", true},
	{"TELEGRAM_RETRY_ATTEMPTS", "telegram.retry_attempts", true},
	{"TELEGRAM_RETRY_DELAY", "telegram.retry_delay", true},
}

// Store — загруженный документ конфигурации с типизированными view.
type Store struct {
	mu   sync.RWMutex
	path string
	doc  map[string]any
}

// Open загружает config.json без проверки учётных данных.
// Используется CLI-командами config (show/set/sync-env/validate),
// которые должны работать и до первичной настройки.
//
// Отсутствующий файл заменяется документом по умолчанию (с записью
// на диск). Документ без _schema_version мигрируется: известные
// секции копируются под текущую версию схемы, результат пишется назад.
func Open(path string) (*Store, error) {
	s := &Store{path: path}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		s.doc = defaultDocument()
		if saveErr := s.save(); saveErr != nil {
			return nil, saveErr
		}
	case err != nil:
		return nil, fmt.Errorf("чтение %s: %w", path, err)
	default:
		var doc map[string]any
		if jsonErr := json.Unmarshal(data, &doc); jsonErr != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, path, jsonErr)
		}
		s.doc = doc
		if migrated := s.migrate(); migrated {
			if saveErr := s.save(); saveErr != nil {
				return nil, saveErr
			}
		}
	}

	s.applyEnv()
	fillDefaults(s.doc, defaultDocument())

	if err := s.validateDoc(s.doc); err != nil {
		return nil, err
	}
	return s, nil
}

// Load загружает конфигурацию для запуска сканирования: как Open,
// но дополнительно требует заполненных учётных данных Telegram.
func Load(path string) (*Store, error) {
	s, err := Open(path)
	if err != nil {
		return nil, err
	}
	if err := s.RequireCredentials(); err != nil {
		return nil, err
	}
	return s, nil
}

// RequireCredentials проверяет наличие и формат учётных данных Telegram.
func (s *Store) RequireCredentials() error {
	tg, err := s.Telegram()
	if err != nil {
		return err
	}
	switch {
	case tg.APIID <= 0:
		return fmt.Errorf("%w: telegram.api_id не задан", ErrIncomplete)
	case tg.APIHash == "":
		return fmt.Errorf("%w: telegram.api_hash не задан", ErrIncomplete)
	case tg.Phone == "":
		return fmt.Errorf("%w: telegram.phone не задан", ErrIncomplete)
	}
	if !apiHashRe.MatchString(tg.APIHash) {
		return fmt.Errorf("%w: telegram.api_hash должен быть 32-символьной hex-строкой", ErrMalformed)
	}
	if !phoneRe.MatchString(tg.Phone) {
		return fmt.Errorf("%w: telegram.phone должен быть в формате E.164 (+XXXXXXXXXXX)", ErrMalformed)
	}
	return nil
}

// Get возвращает значение по dotted-пути ("telegram.api_id").
// Второе значение — false, если путь отсутствует.
func (s *Store) Get(path string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lookup(s.doc, path)
}

// GetDefault возвращает значение по пути или значение по умолчанию.
func (s *Store) GetDefault(path string, def any) any {
	if v, ok := s.Get(path); ok {
		return v
	}
	return def
}

// Set записывает значение по dotted-пути с паттерном
// validate-then-atomic-rename: сначала кандидат проверяется по схеме,
// затем файл пишется через tmp → fsync → rename. Запись, ломающая
// схему, отклоняется без изменения документа.
func (s *Store) Set(path string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	candidate := deepCopy(s.doc)
	if err := store(candidate, path, value); err != nil {
		return err
	}
	if err := s.validateDoc(candidate); err != nil {
		return err
	}

	s.doc = candidate
	return s.save()
}

// SyncEnv копирует значения переменных окружения в документ на диске.
// Сравнение ведётся с содержимым файла, а не с наложенным в памяти
// документом: цель операции — материализовать секреты из окружения
// в едином источнике истины. Идемпотентна: повторный вызов без
// изменения окружения ничего не пишет. Возвращает количество
// перенесённых значений.
func (s *Store) SyncEnv() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	onDisk := map[string]any{}
	if data, err := os.ReadFile(s.path); err == nil {
		if jsonErr := json.Unmarshal(data, &onDisk); jsonErr != nil {
			return 0, fmt.Errorf("%w: %s: %v", ErrMalformed, s.path, jsonErr)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return 0, fmt.Errorf("чтение %s: %w", s.path, err)
	}

	copied := 0
	for _, ov := range envOverrides {
		val := os.Getenv(ov.Env)
		if val == "" {
			continue
		}
		parsed, err := parseEnvValue(ov.Env, val, ov.Int)
		if err != nil {
			return 0, err
		}
		if cur, ok := lookup(onDisk, ov.Path); ok {
			// JSON хранит числа как float64 — сравниваем нормализованно.
			if ov.Int && asInt(cur, -1) == parsed.(int) {
				continue
			}
			if !ov.Int && asString(cur, "") == parsed.(string) {
				continue
			}
		}
		if err := store(onDisk, ov.Path, parsed); err != nil {
			return 0, err
		}
		copied++
	}

	if copied == 0 {
		return 0, nil
	}
	fillDefaults(onDisk, defaultDocument())
	if err := s.validateDoc(onDisk); err != nil {
		return 0, err
	}
	s.doc = onDisk
	s.applyEnv()
	return copied, s.save()
}

// Validate проверяет текущий документ по схеме и учётным данным.
func (s *Store) Validate() error {
	s.mu.RLock()
	doc := s.doc
	s.mu.RUnlock()

	if err := s.validateDoc(doc); err != nil {
		return err
	}
	return s.RequireCredentials()
}

// Document возвращает глубокую копию документа (для config show).
func (s *Store) Document() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return deepCopy(s.doc)
}

// Path возвращает путь к файлу конфигурации.
func (s *Store) Path() string { return s.path }

// --- Типизированные view ---

// DCServer — адрес и ключ MTProto-сервера из telegram.mtproto_servers.
// Ключ трактуется как конфигурация клиента, без дополнительной семантики.
type DCServer struct {
	DCID      int
	IP        string
	Port      int
	PublicKey string
}

// TelegramConfig — view секции telegram.
type TelegramConfig struct {
	APIID               int
	APIHash             string
	Phone               string
	SessionName         string
	ConnectionTimeout   time.Duration
	RequestTimeout      time.Duration
	RetryAttempts       int
	RetryDelay          time.Duration
	FloodSleepThreshold time.Duration
	DeviceModel         string
	AppVersion          string
	ServerEnvironment   string
	MTProtoServers      map[string]DCServer
}

// Telegram возвращает view секции telegram.
func (s *Store) Telegram() (*TelegramConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg := &TelegramConfig{
		APIID:               s.intAt("telegram.api_id", 0),
		APIHash:             s.stringAt("telegram.api_hash", ""),
		Phone:               s.stringAt("telegram.phone", ""),
		SessionName:         s.stringAt("telegram.session_name", "session"),
		ConnectionTimeout:   time.Duration(s.intAt("telegram.connection_timeout", 30)) * time.Second,
		RequestTimeout:      time.Duration(s.intAt("telegram.request_timeout", 60)) * time.Second,
		RetryAttempts:       s.intAt("telegram.retry_attempts", 3),
		RetryDelay:          time.Duration(s.intAt("telegram.retry_delay", 5)) * time.Second,
		FloodSleepThreshold: time.Duration(s.intAt("telegram.flood_sleep_threshold", 60)) * time.Second,
		DeviceModel:         s.stringAt("telegram.device_model", "TeleDrive"),
		AppVersion:          s.stringAt("telegram.app_version", Version),
		ServerEnvironment:   s.stringAt("telegram.server_environment", "production"),
		MTProtoServers:      map[string]DCServer{},
	}

	if servers, ok := lookup(s.doc, "telegram.mtproto_servers"); ok {
		m, ok := servers.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: telegram.mtproto_servers должен быть объектом", ErrMalformed)
		}
		for env, raw := range m {
			srv, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			cfg.MTProtoServers[env] = DCServer{
				DCID:      asInt(srv["dc_id"], 0),
				IP:        asString(srv["ip"], ""),
				Port:      asInt(srv["port"], 443),
				PublicKey: asString(srv["public_key"], ""),
			}
		}
	}

	return cfg, nil
}

// RateLimitConfig — view секции rate_limit.
type RateLimitConfig struct {
	RequestsPerSecond float64
}

// RateLimit возвращает view секции rate_limit.
func (s *Store) RateLimit() RateLimitConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return RateLimitConfig{
		RequestsPerSecond: s.floatAt("rate_limit.requests_per_second", 10),
	}
}

// ScanningConfig — view секции scanning.
type ScanningConfig struct {
	MaxMessages     int // model.UnlimitedMessages = без ограничения, 0 = пустое сканирование
	BatchSize       int
	Direction       model.Direction
	InterBatchDelay time.Duration
	FileTypes       []model.FileType
}

// fileTypeKeys — соответствие ключей file_types типам файлов
// (ключи во множественном числе, как в исходном config.json).
var fileTypeKeys = map[string]model.FileType{
	"documents":   model.TypeDocument,
	"photos":      model.TypePhoto,
	"videos":      model.TypeVideo,
	"audio":       model.TypeAudio,
	"voice":       model.TypeVoice,
	"stickers":    model.TypeSticker,
	"animations":  model.TypeAnimation,
	"video_notes": model.TypeVideoNote,
}

// Scanning возвращает view секции scanning.
func (s *Store) Scanning() (*ScanningConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dir, err := model.ParseDirection(s.stringAt("scanning.direction", string(model.NewestFirst)))
	if err != nil {
		return nil, fmt.Errorf("%w: scanning.direction: %v", ErrMalformed, err)
	}

	cfg := &ScanningConfig{
		// null и отсутствие ключа означают «без ограничения»; явный 0 —
		// пустое сканирование.
		MaxMessages:     s.intAt("scanning.max_messages", model.UnlimitedMessages),
		BatchSize:       s.intAt("scanning.batch_size", 100),
		Direction:       dir,
		InterBatchDelay: time.Duration(s.floatAt("scanning.inter_batch_delay", 1) * float64(time.Second)),
	}
	if cfg.BatchSize < 1 || cfg.BatchSize > 1000 {
		return nil, fmt.Errorf("%w: scanning.batch_size=%d вне диапазона [1,1000]", ErrMalformed, cfg.BatchSize)
	}

	types, ok := lookup(s.doc, "scanning.file_types")
	if !ok {
		cfg.FileTypes = model.AllFileTypes()
		return cfg, nil
	}
	m, ok := types.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: scanning.file_types должен быть объектом", ErrMalformed)
	}
	for key, ft := range fileTypeKeys {
		if enabled, ok := m[key].(bool); !ok || enabled {
			cfg.FileTypes = append(cfg.FileTypes, ft)
		}
	}
	return cfg, nil
}

// Filters возвращает снимок фильтров из секции filters.
func (s *Store) Filters() (*model.FilterSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fs := &model.FilterSet{
		SizeMin:      int64(s.intAt("filters.min_file_size", 0)),
		SizeMax:      int64(s.intAt("filters.max_file_size", 0)),
		ExtAllow:     s.stringsAt("filters.file_extensions"),
		ExtDeny:      s.stringsAt("filters.exclude_extensions"),
		NameAllow:    s.stringsAt("filters.name_allow_patterns"),
		NameDeny:     s.stringsAt("filters.name_deny_patterns"),
		Dedupe:       s.boolAt("filters.dedupe", true),
		SkipExisting: s.boolAt("filters.skip_existing", false),
	}

	for _, bound := range []struct {
		path string
		dst  **time.Time
	}{
		{"filters.date_from", &fs.DateFrom},
		{"filters.date_to", &fs.DateTo},
	} {
		raw := s.stringAt(bound.path, "")
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: ожидается RFC 3339, получено %q", ErrMalformed, bound.path, raw)
		}
		utc := t.UTC()
		*bound.dst = &utc
	}

	return fs, nil
}

// OutputConfig — view секции output.
type OutputConfig struct {
	Directory      string
	BackupExisting bool
	SheetName      string
	RichJSON       bool
	SimpleJSON     bool
	CSV            bool
	Excel          bool
}

// Output возвращает view секции output.
func (s *Store) Output() OutputConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return OutputConfig{
		Directory:      s.stringAt("output.directory", "output"),
		BackupExisting: s.boolAt("output.backup_existing", true),
		SheetName:      s.stringAt("output.sheet_name", "Telegram Files"),
		RichJSON:       s.boolAt("output.formats.json.enabled", true),
		SimpleJSON:     s.boolAt("output.formats.simple_json.enabled", false),
		CSV:            s.boolAt("output.formats.csv.enabled", true),
		Excel:          s.boolAt("output.formats.excel.enabled", true),
	}
}

// DownloadConfig — view секции download.
type DownloadConfig struct {
	GenerateLinks  bool
	IncludePreview bool
	AutoDownload   bool
	Directory      string
	Workers        int
}

// Download возвращает view секции download.
func (s *Store) Download() DownloadConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return DownloadConfig{
		GenerateLinks:  s.boolAt("download.generate_links", true),
		IncludePreview: s.boolAt("download.include_preview", false),
		AutoDownload:   s.boolAt("download.auto_download", false),
		Directory:      s.stringAt("download.directory", "downloads"),
		Workers:        s.intAt("download.workers", 3),
	}
}

// LoggingConfig — view секции logging.
type LoggingConfig struct {
	Level         slog.Level
	Directory     string
	MaxSizeMB     int
	BackupCount   int
	ConsoleOutput bool
}

// Logging возвращает view секции logging.
func (s *Store) Logging() (*LoggingConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	level, err := parseLogLevel(s.stringAt("logging.level", "info"))
	if err != nil {
		return nil, fmt.Errorf("%w: logging.level: %v", ErrMalformed, err)
	}
	return &LoggingConfig{
		Level:         level,
		Directory:     s.stringAt("logging.directory", "logs"),
		MaxSizeMB:     s.intAt("logging.max_size_mb", 10),
		BackupCount:   s.intAt("logging.backup_count", 5),
		ConsoleOutput: s.boolAt("logging.console_output", true),
	}, nil
}

// APIPort возвращает порт HTTP-интерфейса запросов.
func (s *Store) APIPort() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.intAt("api.port", 8080)
}

// --- Внутренности ---

// migrate переводит документ более старой схемы на текущую.
// Документ без _schema_version получает версию и недостающие секции.
// Возвращает true, если документ был изменён.
func (s *Store) migrate() bool {
	if v, ok := s.doc["_schema_version"].(string); ok && v == SchemaVersion {
		return false
	}
	// Переносим известные секции как есть, добавляем отсутствующие
	// из документа по умолчанию.
	s.doc["_schema_version"] = SchemaVersion
	// Историческое имя поля телефона.
	if tg, ok := s.doc["telegram"].(map[string]any); ok {
		if phone, ok := tg["phone_number"]; ok {
			if _, exists := tg["phone"]; !exists {
				tg["phone"] = phone
			}
			delete(tg, "phone_number")
		}
	}
	fillDefaults(s.doc, defaultDocument())
	return true
}

// applyEnv накладывает переменные окружения на документ (в памяти).
func (s *Store) applyEnv() {
	for _, ov := range envOverrides {
		val := os.Getenv(ov.Env)
		if val == "" {
			continue
		}
		parsed, err := parseEnvValue(ov.Env, val, ov.Int)
		if err != nil {
			// Некорректное значение окружения — жёсткий отказ ниже по
			// цепочке валидации; здесь просто не накладываем.
			continue
		}
		_ = store(s.doc, ov.Path, parsed)
	}
}

// validateDoc проверяет документ по JSON Schema.
func (s *Store) validateDoc(doc map[string]any) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(schemaJSON),
		gojsonschema.NewGoLoader(doc),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}
		return fmt.Errorf("%w: %s", ErrMalformed, strings.Join(details, "; "))
	}
	return nil
}

// save атомарно пишет документ на диск: tmp → fsync → rename.
func (s *Store) save() error {
	data, err := json.MarshalIndent(s.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("сериализация конфигурации: %w", err)
	}
	data = append(data, '\n')

	tmpPath := s.path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("ошибка создания временного файла: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка записи: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка fsync: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка закрытия файла: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка атомарного переименования: %w", err)
	}
	return nil
}

// parseEnvValue разбирает значение переменной окружения.
func parseEnvValue(env, val string, wantInt bool) (any, error) {
	if !wantInt {
		return val, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: некорректное целое число %q", ErrMalformed, env, val)
	}
	return n, nil
}

// parseLogLevel преобразует уровень логирования конфигурации в slog.Level.
// Уровень critical отображается на error+4 (slog не имеет critical).
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warning", "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	case "critical":
		return slog.LevelError + 4, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q", level)
	}
}

// --- Работа с dotted-путями над map[string]any ---

func lookup(doc map[string]any, path string) (any, bool) {
	parts := strings.Split(path, ".")
	cur := any(doc)
	for _, part := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func store(doc map[string]any, path string, value any) error {
	parts := strings.Split(path, ".")
	cur := doc
	for _, part := range parts[:len(parts)-1] {
		next, ok := cur[part]
		if !ok {
			child := map[string]any{}
			cur[part] = child
			cur = child
			continue
		}
		m, ok := next.(map[string]any)
		if !ok {
			return fmt.Errorf("путь %s: %q не является объектом", path, part)
		}
		cur = m
	}
	cur[parts[len(parts)-1]] = value
	return nil
}

// fillDefaults рекурсивно добавляет в doc отсутствующие ключи из defaults.
// Существующие значения не перезаписываются.
func fillDefaults(doc, defaults map[string]any) {
	for key, defVal := range defaults {
		cur, exists := doc[key]
		if !exists {
			doc[key] = deepCopyValue(defVal)
			continue
		}
		defMap, defIsMap := defVal.(map[string]any)
		curMap, curIsMap := cur.(map[string]any)
		if defIsMap && curIsMap {
			fillDefaults(curMap, defMap)
		}
	}
}

func deepCopy(doc map[string]any) map[string]any {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return deepCopy(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = deepCopyValue(e)
		}
		return out
	default:
		return v
	}
}

// --- Чтение скалярных значений (JSON даёт числа как float64) ---

func (s *Store) stringAt(path, def string) string {
	v, ok := lookup(s.doc, path)
	if !ok {
		return def
	}
	return asString(v, def)
}

func (s *Store) intAt(path string, def int) int {
	v, ok := lookup(s.doc, path)
	if !ok {
		return def
	}
	return asInt(v, def)
}

func (s *Store) floatAt(path string, def float64) float64 {
	v, ok := lookup(s.doc, path)
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return def
	}
}

func (s *Store) boolAt(path string, def bool) bool {
	v, ok := lookup(s.doc, path)
	if !ok {
		return def
	}
	b, ok := v.(bool)
	if !ok {
		return def
	}
	return b
}

func (s *Store) stringsAt(path string) []string {
	v, ok := lookup(s.doc, path)
	if !ok {
		return nil
	}
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, e := range raw {
		if str, ok := e.(string); ok {
			out = append(out, str)
		}
	}
	return out
}

func asString(v any, def string) string {
	if s, ok := v.(string); ok {
		return s
	}
	return def
}

func asInt(v any, def int) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case string:
		// api_id исторически хранился строкой.
		if parsed, err := strconv.Atoi(n); err == nil {
			return parsed
		}
	}
	return def
}

// defaultDocument возвращает документ конфигурации по умолчанию.
func defaultDocument() map[string]any {
	return map[string]any{
		"_schema_version": SchemaVersion,
		"telegram": map[string]any{
			"api_id":                0,
			"api_hash":              "",
			"phone":                 "",
			"session_name":          "session",
			"connection_timeout":    30,
			"request_timeout":       60,
			"retry_attempts":        3,
			"retry_delay":           5,
			"flood_sleep_threshold": 60,
			"device_model":          "TeleDrive",
			"app_version":           "1.0",
			"server_environment":    "production",
			"mtproto_servers": map[string]any{
				"production": map[string]any{
					"dc_id":      2,
					"ip":         "149.154.167.50",
					"port":       443,
					"public_key": "",
				},
			},
		},
		"rate_limit": map[string]any{
			"requests_per_second": 10,
		},
		"scanning": map[string]any{
			"max_messages":      nil,
			"batch_size":        100,
			"direction":         "newest_first",
			"inter_batch_delay": 1,
			"file_types": map[string]any{
				"documents":   true,
				"photos":      true,
				"videos":      true,
				"audio":       true,
				"voice":       true,
				"stickers":    true,
				"animations":  true,
				"video_notes": true,
			},
		},
		"filters": map[string]any{
			"min_file_size":       0,
			"max_file_size":       0,
			"file_extensions":     []any{},
			"exclude_extensions":  []any{},
			"date_from":           nil,
			"date_to":             nil,
			"name_allow_patterns": []any{},
			"name_deny_patterns":  []any{},
			"dedupe":              true,
			"skip_existing":       false,
		},
		"output": map[string]any{
			"directory":       "output",
			"backup_existing": true,
			"sheet_name":      "Telegram Files",
			"formats": map[string]any{
				"json":        map[string]any{"enabled": true},
				"simple_json": map[string]any{"enabled": false},
				"csv":         map[string]any{"enabled": true},
				"excel":       map[string]any{"enabled": true},
			},
		},
		"download": map[string]any{
			"generate_links":  true,
			"include_preview": false,
			"auto_download":   false,
			"directory":       "downloads",
			"workers":         3,
		},
		"logging": map[string]any{
			"level":          "info",
			"directory":      "logs",
			"max_size_mb":    10,
			"backup_count":   5,
			"console_output": true,
		},
		"api": map[string]any{
			"port": 8080,
		},
	}
}
